// Package supervisor spawns one OS process per agent role and keeps the
// squad alive: it watches for exits on a fixed poll interval, restarts dead
// agents according to the restart policy, and multiplexes child output into
// a single labelled event stream.
package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/devsquad/squadron/internal/journal"
	"github.com/devsquad/squadron/internal/policy"
)

// MonitorEvent is one line of output from a supervised agent process.
type MonitorEvent struct {
	Role string
	Line string
}

// RoleStatus is a point-in-time view of one supervised role.
type RoleStatus struct {
	Role     string
	RunID    string
	PID      int
	Running  bool
	Restarts int
	Started  time.Time
}

// Recorder receives lifecycle events. *journal.Journal satisfies it; tests
// substitute their own.
type Recorder interface {
	Record(journal.Entry) error
}

type proc struct {
	role     string
	runID    string
	cmd      *exec.Cmd
	started  time.Time
	restarts int

	exited  chan struct{} // closed when the process has been reaped
	exitErr error

	stopping bool      // StopAll owns this process; no restart
	retryAt  time.Time // earliest time a restart may happen
	dead     bool      // exited, waiting for retryAt
}

// Supervisor manages the agent processes for a set of roles.
type Supervisor struct {
	cfg      *policy.Config
	logger   *log.Logger
	recorder Recorder

	events chan MonitorEvent

	mu    sync.Mutex
	procs map[string]*proc
	pumps sync.WaitGroup

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRecorder attaches a lifecycle journal.
func WithRecorder(r Recorder) Option {
	return func(s *Supervisor) { s.recorder = r }
}

// New creates a supervisor for the configured roles. Nothing runs until
// Start or StartAll is called.
func New(cfg *policy.Config, logger *log.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		logger: logger,
		events: make(chan MonitorEvent, 256),
		procs:  make(map[string]*proc),
		stopCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Events returns the multiplexed output stream of all supervised agents.
// Closed after StopAll has finished.
func (s *Supervisor) Events() <-chan MonitorEvent {
	return s.events
}

// StartAll starts every configured role. Roles that fail to spawn are
// logged and skipped; the rest of the squad still comes up.
func (s *Supervisor) StartAll() {
	for _, role := range s.cfg.Roles {
		if err := s.Start(role); err != nil {
			s.logger.Printf("supervisor: start %s: %v", role, err)
		}
	}
}

// Start spawns the agent process for one role. Starting a role that is
// already supervised is an error.
func (s *Supervisor) Start(role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.procs[role]; exists {
		return fmt.Errorf("role %q already supervised", role)
	}
	return s.spawnLocked(role, 0)
}

// spawnLocked launches the role's process and registers it. Caller holds mu.
func (s *Supervisor) spawnLocked(role string, restarts int) error {
	args := append([]string(nil), s.cfg.AgentCommand...)
	args = append(args, role)

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), s.cfg.ChildEnv()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe for %s: %w", role, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", role, err)
	}

	p := &proc{
		role:     role,
		runID:    uuid.NewString(),
		cmd:      cmd,
		started:  time.Now(),
		restarts: restarts,
		exited:   make(chan struct{}),
	}
	s.procs[role] = p

	s.pumps.Add(1)
	go s.pump(p, stdout)
	go func() {
		p.exitErr = cmd.Wait()
		close(p.exited)
	}()

	s.logger.Printf("supervisor: started %s agent (pid %d)", role, cmd.Process.Pid)
	s.record(journal.Entry{
		RunID:  p.runID,
		Role:   role,
		Kind:   journal.KindSpawn,
		Detail: fmt.Sprintf("pid %d", cmd.Process.Pid),
	})
	return nil
}

// pump forwards one process's output lines into the shared event stream.
func (s *Supervisor) pump(p *proc, r io.Reader) {
	defer s.pumps.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		select {
		case s.events <- MonitorEvent{Role: p.role, Line: sc.Text()}:
		case <-s.stopCh:
			return
		}
	}
}

// Run polls supervised processes until StopAll fires, restarting dead ones
// according to the restart policy. Exactly one Run loop per supervisor.
func (s *Supervisor) Run() {
	ticker := time.NewTicker(s.cfg.MonitorInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep checks every role for an exited process and applies the restart
// policy.
func (s *Supervisor) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A restart spawned after StopAll began would leak its process.
	select {
	case <-s.stopCh:
		return
	default:
	}

	now := time.Now()
	for role, p := range s.procs {
		if p.stopping {
			continue
		}

		if !p.dead {
			select {
			case <-p.exited:
			default:
				continue // still running
			}

			p.dead = true
			detail := "exit ok"
			if p.exitErr != nil {
				detail = p.exitErr.Error()
			}
			s.logger.Printf("supervisor: %s agent exited (%s)", role, detail)
			s.record(journal.Entry{RunID: p.runID, Role: role, Kind: journal.KindExit, Detail: detail})

			max := s.cfg.Restart.MaxRestarts
			if max > 0 && p.restarts >= max {
				s.logger.Printf("supervisor: %s agent reached restart limit (%d), giving up", role, max)
				delete(s.procs, role)
				continue
			}
			p.retryAt = now.Add(s.cfg.Restart.Backoff())
		}

		if now.Before(p.retryAt) {
			continue
		}

		restarts := p.restarts + 1
		runID := p.runID
		delete(s.procs, role)
		if err := s.spawnLocked(role, restarts); err != nil {
			s.logger.Printf("supervisor: restart %s: %v", role, err)
			// Keep the dead record so the next sweep tries again.
			p.retryAt = now.Add(s.cfg.MonitorInterval())
			s.procs[role] = p
			continue
		}
		s.record(journal.Entry{
			RunID:  runID,
			Role:   role,
			Kind:   journal.KindRestart,
			Detail: fmt.Sprintf("restart %d", restarts),
		})
	}
}

// StopAll terminates every supervised process: SIGTERM first, then SIGKILL
// for anything still alive after the grace period. Idempotent; after it
// returns the event stream is closed and no restarts will happen.
func (s *Supervisor) StopAll() {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		s.mu.Lock()
		victims := make([]*proc, 0, len(s.procs))
		for _, p := range s.procs {
			p.stopping = true
			if !p.dead {
				victims = append(victims, p)
			}
		}
		s.procs = make(map[string]*proc)
		s.mu.Unlock()

		for _, p := range victims {
			// Negative pid signals the whole process group.
			syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM)
		}

		deadline := time.After(s.cfg.GracePeriod())
		for _, p := range victims {
			select {
			case <-p.exited:
			case <-deadline:
				syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
				<-p.exited
			}
			s.logger.Printf("supervisor: stopped %s agent", p.role)
			s.record(journal.Entry{RunID: p.runID, Role: p.role, Kind: journal.KindStop})
		}

		// Every pump must be gone before the stream closes; a straggler
		// would send on a closed channel.
		s.pumps.Wait()
		close(s.events)
	})
}

// Live returns the current status of every supervised role, stable order
// not guaranteed.
func (s *Supervisor) Live() []RoleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RoleStatus, 0, len(s.procs))
	for role, p := range s.procs {
		st := RoleStatus{
			Role:     role,
			RunID:    p.runID,
			Restarts: p.restarts,
			Started:  p.started,
			Running:  !p.dead,
		}
		if p.cmd.Process != nil {
			st.PID = p.cmd.Process.Pid
		}
		out = append(out, st)
	}
	return out
}

// Roles returns the roles currently under supervision.
func (s *Supervisor) Roles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.procs))
	for role := range s.procs {
		out = append(out, role)
	}
	return out
}

// Stop terminates a single role and removes it from supervision. Used by
// config reloads; the full shutdown path is StopAll.
func (s *Supervisor) Stop(role string) error {
	s.mu.Lock()
	p, ok := s.procs[role]
	if ok {
		p.stopping = true
		delete(s.procs, role)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("role %q not supervised", role)
	}

	if !p.dead {
		syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM)
		select {
		case <-p.exited:
		case <-time.After(s.cfg.GracePeriod()):
			syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
			<-p.exited
		}
	}
	s.logger.Printf("supervisor: stopped %s agent", role)
	s.record(journal.Entry{RunID: p.runID, Role: role, Kind: journal.KindStop})
	return nil
}

func (s *Supervisor) record(e journal.Entry) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(e); err != nil {
		s.logger.Printf("supervisor: journal: %v", err)
	}
}
