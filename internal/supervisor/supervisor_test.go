package supervisor

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/devsquad/squadron/internal/journal"
	"github.com/devsquad/squadron/internal/policy"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (m *memRecorder) Record(e journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRecorder) kinds(role, kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Role == role && e.Kind == kind {
			n++
		}
	}
	return n
}

// testConfig runs each role as a shell script; the role name arrives as $0.
func testConfig(script string, roles ...string) *policy.Config {
	cfg := policy.DefaultConfig()
	cfg.Roles = roles
	cfg.AgentCommand = []string{"/bin/sh", "-c", script}
	cfg.GracePeriodSeconds = 1
	cfg.MonitorIntervalSeconds = 1
	return cfg
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestStartEmitsLabelledOutput(t *testing.T) {
	cfg := testConfig(`echo "hello from $0"; sleep 30`, "frontend")
	sup := New(cfg, testLogger())

	if err := sup.Start("frontend"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case ev := <-sup.Events():
		if ev.Role != "frontend" {
			t.Errorf("role = %q", ev.Role)
		}
		if ev.Line != "hello from frontend" {
			t.Errorf("line = %q", ev.Line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no output event")
	}

	live := sup.Live()
	if len(live) != 1 || !live[0].Running || live[0].PID <= 0 {
		t.Errorf("live = %+v", live)
	}

	sup.StopAll()
}

func TestChildReceivesConfigEnv(t *testing.T) {
	cfg := testConfig(`echo "$SQUADRON_APPLICATION/$SQUADRON_SESSION/$SQUADRON_LLM_API_KEY"; sleep 30`, "frontend")
	cfg.Application = "squadA"
	cfg.Session = "sessX"
	cfg.Provider.APIKey = "gsk-test-123"
	sup := New(cfg, testLogger())

	if err := sup.Start("frontend"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case ev := <-sup.Events():
		if ev.Line != "squadA/sessX/gsk-test-123" {
			t.Errorf("child env line = %q", ev.Line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no output event")
	}

	sup.StopAll()
}

func TestStartDuplicateRole(t *testing.T) {
	cfg := testConfig(`sleep 30`, "frontend")
	sup := New(cfg, testLogger())
	defer sup.StopAll()

	if err := sup.Start("frontend"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sup.Start("frontend"); err == nil {
		t.Fatal("duplicate Start accepted")
	}
}

func TestRestartsDeadAgent(t *testing.T) {
	rec := &memRecorder{}
	cfg := testConfig(`echo alive; exit 1`, "backend")
	sup := New(cfg, testLogger(), WithRecorder(rec))

	sup.StartAll()
	go sup.Run()
	go func() {
		for range sup.Events() {
		}
	}()

	// The process dies instantly; with no backoff the first sweeps must
	// bring it back.
	deadline := time.After(10 * time.Second)
	for rec.kinds("backend", journal.KindRestart) < 2 {
		select {
		case <-deadline:
			t.Fatalf("restarts = %d after 10s, want >= 2", rec.kinds("backend", journal.KindRestart))
		case <-time.After(200 * time.Millisecond):
		}
	}

	if n := rec.kinds("backend", journal.KindSpawn); n < 3 {
		t.Errorf("spawns = %d, want >= 3", n)
	}
	if n := rec.kinds("backend", journal.KindExit); n < 2 {
		t.Errorf("exits = %d, want >= 2", n)
	}

	sup.StopAll()
}

func TestRestartLimit(t *testing.T) {
	rec := &memRecorder{}
	cfg := testConfig(`exit 1`, "security")
	cfg.Restart.MaxRestarts = 1
	sup := New(cfg, testLogger(), WithRecorder(rec))

	sup.StartAll()
	go sup.Run()
	go func() {
		for range sup.Events() {
		}
	}()

	// First exit restarts once, second exit hits the limit and the role
	// is dropped from supervision.
	deadline := time.After(10 * time.Second)
	for len(sup.Live()) > 0 {
		select {
		case <-deadline:
			t.Fatalf("role still supervised after 10s: %+v", sup.Live())
		case <-time.After(200 * time.Millisecond):
		}
	}

	if n := rec.kinds("security", journal.KindRestart); n != 1 {
		t.Errorf("restarts = %d, want exactly 1", n)
	}

	sup.StopAll()
}

func TestStopAllIdempotent(t *testing.T) {
	cfg := testConfig(`sleep 30`, "frontend", "backend")
	sup := New(cfg, testLogger())
	sup.StartAll()

	done := make(chan struct{})
	go func() {
		for range sup.Events() {
		}
		close(done)
	}()

	sup.StopAll()
	sup.StopAll() // second call is a no-op

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream not closed after StopAll")
	}

	if live := sup.Live(); len(live) != 0 {
		t.Errorf("live after StopAll = %+v", live)
	}
}

func TestStopAllKillsStubborn(t *testing.T) {
	// Ignores SIGTERM; only SIGKILL after the grace period can end it.
	cfg := testConfig(`trap '' TERM; while true; do sleep 1; done`, "devops")
	sup := New(cfg, testLogger())
	sup.StartAll()
	go func() {
		for range sup.Events() {
		}
	}()

	start := time.Now()
	sup.StopAll()
	elapsed := time.Since(start)

	if elapsed > 10*time.Second {
		t.Errorf("StopAll took %v, kill escalation failed", elapsed)
	}
}

func TestStopSingleRole(t *testing.T) {
	rec := &memRecorder{}
	cfg := testConfig(`sleep 30`, "frontend", "backend")
	sup := New(cfg, testLogger(), WithRecorder(rec))
	sup.StartAll()
	defer sup.StopAll()
	go func() {
		for range sup.Events() {
		}
	}()

	if err := sup.Stop("frontend"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sup.Stop("frontend"); err == nil {
		t.Fatal("stopping a stopped role should fail")
	}

	roles := sup.Roles()
	if len(roles) != 1 || roles[0] != "backend" {
		t.Errorf("roles = %v", roles)
	}
	if n := rec.kinds("frontend", journal.KindStop); n != 1 {
		t.Errorf("stop events = %d", n)
	}
}

func TestReconcile(t *testing.T) {
	cfg := testConfig(`sleep 30`, "frontend", "backend")
	sup := New(cfg, testLogger())
	sup.StartAll()
	defer sup.StopAll()
	go func() {
		for range sup.Events() {
		}
	}()

	r := NewReloader(sup, "", testLogger())
	r.Reconcile([]string{"backend", "devops"})

	roles := sup.Roles()
	if len(roles) != 2 {
		t.Fatalf("roles = %v", roles)
	}
	got := map[string]bool{}
	for _, role := range roles {
		got[role] = true
	}
	if !got["backend"] || !got["devops"] || got["frontend"] {
		t.Errorf("roles after reconcile = %v", roles)
	}
}
