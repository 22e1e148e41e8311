// squadron supervises a squad of AI agents against a coordination server.
//
// Subcommands:
//
//	run     start the configured agents and monitor them (default)
//	demo    start the agents and seed a collaboration thread with tasks
//	status  show recent supervisor history from the journal
//	version print the version
//
// Configuration comes from SQUADRON_CONFIG (YAML) with built-in defaults;
// SQUADRON_SERVER_URL and SQUADRON_SESSION override the file.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/devsquad/squadron/internal/coral"
	"github.com/devsquad/squadron/internal/journal"
	"github.com/devsquad/squadron/internal/orchestrator"
	"github.com/devsquad/squadron/internal/policy"
	"github.com/devsquad/squadron/internal/supervisor"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var roleColors = map[string]*color.Color{
	"frontend":    color.New(color.FgCyan),
	"backend":     color.New(color.FgGreen),
	"security":    color.New(color.FgRed),
	"devops":      color.New(color.FgYellow),
	"datascience": color.New(color.FgMagenta),
}

func main() {
	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "version", "--version", "-v":
		fmt.Println("squadron " + Version)
	case "status":
		runStatus()
	case "run":
		runSquad(false)
	case "demo":
		runSquad(true)
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [run|demo|status|version]\n", os.Args[0])
		os.Exit(2)
	}
}

func runSquad(demo bool) {
	tmpLogger := log.New(os.Stderr, "[squadron] ", log.LstdFlags)
	configPath := os.Getenv("SQUADRON_CONFIG")
	cfg, err := policy.LoadConfig(configPath)
	if err != nil {
		tmpLogger.Fatalf("config: %v", err)
	}

	logger := setupLogger(cfg.LogPath())
	logger.Printf("starting squadron (server %s, session %s)", cfg.ServerURL, cfg.Session)

	jnl, err := journal.Open(cfg.JournalPath())
	if err != nil {
		logger.Fatalf("journal: %v", err)
	}
	defer jnl.Close()

	client := coral.NewClient(cfg.ServerURL, logger)
	orch := orchestrator.New(client, cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := orch.CheckServer(ctx); err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Printf("coordination server is up")

	sup := supervisor.New(cfg, logger, supervisor.WithRecorder(jnl))
	sup.StartAll()
	go sup.Run()

	if configPath != "" {
		reloader := supervisor.NewReloader(sup, configPath, logger)
		go func() {
			if err := reloader.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("config watch stopped: %v", err)
			}
		}()
	}

	if demo {
		go func() {
			// Let the agents connect and register before seeding work.
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
			participants := make([]string, 0, len(cfg.Roles))
			for _, role := range cfg.Roles {
				participants = append(participants, fmt.Sprintf("ai_%s_001", role))
			}
			if _, err := orch.RunDemo(ctx, participants); err != nil && ctx.Err() == nil {
				logger.Printf("demo: %v", err)
			}
		}()
	}

	monitor(ctx, sup)

	logger.Printf("shutting down agents")
	sup.StopAll()
	for range sup.Events() {
		// Drain whatever the agents said on the way out.
	}
	logger.Printf("all agents stopped")
}

// monitor renders the multiplexed agent output until the context ends.
func monitor(ctx context.Context, sup *supervisor.Supervisor) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sup.Events():
			if !ok {
				return
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev supervisor.MonitorEvent) {
	c, ok := roleColors[ev.Role]
	if !ok {
		c = color.New(color.FgWhite)
	}
	c.Printf("[%s] ", ev.Role)
	fmt.Println(ev.Line)
}

func runStatus() {
	tmpLogger := log.New(os.Stderr, "[squadron] ", log.LstdFlags)
	cfg, err := policy.LoadConfig(os.Getenv("SQUADRON_CONFIG"))
	if err != nil {
		tmpLogger.Fatalf("config: %v", err)
	}

	jnl, err := journal.Open(cfg.JournalPath())
	if err != nil {
		tmpLogger.Fatalf("journal: %v", err)
	}
	defer jnl.Close()

	bold := color.New(color.Bold)
	bold.Println("Restart counts")
	for _, role := range cfg.Roles {
		n, err := jnl.RestartCount(role)
		if err != nil {
			tmpLogger.Fatalf("journal: %v", err)
		}
		fmt.Printf("  %-12s %d\n", role, n)
	}

	entries, err := jnl.Recent(20)
	if err != nil {
		tmpLogger.Fatalf("journal: %v", err)
	}
	bold.Println("\nRecent events")
	if len(entries) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("  %s  %-12s %-8s %s",
			e.At.Local().Format("2006-01-02 15:04:05"), e.Role, e.Kind, e.Detail)
		if c, ok := roleColors[e.Role]; ok {
			c.Println(line)
		} else {
			fmt.Println(line)
		}
	}
}

// setupLogger writes to the log file and, when interactive, stderr.
func setupLogger(logFilePath string) *log.Logger {
	var writers []io.Writer

	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			} else {
				fmt.Fprintf(os.Stderr, "[squadron] Warning: cannot open log file %s: %v\n", logFilePath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "[squadron] Warning: cannot create log dir %s: %v\n", filepath.Dir(logFilePath), err)
		}
	}

	if stderrIsTerminal || !hasLogFile {
		writers = append(writers, os.Stderr)
	}

	return log.New(io.MultiWriter(writers...), "[squadron] ", log.LstdFlags)
}
