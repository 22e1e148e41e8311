// Package orchestrator drives the collaboration demo: it checks that the
// coordination server is reachable, opens a project thread, and seeds it
// with tasks for the agents to pick up.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/devsquad/squadron/internal/coral"
	"github.com/devsquad/squadron/internal/policy"
)

// Orchestrator seeds collaboration work through the coordination server.
type Orchestrator struct {
	client *coral.Client
	cfg    *policy.Config
	logger *log.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator over an existing server client.
func New(client *coral.Client, cfg *policy.Config, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		client: client,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// CheckServer reports whether the coordination server answers its agent
// listing endpoint.
func (o *Orchestrator) CheckServer(ctx context.Context) error {
	if _, err := o.client.ListAgents(ctx); err != nil {
		return fmt.Errorf("coordination server not reachable at %s: %w", o.client.BaseURL(), err)
	}
	return nil
}

// RunDemo creates the project thread and posts the configured tasks into
// it, pausing between tasks so agents respond in sequence. A task that
// fails to post is logged and skipped; the demo continues. Returns the
// thread id.
func (o *Orchestrator) RunDemo(ctx context.Context, participants []string) (string, error) {
	name := fmt.Sprintf("Project: %s", o.cfg.Demo.Project)
	threadID, err := o.client.CreateThread(ctx, name, participants, map[string]any{
		"created_at": time.Now().Format(time.RFC3339),
		"project":    o.cfg.Demo.Project,
	})
	if err != nil {
		return "", fmt.Errorf("create collaboration thread: %w", err)
	}
	o.logger.Printf("orchestrator: thread created: %s", threadID)

	delay := time.Duration(o.cfg.Demo.DelaySeconds) * time.Second
	for i, task := range o.cfg.Demo.Tasks {
		if i > 0 && delay > 0 {
			if err := o.sleep(ctx, delay); err != nil {
				return threadID, err
			}
		}
		if err := o.client.PostMessage(ctx, threadID, task, "orchestrator", participants); err != nil {
			o.logger.Printf("orchestrator: task not sent: %v", err)
			continue
		}
		o.logger.Printf("orchestrator: task sent: %s", task)
	}
	return threadID, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
