package supervisor

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/devsquad/squadron/internal/policy"
)

const reloadDebounce = 500 * time.Millisecond

// Reloader watches the config file and reconciles the supervised role set
// when it changes. Only the role list is applied at runtime; server and
// restart settings need a full restart to change.
type Reloader struct {
	sup    *Supervisor
	path   string
	logger *log.Logger
}

// NewReloader watches the config file at path for role changes.
func NewReloader(sup *Supervisor, path string, logger *log.Logger) *Reloader {
	return &Reloader{sup: sup, path: path, logger: logger}
}

// Watch blocks until ctx is cancelled, applying role changes as they land.
// Editors replace files rather than write in place, so the watch is on the
// directory and events are filtered by name.
func (r *Reloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(reloadDebounce)

		case <-pending:
			pending = nil
			r.apply()

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Printf("reloader: watch error: %v", werr)
		}
	}
}

// apply reloads the config and adjusts the running role set to match.
func (r *Reloader) apply() {
	cfg, err := policy.LoadConfig(r.path)
	if err != nil {
		r.logger.Printf("reloader: config reload rejected: %v", err)
		return
	}
	r.Reconcile(cfg.Roles)
}

// Reconcile starts roles that should run and are not running, and stops
// roles that run but were removed from the config.
func (r *Reloader) Reconcile(want []string) {
	wanted := make(map[string]bool, len(want))
	for _, role := range want {
		wanted[role] = true
	}
	running := make(map[string]bool)
	for _, role := range r.sup.Roles() {
		running[role] = true
	}

	for _, role := range want {
		if !running[role] {
			r.logger.Printf("reloader: starting new role %s", role)
			if err := r.sup.Start(role); err != nil {
				r.logger.Printf("reloader: start %s: %v", role, err)
			}
		}
	}
	for role := range running {
		if !wanted[role] {
			r.logger.Printf("reloader: stopping removed role %s", role)
			if err := r.sup.Stop(role); err != nil {
				r.logger.Printf("reloader: stop %s: %v", role, err)
			}
		}
	}
}
