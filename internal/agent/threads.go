package agent

import (
	"sort"
	"sync"
	"time"
)

// ThreadState is a snapshot of one conversation thread as seen from this
// agent's stream. Participants holds every sender observed on the thread.
type ThreadState struct {
	ThreadID     string
	Participants []string
	LastSeenAt   time.Time
}

// ThreadTracker accumulates thread state from thread.message and
// agent.mention events. Safe for concurrent use.
type ThreadTracker struct {
	mu      sync.Mutex
	now     func() time.Time
	threads map[string]*threadRecord
}

type threadRecord struct {
	participants map[string]struct{}
	lastSeenAt   time.Time
}

// NewThreadTracker returns an empty tracker.
func NewThreadTracker() *ThreadTracker {
	return &ThreadTracker{
		now:     time.Now,
		threads: make(map[string]*threadRecord),
	}
}

// Observe records activity by sender on the given thread. A sender seen
// twice is counted once; events with an empty thread ID are ignored.
func (t *ThreadTracker) Observe(threadID, sender string) {
	if threadID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.threads[threadID]
	if !ok {
		rec = &threadRecord{participants: make(map[string]struct{})}
		t.threads[threadID] = rec
	}
	if sender != "" {
		rec.participants[sender] = struct{}{}
	}
	rec.lastSeenAt = t.now()
}

// Thread returns the state of one thread, or false if it was never seen.
func (t *ThreadTracker) Thread(threadID string) (ThreadState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.threads[threadID]
	if !ok {
		return ThreadState{}, false
	}
	return snapshot(threadID, rec), true
}

// Threads returns every tracked thread, ordered by thread ID.
func (t *ThreadTracker) Threads() []ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ThreadState, 0, len(t.threads))
	for id, rec := range t.threads {
		out = append(out, snapshot(id, rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out
}

func snapshot(id string, rec *threadRecord) ThreadState {
	parts := make([]string, 0, len(rec.participants))
	for p := range rec.participants {
		parts = append(parts, p)
	}
	sort.Strings(parts)
	return ThreadState{ThreadID: id, Participants: parts, LastSeenAt: rec.lastSeenAt}
}
