package insight

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Trigger runs a backfill when the active project changes. Opening the
// project that is already active does nothing; overlapping runs for the
// same project share one result.
type Trigger struct {
	b     *Backfiller
	group singleflight.Group

	mu     sync.Mutex
	active string
}

// NewTrigger returns a trigger around b.
func NewTrigger(b *Backfiller) *Trigger {
	return &Trigger{b: b}
}

// Open marks projectID active. If that is a change, it runs (or joins) a
// backfill and returns its outcome with ran set.
//
// The run does not inherit ctx's cancellation; it is bounded by the
// backfiller's timeout. If ctx ends first, Open returns an outcome carrying
// ctx's error and the run carries on for any other waiters.
func (t *Trigger) Open(ctx context.Context, projectID string) (Outcome, bool) {
	t.mu.Lock()
	if t.active == projectID {
		t.mu.Unlock()
		return Outcome{}, false
	}
	t.active = projectID
	t.mu.Unlock()

	ch := t.group.DoChan(projectID, func() (any, error) {
		return t.b.Ensure(context.WithoutCancel(ctx), projectID), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Outcome), true
	case <-ctx.Done():
		return Outcome{ProjectID: projectID, Err: ctx.Err()}, true
	}
}

// Active returns the project last opened.
func (t *Trigger) Active() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Reset forgets the active project so the next Open runs again.
func (t *Trigger) Reset() {
	t.mu.Lock()
	t.active = ""
	t.mu.Unlock()
}
