package lifecycle

import (
	"context"
	"sync"
)

// Commit tracks the remote half of a local mutation. The local change is
// already visible when the Commit is returned; Done closes once the remote
// write finished, successfully or not.
type Commit struct {
	Outcome Outcome

	done chan struct{}
	once sync.Once
	err  error
}

func newCommit(o Outcome) *Commit {
	return &Commit{Outcome: o, done: make(chan struct{})}
}

// resolved returns a commit whose remote half is already finished.
func resolved(o Outcome, err error) *Commit {
	c := newCommit(o)
	c.finish(err)
	return c
}

func (c *Commit) finish(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed when the remote write completes.
func (c *Commit) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the remote write completes or ctx ends. Giving up on ctx
// does not cancel the write.
func (c *Commit) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the remote write error, or nil while still pending.
func (c *Commit) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}
