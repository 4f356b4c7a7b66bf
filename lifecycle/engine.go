package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/launchmate/cache"
	"github.com/c360studio/launchmate/phase"
	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
)

// DefaultPushTimeout bounds one background remote write.
const DefaultPushTimeout = 30 * time.Second

// Engine applies task toggles to the cache and pushes them to the remote
// store in the background.
type Engine struct {
	cache    *cache.Cache
	gw       storage.Gateway
	registry *phase.Registry
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
	timeout  time.Duration

	inflight sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock overrides the time source used for due dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPushTimeout bounds each background remote write.
func WithPushTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine wires an engine around the cache, the gateway and the phase
// order.
func NewEngine(c *cache.Cache, gw storage.Gateway, reg *phase.Registry, opts ...Option) *Engine {
	e := &Engine{
		cache:    c,
		gw:       gw,
		registry: reg,
		logger:   slog.Default(),
		now:      time.Now,
		timeout:  DefaultPushTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

// ToggleTask flips a task on the cached project and returns once the local
// change is applied. The remote write runs in the background; its result is
// reported through the returned Commit. If the target does not exist the
// cache is untouched and a storage.ErrNotFound-kind error is returned.
func (e *Engine) ToggleTask(ctx context.Context, projectID, phaseID, milestone string, taskIndex int) (*Commit, error) {
	ref := TaskRef{PhaseID: phaseID, Milestone: milestone, TaskIndex: taskIndex}

	var out Outcome
	err := e.cache.Mutate(projectID, func(p *project.Project) (bool, error) {
		o, err := ApplyToggle(p, e.registry, ref, e.now())
		if err != nil {
			return false, err
		}
		out = o
		return true, nil
	})
	if err != nil {
		if IsNotFound(err) {
			e.metrics.Toggles.WithLabelValues("not_found").Inc()
			e.logger.Debug("Toggle target not found", "project_id", projectID, "phase", phaseID,
				"milestone", milestone, "task", taskIndex, "error", err)
		} else {
			e.metrics.Toggles.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	e.metrics.Toggles.WithLabelValues("applied").Inc()
	if out.Advanced {
		e.metrics.Advances.WithLabelValues(out.To).Inc()
		e.logger.Info("Project advanced", "project_id", projectID, "from", out.From, "to", out.To)
	}

	commit := newCommit(out)
	e.push(ctx, "toggle_task", projectID, out.Patch, commit)
	return commit, nil
}

// push writes patch in the background and resolves commit with the result.
// A failed write keeps the local state; the next Load corrects it.
func (e *Engine) push(ctx context.Context, op, projectID string, patch project.Patch, commit *Commit) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer cancel()

		err := e.gw.PatchProject(pushCtx, projectID, patch)
		if err != nil {
			e.metrics.Pushes.WithLabelValues(op, "error").Inc()
			e.metrics.PushFailures.WithLabelValues(op, string(storage.KindOf(err))).Inc()
			e.logger.Warn("Remote write failed; local state kept until next load",
				"op", op, "project_id", projectID, "fields", patch.Fields(), "error", err)
		} else {
			e.metrics.Pushes.WithLabelValues(op, "ok").Inc()
		}
		commit.finish(err)
	}()
}

// Flush waits for in-flight remote writes or until ctx ends.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
