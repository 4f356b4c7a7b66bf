package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
)

// MinInsights is the feed length a backfill run converges to.
const MinInsights = 3

var (
	// ErrNoProgress aborts a run when an accepted append did not grow the
	// canonical feed.
	ErrNoProgress = errors.New("append did not grow the insight feed")

	// ErrInvalidTransition means the run tried an illegal state change.
	ErrInvalidTransition = errors.New("invalid backfill transition")
)

// Feed is the remote side of a project's insight feed.
type Feed interface {
	AppendInsight(ctx context.Context, id, content string) (project.Insight, error)
	ListInsights(ctx context.Context, id string) ([]project.Insight, error)
}

// Reloader refreshes the local project shadow from the remote store.
type Reloader interface {
	Reload(ctx context.Context) error
	Get(id string) (*project.Project, bool)
}

// Outcome reports one run.
type Outcome struct {
	ProjectID string `json:"project_id"`
	State     State  `json:"-"`
	Final     string `json:"state"`

	// Initial is the canonical count before the run; Count the last one seen.
	Initial int `json:"initial"`
	Count   int `json:"count"`

	Appended           int `json:"appended"`
	GenerationFailures int `json:"generation_failures"`

	// Err is set when State is Aborted.
	Err error `json:"-"`
}

// Observer is told about every state change of a run.
type Observer func(projectID string, from, to State)

// Backfiller runs the convergence loop.
type Backfiller struct {
	gen      Generator
	feed     Feed
	reloader Reloader
	logger   *slog.Logger
	metrics  *Metrics
	observer Observer
	min      int
	timeout  time.Duration
}

// Option configures a Backfiller.
type Option func(*Backfiller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backfiller) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(b *Backfiller) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithObserver registers a state-change callback. It runs on the run's
// goroutine and must not block.
func WithObserver(o Observer) Option {
	return func(b *Backfiller) {
		b.observer = o
	}
}

// WithMinInsights overrides MinInsights.
func WithMinInsights(n int) Option {
	return func(b *Backfiller) {
		if n > 0 {
			b.min = n
		}
	}
}

// WithTimeout bounds a whole run.
func WithTimeout(d time.Duration) Option {
	return func(b *Backfiller) {
		b.timeout = d
	}
}

// NewBackfiller wires the loop. feed is read for the initial count and
// written by appends; reloader is refreshed after every append and supplies
// the recount and the project's title and tags.
func NewBackfiller(gen Generator, feed Feed, reloader Reloader, opts ...Option) *Backfiller {
	b := &Backfiller{
		gen:      gen,
		feed:     feed,
		reloader: reloader,
		logger:   slog.Default(),
		min:      MinInsights,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = NewMetrics(nil)
	}
	return b
}

// Min returns the target feed length.
func (b *Backfiller) Min() int {
	return b.min
}

// Ensure grows the project's feed to the minimum. Generation failures are
// stored as FailureSentinel and never abort. A failed append, reload or
// recount aborts at once; nothing is retried. The loop performs at most
// Min()-Initial appends.
func (b *Backfiller) Ensure(ctx context.Context, projectID string) Outcome {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	r := &run{b: b, out: Outcome{ProjectID: projectID, State: Idle}}
	r.loop(ctx)

	r.out.Final = r.out.State.String()
	b.metrics.Runs.WithLabelValues(r.out.Final).Inc()
	if r.out.Err != nil {
		b.logger.Warn("Insight backfill aborted", "project_id", projectID,
			"count", r.out.Count, "appended", r.out.Appended, "error", r.out.Err)
	} else {
		b.logger.Debug("Insight backfill satisfied", "project_id", projectID,
			"initial", r.out.Initial, "count", r.out.Count, "appended", r.out.Appended)
	}
	return r.out
}

type run struct {
	b   *Backfiller
	out Outcome
}

func (r *run) move(to State) bool {
	from := r.out.State
	if !CanTransition(from, to) {
		r.out.State = Aborted
		r.out.Err = fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		return false
	}
	r.out.State = to
	if r.b.observer != nil {
		r.b.observer(r.out.ProjectID, from, to)
	}
	return true
}

func (r *run) abort(err error) {
	if r.move(Aborted) {
		r.out.Err = err
	}
}

func (r *run) loop(ctx context.Context) {
	b := r.b
	id := r.out.ProjectID

	r.move(Counting)
	feed, err := b.feed.ListInsights(ctx, id)
	if err != nil {
		r.abort(fmt.Errorf("count insights: %w", err))
		return
	}
	r.out.Initial = len(feed)
	r.out.Count = len(feed)

	for r.out.Count < b.min {
		if err := ctx.Err(); err != nil {
			r.abort(err)
			return
		}
		p, ok := b.reloader.Get(id)
		if !ok {
			r.abort(storage.NotFound("project %s", id))
			return
		}

		r.move(Generating)
		content, err := b.gen.Generate(ctx, Subject{Title: p.Title, Tags: p.Tags})
		if err != nil || content == "" {
			r.out.GenerationFailures++
			b.metrics.GenerationFailures.Inc()
			b.logger.Debug("Insight generation failed", "project_id", id, "error", err)
			content = FailureSentinel
		}

		r.move(Appending)
		if _, err := b.feed.AppendInsight(ctx, id, content); err != nil {
			b.metrics.Appends.WithLabelValues("error").Inc()
			r.abort(fmt.Errorf("append insight: %w", err))
			return
		}
		b.metrics.Appends.WithLabelValues("ok").Inc()
		r.out.Appended++

		r.move(Counting)
		if err := b.reloader.Reload(ctx); err != nil {
			r.abort(fmt.Errorf("reload after append: %w", err))
			return
		}
		p, ok = b.reloader.Get(id)
		if !ok {
			r.abort(storage.NotFound("project %s after reload", id))
			return
		}
		if len(p.Insights) <= r.out.Count {
			r.abort(fmt.Errorf("%w: still %d", ErrNoProgress, len(p.Insights)))
			return
		}
		r.out.Count = len(p.Insights)
	}

	r.move(Satisfied)
}
