// Package advisor generates founder-facing writing from a project: elevator
// pitches and suggested local connections.
package advisor

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/c360studio/launchmate/llm"
	"github.com/c360studio/launchmate/model"
	"github.com/c360studio/launchmate/project"
)

// DefaultLocation is where connections are looked for.
const DefaultLocation = "College Park, Maryland"

var (
	// ErrInvalidParams rejects pitch settings before any model call.
	ErrInvalidParams = errors.New("invalid pitch parameters")

	// ErrBadReply means the model answered with something unusable.
	ErrBadReply = errors.New("unusable model reply")
)

// Advisor wraps an LLM client with the project prompts.
type Advisor struct {
	client   llm.Completer
	logger   *slog.Logger
	location string
}

// Option configures an Advisor.
type Option func(*Advisor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Advisor) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithLocation changes where connections are looked for.
func WithLocation(loc string) Option {
	return func(a *Advisor) {
		if loc = strings.TrimSpace(loc); loc != "" {
			a.location = loc
		}
	}
}

// New returns an advisor calling client.
func New(client llm.Completer, opts ...Option) *Advisor {
	a := &Advisor{client: client, logger: slog.Default(), location: DefaultLocation}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Advisor) complete(ctx context.Context, capability model.Capability, prompt string) (string, error) {
	resp, err := a.client.Complete(ctx, llm.Request{
		Capability: string(capability),
		Messages:   []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func tagList(p *project.Project) string {
	return strings.Join(p.Tags, ", ")
}
