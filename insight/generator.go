package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/launchmate/llm"
	"github.com/c360studio/launchmate/model"
)

// ErrGeneration marks a failed generation. The backfill loop never returns
// it; it stores FailureSentinel instead.
var ErrGeneration = errors.New("generation failed")

// Subject is what insights are generated about.
type Subject struct {
	Title string
	Tags  []string
}

// Generator produces one insight record's content.
type Generator interface {
	Generate(ctx context.Context, s Subject) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, s Subject) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, s Subject) (string, error) {
	return f(ctx, s)
}

// LLMGenerator asks a language model for startup updates.
type LLMGenerator struct {
	client     llm.Completer
	capability model.Capability
}

// NewLLMGenerator returns a generator using client. An empty capability
// means model.CapabilityInsights.
func NewLLMGenerator(client llm.Completer, capability model.Capability) *LLMGenerator {
	if capability == "" {
		capability = model.CapabilityInsights
	}
	return &LLMGenerator{client: client, capability: capability}
}

// Generate returns the model's reply for s.
func (g *LLMGenerator) Generate(ctx context.Context, s Subject) (string, error) {
	resp, err := g.client.Complete(ctx, llm.Request{
		Capability: string(g.capability),
		Messages:   []llm.Message{{Role: "user", Content: Prompt(s)}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty reply from %s", ErrGeneration, resp.Model)
	}
	return content, nil
}

// Prompt builds the request text for s.
func Prompt(s Subject) string {
	return fmt.Sprintf(
		"\nGive 3 current startup updates related to these tags: %s.\n"+
			"Include: industry insights, potential competitors, or market alerts.\n"+
			"Title: %s\n",
		strings.Join(s.Tags, ", "), s.Title)
}
