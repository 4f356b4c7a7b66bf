package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/launchmate/llm"
	"github.com/c360studio/launchmate/model"
	"github.com/c360studio/launchmate/project"
)

// Connection is a person worth meeting.
type Connection struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Info      string `json:"info"`
	Relevance string `json:"relevance"`
}

// Connections suggests three local founders relevant to p. Entries without a
// name are dropped.
func (a *Advisor) Connections(ctx context.Context, p *project.Project) ([]Connection, error) {
	text, err := a.complete(ctx, model.CapabilityResearch, ConnectionsPrompt(p, a.location))
	if err != nil {
		return nil, fmt.Errorf("generate connections: %w", err)
	}

	found, err := llm.DecodeJSONArray[Connection](text)
	if err != nil {
		a.logger.Warn("Unparseable connections reply", "project_id", p.ID, "error", err)
		return nil, fmt.Errorf("generate connections: %w: %w", ErrBadReply, err)
	}

	out := make([]Connection, 0, len(found))
	for _, c := range found {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

// ConnectionsPrompt builds the connections request text.
func ConnectionsPrompt(p *project.Project, location string) string {
	return fmt.Sprintf(`
You are helping a founder make meaningful startup connections.

The founder's project is called %q and focuses on the following:
- Description: %s
- Problem: %s
- Target Audience: %s
- Industry Tags: %s

Based on this, list 3 **real or realistic** individuals in or near %s who have started small businesses in a similar or relevant space.

Return only a JSON array in this format:
[
  {
    "name": "Full Name",
    "role": "Their role or business",
    "info": "Short bio or summary of what they do",
    "relevance": "Explain how this person or business is relevant to the project above"
  }
]

No extra commentary or formatting. Only valid JSON.
`, p.Title, p.Description, p.Problem, p.TargetAudience, tagList(p), location)
}
