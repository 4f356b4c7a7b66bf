package advisor

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/c360studio/launchmate/model"
	"github.com/c360studio/launchmate/project"
)

// PitchParams describes where a pitch will be given.
type PitchParams struct {
	Audience string `json:"audience"`
	Venue    string `json:"venue"`
	Goal     string `json:"goal"`

	// Duration is in minutes.
	Duration int `json:"duration"`
}

// Validate requires every field and a duration between 1 and 60 minutes.
func (pp PitchParams) Validate() error {
	var missing []string
	for name, v := range map[string]string{"audience": pp.Audience, "venue": pp.Venue, "goal": pp.Goal} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidParams, strings.Join(sorted(missing), ", "))
	}
	if pp.Duration < 1 || pp.Duration > 60 {
		return fmt.Errorf("%w: duration %d not in 1..60 minutes", ErrInvalidParams, pp.Duration)
	}
	return nil
}

// Pitch writes an elevator pitch for p in the given setting.
func (a *Advisor) Pitch(ctx context.Context, p *project.Project, pp PitchParams) (string, error) {
	if err := pp.Validate(); err != nil {
		return "", err
	}
	text, err := a.complete(ctx, model.CapabilityPitch, PitchPrompt(p, pp))
	if err != nil {
		return "", fmt.Errorf("generate pitch: %w", err)
	}
	if text == "" {
		return "", fmt.Errorf("generate pitch: %w: empty", ErrBadReply)
	}
	a.logger.Debug("Pitch generated", "project_id", p.ID, "minutes", pp.Duration, "chars", len(text))
	return text, nil
}

// PitchPrompt builds the pitch request text.
func PitchPrompt(p *project.Project, pp PitchParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are helping a founder create a %d-minute pitch for their startup.\n\n", pp.Duration)
	b.WriteString("Details:\n")
	fmt.Fprintf(&b, "- Title: %s\n", p.Title)
	fmt.Fprintf(&b, "- Description: %s\n", p.Description)
	fmt.Fprintf(&b, "- Problem: %s\n", p.Problem)
	fmt.Fprintf(&b, "- Target Audience: %s\n", p.TargetAudience)
	fmt.Fprintf(&b, "- Tags: %s\n\n", tagList(p))
	b.WriteString("Pitch Setting:\n")
	fmt.Fprintf(&b, "- Audience: %s\n", pp.Audience)
	fmt.Fprintf(&b, "- Venue: %s\n", pp.Venue)
	fmt.Fprintf(&b, "- Goal: %s\n\n", pp.Goal)
	b.WriteString("Return a professional, persuasive pitch tailored for this setting.")
	return b.String()
}

func sorted(s []string) []string {
	slices.Sort(s)
	return s
}
