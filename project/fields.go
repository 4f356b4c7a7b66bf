package project

import (
	"strings"
	"time"
)

// Fields are the business fields supplied when a project is created.
type Fields struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Problem        string     `json:"problem,omitempty"`
	TargetAudience string     `json:"target_audience,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	OwnerID        string     `json:"owner_id"`
	Visibility     Visibility `json:"visibility,omitempty"`
	Collaborators  []string   `json:"collaborators,omitempty"`
}

// Validate checks the fields the persistence service requires.
func (f Fields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(f.OwnerID) == "" {
		return ErrOwnerRequired
	}
	if strings.TrimSpace(f.Description) == "" {
		return ErrDescriptionRequired
	}
	if f.Visibility != "" && !f.Visibility.IsValid() {
		return ErrInvalidVisibility
	}
	return nil
}

// New builds an unsaved project at the given stage with the given
// milestones already materialized for that stage.
func New(f Fields, stage string, initial []Milestone, now time.Time) *Project {
	p := &Project{
		Title:          strings.TrimSpace(f.Title),
		Description:    f.Description,
		Problem:        f.Problem,
		TargetAudience: f.TargetAudience,
		Tags:           NormalizeTags(f.Tags),
		OwnerID:        strings.TrimSpace(f.OwnerID),
		Visibility:     f.Visibility,
		Stage:          stage,
		Collaborators:  dedupe(f.Collaborators, false),
		CreatedAt:      now,
		LastEdited:     now,
		Milestones:     map[string][]Milestone{stage: CloneMilestoneList(initial)},
		Insights:       []Insight{},
	}
	if p.Visibility == "" {
		p.Visibility = VisibilityPrivate
	}
	return p
}

// Patch is a partial update. Nil fields are left unchanged. Slice and map
// fields carry the full desired value, never a delta, so applying the same
// patch twice is harmless.
type Patch struct {
	Title          *string                `json:"title,omitempty"`
	Description    *string                `json:"description,omitempty"`
	Problem        *string                `json:"problem,omitempty"`
	TargetAudience *string                `json:"target_audience,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	Visibility     *Visibility            `json:"visibility,omitempty"`
	Stage          *string                `json:"stage,omitempty"`
	Collaborators  []string               `json:"collaborators,omitempty"`
	Favorite       *bool                  `json:"favorite,omitempty"`
	Milestones     map[string][]Milestone `json:"milestones,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (pt Patch) IsEmpty() bool {
	return pt.Title == nil && pt.Description == nil && pt.Problem == nil &&
		pt.TargetAudience == nil && pt.Tags == nil && pt.Visibility == nil &&
		pt.Stage == nil && pt.Collaborators == nil && pt.Favorite == nil &&
		pt.Milestones == nil
}

// Validate rejects patches that would break record invariants.
func (pt Patch) Validate() error {
	if pt.Title != nil && strings.TrimSpace(*pt.Title) == "" {
		return ErrTitleRequired
	}
	if pt.Visibility != nil && !pt.Visibility.IsValid() {
		return ErrInvalidVisibility
	}
	return nil
}

// Fields lists the json names of the fields the patch sets, in a stable
// order. Used for logging and by stores that build partial updates.
func (pt Patch) Fields() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(pt.Title != nil, "title")
	add(pt.Description != nil, "description")
	add(pt.Problem != nil, "problem")
	add(pt.TargetAudience != nil, "target_audience")
	add(pt.Tags != nil, "tags")
	add(pt.Visibility != nil, "visibility")
	add(pt.Stage != nil, "stage")
	add(pt.Collaborators != nil, "collaborators")
	add(pt.Favorite != nil, "favorite")
	add(pt.Milestones != nil, "milestones")
	return out
}

// Apply writes the patch onto p. Milestone keys present in p but absent from
// the patch are kept, so a patch can never drop a materialized phase.
func (p *Project) Apply(pt Patch) {
	if pt.Title != nil {
		p.Title = strings.TrimSpace(*pt.Title)
	}
	if pt.Description != nil {
		p.Description = *pt.Description
	}
	if pt.Problem != nil {
		p.Problem = *pt.Problem
	}
	if pt.TargetAudience != nil {
		p.TargetAudience = *pt.TargetAudience
	}
	if pt.Tags != nil {
		p.Tags = NormalizeTags(pt.Tags)
	}
	if pt.Visibility != nil {
		p.Visibility = *pt.Visibility
	}
	if pt.Stage != nil {
		p.Stage = *pt.Stage
	}
	if pt.Collaborators != nil {
		p.Collaborators = dedupe(pt.Collaborators, false)
	}
	if pt.Favorite != nil {
		p.Favorite = *pt.Favorite
	}
	if pt.Milestones != nil {
		if p.Milestones == nil {
			p.Milestones = make(map[string][]Milestone, len(pt.Milestones))
		}
		for phaseID, ms := range pt.Milestones {
			list := CloneMilestoneList(ms)
			for i := range list {
				list[i].Recompute()
			}
			p.Milestones[phaseID] = list
		}
	}
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
