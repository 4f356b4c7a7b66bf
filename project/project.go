// Package project defines the founder project record and its phase,
// milestone, task and insight sub-records.
package project

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Visibility controls who can see a project.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// IsValid reports whether v is a known visibility.
func (v Visibility) IsValid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Toggle returns the opposite visibility. Unknown values become public,
// matching the private default flipping outward.
func (v Visibility) Toggle() Visibility {
	if v == VisibilityPublic {
		return VisibilityPrivate
	}
	return VisibilityPublic
}

// Validation errors for project fields.
var (
	ErrTitleRequired       = errors.New("title is required")
	ErrOwnerRequired       = errors.New("owner is required")
	ErrDescriptionRequired = errors.New("description is required")
	ErrInvalidVisibility   = errors.New("invalid visibility")
)

// Project is a founder's project as stored remotely and shadowed locally.
type Project struct {
	ID             string     `json:"id" bson:"_id"`
	Title          string     `json:"title" bson:"title"`
	Description    string     `json:"description" bson:"description"`
	Problem        string     `json:"problem" bson:"problem"`
	TargetAudience string     `json:"target_audience" bson:"target_audience"`
	Tags           []string   `json:"tags" bson:"tags"`
	OwnerID        string     `json:"owner_id" bson:"owner_id"`
	Visibility     Visibility `json:"visibility" bson:"visibility"`
	Stage          string     `json:"stage" bson:"stage"`
	Collaborators  []string   `json:"collaborators" bson:"collaborators"`
	Favorite       bool       `json:"favorite" bson:"favorite"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
	LastEdited     time.Time  `json:"last_edited" bson:"last_edited"`

	// Milestones maps a phase id to that phase's milestones. Keys are only
	// ever added.
	Milestones map[string][]Milestone `json:"milestones" bson:"milestones"`

	// Insights is append-only from the engine's point of view.
	Insights []Insight `json:"insights" bson:"insights"`
}

// Milestone is a named checklist within a phase.
type Milestone struct {
	// ID is stable within the phase's list. Titles are not unique.
	ID          string    `json:"id" bson:"id"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	DueDate     time.Time `json:"due_date" bson:"due_date"`
	Tasks       []Task    `json:"tasks" bson:"tasks"`

	// Completed is derived from Tasks; see Recompute.
	Completed bool `json:"completed" bson:"completed"`
}

// Task is a single checklist item.
type Task struct {
	Title     string `json:"title" bson:"title"`
	Completed bool   `json:"completed" bson:"completed"`
}

// Insight is a generated text record attached to a project's feed.
type Insight struct {
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Recompute sets Completed to the logical AND of the task states and returns
// the new value. A milestone without tasks counts as completed.
func (m *Milestone) Recompute() bool {
	done := true
	for _, t := range m.Tasks {
		if !t.Completed {
			done = false
			break
		}
	}
	m.Completed = done
	return done
}

// Progress returns the number of completed tasks and the total.
func (m Milestone) Progress() (done, total int) {
	for _, t := range m.Tasks {
		if t.Completed {
			done++
		}
	}
	return done, len(m.Tasks)
}

// AllCompleted reports whether every milestone in the list is completed.
func AllCompleted(ms []Milestone) bool {
	for i := range ms {
		if !ms[i].Completed {
			return false
		}
	}
	return true
}

// HasPhase reports whether the phase's milestone list has been materialized.
func (p *Project) HasPhase(phaseID string) bool {
	if p.Milestones == nil {
		return false
	}
	_, ok := p.Milestones[phaseID]
	return ok
}

// IsMember reports whether identity owns or collaborates on the project.
func (p *Project) IsMember(identity string) bool {
	if identity == "" {
		return false
	}
	if p.OwnerID == identity {
		return true
	}
	for _, c := range p.Collaborators {
		if c == identity {
			return true
		}
	}
	return false
}

// Normalize restores derived state after decoding a record: milestone
// completion flags, missing milestone ids, deduplicated tags and
// collaborators, and the private visibility default.
func (p *Project) Normalize() {
	if p.Visibility == "" {
		p.Visibility = VisibilityPrivate
	}
	p.Tags = NormalizeTags(p.Tags)
	p.Collaborators = dedupe(p.Collaborators, false)
	if p.Milestones == nil {
		p.Milestones = make(map[string][]Milestone)
	}
	for phaseID, ms := range p.Milestones {
		for i := range ms {
			if ms[i].ID == "" {
				ms[i].ID = MilestoneID(phaseID, i)
			}
			if ms[i].Tasks == nil {
				ms[i].Tasks = []Task{}
			}
			ms[i].Recompute()
		}
	}
	if p.Insights == nil {
		p.Insights = []Insight{}
	}
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	c.Tags = cloneStrings(p.Tags)
	c.Collaborators = cloneStrings(p.Collaborators)
	c.Milestones = CloneMilestones(p.Milestones)
	if p.Insights != nil {
		c.Insights = make([]Insight, len(p.Insights))
		copy(c.Insights, p.Insights)
	}
	return &c
}

// CloneMilestones deep-copies a phase → milestones map.
func CloneMilestones(src map[string][]Milestone) map[string][]Milestone {
	if src == nil {
		return nil
	}
	dst := make(map[string][]Milestone, len(src))
	for phaseID, ms := range src {
		dst[phaseID] = CloneMilestoneList(ms)
	}
	return dst
}

// CloneMilestoneList deep-copies a milestone list.
func CloneMilestoneList(ms []Milestone) []Milestone {
	if ms == nil {
		return nil
	}
	out := make([]Milestone, len(ms))
	for i, m := range ms {
		out[i] = m
		out[i].Tasks = make([]Task, len(m.Tasks))
		copy(out[i].Tasks, m.Tasks)
	}
	return out
}

// MilestoneID builds the stable id for the n-th milestone of a phase.
func MilestoneID(phaseID string, n int) string {
	return phaseID + "-" + strconv.Itoa(n)
}

// NormalizeTags trims tags, drops empties and removes case-insensitive
// duplicates while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	return dedupe(tags, true)
}

func dedupe(values []string, foldCase bool) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := v
		if foldCase {
			key = strings.ToLower(v)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
