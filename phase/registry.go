// Package phase holds the ordered founder-journey phases and the milestone
// template each phase materializes into a project when first entered.
//
// The order is data, not code: Default loads the embedded phases.yaml, and
// LoadFile or NewRegistry accept any other non-empty order.
package phase

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/c360studio/launchmate/project"
	"gopkg.in/yaml.v3"
)

//go:embed phases.yaml
var defaultPhasesYAML []byte

// Sentinel errors for registry construction and lookup.
var (
	ErrUnknownPhase   = errors.New("unknown phase")
	ErrNoPhases       = errors.New("at least one phase is required")
	ErrDuplicatePhase = errors.New("duplicate phase id")
	ErrEmptyTemplate  = errors.New("phase template has no milestones or tasks")
)

// Definition describes one phase and its default milestones.
type Definition struct {
	ID          string              `yaml:"id" json:"id"`
	Title       string              `yaml:"title" json:"title"`
	Description string              `yaml:"description" json:"description"`
	Milestones  []MilestoneTemplate `yaml:"milestones" json:"milestones"`
}

// MilestoneTemplate is the default shape of a milestone. DueIn is added to
// the materialization time to produce the milestone's due date.
type MilestoneTemplate struct {
	Title       string        `yaml:"title" json:"title"`
	Description string        `yaml:"description" json:"description"`
	DueIn       time.Duration `yaml:"due_in" json:"due_in"`
	Tasks       []string      `yaml:"tasks" json:"tasks"`
}

// Registry is an immutable ordered set of phase definitions.
type Registry struct {
	order []Definition
	index map[string]int
}

type registryFile struct {
	Phases []Definition `yaml:"phases"`
}

// NewRegistry validates defs and builds a registry in the given order.
func NewRegistry(defs []Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, ErrNoPhases
	}

	r := &Registry{
		order: make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("phase %d: id is required", i)
		}
		if _, dup := r.index[d.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePhase, d.ID)
		}
		if len(d.Milestones) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyTemplate, d.ID)
		}
		for _, m := range d.Milestones {
			if len(m.Tasks) == 0 {
				return nil, fmt.Errorf("%w: %s/%s", ErrEmptyTemplate, d.ID, m.Title)
			}
		}
		r.index[d.ID] = len(r.order)
		r.order = append(r.order, cloneDefinition(d))
	}
	return r, nil
}

// Parse builds a registry from YAML of the form `phases: [...]`.
func Parse(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse phases: %w", err)
	}
	return NewRegistry(f.Phases)
}

// LoadFile reads a phase registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phases file: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in five-phase registry.
func Default() *Registry {
	r, err := Parse(defaultPhasesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded phases.yaml is invalid: %v", err))
	}
	return r
}

// IDs returns the phase ids in order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	for i, d := range r.order {
		ids[i] = d.ID
	}
	return ids
}

// First returns the id of the first phase, where every project starts.
func (r *Registry) First() string {
	return r.order[0].ID
}

// Has reports whether id is a known phase.
func (r *Registry) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Position returns the zero-based position of id in the order.
func (r *Registry) Position(id string) (int, bool) {
	i, ok := r.index[id]
	return i, ok
}

// Next returns the phase after id. It reports false when id is the last
// phase or unknown.
func (r *Registry) Next(id string) (string, bool) {
	i, ok := r.index[id]
	if !ok || i+1 >= len(r.order) {
		return "", false
	}
	return r.order[i+1].ID, true
}

// Definition returns a copy of the phase definition for id.
func (r *Registry) Definition(id string) (Definition, bool) {
	i, ok := r.index[id]
	if !ok {
		return Definition{}, false
	}
	return cloneDefinition(r.order[i]), true
}

// Definitions returns copies of all definitions in order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.order))
	for i, d := range r.order {
		out[i] = cloneDefinition(d)
	}
	return out
}

// Materialize builds a fresh milestone list from the phase's template.
// Every call returns new slices; nothing is shared between projects.
func (r *Registry) Materialize(id string, now time.Time) ([]project.Milestone, error) {
	i, ok := r.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPhase, id)
	}

	tmpl := r.order[i].Milestones
	out := make([]project.Milestone, len(tmpl))
	for n, mt := range tmpl {
		tasks := make([]project.Task, len(mt.Tasks))
		for k, title := range mt.Tasks {
			tasks[k] = project.Task{Title: title}
		}
		out[n] = project.Milestone{
			ID:          project.MilestoneID(id, n),
			Title:       mt.Title,
			Description: mt.Description,
			DueDate:     now.Add(mt.DueIn),
			Tasks:       tasks,
		}
		out[n].Recompute()
	}
	return out, nil
}

// Timeline splits the order around stage into phases already passed, the
// current phase, and the phases still ahead.
type Timeline struct {
	Completed []Definition `json:"completed"`
	Current   Definition   `json:"current"`
	Upcoming  []Definition `json:"upcoming"`
}

// Split returns the timeline for a project at stage.
func (r *Registry) Split(stage string) (Timeline, error) {
	i, ok := r.index[stage]
	if !ok {
		return Timeline{}, fmt.Errorf("%w: %s", ErrUnknownPhase, stage)
	}
	all := r.Definitions()
	return Timeline{
		Completed: all[:i],
		Current:   all[i],
		Upcoming:  all[i+1:],
	}, nil
}

func cloneDefinition(d Definition) Definition {
	c := d
	c.Milestones = make([]MilestoneTemplate, len(d.Milestones))
	for i, m := range d.Milestones {
		c.Milestones[i] = m
		c.Milestones[i].Tasks = append([]string(nil), m.Tasks...)
	}
	return c
}
