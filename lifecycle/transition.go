// Package lifecycle moves projects through their phases as tasks are checked
// off. ApplyToggle is the pure transition; Engine applies it to the cache and
// pushes the result to the remote store; Service is the upward API.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/launchmate/phase"
	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
)

// ErrAmbiguousMilestone is returned when a milestone is addressed by a title
// that more than one milestone in the phase carries. It is a not-found kind.
var ErrAmbiguousMilestone = fmt.Errorf("%w: ambiguous milestone title", storage.ErrNotFound)

// TaskRef addresses one task. Milestone is a milestone id, or a title when
// exactly one milestone in the phase has that title.
type TaskRef struct {
	PhaseID   string `json:"phase_id"`
	Milestone string `json:"milestone"`
	TaskIndex int    `json:"task_index"`
}

// Outcome describes what one toggle did.
type Outcome struct {
	Ref                TaskRef `json:"ref"`
	MilestoneID        string  `json:"milestone_id"`
	TaskCompleted      bool    `json:"task_completed"`
	MilestoneCompleted bool    `json:"milestone_completed"`
	PhaseCompleted     bool    `json:"phase_completed"`

	// Advanced is set when the toggle moved the project to the next phase.
	Advanced bool   `json:"advanced"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`

	// Patch is the staged remote write: the toggled phase's milestones, plus
	// the new stage and its milestones when Advanced.
	Patch project.Patch `json:"-"`
}

// ApplyToggle flips one task on p and performs at most one phase
// advancement. When the precondition checks fail p is not modified and the
// returned error is of the storage.ErrNotFound kind.
func ApplyToggle(p *project.Project, reg *phase.Registry, ref TaskRef, now time.Time) (Outcome, error) {
	ms, ok := p.Milestones[ref.PhaseID]
	if !ok {
		return Outcome{}, storage.NotFound("phase %s on project %s", ref.PhaseID, p.ID)
	}
	mi, err := resolveMilestone(ms, ref.Milestone)
	if err != nil {
		return Outcome{}, fmt.Errorf("phase %s: %w", ref.PhaseID, err)
	}
	m := &ms[mi]
	if ref.TaskIndex < 0 || ref.TaskIndex >= len(m.Tasks) {
		return Outcome{}, storage.NotFound("task %d in milestone %s (has %d)", ref.TaskIndex, m.ID, len(m.Tasks))
	}

	m.Tasks[ref.TaskIndex].Completed = !m.Tasks[ref.TaskIndex].Completed
	m.Recompute()

	out := Outcome{
		Ref:                ref,
		MilestoneID:        m.ID,
		TaskCompleted:      m.Tasks[ref.TaskIndex].Completed,
		MilestoneCompleted: m.Completed,
		PhaseCompleted:     project.AllCompleted(ms),
		Patch: project.Patch{
			Milestones: map[string][]project.Milestone{
				ref.PhaseID: project.CloneMilestoneList(ms),
			},
		},
	}

	if out.PhaseCompleted {
		if next, ok := advanceTarget(p, reg, ref.PhaseID); ok {
			materialized, err := reg.Materialize(next, now)
			if err != nil {
				// Registry guarantees next exists; undo the flip to keep p intact.
				m.Tasks[ref.TaskIndex].Completed = !m.Tasks[ref.TaskIndex].Completed
				m.Recompute()
				return Outcome{}, err
			}
			out.Advanced = true
			out.From = p.Stage
			out.To = next
			p.Stage = next
			p.Milestones[next] = materialized
			out.Patch.Stage = project.Ptr(next)
			out.Patch.Milestones[next] = project.CloneMilestoneList(materialized)
		}
	}
	return out, nil
}

// advanceTarget returns the phase to move to after phaseID completes. There
// is none when phaseID is last, when the next phase is already materialized,
// or when the project already sits at or beyond it.
func advanceTarget(p *project.Project, reg *phase.Registry, phaseID string) (string, bool) {
	next, ok := reg.Next(phaseID)
	if !ok || p.HasPhase(next) {
		return "", false
	}
	nextPos, _ := reg.Position(next)
	if cur, known := reg.Position(p.Stage); known && cur >= nextPos {
		return "", false
	}
	return next, true
}

// resolveMilestone finds a milestone by id, falling back to a unique title.
func resolveMilestone(ms []project.Milestone, key string) (int, error) {
	for i := range ms {
		if ms[i].ID == key {
			return i, nil
		}
	}
	found := -1
	for i := range ms {
		if ms[i].Title != key {
			continue
		}
		if found >= 0 {
			return -1, fmt.Errorf("%w %q", ErrAmbiguousMilestone, key)
		}
		found = i
	}
	if found < 0 {
		return -1, storage.NotFound("milestone %q", key)
	}
	return found, nil
}

// IsNotFound reports whether err means the toggle target does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
