// Package storage defines the remote sync gateway for projects and insights
// and provides the in-memory and NATS JetStream KV backends.
package storage

import (
	"context"
	"sort"

	"github.com/c360studio/launchmate/project"
)

// Gateway is the persistence service holding the canonical project records.
// Every call is one-shot; callers never retry.
type Gateway interface {
	// CreateProject stores a new project and returns it with its assigned id.
	CreateProject(ctx context.Context, p *project.Project) (*project.Project, error)

	// PatchProject writes the fields set in patch. Milestone maps carry the
	// full desired list per phase, so repeated patches are idempotent.
	PatchProject(ctx context.Context, id string, patch project.Patch) error

	// DeleteProject removes a project and its insights.
	DeleteProject(ctx context.Context, id string) error

	// ListProjects returns projects owned by or shared with identity, oldest
	// first.
	ListProjects(ctx context.Context, identity string) ([]*project.Project, error)

	// AppendInsight adds one insight record to the project's feed.
	AppendInsight(ctx context.Context, id, content string) (project.Insight, error)

	// ListInsights returns the project's canonical insight feed.
	ListInsights(ctx context.Context, id string) ([]project.Insight, error)
}

// SortByCreated orders projects oldest first, breaking ties by id.
func SortByCreated(ps []*project.Project) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}
