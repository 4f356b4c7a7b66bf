package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/launchmate/cache"
	"github.com/c360studio/launchmate/phase"
	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
)

// ErrLifecycleField is returned by UpdateProject for a patch that sets the
// stage or milestones.
var ErrLifecycleField = errors.New("field is managed by task toggles")

// Service is the upward interface for project management. Creates, updates
// and deletes are remote-first: the cache only changes after the store
// accepted the write. Toggles are local-first and return a Commit.
type Service struct {
	cache    *cache.Cache
	gw       storage.Gateway
	registry *phase.Registry
	engine   *Engine
}

// NewService builds the service and its engine. opts configure the engine.
func NewService(c *cache.Cache, gw storage.Gateway, reg *phase.Registry, opts ...Option) *Service {
	return &Service{
		cache:    c,
		gw:       gw,
		registry: reg,
		engine:   NewEngine(c, gw, reg, opts...),
	}
}

// Registry returns the phase order the service uses.
func (s *Service) Registry() *phase.Registry {
	return s.registry
}

// LoadProjects replaces the cache with the projects visible to identity.
func (s *Service) LoadProjects(ctx context.Context, identity string) ([]*project.Project, error) {
	if err := s.cache.Load(ctx, identity); err != nil {
		return nil, err
	}
	return s.cache.List(), nil
}

// Projects returns the cached projects.
func (s *Service) Projects() []*project.Project {
	return s.cache.List()
}

// Project returns one cached project.
func (s *Service) Project(id string) (*project.Project, bool) {
	return s.cache.Get(id)
}

// AddProject creates a project at the first phase with that phase's
// milestones materialized, stores it remotely, and puts it at the front of
// the cache.
func (s *Service) AddProject(ctx context.Context, f project.Fields) (*project.Project, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	now := s.engine.now()
	first := s.registry.First()
	initial, err := s.registry.Materialize(first, now)
	if err != nil {
		return nil, err
	}

	created, err := s.gw.CreateProject(ctx, project.New(f, first, initial, now))
	if err != nil {
		s.engine.metrics.Pushes.WithLabelValues("create_project", "error").Inc()
		return nil, fmt.Errorf("create project: %w", err)
	}
	s.engine.metrics.Pushes.WithLabelValues("create_project", "ok").Inc()

	s.cache.Insert(created)
	s.engine.logger.Info("Project created", "project_id", created.ID, "title", created.Title)
	return created.Clone(), nil
}

// UpdateProject writes patch remotely and, once accepted, to the cache. It
// returns the updated cached copy, or nil when the project is not cached.
func (s *Service) UpdateProject(ctx context.Context, id string, patch project.Patch) (*project.Project, error) {
	if err := s.validatePatch(patch); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		if p, ok := s.cache.Get(id); ok {
			return p, nil
		}
		return nil, storage.NotFound("project %s", id)
	}

	if err := s.gw.PatchProject(ctx, id, patch); err != nil {
		s.engine.metrics.Pushes.WithLabelValues("update_project", "error").Inc()
		return nil, fmt.Errorf("update project %s: %w", id, err)
	}
	s.engine.metrics.Pushes.WithLabelValues("update_project", "ok").Inc()

	updated, err := s.cache.ApplyLocal(id, patch)
	if err != nil {
		// Stored remotely but not cached for this identity; the next load
		// picks it up if it becomes visible.
		s.engine.logger.Debug("Updated project not in cache", "project_id", id)
		return nil, nil
	}
	return updated, nil
}

// DeleteProject removes a project remotely and then from the cache.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if err := s.gw.DeleteProject(ctx, id); err != nil {
		s.engine.metrics.Pushes.WithLabelValues("delete_project", "error").Inc()
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	s.engine.metrics.Pushes.WithLabelValues("delete_project", "ok").Inc()
	s.cache.Remove(id)
	s.engine.logger.Info("Project deleted", "project_id", id)
	return nil
}

// ToggleTask flips one task; see Engine.ToggleTask.
func (s *Service) ToggleTask(ctx context.Context, projectID, phaseID, milestone string, taskIndex int) (*Commit, error) {
	return s.engine.ToggleTask(ctx, projectID, phaseID, milestone, taskIndex)
}

// ToggleFavorite flips the favorite flag locally and pushes it.
func (s *Service) ToggleFavorite(ctx context.Context, id string) (*Commit, error) {
	return s.localFirst(ctx, "toggle_favorite", id, func(p *project.Project) (project.Patch, bool) {
		return project.Patch{Favorite: project.Ptr(!p.Favorite)}, true
	})
}

// ToggleVisibility flips between public and private locally and pushes it.
func (s *Service) ToggleVisibility(ctx context.Context, id string) (*Commit, error) {
	return s.localFirst(ctx, "toggle_visibility", id, func(p *project.Project) (project.Patch, bool) {
		return project.Patch{Visibility: project.Ptr(p.Visibility.Toggle())}, true
	})
}

// AddCollaborator shares the project with identity.
func (s *Service) AddCollaborator(ctx context.Context, id, identity string) (*Commit, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, project.ErrOwnerRequired
	}
	return s.localFirst(ctx, "add_collaborator", id, func(p *project.Project) (project.Patch, bool) {
		if p.OwnerID == identity || p.IsMember(identity) {
			return project.Patch{}, false
		}
		next := append(append([]string(nil), p.Collaborators...), identity)
		return project.Patch{Collaborators: next}, true
	})
}

// RemoveCollaborator stops sharing the project with identity.
func (s *Service) RemoveCollaborator(ctx context.Context, id, identity string) (*Commit, error) {
	identity = strings.TrimSpace(identity)
	return s.localFirst(ctx, "remove_collaborator", id, func(p *project.Project) (project.Patch, bool) {
		next := make([]string, 0, len(p.Collaborators))
		for _, c := range p.Collaborators {
			if c != identity {
				next = append(next, c)
			}
		}
		if len(next) == len(p.Collaborators) {
			return project.Patch{}, false
		}
		return project.Patch{Collaborators: next}, true
	})
}

// Flush waits for background remote writes.
func (s *Service) Flush(ctx context.Context) error {
	return s.engine.Flush(ctx)
}

// localFirst computes a patch from the cached project, applies it under the
// cache lock and pushes it in the background. A build func reporting no
// change yields an already resolved commit.
func (s *Service) localFirst(ctx context.Context, op, id string, build func(*project.Project) (project.Patch, bool)) (*Commit, error) {
	var patch project.Patch
	changed := false
	err := s.cache.Mutate(id, func(p *project.Project) (bool, error) {
		patch, changed = build(p)
		if changed {
			p.Apply(patch)
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return resolved(Outcome{}, nil), nil
	}

	commit := newCommit(Outcome{Patch: patch})
	s.engine.push(ctx, op, id, patch, commit)
	return commit, nil
}

// validatePatch rejects stage and milestone writes; those only change
// through ToggleTask.
func (s *Service) validatePatch(patch project.Patch) error {
	if patch.Stage != nil {
		return fmt.Errorf("%w: stage", ErrLifecycleField)
	}
	if patch.Milestones != nil {
		return fmt.Errorf("%w: milestones", ErrLifecycleField)
	}
	return patch.Validate()
}
