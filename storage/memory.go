package storage

import (
	"context"
	"sync"
	"time"

	"github.com/c360studio/launchmate/project"
	"github.com/google/uuid"
)

// Memory is an in-process Gateway. It is the default backend for tests and
// for running without any external store.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]*project.Project
	now      func() time.Time
}

// NewMemory returns an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		projects: make(map[string]*project.Project),
		now:      time.Now,
	}
}

// CreateProject implements Gateway.
func (m *Memory) CreateProject(_ context.Context, p *project.Project) (*project.Project, error) {
	stored := p.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now()
	}
	stored.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.projects[stored.ID]; exists {
		return nil, Transport("create project", errDuplicateID(stored.ID))
	}
	m.projects[stored.ID] = stored
	return stored.Clone(), nil
}

// PatchProject implements Gateway.
func (m *Memory) PatchProject(_ context.Context, id string, patch project.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return NotFound("project %s", id)
	}
	p.Apply(patch)
	p.LastEdited = m.now()
	return nil
}

// DeleteProject implements Gateway.
func (m *Memory) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return NotFound("project %s", id)
	}
	delete(m.projects, id)
	return nil
}

// ListProjects implements Gateway.
func (m *Memory) ListProjects(_ context.Context, identity string) ([]*project.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*project.Project, 0, len(m.projects))
	for _, p := range m.projects {
		if p.IsMember(identity) {
			out = append(out, p.Clone())
		}
	}
	SortByCreated(out)
	return out, nil
}

// AppendInsight implements Gateway.
func (m *Memory) AppendInsight(_ context.Context, id, content string) (project.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return project.Insight{}, NotFound("project %s", id)
	}
	in := project.Insight{Content: content, CreatedAt: m.now()}
	p.Insights = append(p.Insights, in)
	return in, nil
}

// ListInsights implements Gateway.
func (m *Memory) ListInsights(_ context.Context, id string) ([]project.Insight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, NotFound("project %s", id)
	}
	out := make([]project.Insight, len(p.Insights))
	copy(out, p.Insights)
	return out, nil
}

type errDuplicateID string

func (e errDuplicateID) Error() string {
	return "duplicate project id " + string(e)
}
