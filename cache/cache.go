// Package cache holds the local shadow of the projects visible to the current
// identity. The remote store is canonical; the cache is replaced wholesale on
// every load and mutated in place by local edits.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
)

// ErrNotLoaded is returned by Reload before any successful Load.
var ErrNotLoaded = errors.New("cache not loaded")

// Cache is safe for concurrent use. Readers get deep copies.
type Cache struct {
	gw     storage.Gateway
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	identity string
	loaded   bool
	order    []string
	byID     map[string]*project.Project
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source used for LastEdited stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns an empty cache reading from gw.
func New(gw storage.Gateway, opts ...Option) *Cache {
	c := &Cache{
		gw:     gw,
		logger: slog.Default(),
		now:    time.Now,
		byID:   make(map[string]*project.Project),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches every project visible to identity and replaces the cache
// contents. On failure the previous contents are kept and the error is
// returned with its kind intact.
func (c *Cache) Load(ctx context.Context, identity string) error {
	projects, err := c.gw.ListProjects(ctx, identity)
	if err != nil {
		c.logger.Warn("Project load failed", "identity", identity, "error", err)
		return fmt.Errorf("load projects: %w", err)
	}

	order := make([]string, 0, len(projects))
	byID := make(map[string]*project.Project, len(projects))
	for _, p := range projects {
		if p == nil || p.ID == "" {
			continue
		}
		if _, dup := byID[p.ID]; dup {
			continue
		}
		cp := p.Clone()
		cp.Normalize()
		order = append(order, cp.ID)
		byID[cp.ID] = cp
	}

	c.mu.Lock()
	c.identity = identity
	c.loaded = true
	c.order = order
	c.byID = byID
	c.mu.Unlock()

	c.logger.Debug("Projects loaded", "identity", identity, "count", len(order))
	return nil
}

// Reload repeats Load for the last loaded identity.
func (c *Cache) Reload(ctx context.Context) error {
	c.mu.RLock()
	identity, loaded := c.identity, c.loaded
	c.mu.RUnlock()
	if !loaded {
		return fmt.Errorf("reload projects: %w", ErrNotLoaded)
	}
	return c.Load(ctx, identity)
}

// Identity returns the identity of the last successful load.
func (c *Cache) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Get returns a copy of the cached project.
func (c *Cache) Get(id string) (*project.Project, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// List returns copies of all cached projects in load order.
func (c *Cache) List() []*project.Project {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*project.Project, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Clone())
	}
	return out
}

// Len returns the number of cached projects.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// ApplyLocal writes patch onto the cached project and stamps LastEdited.
// Nothing is sent to the remote store.
func (c *Cache) ApplyLocal(id string, patch project.Patch) (*project.Project, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byID[id]
	if !ok {
		return nil, storage.NotFound("project %s", id)
	}
	p.Apply(patch)
	p.LastEdited = c.now()
	return p.Clone(), nil
}

// Mutate runs fn on the cached project while holding the cache lock, so
// mutations are applied one at a time in call order. When fn reports a
// change, LastEdited is stamped. fn works on a copy that only replaces the
// cached project when fn succeeds and reports a change.
func (c *Cache) Mutate(id string, fn func(p *project.Project) (changed bool, err error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byID[id]
	if !ok {
		return storage.NotFound("project %s", id)
	}
	work := p.Clone()
	changed, err := fn(work)
	if err != nil {
		return err
	}
	if changed {
		work.LastEdited = c.now()
		c.byID[id] = work
	}
	return nil
}

// Insert places p at the front of the cache, replacing any entry with the
// same id.
func (c *Cache) Insert(p *project.Project) {
	cp := p.Clone()
	cp.Normalize()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[cp.ID]; exists {
		c.order = removeID(c.order, cp.ID)
	}
	c.order = append([]string{cp.ID}, c.order...)
	c.byID[cp.ID] = cp
}

// Replace overwrites the cached copy of p if present and reports whether it
// was.
func (c *Cache) Replace(p *project.Project) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[p.ID]; !ok {
		return false
	}
	cp := p.Clone()
	cp.Normalize()
	c.byID[cp.ID] = cp
	return true
}

// Remove drops id from the cache and reports whether it was present.
func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; !ok {
		return false
	}
	delete(c.byID, id)
	c.order = removeID(c.order, id)
	return true
}

// Close clears contents and identity.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = ""
	c.loaded = false
	c.order = nil
	c.byID = make(map[string]*project.Project)
}

func removeID(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
