package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
	"github.com/c360studio/launchmate/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyGateway fails ListProjects while listErr is set.
type flakyGateway struct {
	*storage.Memory
	listErr error
}

func (f *flakyGateway) ListProjects(ctx context.Context, identity string) ([]*project.Project, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Memory.ListProjects(ctx, identity)
}

func seed(t *testing.T, gw storage.Gateway, titles ...string) []*project.Project {
	t.Helper()
	base := time.Now()
	var out []*project.Project
	for i, title := range titles {
		p, err := gw.CreateProject(context.Background(), storagetest.NewProject(title, "owner", base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func TestCache_LoadOverwrites(t *testing.T) {
	ctx := context.Background()
	gw := &flakyGateway{Memory: storage.NewMemory()}
	ps := seed(t, gw, "A", "B")

	c := New(gw)
	require.NoError(t, c.Load(ctx, "owner"))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "owner", c.Identity())

	require.NoError(t, gw.DeleteProject(ctx, ps[0].ID))
	require.NoError(t, c.Load(ctx, "owner"))

	list := c.List()
	require.Len(t, list, 1)
	assert.Equal(t, "B", list[0].Title)
	_, ok := c.Get(ps[0].ID)
	assert.False(t, ok, "full overwrite drops removed projects")
}

func TestCache_LoadFailureKeepsContents(t *testing.T) {
	ctx := context.Background()
	gw := &flakyGateway{Memory: storage.NewMemory()}
	seed(t, gw, "A")

	c := New(gw)
	require.NoError(t, c.Load(ctx, "owner"))

	gw.listErr = storage.Transport("list projects", errors.New("connection refused"))
	err := c.Load(ctx, "someone-else")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrTransport)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "owner", c.Identity(), "identity is only recorded on success")
}

func TestCache_Reload(t *testing.T) {
	ctx := context.Background()
	gw := &flakyGateway{Memory: storage.NewMemory()}

	c := New(gw)
	assert.ErrorIs(t, c.Reload(ctx), ErrNotLoaded)

	require.NoError(t, c.Load(ctx, "owner"))
	assert.Equal(t, 0, c.Len())

	seed(t, gw, "Later")
	require.NoError(t, c.Reload(ctx))
	assert.Equal(t, 1, c.Len())
}

func TestCache_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	gw := storage.NewMemory()
	ps := seed(t, gw, "A")

	c := New(gw)
	require.NoError(t, c.Load(ctx, "owner"))

	got, ok := c.Get(ps[0].ID)
	require.True(t, ok)
	got.Title = "mutated"
	got.Milestones["idea"][0].Tasks[0].Completed = true

	again, _ := c.Get(ps[0].ID)
	assert.Equal(t, "A", again.Title)
	assert.False(t, again.Milestones["idea"][0].Tasks[0].Completed)
}

func TestCache_ApplyLocal(t *testing.T) {
	ctx := context.Background()
	gw := storage.NewMemory()
	ps := seed(t, gw, "A")
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := New(gw, WithClock(func() time.Time { return stamp }))
	require.NoError(t, c.Load(ctx, "owner"))

	updated, err := c.ApplyLocal(ps[0].ID, project.Patch{Favorite: project.Ptr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Favorite)
	assert.Equal(t, stamp, updated.LastEdited)

	remote, err := gw.ListProjects(ctx, "owner")
	require.NoError(t, err)
	assert.False(t, remote[0].Favorite, "no remote write")

	_, err = c.ApplyLocal("missing", project.Patch{Favorite: project.Ptr(true)})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = c.ApplyLocal(ps[0].ID, project.Patch{Title: project.Ptr("")})
	assert.ErrorIs(t, err, project.ErrTitleRequired)
}

func TestCache_MutateFailureLeavesProject(t *testing.T) {
	ctx := context.Background()
	gw := storage.NewMemory()
	ps := seed(t, gw, "A")

	c := New(gw)
	require.NoError(t, c.Load(ctx, "owner"))
	before, _ := c.Get(ps[0].ID)

	boom := errors.New("boom")
	err := c.Mutate(ps[0].ID, func(p *project.Project) (bool, error) {
		p.Title = "half-applied"
		return false, boom
	})
	assert.ErrorIs(t, err, boom)

	after, _ := c.Get(ps[0].ID)
	assert.Equal(t, before, after)
}

func TestCache_InsertRemoveClose(t *testing.T) {
	ctx := context.Background()
	gw := storage.NewMemory()
	seed(t, gw, "A")

	c := New(gw)
	require.NoError(t, c.Load(ctx, "owner"))

	fresh := storagetest.NewProject("Fresh", "owner", time.Now())
	fresh.ID = "fresh"
	c.Insert(fresh)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "fresh", list[0].ID, "inserted projects go first")

	assert.True(t, c.Remove("fresh"))
	assert.False(t, c.Remove("fresh"))
	assert.Equal(t, 1, c.Len())

	c.Close()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Identity())
	assert.ErrorIs(t, c.Reload(ctx), ErrNotLoaded)
}
