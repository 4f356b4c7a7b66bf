package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/c360studio/launchmate/cache"
	"github.com/c360studio/launchmate/phase"
	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGateway wraps Memory and can fail patches, optionally holding them
// until released.
type scriptedGateway struct {
	*storage.Memory

	mu       sync.Mutex
	patchErr error
	patches  []project.Patch
	hold     chan struct{}
}

func (g *scriptedGateway) PatchProject(ctx context.Context, id string, patch project.Patch) error {
	g.mu.Lock()
	hold, err := g.hold, g.patchErr
	g.patches = append(g.patches, patch)
	g.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return storage.Transport("patch project", ctx.Err())
		}
	}
	if err != nil {
		return err
	}
	return g.Memory.PatchProject(ctx, id, patch)
}

func (g *scriptedGateway) failPatches(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.patchErr = err
}

type fixture struct {
	gw      *scriptedGateway
	cache   *cache.Cache
	svc     *Service
	metrics *Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := &scriptedGateway{Memory: storage.NewMemory()}
	c := cache.New(gw, cache.WithClock(func() time.Time { return testNow }))
	m := NewMetrics(prometheus.NewRegistry())
	svc := NewService(c, gw, phase.Default(), WithMetrics(m), WithClock(func() time.Time { return testNow }))
	require.NoError(t, c.Load(context.Background(), "owner"))
	return &fixture{gw: gw, cache: c, svc: svc, metrics: m}
}

func (f *fixture) add(t *testing.T) *project.Project {
	t.Helper()
	p, err := f.svc.AddProject(context.Background(), project.Fields{
		Title:       "Acme",
		Description: "Payments for pets",
		OwnerID:     "owner",
		Tags:        []string{"fintech"},
	})
	require.NoError(t, err)
	return p
}

func waitCommit(t *testing.T, c *Commit) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func TestService_AddThenLoadRoundTrip(t *testing.T) {
	f := newFixture(t)
	created := f.add(t)

	assert.Equal(t, "idea", created.Stage)
	require.Len(t, created.Milestones["idea"], 1)
	assert.Len(t, created.Milestones["idea"][0].Tasks, 4)
	assert.Empty(t, created.Insights)

	first := f.svc.Projects()
	require.Len(t, first, 1)
	assert.Equal(t, created.ID, first[0].ID)

	loaded, err := f.svc.LoadProjects(context.Background(), "owner")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, created.Title, loaded[0].Title)
	assert.Equal(t, created.Milestones, loaded[0].Milestones)
	assert.Equal(t, created.Tags, loaded[0].Tags)
}

func TestService_AddValidates(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddProject(context.Background(), project.Fields{Title: "x", OwnerID: "owner"})
	assert.ErrorIs(t, err, project.ErrDescriptionRequired)
	assert.Empty(t, f.svc.Projects())
}

func TestService_AddFailureLeavesCache(t *testing.T) {
	f := newFixture(t)
	failing := &failingCreate{Gateway: f.gw}
	svc := NewService(f.cache, failing, phase.Default())

	_, err := svc.AddProject(context.Background(), project.Fields{Title: "x", Description: "d", OwnerID: "owner"})
	assert.ErrorIs(t, err, storage.ErrTransport)
	assert.Empty(t, f.svc.Projects())
}

type failingCreate struct{ storage.Gateway }

func (failingCreate) CreateProject(context.Context, *project.Project) (*project.Project, error) {
	return nil, storage.Transport("create project", errors.New("unreachable"))
}

func TestService_ToggleAdvancesAndPushes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.add(t)

	// Pushes may land in any order, so wait for each before the next toggle.
	var last *Commit
	for i := 0; i < 4; i++ {
		c, err := f.svc.ToggleTask(ctx, p.ID, "idea", "idea-0", i)
		require.NoError(t, err)
		require.NoError(t, waitCommit(t, c))
		last = c
	}
	require.NoError(t, f.svc.Flush(ctx))
	assert.True(t, last.Outcome.Advanced)

	cached, ok := f.svc.Project(p.ID)
	require.True(t, ok)
	assert.Equal(t, "validation", cached.Stage)
	assert.Equal(t, testNow, cached.LastEdited)

	_, err := f.svc.LoadProjects(ctx, "owner")
	require.NoError(t, err)
	remote, _ := f.svc.Project(p.ID)
	assert.Equal(t, "validation", remote.Stage)
	assert.True(t, remote.HasPhase("idea"))
	assert.Len(t, remote.Milestones["validation"][0].Tasks, 4)
	assert.True(t, remote.Milestones["idea"][0].Completed)

	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.Toggles.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Advances.WithLabelValues("validation")))
}

func TestService_ToggleNotFoundIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.add(t)
	before, _ := f.svc.Project(p.ID)

	_, err := f.svc.ToggleTask(ctx, p.ID, "idea", "idea-0", 9)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.svc.ToggleTask(ctx, "missing", "idea", "idea-0", 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	after, _ := f.svc.Project(p.ID)
	assert.Equal(t, before, after)
	assert.Empty(t, f.gw.patches, "nothing pushed")
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Toggles.WithLabelValues("not_found")))
}

func TestService_FailedPushKeepsLocalState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.add(t)
	f.gw.failPatches(storage.Transport("patch project", errors.New("connection reset")))

	c, err := f.svc.ToggleTask(ctx, p.ID, "idea", "idea-0", 0)
	require.NoError(t, err)

	err = waitCommit(t, c)
	assert.ErrorIs(t, err, storage.ErrTransport)
	assert.ErrorIs(t, c.Err(), storage.ErrTransport)

	cached, _ := f.svc.Project(p.ID)
	assert.True(t, cached.Milestones["idea"][0].Tasks[0].Completed, "local change survives the failed push")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PushFailures.WithLabelValues("toggle_task", "transport")))

	// The next load is the only correction.
	f.gw.failPatches(nil)
	_, err = f.svc.LoadProjects(ctx, "owner")
	require.NoError(t, err)
	cached, _ = f.svc.Project(p.ID)
	assert.False(t, cached.Milestones["idea"][0].Tasks[0].Completed)
}

func TestService_CommitIsPendingUntilPushLands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.add(t)

	hold := make(chan struct{})
	f.gw.mu.Lock()
	f.gw.hold = hold
	f.gw.mu.Unlock()

	c, err := f.svc.ToggleTask(ctx, p.ID, "idea", "idea-0", 0)
	require.NoError(t, err)

	cached, _ := f.svc.Project(p.ID)
	assert.True(t, cached.Milestones["idea"][0].Tasks[0].Completed, "local state is applied before the push")

	select {
	case <-c.Done():
		t.Fatal("commit resolved before the push was released")
	default:
	}
	assert.NoError(t, c.Err())

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(short), context.DeadlineExceeded)

	close(hold)
	require.NoError(t, waitCommit(t, c))
}

func TestService_RepeatedPatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.add(t)

	c, err := f.svc.ToggleTask(ctx, p.ID, "idea", "idea-0", 1)
	require.NoError(t, err)
	require.NoError(t, waitCommit(t, c))

	// Replaying the staged write leaves the remote record unchanged.
	require.NoError(t, f.gw.Memory.PatchProject(ctx, p.ID, c.Outcome.Patch))

	list, err := f.gw.Memory.ListProjects(ctx, "owner")
	require.NoError(t, err)
	tasks := list[0].Milestones["idea"][0].Tasks
	assert.True(t, tasks[1].Completed)
	assert.False(t, tasks[0].Completed)
}

func TestService_UpdateIsRemoteFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.add(t)

	f.gw.failPatches(storage.Transport("patch project", errors.New("down")))
	_, err := f.svc.UpdateProject(ctx, p.ID, project.Patch{Title: project.Ptr("Renamed")})
	assert.ErrorIs(t, err, storage.ErrTransport)
	cached, _ := f.svc.Project(p.ID)
	assert.Equal(t, "Acme", cached.Title, "cache untouched when the store rejects")

	f.gw.failPatches(nil)
	updated, err := f.svc.UpdateProject(ctx, p.ID, project.Patch{Title: project.Ptr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

}

func TestService_UpdateRejectsLifecycleFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.add(t)

	_, err := f.svc.UpdateProject(ctx, p.ID, project.Patch{Stage: project.Ptr("mvp")})
	assert.ErrorIs(t, err, ErrLifecycleField)

	_, err = f.svc.UpdateProject(ctx, p.ID, project.Patch{
		Title:      project.Ptr("Renamed"),
		Milestones: map[string][]project.Milestone{"idea": {}},
	})
	assert.ErrorIs(t, err, ErrLifecycleField)

	f.gw.mu.Lock()
	assert.Empty(t, f.gw.patches, "rejected patches never reach the store")
	f.gw.mu.Unlock()

	cached, _ := f.svc.Project(p.ID)
	assert.Equal(t, "idea", cached.Stage)
	assert.Equal(t, "Acme", cached.Title)
	require.Len(t, cached.Milestones["idea"], len(p.Milestones["idea"]))

	// The project still advances through toggles.
	for i := range cached.Milestones["idea"][0].Tasks {
		c, err := f.svc.ToggleTask(ctx, p.ID, "idea", "idea-0", i)
		require.NoError(t, err)
		require.NoError(t, waitCommit(t, c))
	}
	cached, _ = f.svc.Project(p.ID)
	assert.Equal(t, "validation", cached.Stage)
	assert.True(t, cached.HasPhase("validation"))
}

func TestService_DeleteIsRemoteFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.add(t)

	err := f.svc.DeleteProject(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, f.svc.DeleteProject(ctx, p.ID))
	_, ok := f.svc.Project(p.ID)
	assert.False(t, ok)
}

func TestService_FavoriteVisibilityCollaborators(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.add(t)

	c, err := f.svc.ToggleFavorite(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, waitCommit(t, c))

	c, err = f.svc.ToggleVisibility(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, waitCommit(t, c))

	c, err = f.svc.AddCollaborator(ctx, p.ID, "friend")
	require.NoError(t, err)
	require.NoError(t, waitCommit(t, c))

	c, err = f.svc.AddCollaborator(ctx, p.ID, "friend")
	require.NoError(t, err)
	assert.NoError(t, c.Err(), "duplicate add resolves immediately")
	select {
	case <-c.Done():
	default:
		t.Fatal("no-op commit should already be done")
	}

	friendView, err := f.gw.Memory.ListProjects(ctx, "friend")
	require.NoError(t, err)
	require.Len(t, friendView, 1)
	assert.True(t, friendView[0].Favorite)
	assert.Equal(t, project.VisibilityPublic, friendView[0].Visibility)

	c, err = f.svc.RemoveCollaborator(ctx, p.ID, "friend")
	require.NoError(t, err)
	require.NoError(t, waitCommit(t, c))

	friendView, err = f.gw.Memory.ListProjects(ctx, "friend")
	require.NoError(t, err)
	assert.Empty(t, friendView)
}
