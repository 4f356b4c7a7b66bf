// Package storagetest holds the behaviour every storage.Gateway backend must
// share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty gateway.
type Factory func(t *testing.T) storage.Gateway

// NewProject returns an unsaved project owned by owner with one idea
// milestone of two tasks.
func NewProject(title, owner string, created time.Time) *project.Project {
	p := project.New(project.Fields{
		Title:       title,
		Description: title + " description",
		OwnerID:     owner,
		Tags:        []string{"fintech", "ai"},
	}, "idea", []project.Milestone{{
		ID:    "idea-0",
		Title: "Idea Development",
		Tasks: []project.Task{{Title: "Define problem"}, {Title: "Research market"}},
	}}, created)
	return p
}

// Run executes the shared gateway suite.
func Run(t *testing.T, newGateway Factory) {
	t.Run("CreateAndList", func(t *testing.T) { testCreateAndList(t, newGateway(t)) })
	t.Run("ListMatchesCollaborators", func(t *testing.T) { testCollaborators(t, newGateway(t)) })
	t.Run("PatchKeepsPhases", func(t *testing.T) { testPatch(t, newGateway(t)) })
	t.Run("PatchIsIdempotent", func(t *testing.T) { testPatchIdempotent(t, newGateway(t)) })
	t.Run("Insights", func(t *testing.T) { testInsights(t, newGateway(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newGateway(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newGateway(t)) })
}

func testCreateAndList(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	second, err := gw.CreateProject(ctx, NewProject("Second", "owner@example.com", base.Add(time.Minute)))
	require.NoError(t, err)
	require.NotEmpty(t, second.ID)

	first, err := gw.CreateProject(ctx, NewProject("First", "owner@example.com", base))
	require.NoError(t, err)

	_, err = gw.CreateProject(ctx, NewProject("Other", "someone@example.com", base))
	require.NoError(t, err)

	list, err := gw.ListProjects(ctx, "owner@example.com")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID, "oldest first")
	assert.Equal(t, second.ID, list[1].ID)

	got := list[0]
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, "idea", got.Stage)
	assert.Equal(t, []string{"fintech", "ai"}, got.Tags)
	require.Len(t, got.Milestones["idea"], 1)
	assert.Len(t, got.Milestones["idea"][0].Tasks, 2)
	assert.False(t, got.Milestones["idea"][0].Completed)
	assert.Empty(t, got.Insights)

	none, err := gw.ListProjects(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testCollaborators(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	p := NewProject("Shared", "owner@example.com", time.Now())
	p.Collaborators = []string{"friend@example.com"}

	created, err := gw.CreateProject(ctx, p)
	require.NoError(t, err)

	list, err := gw.ListProjects(ctx, "friend@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	require.NoError(t, gw.PatchProject(ctx, created.ID, project.Patch{Collaborators: []string{}}))
	list, err = gw.ListProjects(ctx, "friend@example.com")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testPatch(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	created, err := gw.CreateProject(ctx, NewProject("Patch", "owner@example.com", time.Now()))
	require.NoError(t, err)

	validation := []project.Milestone{{
		ID:    "validation-0",
		Title: "Market Validation",
		Tasks: []project.Task{{Title: "Interview users"}},
	}}
	err = gw.PatchProject(ctx, created.ID, project.Patch{
		Stage:      project.Ptr("validation"),
		Milestones: map[string][]project.Milestone{"validation": validation},
		Visibility: project.Ptr(project.VisibilityPublic),
		Favorite:   project.Ptr(true),
	})
	require.NoError(t, err)

	list, err := gw.ListProjects(ctx, "owner@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, "validation", got.Stage)
	assert.Equal(t, project.VisibilityPublic, got.Visibility)
	assert.True(t, got.Favorite)
	assert.True(t, got.HasPhase("idea"), "patch must not drop phases")
	require.True(t, got.HasPhase("validation"))
	assert.Equal(t, "Market Validation", got.Milestones["validation"][0].Title)
}

func testPatchIdempotent(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	created, err := gw.CreateProject(ctx, NewProject("Idem", "owner@example.com", time.Now()))
	require.NoError(t, err)

	ms := project.CloneMilestones(created.Milestones)
	ms["idea"][0].Tasks[0].Completed = true
	patch := project.Patch{Milestones: map[string][]project.Milestone{"idea": ms["idea"]}}

	require.NoError(t, gw.PatchProject(ctx, created.ID, patch))
	require.NoError(t, gw.PatchProject(ctx, created.ID, patch))

	list, err := gw.ListProjects(ctx, "owner@example.com")
	require.NoError(t, err)
	tasks := list[0].Milestones["idea"][0].Tasks
	assert.True(t, tasks[0].Completed)
	assert.False(t, tasks[1].Completed)
}

func testInsights(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	created, err := gw.CreateProject(ctx, NewProject("Feed", "owner@example.com", time.Now()))
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		in, err := gw.AppendInsight(ctx, created.ID, content)
		require.NoError(t, err)
		assert.Equal(t, content, in.Content)
		assert.False(t, in.CreatedAt.IsZero())
	}

	feed, err := gw.ListInsights(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, "one", feed[0].Content)
	assert.Equal(t, "three", feed[2].Content)

	list, err := gw.ListProjects(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.Len(t, list[0].Insights, 3, "listed projects carry their feed")
}

func testDelete(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	created, err := gw.CreateProject(ctx, NewProject("Gone", "owner@example.com", time.Now()))
	require.NoError(t, err)
	_, err = gw.AppendInsight(ctx, created.ID, "x")
	require.NoError(t, err)

	require.NoError(t, gw.DeleteProject(ctx, created.ID))

	list, err := gw.ListProjects(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = gw.ListInsights(ctx, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testNotFound(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()

	err := gw.PatchProject(ctx, "missing", project.Patch{Favorite: project.Ptr(true)})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = gw.DeleteProject(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = gw.AppendInsight(ctx, "missing", "x")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = gw.ListInsights(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
