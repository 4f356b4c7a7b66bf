package project

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMilestones() []Milestone {
	return []Milestone{
		{
			ID:    "idea-0",
			Title: "Idea Development",
			Tasks: []Task{
				{Title: "Define core problem and solution"},
				{Title: "Research market size and potential"},
			},
		},
	}
}

func TestMilestone_Recompute(t *testing.T) {
	tests := []struct {
		name  string
		tasks []Task
		want  bool
	}{
		{"no tasks", nil, true},
		{"all done", []Task{{Completed: true}, {Completed: true}}, true},
		{"one open", []Task{{Completed: true}, {Completed: false}}, false},
		{"none done", []Task{{}, {}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Milestone{Tasks: tt.tasks, Completed: !tt.want}
			assert.Equal(t, tt.want, m.Recompute())
			assert.Equal(t, tt.want, m.Completed)
		})
	}
}

func TestMilestone_Progress(t *testing.T) {
	m := Milestone{Tasks: []Task{{Completed: true}, {}, {Completed: true}}}
	done, total := m.Progress()
	assert.Equal(t, 2, done)
	assert.Equal(t, 3, total)
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" fintech", "AI", "ai", "", "fintech", "B2B "})
	assert.Equal(t, []string{"fintech", "AI", "B2B"}, got)
}

func TestProject_Clone_IsDeep(t *testing.T) {
	p := New(Fields{
		Title:       "Acme",
		Description: "desc",
		OwnerID:     "owner@example.com",
		Tags:        []string{"a"},
	}, "idea", sampleMilestones(), time.Now())

	c := p.Clone()
	c.Tags[0] = "changed"
	c.Milestones["idea"][0].Tasks[0].Completed = true
	c.Milestones["validation"] = nil

	assert.Equal(t, "a", p.Tags[0])
	assert.False(t, p.Milestones["idea"][0].Tasks[0].Completed)
	assert.False(t, p.HasPhase("validation"))
}

func TestNew_DoesNotShareTemplate(t *testing.T) {
	tmpl := sampleMilestones()
	p := New(Fields{Title: "x", Description: "d", OwnerID: "o"}, "idea", tmpl, time.Now())

	p.Milestones["idea"][0].Tasks[0].Completed = true
	assert.False(t, tmpl[0].Tasks[0].Completed)
	assert.Equal(t, VisibilityPrivate, p.Visibility)
	assert.Empty(t, p.Insights)
}

func TestFields_Validate(t *testing.T) {
	valid := Fields{Title: "t", Description: "d", OwnerID: "o"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*Fields)
		want   error
	}{
		{"missing title", func(f *Fields) { f.Title = "  " }, ErrTitleRequired},
		{"missing owner", func(f *Fields) { f.OwnerID = "" }, ErrOwnerRequired},
		{"missing description", func(f *Fields) { f.Description = "" }, ErrDescriptionRequired},
		{"bad visibility", func(f *Fields) { f.Visibility = "secret" }, ErrInvalidVisibility},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.modify(&f)
			assert.ErrorIs(t, f.Validate(), tt.want)
		})
	}
}

func TestProject_Apply(t *testing.T) {
	p := New(Fields{Title: "x", Description: "d", OwnerID: "o"}, "idea", sampleMilestones(), time.Now())

	done := sampleMilestones()
	done[0].Tasks[0].Completed = true
	done[0].Tasks[1].Completed = true

	p.Apply(Patch{
		Title:      Ptr(" New title "),
		Visibility: Ptr(VisibilityPublic),
		Stage:      Ptr("validation"),
		Milestones: map[string][]Milestone{"validation": {{ID: "validation-0", Title: "Market Validation"}}},
		Favorite:   Ptr(true),
	})

	assert.Equal(t, "New title", p.Title)
	assert.Equal(t, VisibilityPublic, p.Visibility)
	assert.Equal(t, "validation", p.Stage)
	assert.True(t, p.Favorite)
	assert.True(t, p.HasPhase("idea"), "patch must not drop materialized phases")
	assert.True(t, p.HasPhase("validation"))

	p.Apply(Patch{Milestones: map[string][]Milestone{"idea": done}})
	assert.True(t, p.Milestones["idea"][0].Completed, "completion is recomputed on apply")
}

func TestPatch_FieldsAndEmpty(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())

	pt := Patch{Stage: Ptr("mvp"), Milestones: map[string][]Milestone{}}
	assert.False(t, pt.IsEmpty())
	assert.Equal(t, []string{"stage", "milestones"}, pt.Fields())
}

func TestProject_Normalize(t *testing.T) {
	p := &Project{
		Tags: []string{"x", "X"},
		Milestones: map[string][]Milestone{
			"idea": {{Title: "a", Tasks: []Task{{Completed: true}}}},
		},
	}
	p.Normalize()

	assert.Equal(t, VisibilityPrivate, p.Visibility)
	assert.Equal(t, []string{"x"}, p.Tags)
	assert.Equal(t, "idea-0", p.Milestones["idea"][0].ID)
	assert.True(t, p.Milestones["idea"][0].Completed)
	assert.NotNil(t, p.Insights)
}

func TestProject_IsMember(t *testing.T) {
	p := &Project{OwnerID: "owner", Collaborators: []string{"friend"}}
	assert.True(t, p.IsMember("owner"))
	assert.True(t, p.IsMember("friend"))
	assert.False(t, p.IsMember("stranger"))
	assert.False(t, p.IsMember(""))
}
