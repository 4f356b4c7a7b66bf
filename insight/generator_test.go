package insight

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/launchmate/llm"
	"github.com/c360studio/launchmate/llm/testutil"
	"github.com/c360studio/launchmate/model"
	"github.com/c360studio/launchmate/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompt(t *testing.T) {
	got := Prompt(Subject{Title: "Ledger", Tags: []string{"fintech", "ai"}})
	want := "\nGive 3 current startup updates related to these tags: fintech, ai.\n" +
		"Include: industry insights, potential competitors, or market alerts.\n" +
		"Title: Ledger\n"
	assert.Equal(t, want, got)
}

func TestLLMGenerator(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{
			{Content: "  1. Open banking rules land in March.\n", Model: "gemini-2.0-flash"},
			{Content: "   ", Model: "gemini-2.0-flash"},
		},
		Errs: map[int]error{2: llm.NewTransientError(errors.New("503"))},
	}
	g := NewLLMGenerator(mock, "")
	subject := Subject{Title: "Ledger", Tags: []string{"fintech"}}

	content, err := g.Generate(context.Background(), subject)
	require.NoError(t, err)
	assert.Equal(t, "1. Open banking rules land in March.", content)

	_, err = g.Generate(context.Background(), subject)
	assert.ErrorIs(t, err, ErrGeneration, "blank reply")

	_, err = g.Generate(context.Background(), subject)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.True(t, llm.IsTransient(err))

	reqs := mock.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, string(model.CapabilityInsights), reqs[0].Capability)
	assert.Equal(t, Prompt(subject), reqs[0].Messages[0].Content)
}

func TestVisible(t *testing.T) {
	feed := []project.Insight{
		{Content: "Rates are rising."},
		{Content: FailureSentinel},
		{Content: "Error: Failed to fetch updates for fintech"},
		{Content: "A competitor raised a seed round."},
	}
	got := Visible(feed)
	require.Len(t, got, 2)
	assert.Equal(t, "Rates are rising.", got[0].Content)
	assert.Equal(t, "A competitor raised a seed round.", got[1].Content)
	assert.True(t, IsFailure(FailureSentinel))
	assert.Len(t, feed, 4, "input untouched")
}
