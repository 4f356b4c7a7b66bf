package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/launchmate/api"
	"github.com/c360studio/launchmate/project"
)

// Scenario drives one flow against a running API.
type Scenario interface {
	Name() string
	Description() string
	// Run executes the stages, recording each on r. It returns the first
	// failure.
	Run(ctx context.Context, c *Client, r *Result) error
}

// Result contains the outcome of one scenario. Methods are safe for
// concurrent use.
type Result struct {
	mu sync.Mutex

	ScenarioName string        `json:"scenario_name"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	Stages       []StageResult `json:"stages"`
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// NewResult starts the clock for name.
func NewResult(name string) *Result {
	return &Result{ScenarioName: name, StartTime: time.Now()}
}

// Stage runs fn and records it.
func (r *Result) Stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	sr := StageResult{Name: name, Success: err == nil, Duration: time.Since(start)}
	if err != nil {
		sr.Error = err.Error()
	}
	r.mu.Lock()
	r.Stages = append(r.Stages, sr)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// AddWarning records a non-fatal issue.
func (r *Result) AddWarning(w string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, w)
}

// Complete stamps the duration and the final status.
func (r *Result) Complete(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Duration = time.Since(r.StartTime)
	r.Success = err == nil
	if err != nil {
		r.Error = err.Error()
	}
}

// Client calls the launchmate API.
type Client struct {
	base     string
	identity string
	http     *http.Client
}

// NewClient targets base (for example http://localhost:8080) as identity.
func NewClient(base, identity string, timeout time.Duration) *Client {
	return &Client{
		base:     strings.TrimRight(base, "/") + "/api",
		identity: identity,
		http:     &http.Client{Timeout: timeout},
	}
}

// statusError is returned for unexpected status codes.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, strings.TrimSpace(e.Body))
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Load refreshes the server's view for the client identity.
func (c *Client) Load(ctx context.Context) ([]project.Project, error) {
	var out []project.Project
	err := c.do(ctx, http.MethodGet, "/projects?identity="+c.identity, nil, http.StatusOK, &out)
	return out, err
}

// Create adds a project owned by the client identity.
func (c *Client) Create(ctx context.Context, title string, tags ...string) (*project.Project, error) {
	var out project.Project
	err := c.do(ctx, http.MethodPost, "/projects", project.Fields{
		Title:       title,
		Description: "End-to-end check: " + title,
		OwnerID:     c.identity,
		Tags:        tags,
	}, http.StatusCreated, &out)
	return &out, err
}

// Delete removes a project.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+id, nil, http.StatusNoContent, nil)
}

// Toggle flips one task and waits for the remote write.
func (c *Client) Toggle(ctx context.Context, id, phaseID, milestone string, task int) (*api.CommitResponse, error) {
	var out api.CommitResponse
	err := c.do(ctx, http.MethodPost, "/projects/"+id+"/toggle", api.ToggleRequest{
		PhaseID: phaseID, Milestone: milestone, TaskIndex: project.Ptr(task), Wait: true,
	}, http.StatusOK, &out)
	return &out, err
}

// Open marks the project active, which may run a backfill.
func (c *Client) Open(ctx context.Context, id string) (*api.OpenResponse, error) {
	var out api.OpenResponse
	err := c.do(ctx, http.MethodPost, "/projects/"+id+"/open", nil, http.StatusOK, &out)
	return &out, err
}

// Pitch requests a pitch.
func (c *Client) Pitch(ctx context.Context, id string, params any) (string, error) {
	var out api.PitchResponse
	err := c.do(ctx, http.MethodPost, "/projects/"+id+"/pitch", params, http.StatusOK, &out)
	return out.Pitch, err
}

// Connections requests local contacts.
func (c *Client) Connections(ctx context.Context, id string) (*api.ConnectionsResponse, error) {
	var out api.ConnectionsResponse
	err := c.do(ctx, http.MethodPost, "/projects/"+id+"/connections", nil, http.StatusOK, &out)
	return &out, err
}

// withProject creates a scratch project, runs fn and deletes it.
func withProject(ctx context.Context, c *Client, r *Result, title string, fn func(p *project.Project) error) error {
	var p *project.Project
	if err := r.Stage("load", func() error {
		_, err := c.Load(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := r.Stage("create", func() error {
		var err error
		p, err = c.Create(ctx, title, "e2e", "fintech")
		return err
	}); err != nil {
		return err
	}
	defer func() {
		if err := c.Delete(context.WithoutCancel(ctx), p.ID); err != nil {
			r.AddWarning(fmt.Sprintf("cleanup %s: %v", p.ID, err))
		}
	}()
	return fn(p)
}

type lifecycleScenario struct{}

func (lifecycleScenario) Name() string { return "lifecycle" }
func (lifecycleScenario) Description() string {
	return "Complete every task of the first phase and expect one advancement"
}

func (lifecycleScenario) Run(ctx context.Context, c *Client, r *Result) error {
	return withProject(ctx, c, r, "E2E Lifecycle", func(p *project.Project) error {
		first := p.Stage
		ms := p.Milestones[first]
		var last *api.CommitResponse
		for _, m := range ms {
			for i := range m.Tasks {
				if err := r.Stage(fmt.Sprintf("toggle %s/%d", m.ID, i), func() error {
					resp, err := c.Toggle(ctx, p.ID, first, m.ID, i)
					if err != nil {
						return err
					}
					if !resp.Synced {
						return fmt.Errorf("remote write failed: %s", resp.SyncError)
					}
					last = resp
					return nil
				}); err != nil {
					return err
				}
			}
		}
		return r.Stage("verify advancement", func() error {
			if last == nil || last.Outcome == nil || !last.Outcome.Advanced {
				return fmt.Errorf("phase %s completed without advancing", first)
			}
			if last.Project == nil || last.Project.Stage != last.Outcome.To {
				return fmt.Errorf("project stage does not match outcome %s", last.Outcome.To)
			}
			if !last.Project.HasPhase(first) {
				return fmt.Errorf("phase %s milestones were dropped", first)
			}
			return nil
		})
	})
}

type insightsScenario struct{ min int }

func (insightsScenario) Name() string { return "insights" }
func (s insightsScenario) Description() string {
	return fmt.Sprintf("Open a fresh project and expect at least %d insights once", s.min)
}

func (s insightsScenario) Run(ctx context.Context, c *Client, r *Result) error {
	return withProject(ctx, c, r, "E2E Insights", func(p *project.Project) error {
		if err := r.Stage("open", func() error {
			resp, err := c.Open(ctx, p.ID)
			if err != nil {
				return err
			}
			if resp.Backfill == nil {
				return fmt.Errorf("opening a new project did not start a backfill")
			}
			if resp.Error != "" {
				return fmt.Errorf("backfill aborted: %s", resp.Error)
			}
			if resp.Backfill.Count < s.min {
				return fmt.Errorf("backfill stopped at %d insights", resp.Backfill.Count)
			}
			if resp.Backfill.GenerationFailures > 0 {
				r.AddWarning(fmt.Sprintf("%d generations failed", resp.Backfill.GenerationFailures))
			}
			return nil
		}); err != nil {
			return err
		}
		return r.Stage("reopen", func() error {
			resp, err := c.Open(ctx, p.ID)
			if err != nil {
				return err
			}
			if resp.Backfill != nil {
				return fmt.Errorf("reopening the active project ran another backfill")
			}
			return nil
		})
	})
}

type advisorScenario struct{}

func (advisorScenario) Name() string        { return "advisor" }
func (advisorScenario) Description() string { return "Request a pitch and local connections" }

func (advisorScenario) Run(ctx context.Context, c *Client, r *Result) error {
	return withProject(ctx, c, r, "E2E Advisor", func(p *project.Project) error {
		if err := r.Stage("pitch", func() error {
			text, err := c.Pitch(ctx, p.ID, map[string]any{
				"audience": "angel investors", "venue": "demo day", "goal": "raise a pre-seed round", "duration": 2,
			})
			if err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("empty pitch")
			}
			return nil
		}); err != nil {
			return err
		}
		return r.Stage("connections", func() error {
			resp, err := c.Connections(ctx, p.ID)
			if err != nil {
				return err
			}
			if len(resp.Connections) == 0 {
				return fmt.Errorf("no connections returned")
			}
			return nil
		})
	})
}

func allScenarios(minInsights int) []Scenario {
	return []Scenario{lifecycleScenario{}, insightsScenario{min: minInsights}, advisorScenario{}}
}
