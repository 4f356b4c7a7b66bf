package model

import (
	"slices"
	"testing"
	"time"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(clock *fakeClock, cfg HealthConfig) *Registry {
	r := NewDefaultRegistry()
	r.health = newHealthState(cfg, clock.now)
	return r
}

func TestEndpointHealthTracking(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(clock, DefaultHealthConfig())

	if !r.IsEndpointAvailable("gemini-flash") {
		t.Error("expected gemini-flash to be available initially")
	}
	if r.EndpointHealth("gemini-flash") != nil {
		t.Error("expected no health info before any requests")
	}

	r.MarkEndpointSuccess("gemini-flash")

	h := r.EndpointHealth("gemini-flash")
	if h == nil {
		t.Fatal("expected health info after success")
	}
	if !h.Available || h.FailureCount != 0 {
		t.Errorf("unexpected health after success: %+v", h)
	}
	if !h.LastSuccess.Equal(clock.t) {
		t.Errorf("LastSuccess = %v, want %v", h.LastSuccess, clock.t)
	}
}

func TestCircuitBreaker(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(clock, HealthConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})

	r.MarkEndpointFailure("gemini-flash")
	if !r.IsEndpointAvailable("gemini-flash") {
		t.Error("expected endpoint available after 1 failure")
	}

	r.MarkEndpointFailure("gemini-flash")
	if r.IsEndpointAvailable("gemini-flash") {
		t.Error("expected circuit open after 2 failures")
	}
	chain := r.AvailableFallbackChain(CapabilityInsights)
	if slices.Contains(chain, "gemini-flash") {
		t.Errorf("open endpoint should be skipped, got %v", chain)
	}

	clock.advance(2 * time.Minute)
	if !r.IsEndpointAvailable("gemini-flash") {
		t.Error("expected half-open trial after recovery timeout")
	}

	r.MarkEndpointSuccess("gemini-flash")
	if h := r.EndpointHealth("gemini-flash"); h.CircuitOpen || h.FailureCount != 0 {
		t.Errorf("expected circuit closed after success, got %+v", h)
	}
}

func TestAvailableFallbackChain_AllOpen(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(clock, HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	for _, name := range r.FallbackChain(CapabilityResearch) {
		r.MarkEndpointFailure(name)
	}
	got := r.AvailableFallbackChain(CapabilityResearch)
	if !slices.Equal(got, r.FallbackChain(CapabilityResearch)) {
		t.Errorf("expected full chain when all circuits open, got %v", got)
	}

	r.ResetEndpointHealth("gemini-pro")
	if !r.IsEndpointAvailable("gemini-pro") {
		t.Error("expected reset endpoint to be available")
	}
}
