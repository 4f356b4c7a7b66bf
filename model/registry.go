package model

import (
	"slices"
	"sync"
	"time"
)

// Registry maps capabilities to endpoint fallback chains and tracks endpoint
// health. It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	defaults     *DefaultsConfig

	health *healthState
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	Description string `json:"description"`

	// Preferred lists endpoints in order of preference.
	Preferred []string `json:"preferred"`

	// Fallback lists backup endpoints tried after every preferred one failed.
	Fallback []string `json:"fallback"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the registered provider name (gemini, anthropic, openai, ollama).
	Provider string `json:"provider"`

	// URL overrides the provider's default base URL.
	URL string `json:"url,omitempty"`

	// Model is the identifier sent to the provider.
	Model string `json:"model"`

	// MaxTokens caps the response length. Zero uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// DefaultsConfig holds default model settings.
type DefaultsConfig struct {
	// Model is the endpoint used when no capability matches.
	Model string `json:"model"`
}

// NewRegistry creates a registry from explicit maps.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaults:     &DefaultsConfig{Model: "default"},
		health:       newHealthState(DefaultHealthConfig(), time.Now),
	}
}

// NewDefaultRegistry returns the built-in registry: Gemini first, as the
// product originally shipped, with Anthropic and a local Ollama as fallbacks.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(
		map[Capability]*CapabilityConfig{
			CapabilityInsights: {
				Description: "Market updates, competitor and industry alerts",
				Preferred:   []string{"gemini-flash"},
				Fallback:    []string{"claude-haiku", "llama3.2"},
			},
			CapabilityPitch: {
				Description: "Elevator pitches and persuasive copy",
				Preferred:   []string{"gemini-pro", "claude-sonnet"},
				Fallback:    []string{"llama3.2"},
			},
			CapabilityResearch: {
				Description: "Structured lookups returned as JSON",
				Preferred:   []string{"gemini-pro"},
				Fallback:    []string{"claude-sonnet"},
			},
			CapabilityFast: {
				Description: "Quick responses, simple tasks",
				Preferred:   []string{"gemini-flash"},
				Fallback:    []string{"llama3.2"},
			},
		},
		map[string]*EndpointConfig{
			"gemini-flash": {
				Provider:  "gemini",
				Model:     "gemini-2.0-flash",
				MaxTokens: 2048,
			},
			"gemini-pro": {
				Provider:  "gemini",
				Model:     "gemini-1.5-pro",
				MaxTokens: 4096,
			},
			"claude-haiku": {
				Provider:  "anthropic",
				Model:     "claude-3-5-haiku-20241022",
				MaxTokens: 2048,
			},
			"claude-sonnet": {
				Provider:  "anthropic",
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 4096,
			},
			"llama3.2": {
				Provider: "ollama",
				URL:      "http://localhost:11434/v1",
				Model:    "llama3.2",
			},
		},
	)
	r.defaults.Model = "gemini-flash"
	return r
}

// Resolve returns the first preferred endpoint for a capability, or the
// default model.
func (r *Registry) Resolve(c Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[c]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaults.Model
}

// FallbackChain returns every endpoint for a capability in order of
// preference, without duplicates.
func (r *Registry) FallbackChain(c Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.capabilities[c]
	if !ok {
		return []string{r.defaults.Model}
	}
	chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
	for _, name := range append(slices.Clone(cfg.Preferred), cfg.Fallback...) {
		if !slices.Contains(chain, name) {
			chain = append(chain, name)
		}
	}
	return chain
}

// Endpoint returns the endpoint configuration for name, or nil.
func (r *Registry) Endpoint(name string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[name]
}

// SetCapability updates or adds a capability configuration.
func (r *Registry) SetCapability(c Capability, cfg *CapabilityConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capabilities == nil {
		r.capabilities = make(map[Capability]*CapabilityConfig)
	}
	r.capabilities[c] = cfg
}

// SetEndpoint updates or adds an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endpoints == nil {
		r.endpoints = make(map[string]*EndpointConfig)
	}
	r.endpoints[name] = cfg
}

// SetDefault sets the default model.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = &DefaultsConfig{Model: name}
}

// Capabilities returns the configured capabilities, sorted.
func (r *Registry) Capabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.capabilities))
	for c := range r.capabilities {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Endpoints returns the configured endpoint names, sorted.
func (r *Registry) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
