// Package llm provides a provider-agnostic LLM client with retry and fallback
// support. Models are picked by capability through model.Registry.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/launchmate/model"
	"github.com/google/uuid"
)

// maxResponseSize limits the LLM response body.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// ErrNoEndpoint is returned when no endpoint could serve a capability.
var ErrNoEndpoint = errors.New("no usable endpoint")

// Completer is the part of Client that callers depend on.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client is a provider-agnostic LLM client with retry and fallback support.
type Client struct {
	registry    *model.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// Request defines an LLM completion request.
type Request struct {
	// Capability selects the model chain ("insights", "pitch", ...).
	Capability string

	Messages []Message

	// Temperature controls randomness. nil uses the endpoint default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the endpoint default.
	MaxTokens int
}

// TokenUsage reports token consumption for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the LLM completion result.
type Response struct {
	// RequestID identifies this call in logs.
	RequestID string

	Content string

	// Model is the model that actually answered.
	Model string

	Usage TokenUsage

	FinishReason string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a new LLM client with the given model registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.retryConfig.MaxAttempts < 1 {
		c.retryConfig.MaxAttempts = 1
	}

	return c
}

// Complete walks the capability's fallback chain, skipping endpoints whose
// circuit is open, and returns the first successful reply. A fatal error or
// a done ctx stops the walk.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	switch {
	case req.Capability == "":
		return nil, NewFatalError(errors.New("capability is required"))
	case len(req.Messages) == 0:
		return nil, NewFatalError(errors.New("at least one message is required"))
	}

	capability := model.ParseCapability(req.Capability)
	if capability == "" {
		capability = model.CapabilityFast
	}
	requestID := uuid.NewString()
	log := c.logger.With("request_id", requestID, "capability", req.Capability)

	var lastErr error
	for _, name := range c.registry.AvailableFallbackChain(capability) {
		ep := c.registry.Endpoint(name)
		if ep == nil {
			log.Debug("Model has no endpoint", "model", name)
			continue
		}

		resp, err := c.callEndpoint(ctx, log, name, ep, req)
		if err == nil {
			resp.RequestID = requestID
			log.Debug("LLM call completed", "model", resp.Model, "tokens", resp.Usage.TotalTokens)
			return resp, nil
		}
		lastErr = err
		if IsFatal(err) || ctx.Err() != nil {
			return nil, err
		}
		log.Warn("Endpoint failed, trying next", "model", name, "provider", ep.Provider, "error", err)
	}

	if lastErr == nil {
		return nil, fmt.Errorf("%w for capability %s", ErrNoEndpoint, req.Capability)
	}
	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// callEndpoint retries transient failures on one endpoint and records the
// result in the registry's health table. Fatal errors leave health alone.
func (c *Client) callEndpoint(ctx context.Context, log *slog.Logger, name string, ep *model.EndpointConfig, req Request) (*Response, error) {
	var err error
	for attempt := 1; ; attempt++ {
		var resp *Response
		resp, err = c.send(ctx, ep, req)
		switch {
		case err == nil:
			c.registry.MarkEndpointSuccess(name)
			return resp, nil
		case IsFatal(err):
			return nil, err
		case attempt >= c.retryConfig.MaxAttempts:
			c.registry.MarkEndpointFailure(name)
			return nil, err
		}

		wait := jitter(c.retryConfig.Backoff(attempt))
		log.Debug("Retrying endpoint", "model", name, "attempt", attempt, "wait", wait, "error", err)
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// send performs one HTTP round trip in the endpoint's wire format.
func (c *Client) send(ctx context.Context, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = ep.MaxTokens
	}
	body, err := provider.BuildRequestBody(ep.Model, req.Messages, req.Temperature, maxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BuildURL(ep.URL, ep.Model), bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("%s request: %w", ep.Provider, err))
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read %s reply: %w", ep.Provider, err))
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, data)
	}

	resp, err := provider.ParseResponse(data, ep.Model)
	if err != nil {
		// Garbled bodies from an otherwise healthy endpoint are retried.
		return nil, NewTransientError(err)
	}
	return resp, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
