package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
)

// ComponentName is the registry name of the HTTP API component.
const ComponentName = "launchmate-api"

var componentSchema = component.GenerateConfigSchema(reflect.TypeOf(ComponentConfig{}))

// ComponentConfig configures the HTTP API component.
type ComponentConfig struct {
	// Addr is the listen address, for example ":8080".
	Addr string `json:"addr" schema:"type:string,description:HTTP listen address,category:basic"`

	// Prefix is the path prefix of the API routes.
	Prefix string `json:"prefix,omitempty" schema:"type:string,description:Route prefix,category:advanced"`
}

// Validate checks the configuration.
func (c *ComponentConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	return nil
}

// Component serves a Server over HTTP with a start/stop lifecycle and
// health reporting.
type Component struct {
	config ComponentConfig
	server *Server
	logger *slog.Logger

	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	mu        sync.RWMutex
	startTime time.Time
	http      *http.Server
	addr      net.Addr
	serveErr  chan error
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// RegistryInterface is the part of the component registry Register needs.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register adds the API component to registry. Instances built by the
// factory serve srv.
func Register(registry RegistryInterface, srv *Server) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	if srv == nil {
		return fmt.Errorf("server cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name: ComponentName,
		Factory: func(raw json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
			c, err := NewComponent(raw, deps, srv)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Schema:      componentSchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "launchmate",
		Description: "Project lifecycle and insight HTTP API",
		Version:     "0.1.0",
	})
}

// NewComponent builds the component from raw JSON config.
func NewComponent(raw json.RawMessage, deps component.Dependencies, srv *Server) (*Component, error) {
	var cfg ComponentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "api"
	}
	logger := deps.GetLogger()
	if logger == nil {
		logger = slog.Default()
	}
	return &Component{config: cfg, server: srv, logger: logger}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized API component", "addr", c.config.Addr, "prefix", c.config.Prefix)
	return nil
}

// Start binds the listen address and serves in the background. Bind errors
// are returned; later serve errors are reported by Err.
func (c *Component) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		current := c.state.Load()
		if current == stateRunning || current == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", current)
	}
	defer func() {
		if c.state.Load() == stateStarting {
			c.state.Store(stateStopped)
		}
	}()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", c.config.Addr, err)
	}

	mux := http.NewServeMux()
	c.server.RegisterHTTPHandlers(c.config.Prefix, mux)
	mux.HandleFunc("GET /healthz", c.handleHealth)

	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("API server stopped", "error", err)
			serveErr <- err
		}
		close(serveErr)
	}()

	c.mu.Lock()
	c.http = hs
	c.addr = ln.Addr()
	c.serveErr = serveErr
	c.startTime = time.Now()
	c.mu.Unlock()

	c.state.Store(stateRunning)
	c.logger.Info("API listening", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the HTTP server down, waiting up to timeout for open requests.
func (c *Component) Stop(timeout time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		current := c.state.Load()
		if current == stateStopped || current == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", current)
	}
	defer c.state.Store(stateStopped)

	c.mu.RLock()
	hs := c.http
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := hs.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown API server: %w", err)
	}
	c.logger.Info("API stopped")
	return nil
}

// Addr returns the bound address while running.
func (c *Component) Addr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addr
}

// Err delivers a serve failure, and is closed when serving ends. It is nil
// before Start.
func (c *Component) Err() <-chan error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serveErr
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        ComponentName,
		Type:        "processor",
		Description: "Project lifecycle and insight HTTP API",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; the component has no NATS inputs.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns an empty port list.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return componentSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	state := c.state.Load()

	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	var uptime time.Duration
	if state == stateRunning {
		uptime = time.Since(startTime)
	}
	return component.HealthStatus{
		Healthy:   state == stateRunning,
		LastCheck: time.Now(),
		Uptime:    uptime,
		Status:    status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Healthy bool   `json:"healthy"`
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
}

func (c *Component) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := c.Health()
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		Healthy: h.Healthy,
		Status:  h.Status,
		Uptime:  h.Uptime.Truncate(time.Second).String(),
	})
}
