package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/c360studio/launchmate/cache"
	"github.com/c360studio/launchmate/lifecycle"
	"github.com/c360studio/launchmate/phase"
	"github.com/c360studio/launchmate/storage"
	"github.com/c360studio/semstreams/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRegistry struct {
	configs []component.RegistrationConfig
}

func (r *recordingRegistry) RegisterWithConfig(cfg component.RegistrationConfig) error {
	r.configs = append(r.configs, cfg)
	return nil
}

func newTestServer() *Server {
	gw := storage.NewMemory()
	svc := lifecycle.NewService(cache.New(gw), gw, phase.Default())
	return NewServer(svc, nil)
}

func TestRegister(t *testing.T) {
	assert.Error(t, Register(nil, newTestServer()))
	assert.Error(t, Register(&recordingRegistry{}, nil))

	reg := &recordingRegistry{}
	require.NoError(t, Register(reg, newTestServer()))
	require.Len(t, reg.configs, 1)

	cfg := reg.configs[0]
	assert.Equal(t, ComponentName, cfg.Name)
	assert.Equal(t, "http", cfg.Protocol)
	assert.Equal(t, "processor", cfg.Type)

	comp, err := cfg.Factory(json.RawMessage(`{"addr":"127.0.0.1:0"}`), component.Dependencies{Logger: slog.Default()})
	require.NoError(t, err)
	assert.Equal(t, ComponentName, comp.Meta().Name)
	assert.Empty(t, comp.InputPorts())
	assert.Empty(t, comp.OutputPorts())
	assert.False(t, comp.Health().Healthy, "not started")
}

func TestNewComponent_Config(t *testing.T) {
	deps := component.Dependencies{Logger: slog.Default()}

	_, err := NewComponent(json.RawMessage(`{invalid`), deps, newTestServer())
	assert.Error(t, err)

	_, err = NewComponent(json.RawMessage(`{}`), deps, newTestServer())
	assert.ErrorContains(t, err, "addr is required")

	c, err := NewComponent(json.RawMessage(`{"addr":":0"}`), deps, newTestServer())
	require.NoError(t, err)
	assert.Equal(t, "api", c.config.Prefix)
}

func TestComponent_Lifecycle(t *testing.T) {
	c, err := NewComponent(json.RawMessage(`{"addr":"127.0.0.1:0"}`),
		component.Dependencies{Logger: slog.Default()}, newTestServer())
	require.NoError(t, err)
	require.NoError(t, c.Initialize())

	require.NoError(t, c.Start(context.Background()))
	assert.Error(t, c.Start(context.Background()), "double start")

	h := c.Health()
	assert.True(t, h.Healthy)
	assert.Equal(t, "running", h.Status)

	base := "http://" + c.Addr().String()
	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Healthy)
	assert.Equal(t, "running", body.Status)

	resp, err = http.Get(base + "/api/phases")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, c.Stop(time.Second))
	assert.False(t, c.Health().Healthy)
	assert.Equal(t, "stopped", c.Health().Status)
	assert.NoError(t, c.Stop(time.Second), "stop is idempotent")

	select {
	case _, failed := <-c.Err():
		assert.False(t, failed, "clean shutdown reports no error")
	case <-time.After(time.Second):
		t.Fatal("serve loop did not end")
	}
}

func TestComponent_StartFailsOnBusyAddr(t *testing.T) {
	deps := component.Dependencies{Logger: slog.Default()}
	first, err := NewComponent(json.RawMessage(`{"addr":"127.0.0.1:0"}`), deps, newTestServer())
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop(time.Second)

	raw, _ := json.Marshal(ComponentConfig{Addr: first.Addr().String()})
	second, err := NewComponent(raw, deps, newTestServer())
	require.NoError(t, err)
	assert.Error(t, second.Start(context.Background()))
	assert.Equal(t, "stopped", second.Health().Status)
}
