// Package api exposes the project service, the insight trigger and the
// advisor over HTTP with JSON bodies.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/c360studio/launchmate/advisor"
	"github.com/c360studio/launchmate/insight"
	"github.com/c360studio/launchmate/lifecycle"
	"github.com/c360studio/launchmate/llm"
	"github.com/c360studio/launchmate/phase"
	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxRequestBodySize limits request bodies.
const maxRequestBodySize = 1 << 20 // 1 MB

// Server holds the handlers' collaborators.
type Server struct {
	svc      *lifecycle.Service
	trigger  *insight.Trigger
	advisor  *advisor.Advisor
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithAdvisor enables the pitch and connections endpoints.
func WithAdvisor(a *advisor.Advisor) Option {
	return func(s *Server) { s.advisor = a }
}

// NewServer builds the handlers. trigger may be nil, which disables
// backfill on open.
func NewServer(svc *lifecycle.Service, trigger *insight.Trigger, opts ...Option) *Server {
	s := &Server{svc: svc, trigger: trigger, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHTTPHandlers registers the handlers under prefix (for example
// "api"):
//
//	GET    <prefix>/projects?identity=
//	POST   <prefix>/projects
//	GET    <prefix>/projects/{id}
//	PATCH  <prefix>/projects/{id}
//	DELETE <prefix>/projects/{id}
//	POST   <prefix>/projects/{id}/toggle
//	POST   <prefix>/projects/{id}/favorite
//	POST   <prefix>/projects/{id}/visibility
//	POST   <prefix>/projects/{id}/collaborators
//	DELETE <prefix>/projects/{id}/collaborators/{identity}
//	POST   <prefix>/projects/{id}/open
//	GET    <prefix>/projects/{id}/insights
//	GET    <prefix>/projects/{id}/timeline
//	POST   <prefix>/projects/{id}/pitch
//	POST   <prefix>/projects/{id}/connections
//	GET    <prefix>/phases
//
// /metrics is registered at the root when a gatherer is set.
func (s *Server) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix != "/" {
		prefix += "/"
	}

	mux.HandleFunc("GET "+prefix+"projects", s.handleListProjects)
	mux.HandleFunc("POST "+prefix+"projects", s.handleAddProject)
	mux.HandleFunc("GET "+prefix+"projects/{id}", s.handleGetProject)
	mux.HandleFunc("PATCH "+prefix+"projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE "+prefix+"projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("POST "+prefix+"projects/{id}/toggle", s.handleToggleTask)
	mux.HandleFunc("POST "+prefix+"projects/{id}/favorite", s.handleToggleFavorite)
	mux.HandleFunc("POST "+prefix+"projects/{id}/visibility", s.handleToggleVisibility)
	mux.HandleFunc("POST "+prefix+"projects/{id}/collaborators", s.handleAddCollaborator)
	mux.HandleFunc("DELETE "+prefix+"projects/{id}/collaborators/{identity}", s.handleRemoveCollaborator)
	mux.HandleFunc("POST "+prefix+"projects/{id}/open", s.handleOpen)
	mux.HandleFunc("GET "+prefix+"projects/{id}/insights", s.handleInsights)
	mux.HandleFunc("GET "+prefix+"projects/{id}/timeline", s.handleTimeline)
	mux.HandleFunc("POST "+prefix+"projects/{id}/pitch", s.handlePitch)
	mux.HandleFunc("POST "+prefix+"projects/{id}/connections", s.handleConnections)
	mux.HandleFunc("GET "+prefix+"phases", s.handlePhases)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps error kinds to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, project.ErrTitleRequired),
		errors.Is(err, project.ErrOwnerRequired),
		errors.Is(err, project.ErrDescriptionRequired),
		errors.Is(err, project.ErrInvalidVisibility),
		errors.Is(err, phase.ErrUnknownPhase),
		errors.Is(err, lifecycle.ErrLifecycleField),
		errors.Is(err, advisor.ErrInvalidParams):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrTransport),
		errors.Is(err, storage.ErrMalformedResponse),
		errors.Is(err, advisor.ErrBadReply),
		llm.IsTransient(err), llm.IsFatal(err), errors.Is(err, llm.ErrNoEndpoint):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		s.logger.Warn("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decode reads a JSON body into dst, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}
