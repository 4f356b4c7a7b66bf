package api

import (
	"net/http"

	"github.com/c360studio/launchmate/advisor"
	"github.com/c360studio/launchmate/insight"
	"github.com/c360studio/launchmate/project"
)

// OpenResponse is the reply to POST /projects/{id}/open.
type OpenResponse struct {
	// Backfill is set when opening the project started a backfill.
	Backfill *insight.Outcome `json:"backfill,omitempty"`
	Error    string           `json:"backfill_error,omitempty"`

	Insights []project.Insight `json:"insights"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if _, err := s.cached(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")

	var resp OpenResponse
	if s.trigger != nil {
		if out, ran := s.trigger.Open(r.Context(), id); ran {
			resp.Backfill = &out
			if out.Err != nil {
				resp.Error = out.Err.Error()
			}
		}
	}

	p, err := s.cached(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp.Insights = insight.Visible(p.Insights)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	p, err := s.cached(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	feed := p.Insights
	if r.URL.Query().Get("all") != "true" {
		feed = insight.Visible(feed)
	}
	if feed == nil {
		feed = []project.Insight{}
	}
	writeJSON(w, http.StatusOK, feed)
}

// PitchResponse is the reply to POST /projects/{id}/pitch.
type PitchResponse struct {
	Pitch string `json:"pitch"`
}

func (s *Server) handlePitch(w http.ResponseWriter, r *http.Request) {
	if s.advisor == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "advisor not configured"})
		return
	}
	var params advisor.PitchParams
	if !decode(w, r, &params) {
		return
	}
	p, err := s.cached(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	text, err := s.advisor.Pitch(r.Context(), p, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PitchResponse{Pitch: text})
}

// ConnectionsResponse is the reply to POST /projects/{id}/connections.
type ConnectionsResponse struct {
	Connections []advisor.Connection `json:"connections"`
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if s.advisor == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "advisor not configured"})
		return
	}
	p, err := s.cached(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	found, err := s.advisor.Connections(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConnectionsResponse{Connections: found})
}
