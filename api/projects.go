package api

import (
	"net/http"
	"strings"

	"github.com/c360studio/launchmate/lifecycle"
	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(r.URL.Query().Get("identity"))
	if identity == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "identity is required"})
		return
	}
	projects, err := s.svc.LoadProjects(r.Context(), identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleAddProject(w http.ResponseWriter, r *http.Request) {
	var f project.Fields
	if !decode(w, r, &f) {
		return
	}
	created, err := s.svc.AddProject(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.cached(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateRequest is the body of PATCH /projects/{id}. Stage and milestones
// only change through task toggles.
type UpdateRequest struct {
	Title          *string             `json:"title,omitempty"`
	Description    *string             `json:"description,omitempty"`
	Problem        *string             `json:"problem,omitempty"`
	TargetAudience *string             `json:"target_audience,omitempty"`
	Tags           []string            `json:"tags,omitempty"`
	Visibility     *project.Visibility `json:"visibility,omitempty"`
	Collaborators  []string            `json:"collaborators,omitempty"`
	Favorite       *bool               `json:"favorite,omitempty"`
}

func (u UpdateRequest) patch() project.Patch {
	return project.Patch{
		Title:          u.Title,
		Description:    u.Description,
		Problem:        u.Problem,
		TargetAudience: u.TargetAudience,
		Tags:           u.Tags,
		Visibility:     u.Visibility,
		Collaborators:  u.Collaborators,
		Favorite:       u.Favorite,
	}
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	updated, err := s.svc.UpdateProject(r.Context(), id, req.patch())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if updated == nil {
		// Stored, but not among the loaded projects.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteProject(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleRequest is the body of POST /projects/{id}/toggle.
type ToggleRequest struct {
	PhaseID   string `json:"phase_id"`
	Milestone string `json:"milestone"`
	TaskIndex *int   `json:"task_index"`

	// Wait holds the reply until the remote write finished.
	Wait bool `json:"wait"`
}

// CommitResponse reports a local-first change.
type CommitResponse struct {
	Outcome *lifecycle.Outcome `json:"outcome,omitempty"`
	Project *project.Project   `json:"project,omitempty"`

	// Synced is true once the remote store accepted the change.
	Synced    bool   `json:"synced"`
	SyncError string `json:"sync_error,omitempty"`
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TaskIndex == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "task_index is required"})
		return
	}
	id := r.PathValue("id")
	commit, err := s.svc.ToggleTask(r.Context(), id, req.PhaseID, req.Milestone, *req.TaskIndex)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := s.commitResponse(r, id, commit, req.Wait)
	resp.Outcome = &commit.Outcome
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	commit, err := s.svc.ToggleFavorite(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.commitResponse(r, id, commit, wantsWait(r)))
}

func (s *Server) handleToggleVisibility(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	commit, err := s.svc.ToggleVisibility(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.commitResponse(r, id, commit, wantsWait(r)))
}

// CollaboratorRequest is the body of POST /projects/{id}/collaborators.
type CollaboratorRequest struct {
	Identity string `json:"identity"`
}

func (s *Server) handleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	var req CollaboratorRequest
	if !decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	commit, err := s.svc.AddCollaborator(r.Context(), id, req.Identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.commitResponse(r, id, commit, wantsWait(r)))
}

func (s *Server) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	commit, err := s.svc.RemoveCollaborator(r.Context(), id, r.PathValue("identity"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.commitResponse(r, id, commit, wantsWait(r)))
}

func (s *Server) commitResponse(r *http.Request, id string, commit *lifecycle.Commit, wait bool) CommitResponse {
	var resp CommitResponse
	if wait {
		if err := commit.Wait(r.Context()); err != nil {
			resp.SyncError = err.Error()
		} else {
			resp.Synced = true
		}
	} else {
		select {
		case <-commit.Done():
			resp.Synced = commit.Err() == nil
		default:
		}
	}
	if p, ok := s.svc.Project(id); ok {
		resp.Project = p
	}
	return resp
}

func wantsWait(r *http.Request) bool {
	v := r.URL.Query().Get("wait")
	return v == "1" || v == "true"
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	p, err := s.cached(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tl, err := s.svc.Registry().Split(p.Stage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

func (s *Server) handlePhases(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Registry().Definitions())
}

// cached returns the loaded project named in the path.
func (s *Server) cached(r *http.Request) (*project.Project, error) {
	id := r.PathValue("id")
	p, ok := s.svc.Project(id)
	if !ok {
		return nil, storage.NotFound("project %s", id)
	}
	return p, nil
}
