package server

import (
	"fmt"
	"net/http"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/pkg/models"
)

type messageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type prdRequest struct {
	SessionID   string `json:"session_id"`
	Description string `json:"description"`
}

type tasksRequest struct {
	SessionID   string `json:"session_id"`
	PRD         string `json:"prd"`
	NumTasks    *int   `json:"num_tasks"`
	ProjectName string `json:"project_name"`
}

type executeRequest struct {
	SessionID string            `json:"session_id"`
	Tasks     []models.ExecTask `json:"tasks"`
}

// writeAccepted reports a started run; its output follows as events.
func writeAccepted(w http.ResponseWriter, runID string) {
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "success", "run_id": runID})
}

func (s *Server) numTasks(n *int) int {
	if n == nil {
		return s.cfg.DefaultTasks
	}
	return *n
}

// sendMessage handles POST /api/send_message
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.SessionID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "Session ID and message are required")
		return
	}
	sess, ok := s.session(w, r, req.SessionID)
	if !ok {
		return
	}

	runID, err := s.runner.Chat(sess, req.Message)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeAccepted(w, runID)
}

// generatePRD handles POST /api/generate_prd
func (s *Server) generatePRD(w http.ResponseWriter, r *http.Request) {
	var req prdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.SessionID == "" || req.Description == "" {
		writeError(w, http.StatusBadRequest, "Session ID and description are required")
		return
	}
	sess, ok := s.session(w, r, req.SessionID)
	if !ok {
		return
	}

	runID, err := s.runner.GeneratePRD(sess, req.Description)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeAccepted(w, runID)
}

// generateTasks handles POST /api/generate_tasks
func (s *Server) generateTasks(w http.ResponseWriter, r *http.Request) {
	var req tasksRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.SessionID == "" || req.PRD == "" {
		writeError(w, http.StatusBadRequest, "Session ID and PRD are required")
		return
	}
	sess, ok := s.session(w, r, req.SessionID)
	if !ok {
		return
	}

	runID, err := s.runner.GenerateTasks(sess, req.PRD, s.numTasks(req.NumTasks), req.ProjectName)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeAccepted(w, runID)
}

// parsePRD handles POST /api/parse_prd. It runs the whole pipeline within
// the request.
func (s *Server) parsePRD(w http.ResponseWriter, r *http.Request) {
	var req tasksRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	n := s.numTasks(req.NumTasks)
	list, err := s.pipeline.Run(r.Context(), req.PRD, n, req.ProjectName)
	if err != nil {
		if kind := apperr.KindOf(err); kind != apperr.KindValidation {
			s.logger.Warn("parse prd failed", "kind", kind.String(), "error", err)
		}
		writeAppError(w, err)
		return
	}

	if req.SessionID != "" {
		sess, ok := s.session(w, r, req.SessionID)
		if !ok {
			return
		}
		sess.AppendMessage(models.RoleInfo, fmt.Sprintf("Generated %d tasks for %s (%d complex)",
			list.Metadata.TotalTasks, list.Metadata.ProjectName, list.Metadata.ComplexTasks))
	}

	writeSuccess(w, map[string]any{
		"tasks":    list.Tasks,
		"metadata": list.Metadata,
	})
}

// executeTasks handles POST /api/execute_tasks
func (s *Server) executeTasks(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.SessionID == "" || len(req.Tasks) == 0 {
		writeError(w, http.StatusBadRequest, "Session ID and tasks are required")
		return
	}
	sess, ok := s.session(w, r, req.SessionID)
	if !ok {
		return
	}

	runID, err := s.runner.ExecuteTasks(sess, req.Tasks)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeAccepted(w, runID)
}

// taskStatus handles GET /api/task_status. It never creates a session.
func (s *Server) taskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Session ID is required")
		return
	}
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	results, ok := sess.Results()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "in_progress"})
		return
	}
	writeSuccess(w, map[string]any{"results": results})
}
