package server

import (
	"net/http"
	"strings"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/session"
)

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type filesRequest struct {
	SessionID string   `json:"session_id"`
	Files     []string `json:"files"`
}

type webPageRequest struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type undoRequest struct {
	SessionID  string `json:"session_id"`
	CommitHash string `json:"commit_hash"`
}

// session returns the session for id, creating it on first use. On failure
// the error response has been written.
func (s *Server) session(w http.ResponseWriter, r *http.Request, id string) (*session.Session, bool) {
	sess, err := s.store.GetOrCreate(r.Context(), id)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindValidation {
			s.logger.Error("session unavailable", "session_id", id, "error", err)
		}
		writeAppError(w, err)
		return nil, false
	}
	return sess, true
}

// initSession handles POST /api/init
func (s *Server) initSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	sess, ok := s.session(w, r, req.SessionID)
	if !ok {
		return
	}
	writeSuccess(w, map[string]any{
		"messages": sess.Messages(),
		"files":    orEmpty(sess.InitialFiles()),
	})
}

// getFiles handles GET /api/get_files
func (s *Server) getFiles(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r, r.URL.Query().Get("session_id"))
	if !ok {
		return
	}
	ws := sess.Workspace()
	all, err := ws.AllFiles(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, map[string]any{
		"all_files":    orEmpty(all),
		"inchat_files": orEmpty(ws.InChatFiles()),
	})
}

// addFiles handles POST /api/add_files
func (s *Server) addFiles(w http.ResponseWriter, r *http.Request) {
	var req filesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	sess, ok := s.session(w, r, req.SessionID)
	if !ok {
		return
	}
	added, err := sess.AddFiles(req.Files)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, map[string]any{"added_files": added})
}

// removeFiles handles POST /api/remove_files
func (s *Server) removeFiles(w http.ResponseWriter, r *http.Request) {
	var req filesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	sess, ok := s.session(w, r, req.SessionID)
	if !ok {
		return
	}
	writeSuccess(w, map[string]any{"removed_files": sess.RemoveFiles(req.Files)})
}

// addWebPage handles POST /api/add_web_page
func (s *Server) addWebPage(w http.ResponseWriter, r *http.Request) {
	var req webPageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.SessionID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "Session ID and URL are required")
		return
	}
	sess, ok := s.session(w, r, req.SessionID)
	if !ok {
		return
	}

	text, err := s.scraper.Scrape(r.Context(), req.URL)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			writeAppError(w, err)
			return
		}
		s.logger.Warn("scrape failed", "url", req.URL, "error", err)
		text = ""
	}
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusNotFound, "No web content found for "+req.URL)
		return
	}

	writeSuccess(w, map[string]any{"content": sess.AddWebPage(req.URL, text)})
}

// undoCommit handles POST /api/undo_commit
func (s *Server) undoCommit(w http.ResponseWriter, r *http.Request) {
	var req undoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.SessionID == "" || req.CommitHash == "" {
		writeError(w, http.StatusBadRequest, "Session ID and commit hash are required")
		return
	}
	sess, ok := s.session(w, r, req.SessionID)
	if !ok {
		return
	}

	report, err := sess.Undo(r.Context(), req.CommitHash)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, map[string]any{"message": report})
}

// clearHistory handles POST /api/clear_history
func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	sess, ok := s.session(w, r, req.SessionID)
	if !ok {
		return
	}
	sess.ClearHistory()
	writeSuccess(w, nil)
}
