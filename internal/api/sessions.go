package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shouni/go-storyboard-kit/internal/prompt"
	"github.com/shouni/go-storyboard-kit/internal/session"
)

type createStyleSessionRequest struct {
	ProjectID  string              `json:"projectId"`
	BaseStyle  string              `json:"baseStyle"`
	StyleImage *session.StyleImage `json:"styleImage"`
}

// handleCreateStyleSession はセッションを無条件に作り直します。
// POST /api/create-style-session
func (s *Server) handleCreateStyleSession(w http.ResponseWriter, r *http.Request) {
	var req createStyleSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "Project ID required")
		return
	}

	baseStyle := req.BaseStyle
	if baseStyle == "" {
		baseStyle = prompt.DefaultStyle
	}

	s.sessions.Create(req.ProjectID, baseStyle, req.StyleImage)

	writeJSON(w, http.StatusOK, map[string]string{
		"sessionId": req.ProjectID,
		"status":    "created",
	})
}

// handleGetStyleSession は現在のセッション状態を返します。
// GET /api/style-session/{projectId}
func (s *Server) handleGetStyleSession(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	sess, ok := s.sessions.Get(projectID)
	if !ok {
		writeError(w, http.StatusNotFound, "Style session not found")
		return
	}

	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleDeleteStyleSession はセッションを破棄します。存在しなくても成功です。
// DELETE /api/style-session/{projectId}
func (s *Server) handleDeleteStyleSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Delete(chi.URLParam(r, "projectId"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
