package http

import (
	"encoding/json"
	"net/http"

	"interview-coach/pkg/errors"
	"interview-coach/pkg/session"

	"github.com/sirupsen/logrus"
)

// SessionHandler serves the read-only session REST API
type SessionHandler struct {
	logger   *logrus.Logger
	sessions *session.Manager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(logger *logrus.Logger, sessions *session.Manager) *SessionHandler {
	return &SessionHandler{
		logger:   logger,
		sessions: sessions,
	}
}

// RegisterHandlers registers all session-related handlers with the HTTP server
func (h *SessionHandler) RegisterHandlers(server *Server) {
	server.RegisterHandler("GET /api/sessions", h.handleSessionStats)
	server.RegisterHandler("GET /api/sessions/{id}", h.handleSessionStatus)
	server.RegisterHandler("GET /api/sessions/{id}/summary", h.handleSessionSummary)
}

func (h *SessionHandler) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		errors.WriteError(w, errors.NewNotFound("session manager not available"))
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.GetStats())
}

func (h *SessionHandler) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	runner, err := h.sessions.GetSession(sessionID)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	status, err := runner.Status()
	if err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).Debug("Status requested for stopped session")
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *SessionHandler) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	summary, err := h.sessions.Summary(sessionID)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
