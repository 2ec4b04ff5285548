package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Sessions int    `json:"sessions"`
	Clients  int    `json:"clients"`
	Pending  int    `json:"pendingNotifications"`
	UptimeMs int64  `json:"uptimeMs,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.version,
		Sessions: len(s.sessions.List()),
		Clients:  s.clients.Count(),
	}
	if s.scheduler != nil {
		resp.Pending = len(s.scheduler.List())
	}
	if !s.startedAt.IsZero() {
		resp.UptimeMs = time.Since(s.startedAt).Milliseconds()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
