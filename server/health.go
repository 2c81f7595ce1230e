package server

import (
	"net/http"
	"time"

	"github.com/fitbaus/fitbaus/internal/version"
)

// HandleHealth handles GET /api/health
// Reports liveness, the running fetch job count the dashboard polls, and
// system metrics for the status panel.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	versionInfo := version.Get()
	s.mu.RLock()
	clientCount := len(s.clients)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Format(time.RFC3339),
		"active_jobs": s.controller.FetchJobs().RunningCount(),
		"version":     versionInfo.Version,
		"clients":     clientCount,
		"system":      s.controller.SystemMetrics(),
	})
}
