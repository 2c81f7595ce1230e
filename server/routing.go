package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP handlers on the server mux. Every route
// goes through corsMiddleware so the dashboard can run on a different
// origin during development.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/fetch-data", s.corsMiddleware(s.HandleFetchData))           // Start a fetch job (POST)
	s.mux.HandleFunc("/api/fetch-status/", s.corsMiddleware(s.HandleFetchStatus))      // Fetch job status (GET /api/fetch-status/{id})
	s.mux.HandleFunc("/api/fetch-jobs", s.corsMiddleware(s.HandleFetchJobs))           // List fetch jobs (GET)
	s.mux.HandleFunc("/api/cancel-fetch/", s.corsMiddleware(s.HandleCancelFetch))      // Cancel a fetch job (POST /api/cancel-fetch/{id})
	s.mux.HandleFunc("/api/fetch-history", s.corsMiddleware(s.HandleFetchHistory))     // Archived terminal jobs (GET)
	s.mux.HandleFunc("/api/fetch-logging", s.corsMiddleware(s.HandleFetchLogging))     // Verbose fetch logging toggle (GET/POST)
	s.mux.HandleFunc("/api/create-profile", s.corsMiddleware(s.HandleCreateProfile))   // Create a profile (POST)
	s.mux.HandleFunc("/api/delete-profile", s.corsMiddleware(s.HandleDeleteProfile))   // Delete a profile (POST)
	s.mux.HandleFunc("/api/profiles", s.corsMiddleware(s.HandleProfiles))              // List profiles (GET)
	s.mux.HandleFunc("/api/authorize/", s.corsMiddleware(s.HandleAuthorize))           // Authorization flow (GET/POST /api/authorize/{profile})
	s.mux.HandleFunc("/api/authorize-status/", s.corsMiddleware(s.HandleAuthorizeStatus)) // Authorization job status (GET /api/authorize-status/{id})
	s.mux.HandleFunc("/api/health", s.corsMiddleware(s.HandleHealth))                  // Health and system metrics (GET)
	s.mux.HandleFunc("/ws/jobs", s.corsMiddleware(s.HandleWebSocket))                  // Live job update stream
	s.mux.HandleFunc("/profiles/", s.corsMiddleware(s.HandleProfileCSV))               // Per-profile CSV files (GET /profiles/{id}/csv/{file})
	s.mux.HandleFunc("/", s.corsMiddleware(s.HandleStatic))                            // Dashboard assets
}

// corsMiddleware adds CORS headers to HTTP responses using configured allowed origins
// Uses the same origin validation as WebSocket connections (server.allowed_origins config)
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// If origin is present and allowed by config, set CORS headers
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// originAllowed reports whether the Origin header matches one of the
// configured allowed origins. Prefix matching lets a configured origin
// cover any port on the same host during development.
func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.GetServerAllowedOrigins() {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}
