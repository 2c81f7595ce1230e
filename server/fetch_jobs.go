package server

import (
	"encoding/json"
	"net/http"

	"github.com/fitbaus/fitbaus/errors"
	"github.com/fitbaus/fitbaus/fetch/async"
	"github.com/fitbaus/fitbaus/logger"
)

const (
	// Default and max limits for job history queries
	defaultJobLimit = 50
	maxJobLimit     = 200
)

// HandleFetchData handles POST /api/fetch-data
// Starts a background fetch job for the profile named in the request body.
func (s *Server) HandleFetchData(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if s.getState() != ServerStateRunning {
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}

	// A missing or malformed body means the default profile. Precondition
	// checks inside the job report unknown profiles, so the endpoint always
	// answers with a job id.
	var req struct {
		Profile string `json:"profile"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	job := s.controller.StartFetch(req.Profile)

	s.logger.Infow("Fetch requested",
		logger.FieldJobID, job.ID,
		logger.FieldProfile, req.Profile,
		"remote", r.RemoteAddr)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "Fetch operation started",
	})
}

// HandleFetchStatus handles GET /api/fetch-status/{id}
func (s *Server) HandleFetchStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	pathParts := extractPathParts(r.URL.Path, "/api/fetch-status/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing job ID")
		return
	}

	job, ok := s.controller.FetchJobs().Get(pathParts[0])
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// HandleFetchJobs handles GET /api/fetch-jobs
// Returns every fetch job still in the registry, oldest first.
func (s *Server) HandleFetchJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	writeJSON(w, http.StatusOK, s.controller.FetchJobs().List())
}

// HandleCancelFetch handles POST /api/cancel-fetch/{id}
func (s *Server) HandleCancelFetch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	pathParts := extractPathParts(r.URL.Path, "/api/cancel-fetch/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing job ID")
		return
	}
	jobID := pathParts[0]

	if err := s.controller.CancelFetch(jobID); err != nil {
		switch {
		case errors.Is(err, errors.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "Job not found")
		case errors.Is(err, errors.ErrJobNotCancellable):
			writeError(w, http.StatusBadRequest, "Job cannot be cancelled")
		default:
			handleError(w, s.logger, err, "failed to cancel fetch job")
		}
		return
	}

	s.logger.Infow("Fetch cancelled via API", logger.FieldJobID, shortID(jobID))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Fetch operation cancelled",
	})
}

// HandleFetchHistory handles GET /api/fetch-history
// Archived terminal jobs, newest first. Supports kind, profile and limit
// query parameters.
func (s *Server) HandleFetchHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "Job history not available")
		return
	}

	kind := async.JobKind(r.URL.Query().Get("kind"))
	profileName := r.URL.Query().Get("profile")
	limit := parseIntQueryParam(r, "limit", defaultJobLimit, 1, maxJobLimit)

	jobs, err := s.archive.ListArchive(kind, profileName, limit)
	if err != nil {
		handleError(w, s.logger, err, "failed to list job history")
		return
	}

	counts, err := s.archive.CountByStatus()
	if err != nil {
		s.logger.Warnw("Failed to count archived jobs", logger.FieldError, err)
		counts = map[async.JobStatus]int{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"counts": counts,
	})
}

// HandleFetchLogging handles GET and POST /api/fetch-logging
// GET reports whether verbose fetch logging is on; POST flips it and
// persists the choice.
func (s *Server) HandleFetchLogging(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		enabled := s.controller.VerboseFetchLogging()
		message := "Verbose fetch logging is disabled"
		if enabled {
			message = "Verbose fetch logging is enabled"
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"verbose_logging": enabled,
			"message":         message,
		})

	case http.MethodPost:
		req := struct {
			Enabled bool `json:"enabled"`
		}{Enabled: true}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		s.controller.SetVerboseFetchLogging(req.Enabled)

		message := "Verbose fetch logging disabled"
		if req.Enabled {
			message = "Verbose fetch logging enabled"
		}
		s.logger.Infow("Verbose fetch logging toggled", "enabled", req.Enabled)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":         true,
			"verbose_logging": req.Enabled,
			"message":         message,
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
