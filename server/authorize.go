package server

import (
	"fmt"
	"net/http"

	"github.com/fitbaus/fitbaus/errors"
	"github.com/fitbaus/fitbaus/logger"
	"github.com/fitbaus/fitbaus/profile"
)

// HandleAuthorize handles GET and POST /api/authorize/{profile}
// GET reports the recommended flow mode and the authorization URL. POST
// starts a background authorization job that opens a browser and captures
// the OAuth callback.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	pathParts := extractPathParts(r.URL.Path, "/api/authorize/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing profile name")
		return
	}
	profileName := pathParts[0]

	// Both methods need the client id: GET to build the auth URL, POST so
	// a profile without credentials fails before a job is queued.
	creds, err := s.profiles.ClientCredentials(profileName)
	if err != nil {
		if errors.Is(err, errors.ErrProfileNotFound) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Client credentials not found for profile %s", profileName))
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start or query authorization: %v", err))
		return
	}
	if creds.ClientID == "" {
		writeError(w, http.StatusBadRequest, "Client ID missing in client.json")
		return
	}

	redirectURI := s.cfg.Authorize.RedirectURI
	authURL := profile.BuildAuthURL(creds.ClientID, redirectURI)

	if r.Method == http.MethodGet {
		mode := profile.FlowMode(redirectURI, s.cfg.Authorize.SSLCertFile, s.cfg.Authorize.SSLKeyFile)
		message := "Background authorization supported."
		if mode == profile.ModeManual {
			message = "HTTPS localhost redirect without certs: use manual flow."
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"mode":         mode,
			"auth_url":     authURL,
			"redirect_uri": redirectURI,
			"message":      message,
		})
		return
	}

	if s.getState() != ServerStateRunning {
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}

	job := s.controller.StartAuthorize(profileName)

	s.logger.Infow("Authorization requested",
		logger.FieldJobID, job.ID,
		logger.FieldProfile, profileName,
		"remote", r.RemoteAddr)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": fmt.Sprintf("Authorization started for profile: %s", profileName),
	})
}

// HandleAuthorizeStatus handles GET /api/authorize-status/{id}
func (s *Server) HandleAuthorizeStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	pathParts := extractPathParts(r.URL.Path, "/api/authorize-status/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing job ID")
		return
	}

	job, ok := s.controller.AuthJobs().Get(pathParts[0])
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}
