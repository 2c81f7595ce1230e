package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fitbaus/fitbaus/errors"
	"github.com/fitbaus/fitbaus/logger"
	"github.com/fitbaus/fitbaus/profile"
)

// HandleCreateProfile handles POST /api/create-profile
// Creates the profile directory layout and stores the API credentials.
func (s *Server) HandleCreateProfile(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		ProfileName  string `json:"profileName"`
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	name := strings.TrimSpace(req.ProfileName)
	clientID := strings.TrimSpace(req.ClientID)
	clientSecret := strings.TrimSpace(req.ClientSecret)

	if name == "" || clientID == "" || clientSecret == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	if err := s.profiles.Create(name, clientID, clientSecret); err != nil {
		switch {
		case errors.Is(err, errors.ErrInvalidProfileName):
			writeError(w, http.StatusBadRequest, "Profile name can only contain letters, numbers, hyphens, and underscores")
		case errors.Is(err, errors.ErrProfileExists):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Profile %q already exists", name))
		default:
			writeWrappedError(w, s.logger, err, "Failed to create profile", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     fmt.Sprintf("Profile %q created successfully", name),
		"profileName": name,
	})
}

// HandleDeleteProfile handles POST /api/delete-profile
// Cancels the profile's active jobs, then removes its data through the
// reset helper script.
func (s *Server) HandleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		ProfileName string `json:"profileName"`
	}
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	name := strings.TrimSpace(req.ProfileName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Profile name is required")
		return
	}
	if !profile.ValidateName(name) {
		writeError(w, http.StatusBadRequest, "Invalid profile name format")
		return
	}
	if !s.profiles.Exists(name) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Profile %q not found", name))
		return
	}

	if err := s.controller.DeleteProfile(name); err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			writeError(w, http.StatusInternalServerError, "Profile deletion timed out")
			return
		}
		s.logger.Errorw("Profile deletion failed", logger.FieldProfile, name, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete profile: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Profile %q deleted successfully", name),
	})
}

// HandleProfiles handles GET /api/profiles
// Lists profiles that have completed setup, sorted by name.
func (s *Server) HandleProfiles(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	profiles, err := s.profiles.List()
	if err != nil {
		writeWrappedError(w, s.logger, err, "Failed to list profiles", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, profiles)
}
