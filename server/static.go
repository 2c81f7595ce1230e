package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// HandleStatic serves the dashboard: index.html at the root, the favicon
// with its proper MIME type, and any other asset under the configured
// static directory. CSV and JSON get explicit content types because the
// dashboard fetches them directly.
func (s *Server) HandleStatic(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	root := s.cfg.Server.StaticDir

	switch r.URL.Path {
	case "/":
		s.serveFile(w, r, filepath.Join(root, "index.html"), "")
		return
	case "/favicon.ico":
		s.serveFile(w, r, filepath.Join(root, "assets", "favicon.ico"), "image/x-icon")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	full := filepath.Join(root, filepath.FromSlash(name))

	// Keep requests inside the static directory
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	contentType := ""
	switch {
	case strings.HasSuffix(name, ".csv"):
		contentType = "text/csv"
	case strings.HasSuffix(name, ".json"):
		contentType = "application/json"
	}

	s.serveFile(w, r, full, contentType)
}

// HandleProfileCSV handles GET /profiles/{id}/csv/{file}
// Serves fetched metric CSVs straight out of a profile directory.
func (s *Server) HandleProfileCSV(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	pathParts := extractPathParts(r.URL.Path, "/profiles/")
	if len(pathParts) != 3 || pathParts[1] != "csv" {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	path, err := s.profiles.CSVPath(pathParts[0], pathParts[2])
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	s.serveFile(w, r, path, "text/csv")
}

// serveFile stats first so missing files get the dashboard's expected
// plain-text 404 body rather than the default ServeFile response.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeFile(w, r, path)
}
