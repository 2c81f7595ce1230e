// Package profile manages per-profile credential directories on disk.
//
// Each profile lives under a single root:
//
//	<root>/<name>/auth/client.json   OAuth client credentials
//	<root>/<name>/auth/tokens.json   OAuth tokens written by the authorize script
//	<root>/<name>/csv/               fetched metric CSVs
//
// The fetcher scripts own the contents of tokens.json and csv/; this
// package only creates the layout and reads what it needs for
// preconditions and listings.
package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fitbaus/fitbaus/am"
	"github.com/fitbaus/fitbaus/errors"
	"github.com/fitbaus/fitbaus/logger"
)

// TokenState classifies a profile's stored OAuth tokens.
type TokenState int

const (
	// TokensMissing means tokens.json does not exist. Either the profile was
	// never created or its auth directory is gone.
	TokensMissing TokenState = iota

	// TokensUnauthorized means tokens.json exists but holds no refresh token.
	// The profile needs the browser authorization flow.
	TokensUnauthorized

	// TokensValid means a refresh token is present.
	TokensValid
)

// Info is one row of the profile listing.
type Info struct {
	Name    string `json:"name"`
	Created string `json:"created"`
}

// Credentials are the OAuth client credentials stored at profile creation.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CreatedAt    string `json:"created_at"`
}

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateName reports whether name is usable as a profile directory name.
func ValidateName(name string) bool {
	return nameRe.MatchString(name)
}

// Store manages profile directories under one root.
type Store struct {
	root   string
	logger *zap.SugaredLogger
}

// NewStore creates a profile store rooted at dir.
func NewStore(dir string, log *zap.SugaredLogger) *Store {
	return &Store{
		root:   dir,
		logger: log.Named("profile"),
	}
}

// Root returns the profiles root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory of one profile.
func (s *Store) Dir(name string) string {
	return filepath.Join(s.root, name)
}

// TokensPath returns the tokens.json path of one profile.
func (s *Store) TokensPath(name string) string {
	return filepath.Join(s.root, name, "auth", "tokens.json")
}

func (s *Store) clientPath(name string) string {
	return filepath.Join(s.root, name, "auth", "client.json")
}

// Exists reports whether the profile directory exists.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Dir(name))
	return err == nil && info.IsDir()
}

// Create builds the directory layout for a new profile and writes its
// client credentials. tokens.json starts empty; the authorize flow fills
// it in later.
func (s *Store) Create(name, clientID, clientSecret string) error {
	if !ValidateName(name) {
		return errors.Wrapf(errors.ErrInvalidProfileName, "%q", name)
	}
	if s.Exists(name) {
		return errors.Wrapf(errors.ErrProfileExists, "%q", name)
	}

	authDir := filepath.Join(s.Dir(name), "auth")
	if err := os.MkdirAll(authDir, am.DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create auth directory")
	}
	if err := os.MkdirAll(filepath.Join(s.Dir(name), "csv"), am.DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create csv directory")
	}

	creds := Credentials{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		CreatedAt:    time.Now().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal client credentials")
	}
	if err := os.WriteFile(filepath.Join(authDir, "client.json"), data, am.DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write client.json")
	}
	if err := os.WriteFile(filepath.Join(authDir, "tokens.json"), []byte("{}"), am.DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write tokens.json")
	}

	s.logger.Infow("Profile created", logger.FieldProfile, name)
	return nil
}

// List returns all profiles that have a tokens.json, sorted by name.
// Created timestamps come from client.json; unparseable or missing ones
// show as "Unknown" rather than failing the listing.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, errors.Wrap(err, "failed to read profiles directory")
	}

	profiles := []Info{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, err := os.Stat(s.TokensPath(name)); err != nil {
			continue
		}

		created := "Unknown"
		if creds, err := s.ClientCredentials(name); err == nil && creds.CreatedAt != "" {
			if t, err := parseCreatedAt(creds.CreatedAt); err == nil {
				created = t.Format("2006-01-02 15:04")
			}
		}
		profiles = append(profiles, Info{Name: name, Created: created})
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles, nil
}

// parseCreatedAt accepts RFC3339 plus the naive ISO form older profiles
// carry in client.json.
func parseCreatedAt(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.999999", value)
}

// TokenState reads tokens.json and classifies it. A read or parse failure
// is returned as an error so callers can report it rather than treating
// the profile as merely unauthorized.
func (s *Store) TokenState(name string) (TokenState, error) {
	data, err := os.ReadFile(s.TokensPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return TokensMissing, nil
		}
		return TokensMissing, errors.Wrap(err, "failed to read tokens.json")
	}

	var tokens struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return TokensMissing, errors.Wrap(err, "failed to parse tokens.json")
	}
	if tokens.RefreshToken == "" {
		return TokensUnauthorized, nil
	}
	return TokensValid, nil
}

// HasCredentials reports whether client.json exists for the profile.
func (s *Store) HasCredentials(name string) bool {
	_, err := os.Stat(s.clientPath(name))
	return err == nil
}

// NeedsAuthorization reports whether the profile lacks a usable refresh
// token. Read errors count as needing authorization.
func (s *Store) NeedsAuthorization(name string) bool {
	state, err := s.TokenState(name)
	return err != nil || state != TokensValid
}

// ClientCredentials reads and parses client.json for the profile.
func (s *Store) ClientCredentials(name string) (*Credentials, error) {
	data, err := os.ReadFile(s.clientPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrProfileNotFound, "client credentials not found for profile %s", name)
		}
		return nil, errors.Wrap(err, "failed to read client.json")
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, errors.Wrap(err, "failed to parse client.json")
	}
	return &creds, nil
}

// CSVPath resolves a CSV file inside a profile's csv directory. The file
// must be a bare name; separators and dot-prefixed names are rejected so a
// request path can never escape the profile's directory.
func (s *Store) CSVPath(name, file string) (string, error) {
	if !ValidateName(name) {
		return "", errors.Wrapf(errors.ErrInvalidProfileName, "%q", name)
	}
	if file == "" || file != filepath.Base(file) || strings.HasPrefix(file, ".") {
		return "", errors.NewInvalidRequestError("invalid csv file name %q", file)
	}
	return filepath.Join(s.Dir(name), "csv", file), nil
}
