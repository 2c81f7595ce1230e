package profile

import (
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
)

// authorizeEndpoint is the upstream OAuth authorization page the user is
// sent to.
const authorizeEndpoint = "https://www.fitbit.com/oauth2/authorize"

// authorizeScope covers everything the fetcher scripts read.
const authorizeScope = "heartrate sleep activity profile"

// Mode says how the browser authorization flow completes.
type Mode string

const (
	// ModeManual requires the user to paste the callback URL back by hand.
	// Used when the redirect points at an HTTPS localhost endpoint the
	// authorize script cannot terminate without TLS material.
	ModeManual Mode = "manual"

	// ModeBackground lets the authorize script run its own callback
	// listener and finish without user involvement past the consent page.
	ModeBackground Mode = "background"
)

// FlowMode decides between manual and background authorization for the
// configured redirect URI. HTTPS localhost redirects need a cert/key pair
// on disk for the background listener; without one the flow is manual.
func FlowMode(redirectURI, certFile, keyFile string) Mode {
	httpsLocal := strings.HasPrefix(redirectURI, "https://localhost:") ||
		strings.HasPrefix(redirectURI, "https://127.0.0.1:")
	if !httpsLocal {
		return ModeBackground
	}
	if certFile != "" && keyFile != "" && fileExists(certFile) && fileExists(keyFile) {
		return ModeBackground
	}
	return ModeManual
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// BuildAuthURL constructs the upstream authorization URL. Each call gets a
// fresh uuid as the OAuth state parameter.
func BuildAuthURL(clientID, redirectURI string) string {
	params := url.Values{}
	params.Set("client_id", clientID)
	params.Set("response_type", "code")
	params.Set("scope", authorizeScope)
	params.Set("redirect_uri", redirectURI)
	params.Set("state", uuid.NewString())
	return authorizeEndpoint + "?" + params.Encode()
}
