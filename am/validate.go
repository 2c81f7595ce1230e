package am

import "github.com/fitbaus/fitbaus/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "fitbaus.db" per defaults.go
	// No validation needed here

	// Server port: 0 = use default port, negative is invalid
	if c.Server.Port < 0 {
		return errors.Newf("server.port must be >= 0, got %d", c.Server.Port)
	}

	// Timeouts and grace windows: 0 = use default (per defaults.go), negative = invalid
	if c.Fetch.TimeoutSeconds < 0 {
		return errors.Newf("fetch.timeout_seconds must be >= 0, got %d", c.Fetch.TimeoutSeconds)
	}
	if c.Fetch.RefreshTimeoutSeconds < 0 {
		return errors.Newf("fetch.refresh_timeout_seconds must be >= 0, got %d", c.Fetch.RefreshTimeoutSeconds)
	}
	if c.Fetch.CancelGraceSeconds < 0 {
		return errors.Newf("fetch.cancel_grace_seconds must be >= 0, got %d", c.Fetch.CancelGraceSeconds)
	}
	if c.Fetch.CleanupGraceSeconds < 0 {
		return errors.Newf("fetch.cleanup_grace_seconds must be >= 0, got %d", c.Fetch.CleanupGraceSeconds)
	}
	if c.Authorize.TimeoutSeconds < 0 {
		return errors.Newf("authorize.timeout_seconds must be >= 0, got %d", c.Authorize.TimeoutSeconds)
	}
	if c.Profile.DeleteTimeoutSeconds < 0 {
		return errors.Newf("profile.delete_timeout_seconds must be >= 0, got %d", c.Profile.DeleteTimeoutSeconds)
	}

	// TLS material for the background authorization flow: both files or neither
	if (c.Authorize.SSLCertFile == "") != (c.Authorize.SSLKeyFile == "") {
		return errors.New("authorize.ssl_cert_file and authorize.ssl_key_file must be set together")
	}

	return nil
}
