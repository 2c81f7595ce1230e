package am

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	// Server configuration defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
	v.SetDefault("server.static_dir", "static")

	// Paths defaults
	v.SetDefault("paths.profiles_dir", filepath.Join(homeDir, ".fitbaus", "profiles"))
	v.SetDefault("paths.scripts_dir", ".")
	v.SetDefault("paths.python_bin", "python3")

	// Fetch pipeline defaults
	v.SetDefault("fetch.pipeline_script", "fetch_all_data.py")
	v.SetDefault("fetch.refresh_script", "refresh_tokens.py")
	v.SetDefault("fetch.timeout_seconds", 21600)       // 6 hours for a full backfill
	v.SetDefault("fetch.refresh_timeout_seconds", 30)  // Token refresh is a single HTTP round trip
	v.SetDefault("fetch.cancel_grace_seconds", 5)      // SIGTERM to SIGKILL window
	v.SetDefault("fetch.cleanup_grace_seconds", 10)    // Terminal record retention for last polls

	// Authorization defaults
	v.SetDefault("authorize.script", "authorize_fitbit.py")
	v.SetDefault("authorize.timeout_seconds", 900) // 15 minutes to complete the browser flow
	v.SetDefault("authorize.redirect_uri", "https://localhost:8080/callback")

	// Profile maintenance defaults
	v.SetDefault("profile.reset_script", "reset.py")
	v.SetDefault("profile.delete_timeout_seconds", 30)

	// Database defaults
	v.SetDefault("database.path", "fitbaus.db")

	// Log defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.verbose_fetch", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// TLS material for the background authorization flow
	v.BindEnv("authorize.ssl_cert_file", "FITBAUS_AUTHORIZE_SSL_CERT_FILE")
	v.BindEnv("authorize.ssl_key_file", "FITBAUS_AUTHORIZE_SSL_KEY_FILE")

	// Database path
	v.BindEnv("database.path", "FITBAUS_DATABASE_PATH")
}

// GetServerPort returns the configured fitbaus server port
// Returns server.port from config, or DefaultServerPort (9000) if not configured
func GetServerPort() int {
	cfg, err := Load()
	if err != nil || cfg.Server.Port == 0 {
		return DefaultServerPort
	}
	return cfg.Server.Port
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
	}
	return c.Server.AllowedOrigins
}

// PythonArgv splits paths.python_bin into an argv prefix, so values like
// "python3 -u" or a quoted interpreter path work as expected.
func (c *Config) PythonArgv() []string {
	bin := c.Paths.PythonBin
	if bin == "" {
		bin = "python3"
	}

	// Parse respecting quotes (like shell does)
	args, err := shellquote.Split(bin)
	if err != nil {
		// If quote parsing fails, fall back to simple split
		args = strings.Fields(bin)
	}
	if len(args) == 0 {
		args = []string{"python3"}
	}
	return args
}

// ScriptPath resolves a script name against paths.scripts_dir.
// Absolute script names are returned unchanged.
func (c *Config) ScriptPath(script string) string {
	if filepath.IsAbs(script) {
		return script
	}
	dir := c.Paths.ScriptsDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, script)
}

// PipelineScriptPath returns the resolved fetch pipeline script path
func (c *Config) PipelineScriptPath() string {
	script := c.Fetch.PipelineScript
	if script == "" {
		script = "fetch_all_data.py"
	}
	return c.ScriptPath(script)
}

// RefreshScriptPath returns the resolved token refresh script path
func (c *Config) RefreshScriptPath() string {
	script := c.Fetch.RefreshScript
	if script == "" {
		script = "refresh_tokens.py"
	}
	return c.ScriptPath(script)
}

// AuthorizeScriptPath returns the resolved authorization script path
func (c *Config) AuthorizeScriptPath() string {
	script := c.Authorize.Script
	if script == "" {
		script = "authorize_fitbit.py"
	}
	return c.ScriptPath(script)
}

// FetchTimeout returns the whole-pipeline execution bound
func (c *Config) FetchTimeout() time.Duration {
	if c.Fetch.TimeoutSeconds <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RefreshTimeout returns the token refresh execution bound
func (c *Config) RefreshTimeout() time.Duration {
	if c.Fetch.RefreshTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Fetch.RefreshTimeoutSeconds) * time.Second
}

// CancelGrace returns how long a terminated process may keep running
// before it is killed
func (c *Config) CancelGrace() time.Duration {
	if c.Fetch.CancelGraceSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Fetch.CancelGraceSeconds) * time.Second
}

// CleanupGrace returns how long a terminal job record stays visible
// before it is removed from the registry
func (c *Config) CleanupGrace() time.Duration {
	if c.Fetch.CleanupGraceSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Fetch.CleanupGraceSeconds) * time.Second
}

// AuthorizeTimeout returns the authorization flow execution bound
func (c *Config) AuthorizeTimeout() time.Duration {
	if c.Authorize.TimeoutSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Authorize.TimeoutSeconds) * time.Second
}

// ResetScriptPath returns the resolved profile reset script path
func (c *Config) ResetScriptPath() string {
	script := c.Profile.ResetScript
	if script == "" {
		script = "reset.py"
	}
	return c.ScriptPath(script)
}

// ProfileDeleteTimeout returns the reset script execution bound
func (c *Config) ProfileDeleteTimeout() time.Duration {
	if c.Profile.DeleteTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Profile.DeleteTimeoutSeconds) * time.Second
}

// GetDatabasePath returns the configured job archive path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "fitbaus.db" // Fallback default
	}
	return c.Database.Path
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: {Port: %d}, Paths: {ProfilesDir: %s}, Database: %s}",
		c.Server.Port, c.Paths.ProfilesDir, c.Database.Path)
}
