package am

// Config represents the core fitbaus configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Authorize AuthorizeConfig `mapstructure:"authorize"`
	Profile   ProfileConfig   `mapstructure:"profile"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig configures the fitbaus web server
type ServerConfig struct {
	Port           int      `mapstructure:"port"` // 0 = use DefaultServerPort
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	StaticDir      string   `mapstructure:"static_dir"` // Directory served at / (dashboard assets)
}

// PathsConfig configures filesystem locations for profiles and scripts
type PathsConfig struct {
	ProfilesDir string `mapstructure:"profiles_dir"` // Per-profile token/CSV directories
	ScriptsDir  string `mapstructure:"scripts_dir"`  // Where the fetcher scripts live
	PythonBin   string `mapstructure:"python_bin"`   // Interpreter command, may carry flags ("python3 -u")
}

// FetchConfig configures the fetch pipeline subprocess
type FetchConfig struct {
	PipelineScript        string `mapstructure:"pipeline_script"`         // Orchestrating script (default: fetch_all_data.py)
	RefreshScript         string `mapstructure:"refresh_script"`          // Token refresh script (default: refresh_tokens.py)
	TimeoutSeconds        int    `mapstructure:"timeout_seconds"`         // Whole-pipeline bound (default: 21600 = 6h)
	RefreshTimeoutSeconds int    `mapstructure:"refresh_timeout_seconds"` // Token refresh bound (default: 30)
	CancelGraceSeconds    int    `mapstructure:"cancel_grace_seconds"`    // Terminate-to-kill grace (default: 5)
	CleanupGraceSeconds   int    `mapstructure:"cleanup_grace_seconds"`   // Terminal record retention (default: 10)
}

// AuthorizeConfig configures the OAuth authorization subprocess
type AuthorizeConfig struct {
	Script         string `mapstructure:"script"`          // Authorization helper (default: authorize_fitbit.py)
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // Callback wait bound (default: 900 = 15m)
	RedirectURI    string `mapstructure:"redirect_uri"`
	SSLCertFile    string `mapstructure:"ssl_cert_file"` // Enables background flow on HTTPS localhost redirects
	SSLKeyFile     string `mapstructure:"ssl_key_file"`
}

// ProfileConfig configures profile maintenance scripts
type ProfileConfig struct {
	ResetScript          string `mapstructure:"reset_script"`           // Non-interactive deletion helper (default: reset.py)
	DeleteTimeoutSeconds int    `mapstructure:"delete_timeout_seconds"` // Reset script bound (default: 30)
}

// DatabaseConfig configures the SQLite job archive
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures logger output
type LogConfig struct {
	JSON         bool `mapstructure:"json"`          // JSON output instead of the console encoder
	VerboseFetch bool `mapstructure:"verbose_fetch"` // Initial state of the per-line fetch log toggle
}

// Server port constants
const (
	DefaultServerPort = 9000 // Matches the dashboard's default API target
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
