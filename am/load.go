package am

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the fitbaus configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Set defaults but don't bind environment variables for this specific load
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from %s: %w", configPath, err)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	// Set up environment variable binding
	v.SetEnvPrefix("FITBAUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific sensitive configuration values to environment variables
	BindSensitiveEnvVars(v)

	// Set defaults first
	SetDefaults(v)

	// Manually merge configs in precedence order: system -> user -> project -> env vars
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig searches for fitbaus.toml or config.toml by walking up the
// directory tree. Returns the path to the first config file found, or empty
// string if none found. Preference order: fitbaus.toml > config.toml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Walk up the directory tree looking for config files
	for {
		fitbausPath := filepath.Join(dir, "fitbaus.toml")
		if _, err := os.Stat(fitbausPath); err == nil {
			return fitbausPath
		}

		configPath := filepath.Join(dir, "config.toml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root, stop searching
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles manually merges configuration files in the correct precedence order
// Precedence (lowest to highest): system < user < project < env vars
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	// Ensure ~/.fitbaus directory exists
	fitbausDir := filepath.Join(homeDir, ".fitbaus")
	os.MkdirAll(fitbausDir, DefaultDirPermissions)

	// Build config paths, with project config found via upward search
	projectConfig := findProjectConfig()
	configPaths := []string{
		"/etc/fitbaus/config.toml",                 // System config (lowest precedence)
		filepath.Join(fitbausDir, "fitbaus.toml"),  // User config
		filepath.Join(fitbausDir, "config.toml"),   // User config (alternate name)
		filepath.Join(fitbausDir, "settings.toml"), // Dashboard-managed settings
	}

	// Add project config if found (highest file precedence, below env vars)
	if projectConfig != "" {
		configPaths = append(configPaths, projectConfig)
	}

	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err == nil {
			// Config file exists, merge it
			tempViper := viper.New()
			tempViper.SetConfigFile(configPath)
			tempViper.SetConfigType("toml")

			if err := tempViper.ReadInConfig(); err == nil {
				// Merge this config into the main viper instance
				for key, value := range tempViper.AllSettings() {
					v.Set(key, value)
				}
			}
		}
	}
}

// ConfigFilePath returns the highest-precedence config file actually on
// disk, which is the file the config watcher observes. Empty when only
// defaults and environment variables are in play.
func ConfigFilePath() string {
	if p := findProjectConfig(); p != "" {
		return p
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"settings.toml", "fitbaus.toml", "config.toml"} {
		p := filepath.Join(homeDir, ".fitbaus", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ConfigFileStatus describes one entry in the configuration file cascade.
type ConfigFileStatus struct {
	Label  string // SYSTEM, USER, DASHBOARD, or PROJECT
	Path   string
	Exists bool
}

// ConfigCascade returns the configuration file cascade in precedence order
// (lowest first) with existence flags. Mirrors mergeConfigFiles.
func ConfigCascade() []ConfigFileStatus {
	homeDir, _ := os.UserHomeDir()
	fitbausDir := filepath.Join(homeDir, ".fitbaus")

	cascade := []ConfigFileStatus{
		{Label: "SYSTEM", Path: "/etc/fitbaus/config.toml"},
		{Label: "USER", Path: filepath.Join(fitbausDir, "fitbaus.toml")},
		{Label: "USER", Path: filepath.Join(fitbausDir, "config.toml")},
		{Label: "DASHBOARD", Path: filepath.Join(fitbausDir, "settings.toml")},
	}
	if p := findProjectConfig(); p != "" {
		cascade = append(cascade, ConfigFileStatus{Label: "PROJECT", Path: p})
	}

	for i := range cascade {
		if _, err := os.Stat(cascade[i].Path); err == nil {
			cascade[i].Exists = true
		}
	}
	return cascade
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	v := initViper()
	return v.Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	v := initViper()
	return v.GetString(key)
}

// GetBool returns a configuration value as bool using dot notation
func GetBool(key string) bool {
	v := initViper()
	return v.GetBool(key)
}

// GetInt returns a configuration value as int using dot notation
func GetInt(key string) int {
	v := initViper()
	return v.GetInt(key)
}

// GetDatabasePath returns the configured job archive path
func GetDatabasePath() (string, error) {
	// Check for DB_PATH environment variable first (for dev mode override)
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	config, err := Load()
	if err != nil {
		return "", err
	}
	return config.Database.Path, nil
}
