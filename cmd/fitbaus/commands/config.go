package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fitbaus/fitbaus/am"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage fitbaus configuration",
	Long: `Display and manage fitbaus configuration settings.

Configuration sources (in order of precedence):
1. Environment variables (FITBAUS_* prefix)
2. Project config (./fitbaus.toml or ./config.toml, searches up directories)
3. Dashboard-managed settings (~/.fitbaus/settings.toml)
4. User config (~/.fitbaus/fitbaus.toml or ~/.fitbaus/config.toml)
5. System config (/etc/fitbaus/config.toml)
6. Default values

Examples:
  fitbaus config show                  # Show current configuration
  fitbaus config show --format json    # Show configuration in JSON format
  fitbaus config get database.path     # Get specific config value
  fitbaus config validate              # Validate current configuration`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current fitbaus configuration from all sources",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, fetch.timeout_seconds)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the current fitbaus configuration is valid",
	RunE:  runConfigValidate,
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long: `Show the configuration cascade and which files were checked.

Lists all configuration sources in order of precedence, showing
which files exist and which are missing.`,
	RunE: runConfigWhere,
}

var configFormat string

func init() {
	// Add flags
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	// Add subcommands
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configWhereCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Marshal to requested format
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Printf("# fitbaus configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# fitbaus configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	// Check if key exists in configuration
	v := am.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	// Get the value as interface{} to preserve type
	value := am.Get(key)
	fmt.Println(value)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("✓ Configuration is valid")
	return nil
}

func runConfigWhere(cmd *cobra.Command, args []string) error {
	fmt.Println("Configuration cascade (later overrides earlier):")
	fmt.Println("  1. [DEFAULT]   Built-in defaults")
	fmt.Println("  2. [SYSTEM]    /etc/fitbaus/config.toml")
	fmt.Println("  3. [USER]      ~/.fitbaus/fitbaus.toml or ~/.fitbaus/config.toml")
	fmt.Println("  4. [DASHBOARD] ~/.fitbaus/settings.toml (written by the web UI)")
	fmt.Println("  5. [PROJECT]   ./fitbaus.toml or ./config.toml (searches up directories)")
	fmt.Println("  6. [ENV]       FITBAUS_* environment variables")
	fmt.Println()

	fmt.Println("Files checked:")
	for _, entry := range am.ConfigCascade() {
		state := "missing"
		if entry.Exists {
			state = "found"
		}
		fmt.Printf("  [%-9s] %s (%s)\n", entry.Label, entry.Path, state)
	}
	return nil
}
