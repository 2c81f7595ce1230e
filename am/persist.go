package am

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/fitbaus/fitbaus/errors"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying settings
func createBackup(configPath string) error {
	// Check if file exists before backing up
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	// Delete oldest backup if exists
	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		// Log deletion failures (but don't fail settings save)
		fmt.Printf("⚠️  Failed to delete old backup %s: %v\n", back3, err)
	}

	// Rotate .back2 to .back3
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	// Rotate .back1 to .back2
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	// Copy current to .back1
	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read settings for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// GetSettingsPath returns the path to the dashboard-managed settings file
// in ~/.fitbaus/settings.toml
func GetSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fitbaus", "settings.toml")
}

// loadOrInitializeSettings loads the settings file, or creates an empty one if it doesn't exist
func loadOrInitializeSettings() (map[string]interface{}, string, error) {
	settingsPath := GetSettingsPath()
	if settingsPath == "" {
		return nil, "", errors.New("could not determine home directory")
	}

	// Ensure ~/.fitbaus directory exists
	fitbausDir := filepath.Dir(settingsPath)
	if err := os.MkdirAll(fitbausDir, 0750); err != nil {
		return nil, "", errors.Wrap(err, "failed to create .fitbaus directory")
	}

	// Try to read existing settings
	var settings map[string]interface{}
	if data, err := os.ReadFile(settingsPath); err == nil {
		// File exists, parse it
		if err := toml.Unmarshal(data, &settings); err != nil {
			return nil, "", errors.Wrap(err, "failed to parse settings")
		}
	} else {
		// File doesn't exist, create empty settings
		settings = make(map[string]interface{})
	}

	return settings, settingsPath, nil
}

// saveSettings writes the settings file with backup
func saveSettings(settings map[string]interface{}, settingsPath string) error {
	// Create backup
	if err := createBackup(settingsPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	// Marshal to TOML
	data, err := toml.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "failed to marshal settings")
	}

	// Mark this as our own write to prevent reload loops
	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	// Write to file
	if err := os.WriteFile(settingsPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write settings")
	}

	return nil
}

// UpdateVerboseFetchLogging persists the log.verbose_fetch toggle, so the
// dashboard's choice survives server restarts.
func UpdateVerboseFetchLogging(enabled bool) error {
	settings, settingsPath, err := loadOrInitializeSettings()
	if err != nil {
		return errors.Wrap(err, "failed to load settings")
	}

	// Get or create log section
	var logSection map[string]interface{}
	if l, ok := settings["log"].(map[string]interface{}); ok {
		logSection = l
	} else {
		logSection = make(map[string]interface{})
	}

	// Update verbose_fetch field
	logSection["verbose_fetch"] = enabled
	settings["log"] = logSection

	return saveSettings(settings, settingsPath)
}

// LoadVerboseFetchLogging reads the persisted toggle, falling back to the
// supplied default when no setting has been saved yet.
func LoadVerboseFetchLogging(fallback bool) bool {
	settingsPath := GetSettingsPath()
	if settingsPath == "" {
		return fallback
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return fallback
	}

	var settings map[string]interface{}
	if err := toml.Unmarshal(data, &settings); err != nil {
		return fallback
	}

	logSection, ok := settings["log"].(map[string]interface{})
	if !ok {
		return fallback
	}

	enabled, ok := logSection["verbose_fetch"].(bool)
	if !ok {
		return fallback
	}
	return enabled
}
