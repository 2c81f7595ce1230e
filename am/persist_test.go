package am

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVerboseFetchLoggingRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// Nothing saved yet: the caller's fallback wins
	if got := LoadVerboseFetchLogging(true); !got {
		t.Error("expected fallback true with no settings file")
	}
	if got := LoadVerboseFetchLogging(false); got {
		t.Error("expected fallback false with no settings file")
	}

	if err := UpdateVerboseFetchLogging(true); err != nil {
		t.Fatalf("UpdateVerboseFetchLogging(true) failed: %v", err)
	}
	if got := LoadVerboseFetchLogging(false); !got {
		t.Error("persisted true not read back")
	}

	if err := UpdateVerboseFetchLogging(false); err != nil {
		t.Fatalf("UpdateVerboseFetchLogging(false) failed: %v", err)
	}
	if got := LoadVerboseFetchLogging(true); got {
		t.Error("persisted false not read back")
	}
}

func TestUpdatePreservesOtherSettings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// Seed a settings file with an unrelated section
	path := GetSettingsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[server]\nport = 4242\n"), DefaultFilePermissions); err != nil {
		t.Fatal(err)
	}

	if err := UpdateVerboseFetchLogging(true); err != nil {
		t.Fatalf("UpdateVerboseFetchLogging() failed: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	if cfg.Server.Port != 4242 {
		t.Errorf("server.port = %d after update, want 4242 preserved", cfg.Server.Port)
	}
	if !cfg.Log.VerboseFetch {
		t.Error("log.verbose_fetch not written")
	}
}

func TestBackupRotation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// Save 1 has nothing to back up; saves 2-4 each rotate the previous
	// file into .back1 and shift older copies down the chain.
	states := []bool{true, false, true, false}
	for i, enabled := range states {
		if err := UpdateVerboseFetchLogging(enabled); err != nil {
			t.Fatalf("save %d failed: %v", i+1, err)
		}
	}

	path := GetSettingsPath()
	wantBackups := []struct {
		suffix  string
		verbose bool
	}{
		{".back1", true},  // content at save 3
		{".back2", false}, // content at save 2
		{".back3", true},  // content at save 1
	}

	for _, tt := range wantBackups {
		backupPath := path + tt.suffix
		if _, err := os.Stat(backupPath); err != nil {
			t.Errorf("backup %s missing: %v", tt.suffix, err)
			continue
		}
		cfg, err := LoadFromFile(backupPath)
		if err != nil {
			t.Errorf("backup %s unreadable: %v", tt.suffix, err)
			continue
		}
		if cfg.Log.VerboseFetch != tt.verbose {
			t.Errorf("backup %s verbose_fetch = %v, want %v", tt.suffix, cfg.Log.VerboseFetch, tt.verbose)
		}
	}
}

func TestGetSettingsPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	want := filepath.Join(home, ".fitbaus", "settings.toml")
	if got := GetSettingsPath(); got != want {
		t.Errorf("GetSettingsPath() = %q, want %q", got, want)
	}
}
