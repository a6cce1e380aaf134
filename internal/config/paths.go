package config

import (
	"os"
	"path/filepath"
)

const dirOverrideEnv = "REQLAB_CONFIG_DIR"

// Dir returns the directory holding settings and local state. The override
// env var wins, then the platform user config dir, then the home directory.
func Dir() string {
	if override := os.Getenv(dirOverrideEnv); override != "" {
		return override
	}
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "reqlab")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reqlab"
	}
	return filepath.Join(home, ".reqlab")
}

// StatePath is the sqlite database holding drafts, history, environments and
// collections.
func StatePath() string {
	return filepath.Join(Dir(), "state.db")
}
