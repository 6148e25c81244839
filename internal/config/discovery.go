package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath names the variable that points at a config file.
const EnvConfigPath = "TOOLBRIDGE_CONFIG"

// Discover returns the config file to load when --config is not given.
// Priority order: $TOOLBRIDGE_CONFIG, ~/.config/toolbridge/config.yaml,
// ./config.yaml. It returns "" when none exists.
func Discover() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "toolbridge", "config.yaml")
		if fileExists(userConfig) {
			return userConfig
		}
	}

	if fileExists("./config.yaml") {
		return "./config.yaml"
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
