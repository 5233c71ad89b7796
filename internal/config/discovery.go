package config

import (
	"os"
	"path/filepath"
)

// Discover finds the config file by checking standard locations.
// Priority order: $URLCLEAN_CONFIG, ~/.config/urlclean/config.yaml, ./config.yaml.
// It returns "" when none exists; running without a config file is allowed.
func Discover() string {
	if path := os.Getenv("URLCLEAN_CONFIG"); path != "" {
		if fileExists(path) {
			return path
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "urlclean", "config.yaml")
		if fileExists(userConfig) {
			return userConfig
		}
	}

	if fileExists("config.yaml") {
		return "config.yaml"
	}
	return ""
}

// LoadOrDefault loads configPath, or the discovered config when configPath is
// empty, or Defaults() when nothing is found. It returns the path it used.
func LoadOrDefault(configPath string) (*Config, string, error) {
	if configPath == "" {
		configPath = Discover()
	}
	if configPath == "" {
		return Defaults(), "", nil
	}
	cfg, err := Load(configPath)
	if err != nil {
		return nil, configPath, err
	}
	return cfg, configPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
