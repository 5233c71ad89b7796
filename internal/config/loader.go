package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
// Fields missing from the file keep their Defaults() value. Relative file
// paths inside the config are resolved against the config file's directory.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	baseDir := filepath.Dir(absPath)
	cfg.Cleaner.Rules = resolvePath(baseDir, cfg.Cleaner.Rules)
	cfg.Cleaner.ParamsDiff = resolvePath(baseDir, cfg.Cleaner.ParamsDiff)
	cfg.Cache.Path = resolvePath(baseDir, cfg.Cache.Path)
	return cfg, nil
}

// Parse decodes config YAML on top of Defaults(), then validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg = applyConfigDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyConfigDefaults fills values that were explicitly blanked in the file.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)

	if cfg.API.Bind == "" {
		cfg.API.Bind = defaults.API.Bind
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = defaults.API.Port
	}
	if cfg.API.MaxJSONSize == 0 {
		cfg.API.MaxJSONSize = defaults.API.MaxJSONSize
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate performs basic validation on the configuration. CLI overrides are
// applied after Load, so callers re-run it once flags are merged.
func Validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535 (got %d)", cfg.API.Port)
	}
	if cfg.API.MaxJSONSize == 0 {
		return fmt.Errorf("api.max_json_size must be positive")
	}
	if cfg.API.MaxJSONSize > math.MaxInt64 {
		return fmt.Errorf("api.max_json_size must be at most %d bytes (got %d)", int64(math.MaxInt64), uint64(cfg.API.MaxJSONSize))
	}

	if cfg.Bulk.Workers < 0 {
		return fmt.Errorf("bulk.workers must be >= 0 (got %d)", cfg.Bulk.Workers)
	}

	if strings.Contains(cfg.Cleaner.Rules, "${") || strings.Contains(cfg.Cleaner.ParamsDiff, "${") || strings.Contains(cfg.Cache.Path, "${") {
		return fmt.Errorf("unresolved environment variable in cleaner or cache paths")
	}

	return nil
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
