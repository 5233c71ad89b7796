package config

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config represents the complete urlclean service configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	API     APIConfig     `yaml:"api"`
	Bulk    BulkConfig    `yaml:"bulk"`
	Cleaner CleanerConfig `yaml:"cleaner"`
	Cache   CacheConfig   `yaml:"cache"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Bind        string   `yaml:"bind"`
	Port        int      `yaml:"port"`
	MaxJSONSize ByteSize `yaml:"max_json_size"`
	CORS        bool     `yaml:"cors"`
}

// Addr returns the listen address.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Bind, a.Port)
}

// BulkConfig defines batch processing settings.
type BulkConfig struct {
	// Workers is the worker count per batch. 0 means one per CPU.
	Workers int `yaml:"workers"`
}

// CleanerConfig points at the cleaning rules.
type CleanerConfig struct {
	// Rules is a rules file path. Empty uses the built-in rules.
	Rules string `yaml:"rules"`
	// ParamsDiff is a params diff file applied once to the rules at startup.
	ParamsDiff string `yaml:"params_diff"`
}

// CacheConfig defines the network lookup cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path of the SQLite file. Empty uses the rules' cache_path.
	Path string `yaml:"path"`
}

// ByteSize is a byte count written as an integer or a human size ("25MiB", "10 MB").
type ByteSize uint64

// ParseByteSize parses s with go-humanize rules.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// UnmarshalYAML accepts both plain integers and size strings.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if n, err := strconv.ParseUint(value.Value, 10, 64); err == nil {
		*b = ByteSize(n)
		return nil
	}
	parsed, err := ParseByteSize(value.Value)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// MarshalYAML writes the size in IEC units when that is exact, else as an integer.
func (b ByteSize) MarshalYAML() (any, error) {
	if n, err := humanize.ParseBytes(b.String()); err == nil && n == uint64(b) {
		return b.String(), nil
	}
	return uint64(b), nil
}

func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// Set implements flag.Value.
func (b *ByteSize) Set(s string) error {
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Defaults returns a Config with the defaults used when no file is present.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "urlclean",
			LogLevel: "info",
		},
		API: APIConfig{
			Bind:        "127.0.0.1",
			Port:        9149,
			MaxJSONSize: 25 * humanize.MiByte,
			CORS:        true,
		},
		Bulk: BulkConfig{
			Workers: 0,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
	}
}
