package cleaner

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfig []byte

// Action kinds understood by the rule engine.
const (
	ActionRemoveQueryParams         = "remove_query_params"
	ActionRemoveQueryParamsMatching = "remove_query_params_matching"
	ActionAllowQueryParams          = "allow_query_params"
	ActionRemoveFragment            = "remove_fragment"
	ActionStripWWW                  = "strip_www"
	ActionSetHost                   = "set_host"
	ActionUnwrapQueryParam          = "unwrap_query_param"
	ActionUseVar                    = "use_var"
	ActionExpandRedirect            = "expand_redirect"
	ActionFail                      = "fail"
)

// FlagNoNetwork disables every rule action that would make a network request.
const FlagNoNetwork = "no_network"

// Config is a parsed, compiled cleaning configuration.
// A *Config is read-only once returned by Parse; WithParamsDiff copies.
type Config struct {
	Params    Params `yaml:"params"`
	Rules     []Rule `yaml:"rules"`
	CachePath string `yaml:"cache_path,omitempty"`

	raw         []byte
	fingerprint string
}

// Rule applies its actions, in order, to URLs matching its condition.
type Rule struct {
	Name string     `yaml:"name"`
	When *Condition `yaml:"when,omitempty"`
	Do   []Action   `yaml:"do"`
}

// Condition matches when every populated field holds.
type Condition struct {
	HostIs      []string          `yaml:"host_is,omitempty"`
	HostSuffix  []string          `yaml:"host_suffix,omitempty"`
	RegDomainIs []string          `yaml:"reg_domain_is,omitempty"`
	PathPrefix  string            `yaml:"path_prefix,omitempty"`
	QueryHas    string            `yaml:"query_has,omitempty"`
	Flag        string            `yaml:"flag,omitempty"`
	NotFlag     string            `yaml:"not_flag,omitempty"`
	Var         map[string]string `yaml:"var,omitempty"`
}

// Action is one URL transformation step. Which fields apply depends on Kind.
type Action struct {
	Kind    string   `yaml:"kind"`
	Params  []string `yaml:"params,omitempty"`
	Set     string   `yaml:"set,omitempty"`
	Pattern string   `yaml:"pattern,omitempty"`
	Host    string   `yaml:"host,omitempty"`
	Param   string   `yaml:"param,omitempty"`
	Var     string   `yaml:"var,omitempty"`
	Message string   `yaml:"message,omitempty"`

	re *regexp.Regexp
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := Parse(defaultConfig)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// LoadFile reads and compiles the configuration at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cleaner config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML (or JSON) configuration and compiles its rules.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse cleaner config: %w", err)
	}
	if err := cfg.compile(); err != nil {
		return nil, err
	}

	cfg.raw = append([]byte(nil), data...)
	sum := blake3.Sum256(data)
	cfg.fingerprint = "blake3:" + hex.EncodeToString(sum[:])
	return &cfg, nil
}

// Raw returns the source text the config was parsed from.
func (c *Config) Raw() []byte { return c.raw }

// Fingerprint is the BLAKE3 digest of the source text.
func (c *Config) Fingerprint() string { return c.fingerprint }

// WithParamsDiff returns a copy of c with diff applied to its params.
// c itself is never modified. Rules are shared; they are immutable after compile.
func (c *Config) WithParamsDiff(diff *ParamsDiff) *Config {
	out := *c
	out.Params = c.Params.Clone()
	if diff != nil {
		diff.Apply(&out.Params)
	}
	return &out
}

func (c *Config) compile() error {
	for i := range c.Rules {
		rule := &c.Rules[i]
		name := rule.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
			rule.Name = name
		}
		if len(rule.Do) == 0 {
			return fmt.Errorf("rule %s: no actions", name)
		}
		for j := range rule.Do {
			if err := rule.Do[j].compile(); err != nil {
				return fmt.Errorf("rule %s: do[%d]: %w", name, j, err)
			}
		}
	}
	return nil
}

func (a *Action) compile() error {
	switch a.Kind {
	case ActionRemoveQueryParams, ActionAllowQueryParams:
		if len(a.Params) == 0 && a.Set == "" {
			return fmt.Errorf("%s needs params or set", a.Kind)
		}
	case ActionRemoveQueryParamsMatching:
		if a.Pattern == "" {
			return fmt.Errorf("%s needs pattern", a.Kind)
		}
		re, err := regexp.Compile(a.Pattern)
		if err != nil {
			return fmt.Errorf("%s: %w", a.Kind, err)
		}
		a.re = re
	case ActionSetHost:
		if strings.TrimSpace(a.Host) == "" {
			return fmt.Errorf("%s needs host", a.Kind)
		}
	case ActionUnwrapQueryParam:
		if a.Param == "" {
			return fmt.Errorf("%s needs param", a.Kind)
		}
	case ActionUseVar:
		if a.Var == "" {
			return fmt.Errorf("%s needs var", a.Kind)
		}
	case ActionRemoveFragment, ActionStripWWW, ActionExpandRedirect, ActionFail:
	case "":
		return fmt.Errorf("action kind is required")
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}
