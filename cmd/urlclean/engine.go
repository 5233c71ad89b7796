package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/mattjoyce/urlclean/internal/cache"
	"github.com/mattjoyce/urlclean/internal/cleaner"
	"github.com/mattjoyce/urlclean/internal/config"
)

// commonFlags are the flags shared by serve, clean and config.
type commonFlags struct {
	fs         *flag.FlagSet
	configPath *string
	rules      *string
	paramsDiff *string
	workers    *int
	cachePath  *string
	noCache    *bool
}

func bindCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		fs:         fs,
		configPath: fs.String("config", "", "Path to configuration file"),
		rules:      fs.String("rules", "", "Path to a cleaning rules file (default: built-in rules)"),
		paramsDiff: fs.String("params-diff", "", "Path to a params diff applied to the rules at startup"),
		workers:    fs.Int("workers", 0, "Workers per batch (0 = one per CPU)"),
		cachePath:  fs.String("cache-path", "", "Path of the redirect cache database"),
		noCache:    fs.Bool("no-cache", false, "Disable the redirect cache"),
	}
}

// load resolves the config file and applies any flags that were set.
func (o *commonFlags) load() (*config.Config, string, error) {
	cfg, path, err := config.LoadOrDefault(*o.configPath)
	if err != nil {
		return nil, path, err
	}

	o.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rules":
			cfg.Cleaner.Rules = *o.rules
		case "params-diff":
			cfg.Cleaner.ParamsDiff = *o.paramsDiff
		case "workers":
			cfg.Bulk.Workers = *o.workers
		case "cache-path":
			cfg.Cache.Path = *o.cachePath
		case "no-cache":
			cfg.Cache.Enabled = !*o.noCache
		}
	})
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// engine bundles the cleaner with the resources it owns.
type engine struct {
	rules       *cleaner.Config
	rulesSource string
	cleaner     *cleaner.Cleaner
	store       *cache.Store
	cachePath   string
}

func (e *engine) Close() error {
	return e.store.Close()
}

// loadRules reads the configured rules, or the built-in ones, and applies the
// startup params diff.
func loadRules(cfg *config.Config) (*cleaner.Config, string, error) {
	rules, source := cleaner.Default(), "built-in"
	if cfg.Cleaner.Rules != "" {
		loaded, err := cleaner.LoadFile(cfg.Cleaner.Rules)
		if err != nil {
			return nil, "", err
		}
		rules, source = loaded, cfg.Cleaner.Rules
	}

	if cfg.Cleaner.ParamsDiff != "" {
		diff, err := cleaner.LoadParamsDiff(cfg.Cleaner.ParamsDiff)
		if err != nil {
			return nil, "", err
		}
		rules = rules.WithParamsDiff(diff)
	}
	return rules, source, nil
}

func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	rules, source, err := loadRules(cfg)
	if err != nil {
		return nil, err
	}

	e := &engine{rules: rules, rulesSource: source}
	if cfg.Cache.Enabled {
		e.cachePath = cfg.Cache.Path
		if e.cachePath == "" {
			e.cachePath = rules.CachePath
		}
	}
	if e.cachePath != "" {
		e.store, err = cache.Open(ctx, e.cachePath)
		if err != nil {
			return nil, fmt.Errorf("cache %s: %w", e.cachePath, err)
		}
	}

	e.cleaner = cleaner.New(rules, cleaner.WithCache(e.store))
	return e, nil
}

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}
