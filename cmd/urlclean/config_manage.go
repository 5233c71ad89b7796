package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	opts := bindCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, path, err := opts.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
		return 1
	}
	if path == "" {
		path = "(defaults)"
	}

	rules, source, err := loadRules(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rules invalid: %v\n", err)
		return 1
	}

	fmt.Printf("Config: %s\n", path)
	fmt.Printf("Rules: %s (%d rules)\n", source, len(rules.Rules))
	if cfg.Cleaner.ParamsDiff != "" {
		fmt.Printf("Params diff: %s\n", cfg.Cleaner.ParamsDiff)
	}
	fmt.Printf("Fingerprint: %s\n", rules.Fingerprint())
	fmt.Println("OK")
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	opts := bindCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, _, err := opts.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
		return 1
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}
