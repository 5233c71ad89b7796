package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattjoyce/urlclean/internal/api"
	"github.com/mattjoyce/urlclean/internal/config"
	"github.com/mattjoyce/urlclean/internal/dispatch"
	"github.com/mattjoyce/urlclean/internal/log"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			os.Exit(0)
		}
		os.Exit(runServe(args))
	case "clean":
		if hasHelpFlag(args) {
			printCleanHelp()
			os.Exit(0)
		}
		os.Exit(runClean(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "version":
		fmt.Printf("urlclean version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`urlclean - Remove tracking parameters and redirect wrappers from URLs

Usage:
  urlclean <command> [flags]

Commands:
  serve             Run the HTTP API
  clean [url...]    Clean URLs from arguments or stdin, one per line
  config check      Validate configuration and rules
  config show       Print the effective configuration
  version           Show version information
  help              Show this help message

Use 'urlclean <command> --help' for command-specific flags.
`)
}

func printServeHelp() {
	fmt.Print(`Usage: urlclean serve [--config PATH] [--rules PATH] [--params-diff PATH]
                      [--bind ADDR] [--port N] [--max-size SIZE] [--workers N]
                      [--cache-path PATH] [--no-cache] [--log-level LEVEL]
`)
}

func printCleanHelp() {
	fmt.Print(`Usage: urlclean clean [--config PATH] [--rules PATH] [--params-diff PATH]
                      [--workers N] [--flag NAME]... [--no-cache] [url...]

Reads one URL per line from stdin when no URLs are given. Prints one line per
input, in input order: the cleaned URL, or "ERROR <build|run>: <message>".
Exits 2 if any URL failed.
`)
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: urlclean config <check|show> [--config PATH] [--rules PATH] [--params-diff PATH]")
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	opts := bindCommonFlags(fs)
	bind := fs.String("bind", "", "Address to listen on")
	port := fs.Int("port", 0, "Port to listen on")
	var maxSize config.ByteSize
	fs.Var(&maxSize, "max-size", "Largest accepted /clean body (e.g. 25MiB)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, configPath, err := opts.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bind":
			cfg.API.Bind = *bind
		case "port":
			cfg.API.Port = *port
		case "max-size":
			cfg.API.MaxJSONSize = maxSize
		case "log-level":
			cfg.Service.LogLevel = strings.ToLower(*logLevel)
		}
	})
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("urlclean starting", "version", version, "config", configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		logger.Error("failed to build cleaner", "error", err)
		return 1
	}
	defer eng.Close()
	logger.Info("rules loaded",
		"source", eng.rulesSource,
		"rules", len(eng.rules.Rules),
		"fingerprint", eng.rules.Fingerprint(),
		"cache", eng.cachePath,
	)

	pool := dispatch.New(cfg.Bulk.Workers, dispatch.CleanerPreparer{Cleaner: eng.cleaner})
	apiServer := api.New(api.Config{
		Listen:      cfg.API.Addr(),
		MaxJSONSize: int64(cfg.API.MaxJSONSize),
		CORS:        cfg.API.CORS,
	}, pool, eng.rules, log.WithComponent("api"))
	if eng.store != nil {
		apiServer.WithCache(eng.store)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- apiServer.Start(ctx)
	}()

	logger.Info("urlclean running (press Ctrl+C to stop)", "listen", cfg.API.Addr(), "workers", pool.Width())

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("shutdown failed", "error", err)
			return 1
		}
	case err := <-done:
		logger.Error("api server failed", "error", err)
		return 1
	}

	logger.Info("urlclean stopped", "batches", pool.Batches())
	return 0
}
