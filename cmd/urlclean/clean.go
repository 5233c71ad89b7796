package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattjoyce/urlclean/internal/cleaner"
	"github.com/mattjoyce/urlclean/internal/dispatch"
	"github.com/mattjoyce/urlclean/internal/log"
)

func runClean(args []string) int {
	return cleanURLs(args, os.Stdin, os.Stdout, os.Stderr)
}

// cleanURLs runs one batch over the given URLs (or stdin lines) and prints one
// output line per input, in input order.
func cleanURLs(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := bindCommonFlags(fs)
	var flags stringList
	fs.Var(&flags, "flag", "Set a rules flag for this run (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, _, err := opts.load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.SetupWriter(stderr, cfg.Service.LogLevel)

	inputs := fs.Args()
	if len(inputs) == 0 {
		inputs, err = readLines(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to read stdin: %v\n", err)
			return 1
		}
	}

	jobs := make([]json.RawMessage, len(inputs))
	for i, input := range inputs {
		jobs[i] = descriptorFor(input)
	}

	ctx := context.Background()
	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to build cleaner: %v\n", err)
		return 1
	}
	defer eng.Close()

	var diff *cleaner.ParamsDiff
	if len(flags) > 0 {
		diff = &cleaner.ParamsDiff{Flags: flags}
	}

	pool := dispatch.New(cfg.Bulk.Workers, dispatch.CleanerPreparer{Cleaner: eng.cleaner})
	results, err := pool.Run(ctx, dispatch.BulkJob{Jobs: jobs, ParamsDiff: diff})
	if err != nil {
		fmt.Fprintf(stderr, "Batch failed: %v\n", err)
		return 1
	}

	out := bufio.NewWriter(stdout)
	defer out.Flush()

	failed := 0
	for _, res := range results {
		switch res.Outcome {
		case dispatch.OutcomeSucceeded:
			fmt.Fprintln(out, res.Value)
		case dispatch.OutcomeBuildFailed:
			failed++
			fmt.Fprintf(out, "ERROR build: %v\n", res.Err)
		default:
			failed++
			fmt.Fprintf(out, "ERROR run: %v\n", res.Err)
		}
	}
	if failed > 0 {
		return 2
	}
	return 0
}

// descriptorFor turns an input line into a job descriptor. Lines that are
// JSON objects pass through so they can carry a job context.
func descriptorFor(input string) json.RawMessage {
	if strings.HasPrefix(input, "{") && json.Valid([]byte(input)) {
		return json.RawMessage(input)
	}
	data, _ := json.Marshal(input)
	return data
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
