// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command pulsefmctl is an operator CLI for PulseFM: validating a
// configuration file before rollout and seeding a fresh DS store with its
// initial StationRecord without starting rotationd.
//
// Usage:
//
//	pulsefmctl validate -f config.yaml
//	pulsefmctl seed --data-dir ./data/ds --stubbed-duration-ms 150000
//
// Exit codes:
//   - 0: success
//   - 1: operation failed
//   - 2: usage error
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pulsefm/pulsefm/internal/config"
	"github.com/pulsefm/pulsefm/internal/ds"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "seed":
		os.Exit(runSeed(os.Args[2:]))
	case "-version", "--version":
		fmt.Println(version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  pulsefmctl validate -f config.yaml")
	fmt.Fprintln(os.Stderr, "  pulsefmctl seed --data-dir ./data/ds --stubbed-duration-ms 150000")
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	_ = fs.Parse(args)

	if file == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		return 2
	}

	loader := config.NewLoader(file, version)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %s:\n  %v\n", file, err)
		return 1
	}

	fmt.Printf("Configuration OK: %s\n", file)
	fmt.Printf("  rotation.stubbedDurationMs=%d rotation.pollOptionCount=%d\n",
		cfg.Rotation.StubbedDurationMs, cfg.Rotation.PollOptionCount)
	return 0
}

func runSeed(args []string) int {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	var dataDir string
	var stubbedDurationMs int64
	fs.StringVar(&dataDir, "data-dir", "./data/ds", "DS document store directory")
	fs.Int64Var(&stubbedDurationMs, "stubbed-duration-ms", 150_000, "duration of the fallback loop song")
	_ = fs.Parse(args)

	store, err := ds.Open(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open document store at %s: %v\n", dataDir, err)
		return 1
	}
	defer func() { _ = store.Close() }()

	if err := store.Bootstrap(context.Background(), stubbedDurationMs); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed station record: %v\n", err)
		return 1
	}

	fmt.Printf("Seeded %s with stubbed song (durationMs=%d)\n", dataDir, stubbedDurationMs)
	return 0
}
