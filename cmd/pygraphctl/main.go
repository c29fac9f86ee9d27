// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the pygraphctl CLI for indexing a Python
// repository into a typed property graph, querying it, and running its
// conservation-law validator — the thin entrypoint §2.1 calls for, laid
// out the way the ambient codebase's cmd/cie is laid out: global flags
// parsed with pflag.SetInterspersed(false), subcommand dispatch in main,
// one file per subcommand.
//
// Usage:
//
//	pygraphctl index [--full] [--metrics-addr addr]
//	pygraphctl query <cozoscript>
//	pygraphctl validate [--full]
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/pygraph/internal/clierrors"
)

func main() {
	var (
		configPath = flag.StringP("config", "c", "", "Path to .pygraph/project.yaml (default: auto-discover)")
		jsonOutput = flag.Bool("json", false, "Output in JSON format")
		noColor    = flag.Bool("no-color", false, "Disable color output")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `pygraphctl - typed property graph extraction and validation for Python

Usage:
  pygraphctl <command> [options]

Commands:
  index       Index a repository into the graph store
  query       Run a CozoScript query against the store
  validate    Run the conservation-law validator and print a report

Global Options:
  -c, --config      Path to .pygraph/project.yaml
      --json        Output in JSON format
      --no-color    Disable color output
      --debug       Enable debug logging

For detailed command help: pygraphctl <command> --help
`)
	}

	flag.Parse()
	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	globals := globalFlags{ConfigPath: *configPath, JSON: *jsonOutput, NoColor: *noColor, Debug: *debug}
	command, cmdArgs := args[0], args[1:]

	switch command {
	case "index":
		runIndex(cmdArgs, globals)
	case "query":
		runQuery(cmdArgs, globals)
	case "validate":
		runValidate(cmdArgs, globals)
	default:
		clierrors.FatalError(clierrors.NewInputError(
			"Unknown command",
			fmt.Sprintf("%q is not a pygraphctl command", command),
			"Run 'pygraphctl --help' to see available commands",
			nil,
		), globals.JSON)
	}
}

// globalFlags carries the flags every subcommand reads.
type globalFlags struct {
	ConfigPath string
	JSON       bool
	NoColor    bool
	Debug      bool
}
