// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/pygraph/internal/clierrors"
	"github.com/kraklabs/pygraph/pkg/graphmodel"
	"github.com/kraklabs/pygraph/pkg/query"
)

// namedQueries dispatches the query-interface module's canonical graph
// queries (callers/callees/dependencies/cycles/diamonds/orphans/search) by
// name, so common questions don't require hand-written CozoScript. Anything
// not matched here falls through to a raw CozoScript passthrough.
var namedQueries = map[string]func(ctx context.Context, q *query.Querier, args []string) (any, error){
	"callers": func(ctx context.Context, q *query.Querier, args []string) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: query callers <function-id>")
		}
		return q.FindCallers(ctx, args[0])
	},
	"callees": func(ctx context.Context, q *query.Querier, args []string) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: query callees <function-id>")
		}
		return q.FindCallees(ctx, args[0])
	},
	"dependencies": func(ctx context.Context, q *query.Querier, args []string) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: query dependencies <function-id> <depth>")
		}
		var depth int
		if _, err := fmt.Sscanf(args[1], "%d", &depth); err != nil {
			return nil, fmt.Errorf("depth must be an integer: %w", err)
		}
		return q.GetFunctionDependencies(ctx, args[0], depth)
	},
	"cycles": func(ctx context.Context, q *query.Querier, args []string) (any, error) {
		return q.FindCircularDependencies(ctx)
	},
	"diamonds": func(ctx context.Context, q *query.Querier, args []string) (any, error) {
		return q.FindDiamondInheritance(ctx)
	},
	"orphans": func(ctx context.Context, q *query.Querier, args []string) (any, error) {
		return q.FindOrphanedNodes(ctx)
	},
	"search": func(ctx context.Context, q *query.Querier, args []string) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: query search <pattern>")
		}
		return q.SearchByPattern(ctx, args[0], nil)
	},
	"impact": func(ctx context.Context, q *query.Querier, args []string) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: query impact <entity-id> <modify|delete|rename>")
		}
		return q.GetImpactAnalysis(ctx, args[0], args[1])
	},
}

// runQuery executes the 'query' subcommand. The first argument selects one
// of the query-interface module's named operations (see namedQueries);
// anything else is treated as a raw CozoScript query against the store, for
// questions the named operations don't cover.
func runQuery(args []string, globals globalFlags) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	timeout := fs.Duration("timeout", 30*time.Second, "Query timeout")
	limit := fs.Int("limit", 0, "Add :limit to the query (0 = no limit, raw CozoScript only)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: pygraphctl query <operation> [args...]
       pygraphctl query <cozoscript>

Named operations: callers, callees, dependencies, cycles, diamonds,
orphans, search, impact.

Examples:
  pygraphctl query callers 3f2a9c1e7b4d8a06
  pygraphctl query search greet
  pygraphctl query '?[name, location] := *pg_function{name, location} :limit 10'

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(globals)
	st := openStore(cfg, globals)
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if op, ok := namedQueries[fs.Arg(0)]; ok {
		result, err := op(ctx, query.New(st), fs.Args()[1:])
		if err != nil {
			clierrors.FatalError(clierrors.NewInputError(
				"Query failed", err.Error(), "Check the operation's arguments", err,
			), globals.JSON)
		}
		printNamedResult(result, globals.JSON)
		return
	}

	script := strings.Join(fs.Args(), " ")
	if *limit > 0 {
		script = fmt.Sprintf("%s :limit %d", script, *limit)
	}
	result, err := st.Run(ctx, script, nil)
	if err != nil {
		clierrors.FatalError(clierrors.NewInputError(
			"Query failed", err.Error(), "Check the CozoScript syntax", err,
		), globals.JSON)
	}

	if globals.JSON {
		_ = json.NewEncoder(os.Stdout).Encode(result)
		return
	}
	printTable(result.Headers, result.Rows)
}

func printNamedResult(result any, jsonOutput bool) {
	if jsonOutput {
		_ = json.NewEncoder(os.Stdout).Encode(result)
		return
	}
	switch v := result.(type) {
	case []*graphmodel.Node:
		rows := make([][]any, len(v))
		for i, n := range v {
			rows[i] = []any{n.ID, string(n.Label), n.Name, n.Location}
		}
		printTable([]string{"id", "label", "name", "location"}, rows)
	default:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
	}
}

func printTable(headers []string, rows [][]any) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}
