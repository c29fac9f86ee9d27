// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package builder materializes one extractor.ParseResult at a time into the
// store, resolving CALLS_UNRESOLVED call-site placeholders against the
// current file's symbol table first, then the whole-project store index,
// exactly as the ambient codebase's CallResolver does for cross-package Go
// calls.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/kraklabs/pygraph/pkg/extractor"
	"github.com/kraklabs/pygraph/pkg/graphmodel"
	"github.com/kraklabs/pygraph/pkg/store"
)

// maxWorkers caps the fan-out pool the same way the ambient codebase's own
// CallResolver.resolveCallsParallel does.
func maxWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}

// Builder drives the per-file protocol of §4.4: delete-by-prefix,
// initialize schema, upsert nodes, resolve calls, upsert edges.
type Builder struct {
	Store     *store.Store
	Extractor extractor.Extractor
	Logger    *slog.Logger
}

// New returns a ready-to-use Builder. logger may be nil.
func New(st *store.Store, ex extractor.Extractor, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{Store: st, Extractor: ex, Logger: logger}
}

// BuildReport summarizes one BuildFile/BuildDirectory call, per §8's
// testable-property need to assert on resolved vs. unresolved call counts.
type BuildReport struct {
	Path            string
	NodesUpserted   int
	EdgesUpserted   int
	EdgesSkipped    int
	CallsResolved   int
	CallsUnresolved int
	Errors          []error
}

func (r *BuildReport) merge(other *BuildReport) {
	r.NodesUpserted += other.NodesUpserted
	r.EdgesUpserted += other.EdgesUpserted
	r.EdgesSkipped += other.EdgesSkipped
	r.CallsResolved += other.CallsResolved
	r.CallsUnresolved += other.CallsUnresolved
	r.Errors = append(r.Errors, other.Errors...)
}

// fileBuildState carries one file's extraction result between the
// node-upsert phase and the call-resolution phase, so BuildDirectory can
// upsert every file's nodes before resolving any file's calls — call
// resolution needs the whole project's functions already in the store.
type fileBuildState struct {
	path   string
	result *extractor.ParseResult
	report *BuildReport
}

// BuildFile re-indexes a single file end to end: delete its existing slice,
// re-extract, upsert nodes, resolve calls, upsert edges. Safe to call
// concurrently with builds of other files, and with other project state
// already resolved in the store (the incremental driver's common case).
func (b *Builder) BuildFile(ctx context.Context, path string) (*BuildReport, error) {
	state, err := b.upsertNodesForFile(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	if err := b.resolveAndUpsertEdges(ctx, state); err != nil {
		return state.report, err
	}
	return state.report, nil
}

// BuildSource is BuildFile for already-read content, used by the driver
// when the caller already holds the file bytes.
func (b *Builder) BuildSource(ctx context.Context, path string, content []byte) (*BuildReport, error) {
	state, err := b.upsertNodesForFile(ctx, path, content)
	if err != nil {
		return nil, err
	}
	if err := b.resolveAndUpsertEdges(ctx, state); err != nil {
		return state.report, err
	}
	return state.report, nil
}

// upsertNodesForFile performs §4.4 steps 1-3: delete the file's existing
// slice, re-extract, and upsert every node. Call resolution (step 4) is
// deferred to resolveAndUpsertEdges so a caller indexing many files can run
// every file's node phase before any file's edge phase.
func (b *Builder) upsertNodesForFile(ctx context.Context, path string, content []byte) (*fileBuildState, error) {
	var result *extractor.ParseResult
	var err error
	if content != nil {
		result, err = b.Extractor.ParseSource(ctx, content, path)
	} else {
		result, err = extractor.ParseFile(ctx, b.Extractor, path)
	}
	if err != nil {
		return nil, err
	}

	report := &BuildReport{Path: path}
	for _, e := range result.Errors {
		report.Errors = append(report.Errors, e)
	}

	err = b.Store.WithPathLock(path, func() error {
		if err := b.Store.InitializeSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
		if _, err := b.Store.DeleteNodesByLocationPrefix(ctx, path); err != nil {
			return fmt.Errorf("delete existing slice: %w", err)
		}
		for _, node := range result.Graph.Nodes {
			if err := b.Store.UpsertNode(ctx, node); err != nil {
				b.Logger.Warn("builder.upsert_node.failed", "id", node.ID, "label", node.Label, "err", err)
				continue
			}
			report.NodesUpserted++
		}
		return nil
	})

	return &fileBuildState{path: path, result: result, report: report}, err
}

// resolveAndUpsertEdges performs §4.4 steps 4-5 against the current store
// state: resolve every CALLS_UNRESOLVED placeholder, then upsert every
// edge (including the non-call relationships untouched by resolution).
func (b *Builder) resolveAndUpsertEdges(ctx context.Context, state *fileBuildState) error {
	return b.Store.WithPathLock(state.path, func() error {
		resolved := b.resolveCalls(ctx, state.result, state.report)
		for _, e := range resolved {
			skipped, err := b.Store.UpsertEdge(ctx, e)
			if err != nil {
				b.Logger.Debug("builder.upsert_edge.failed", "from", e.From, "to", e.To, "type", e.Type, "err", err)
				continue
			}
			if skipped {
				b.Logger.Debug("builder.upsert_edge.skipped_missing_endpoint", "from", e.From, "to", e.To, "type", e.Type)
				state.report.EdgesSkipped++
				continue
			}
			state.report.EdgesUpserted++
		}
		return nil
	})
}

// resolveCalls walks result's edges, resolving every CALLS_UNRESOLVED
// placeholder per §4.4's tie-break rules and returning the full edge list
// with placeholders replaced by a CALLS/RESOLVES_TO pair (or dropped, with
// the CallSite's node fields updated in place, when resolution fails).
func (b *Builder) resolveCalls(ctx context.Context, result *extractor.ParseResult, report *BuildReport) []graphmodel.Edge {
	var out []graphmodel.Edge
	for _, e := range result.Graph.Edges {
		if e.Type != graphmodel.EdgeCallsUnresolved {
			out = append(out, e)
			continue
		}

		calleeText, _ := e.Properties["callee_text"].(string)
		callSite, ok := result.Graph.Nodes[e.From]
		if !ok || callSite.CallSite == nil {
			continue
		}

		targetID := b.resolveCalleeName(ctx, result, calleeText)
		if targetID != "" {
			callSite.CallSite.ResolutionStatus = graphmodel.ResolutionResolved
			if err := b.Store.UpsertNode(ctx, callSite); err != nil {
				b.Logger.Debug("builder.callsite.mark_resolved_failed", "id", callSite.ID, "err", err)
			}
			out = append(out, graphmodel.Edge{
				From: e.From, To: targetID, Type: graphmodel.EdgeCalls,
				Properties: map[string]any{"resolution_status": "resolved"},
			})
			out = append(out, graphmodel.Edge{
				From: e.From, To: targetID, Type: graphmodel.EdgeResolvesTo,
				Properties: map[string]any{"resolution_status": "resolved"},
			})
			report.CallsResolved++
			continue
		}

		callSite.CallSite.ResolutionStatus = graphmodel.ResolutionUnresolved
		callSite.CallSite.UnresolvedCallee = calleeText
		if err := b.Store.UpsertNode(ctx, callSite); err != nil {
			b.Logger.Debug("builder.callsite.mark_unresolved_failed", "id", callSite.ID, "err", err)
		}
		report.CallsUnresolved++
	}
	return out
}

// resolveCalleeName implements the fixed tie-break order: first the
// current file's entity map (exact name or a qualified name ending in
// ".callee"), then the store-wide resolve_function_id lookup.
func (b *Builder) resolveCalleeName(ctx context.Context, result *extractor.ParseResult, calleeText string) string {
	simple := simpleCalleeName(calleeText)

	if id, isBuiltin, ok := result.Scope.Resolve(simple); ok && !isBuiltin {
		if node, exists := result.Graph.Nodes[id]; exists && node.Label == graphmodel.LabelFunction {
			return id
		}
	}
	for _, node := range result.Graph.Nodes {
		if node.Label != graphmodel.LabelFunction {
			continue
		}
		if node.Name == simple || strings.HasSuffix(node.Function.QualifiedName, "."+simple) {
			return node.ID
		}
	}

	id, err := b.Store.ResolveFunctionID(ctx, simple)
	if err != nil {
		b.Logger.Debug("builder.resolve_function_id.failed", "callee", simple, "err", err)
		return ""
	}
	return id
}

func simpleCalleeName(calleeText string) string {
	if idx := strings.LastIndex(calleeText, "."); idx >= 0 {
		return calleeText[idx+1:]
	}
	return calleeText
}

var ignoredDirs = map[string]bool{
	".git": true, "__pycache__": true, ".venv": true, "venv": true, "node_modules": true,
}

// BuildDirectory re-indexes every `.py` file under root, fanning file-level
// work out across a bounded worker pool — mirroring the ambient codebase's
// own resolveCallsParallel cap — and aggregating the per-file reports.
func (b *Builder) BuildDirectory(ctx context.Context, root string) (*BuildReport, error) {
	var paths []string
	walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(p, ".py") {
			paths = append(paths, p)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	total := &BuildReport{Path: root}
	if len(paths) == 0 {
		return total, nil
	}

	numWorkers := maxWorkers()
	if numWorkers > len(paths) {
		numWorkers = len(paths)
	}

	// Phase 1: extract and upsert every file's nodes across the worker
	// pool. Phase 2 (call resolution) only starts once every file's
	// functions are already in the store, so cross-file calls resolve
	// regardless of which worker happened to finish its file first.
	states := make([]*fileBuildState, len(paths))
	runPool(ctx, numWorkers, len(paths), func(i int) error {
		state, err := b.upsertNodesForFile(ctx, paths[i], nil)
		states[i] = state
		if err != nil {
			b.Logger.Warn("builder.build_directory.node_phase_failed", "path", paths[i], "err", err)
		}
		return err
	})

	runPool(ctx, numWorkers, len(paths), func(i int) error {
		if states[i] == nil {
			return nil
		}
		if err := b.resolveAndUpsertEdges(ctx, states[i]); err != nil {
			b.Logger.Warn("builder.build_directory.edge_phase_failed", "path", paths[i], "err", err)
			states[i].report.Errors = append(states[i].report.Errors, err)
		}
		return nil
	})

	for i, p := range paths {
		if states[i] == nil {
			total.merge(&BuildReport{Path: p, Errors: []error{fmt.Errorf("extract failed for %s", p)}})
			continue
		}
		total.merge(states[i].report)
	}

	return total, ctx.Err()
}

// runPool fans work over [0, n) across numWorkers goroutines; it does not
// abort on individual failures so one bad file doesn't stop the rest of
// the project from indexing.
func runPool(ctx context.Context, numWorkers, n int, work func(i int) error) {
	jobs := make(chan int, n)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				_ = work(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
