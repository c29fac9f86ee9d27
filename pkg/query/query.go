// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package query is a thin, typed façade over the store, grounded on the
// ambient codebase's pkg/tools (FindFunction, FindCallers, FindCallees,
// TracePath, SearchText) but returning graphmodel values directly instead
// of Markdown-formatted ToolResult strings — the consumer here is other Go
// code (the driver, the CLI), not a chat model.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
	"github.com/kraklabs/pygraph/pkg/store"
)

// Querier wraps a store.Store with the canonical graph queries named by
// the query-interface module: callers/callees, dependencies, cycles,
// diamond inheritance, orphans, search.
type Querier struct {
	Store *store.Store
}

// New returns a Querier backed by st.
func New(st *store.Store) *Querier {
	return &Querier{Store: st}
}

// FindFunction returns every Function node whose name or qualified name
// contains name, case-insensitively (Store.Search restricted to
// Function); there is no separate exact-match step.
func (q *Querier) FindFunction(ctx context.Context, name string) ([]*graphmodel.Node, error) {
	if name == "" {
		return nil, fmt.Errorf("query: name is required")
	}
	label := graphmodel.LabelFunction
	return q.Store.Search(ctx, name, &label, 0)
}

// FindCallers returns every Function with a CallSite that RESOLVES_TO
// functionID, per §4.5's "traverse HAS_CALLSITE -> RESOLVES_TO" rule run
// in reverse.
func (q *Querier) FindCallers(ctx context.Context, functionID string) ([]*graphmodel.Node, error) {
	resolves, err := q.Store.NodeEdges(ctx, functionID, []graphmodel.EdgeType{graphmodel.EdgeResolvesTo})
	if err != nil {
		return nil, err
	}
	callerFns := map[string]bool{}
	for _, e := range resolves {
		if e.To != functionID {
			continue
		}
		callSite, err := q.Store.NodeByID(ctx, e.From)
		if err != nil || callSite == nil || callSite.CallSite == nil {
			continue
		}
		callerFns[callSite.CallSite.CallerID] = true
	}
	return q.hydrateAll(ctx, callerFns)
}

// FindCallees returns every Function that functionID's own CallSites
// RESOLVES_TO.
func (q *Querier) FindCallees(ctx context.Context, functionID string) ([]*graphmodel.Node, error) {
	callSites, err := q.Store.NodeEdges(ctx, functionID, []graphmodel.EdgeType{graphmodel.EdgeHasCallSite})
	if err != nil {
		return nil, err
	}
	calleeFns := map[string]bool{}
	for _, cs := range callSites {
		if cs.From != functionID {
			continue
		}
		resolves, err := q.Store.NodeEdges(ctx, cs.To, []graphmodel.EdgeType{graphmodel.EdgeResolvesTo})
		if err != nil {
			continue
		}
		for _, r := range resolves {
			if r.From == cs.To {
				calleeFns[r.To] = true
			}
		}
	}
	return q.hydrateAll(ctx, calleeFns)
}

func (q *Querier) hydrateAll(ctx context.Context, ids map[string]bool) ([]*graphmodel.Node, error) {
	var out []*graphmodel.Node
	for id := range ids {
		n, err := q.Store.NodeByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if n != nil {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FunctionSignature is a Function node with its parameters in declared
// position order, per get_function_signature's contract.
type FunctionSignature struct {
	Function   *graphmodel.Node
	Parameters []*graphmodel.Node
}

// GetFunctionSignature returns functionID's node together with its
// Parameter children ordered by ParameterAttrs.Position.
func (q *Querier) GetFunctionSignature(ctx context.Context, functionID string) (*FunctionSignature, error) {
	fn, err := q.Store.NodeByID(ctx, functionID)
	if err != nil {
		return nil, err
	}
	if fn == nil || fn.Function == nil {
		return nil, fmt.Errorf("query: %s is not a Function", functionID)
	}
	edges, err := q.Store.NodeEdges(ctx, functionID, []graphmodel.EdgeType{graphmodel.EdgeHasParameter})
	if err != nil {
		return nil, err
	}
	var params []*graphmodel.Node
	for _, e := range edges {
		if e.From != functionID {
			continue
		}
		p, err := q.Store.NodeByID(ctx, e.To)
		if err != nil || p == nil {
			continue
		}
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Parameter.Position < params[j].Parameter.Position })
	return &FunctionSignature{Function: fn, Parameters: params}, nil
}

// DependencyHop is one function reached during GetFunctionDependencies, at
// logical distance Distance (number of RESOLVES_TO hops) from the root.
type DependencyHop struct {
	Function *graphmodel.Node
	Distance int
}

// DependencyReport holds the outbound (transitive callees) and inbound
// (transitive callers) results of GetFunctionDependencies.
type DependencyReport struct {
	Outbound []DependencyHop
	Inbound  []DependencyHop
}

// GetFunctionDependencies performs two iterative, non-recursive BFS walks
// — one over HAS_CALLSITE->RESOLVES_TO (outbound) and one over its reverse
// (inbound) — bounded to depth logical hops, matching the ambient
// codebase's trace.go frontier-queue shape.
func (q *Querier) GetFunctionDependencies(ctx context.Context, functionID string, depth int) (*DependencyReport, error) {
	outbound, err := q.bfsCallGraph(ctx, functionID, depth, q.FindCallees)
	if err != nil {
		return nil, err
	}
	inbound, err := q.bfsCallGraph(ctx, functionID, depth, q.FindCallers)
	if err != nil {
		return nil, err
	}
	return &DependencyReport{Outbound: outbound, Inbound: inbound}, nil
}

func (q *Querier) bfsCallGraph(ctx context.Context, root string, depth int, step func(context.Context, string) ([]*graphmodel.Node, error)) ([]DependencyHop, error) {
	visited := map[string]bool{root: true}
	var out []DependencyHop
	frontier := []string{root}
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := step(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n.ID] {
					continue
				}
				visited[n.ID] = true
				out = append(out, DependencyHop{Function: n, Distance: d})
				next = append(next, n.ID)
			}
		}
		frontier = next
	}
	return out, nil
}

// FindOrphanedNodes returns every node with no incident edge, excluding
// Parameter and Type which may be legitimately isolated during partial
// rebuilds.
func (q *Querier) FindOrphanedNodes(ctx context.Context) ([]*graphmodel.Node, error) {
	nodes, err := q.Store.AllNodes(ctx, 0)
	if err != nil {
		return nil, err
	}
	edges, err := q.Store.AllEdges(ctx, 0)
	if err != nil {
		return nil, err
	}
	touched := map[string]bool{}
	for _, e := range edges {
		touched[e.From] = true
		touched[e.To] = true
	}
	var orphans []*graphmodel.Node
	for _, n := range nodes {
		if n.Label == graphmodel.LabelParameter || n.Label == graphmodel.LabelType {
			continue
		}
		if !touched[n.ID] {
			orphans = append(orphans, n)
		}
	}
	return orphans, nil
}

// FindCircularDependencies detects cycles in the resolved call graph
// (Function --CallSite-->RESOLVES_TO--> Function), returning each cycle as
// an ordered list of function IDs closing back on the first element.
func (q *Querier) FindCircularDependencies(ctx context.Context) ([][]string, error) {
	adjacency, err := q.callGraphAdjacency(ctx)
	if err != nil {
		return nil, err
	}
	return findCycles(adjacency), nil
}

// FindCircularInheritance detects cycles in the Class INHERITS graph.
func (q *Querier) FindCircularInheritance(ctx context.Context) ([][]string, error) {
	edges, err := q.Store.AllEdges(ctx, 0)
	if err != nil {
		return nil, err
	}
	adjacency := map[string][]string{}
	for _, e := range edges {
		if e.Type == graphmodel.EdgeInherits {
			adjacency[e.From] = append(adjacency[e.From], e.To)
		}
	}
	return findCycles(adjacency), nil
}

func (q *Querier) callGraphAdjacency(ctx context.Context) (map[string][]string, error) {
	edges, err := q.Store.AllEdges(ctx, 0)
	if err != nil {
		return nil, err
	}
	callSiteOwner := map[string]string{} // CallSite id -> owning Function id
	callSiteTarget := map[string]string{} // CallSite id -> resolved Function id
	for _, e := range edges {
		switch e.Type {
		case graphmodel.EdgeHasCallSite:
			callSiteOwner[e.To] = e.From
		case graphmodel.EdgeResolvesTo:
			callSiteTarget[e.From] = e.To
		}
	}
	adjacency := map[string][]string{}
	for callSiteID, target := range callSiteTarget {
		owner, ok := callSiteOwner[callSiteID]
		if !ok {
			continue
		}
		adjacency[owner] = append(adjacency[owner], target)
	}
	return adjacency, nil
}

// findCycles runs DFS with a recursion-stack set over adjacency, returning
// each distinct simple cycle found (path from the first repeated node back
// to itself).
func findCycles(adjacency map[string][]string) [][]string {
	var cycles [][]string
	visited := map[string]bool{}
	onStack := map[string]bool{}
	var path []string

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, next := range adjacency[id] {
			if onStack[next] {
				cycle := extractCycle(path, next)
				cycles = append(cycles, cycle)
				continue
			}
			if !visited[next] {
				visit(next)
			}
		}

		path = path[:len(path)-1]
		onStack[id] = false
	}

	var roots []string
	for id := range adjacency {
		roots = append(roots, id)
	}
	sort.Strings(roots)
	for _, id := range roots {
		if !visited[id] {
			visit(id)
		}
	}
	return cycles
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func extractCycle(path []string, repeated string) []string {
	for i, id := range path {
		if id == repeated {
			cycle := append([]string{}, path[i:]...)
			return append(cycle, repeated)
		}
	}
	return []string{repeated}
}

// DiamondInheritance is a base class reached from a derived class through
// two or more distinct parent chains.
type DiamondInheritance struct {
	DerivedID string
	BaseID    string
	Paths     [][]string
}

// FindDiamondInheritance walks every Class's INHERITS ancestry and reports
// any base reachable via more than one distinct path.
func (q *Querier) FindDiamondInheritance(ctx context.Context) ([]DiamondInheritance, error) {
	edges, err := q.Store.AllEdges(ctx, 0)
	if err != nil {
		return nil, err
	}
	bases := map[string][]string{}
	for _, e := range edges {
		if e.Type == graphmodel.EdgeInherits {
			bases[e.From] = append(bases[e.From], e.To)
		}
	}

	var diamonds []DiamondInheritance
	var classIDs []string
	for id := range bases {
		classIDs = append(classIDs, id)
	}
	sort.Strings(classIDs)

	for _, derived := range classIDs {
		pathsTo := map[string][][]string{}
		var walk func(id string, trail []string)
		walk = func(id string, trail []string) {
			for _, base := range bases[id] {
				if containsID(trail, base) {
					continue
				}
				next := append(append([]string{}, trail...), base)
				pathsTo[base] = append(pathsTo[base], next)
				walk(base, next)
			}
		}
		walk(derived, []string{derived})

		var baseIDs []string
		for base := range pathsTo {
			baseIDs = append(baseIDs, base)
		}
		sort.Strings(baseIDs)
		for _, base := range baseIDs {
			if len(pathsTo[base]) > 1 {
				diamonds = append(diamonds, DiamondInheritance{DerivedID: derived, BaseID: base, Paths: pathsTo[base]})
			}
		}
	}
	return diamonds, nil
}

// ImpactAnalysis reports what a proposed change to an entity would touch.
type ImpactAnalysis struct {
	EntityID        string
	ChangeType      string
	AffectedCallers []*graphmodel.Node
	References      []graphmodel.Edge
	CascadeByType   map[graphmodel.EdgeType]int // populated only for change_type = delete
}

// GetImpactAnalysis reports affected callers, references, and (for delete)
// a per-relationship-type cascade summary for entityID.
func (q *Querier) GetImpactAnalysis(ctx context.Context, entityID string, changeType string) (*ImpactAnalysis, error) {
	switch changeType {
	case "modify", "delete", "rename":
	default:
		return nil, fmt.Errorf("query: unknown change_type %q", changeType)
	}

	callers, err := q.FindCallers(ctx, entityID)
	if err != nil {
		return nil, err
	}
	references, err := q.Store.NodeEdges(ctx, entityID, []graphmodel.EdgeType{graphmodel.EdgeReferences})
	if err != nil {
		return nil, err
	}

	report := &ImpactAnalysis{
		EntityID:        entityID,
		ChangeType:      changeType,
		AffectedCallers: callers,
		References:      references,
	}

	if changeType == "delete" {
		all, err := q.Store.NodeEdges(ctx, entityID, nil)
		if err != nil {
			return nil, err
		}
		cascade := map[graphmodel.EdgeType]int{}
		for _, e := range all {
			cascade[e.Type]++
		}
		report.CascadeByType = cascade
	}

	return report, nil
}

// SearchByPattern performs a case-insensitive substring match against name
// or qualified_name, optionally restricted to label.
func (q *Querier) SearchByPattern(ctx context.Context, pattern string, label *graphmodel.Label) ([]*graphmodel.Node, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("query: pattern is required")
	}
	return q.Store.Search(ctx, pattern, label, 0)
}
