// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package validator runs the four conservation laws (Signature,
// Referential, Type-flow, Structural) over the store's graph, built fresh
// in the ambient codebase's idiom since it has no direct equivalent,
// grounded secondarily on a reference ConservationValidator design for the
// four-law semantics and the default decorator allow-list.
package validator

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
	"github.com/kraklabs/pygraph/pkg/ids"
	"github.com/kraklabs/pygraph/pkg/store"
)

// ViolationKind mirrors the four conservation-law families.
type ViolationKind string

const (
	KindSignatureMismatch ViolationKind = "signature_mismatch"
	KindReferenceBroken   ViolationKind = "reference_broken"
	KindDataFlowInvalid   ViolationKind = "data_flow_invalid"
	KindStructuralInvalid ViolationKind = "structural_invalid"
)

// Severity is a violation's urgency.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is one conservation-law finding.
type Violation struct {
	Kind         ViolationKind
	Severity     Severity
	EntityID     string
	Message      string
	Details      map[string]any
	FilePath     string
	LineNumber   int
	ColumnNumber int
	OldValue     any
	NewValue     any
	CodeSnippet  string
}

// DefaultSignatureTransformingDecorators is the default, overridable
// allow-list of decorators that legitimately change a function's calling
// convention.
func DefaultSignatureTransformingDecorators() []string {
	return []string{
		"property", "staticmethod", "classmethod", "dataclass",
		"app.route", "api.get", "api.post", "click.command", "click.group",
	}
}

// Validator runs the four conservation laws against a store.
type Validator struct {
	Store                          *store.Store
	SignatureTransformingDecorators map[string]bool
}

// New returns a Validator. An empty allowList falls back to
// DefaultSignatureTransformingDecorators.
func New(st *store.Store, allowList []string) *Validator {
	if len(allowList) == 0 {
		allowList = DefaultSignatureTransformingDecorators()
	}
	set := make(map[string]bool, len(allowList))
	for _, d := range allowList {
		set[d] = true
	}
	return &Validator{Store: st, SignatureTransformingDecorators: set}
}

// ValidateAll runs every law over the whole graph.
func (v *Validator) ValidateAll(ctx context.Context) ([]Violation, error) {
	return v.run(ctx, nil)
}

// ValidateIncremental runs every law restricted to nodes whose changed
// flag is currently set.
func (v *Validator) ValidateIncremental(ctx context.Context) ([]Violation, error) {
	changed, err := v.Store.GetChangedIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return nil, nil
	}
	only := make(map[string]bool, len(changed))
	for _, id := range changed {
		only[id] = true
	}
	return v.run(ctx, only)
}

// run executes every law. only, when non-nil, restricts each law's primary
// entities to that id set — the incremental mode of §4.6.
func (v *Validator) run(ctx context.Context, only map[string]bool) ([]Violation, error) {
	var all []Violation

	sig, err := v.validateSignatureConservation(ctx, only)
	if err != nil {
		return nil, fmt.Errorf("signature conservation: %w", err)
	}
	all = append(all, sig...)

	ref, err := v.validateReferentialIntegrity(ctx, only)
	if err != nil {
		return nil, fmt.Errorf("referential integrity: %w", err)
	}
	all = append(all, ref...)

	flow, err := v.validateDataFlowConsistency(ctx, only)
	if err != nil {
		return nil, fmt.Errorf("data-flow consistency: %w", err)
	}
	all = append(all, flow...)

	structural, err := v.validateStructuralIntegrity(ctx, only)
	if err != nil {
		return nil, fmt.Errorf("structural integrity: %w", err)
	}
	all = append(all, structural...)

	return all, nil
}

// codeSnippet reads ±context lines around line (1-indexed) from path,
// marking the offending line with a ">>> NNNN | " marker.
func codeSnippet(path string, line, context int) string {
	if path == "" || line <= 0 {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	start := line - context - 1
	if start < 0 {
		start = 0
	}
	end := line + context
	if end > len(lines) {
		end = len(lines)
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		prefix := "    "
		if i == line-1 {
			prefix = ">>> "
		}
		fmt.Fprintf(&sb, "%s%4d | %s\n", prefix, i+1, lines[i])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func locationOf(node *graphmodel.Node) (path string, line, col int) {
	p, l, c := ids.ParseLocation(node.Location)
	if l != nil {
		line = *l
	}
	if c != nil {
		col = *c
	}
	return p, line, col
}

func includesAny(cycle []string, only map[string]bool) bool {
	if only == nil {
		return true
	}
	for _, id := range cycle {
		if only[id] {
			return true
		}
	}
	return false
}

// findCycles runs a recursive DFS over adjacency, returning every
// simple cycle found, the same shape pkg/query uses for inheritance/call
// cycles — duplicated here rather than imported so the validator has no
// dependency on the query façade.
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
				for i, id2 := range path {
					if id2 == next {
						cycle := append([]string{}, path[i:]...)
						cycles = append(cycles, append(cycle, next))
						break
					}
				}
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
