// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package validator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
)

// validateStructuralIntegrity implements the Structural law.
func (v *Validator) validateStructuralIntegrity(ctx context.Context, only map[string]bool) ([]Violation, error) {
	nodes, err := v.Store.AllNodes(ctx, 0)
	if err != nil {
		return nil, err
	}
	edges, err := v.Store.AllEdges(ctx, 0)
	if err != nil {
		return nil, err
	}

	byID := map[string]*graphmodel.Node{}
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var violations []Violation

	for _, n := range nodes {
		if n.Label != graphmodel.LabelFunction {
			continue
		}
		if only != nil && !only[n.ID] {
			continue
		}
		violations = append(violations, v.checkParameterPositions(ctx, n)...)
	}

	incomingParamEdges := map[string]int{}
	for _, e := range edges {
		if e.Type == graphmodel.EdgeHasParameter {
			incomingParamEdges[e.To]++
		}
	}
	for _, n := range nodes {
		if n.Label != graphmodel.LabelParameter {
			continue
		}
		if only != nil && !only[n.ID] {
			continue
		}
		if incomingParamEdges[n.ID] != 1 {
			path, line, col := locationOf(n)
			violations = append(violations, Violation{
				Kind: KindStructuralInvalid, Severity: SeverityError, EntityID: n.ID,
				Message:      fmt.Sprintf("parameter %q has %d incoming HAS_PARAMETER edges, expected exactly 1", n.Name, incomingParamEdges[n.ID]),
				FilePath:     path, LineNumber: line, ColumnNumber: col,
				CodeSnippet: codeSnippet(path, line, 2),
			})
		}
	}

	violations = append(violations, v.checkInheritanceCyclesAndDiamonds(edges, only)...)

	for _, e := range edges {
		if only != nil && !only[e.From] && !only[e.To] {
			continue
		}
		from, okFrom := byID[e.From]
		to, okTo := byID[e.To]
		if !okFrom || !okTo {
			continue
		}
		if !graphmodel.EdgeAdmissible(e.Type, from.Label, to.Label) {
			violations = append(violations, Violation{
				Kind: KindStructuralInvalid, Severity: SeverityError, EntityID: e.From,
				Message: fmt.Sprintf("Invalid %s: %s -> %s", e.Type, from.Label, to.Label),
				Details: map[string]any{"from": e.From, "to": e.To, "edge_type": string(e.Type)},
			})
		}
	}

	return violations, nil
}

// checkParameterPositions requires a Function's parameters to occupy
// exactly [0, 1, ..., n-1] with no gaps or duplicates.
func (v *Validator) checkParameterPositions(ctx context.Context, fn *graphmodel.Node) []Violation {
	params, err := v.orderedParameters(ctx, fn.ID)
	if err != nil || len(params) == 0 {
		return nil
	}
	positions := make([]int, len(params))
	for i, p := range params {
		positions[i] = p.Parameter.Position
	}
	sort.Ints(positions)
	expected := make([]int, len(params))
	mismatched := false
	for i := range expected {
		expected[i] = i
		if positions[i] != i {
			mismatched = true
		}
	}
	if !mismatched {
		return nil
	}
	path, line, col := locationOf(fn)
	return []Violation{{
		Kind: KindStructuralInvalid, Severity: SeverityError, EntityID: fn.ID,
		Message:      fmt.Sprintf("Function %s has non-sequential parameter positions", fn.Name),
		OldValue:     positions, NewValue: expected,
		FilePath: path, LineNumber: line, ColumnNumber: col,
		CodeSnippet: codeSnippet(path, line, 2),
	}}
}

// checkInheritanceCyclesAndDiamonds reports INHERITS cycles as errors and
// diamonds (a base reachable via more than one distinct parent chain) as
// warnings.
func (v *Validator) checkInheritanceCyclesAndDiamonds(edges []graphmodel.Edge, only map[string]bool) []Violation {
	bases := map[string][]string{}
	for _, e := range edges {
		if e.Type == graphmodel.EdgeInherits {
			bases[e.From] = append(bases[e.From], e.To)
		}
	}

	var violations []Violation
	for _, cycle := range findCycles(bases) {
		if !includesAny(cycle, only) {
			continue
		}
		violations = append(violations, Violation{
			Kind: KindStructuralInvalid, Severity: SeverityError, EntityID: cycle[0],
			Message: fmt.Sprintf("inheritance cycle: %s", strings.Join(cycle, " -> ")),
			Details: map[string]any{"cycle": cycle},
		})
	}

	var classIDs []string
	for id := range bases {
		classIDs = append(classIDs, id)
	}
	sort.Strings(classIDs)
	for _, derived := range classIDs {
		if only != nil && !only[derived] {
			continue
		}
		pathsTo := map[string]int{}
		onPath := map[string]bool{derived: true}
		var walk func(id string)
		walk = func(id string) {
			for _, base := range bases[id] {
				pathsTo[base]++
				if onPath[base] {
					continue
				}
				onPath[base] = true
				walk(base)
				onPath[base] = false
			}
		}
		walk(derived)

		var baseIDs []string
		for base := range pathsTo {
			baseIDs = append(baseIDs, base)
		}
		sort.Strings(baseIDs)
		for _, base := range baseIDs {
			if pathsTo[base] > 1 {
				violations = append(violations, Violation{
					Kind: KindStructuralInvalid, Severity: SeverityWarning, EntityID: derived,
					Message: fmt.Sprintf("diamond inheritance: %s reaches %s via %d distinct paths", derived, base, pathsTo[base]),
					Details: map[string]any{"derived": derived, "base": base, "path_count": pathsTo[base]},
				})
			}
		}
	}

	return violations
}
