// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
)

// validateDataFlowConsistency implements law T.
func (v *Validator) validateDataFlowConsistency(ctx context.Context, only map[string]bool) ([]Violation, error) {
	nodes, err := v.Store.AllNodes(ctx, 0)
	if err != nil {
		return nil, err
	}
	edges, err := v.Store.AllEdges(ctx, 0)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, n := range nodes {
		if only != nil && !only[n.ID] {
			continue
		}
		switch n.Label {
		case graphmodel.LabelFunction:
			violations = append(violations, v.checkFunctionAnnotations(ctx, n)...)
			violations = append(violations, v.checkCallSiteArgTypes(ctx, n)...)
			violations = append(violations, v.checkMultipleReturnTypes(n, edges)...)
		case graphmodel.LabelVariable:
			violations = append(violations, v.checkVariableTypeConsistency(n)...)
		}
	}

	violations = append(violations, v.checkSubtypeCycles(edges, only)...)

	return violations, nil
}

// checkFunctionAnnotations warns about missing parameter or return
// annotations on public functions.
func (v *Validator) checkFunctionAnnotations(ctx context.Context, fn *graphmodel.Node) []Violation {
	if fn.Function == nil || graphmodel.VisibilityOf(fn.Name) != graphmodel.VisibilityPublic {
		return nil
	}
	path, line, col := locationOf(fn)
	var out []Violation

	params, err := v.orderedParameters(ctx, fn.ID)
	if err == nil {
		for _, p := range params {
			if p.Name == "self" || p.Name == "cls" {
				continue
			}
			if p.Parameter.TypeAnnotation == "" {
				out = append(out, Violation{
					Kind: KindDataFlowInvalid, Severity: SeverityWarning, EntityID: p.ID,
					Message:      fmt.Sprintf("parameter %q of %s has no type annotation", p.Name, fn.Function.QualifiedName),
					FilePath:     path, LineNumber: line, ColumnNumber: col,
					CodeSnippet: codeSnippet(path, line, 2),
				})
			}
		}
	}

	if fn.Function.ReturnType == "" {
		out = append(out, Violation{
			Kind: KindDataFlowInvalid, Severity: SeverityWarning, EntityID: fn.ID,
			Message:      fmt.Sprintf("function %s has no return-type annotation", fn.Function.QualifiedName),
			FilePath:     path, LineNumber: line, ColumnNumber: col,
			CodeSnippet: codeSnippet(path, line, 2),
		})
	}

	return out
}

// checkCallSiteArgTypes compares each call site's recorded arg_types
// against fn's annotated parameter types.
func (v *Validator) checkCallSiteArgTypes(ctx context.Context, fn *graphmodel.Node) []Violation {
	params, err := v.orderedParameters(ctx, fn.ID)
	if err != nil {
		return nil
	}
	annotated := false
	for _, p := range params {
		if p.Parameter.TypeAnnotation != "" {
			annotated = true
			break
		}
	}
	if !annotated {
		return nil
	}

	callSites, err := v.resolvedCallersOf(ctx, fn.ID)
	if err != nil {
		return nil
	}

	var out []Violation
	for _, cs := range callSites {
		for i, actual := range cs.CallSite.ArgTypes {
			if i >= len(params) {
				break
			}
			expected := params[i].Parameter.TypeAnnotation
			if expected == "" || actual == "" {
				continue
			}
			if !v.typesCompatible(ctx, actual, expected) {
				path, line, col := locationOf(cs)
				out = append(out, Violation{
					Kind: KindDataFlowInvalid, Severity: SeverityError, EntityID: cs.ID,
					Message:      fmt.Sprintf("Type mismatch: argument %d is '%s' but parameter '%s' expects '%s'", i+1, actual, params[i].Name, expected),
					Details:      map[string]any{"actual": actual, "expected": expected, "position": i},
					OldValue:     actual, NewValue: expected,
					FilePath: path, LineNumber: line, ColumnNumber: col,
					CodeSnippet: codeSnippet(path, line, 2),
				})
			}
		}
	}
	return out
}

// checkMultipleReturnTypes warns when a Function carries more than one
// RETURNS_TYPE edge.
func (v *Validator) checkMultipleReturnTypes(fn *graphmodel.Node, edges []graphmodel.Edge) []Violation {
	count := 0
	for _, e := range edges {
		if e.Type == graphmodel.EdgeReturnsType && e.From == fn.ID {
			count++
		}
	}
	if count <= 1 {
		return nil
	}
	path, line, col := locationOf(fn)
	return []Violation{{
		Kind: KindDataFlowInvalid, Severity: SeverityWarning, EntityID: fn.ID,
		Message:      fmt.Sprintf("function has %d RETURNS_TYPE targets, expected at most 1", count),
		FilePath:     path, LineNumber: line, ColumnNumber: col,
		CodeSnippet: codeSnippet(path, line, 2),
	}}
}

// checkVariableTypeConsistency compares a Variable's declared annotation
// against its inferred ASSIGNED_TYPE, when both are present.
func (v *Validator) checkVariableTypeConsistency(variable *graphmodel.Node) []Violation {
	if variable.Variable == nil || variable.Variable.TypeAnnotation == "" || len(variable.Variable.InferredTypes) == 0 {
		return nil
	}
	path, line, col := locationOf(variable)
	var out []Violation
	for _, inferred := range variable.Variable.InferredTypes {
		if !v.typesCompatible(context.Background(), inferred, variable.Variable.TypeAnnotation) {
			out = append(out, Violation{
				Kind: KindDataFlowInvalid, Severity: SeverityError, EntityID: variable.ID,
				Message:      fmt.Sprintf("variable %q declared as %s but assigned a %s value", variable.Name, variable.Variable.TypeAnnotation, inferred),
				Details:      map[string]any{"declared": variable.Variable.TypeAnnotation, "inferred": inferred},
				OldValue:     variable.Variable.TypeAnnotation, NewValue: inferred,
				FilePath: path, LineNumber: line, ColumnNumber: col,
				CodeSnippet: codeSnippet(path, line, 2),
			})
		}
	}
	return out
}

// checkSubtypeCycles flags cycles in the IS_SUBTYPE_OF graph.
func (v *Validator) checkSubtypeCycles(edges []graphmodel.Edge, only map[string]bool) []Violation {
	adjacency := map[string][]string{}
	for _, e := range edges {
		if e.Type == graphmodel.EdgeIsSubtypeOf {
			adjacency[e.From] = append(adjacency[e.From], e.To)
		}
	}
	var out []Violation
	for _, cycle := range findCycles(adjacency) {
		if !includesAny(cycle, only) {
			continue
		}
		out = append(out, Violation{
			Kind: KindDataFlowInvalid, Severity: SeverityError, EntityID: cycle[0],
			Message: fmt.Sprintf("subtype cycle: %s", strings.Join(cycle, " -> ")),
			Details: map[string]any{"cycle": cycle},
		})
	}
	return out
}
