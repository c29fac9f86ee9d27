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

// validateSignatureConservation implements law S: every Function not
// carrying a signature-transforming decorator must accept the arg_count
// every resolved caller supplies.
func (v *Validator) validateSignatureConservation(ctx context.Context, only map[string]bool) ([]Violation, error) {
	nodes, err := v.Store.AllNodes(ctx, 0)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, fn := range nodes {
		if fn.Label != graphmodel.LabelFunction || fn.Function == nil {
			continue
		}
		if only != nil && !only[fn.ID] {
			continue
		}
		if v.hasTransformingDecorator(fn.Function.Decorators) {
			continue
		}

		params, err := v.orderedParameters(ctx, fn.ID)
		if err != nil {
			return nil, err
		}
		params = dropLeadingSelfOrCls(params)

		required, total, unbounded := countRequiredTotal(params)

		callSites, err := v.resolvedCallersOf(ctx, fn.ID)
		if err != nil {
			return nil, err
		}

		for _, cs := range callSites {
			argCount := cs.CallSite.ArgCount
			withinRange := argCount >= required && (unbounded || argCount <= total)
			if !withinRange {
				path, line, col := locationOf(cs)
				expectedCount := required
				if argCount > total {
					expectedCount = total
				}
				violations = append(violations, Violation{
					Kind:         KindSignatureMismatch,
					Severity:     SeverityError,
					EntityID:     fn.ID,
					Message:      fmt.Sprintf("Function %s %s", fn.Name, signatureMismatchMessage(required, total, unbounded, argCount)),
					Details:      map[string]any{"function": fn.Function.QualifiedName, "caller_callsite": cs.ID},
					OldValue:     argCount,
					NewValue:     expectedCount,
					FilePath:     path,
					LineNumber:   line,
					ColumnNumber: col,
					CodeSnippet:  codeSnippet(path, line, 2),
				})
			}

			if graphmodel.VisibilityOf(fn.Name) == graphmodel.VisibilityPrivate {
				callerModule, err := v.moduleOfCallSite(ctx, cs)
				if err == nil && callerModule != "" && callerModule != moduleOf(fn.Function.QualifiedName) {
					path, line, col := locationOf(cs)
					violations = append(violations, Violation{
						Kind:         KindSignatureMismatch,
						Severity:     SeverityWarning,
						EntityID:     fn.ID,
						Message:      fmt.Sprintf("private function %s called from a different module (%s)", fn.Function.QualifiedName, callerModule),
						Details:      map[string]any{"function": fn.Function.QualifiedName, "caller_module": callerModule},
						FilePath:     path,
						LineNumber:   line,
						ColumnNumber: col,
						CodeSnippet:  codeSnippet(path, line, 2),
					})
				}
			}
		}
	}
	return violations, nil
}

func (v *Validator) hasTransformingDecorator(decorators []string) bool {
	for _, d := range decorators {
		if v.SignatureTransformingDecorators[d] {
			return true
		}
	}
	return false
}

// orderedParameters returns functionID's Parameter nodes in declared
// position order.
func (v *Validator) orderedParameters(ctx context.Context, functionID string) ([]*graphmodel.Node, error) {
	edges, err := v.Store.NodeEdges(ctx, functionID, []graphmodel.EdgeType{graphmodel.EdgeHasParameter})
	if err != nil {
		return nil, err
	}
	var params []*graphmodel.Node
	for _, e := range edges {
		if e.From != functionID {
			continue
		}
		p, err := v.Store.NodeByID(ctx, e.To)
		if err != nil || p == nil || p.Parameter == nil {
			continue
		}
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Parameter.Position < params[j].Parameter.Position })
	return params, nil
}

func dropLeadingSelfOrCls(params []*graphmodel.Node) []*graphmodel.Node {
	if len(params) == 0 {
		return params
	}
	if params[0].Name == "self" || params[0].Name == "cls" {
		return params[1:]
	}
	return params
}

func countRequiredTotal(params []*graphmodel.Node) (required, total int, unbounded bool) {
	for _, p := range params {
		switch p.Parameter.Kind {
		case graphmodel.ParamVarPositional:
			unbounded = true
		case graphmodel.ParamVarKeyword:
			// does not affect positional arg_count bounds
		default:
			total++
			if !p.Parameter.HasDefault {
				required++
			}
		}
	}
	return required, total, unbounded
}

func signatureMismatchMessage(required, total int, unbounded bool, argCount int) string {
	var expect string
	switch {
	case unbounded:
		expect = fmt.Sprintf("%d+", required)
	case required == total:
		expect = fmt.Sprintf("%d", required)
	default:
		expect = fmt.Sprintf("%d-%d", required, total)
	}
	return fmt.Sprintf("expects %s arguments but is called with %d", expect, argCount)
}

// resolvedCallersOf returns every CallSite node whose RESOLVES_TO points at
// functionID.
func (v *Validator) resolvedCallersOf(ctx context.Context, functionID string) ([]*graphmodel.Node, error) {
	edges, err := v.Store.NodeEdges(ctx, functionID, []graphmodel.EdgeType{graphmodel.EdgeResolvesTo})
	if err != nil {
		return nil, err
	}
	var out []*graphmodel.Node
	for _, e := range edges {
		if e.To != functionID {
			continue
		}
		cs, err := v.Store.NodeByID(ctx, e.From)
		if err != nil || cs == nil || cs.CallSite == nil {
			continue
		}
		out = append(out, cs)
	}
	return out, nil
}

// moduleOfCallSite returns the qualified module name owning cs's location,
// via the Function that declares it (cs.CallSite.CallerID).
func (v *Validator) moduleOfCallSite(ctx context.Context, cs *graphmodel.Node) (string, error) {
	caller, err := v.Store.NodeByID(ctx, cs.CallSite.CallerID)
	if err != nil || caller == nil || caller.Function == nil {
		return "", err
	}
	return moduleOf(caller.Function.QualifiedName), nil
}

func moduleOf(qualifiedName string) string {
	idx := strings.LastIndex(qualifiedName, ".")
	if idx < 0 {
		return qualifiedName
	}
	return qualifiedName[:idx]
}
