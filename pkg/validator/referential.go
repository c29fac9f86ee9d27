// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package validator

import (
	"context"
	"fmt"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
)

// validateReferentialIntegrity implements law R.
func (v *Validator) validateReferentialIntegrity(ctx context.Context, only map[string]bool) ([]Violation, error) {
	nodes, err := v.Store.AllNodes(ctx, 0)
	if err != nil {
		return nil, err
	}
	edges, err := v.Store.AllEdges(ctx, 0)
	if err != nil {
		return nil, err
	}

	touched := map[string]bool{}
	for _, e := range edges {
		touched[e.From] = true
		touched[e.To] = true
	}

	var violations []Violation

	for _, n := range nodes {
		if only != nil && !only[n.ID] {
			continue
		}

		switch n.Label {
		case graphmodel.LabelParameter, graphmodel.LabelType:
			// may be legitimately isolated during partial rebuilds

		case graphmodel.LabelUnresolved:
			path, line, col := locationOf(n)
			ref := ""
			if n.Unresolved != nil {
				ref = n.Unresolved.ReferenceKind
			}
			violations = append(violations, Violation{
				Kind: KindReferenceBroken, Severity: SeverityError, EntityID: n.ID,
				Message:      fmt.Sprintf("unresolved %s reference %q", ref, n.Name),
				Details:      map[string]any{"reference_kind": ref, "source_id": n.Unresolved.SourceID},
				FilePath:     path, LineNumber: line, ColumnNumber: col,
				CodeSnippet: codeSnippet(path, line, 2),
			})

		case graphmodel.LabelCallSite:
			violations = append(violations, v.checkCallSiteResolution(ctx, n, edges)...)

		default:
			if !touched[n.ID] {
				path, line, col := locationOf(n)
				violations = append(violations, Violation{
					Kind: KindReferenceBroken, Severity: SeverityWarning, EntityID: n.ID,
					Message:      fmt.Sprintf("%s %q has no incident edges", n.Label, n.Name),
					FilePath:     path, LineNumber: line, ColumnNumber: col,
					CodeSnippet: codeSnippet(path, line, 2),
				})
			}
		}
	}

	for _, e := range edges {
		if e.Type != graphmodel.EdgeReferences {
			continue
		}
		if only != nil && !only[e.From] && !only[e.To] {
			continue
		}
		if e.To == "" {
			violations = append(violations, Violation{
				Kind: KindReferenceBroken, Severity: SeverityError, EntityID: e.From,
				Message: "dangling REFERENCES edge: target has no id",
				Details: map[string]any{"from": e.From},
			})
			continue
		}
		target, err := v.Store.NodeByID(ctx, e.To)
		if err != nil {
			return nil, err
		}
		if target == nil {
			violations = append(violations, Violation{
				Kind: KindReferenceBroken, Severity: SeverityError, EntityID: e.From,
				Message: fmt.Sprintf("dangling REFERENCES edge: target %s not found", e.To),
				Details: map[string]any{"from": e.From, "to": e.To},
			})
		}
	}

	return violations, nil
}

// checkCallSiteResolution enforces exactly one RESOLVES_TO for a resolved
// CallSite, and flags an unresolved one by its recorded callee text.
func (v *Validator) checkCallSiteResolution(ctx context.Context, cs *graphmodel.Node, edges []graphmodel.Edge) []Violation {
	if cs.CallSite == nil {
		return nil
	}
	path, line, col := locationOf(cs)

	if cs.CallSite.ResolutionStatus == graphmodel.ResolutionUnresolved {
		return []Violation{{
			Kind: KindReferenceBroken, Severity: SeverityError, EntityID: cs.ID,
			Message:      fmt.Sprintf("Unresolved call to: %s", cs.CallSite.UnresolvedCallee),
			Details:      map[string]any{"unresolved_callee": cs.CallSite.UnresolvedCallee},
			FilePath:     path, LineNumber: line, ColumnNumber: col,
			CodeSnippet: codeSnippet(path, line, 2),
		}}
	}

	count := 0
	for _, e := range edges {
		if e.Type == graphmodel.EdgeResolvesTo && e.From == cs.ID {
			count++
		}
	}
	if count != 1 {
		return []Violation{{
			Kind: KindReferenceBroken, Severity: SeverityError, EntityID: cs.ID,
			Message:      fmt.Sprintf("call site has %d RESOLVES_TO edges, expected exactly 1", count),
			Details:      map[string]any{"resolves_to_count": count},
			FilePath:     path, LineNumber: line, ColumnNumber: col,
			CodeSnippet: codeSnippet(path, line, 2),
		}}
	}
	return nil
}
