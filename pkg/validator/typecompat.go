// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package validator

import (
	"context"
	"strings"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
)

// numericRank orders the bool -> int -> float -> complex widening lattice;
// a lower rank may widen to a higher one.
var numericRank = map[string]int{
	"bool": 0, "int": 1, "float": 2, "complex": 3,
}

// typesCompatible implements the subtype predicate of §4.6: exact
// equality; either side is the dynamic-top type; None compatible with
// Optional; numeric widening; str/bytes interchange in sequence contexts;
// same generic base regardless of parameterization; else a store-backed
// IS_SUBTYPE_OF*0..5 path from actual to expected.
func (v *Validator) typesCompatible(ctx context.Context, actual, expected string) bool {
	actual = strings.TrimSpace(actual)
	expected = strings.TrimSpace(expected)

	if actual == "" || expected == "" {
		return true
	}
	if actual == expected {
		return true
	}
	if actual == "Any" || expected == "Any" {
		return true
	}
	if actual == "None" && strings.Contains(expected, "Optional") {
		return true
	}

	if aRank, aOK := numericRank[actual]; aOK {
		if eRank, eOK := numericRank[expected]; eOK && aRank <= eRank {
			return true
		}
	}

	strBytes := map[string]bool{"str": true, "bytes": true}
	if strBytes[actual] && (strBytes[expected] || expected == "Sequence") {
		return true
	}

	if strings.HasPrefix(actual, "List") && strings.HasPrefix(expected, "Sequence") {
		return true
	}
	if strings.HasPrefix(actual, "Dict") && strings.HasPrefix(expected, "Mapping") {
		return true
	}

	if strings.Contains(actual, "[") && strings.Contains(expected, "[") {
		if genericBase(actual) == genericBase(expected) {
			return true
		}
	}

	ok, err := v.subtypePathExists(ctx, actual, expected)
	if err != nil {
		return false
	}
	return ok
}

func genericBase(t string) string {
	if idx := strings.Index(t, "["); idx >= 0 {
		return t[:idx]
	}
	return t
}

// subtypePathExists queries the store for an IS_SUBTYPE_OF path of length
// 0..5 between Type nodes named actual and expected, using a bounded-hop
// frontier search rather than an unbounded recursive query.
func (v *Validator) subtypePathExists(ctx context.Context, actual, expected string) (bool, error) {
	if actual == expected {
		return true, nil
	}
	visited := map[string]bool{actual: true}
	frontier := []string{actual}
	for hop := 0; hop < 5 && len(frontier) > 0; hop++ {
		var next []string
		for _, name := range frontier {
			targets, err := v.subtypeTargetsOf(ctx, name)
			if err != nil {
				return false, err
			}
			for _, t := range targets {
				if t == expected {
					return true, nil
				}
				if !visited[t] {
					visited[t] = true
					next = append(next, t)
				}
			}
		}
		frontier = next
	}
	return false, nil
}

func (v *Validator) subtypeTargetsOf(ctx context.Context, typeName string) ([]string, error) {
	nodes, err := v.Store.Search(ctx, typeName, nil, 0)
	if err != nil {
		return nil, err
	}
	var typeIDs []string
	for _, n := range nodes {
		if n.Type != nil && n.Type.Name == typeName {
			typeIDs = append(typeIDs, n.ID)
		}
	}
	var out []string
	for _, id := range typeIDs {
		edges, err := v.Store.NodeEdges(ctx, id, nil)
		if err != nil {
			continue
		}
		for _, e := range edges {
			if e.From != id || e.Type != graphmodel.EdgeIsSubtypeOf {
				continue
			}
			target, err := v.Store.NodeByID(ctx, e.To)
			if err == nil && target != nil && target.Type != nil {
				out = append(out, target.Type.Name)
			}
		}
	}
	return out, nil
}
