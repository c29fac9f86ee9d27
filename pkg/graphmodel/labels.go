// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package graphmodel defines the typed labeled property graph: the nine
// node variants, the relationship record, and the edge admissibility table
// that the store and validator both consult.
package graphmodel

// Label identifies a node variant.
type Label string

const (
	LabelModule     Label = "Module"
	LabelClass      Label = "Class"
	LabelFunction   Label = "Function"
	LabelParameter  Label = "Parameter"
	LabelVariable   Label = "Variable"
	LabelCallSite   Label = "CallSite"
	LabelType       Label = "Type"
	LabelDecorator  Label = "Decorator"
	LabelUnresolved Label = "Unresolved"
)

// EdgeType identifies a relationship kind.
type EdgeType string

const (
	EdgeDeclares             EdgeType = "DECLARES"
	EdgeHasParameter         EdgeType = "HAS_PARAMETER"
	EdgeHasCallSite          EdgeType = "HAS_CALLSITE"
	EdgeCalls                EdgeType = "CALLS"
	EdgeResolvesTo           EdgeType = "RESOLVES_TO"
	EdgeCallsUnresolved      EdgeType = "CALLS_UNRESOLVED"
	EdgeInherits             EdgeType = "INHERITS"
	EdgeImports              EdgeType = "IMPORTS"
	EdgeHasType              EdgeType = "HAS_TYPE"
	EdgeReturnsType          EdgeType = "RETURNS_TYPE"
	EdgeAssignedType         EdgeType = "ASSIGNED_TYPE"
	EdgeIsSubtypeOf          EdgeType = "IS_SUBTYPE_OF"
	EdgeHasDecorator         EdgeType = "HAS_DECORATOR"
	EdgeDecorates            EdgeType = "DECORATES"
	EdgeAssignsTo            EdgeType = "ASSIGNS_TO"
	EdgeReadsFrom            EdgeType = "READS_FROM"
	EdgeReferences           EdgeType = "REFERENCES"
	EdgeUnresolvedReference  EdgeType = "UNRESOLVED_REFERENCE"
)

// edgeEndpoints lists, for every edge type, the admissible (from, to)
// label pairs. A pair not present here is a structural-integrity
// violation per §4.6.
var edgeEndpoints = map[EdgeType][][2]Label{
	EdgeDeclares: {
		{LabelModule, LabelClass}, {LabelModule, LabelFunction}, {LabelModule, LabelVariable},
		{LabelClass, LabelClass}, {LabelClass, LabelFunction}, {LabelClass, LabelVariable},
	},
	EdgeHasParameter:        {{LabelFunction, LabelParameter}},
	EdgeHasCallSite:         {{LabelFunction, LabelCallSite}},
	EdgeCalls:               {{LabelCallSite, LabelFunction}},
	EdgeResolvesTo:          {{LabelCallSite, LabelFunction}},
	EdgeCallsUnresolved:     {{LabelCallSite, LabelFunction}},
	EdgeInherits:            {{LabelClass, LabelClass}},
	EdgeImports:             {{LabelModule, LabelModule}},
	EdgeHasType:             {{LabelParameter, LabelType}, {LabelVariable, LabelType}},
	EdgeReturnsType:         {{LabelFunction, LabelType}},
	EdgeAssignedType:        {{LabelVariable, LabelType}},
	EdgeIsSubtypeOf:         {{LabelType, LabelType}},
	EdgeHasDecorator:        {{LabelFunction, LabelDecorator}, {LabelClass, LabelDecorator}},
	EdgeDecorates:           {{LabelDecorator, LabelFunction}, {LabelDecorator, LabelClass}},
	EdgeAssignsTo:           {{LabelFunction, LabelVariable}},
	EdgeReadsFrom:           {{LabelFunction, LabelVariable}},
	EdgeUnresolvedReference: {{LabelFunction, LabelUnresolved}, {LabelClass, LabelUnresolved}, {LabelModule, LabelUnresolved}},
}

// EdgeAdmissible reports whether an edge of the given type may run from a
// node labeled from_ to a node labeled to. REFERENCES is intentionally
// excluded here: §3 defines it as "any -> any resolvable entity", so it is
// admissible between any two labels and is never flagged by this table.
func EdgeAdmissible(et EdgeType, from, to Label) bool {
	if et == EdgeReferences {
		return true
	}
	pairs, ok := edgeEndpoints[et]
	if !ok {
		return false
	}
	for _, p := range pairs {
		if p[0] == from && p[1] == to {
			return true
		}
	}
	return false
}

// KnownEdgeTypes lists every edge type the store/validator must support in
// read-path traversal allow-lists (§4.3: "a parameterized allow-list").
func KnownEdgeTypes() []EdgeType {
	return []EdgeType{
		EdgeDeclares, EdgeHasParameter, EdgeHasCallSite, EdgeCalls, EdgeResolvesTo,
		EdgeCallsUnresolved, EdgeInherits, EdgeImports, EdgeHasType,
		EdgeReturnsType, EdgeAssignedType, EdgeIsSubtypeOf, EdgeHasDecorator,
		EdgeDecorates, EdgeAssignsTo, EdgeReadsFrom, EdgeReferences,
		EdgeUnresolvedReference,
	}
}
