// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
	"github.com/kraklabs/pygraph/pkg/ids"
	"github.com/kraklabs/pygraph/pkg/query"
	"github.com/kraklabs/pygraph/pkg/store"
	"github.com/kraklabs/pygraph/pkg/store/mem"
)

func newTestQuerier(t *testing.T) (*query.Querier, *store.Store) {
	t.Helper()
	backend, err := mem.Open()
	require.NoError(t, err)
	st := store.New(backend)
	require.NoError(t, st.InitializeSchema(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return query.New(st), st
}

// seedCallGraph builds caller() -> helper() as Functions with a
// HAS_CALLSITE/RESOLVES_TO pair, mirroring what builder.BuildFile would
// have produced.
func seedCallGraph(t *testing.T, st *store.Store) (callerID, helperID, callSiteID string) {
	t.Helper()
	ctx := context.Background()

	callerID = ids.NodeID("Function", "mod.caller")
	helperID = ids.NodeID("Function", "mod.helper")
	callSiteID = ids.NodeID("CallSite", "mod.caller", "0")

	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: callerID, Name: "caller", Location: "mod.py:1:0", Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{QualifiedName: "mod.caller", Signature: "def caller():"},
	}))
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: helperID, Name: "helper", Location: "mod.py:5:0", Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{QualifiedName: "mod.helper", Signature: "def helper():"},
	}))
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common: graphmodel.Common{ID: callSiteID, Name: "helper", Location: "mod.py:2:4", Label: graphmodel.LabelCallSite},
		CallSite: &graphmodel.CallSiteAttrs{
			CallerID: callerID, ResolutionStatus: graphmodel.ResolutionResolved,
		},
	}))

	_, err := st.UpsertEdge(ctx, graphmodel.Edge{From: callerID, To: callSiteID, Type: graphmodel.EdgeHasCallSite})
	require.NoError(t, err)
	_, err = st.UpsertEdge(ctx, graphmodel.Edge{From: callSiteID, To: helperID, Type: graphmodel.EdgeResolvesTo})
	require.NoError(t, err)

	return callerID, helperID, callSiteID
}

func TestFindCalleesReturnsResolvedTarget(t *testing.T) {
	q, st := newTestQuerier(t)
	callerID, helperID, _ := seedCallGraph(t, st)

	callees, err := q.FindCallees(context.Background(), callerID)
	require.NoError(t, err)
	require.Len(t, callees, 1)
	assert.Equal(t, helperID, callees[0].ID)
}

func TestFindCallersReturnsCallingFunction(t *testing.T) {
	q, st := newTestQuerier(t)
	callerID, helperID, _ := seedCallGraph(t, st)

	callers, err := q.FindCallers(context.Background(), helperID)
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, callerID, callers[0].ID)
}

func TestGetFunctionDependenciesReportsOutboundDistance(t *testing.T) {
	q, st := newTestQuerier(t)
	callerID, helperID, _ := seedCallGraph(t, st)

	report, err := q.GetFunctionDependencies(context.Background(), callerID, 3)
	require.NoError(t, err)
	require.Len(t, report.Outbound, 1)
	assert.Equal(t, helperID, report.Outbound[0].Function.ID)
	assert.Equal(t, 1, report.Outbound[0].Distance)
}

func TestFindOrphanedNodesExcludesParametersAndTypes(t *testing.T) {
	q, st := newTestQuerier(t)
	ctx := context.Background()

	orphanFnID := ids.NodeID("Function", "mod.orphan")
	paramID := ids.NodeID("Parameter", "mod.orphan", "0")

	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: orphanFnID, Name: "orphan", Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{QualifiedName: "mod.orphan"},
	}))
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:    graphmodel.Common{ID: paramID, Name: "x", Label: graphmodel.LabelParameter},
		Parameter: &graphmodel.ParameterAttrs{Name: "x"},
	}))

	orphans, err := q.FindOrphanedNodes(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, orphanFnID, orphans[0].ID)
}

func TestFindCircularInheritanceDetectsCycle(t *testing.T) {
	q, st := newTestQuerier(t)
	ctx := context.Background()

	aID := ids.NodeID("Class", "mod.A")
	bID := ids.NodeID("Class", "mod.B")

	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common: graphmodel.Common{ID: aID, Name: "A", Label: graphmodel.LabelClass},
		Class:  &graphmodel.ClassAttrs{QualifiedName: "mod.A"},
	}))
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common: graphmodel.Common{ID: bID, Name: "B", Label: graphmodel.LabelClass},
		Class:  &graphmodel.ClassAttrs{QualifiedName: "mod.B"},
	}))
	_, err := st.UpsertEdge(ctx, graphmodel.Edge{From: aID, To: bID, Type: graphmodel.EdgeInherits})
	require.NoError(t, err)
	_, err = st.UpsertEdge(ctx, graphmodel.Edge{From: bID, To: aID, Type: graphmodel.EdgeInherits})
	require.NoError(t, err)

	cycles, err := q.FindCircularInheritance(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, cycles)
}

func TestFindDiamondInheritanceDetectsTwoPathsToSameBase(t *testing.T) {
	q, st := newTestQuerier(t)
	ctx := context.Background()

	baseID := ids.NodeID("Class", "mod.Base")
	midAID := ids.NodeID("Class", "mod.MidA")
	midBID := ids.NodeID("Class", "mod.MidB")
	derivedID := ids.NodeID("Class", "mod.Derived")

	for _, n := range []*graphmodel.Node{
		{Common: graphmodel.Common{ID: baseID, Name: "Base", Label: graphmodel.LabelClass}, Class: &graphmodel.ClassAttrs{QualifiedName: "mod.Base"}},
		{Common: graphmodel.Common{ID: midAID, Name: "MidA", Label: graphmodel.LabelClass}, Class: &graphmodel.ClassAttrs{QualifiedName: "mod.MidA"}},
		{Common: graphmodel.Common{ID: midBID, Name: "MidB", Label: graphmodel.LabelClass}, Class: &graphmodel.ClassAttrs{QualifiedName: "mod.MidB"}},
		{Common: graphmodel.Common{ID: derivedID, Name: "Derived", Label: graphmodel.LabelClass}, Class: &graphmodel.ClassAttrs{QualifiedName: "mod.Derived"}},
	} {
		require.NoError(t, st.UpsertNode(ctx, n))
	}
	for _, e := range []graphmodel.Edge{
		{From: midAID, To: baseID, Type: graphmodel.EdgeInherits},
		{From: midBID, To: baseID, Type: graphmodel.EdgeInherits},
		{From: derivedID, To: midAID, Type: graphmodel.EdgeInherits},
		{From: derivedID, To: midBID, Type: graphmodel.EdgeInherits},
	} {
		_, err := st.UpsertEdge(ctx, e)
		require.NoError(t, err)
	}

	diamonds, err := q.FindDiamondInheritance(ctx)
	require.NoError(t, err)
	require.Len(t, diamonds, 1)
	assert.Equal(t, derivedID, diamonds[0].DerivedID)
	assert.Equal(t, baseID, diamonds[0].BaseID)
	assert.Len(t, diamonds[0].Paths, 2)
}

func TestFindDiamondInheritanceToleratesCycleWithoutStackOverflow(t *testing.T) {
	q, st := newTestQuerier(t)
	ctx := context.Background()

	aID := ids.NodeID("Class", "mod.A")
	bID := ids.NodeID("Class", "mod.B")
	cID := ids.NodeID("Class", "mod.C")
	for _, n := range []*graphmodel.Node{
		{Common: graphmodel.Common{ID: aID, Name: "A", Label: graphmodel.LabelClass}, Class: &graphmodel.ClassAttrs{QualifiedName: "mod.A"}},
		{Common: graphmodel.Common{ID: bID, Name: "B", Label: graphmodel.LabelClass}, Class: &graphmodel.ClassAttrs{QualifiedName: "mod.B"}},
		{Common: graphmodel.Common{ID: cID, Name: "C", Label: graphmodel.LabelClass}, Class: &graphmodel.ClassAttrs{QualifiedName: "mod.C"}},
	} {
		require.NoError(t, st.UpsertNode(ctx, n))
	}
	for _, e := range []graphmodel.Edge{
		{From: aID, To: bID, Type: graphmodel.EdgeInherits},
		{From: bID, To: cID, Type: graphmodel.EdgeInherits},
		{From: cID, To: aID, Type: graphmodel.EdgeInherits},
	} {
		_, err := st.UpsertEdge(ctx, e)
		require.NoError(t, err)
	}

	diamonds, err := q.FindDiamondInheritance(ctx)
	require.NoError(t, err)
	assert.Empty(t, diamonds)
}

func TestSearchByPatternIsCaseInsensitive(t *testing.T) {
	q, st := newTestQuerier(t)
	ctx := context.Background()

	fnID := ids.NodeID("Function", "mod.GreetUser")
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: fnID, Name: "GreetUser", Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{QualifiedName: "mod.GreetUser"},
	}))

	results, err := q.SearchByPattern(ctx, "greet", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, fnID, results[0].ID)
}

func TestGetImpactAnalysisDeleteReportsCascade(t *testing.T) {
	q, st := newTestQuerier(t)
	_, helperID, _ := seedCallGraph(t, st)

	report, err := q.GetImpactAnalysis(context.Background(), helperID, "delete")
	require.NoError(t, err)
	require.Len(t, report.AffectedCallers, 1)
	assert.Equal(t, graphmodel.EdgeResolvesTo, func() graphmodel.EdgeType {
		for et := range report.CascadeByType {
			return et
		}
		return ""
	}())
}
