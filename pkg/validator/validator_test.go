// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package validator_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
	"github.com/kraklabs/pygraph/pkg/ids"
	"github.com/kraklabs/pygraph/pkg/store"
	"github.com/kraklabs/pygraph/pkg/store/mem"
	"github.com/kraklabs/pygraph/pkg/validator"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	backend, err := mem.Open()
	require.NoError(t, err)
	st := store.New(backend)
	require.NoError(t, st.InitializeSchema(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func upsertFunctionWithParams(t *testing.T, st *store.Store, fnID, qname string, paramNames []string, decorators []string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: fnID, Name: qname, Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{QualifiedName: qname, Decorators: decorators},
	}))
	for i, name := range paramNames {
		pID := ids.NodeID("Parameter", qname, name)
		require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
			Common:    graphmodel.Common{ID: pID, Name: name, Label: graphmodel.LabelParameter},
			Parameter: &graphmodel.ParameterAttrs{Name: name, Position: i, Kind: graphmodel.ParamPositional},
		}))
		_, err := st.UpsertEdge(ctx, graphmodel.Edge{From: fnID, To: pID, Type: graphmodel.EdgeHasParameter})
		require.NoError(t, err)
	}
}

func TestSignatureConservationFlagsTooFewArguments(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fnID := ids.NodeID("Function", "mod.greet")
	upsertFunctionWithParams(t, st, fnID, "mod.greet", []string{"name", "greeting"}, nil)

	callSiteID := ids.NodeID("CallSite", "mod.caller", "0")
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: callSiteID, Name: "greet", Label: graphmodel.LabelCallSite},
		CallSite: &graphmodel.CallSiteAttrs{ArgCount: 1, ResolutionStatus: graphmodel.ResolutionResolved, CallerID: fnID},
	}))
	_, err := st.UpsertEdge(ctx, graphmodel.Edge{From: callSiteID, To: fnID, Type: graphmodel.EdgeResolvesTo})
	require.NoError(t, err)

	violations, err := validator.New(st, nil).ValidateAll(ctx)
	require.NoError(t, err)

	found := false
	for _, v := range violations {
		if v.Kind == validator.KindSignatureMismatch && v.EntityID == fnID {
			found = true
		}
	}
	assert.True(t, found, "expected a signature_mismatch violation for too-few arguments")
}

func TestSignatureConservationSkipsDecoratedFunctions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fnID := ids.NodeID("Function", "mod.Thing.value")
	upsertFunctionWithParams(t, st, fnID, "mod.Thing.value", []string{"self"}, []string{"property"})

	callSiteID := ids.NodeID("CallSite", "mod.caller", "0")
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: callSiteID, Name: "value", Label: graphmodel.LabelCallSite},
		CallSite: &graphmodel.CallSiteAttrs{ArgCount: 5, ResolutionStatus: graphmodel.ResolutionResolved, CallerID: fnID},
	}))
	_, err := st.UpsertEdge(ctx, graphmodel.Edge{From: callSiteID, To: fnID, Type: graphmodel.EdgeResolvesTo})
	require.NoError(t, err)

	violations, err := validator.New(st, nil).ValidateAll(ctx)
	require.NoError(t, err)

	for _, v := range violations {
		if v.Kind == validator.KindSignatureMismatch {
			assert.NotEqual(t, fnID, v.EntityID, "property-decorated function must be excluded from signature checks")
		}
	}
}

func TestReferentialIntegrityFlagsUnresolvedCallSite(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	callSiteID := ids.NodeID("CallSite", "mod.caller", "0")
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: callSiteID, Name: "missing", Location: "mod.py:3:0", Label: graphmodel.LabelCallSite},
		CallSite: &graphmodel.CallSiteAttrs{ResolutionStatus: graphmodel.ResolutionUnresolved, UnresolvedCallee: "missing"},
	}))

	violations, err := validator.New(st, nil).ValidateAll(ctx)
	require.NoError(t, err)

	found := false
	for _, v := range violations {
		if v.Kind == validator.KindReferenceBroken && v.EntityID == callSiteID {
			found = true
			assert.Equal(t, validator.SeverityError, v.Severity)
		}
	}
	assert.True(t, found)
}

func TestReferentialIntegrityFlagsUnresolvedNode(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	unresolvedID := ids.NodeID("Unresolved", "mod.Base")
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:     graphmodel.Common{ID: unresolvedID, Name: "Base", Location: "mod.py:1:0", Label: graphmodel.LabelUnresolved},
		Unresolved: &graphmodel.UnresolvedAttrs{ReferenceKind: "base_class", SourceID: "mod.Derived"},
	}))

	violations, err := validator.New(st, nil).ValidateAll(ctx)
	require.NoError(t, err)

	found := false
	for _, v := range violations {
		if v.EntityID == unresolvedID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestStructuralIntegrityFlagsNonContiguousParameterPositions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fnID := ids.NodeID("Function", "mod.broken")
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: fnID, Name: "broken", Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{QualifiedName: "mod.broken"},
	}))
	pID := ids.NodeID("Parameter", "mod.broken", "x")
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:    graphmodel.Common{ID: pID, Name: "x", Label: graphmodel.LabelParameter},
		Parameter: &graphmodel.ParameterAttrs{Name: "x", Position: 2},
	}))
	_, err := st.UpsertEdge(ctx, graphmodel.Edge{From: fnID, To: pID, Type: graphmodel.EdgeHasParameter})
	require.NoError(t, err)

	violations, err := validator.New(st, nil).ValidateAll(ctx)
	require.NoError(t, err)

	found := false
	for _, v := range violations {
		if v.Kind == validator.KindStructuralInvalid && v.EntityID == fnID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestStructuralIntegrityFlagsInvalidEdgeEndpoints(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	classID := ids.NodeID("Class", "mod.Thing")
	paramID := ids.NodeID("Parameter", "mod.other", "x")
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common: graphmodel.Common{ID: classID, Name: "Thing", Label: graphmodel.LabelClass},
		Class:  &graphmodel.ClassAttrs{QualifiedName: "mod.Thing"},
	}))
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:    graphmodel.Common{ID: paramID, Name: "x", Label: graphmodel.LabelParameter},
		Parameter: &graphmodel.ParameterAttrs{Name: "x"},
	}))
	// HAS_PARAMETER only admits Function -> Parameter; Class -> Parameter is invalid.
	_, err := st.UpsertEdge(ctx, graphmodel.Edge{From: classID, To: paramID, Type: graphmodel.EdgeHasParameter})
	require.NoError(t, err)

	violations, err := validator.New(st, nil).ValidateAll(ctx)
	require.NoError(t, err)

	found := false
	for _, v := range violations {
		if v.Kind == validator.KindStructuralInvalid && v.Message == "Invalid HAS_PARAMETER: Class -> Parameter" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestStructuralIntegrityFlagsInheritanceCycleWithoutStackOverflow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	aID := ids.NodeID("Class", "mod.A")
	bID := ids.NodeID("Class", "mod.B")
	cID := ids.NodeID("Class", "mod.C")
	for id, name := range map[string]string{aID: "A", bID: "B", cID: "C"} {
		require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
			Common: graphmodel.Common{ID: id, Name: name, Label: graphmodel.LabelClass},
			Class:  &graphmodel.ClassAttrs{QualifiedName: "mod." + name},
		}))
	}
	// A -> B -> C -> A: a cycle, which the structural check must report
	// rather than recurse into forever.
	for _, e := range []graphmodel.Edge{
		{From: aID, To: bID, Type: graphmodel.EdgeInherits},
		{From: bID, To: cID, Type: graphmodel.EdgeInherits},
		{From: cID, To: aID, Type: graphmodel.EdgeInherits},
	} {
		_, err := st.UpsertEdge(ctx, e)
		require.NoError(t, err)
	}

	violations, err := validator.New(st, nil).ValidateAll(ctx)
	require.NoError(t, err)

	found := false
	for _, v := range violations {
		if v.Kind == validator.KindStructuralInvalid && strings.Contains(v.Message, "inheritance cycle") {
			found = true
		}
	}
	assert.True(t, found, "expected an inheritance cycle violation")
}

func TestValidateIncrementalOnlyCoversChangedNodes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	unresolvedID := ids.NodeID("Unresolved", "mod.Base")
	require.NoError(t, st.UpsertNode(ctx, &graphmodel.Node{
		Common:     graphmodel.Common{ID: unresolvedID, Name: "Base", Location: "mod.py:1:0", Label: graphmodel.LabelUnresolved},
		Unresolved: &graphmodel.UnresolvedAttrs{ReferenceKind: "base_class", SourceID: "mod.Derived"},
	}))

	violations, err := validator.New(st, nil).ValidateIncremental(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations, "nothing marked changed yet, incremental pass should find nothing")

	require.NoError(t, st.MarkNodesChanged(ctx, []string{unresolvedID}))
	violations, err = validator.New(st, nil).ValidateIncremental(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, violations)
}

func TestBuildReportGroupsBySeverityAndKind(t *testing.T) {
	violations := []validator.Violation{
		{Kind: validator.KindReferenceBroken, Severity: validator.SeverityError},
		{Kind: validator.KindReferenceBroken, Severity: validator.SeverityWarning},
		{Kind: validator.KindStructuralInvalid, Severity: validator.SeverityError},
	}
	report := validator.BuildReport(violations)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.BySeverity[validator.SeverityError])
	assert.Equal(t, 1, report.BySeverity[validator.SeverityWarning])
	assert.Equal(t, 2, report.ByKind[validator.KindReferenceBroken])
}
