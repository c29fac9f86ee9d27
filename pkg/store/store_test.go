// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
	"github.com/kraklabs/pygraph/pkg/ids"
	"github.com/kraklabs/pygraph/pkg/store"
	"github.com/kraklabs/pygraph/pkg/store/mem"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	backend, err := mem.Open()
	require.NoError(t, err)
	s := store.New(backend)
	require.NoError(t, s.InitializeSchema(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInitializeSchemaIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InitializeSchema(context.Background()))
}

func TestUpsertNodeThenRetrieveByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	moduleID := ids.NodeID("Module", "pkg.mod")
	fnID := ids.NodeID("Function", "pkg.mod.greet")

	require.NoError(t, s.UpsertNode(ctx, &graphmodel.Node{
		Common: graphmodel.Common{ID: moduleID, Name: "pkg.mod", Location: "pkg/mod.py", Label: graphmodel.LabelModule},
		Module: &graphmodel.ModuleAttrs{QualifiedName: "pkg.mod", Path: "pkg/mod.py"},
	}))
	require.NoError(t, s.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: fnID, Name: "greet", Location: "pkg/mod.py:1:0", Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{QualifiedName: "pkg.mod.greet", Signature: "def greet():"},
	}))

	node, err := s.NodeByID(ctx, fnID)
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "greet", node.Name)
	assert.Equal(t, "pkg.mod.greet", node.Function.QualifiedName)
}

func TestUpsertEdgeSkipsMissingEndpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	skipped, err := s.UpsertEdge(ctx, graphmodel.Edge{From: "missing-1", To: "missing-2", Type: graphmodel.EdgeDeclares})
	require.NoError(t, err)
	assert.True(t, skipped)
}

func TestResolveFunctionIDPrefersExactOverSuffixOverSimple(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exactID := ids.NodeID("Function", "pkg.helper")
	suffixID := ids.NodeID("Function", "pkg.sub.helper")

	require.NoError(t, s.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: exactID, Name: "helper", Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{QualifiedName: "pkg.helper"},
	}))
	require.NoError(t, s.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: suffixID, Name: "helper", Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{QualifiedName: "pkg.sub.helper"},
	}))

	id, err := s.ResolveFunctionID(ctx, "pkg.helper")
	require.NoError(t, err)
	assert.Equal(t, exactID, id)
}

func TestDeleteNodesByLocationPrefixExemptsExternalModules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	localID := ids.NodeID("Function", "pkg.mod.fn")
	externalID := ids.NodeID("Module", "os", "external")

	require.NoError(t, s.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: localID, Name: "fn", Location: "pkg/mod.py:1:0", Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{QualifiedName: "pkg.mod.fn"},
	}))
	require.NoError(t, s.UpsertNode(ctx, &graphmodel.Node{
		Common: graphmodel.Common{ID: externalID, Name: "os", Location: "os", Label: graphmodel.LabelModule},
		Module: &graphmodel.ModuleAttrs{QualifiedName: "os", Path: "os", IsExternal: true},
	}))

	n, err := s.DeleteNodesByLocationPrefix(ctx, "pkg/mod.py")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := s.NodeByID(ctx, externalID)
	require.NoError(t, err)
	assert.NotNil(t, remaining)
}

func TestMarkAndClearChangedFlags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fnID := ids.NodeID("Function", "pkg.mod.fn")
	require.NoError(t, s.UpsertNode(ctx, &graphmodel.Node{
		Common:   graphmodel.Common{ID: fnID, Name: "fn", Location: "pkg/mod.py:1:0", Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{QualifiedName: "pkg.mod.fn"},
	}))

	require.NoError(t, s.MarkNodesChanged(ctx, []string{fnID}))
	changed, err := s.GetChangedIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, changed, fnID)

	require.NoError(t, s.ClearChangedFlags(ctx))
	changed, err = s.GetChangedIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, changed)
}
