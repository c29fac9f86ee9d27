// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
)

func countByLabel(g *graphmodel.Graph, label graphmodel.Label) int {
	n := 0
	for _, node := range g.Nodes {
		if node.Label == label {
			n++
		}
	}
	return n
}

func TestTreeSitterExtractorEmptyFileYieldsOnlyModule(t *testing.T) {
	ex := NewTreeSitterExtractor(nil)
	res, err := ex.ParseSource(context.Background(), []byte(""), "pkg/empty.py")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Graph.NodeCount())
	assert.Equal(t, 1, countByLabel(res.Graph, graphmodel.LabelModule))
}

func TestTreeSitterExtractorFunctionWithVarArgsOnly(t *testing.T) {
	src := `def handler(*args, **kwargs):
    pass
`
	ex := NewTreeSitterExtractor(nil)
	res, err := ex.ParseSource(context.Background(), []byte(src), "pkg/handler.py")
	require.NoError(t, err)

	var fn *graphmodel.Node
	for _, n := range res.Graph.Nodes {
		if n.Label == graphmodel.LabelFunction {
			fn = n
		}
	}
	require.NotNil(t, fn)

	var params []*graphmodel.Node
	for _, n := range res.Graph.Nodes {
		if n.Label == graphmodel.LabelParameter {
			params = append(params, n)
		}
	}
	require.Len(t, params, 2)
	kinds := map[graphmodel.ParamKind]bool{}
	for _, p := range params {
		kinds[p.Parameter.Kind] = true
	}
	assert.True(t, kinds[graphmodel.ParamVarPositional])
	assert.True(t, kinds[graphmodel.ParamVarKeyword])
}

func TestTreeSitterExtractorUnresolvedBaseClass(t *testing.T) {
	src := `class Widget(UnknownBase):
    pass
`
	ex := NewTreeSitterExtractor(nil)
	res, err := ex.ParseSource(context.Background(), []byte(src), "pkg/widget.py")
	require.NoError(t, err)

	assert.Equal(t, 1, countByLabel(res.Graph, graphmodel.LabelUnresolved))

	foundEdge := false
	for _, e := range res.Graph.Edges {
		if e.Type == graphmodel.EdgeUnresolvedReference {
			foundEdge = true
		}
	}
	assert.True(t, foundEdge)
}

func TestTreeSitterExtractorClassInheritsResolvedBase(t *testing.T) {
	src := `class Base:
    pass


class Derived(Base):
    pass
`
	ex := NewTreeSitterExtractor(nil)
	res, err := ex.ParseSource(context.Background(), []byte(src), "pkg/inherit.py")
	require.NoError(t, err)

	foundInherits := false
	for _, e := range res.Graph.Edges {
		if e.Type == graphmodel.EdgeInherits {
			foundInherits = true
		}
	}
	assert.True(t, foundInherits)
	assert.Equal(t, 0, countByLabel(res.Graph, graphmodel.LabelUnresolved))
}

func TestTreeSitterExtractorCallSiteHasPendingResolutionEdge(t *testing.T) {
	src := `def caller():
    helper(1, 2)


def helper(a, b):
    return a + b
`
	ex := NewTreeSitterExtractor(nil)
	res, err := ex.ParseSource(context.Background(), []byte(src), "pkg/calls.py")
	require.NoError(t, err)

	assert.Equal(t, 1, countByLabel(res.Graph, graphmodel.LabelCallSite))

	var callSite *graphmodel.Node
	for _, n := range res.Graph.Nodes {
		if n.Label == graphmodel.LabelCallSite {
			callSite = n
		}
	}
	require.NotNil(t, callSite)
	assert.Equal(t, graphmodel.ResolutionPending, callSite.CallSite.ResolutionStatus)
	assert.Equal(t, 2, callSite.CallSite.ArgCount)
}

func TestSimpleExtractorRecognizesFunctionsAndImports(t *testing.T) {
	src := `import os

def greet(name):
    print(name)
`
	ex := NewSimpleExtractor()
	res, err := ex.ParseSource(context.Background(), []byte(src), "pkg/greet.py")
	require.NoError(t, err)

	assert.Equal(t, 1, countByLabel(res.Graph, graphmodel.LabelFunction))

	foundImport := false
	for _, e := range res.Graph.Edges {
		if e.Type == graphmodel.EdgeImports {
			foundImport = true
		}
	}
	assert.True(t, foundImport)
}

func TestQualifiedModuleNameStripsInitAndSuffix(t *testing.T) {
	assert.Equal(t, "pkg.mod", QualifiedModuleName("pkg/mod.py"))
	assert.Equal(t, "pkg", QualifiedModuleName("pkg/__init__.py"))
}
