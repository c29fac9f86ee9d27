// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package builder_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/pygraph/pkg/builder"
	"github.com/kraklabs/pygraph/pkg/extractor"
	"github.com/kraklabs/pygraph/pkg/graphmodel"
	"github.com/kraklabs/pygraph/pkg/store"
	"github.com/kraklabs/pygraph/pkg/store/mem"
)

func newTestBuilder(t *testing.T) (*builder.Builder, *store.Store) {
	t.Helper()
	backend, err := mem.Open()
	require.NoError(t, err)
	st := store.New(backend)
	require.NoError(t, st.InitializeSchema(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	b := builder.New(st, extractor.NewTreeSitterExtractor(nil), nil)
	return b, st
}

func TestBuildFileResolvesSameFileCall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	require.NoError(t, os.WriteFile(path, []byte(`def helper(a, b):
    return a + b


def caller():
    return helper(1, 2)
`), 0o644))

	b, st := newTestBuilder(t)
	report, err := b.BuildFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CallsResolved)
	assert.Equal(t, 0, report.CallsUnresolved)

	edges, err := st.AllEdges(context.Background(), 0)
	require.NoError(t, err)
	foundResolves, foundCalls := false, false
	for _, e := range edges {
		switch e.Type {
		case graphmodel.EdgeResolvesTo:
			foundResolves = true
		case graphmodel.EdgeCalls:
			foundCalls = true
		}
	}
	assert.True(t, foundResolves, "expected a RESOLVES_TO edge")
	assert.True(t, foundCalls, "expected a CALLS edge alongside RESOLVES_TO")
}

func TestBuildFileMarksUnresolvedCallee(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	require.NoError(t, os.WriteFile(path, []byte(`def caller():
    return totally_unknown_function()
`), 0o644))

	b, _ := newTestBuilder(t)
	report, err := b.BuildFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, report.CallsResolved)
	assert.Equal(t, 1, report.CallsUnresolved)
}

func TestBuildFileIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	require.NoError(t, os.WriteFile(path, []byte(`def fn():
    pass
`), 0o644))

	b, st := newTestBuilder(t)
	_, err := b.BuildFile(context.Background(), path)
	require.NoError(t, err)
	_, err = b.BuildFile(context.Background(), path)
	require.NoError(t, err)

	stats, err := st.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NodesByLabel[graphmodel.LabelFunction])
}

func TestBuildDirectoryResolvesCrossFileCall(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte(`def shared_helper():
    pass
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte(`def caller():
    return shared_helper()
`), 0o644))

	b, _ := newTestBuilder(t)
	report, err := b.BuildDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CallsResolved)
}
