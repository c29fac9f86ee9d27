// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package driver_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/pygraph/pkg/builder"
	"github.com/kraklabs/pygraph/pkg/driver"
	"github.com/kraklabs/pygraph/pkg/extractor"
	"github.com/kraklabs/pygraph/pkg/store"
	"github.com/kraklabs/pygraph/pkg/store/mem"
	"github.com/kraklabs/pygraph/pkg/validator"
)

func newTestDriver(t *testing.T) (*driver.Driver, *store.Store) {
	t.Helper()
	backend, err := mem.Open()
	require.NoError(t, err)
	st := store.New(backend)
	require.NoError(t, st.InitializeSchema(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	b := builder.New(st, extractor.NewTreeSitterExtractor(nil), nil)
	v := validator.New(st, nil)
	d := driver.New(st, b, v, nil, false)
	return d, st
}

func TestHandleFileChangeRunsFullProtocol(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	require.NoError(t, os.WriteFile(path, []byte(`def greet(name, greeting):
    return greeting + name


def caller():
    return greet("Alice")
`), 0o644))

	d, st := newTestDriver(t)
	ctx := context.Background()

	report, err := d.HandleFileChange(ctx, driver.FileChangeEvent{Path: path, Kind: driver.FileCreated})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesProcessed)
	assert.Greater(t, report.NodesUpserted, 0)

	foundMismatch := false
	for _, v := range report.Violations {
		if v.Kind == validator.KindSignatureMismatch {
			foundMismatch = true
		}
	}
	assert.True(t, foundMismatch, "too-few-arguments call should surface a signature_mismatch violation")

	// Step 6 (clear_changed_flags) must leave nothing marked changed.
	changed, err := st.GetChangedIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestHandleFileChangeDeletionRemovesSlice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	require.NoError(t, os.WriteFile(path, []byte(`def helper():
    pass
`), 0o644))

	d, st := newTestDriver(t)
	ctx := context.Background()

	_, err := d.HandleFileChange(ctx, driver.FileChangeEvent{Path: path, Kind: driver.FileCreated})
	require.NoError(t, err)

	nodesBefore, err := st.AllNodes(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, nodesBefore)

	report, err := d.HandleFileChange(ctx, driver.FileChangeEvent{Path: path, Kind: driver.FileDeleted})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesDeleted)

	nodesAfter, err := st.AllNodes(ctx, 0)
	require.NoError(t, err)
	for _, n := range nodesAfter {
		assert.NotContains(t, n.Location, path)
	}
}

func TestHandleDirectoryFullIndexesAndValidates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte(`def shared_helper():
    pass
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte(`def caller():
    return shared_helper()
`), 0o644))

	d, st := newTestDriver(t)
	ctx := context.Background()

	report, err := d.HandleDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesProcessed)

	changed, err := st.GetChangedIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, changed, "clear_changed_flags should run even on the full-index path")

	hashes, err := st.FileHashes(ctx)
	require.NoError(t, err)
	assert.Len(t, hashes, 2, "hash-based detector should commit a baseline after the first full index")
}

func TestHandleDirectoryIsIncrementalOnSecondRun(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(pathA, []byte(`def f():
    pass
`), 0o644))

	d, st := newTestDriver(t)
	ctx := context.Background()

	_, err := d.HandleDirectory(ctx, dir)
	require.NoError(t, err)

	pathB := filepath.Join(dir, "b.py")
	require.NoError(t, os.WriteFile(pathB, []byte(`def g():
    pass
`), 0o644))

	report, err := d.HandleDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesProcessed, "only the newly added file should be processed on the incremental pass")

	nodes, err := st.AllNodes(ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, nodes)
}
