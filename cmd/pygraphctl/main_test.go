// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/pygraph/internal/config"
)

func TestPrintTableFormatsHeadersAndRows(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	oldStdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	printTable([]string{"name", "line"}, [][]any{{"greet", int64(3)}, {"caller", int64(7)}})

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout

	out := buf.String()
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "greet")
	assert.Contains(t, out, "caller")
}

func TestOpenStoreOpensInMemoryBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.URI = "mem:"
	globals := globalFlags{JSON: true}

	st := openStore(cfg, globals)
	require.NotNil(t, st)
	defer func() { _ = st.Close() }()

	_, err := st.Statistics(context.Background())
	assert.NoError(t, err)
}
