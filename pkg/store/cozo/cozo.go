// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cozo adapts the ambient codebase's CGO-backed CozoDB client onto
// the store.Backend interface, opened in a persistent engine ("rocksdb" by
// default) so indexed graphs survive process restarts.
package cozo

import (
	"context"
	"fmt"
	"sync"

	cozodb "github.com/kraklabs/pygraph/pkg/cozodb"
	"github.com/kraklabs/pygraph/pkg/store"
)

// Backend is the persistent store.Backend implementation.
type Backend struct {
	mu     sync.RWMutex
	db     *cozodb.CozoDB
	closed bool
}

// Config selects the storage engine and data directory.
type Config struct {
	// Engine is the CozoDB storage engine: "rocksdb", "sqlite", or "mem".
	// Defaults to "rocksdb".
	Engine string
	// Path is the data directory (ignored for "mem").
	Path string
}

// Open opens a new persistent backend.
func Open(cfg Config) (*Backend, error) {
	engine := cfg.Engine
	if engine == "" {
		engine = "rocksdb"
	}
	db, err := cozodb.New(engine, cfg.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("open cozodb (%s): %w", engine, err)
	}
	return &Backend{db: &db}, nil
}

// Run executes a CozoScript mutation or query.
func (b *Backend) Run(ctx context.Context, script string, params map[string]any) (*store.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("cozo backend is closed")
	}

	rows, err := b.db.Run(script, params)
	if err != nil {
		return nil, err
	}
	return &store.Result{Headers: rows.Headers, Rows: rows.Rows}, nil
}

// Close releases the underlying database handle.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.db.Close()
	return nil
}

var _ store.Backend = (*Backend)(nil)
