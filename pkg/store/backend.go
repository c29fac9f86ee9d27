// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store adapts a typed labeled property graph onto a narrow
// Datalog-script backend, the same split the ambient codebase draws
// between its CGO-backed CozoDB client and the storage layer built on top
// of it.
package store

import "context"

// Result is a backend-agnostic query result: column headers plus rows,
// mirroring the ambient codebase's own cozodb.NamedRows shape.
type Result struct {
	Headers []string
	Rows    [][]any
}

// Backend is the narrow surface the store adapter needs from an embedded
// Datalog engine. Both the CGO-backed production backend and the
// in-memory test backend satisfy it.
type Backend interface {
	Run(ctx context.Context, script string, params map[string]any) (*Result, error)
	Close() error
}
