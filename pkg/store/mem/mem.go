// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mem opens the same CGO-backed engine used by package cozo in its
// "mem" in-process mode, so the package-level test suite needs no data
// directory (the native library is still linked) — the same pattern
// the ambient codebase's own tests use when they open cozo.New("mem", "",
// nil) directly.
package mem

import (
	"github.com/kraklabs/pygraph/pkg/store"
	"github.com/kraklabs/pygraph/pkg/store/cozo"
)

// Open returns a new backend running entirely in memory.
func Open() (store.Backend, error) {
	return cozo.Open(cozo.Config{Engine: "mem"})
}
