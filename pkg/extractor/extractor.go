// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package extractor walks one source file at a time and produces a
// graphmodel.Graph of entities and relationships, plus a local symbol
// table used while resolving names within that file. It never touches
// the store: it is a pure function of source text and path.
package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
)

// ignoredDirs are skipped entirely by ParseDirectory, matching §4.2's
// "ignoring a fixed set of directory names".
var ignoredDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"node_modules": true,
}

// ParseResult is what one file's extraction yields: the graph slice plus
// the local symbol table built while walking, exposed so callers (the
// builder) can resolve CALLS_UNRESOLVED placeholders against it without
// re-walking the file.
type ParseResult struct {
	Graph  *graphmodel.Graph
	Scope  *SymbolTable
	Errors []error
}

// ExtractorError wraps a source syntax error or a failed parse. Per §4.2/§7
// this is always logged and local: the caller still receives a non-nil
// ParseResult holding only the file's Module node, so sibling files
// continue to index.
type ExtractorError struct {
	Path string
	Err  error
}

func (e *ExtractorError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractorError) Unwrap() error { return e.Err }

// Extractor is satisfied by both the tree-sitter-backed extractor and the
// line-scanning fallback, so the builder and driver are backend-agnostic.
type Extractor interface {
	// ParseSource extracts entities and relationships from already-read
	// source text. path is a virtual or real filesystem path used to
	// derive the qualified module name and node locations.
	ParseSource(ctx context.Context, text []byte, path string) (*ParseResult, error)
}

// ParseFile reads path and delegates to ex.ParseSource.
func ParseFile(ctx context.Context, ex Extractor, path string) (*ParseResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ex.ParseSource(ctx, content, path)
}

// ParseDirectory walks root recursively, extracting every `.py` file found
// and merging the per-file graphs into one combined graph. Directories
// named in ignoredDirs are skipped entirely. A per-file extraction error
// is recorded but does not abort the walk (§4.2/§7).
func ParseDirectory(ctx context.Context, ex Extractor, root string) (*graphmodel.Graph, []error, error) {
	combined := graphmodel.NewGraph()
	var errs []error

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".py") {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result, perr := ParseFile(ctx, ex, path)
		if perr != nil {
			errs = append(errs, perr)
			return nil
		}
		if result != nil && result.Graph != nil {
			combined.Merge(result.Graph)
		}
		errs = append(errs, result.Errors...)
		return nil
	})

	return combined, errs, walkErr
}

// QualifiedModuleName derives a dotted qualified name from a filesystem
// path relative to some root, per §4.2 step 1: directory separators become
// dots and the language suffix is dropped.
func QualifiedModuleName(path string) string {
	trimmed := strings.TrimSuffix(path, ".py")
	trimmed = strings.TrimPrefix(trimmed, string(filepath.Separator))
	trimmed = strings.ReplaceAll(trimmed, string(filepath.Separator), ".")
	trimmed = strings.ReplaceAll(trimmed, "/", ".")
	trimmed = strings.TrimPrefix(trimmed, ".")
	if strings.HasSuffix(trimmed, ".__init__") {
		trimmed = strings.TrimSuffix(trimmed, ".__init__")
	}
	return trimmed
}
