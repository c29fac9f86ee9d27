// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package driver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kraklabs/pygraph/pkg/store"
)

// HashDeltaDetector detects file changes by comparing content hashes
// against the store's pg_file_hash table, the VCS-agnostic fallback the
// ambient codebase's HashDeltaDetector implements against its own
// cie_file table.
type HashDeltaDetector struct {
	Store  *store.Store
	Logger *slog.Logger
}

func NewHashDeltaDetector(st *store.Store, logger *slog.Logger) *HashDeltaDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &HashDeltaDetector{Store: st, Logger: logger}
}

func (d *HashDeltaDetector) Detect(ctx context.Context, root string) (*Delta, bool, error) {
	stored, err := d.Store.FileHashes(ctx)
	if err != nil {
		return nil, false, err
	}
	firstRun := len(stored) == 0

	var current []string
	err = filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".py" {
			return nil
		}
		current = append(current, path)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("walk %s: %w", root, err)
	}

	delta := &Delta{}
	seen := map[string]bool{}
	for _, path := range current {
		seen[path] = true
		hash, err := hashFile(path)
		if err != nil {
			d.Logger.Warn("driver.hash_delta.hash_failed", "path", path, "err", err)
			continue
		}
		if prior, ok := stored[path]; !ok {
			delta.Added = append(delta.Added, path)
		} else if prior != hash {
			delta.Modified = append(delta.Modified, path)
		}
	}
	for path := range stored {
		if !seen[path] {
			delta.Deleted = append(delta.Deleted, path)
		}
	}

	if firstRun {
		return delta, false, nil
	}
	d.Logger.Info("driver.hash_delta.detect",
		"added", len(delta.Added), "modified", len(delta.Modified), "deleted", len(delta.Deleted),
	)
	return delta, true, nil
}

// Commit recomputes and stores every current file's hash, and drops the
// hash for anything no longer on disk.
func (d *HashDeltaDetector) Commit(ctx context.Context, root string) error {
	stored, err := d.Store.FileHashes(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	err = filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != ".py" {
			return nil
		}
		hash, err := hashFile(path)
		if err != nil {
			d.Logger.Warn("driver.hash_delta.commit.hash_failed", "path", path, "err", err)
			return nil
		}
		seen[path] = true
		return d.Store.SetFileHash(ctx, path, hash)
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}
	for path := range stored {
		if !seen[path] {
			if err := d.Store.DeleteFileHash(ctx, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func hashFile(path string) (string, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a directory walk under a caller-supplied root
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}
