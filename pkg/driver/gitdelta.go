// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package driver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/kraklabs/pygraph/pkg/store"
)

const metaKeyLastIndexedSHA = "last_indexed_sha"

// GitDeltaDetector detects changed files between the last-indexed commit
// and HEAD using `git diff --name-status`, the same plumbing the ambient
// codebase's DeltaDetector uses, generalized to the Delta/DeltaDetector
// shape this module's driver expects.
type GitDeltaDetector struct {
	Store  *store.Store
	Logger *slog.Logger
}

func NewGitDeltaDetector(st *store.Store, logger *slog.Logger) *GitDeltaDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitDeltaDetector{Store: st, Logger: logger}
}

// IsGitRepository reports whether root is inside a git work tree.
func (d *GitDeltaDetector) IsGitRepository(root string) bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = root
	return cmd.Run() == nil
}

func (d *GitDeltaDetector) resolveRef(root, ref string) (string, error) {
	cmd := exec.Command("git", "rev-parse", ref)
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s: %w", ref, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (d *GitDeltaDetector) Detect(ctx context.Context, root string) (*Delta, bool, error) {
	lastSHA, ok, err := d.Store.GetMeta(ctx, metaKeyLastIndexedSHA)
	if err != nil {
		return nil, false, err
	}
	if !ok || lastSHA == "" {
		return nil, false, nil
	}

	headSHA, err := d.resolveRef(root, "HEAD")
	if err != nil {
		return nil, false, err
	}
	if headSHA == lastSHA {
		return &Delta{}, true, nil
	}

	cmd := exec.CommandContext(ctx, "git", "diff", "--name-status", "-M", lastSHA, headSHA) //nolint:gosec // G204: args are resolved SHAs
	cmd.Dir = root
	output, err := cmd.Output()
	if err != nil {
		return nil, false, fmt.Errorf("git diff: %w", err)
	}

	delta := &Delta{}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		status, paths := parts[0], parts[1:]
		if !strings.HasSuffix(paths[len(paths)-1], ".py") {
			continue
		}
		switch status[0] {
		case 'A':
			delta.Added = append(delta.Added, paths[0])
		case 'M':
			delta.Modified = append(delta.Modified, paths[0])
		case 'D':
			delta.Deleted = append(delta.Deleted, paths[0])
		case 'R':
			if len(paths) >= 2 {
				delta.Deleted = append(delta.Deleted, paths[0])
				delta.Added = append(delta.Added, paths[1])
			}
		case 'C':
			if len(paths) >= 2 {
				delta.Added = append(delta.Added, paths[1])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	d.Logger.Info("driver.git_delta.detect",
		"base_sha", lastSHA, "head_sha", headSHA,
		"added", len(delta.Added), "modified", len(delta.Modified), "deleted", len(delta.Deleted),
	)
	return delta, true, nil
}

func (d *GitDeltaDetector) Commit(ctx context.Context, root string) error {
	headSHA, err := d.resolveRef(root, "HEAD")
	if err != nil {
		return err
	}
	return d.Store.SetMeta(ctx, metaKeyLastIndexedSHA, headSHA)
}
