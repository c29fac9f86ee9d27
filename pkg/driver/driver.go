// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package driver implements the incremental re-indexing protocol: on a
// file-change event, delete the file's prior slice, re-extract it,
// propagate the changed-flag fixpoint, run an incremental validation
// pass, and clear the flags — the six ordered steps of §4.7.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kraklabs/pygraph/pkg/builder"
	"github.com/kraklabs/pygraph/pkg/store"
	"github.com/kraklabs/pygraph/pkg/validator"
)

// ChangeReport summarizes one HandleFileChange or HandleDirectory run.
type ChangeReport struct {
	FilesProcessed int
	FilesDeleted   int
	NodesUpserted  int
	EdgesUpserted  int
	EdgesSkipped   int
	ChangedNodeIDs []string
	Violations     []validator.Violation
	Errors         []error
}

func (r *ChangeReport) merge(other *ChangeReport) {
	r.FilesProcessed += other.FilesProcessed
	r.FilesDeleted += other.FilesDeleted
	r.NodesUpserted += other.NodesUpserted
	r.EdgesUpserted += other.EdgesUpserted
	r.EdgesSkipped += other.EdgesSkipped
	r.ChangedNodeIDs = append(r.ChangedNodeIDs, other.ChangedNodeIDs...)
	r.Violations = append(r.Violations, other.Violations...)
	r.Errors = append(r.Errors, other.Errors...)
}

// Driver orchestrates the builder and validator against the store,
// implementing the event-driven incremental protocol and the initial
// whole-directory index.
type Driver struct {
	Store       *store.Store
	Builder     *builder.Builder
	Validator   *validator.Validator
	Logger      *slog.Logger
	UseGitDelta bool
}

// New wires a Driver from its three collaborators. logger defaults to
// slog.Default() when nil.
func New(st *store.Store, b *builder.Builder, v *validator.Validator, logger *slog.Logger, useGitDelta bool) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{Store: st, Builder: b, Validator: v, Logger: logger, UseGitDelta: useGitDelta}
}

// HandleFileChange implements §4.7 steps 1-6 for a single file event.
// For a deletion, step 2 (re-extract) is skipped: the file's slice is
// simply removed and the remaining steps still run, since a deletion can
// leave other entities (e.g. a caller whose RESOLVES_TO target just
// vanished) referentially inconsistent.
func (d *Driver) HandleFileChange(ctx context.Context, event FileChangeEvent) (*ChangeReport, error) {
	report := &ChangeReport{}

	if event.Kind == FileDeleted {
		n, err := d.Store.DeleteNodesByLocationPrefix(ctx, event.Path)
		if err != nil {
			return report, fmt.Errorf("delete %s: %w", event.Path, err)
		}
		report.FilesDeleted = 1
		d.Logger.Info("driver.file_change.deleted", "path", event.Path, "nodes_removed", n)
	} else {
		buildReport, err := d.Builder.BuildFile(ctx, event.Path)
		if err != nil {
			d.Logger.Error("driver.file_change.build_failed", "path", event.Path, "err", err)
			return report, fmt.Errorf("build %s: %w", event.Path, err)
		}
		report.FilesProcessed = 1
		report.NodesUpserted = buildReport.NodesUpserted
		report.EdgesUpserted = buildReport.EdgesUpserted
		report.EdgesSkipped = buildReport.EdgesSkipped
		report.Errors = append(report.Errors, buildReport.Errors...)

		if err := d.Store.MarkFileNodesChanged(ctx, event.Path); err != nil {
			return report, fmt.Errorf("mark_file_nodes_changed %s: %w", event.Path, err)
		}
	}

	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	if err := d.Store.PropagateChangedFlag(ctx); err != nil {
		return report, fmt.Errorf("propagate_changed_flag: %w", err)
	}

	changedIDs, err := d.Store.GetChangedIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("get_changed_ids: %w", err)
	}
	report.ChangedNodeIDs = changedIDs

	violations, err := d.Validator.ValidateIncremental(ctx)
	if err != nil {
		d.Logger.Warn("driver.file_change.validate_failed", "path", event.Path, "err", err)
	} else {
		report.Violations = violations
	}

	if err := d.Store.ClearChangedFlags(ctx); err != nil {
		return report, fmt.Errorf("clear_changed_flags: %w", err)
	}

	return report, nil
}

// HandleDirectory is the initial full-index path: it discovers Python
// files under root and either runs a whole-tree build (first run, or no
// detected baseline) or dispatches a delta of file-change events through
// HandleFileChange (subsequent runs), mirroring the
// full-index-falls-back-from-incremental shape of the ambient codebase's
// LocalPipeline.Run.
func (d *Driver) HandleDirectory(ctx context.Context, root string) (*ChangeReport, error) {
	detector := d.selectDetector(root)

	delta, ok, err := detector.Detect(ctx, root)
	if err != nil {
		d.Logger.Warn("driver.handle_directory.delta_failed", "err", err, "msg", "falling back to full index")
		ok = false
	}

	report := &ChangeReport{}

	if !ok {
		d.Logger.Info("driver.handle_directory.full_index", "root", root)
		buildReport, err := d.Builder.BuildDirectory(ctx, root)
		if err != nil {
			return report, fmt.Errorf("build_directory %s: %w", root, err)
		}
		report.FilesProcessed = countProcessedFiles(root)
		report.NodesUpserted = buildReport.NodesUpserted
		report.EdgesUpserted = buildReport.EdgesUpserted
		report.EdgesSkipped = buildReport.EdgesSkipped
		report.Errors = append(report.Errors, buildReport.Errors...)

		if err := d.markEverythingChanged(ctx); err != nil {
			return report, err
		}
		if err := d.Store.PropagateChangedFlag(ctx); err != nil {
			return report, fmt.Errorf("propagate_changed_flag: %w", err)
		}
		changedIDs, err := d.Store.GetChangedIDs(ctx)
		if err == nil {
			report.ChangedNodeIDs = changedIDs
		}
		violations, err := d.Validator.ValidateAll(ctx)
		if err != nil {
			d.Logger.Warn("driver.handle_directory.validate_failed", "err", err)
		} else {
			report.Violations = violations
		}
		if err := d.Store.ClearChangedFlags(ctx); err != nil {
			return report, fmt.Errorf("clear_changed_flags: %w", err)
		}
	} else if !delta.HasChanges() {
		d.Logger.Info("driver.handle_directory.no_changes", "root", root)
	} else {
		d.Logger.Info("driver.handle_directory.incremental",
			"added", len(delta.Added), "modified", len(delta.Modified), "deleted", len(delta.Deleted))
		for _, event := range delta.Events() {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			eventReport, err := d.HandleFileChange(ctx, event)
			if eventReport != nil {
				report.merge(eventReport)
			}
			if err != nil {
				report.Errors = append(report.Errors, err)
			}
		}
	}

	if err := detector.Commit(ctx, root); err != nil {
		d.Logger.Warn("driver.handle_directory.commit_baseline_failed", "err", err)
	}

	return report, nil
}

// selectDetector picks the git-based detector when configured and root is
// actually a git work tree, falling back to the hash-based detector
// otherwise, per §4.7's "falling back to hash-based when the root is not
// a Git repository".
func (d *Driver) selectDetector(root string) DeltaDetector {
	if d.UseGitDelta {
		git := NewGitDeltaDetector(d.Store, d.Logger)
		if git.IsGitRepository(root) {
			return git
		}
		d.Logger.Info("driver.select_detector.not_a_git_repo", "root", root, "msg", "falling back to hash-based delta")
	}
	return NewHashDeltaDetector(d.Store, d.Logger)
}

// markEverythingChanged stamps changed = true on every node currently in
// the store, used for the first full index so propagation and full
// validation both see a maximal changed set.
func (d *Driver) markEverythingChanged(ctx context.Context) error {
	nodes, err := d.Store.AllNodes(ctx, 0)
	if err != nil {
		return fmt.Errorf("mark_everything_changed: list nodes: %w", err)
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return d.Store.MarkNodesChanged(ctx, ids)
}

func countProcessedFiles(root string) int {
	count := 0
	_ = filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() && filepath.Ext(path) == ".py" {
			count++
		}
		return nil
	})
	return count
}
