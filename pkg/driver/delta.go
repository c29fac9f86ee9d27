// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package driver

import (
	"context"
	"sort"
)

// FileChangeKind classifies a single file's change, matching §6's event
// stream contract {path, kind}.
type FileChangeKind string

const (
	FileCreated  FileChangeKind = "created"
	FileModified FileChangeKind = "modified"
	FileDeleted  FileChangeKind = "deleted"
)

// FileChangeEvent is a single incoming file-change notification.
type FileChangeEvent struct {
	Path string
	Kind FileChangeKind
}

// Delta is the detector-agnostic result shape both git-based and
// hash-based detectors produce, generalizing the ambient codebase's
// GitDelta so the driver doesn't care which detector found the changes.
type Delta struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Events flattens a Delta into an ordered FileChangeEvent slice, Added
// and Modified files first (sorted), Deleted files last (sorted), so a
// caller can feed them straight into a sequence of HandleFileChange
// calls.
func (d *Delta) Events() []FileChangeEvent {
	added := append([]string{}, d.Added...)
	modified := append([]string{}, d.Modified...)
	deleted := append([]string{}, d.Deleted...)
	sort.Strings(added)
	sort.Strings(modified)
	sort.Strings(deleted)

	events := make([]FileChangeEvent, 0, len(added)+len(modified)+len(deleted))
	for _, p := range added {
		events = append(events, FileChangeEvent{Path: p, Kind: FileCreated})
	}
	for _, p := range modified {
		events = append(events, FileChangeEvent{Path: p, Kind: FileModified})
	}
	for _, p := range deleted {
		events = append(events, FileChangeEvent{Path: p, Kind: FileDeleted})
	}
	return events
}

// HasChanges reports whether the delta carries any change at all.
func (d *Delta) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Modified) > 0 || len(d.Deleted) > 0
}

// DeltaDetector discovers which files changed since the last indexed
// baseline, so Driver.HandleDirectory can re-index a whole repository
// without a caller pre-computing the event list. Both the git-based and
// hash-based detectors satisfy this interface.
type DeltaDetector interface {
	// Detect returns the changed files relative to whatever baseline the
	// detector tracks (a git SHA, or stored content hashes), restricted to
	// files under root matching the .py extension. ok is false when no
	// baseline exists yet (first run): the caller should fall back to a
	// full directory build instead of a delta.
	Detect(ctx context.Context, root string) (delta *Delta, ok bool, err error)

	// Commit records the new baseline after a successful index run.
	Commit(ctx context.Context, root string) error
}
