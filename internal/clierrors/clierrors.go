// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package clierrors formats CLI-facing errors consistently: a short title,
// a human detail line, and an actionable suggestion, printed to stderr in
// human mode or marshaled as a FailurePayload in JSON mode. Grounded on the
// ambient codebase's cmd/cie error-reporting call sites (NewInternalError/
// NewDatabaseError/NewNetworkError/NewPermissionError/NewInputError,
// FatalError(err, jsonOutput)), whose internal/errors package wasn't part
// of the retrieved pack; the kinds and FatalError's stderr/JSON split are
// reconstructed from those call sites.
package clierrors

import (
	"encoding/json"
	"fmt"
	"os"

	pygraph "github.com/kraklabs/pygraph"
)

// Kind classifies a CLI-facing failure for display and for any future
// exit-code differentiation.
type Kind string

const (
	KindInternal   Kind = "internal"
	KindDatabase   Kind = "database"
	KindNetwork    Kind = "network"
	KindPermission Kind = "permission"
	KindInput      Kind = "input"
)

// CLIError is a user-facing error: a short title, what went wrong, a
// suggested remedy, and the underlying cause.
type CLIError struct {
	Kind       Kind
	Title      string
	Detail     string
	Suggestion string
	Cause      error
}

func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Title, e.Cause)
	}
	return e.Title
}

func (e *CLIError) Unwrap() error { return e.Cause }

func newError(kind Kind, title, detail, suggestion string, cause error) *CLIError {
	return &CLIError{Kind: kind, Title: title, Detail: detail, Suggestion: suggestion, Cause: cause}
}

func NewInternalError(title, detail, suggestion string, cause error) *CLIError {
	return newError(KindInternal, title, detail, suggestion, cause)
}

func NewDatabaseError(title, detail, suggestion string, cause error) *CLIError {
	return newError(KindDatabase, title, detail, suggestion, cause)
}

func NewNetworkError(title, detail, suggestion string, cause error) *CLIError {
	return newError(KindNetwork, title, detail, suggestion, cause)
}

func NewPermissionError(title, detail, suggestion string, cause error) *CLIError {
	return newError(KindPermission, title, detail, suggestion, cause)
}

func NewInputError(title, detail, suggestion string, cause error) *CLIError {
	return newError(KindInput, title, detail, suggestion, cause)
}

// FatalError reports err and exits with status 1. In JSON mode it marshals
// a pygraph.FailurePayload to stdout instead of writing the human-readable
// three-line form to stderr, so a caller scripting against --json never
// sees mixed-format output on a failure path.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}
	if jsonOutput {
		payload := payloadFor(err)
		_ = json.NewEncoder(os.Stdout).Encode(payload)
		os.Exit(1)
	}

	var cliErr *CLIError
	if asCLIError(err, &cliErr) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cliErr.Title)
		if cliErr.Detail != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", cliErr.Detail)
		}
		if cliErr.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "  Suggestion: %s\n", cliErr.Suggestion)
		}
		if cliErr.Cause != nil {
			fmt.Fprintf(os.Stderr, "  Cause: %v\n", cliErr.Cause)
		}
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func asCLIError(err error, target **CLIError) bool {
	for err != nil {
		if ce, ok := err.(*CLIError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func payloadFor(err error) pygraph.FailurePayload {
	var cliErr *CLIError
	if asCLIError(err, &cliErr) {
		details := map[string]any{"kind": string(cliErr.Kind)}
		if cliErr.Detail != "" {
			details["detail"] = cliErr.Detail
		}
		if cliErr.Suggestion != "" {
			details["suggestion"] = cliErr.Suggestion
		}
		return pygraph.NewFailurePayload(err, details)
	}
	return pygraph.NewFailurePayload(err, nil)
}
