// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package clierrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kraklabs/pygraph/internal/clierrors"
)

func TestCLIErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("disk full")
	err := clierrors.NewPermissionError("Cannot write file", "permission denied", "check permissions", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Cannot write file")
	assert.Contains(t, err.Error(), "disk full")
}

func TestCLIErrorKindsAreDistinct(t *testing.T) {
	kinds := map[clierrors.Kind]*clierrors.CLIError{
		clierrors.KindInternal:   clierrors.NewInternalError("t", "d", "s", nil),
		clierrors.KindDatabase:   clierrors.NewDatabaseError("t", "d", "s", nil),
		clierrors.KindNetwork:    clierrors.NewNetworkError("t", "d", "s", nil),
		clierrors.KindPermission: clierrors.NewPermissionError("t", "d", "s", nil),
		clierrors.KindInput:      clierrors.NewInputError("t", "d", "s", nil),
	}
	for kind, err := range kinds {
		assert.Equal(t, kind, err.Kind)
	}
}

func TestCLIErrorWithoutCauseReportsTitleOnly(t *testing.T) {
	err := clierrors.NewInputError("Bad flag", "not a valid value", "use --help", nil)
	assert.Equal(t, "Bad flag", err.Error())
	assert.NoError(t, errors.Unwrap(err))
}

func TestCLIErrorWrappedByFmtErrorfStillUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	cliErr := clierrors.NewNetworkError("Cannot reach server", "dial failed", "check the server is running", cause)
	wrapped := fmt.Errorf("request failed: %w", cliErr)

	var target *clierrors.CLIError
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, clierrors.KindNetwork, target.Kind)
}
