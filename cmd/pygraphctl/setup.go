// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/kraklabs/pygraph/internal/clierrors"
	"github.com/kraklabs/pygraph/internal/config"
	"github.com/kraklabs/pygraph/pkg/builder"
	"github.com/kraklabs/pygraph/pkg/driver"
	"github.com/kraklabs/pygraph/pkg/extractor"
	"github.com/kraklabs/pygraph/pkg/store"
	"github.com/kraklabs/pygraph/pkg/store/cozo"
	"github.com/kraklabs/pygraph/pkg/store/mem"
	"github.com/kraklabs/pygraph/pkg/validator"
)

func init() {
	color.NoColor = !isatty.IsTerminal(os.Stdout.Fd())
}

// loadConfig loads the project config or exits with a structured failure.
func loadConfig(globals globalFlags) *config.Config {
	cfg, err := config.LoadConfig(globals.ConfigPath)
	if err != nil {
		clierrors.FatalError(clierrors.NewInputError(
			"Cannot load configuration",
			err.Error(),
			"Pass --config to point at a valid project.yaml",
			err,
		), globals.JSON)
	}
	if globals.NoColor {
		color.NoColor = true
	}
	logLevel := slog.LevelInfo
	if globals.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(logger); err != nil {
		clierrors.FatalError(clierrors.NewInputError(
			"Invalid configuration", err.Error(), "Fix the reported field in project.yaml", err,
		), globals.JSON)
	}
	return cfg
}

// openStore opens the backend named by cfg.Store.URI, following the
// ambient codebase's "engine:path" convention for selecting between the
// in-memory and persistent CozoDB backends.
func openStore(cfg *config.Config, globals globalFlags) *store.Store {
	uri := cfg.Store.URI
	engine, path, _ := strings.Cut(uri, ":")

	var backend store.Backend
	var err error
	switch engine {
	case "mem", "":
		backend, err = mem.Open()
	default:
		backend, err = cozo.Open(cozo.Config{Engine: engine, Path: path})
	}
	if err != nil {
		clierrors.FatalError(clierrors.NewDatabaseError(
			"Cannot open graph store",
			fmt.Sprintf("Failed to open backend %q", uri),
			"Check store.uri in project.yaml and that the data directory is writable",
			err,
		), globals.JSON)
	}

	st := store.New(backend)
	if err := st.InitializeSchema(context.TODO()); err != nil {
		clierrors.FatalError(clierrors.NewDatabaseError(
			"Cannot initialize graph schema", err.Error(), "Try 'pygraphctl validate --full' after fixing the underlying issue", err,
		), globals.JSON)
	}
	return st
}

func newDriver(st *store.Store, cfg *config.Config, logger *slog.Logger) *driver.Driver {
	ex := extractor.NewTreeSitterExtractor(logger)
	b := builder.New(st, ex, logger)
	allowList := cfg.Validator.SignatureTransformingDecorators
	if len(allowList) == 0 {
		allowList = validator.DefaultSignatureTransformingDecorators()
	}
	v := validator.New(st, allowList)
	return driver.New(st, b, v, logger, cfg.Ingestion.UseGitDelta)
}
