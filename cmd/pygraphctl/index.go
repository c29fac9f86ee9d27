// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/pygraph/internal/clierrors"
)

// runIndex executes the 'index' subcommand: a full or incremental build of
// the repository named by repo.path, followed by a validation pass,
// mirroring the ambient CLI's indexing command shape.
func runIndex(args []string, globals globalFlags) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	full := fs.Bool("full", false, "Force a full re-index, ignoring any stored delta baseline")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty: use metrics.addr from the config; disabled when both are empty)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: pygraphctl index [options]

Index the repository at repo.path into the graph store: extract every
Python file, resolve call sites, and run the conservation-law validator
over the result.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(globals)
	st := openStore(cfg, globals)
	defer func() { _ = st.Close() }()

	if *metricsAddr == "" {
		*metricsAddr = cfg.Metrics.Addr
	}
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			_ = srv.ListenAndServe()
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	d := newDriver(st, cfg, nil)

	var bar *progressbar.ProgressBar
	if !globals.JSON {
		bar = progressbar.Default(-1, "indexing")
	}

	if *full {
		if err := st.ClearAll(ctx); err != nil {
			clierrors.FatalError(clierrors.NewDatabaseError(
				"Cannot clear existing graph", err.Error(), "Check the store is not held open by another process", err,
			), globals.JSON)
		}
	}

	report, err := d.HandleDirectory(ctx, cfg.Repo.Path)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		clierrors.FatalError(clierrors.NewDatabaseError(
			"Indexing failed", err.Error(), "Check the error above; 'pygraphctl index --full' forces a clean rebuild", err,
		), globals.JSON)
	}

	if globals.JSON {
		_ = json.NewEncoder(os.Stdout).Encode(report)
		return
	}
	fmt.Printf("Indexed %d file(s), %d deleted, %d node(s) upserted, %d edge(s) upserted (%d skipped).\n",
		report.FilesProcessed, report.FilesDeleted, report.NodesUpserted, report.EdgesUpserted, report.EdgesSkipped)
	if len(report.Violations) > 0 {
		fmt.Printf("%d conservation-law violation(s) found. Run 'pygraphctl validate' for details.\n", len(report.Violations))
	}
}
