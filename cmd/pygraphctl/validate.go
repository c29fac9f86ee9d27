// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/pygraph/internal/clierrors"
	"github.com/kraklabs/pygraph/pkg/validator"
)

// runValidate executes the 'validate' subcommand: run all four
// conservation laws (or only the changed-entity subset) and print a
// severity/kind-grouped report.
func runValidate(args []string, globals globalFlags) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	full := fs.Bool("full", true, "Validate the whole graph rather than only changed entities")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: pygraphctl validate [options]

Run the signature, referential, type-flow, and structural conservation
laws over the indexed graph and print a grouped violation report.

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

	allowList := cfg.Validator.SignatureTransformingDecorators
	if len(allowList) == 0 {
		allowList = validator.DefaultSignatureTransformingDecorators()
	}
	v := validator.New(st, allowList)

	ctx := context.Background()
	var violations []validator.Violation
	var err error
	if *full {
		violations, err = v.ValidateAll(ctx)
	} else {
		violations, err = v.ValidateIncremental(ctx)
	}
	if err != nil {
		clierrors.FatalError(clierrors.NewDatabaseError(
			"Validation failed", err.Error(), "Check the store is reachable and the schema is initialized", err,
		), globals.JSON)
	}

	report := validator.BuildReport(violations)
	if globals.JSON {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{
			"total":       report.Total,
			"by_severity": report.BySeverity,
			"by_kind":     report.ByKind,
			"violations":  validator.ForJSON(report.Violations),
		})
		if report.BySeverity[validator.SeverityError] > 0 {
			os.Exit(1)
		}
		return
	}

	if report.Total == 0 {
		fmt.Println(color.GreenString("No conservation-law violations found."))
		return
	}
	fmt.Printf("%d violation(s): %d error(s), %d warning(s)\n",
		report.Total, report.BySeverity[validator.SeverityError], report.BySeverity[validator.SeverityWarning])
	for _, v := range report.Violations {
		label := color.YellowString(string(v.Severity))
		if v.Severity == validator.SeverityError {
			label = color.RedString(string(v.Severity))
		}
		fmt.Printf("[%s] %s: %s\n", label, v.Kind, v.Message)
	}
	if report.BySeverity[validator.SeverityError] > 0 {
		os.Exit(1)
	}
}
