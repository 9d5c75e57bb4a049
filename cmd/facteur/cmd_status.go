// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/facteur/cmd/facteur/internal/history"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/statusserver"
	"github.com/AleutianAI/facteur/pkg/ux"
)

// =============================================================================
// releases
// =============================================================================

func runReleases(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	tree, err := a.newTree(args[0])
	if err != nil {
		return err
	}
	ids, err := tree.ListReleases()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		ux.Warning("No releases in " + tree.Basedir())
		return nil
	}

	current, err := tree.Current()
	if err != nil {
		ux.Warning(fmt.Sprintf("%s does not point at a release", tree.CurrentLink()))
		current = ""
	}

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		mark := ""
		if id == current {
			mark = "*"
		}
		rows = append(rows, []string{mark, id})
	}
	ux.Table([]string{"CURRENT", "RELEASE"}, rows)
	return nil
}

// =============================================================================
// history
// =============================================================================

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.History.Enabled {
		return usageErrorf("history is disabled in the configuration")
	}

	filter := history.Filter{Limit: historyLimit}
	if len(args) == 1 && !historyAll {
		tree, err := a.newTree(args[0])
		if err != nil {
			return err
		}
		filter.Basedir = tree.Basedir()
	}

	store, err := a.openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		ux.Info("No recorded runs")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, historyRow(rec, filter.Basedir == ""))
	}
	header := []string{"STARTED", "WORKFLOW", "STATUS", "RELEASE", "DURATION", "RUN"}
	if filter.Basedir == "" {
		header = append(header, "BASEDIR")
	}
	ux.Table(header, rows)
	return nil
}

func historyRow(rec history.Record, withBasedir bool) []string {
	release := rec.ReleaseID
	if release == "" {
		release = "-"
	}
	row := []string{
		rec.Started.Local().Format(time.DateTime),
		rec.Workflow,
		rec.Status,
		release,
		rec.Duration.Round(time.Millisecond).String(),
		rec.RunID,
	}
	if withBasedir {
		row = append(row, rec.Basedir)
	}
	return row
}

// =============================================================================
// serve
// =============================================================================

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	tree, err := a.newTree(args[0])
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	cfg := statusserver.Config{
		Addr:    addr,
		Tree:    tree,
		Metrics: a.metrics.Handler(),
		Logger:  a.log.Slog(),
	}
	if a.cfg.History.Enabled {
		cfg.History = history.Lister{Config: a.historyConfig()}
	}
	if ids, err := tree.ListReleases(); err == nil {
		a.metrics.RecordReleases(len(ids))
	}

	ux.Info(fmt.Sprintf("Serving %s on http://%s", tree.Basedir(), addr))
	return statusserver.New(cfg).Run(cmd.Context())
}
