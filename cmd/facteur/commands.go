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
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath      string
	verbosity       int
	pretend         bool
	personalityFlag string

	// Command-specific flags
	assumeYes    bool
	serveAddr    string
	historyLimit int
	historyAll   bool

	rootCmd = &cobra.Command{
		Use:   "facteur",
		Short: "Zero-downtime release manager for Laravel applications",
		Long: `facteur keeps timestamped releases of an application under
<dir>/releases, shares storage through <dir>/shared and serves the live
release through the <dir>/current symlink, which is switched atomically.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	initCmd = &cobra.Command{
		Use:   "init <dir> <git-url>",
		Short: "Create a deployment target and its first release",
		Long: `Creates <dir> with releases/ and shared/, clones the repository into a
first release, installs dependencies, moves its storage into shared/ and
points current at it. Refuses to run if <dir> already exists.`,
		Args: exactArgs(2),
		RunE: runInit,
	}

	deployCmd = &cobra.Command{
		Use:   "deploy <dir> <git-url>",
		Short: "Deploy a new release and switch current to it",
		Long: `Clones the repository into a new release, carries the current .env
forward, installs dependencies, links shared storage, runs migrations and
switches current. Old releases beyond keep_releases are removed.`,
		Args: exactArgs(2),
		RunE: runDeploy,
	}

	rollbackCmd = &cobra.Command{
		Use:   "rollback <dir>",
		Short: "Point current at the release before it",
		Args:  exactArgs(1),
		RunE:  runRollback,
	}

	releasesCmd = &cobra.Command{
		Use:   "releases <dir>",
		Short: "List releases and mark the current one",
		Args:  exactArgs(1),
		RunE:  runReleases,
	}

	historyCmd = &cobra.Command{
		Use:   "history [dir]",
		Short: "Show recorded workflow runs, newest first",
		Args:  maxArgs(1),
		RunE:  runHistory,
	}

	serveCmd = &cobra.Command{
		Use:   "serve <dir>",
		Short: "Serve a read-only HTTP status view of a target",
		Long: `Serves GET /healthz, /releases, /history and /metrics for <dir> until
interrupted.`,
		Args: exactArgs(1),
		RunE: runServe,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  exactArgs(0),
		RunE:  runConfigShow,
	}

	configSetWebhookCmd = &cobra.Command{
		Use:   "set-webhook <url>",
		Short: "Store the Slack webhook URL in the OS keyring",
		Args:  exactArgs(1),
		RunE:  runConfigSetWebhook,
	}

	configDeleteWebhookCmd = &cobra.Command{
		Use:   "delete-webhook",
		Short: "Remove the Slack webhook URL from the OS keyring",
		Args:  exactArgs(0),
		RunE:  runConfigDeleteWebhook,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"configuration file (default ~/.facteur/facteur.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"log to stderr at debug level")
	rootCmd.PersistentFlags().BoolVarP(&pretend, "pretend", "p", false,
		"print the actions instead of performing them")
	rootCmd.PersistentFlags().StringVar(&personalityFlag, "personality", "",
		"output style: full, standard, minimal or machine")

	rollbackCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false,
		"do not ask for confirmation")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"listen address (default from configuration)")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20,
		"maximum number of runs to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyAll, "all", false,
		"show runs of every target")

	configCmd.AddCommand(configSetWebhookCmd)
	configCmd.AddCommand(configDeleteWebhookCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(releasesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}
