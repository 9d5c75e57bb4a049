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
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/facteur/cmd/facteur/config"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/notify"
	"github.com/AleutianAI/facteur/pkg/ux"
)

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return usageErrorf("load configuration: %w", err)
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	ux.Plain(strings.TrimRight(string(data), "\n"))
	return nil
}

func runConfigSetWebhook(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(args[0])
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return usageErrorf("%q is not an https URL", args[0])
	}
	if err := notify.StoreWebhook(args[0]); err != nil {
		return fmt.Errorf("store webhook: %w", err)
	}
	ux.Success("Slack webhook stored in the OS keyring")
	ux.Muted("Set notify.slack.use_keyring: true to use it.")
	return nil
}

func runConfigDeleteWebhook(cmd *cobra.Command, _ []string) error {
	if err := notify.DeleteWebhook(); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	ux.Success("Slack webhook removed from the OS keyring")
	return nil
}
