// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"github.com/AleutianAI/facteur/cmd/facteur/config"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/sink"
)

// Commands builds the external collaborator invocations. Each command is
// run once, blocking, through the ActionSink; only its exit status matters.
type Commands interface {
	// Checkout fetches sources from repo into releaseDir.
	Checkout(repo, releaseDir string) sink.Command

	// Install installs dependencies of releaseDir.
	Install(releaseDir string) sink.Command

	// Migrate runs database migrations for releaseDir.
	Migrate(releaseDir string) sink.Command
}

// TemplateCommands expands configured command templates.
type TemplateCommands struct {
	config config.CommandsConfig
}

// NewTemplateCommands creates Commands from configuration.
func NewTemplateCommands(cfg config.CommandsConfig) *TemplateCommands {
	return &TemplateCommands{config: cfg}
}

// Checkout implements Commands.
func (c *TemplateCommands) Checkout(repo, releaseDir string) sink.Command {
	name, args := c.config.Checkout.Expand(repo, releaseDir)
	return sink.Command{Name: name, Args: args}
}

// Install implements Commands.
func (c *TemplateCommands) Install(releaseDir string) sink.Command {
	name, args := c.config.Install.Expand("", releaseDir)
	return sink.Command{Name: name, Args: args}
}

// Migrate implements Commands. It runs inside the release directory.
func (c *TemplateCommands) Migrate(releaseDir string) sink.Command {
	name, args := c.config.Migrate.Expand("", releaseDir)
	return sink.Command{Name: name, Args: args, Dir: releaseDir}
}

var _ Commands = (*TemplateCommands)(nil)
