// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"strings"
)

// FacteurConfig is the on-disk configuration for the facteur CLI.
type FacteurConfig struct {
	// KeepReleases is how many release directories survive a deploy.
	KeepReleases int `yaml:"keep_releases" validate:"gte=1"`

	// Layout names the directories and files under a base directory.
	Layout LayoutConfig `yaml:"layout"`

	// Commands are the external tools run during a deploy.
	Commands CommandsConfig `yaml:"commands"`

	Notify    NotifyConfig    `yaml:"notify"`
	History   HistoryConfig   `yaml:"history"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
}

// LayoutConfig names entries relative to the base directory (or to a
// release directory for StorageDir, EnvFile and EnvExample).
type LayoutConfig struct {
	ReleasesDir string `yaml:"releases_dir" validate:"required,excludes=/"`
	SharedDir   string `yaml:"shared_dir" validate:"required,excludes=/"`
	CurrentLink string `yaml:"current_link" validate:"required,excludes=/"`
	StorageDir  string `yaml:"storage_dir" validate:"required,excludes=/"`
	EnvFile     string `yaml:"env_file" validate:"required,excludes=/"`
	EnvExample  string `yaml:"env_example" validate:"required,excludes=/"`
}

// CommandsConfig holds argv templates. Each element may contain the
// placeholders {repo} and {release}.
type CommandsConfig struct {
	Checkout CommandTemplate `yaml:"checkout" validate:"required,min=1"`
	Install  CommandTemplate `yaml:"install" validate:"required,min=1"`

	// Migrate runs with the release directory as working directory.
	Migrate CommandTemplate `yaml:"migrate" validate:"required,min=1"`
}

// CommandTemplate is an argv with placeholders.
type CommandTemplate []string

// Expand substitutes placeholders and splits the result into the program
// name and its arguments.
func (c CommandTemplate) Expand(repo, release string) (string, []string) {
	if len(c) == 0 {
		return "", nil
	}
	r := strings.NewReplacer("{repo}", repo, "{release}", release)
	out := make([]string, len(c))
	for i, part := range c {
		out[i] = r.Replace(part)
	}
	return out[0], out[1:]
}

type NotifyConfig struct {
	Slack SlackConfig `yaml:"slack"`
}

// SlackConfig configures the incoming-webhook notifier. The notifier is
// enabled when WebhookURL is set or UseKeyring is true.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url,omitempty" validate:"omitempty,url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`

	// UseKeyring reads the webhook URL from the OS keychain instead of
	// this file. See `facteur config set-webhook`.
	UseKeyring bool `yaml:"use_keyring"`

	TimeoutSeconds int `yaml:"timeout_seconds" validate:"gte=0"`
}

// Enabled reports whether Slack notifications are configured.
func (s SlackConfig) Enabled() bool {
	return s.WebhookURL != "" || s.UseKeyring
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir" validate:"required_if=Enabled true"`
}

type TelemetryConfig struct {
	// TraceExporter is one of none, stdout or otlp.
	TraceExporter string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint  string `yaml:"otlp_endpoint,omitempty" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`

	// MetricsTextfile, when set, receives a Prometheus text dump after
	// every workflow (node_exporter textfile collector format).
	MetricsTextfile string `yaml:"metrics_textfile,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() FacteurConfig {
	return FacteurConfig{
		KeepReleases: 3,
		Layout: LayoutConfig{
			ReleasesDir: "releases",
			SharedDir:   "shared",
			CurrentLink: "current",
			StorageDir:  "storage",
			EnvFile:     ".env",
			EnvExample:  ".env.example",
		},
		Commands: CommandsConfig{
			Checkout: CommandTemplate{"git", "clone", "{repo}", "{release}"},
			Install:  CommandTemplate{"composer", "install", "-d", "{release}", "--no-dev", "--prefer-dist"},
			Migrate:  CommandTemplate{"php", "artisan", "migrate", "--force"},
		},
		Notify: NotifyConfig{
			Slack: SlackConfig{
				Channel:        "#app-notifier",
				Username:       "Deploy Bot",
				TimeoutSeconds: 10,
			},
		},
		History: HistoryConfig{
			Enabled: true,
			Dir:     "~/.facteur/history",
		},
		Telemetry: TelemetryConfig{
			TraceExporter: "none",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8089",
		},
	}
}
