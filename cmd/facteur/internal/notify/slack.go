// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNoWebhook is returned when Slack is enabled but no URL is available.
var ErrNoWebhook = errors.New("slack webhook URL is not configured")

// Emoji per outcome.
const (
	EmojiSuccess  = ":tropical_drink:"
	EmojiFailure  = ":skull_and_crossbones:"
	EmojiRollback = ":japanese_ogre:"
)

// SlackConfig configures the incoming-webhook notifier.
type SlackConfig struct {
	WebhookURL string
	Channel    string
	Username   string

	// Timeout bounds one delivery. Default: 10s
	Timeout time.Duration
}

// slackPayload is the incoming-webhook message body.
type slackPayload struct {
	Text      string `json:"text"`
	Channel   string `json:"channel,omitempty"`
	Username  string `json:"username,omitempty"`
	IconEmoji string `json:"icon_emoji,omitempty"`
}

// Slack posts events to a Slack incoming webhook.
type Slack struct {
	config SlackConfig
	client *http.Client
}

// NewSlack creates a Slack notifier.
func NewSlack(config SlackConfig) *Slack {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Slack{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, event Event) error {
	if s.config.WebhookURL == "" {
		return ErrNoWebhook
	}

	body, err := json.Marshal(slackPayload{
		Text:      event.Message(),
		Channel:   s.config.Channel,
		Username:  s.config.Username,
		IconEmoji: emojiFor(event.Kind),
	})
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// url.Error embeds the webhook URL, which is a secret.
		return fmt.Errorf("send slack message: %w", errors.Unwrap(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func emojiFor(k Kind) string {
	switch k {
	case KindFailure:
		return EmojiFailure
	case KindRollbackSuccess:
		return EmojiRollback
	default:
		return EmojiSuccess
	}
}

// Compile-time interface check
var _ Notifier = (*Slack)(nil)
