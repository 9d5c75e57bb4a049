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
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring coordinates of the Slack webhook secret.
const (
	KeyringService = "facteur"
	KeyringUser    = "slack-webhook"
)

// StoreWebhook saves the webhook URL in the OS keyring.
func StoreWebhook(url string) error {
	if url == "" {
		return ErrNoWebhook
	}
	if err := keyring.Set(KeyringService, KeyringUser, url); err != nil {
		return fmt.Errorf("store webhook in keyring: %w", err)
	}
	return nil
}

// LoadWebhook reads the webhook URL from the OS keyring.
func LoadWebhook() (string, error) {
	url, err := keyring.Get(KeyringService, KeyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoWebhook
		}
		return "", fmt.Errorf("read webhook from keyring: %w", err)
	}
	return url, nil
}

// DeleteWebhook removes the stored webhook URL. A missing entry is not
// an error.
func DeleteWebhook() error {
	if err := keyring.Delete(KeyringService, KeyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete webhook from keyring: %w", err)
	}
	return nil
}

// ResolveWebhook returns the configured URL, or the keyring entry when
// useKeyring is set.
func ResolveWebhook(configured string, useKeyring bool) (string, error) {
	if useKeyring {
		return LoadWebhook()
	}
	if configured == "" {
		return "", ErrNoWebhook
	}
	return configured, nil
}
