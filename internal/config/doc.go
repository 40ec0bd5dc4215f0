// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for titanbot.
//
// Configuration lives in ~/.titanbot/config.toml, with built-in defaults for
// every field and validation on load.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (TITANBOT_*)
//   - ~/.titanbot/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// A Watcher reloads the file on change so long-running sessions pick up
// edits without a restart.
package config
