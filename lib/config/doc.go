// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the bot's YAML configuration.
//
// Configuration is loaded from a single file specified by either the
// MATRIXBOT_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// The file may carry environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production without an explicit section
// logs JSON at info level.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${MATRIXBOT_STATE} and ${VAR:-default} patterns are
// expanded. No other environment variables override config values;
// secrets are read from files named in the config, never from the
// config itself.
//
// Key exports:
//
//   - [Config] -- master struct with Matrix, Bot, Storage, Sync, Log
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
