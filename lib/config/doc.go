// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads SDMS server configuration.
//
// Configuration comes from one file, named by the SDMS_CONFIG
// environment variable ([Load]) or a --config flag ([LoadFile]).
// There is no discovery and no fallback search. Files ending in .json
// or .jsonc are read as JSON with comments; anything else is YAML.
//
// The file may carry development, staging and production sections
// that override base values when [Config].Environment matches.
// After overrides, ${VAR} and ${VAR:-default} patterns in path and URL
// fields are expanded from the process environment, with ${SDMS_ROOT}
// defaulting to /etc/sdms. No other environment variable overrides a
// configured value.
//
// [Config.Validate] reports every problem at once with errors.Join.
package config
