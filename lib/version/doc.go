// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package version carries build and protocol version information for
// SDMS binaries.
//
// GitCommit, GitDirty, BuildTime and Version are injected with
// -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/sdms-foundation/sdms/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// They read "unknown" and "0.1.0-dev" in development builds and tests.
// The API version is compiled in: it changes only when the wire
// protocols do, and the server reports it in VersionReply.
package version
