// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for SDMS packages.
//
// [SocketDir] creates a short temporary directory for ipc:// endpoints,
// whose Unix socket paths are limited to 108 bytes. [Endpoint] returns
// a fresh inproc:// or ipc:// endpoint for a test.
//
// [RequireReceive], [RequireClosed] and [WaitFor] hold the wall-clock
// timeouts that keep a broken test from hanging; tests themselves use
// lib/clock for anything time-dependent.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation.
//
// All helpers call t.Fatalf on failure.
package testutil
