// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases with the pragmas every
// SDMS component expects and hands out connections from a fixed-size
// pool.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers either
// [Pool.Take] and [Pool.Put] a connection themselves or pass a
// function to [Pool.With]. A connection is not safe for concurrent
// use; each goroutine holds its own for the duration of its work.
//
// Every connection is prepared with:
//
//   - journal_mode=WAL, so lookups never wait on a writer
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//   - temp_store=MEMORY
//
// followed by Config.OnConnect, which is where callers create their
// schema.
package sqlitepool
