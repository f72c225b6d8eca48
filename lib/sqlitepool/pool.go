// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// MemoryPath opens a private in-memory database. Open gives each pool
// its own named in-memory database and a single connection.
const MemoryPath = ":memory:"

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA temp_store=MEMORY",
}

// Config configures Open. Path is required.
type Config struct {
	// Path is the database file. Its directory must exist.
	Path string

	// PoolSize defaults to max(runtime.NumCPU(), 2).
	PoolSize int

	Logger *slog.Logger

	// OnConnect runs once per connection after the standard pragmas.
	// An error discards the connection and fails the Take.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size SQLite connection pool. It is safe for
// concurrent use.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool. Connections are opened lazily on Take.
func Open(config Config) (*Pool, error) {
	if config.Path == "" {
		return nil, errors.New("sqlitepool: Path is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 2)
	}
	uri := config.Path
	if config.Path == MemoryPath {
		uri = memoryURI()
		poolSize = 1
	}

	inner, err := sqlitex.NewPool(uri, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepare(conn, config.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", config.Path, err)
	}
	logger.Debug("sqlite pool opened", "path", config.Path, "pool_size", poolSize)
	return &Pool{inner: inner, logger: logger, path: config.Path}, nil
}

// memoryURI names a fresh in-memory database. sqlitex refuses the bare
// ":memory:" path for pools.
func memoryURI() string {
	return "file:sdms-" + uuid.NewString() + "?mode=memory&cache=shared"
}

// Take borrows a connection, blocking until one is free or ctx ends.
// The caller must Put it back.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection. Put(nil) is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	if conn != nil {
		p.inner.Put(conn)
	}
}

// With runs fn on a borrowed connection and returns it to the pool.
func (p *Pool) With(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)
	return fn(conn)
}

// Close waits for borrowed connections to come back and closes them.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Debug("sqlite pool closed", "path", p.path)
	return nil
}

func prepare(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}
	return nil
}
