// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package keydb stores registered public keys in a local SQLite
// database and resolves them to user ids. A *DB serves as the
// persistent-tier credential.UIDResolver for deployments without a
// database service.
package keydb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/sdms-foundation/sdms/lib/curve"
	"github.com/sdms-foundation/sdms/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS public_keys (
	public_key TEXT PRIMARY KEY NOT NULL CHECK (length(public_key) = 40),
	uid        TEXT NOT NULL CHECK (uid <> ''),
	added_at   INTEGER NOT NULL
) STRICT;
CREATE INDEX IF NOT EXISTS public_keys_uid ON public_keys (uid);
`

// Config configures Open.
type Config struct {
	// Path is the database file, or sqlitepool.MemoryPath.
	Path     string
	PoolSize int
	Logger   *slog.Logger

	// Now stamps new entries. Defaults to time.Now.
	Now func() time.Time
}

// Entry is one registered key.
type Entry struct {
	PublicKey string
	UID       string
	AddedAt   time.Time
}

// DB is a key database. It is safe for concurrent use.
type DB struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the key database at config.Path.
func Open(config Config) (*DB, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("keydb: %w", err)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &DB{pool: pool, logger: logger, now: now}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.pool.Close()
}

// LookupUID returns the uid registered for key.
func (db *DB) LookupUID(ctx context.Context, key string) (uid string, found bool, err error) {
	err = db.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT uid FROM public_keys WHERE public_key = ?", &sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				uid = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("keydb: looking up %s: %w", curve.Fingerprint([]byte(key)), err)
	}
	return uid, found, nil
}

// Register binds key to uid, replacing any previous binding. key must
// be a 40-character Z85 public key.
func (db *DB) Register(ctx context.Context, key, uid string) error {
	if _, err := curve.ParsePublicKey(key); err != nil {
		return fmt.Errorf("keydb: %w", err)
	}
	if uid == "" {
		return errors.New("keydb: uid is required")
	}
	err := db.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO public_keys (public_key, uid, added_at) VALUES (?, ?, ?)
			ON CONFLICT (public_key) DO UPDATE SET uid = excluded.uid, added_at = excluded.added_at`,
			&sqlitex.ExecOptions{Args: []any{key, uid, db.now().Unix()}})
	})
	if err != nil {
		return fmt.Errorf("keydb: registering %s: %w", curve.Fingerprint([]byte(key)), err)
	}
	db.logger.Info("public key registered", "key", curve.Fingerprint([]byte(key)), "uid", uid)
	return nil
}

// Revoke removes key and reports whether it was registered.
func (db *DB) Revoke(ctx context.Context, key string) (bool, error) {
	var removed bool
	err := db.pool.With(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, "DELETE FROM public_keys WHERE public_key = ?", &sqlitex.ExecOptions{
			Args: []any{key},
		}); err != nil {
			return err
		}
		removed = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("keydb: revoking %s: %w", curve.Fingerprint([]byte(key)), err)
	}
	return removed, nil
}

// List returns the keys registered to uid, or every key when uid is
// empty, oldest first.
func (db *DB) List(ctx context.Context, uid string) ([]Entry, error) {
	query := "SELECT public_key, uid, added_at FROM public_keys ORDER BY added_at, public_key"
	var args []any
	if uid != "" {
		query = "SELECT public_key, uid, added_at FROM public_keys WHERE uid = ? ORDER BY added_at, public_key"
		args = []any{uid}
	}
	var entries []Entry
	err := db.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, Entry{
					PublicKey: stmt.ColumnText(0),
					UID:       stmt.ColumnText(1),
					AddedAt:   time.Unix(stmt.ColumnInt64(2), 0).UTC(),
				})
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("keydb: listing keys: %w", err)
	}
	return entries, nil
}
