// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/sdms-foundation/sdms/lib/curve"
	"github.com/sdms-foundation/sdms/lib/keydb"
)

type keygenOptions struct {
	OutDir        string
	Name          string
	AgeRecipients []string
	Force         bool

	KeyDB string
	UID   string

	Logger *slog.Logger
}

type keygenResult struct {
	PublicKey  string
	PublicPath string
	SecretPath string
}

func (o keygenOptions) validate() error {
	if o.Name == "" || strings.ContainsRune(o.Name, filepath.Separator) {
		return fmt.Errorf("invalid --name %q", o.Name)
	}
	for _, recipient := range o.AgeRecipients {
		if _, err := age.ParseX25519Recipient(recipient); err != nil {
			return fmt.Errorf("invalid --age-recipient %q: %w", recipient, err)
		}
	}
	if (o.KeyDB == "") != (o.UID == "") {
		return errors.New("--keydb and --uid must be given together")
	}
	return nil
}

// generate creates a key pair, writes it under OutDir and, when asked,
// registers the public key.
func generate(ctx context.Context, options keygenOptions) (keygenResult, error) {
	if err := options.validate(); err != nil {
		return keygenResult{}, err
	}

	result := keygenResult{
		PublicPath: filepath.Join(options.OutDir, options.Name+".pub"),
		SecretPath: filepath.Join(options.OutDir, options.Name+".key"),
	}
	if !options.Force {
		for _, path := range []string{result.PublicPath, result.SecretPath} {
			if _, err := os.Stat(path); err == nil {
				return keygenResult{}, fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return keygenResult{}, err
			}
		}
	}
	if err := os.MkdirAll(options.OutDir, 0o755); err != nil {
		return keygenResult{}, fmt.Errorf("creating output directory: %w", err)
	}

	keys, err := curve.GenerateKeyPair()
	if err != nil {
		return keygenResult{}, err
	}
	defer keys.Close()
	result.PublicKey = keys.Public.String()

	if err := curve.SaveKeyPair(keys, result.PublicPath, result.SecretPath, options.AgeRecipients); err != nil {
		return keygenResult{}, err
	}

	if options.KeyDB != "" {
		db, err := keydb.Open(keydb.Config{Path: options.KeyDB, PoolSize: 1, Logger: options.Logger})
		if err != nil {
			return keygenResult{}, err
		}
		defer db.Close()
		if err := db.Register(ctx, result.PublicKey, options.UID); err != nil {
			return keygenResult{}, fmt.Errorf("registering key: %w", err)
		}
	}
	return result, nil
}
