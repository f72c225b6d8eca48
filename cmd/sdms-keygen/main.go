// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// sdms-keygen creates CURVE key pairs for SDMS servers and clients.
// It writes NAME.pub and NAME.key (Z85 text) into --out-dir. With
// --age-recipient the secret key file is sealed to those age
// recipients. With --keydb and --uid the new public key is also
// registered in a persistent key database for that UID.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/sdms-foundation/sdms/lib/logging"
	"github.com/sdms-foundation/sdms/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		options     keygenOptions
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("sdms-keygen", pflag.ContinueOnError)
	flagSet.StringVar(&options.OutDir, "out-dir", ".", "directory for the key files")
	flagSet.StringVar(&options.Name, "name", "sdms", "base name of the key files")
	flagSet.StringArrayVar(&options.AgeRecipients, "age-recipient", nil, "seal the secret key to this age recipient (repeatable)")
	flagSet.BoolVar(&options.Force, "force", false, "overwrite existing key files")
	flagSet.StringVar(&options.KeyDB, "keydb", "", "register the public key in this key database")
	flagSet.StringVar(&options.UID, "uid", "", "user the key is registered for (with --keydb)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("sdms-keygen")
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	options.Logger = logging.New(slog.LevelWarn)

	result, err := generate(context.Background(), options)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s and %s\n", result.PublicPath, result.SecretPath)
	fmt.Fprintln(os.Stdout, result.PublicKey)
	return nil
}
