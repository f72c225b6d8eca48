// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// sdms-authz asks the core server whether a client may perform an
// action on a repository file. It is built to be called by gateways
// and storage hooks: the exit status is 0 when the server answers
// ACK and 1 on a NACK or any failure to get an answer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/sdms-foundation/sdms/lib/logging"
	"github.com/sdms-foundation/sdms/lib/version"
	"github.com/sdms-foundation/sdms/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		options     authzOptions
		verbose     bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("sdms-authz", pflag.ContinueOnError)
	flagSet.StringVar(&options.Endpoint, "endpoint", "tcp://localhost:7512", "core server endpoint")
	flagSet.StringVar(&options.ServerKeyFile, "server-key", "", "core server public key file; enables CURVE")
	flagSet.StringVar(&options.PublicKeyFile, "public-key", "", "this client's public key file")
	flagSet.StringVar(&options.SecretKeyFile, "secret-key", "", "this client's secret key file")
	flagSet.StringVar(&options.AgeIdentityFile, "age-identity", "", "age identity for an age-sealed secret key")
	flagSet.StringVar(&options.Access.Repo, "repo", "", "repository ID (required)")
	flagSet.StringVar(&options.Access.Client, "client", "", "client UID being checked (required)")
	flagSet.StringVar(&options.Access.File, "file", "", "file path within the repository (required)")
	flagSet.StringVar(&options.Access.Action, "action", "", "action to authorize, e.g. read or write (required)")
	flagSet.DurationVar(&options.Timeout, "timeout", transport.DefaultRequestTimeout, "wait for each attempt")
	flagSet.IntVar(&options.Retries, "retries", transport.DefaultRetries, "resends after a timeout; negative for none")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log transport activity to stderr")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("sdms-authz")
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	options.Logger = logging.New(level)

	ctx, cancel := context.WithTimeout(context.Background(), options.deadline())
	defer cancel()

	if err := authorize(ctx, options); err != nil {
		var nack *transport.NackError
		if errors.As(err, &nack) {
			return fmt.Errorf("denied: %s", nack.Code)
		}
		return err
	}
	return nil
}

// deadline bounds the whole run: every attempt plus connection setup.
func (o authzOptions) deadline() time.Duration {
	attempts := max(o.Retries, 0) + 1
	return time.Duration(attempts)*max(o.Timeout, time.Second) + 5*time.Second
}
