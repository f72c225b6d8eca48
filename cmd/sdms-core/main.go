// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// sdms-core is the SDMS core server. It binds a ROUTER socket,
// optionally secured with CURVE, and answers the anon and authz
// protocols for every client of the deployment.
//
// Configuration comes from the file named by --config, or by
// SDMS_CONFIG when the flag is absent. SIGINT and SIGTERM shut the
// server down after in-flight requests are answered.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sdms-foundation/sdms/lib/clock"
	"github.com/sdms-foundation/sdms/lib/config"
	"github.com/sdms-foundation/sdms/lib/logging"
	"github.com/sdms-foundation/sdms/lib/schema"
	"github.com/sdms-foundation/sdms/lib/version"
	"github.com/sdms-foundation/sdms/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("sdms-core", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to sdms.yaml (default: $SDMS_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "info", "minimum log level: debug, info, warn or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("sdms-core")
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := logging.New(level)
	slog.SetDefault(logger)

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	security, closeKeys, err := loadSecurity(cfg.Security)
	if err != nil {
		return err
	}
	defer closeKeys()

	backends, err := openBackends(cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	manager := newManager(cfg.Credentials, backends.resolver, clk, logger)

	registry, err := schema.NewRegistry()
	if err != nil {
		return fmt.Errorf("building protocol registry: %w", err)
	}

	serverConfig := server.Config{
		Endpoint:        cfg.Server.Endpoint,
		Registry:        registry,
		Manager:         manager,
		Security:        security,
		Workers:         cfg.Server.Workers,
		QueueSize:       cfg.Server.QueueSize,
		MaintenanceTick: cfg.Server.MaintenanceTick,
		Clock:           clk,
		Logger:          logger,
	}
	if backends.database != nil {
		serverConfig.Verifier = backends.database
		serverConfig.Authorizer = backends.database
		serverConfig.Tokens = backends.database
	} else {
		logger.Warn("no database service configured; token authentication and repository checks will fail")
	}

	coreServer, err := server.New(serverConfig)
	if err != nil {
		return err
	}
	logger.Info("sdms-core starting",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"persistent_backend", cfg.Credentials.Persistent.Backend,
	)
	return coreServer.Serve(ctx)
}
