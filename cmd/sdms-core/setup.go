// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sdms-foundation/sdms/lib/clock"
	"github.com/sdms-foundation/sdms/lib/config"
	"github.com/sdms-foundation/sdms/lib/credential"
	"github.com/sdms-foundation/sdms/lib/curve"
	"github.com/sdms-foundation/sdms/lib/dbclient"
	"github.com/sdms-foundation/sdms/lib/keydb"
	"github.com/sdms-foundation/sdms/lib/mq"
	"github.com/sdms-foundation/sdms/lib/secret"
)

// loadSecurity returns the socket mechanism. With security disabled
// the socket runs unencrypted and the returned mechanism is nil.
func loadSecurity(security config.SecurityConfig) (mq.Mechanism, func(), error) {
	if !security.Enabled {
		return nil, func() {}, nil
	}

	var ageIdentity *secret.Buffer
	if security.AgeIdentityFile != "" {
		identity, err := secret.ReadFile(security.AgeIdentityFile)
		if err != nil {
			return nil, nil, fmt.Errorf("reading age identity: %w", err)
		}
		defer identity.Close()
		ageIdentity = identity
	}

	keys, err := curve.LoadKeyPair(security.PublicKeyFile, security.SecretKeyFile, ageIdentity)
	if err != nil {
		return nil, nil, err
	}
	mechanism, err := curve.ServerMechanism(keys, curve.AllowAny())
	if err != nil {
		keys.Close()
		return nil, nil, err
	}
	return mechanism, func() { keys.Close() }, nil
}

// backends holds the external services the core talks to. Either
// field may be nil.
type backends struct {
	resolver credential.UIDResolver
	database *dbclient.Client
	keys     *keydb.DB
}

func openBackends(cfg *config.Config, logger *slog.Logger) (*backends, error) {
	result := &backends{}
	if cfg.Database.URL != "" {
		client, err := dbclient.New(dbclient.Config{
			BaseURL: cfg.Database.URL,
			Timeout: cfg.Database.Timeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		result.database = client
	}

	switch cfg.Credentials.Persistent.Backend {
	case config.BackendHTTP:
		if result.database == nil {
			return nil, fmt.Errorf("persistent backend %q needs database.url", config.BackendHTTP)
		}
		result.resolver = result.database
	case config.BackendSQLite:
		db, err := keydb.Open(keydb.Config{
			Path:   cfg.Credentials.Persistent.SQLitePath,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		result.keys = db
		result.resolver = db
	}
	return result, nil
}

func (b *backends) Close() error {
	if b.keys != nil {
		return b.keys.Close()
	}
	return nil
}

// newManager builds the credential lifecycle: TRANSIENT keys used
// often enough are promoted to SESSION, and SESSION keys still in use
// are renewed. Configured service keys are loaded into PERSISTENT.
func newManager(credentials config.CredentialsConfig, resolver credential.UIDResolver, clk clock.Clock, logger *slog.Logger) *credential.Manager {
	store := credential.NewStore(credential.StoreConfig{
		Clock: clk,
		Expiration: map[credential.Tier]time.Duration{
			credential.Transient: credentials.Transient.Expiration,
			credential.Session:   credentials.Session.Expiration,
		},
		Resolver: resolver,
		Logger:   logger,
	})
	manager := credential.NewManager(credential.ManagerConfig{
		Store: store,
		Clock: clk,
		PurgeInterval: map[credential.Tier]time.Duration{
			credential.Transient: credentials.Transient.PurgeInterval,
			credential.Session:   credentials.Session.PurgeInterval,
		},
		Logger: logger,
	})
	manager.AddCondition(credential.Transient, credential.Promote{
		From:      credential.Transient,
		To:        credential.Session,
		Threshold: credentials.Transient.PromoteThreshold,
	})
	manager.AddCondition(credential.Session, credential.Reset{
		Tier:      credential.Session,
		Threshold: credentials.Session.ResetThreshold,
	})

	for key, uid := range credentials.ServiceKeys {
		manager.AddKey(credential.Persistent, key, uid)
	}
	if len(credentials.ServiceKeys) > 0 {
		logger.Info("service keys loaded", "count", len(credentials.ServiceKeys))
	}
	return manager
}
