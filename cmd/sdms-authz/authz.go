// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sdms-foundation/sdms/lib/curve"
	"github.com/sdms-foundation/sdms/lib/mq"
	"github.com/sdms-foundation/sdms/lib/proto"
	"github.com/sdms-foundation/sdms/lib/schema"
	"github.com/sdms-foundation/sdms/lib/secret"
	"github.com/sdms-foundation/sdms/transport"
)

type authzOptions struct {
	Endpoint string

	ServerKeyFile   string
	PublicKeyFile   string
	SecretKeyFile   string
	AgeIdentityFile string

	Access schema.RepoAuthzRequest

	Timeout time.Duration
	Retries int

	Logger *slog.Logger
}

// authorize sends one RepoAuthzRequest. It returns nil on ACK and a
// *transport.NackError when the server refuses.
func authorize(ctx context.Context, options authzOptions) error {
	access := options.Access
	if err := access.Validate(); err != nil {
		return fmt.Errorf("--repo, --client, --file and --action are required: %w", err)
	}

	mechanism, key, closeKeys, err := clientSecurity(options)
	if err != nil {
		return err
	}
	defer closeKeys()

	registry, err := schema.NewRegistry()
	if err != nil {
		return err
	}
	comm, err := transport.New(transport.Config{
		Endpoint:  options.Endpoint,
		Role:      mq.Dealer,
		Codec:     proto.NewCodec(registry),
		Mechanism: mechanism,
		Key:       key,
		Logger:    options.Logger,
	})
	if err != nil {
		return err
	}
	defer comm.Close()

	client, err := transport.NewClient(transport.ClientConfig{
		Communicator: comm,
		Timeout:      options.Timeout,
		Retries:      options.Retries,
		Logger:       options.Logger,
	})
	if err != nil {
		return err
	}

	reply, err := client.Request(ctx, &access)
	if err != nil {
		return err
	}
	if _, ok := reply.(*schema.AckReply); !ok {
		return fmt.Errorf("unexpected reply %T", reply)
	}
	return nil
}

// clientSecurity loads the CURVE client mechanism when a server key
// is given. The returned key is this client's public key, declared
// in every envelope.
func clientSecurity(options authzOptions) (mq.Mechanism, string, func(), error) {
	if options.ServerKeyFile == "" {
		return nil, "", func() {}, nil
	}
	if options.PublicKeyFile == "" || options.SecretKeyFile == "" {
		return nil, "", nil, errors.New("--server-key needs --public-key and --secret-key")
	}

	serverKey, err := curve.LoadPublicKey(options.ServerKeyFile)
	if err != nil {
		return nil, "", nil, err
	}

	var ageIdentity *secret.Buffer
	if options.AgeIdentityFile != "" {
		identity, err := secret.ReadFile(options.AgeIdentityFile)
		if err != nil {
			return nil, "", nil, fmt.Errorf("reading age identity: %w", err)
		}
		defer identity.Close()
		ageIdentity = identity
	}

	keys, err := curve.LoadKeyPair(options.PublicKeyFile, options.SecretKeyFile, ageIdentity)
	if err != nil {
		return nil, "", nil, err
	}
	mechanism, err := curve.ClientMechanism(keys, serverKey)
	if err != nil {
		keys.Close()
		return nil, "", nil, err
	}
	return mechanism, keys.Public.String(), func() { keys.Close() }, nil
}
