// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sdms-foundation/sdms/lib/credential"
	"github.com/sdms-foundation/sdms/lib/curve"
	"github.com/sdms-foundation/sdms/lib/dbclient"
	"github.com/sdms-foundation/sdms/lib/schema"
	"github.com/sdms-foundation/sdms/lib/testutil"
	"github.com/sdms-foundation/sdms/server"
	"github.com/sdms-foundation/sdms/transport"
)

type readOnly struct{}

func (readOnly) AuthorizeRepo(ctx context.Context, access dbclient.RepoAccess) error {
	if access.Action != "read" {
		return dbclient.ErrDenied
	}
	return nil
}

type keyFiles struct {
	public, secret string
	keys           *curve.KeyPair
}

func writeKeys(t *testing.T, name string) keyFiles {
	t.Helper()
	keys, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	t.Cleanup(func() { keys.Close() })
	directory := t.TempDir()
	files := keyFiles{
		public: filepath.Join(directory, name+".pub"),
		secret: filepath.Join(directory, name+".key"),
		keys:   keys,
	}
	if err := curve.SaveKeyPair(keys, files.public, files.secret, nil); err != nil {
		t.Fatalf("SaveKeyPair: %v", err)
	}
	return files
}

func startCore(t *testing.T, serverKeys *curve.KeyPair, clientKey string) string {
	t.Helper()
	registry, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("schema.NewRegistry: %v", err)
	}
	manager := credential.NewManager(credential.ManagerConfig{})
	manager.AddKey(credential.Persistent, clientKey, "u/gateway")
	mechanism, err := curve.ServerMechanism(serverKeys, curve.AllowAny())
	if err != nil {
		t.Fatalf("ServerMechanism: %v", err)
	}
	core, err := server.New(server.Config{
		Endpoint:   "tcp://127.0.0.1:0",
		Registry:   registry,
		Manager:    manager,
		Security:   mechanism,
		Authorizer: readOnly{},
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- core.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "core did not stop")
	})
	return core.Endpoint()
}

func TestAuthorize(t *testing.T) {
	serverFiles := writeKeys(t, "core")
	clientFiles := writeKeys(t, "gateway")
	endpoint := startCore(t, serverFiles.keys, clientFiles.keys.Public.String())

	options := authzOptions{
		Endpoint:      endpoint,
		ServerKeyFile: serverFiles.public,
		PublicKeyFile: clientFiles.public,
		SecretKeyFile: clientFiles.secret,
		Access: schema.RepoAuthzRequest{
			Repo:   "repo/physics",
			Client: "u/alice",
			File:   "/data/run1",
			Action: "read",
		},
		Timeout: 5 * time.Second,
		Retries: -1,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := authorize(ctx, options); err != nil {
		t.Fatalf("authorize(read): %v", err)
	}

	options.Access.Action = "write"
	err := authorize(ctx, options)
	var nack *transport.NackError
	if !errors.As(err, &nack) || nack.Code != schema.ErrorCodeClientError {
		t.Fatalf("authorize(write) = %v, want a client_error NACK", err)
	}

	// A client whose key the core does not know is refused by the gate.
	strangerFiles := writeKeys(t, "stranger")
	options.Access.Action = "read"
	options.PublicKeyFile = strangerFiles.public
	options.SecretKeyFile = strangerFiles.secret
	err = authorize(ctx, options)
	if !errors.As(err, &nack) || nack.Code != schema.ErrorCodeAuthnRequired {
		t.Fatalf("authorize(stranger) = %v, want an authn_required NACK", err)
	}
}

func TestAuthorize_RequiresAccessFields(t *testing.T) {
	err := authorize(context.Background(), authzOptions{
		Endpoint: "tcp://127.0.0.1:1",
		Access:   schema.RepoAuthzRequest{Repo: "repo/physics"},
	})
	if err == nil {
		t.Fatal("authorize with missing fields should fail")
	}
}

func TestClientSecurity_NeedsClientKeys(t *testing.T) {
	serverFiles := writeKeys(t, "core")
	if _, _, _, err := clientSecurity(authzOptions{ServerKeyFile: serverFiles.public}); err == nil {
		t.Fatal("clientSecurity without client keys should fail")
	}
}

func TestDeadline(t *testing.T) {
	options := authzOptions{Timeout: 2 * time.Second, Retries: 2}
	if got, want := options.deadline(), 11*time.Second; got != want {
		t.Errorf("deadline = %v, want %v", got, want)
	}
	options.Retries = -1
	if got, want := options.deadline(), 7*time.Second; got != want {
		t.Errorf("deadline with no retries = %v, want %v", got, want)
	}
}
