// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package curve

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/Rudd-O/curvetls"

	"github.com/sdms-foundation/sdms/lib/mq"
	"github.com/sdms-foundation/sdms/lib/secret"
)

// Authenticator decides whether a client that completed the key
// exchange may use the connection.
type Authenticator interface {
	Allow(publicKey PublicKey) bool
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(PublicKey) bool

func (f AuthenticatorFunc) Allow(publicKey PublicKey) bool { return f(publicKey) }

// AllowAny accepts every client that proves possession of its key.
func AllowAny() Authenticator {
	return AuthenticatorFunc(func(PublicKey) bool { return true })
}

// ServerMechanism returns the server side of the CURVE mechanism.
// authenticator may be nil to accept any client key.
func ServerMechanism(keys *KeyPair, authenticator Authenticator) (mq.Mechanism, error) {
	if err := keys.validate(); err != nil {
		return nil, fmt.Errorf("server key pair: %w", err)
	}
	if authenticator == nil {
		authenticator = AllowAny()
	}
	nonce, err := curvetls.NewLongNonce()
	if err != nil {
		return nil, fmt.Errorf("server long nonce: %w", err)
	}
	public := curvetls.Pubkey(keys.Public)
	return &serverMechanism{
		authenticator: authenticator,
		wrap: func(conn net.Conn) (*curvetls.EncryptedConn, curvetls.Pubkey, error) {
			private := keys.privateKey()
			defer secret.Zero(private[:])
			return curvetls.WrapServer(conn, private, public, nonce)
		},
	}, nil
}

// ClientMechanism returns the client side of the CURVE mechanism,
// connecting to a server whose long-term public key is server.
func ClientMechanism(keys *KeyPair, server PublicKey) (mq.Mechanism, error) {
	if err := keys.validate(); err != nil {
		return nil, fmt.Errorf("client key pair: %w", err)
	}
	if server.IsZero() {
		return nil, fmt.Errorf("server public key: %w", ErrMissingKey)
	}
	nonce, err := curvetls.NewLongNonce()
	if err != nil {
		return nil, fmt.Errorf("client long nonce: %w", err)
	}
	public := curvetls.Pubkey(keys.Public)
	return &clientMechanism{
		server: server,
		wrap: func(conn net.Conn) (*curvetls.EncryptedConn, error) {
			private := keys.privateKey()
			defer secret.Zero(private[:])
			return curvetls.WrapClient(conn, private, public, curvetls.Pubkey(server), nonce)
		},
	}, nil
}

// The long nonce is per key pair, so each mechanism holds one for all
// its connections.
type serverMechanism struct {
	authenticator Authenticator
	wrap          func(net.Conn) (*curvetls.EncryptedConn, curvetls.Pubkey, error)
}

func (*serverMechanism) Name() string { return "CURVE" }

func (m *serverMechanism) Handshake(conn net.Conn, dialed bool) (mq.Channel, error) {
	if dialed {
		return nil, fmt.Errorf("%w: server mechanism on a connecting socket", ErrHandshake)
	}
	encrypted, clientKey, err := m.wrap(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	client := PublicKey(clientKey)
	if !m.authenticator.Allow(client) {
		denied := fmt.Errorf("%w: %s", ErrPeerDenied, Fingerprint(client[:]))
		if err := encrypted.Deny(); err != nil {
			return nil, errors.Join(denied, fmt.Errorf("sending denial: %w", err))
		}
		return nil, denied
	}
	if err := encrypted.Allow(); err != nil {
		return nil, fmt.Errorf("%w: sending READY: %w", ErrHandshake, err)
	}
	return &channel{conn: encrypted, peer: client}, nil
}

type clientMechanism struct {
	server PublicKey
	wrap   func(net.Conn) (*curvetls.EncryptedConn, error)
}

func (*clientMechanism) Name() string { return "CURVE" }

func (m *clientMechanism) Handshake(conn net.Conn, dialed bool) (mq.Channel, error) {
	if !dialed {
		return nil, fmt.Errorf("%w: client mechanism on a listening socket", ErrHandshake)
	}
	encrypted, err := m.wrap(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return &channel{conn: encrypted, peer: m.server}, nil
}

// channel adapts an encrypted connection to mq.Channel. PeerKey is
// the key the handshake authenticated.
type channel struct {
	conn *curvetls.EncryptedConn
	peer PublicKey

	writeMu sync.Mutex
}

func (c *channel) ReadFrame() ([]byte, error) { return c.conn.ReadFrame() }

func (c *channel) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteFrame(frame)
}

func (c *channel) PeerKey() []byte {
	key := c.peer
	return key[:]
}

func (c *channel) Close() error { return c.conn.Close() }
