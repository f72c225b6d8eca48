// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"fmt"
	"net"
)

// Channel carries whole frames between two peers once a mechanism has
// secured the connection. Frames written by one side arrive intact and
// in order on the other. The socket serializes WriteFrame calls and
// reads from a single goroutine.
type Channel interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error

	// PeerKey is the authenticated long-term public key of the remote
	// peer, or nil when the mechanism does not authenticate.
	PeerKey() []byte

	// Close closes the underlying connection.
	Close() error
}

// Mechanism secures a freshly established connection. Handshake is
// called once per connection with dialed set on the connecting side,
// and must be safe to call concurrently for different connections. A
// mechanism that rejects the remote peer returns an error and leaves
// closing conn to the caller.
type Mechanism interface {
	Name() string
	Handshake(conn net.Conn, dialed bool) (Channel, error)
}

// Null returns the mechanism with no authentication and no
// encryption. Frames travel length-prefixed after a greeting naming
// the mechanism.
func Null() Mechanism { return nullMechanism{} }

type nullMechanism struct{}

func (nullMechanism) Name() string { return "NULL" }

func (m nullMechanism) Handshake(conn net.Conn, dialed bool) (Channel, error) {
	records := newRecordConn(conn)
	remote, err := exchange(records, encodeGreeting(m.Name()), dialed)
	if err != nil {
		return nil, fmt.Errorf("greeting: %w", err)
	}
	mechanism, err := parseGreeting(remote)
	if err != nil {
		return nil, err
	}
	if mechanism != m.Name() {
		return nil, fmt.Errorf("%w: mechanism mismatch: local %s, remote %s", ErrHandshake, m.Name(), mechanism)
	}
	return records, nil
}

// exchange writes local and reads the remote frame, in the order
// given by dialed so that synchronous transports cannot deadlock.
func exchange(channel Channel, local []byte, dialed bool) ([]byte, error) {
	if dialed {
		if err := channel.WriteFrame(local); err != nil {
			return nil, err
		}
		return channel.ReadFrame()
	}
	remote, err := channel.ReadFrame()
	if err != nil {
		return nil, err
	}
	return remote, channel.WriteFrame(local)
}
