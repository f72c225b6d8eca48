// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sdms-foundation/sdms/lib/mq"
	"github.com/sdms-foundation/sdms/lib/proto"
)

// Config configures a Communicator.
type Config struct {
	// Endpoint is a tcp://, ipc:// or inproc:// address. A Router
	// binds it; a Dealer connects to it.
	Endpoint string

	Role mq.Role

	// Codec encodes payloads and decodes received bodies.
	Codec *proto.Codec

	// Mechanism secures the socket; nil means no security.
	Mechanism mq.Mechanism

	// Key and ID fill the key and id parts of envelopes sent with
	// those fields empty. ID defaults to a random uuid.
	Key string
	ID  string

	Logger *slog.Logger
}

// Response is the outcome of one Receive. Exactly one of Envelope
// (with no error), TimeOut or Error describes it. On Error, Envelope
// is still set when the failure came after the envelope's framing was
// read; the connection stays open so the caller can reply, and the
// caller must then call Disconnect.
type Response struct {
	Envelope *Envelope
	Error    bool
	TimeOut  bool
	Err      error
}

// Communicator exchanges envelopes over one socket. Send and Receive
// may be called from different goroutines.
type Communicator struct {
	socket *mq.Socket
	codec  *proto.Codec
	role   mq.Role
	key    string
	id     string
	logger *slog.Logger
}

// New creates the socket for config and binds or connects it.
func New(config Config) (*Communicator, error) {
	if config.Codec == nil {
		return nil, errors.New("transport: Config.Codec is required")
	}
	if _, err := mq.ParseEndpoint(config.Endpoint); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := config.ID
	if id == "" {
		id = uuid.NewString()
	}

	var identity []byte
	if config.Role == mq.Dealer {
		identity = []byte(id)
	}
	socket, err := mq.New(mq.Options{
		Role:      config.Role,
		Identity:  identity,
		Mechanism: config.Mechanism,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	switch config.Role {
	case mq.Router:
		err = socket.Bind(config.Endpoint)
	case mq.Dealer:
		err = socket.Connect(config.Endpoint)
	}
	if err != nil {
		socket.Close()
		return nil, err
	}

	return &Communicator{
		socket: socket,
		codec:  config.Codec,
		role:   config.Role,
		key:    config.Key,
		id:     id,
		logger: logger.With("endpoint", config.Endpoint),
	}, nil
}

// Endpoint returns the bound endpoint of a router communicator, with
// any ephemeral port resolved.
func (c *Communicator) Endpoint() string { return c.socket.LastEndpoint() }

// ID returns the identity this communicator declares.
func (c *Communicator) ID() string { return c.id }

// Send transmits env as one unit. A router communicator needs a
// route: its first frame names the destination peer. Low-latency mode
// is held for the duration of the write.
func (c *Communicator) Send(ctx context.Context, env *Envelope) error {
	if c.role == mq.Router && len(env.Route) == 0 {
		return ErrMissingRoute
	}
	if env.Key == "" {
		env.Key = c.key
	}
	if env.ID == "" {
		env.ID = c.id
	}
	parts, err := encodeEnvelope(c.codec, env, c.role == mq.Dealer)
	if err != nil {
		return err
	}

	if err := c.socket.SetLowLatency(true); err != nil {
		c.logger.Debug("enabling low-latency mode failed", "error", err)
	}
	err = c.socket.Send(ctx, mq.Message{Parts: parts})
	if lowErr := c.socket.SetLowLatency(false); lowErr != nil {
		c.logger.Debug("disabling low-latency mode failed", "error", lowErr)
	}
	if err != nil {
		return fmt.Errorf("sending %s: %w", env.Frame, err)
	}
	return nil
}

// Receive waits up to timeout for the next envelope.
func (c *Communicator) Receive(timeout time.Duration) Response {
	message, err := c.socket.Receive(timeout)
	if err != nil {
		if errors.Is(err, mq.ErrTimeout) {
			return Response{TimeOut: true}
		}
		return Response{Error: true, Err: err}
	}

	env, err := decodeEnvelope(c.codec, message.Parts, c.role == mq.Router)
	if err != nil {
		if env == nil {
			c.dropPeer(message.Parts, err)
			return Response{Error: true, Err: err}
		}
		env.PeerKey = message.PeerKey
		return Response{Envelope: env, Error: true, Err: err}
	}
	env.PeerKey = message.PeerKey
	return Response{Envelope: env}
}

// Disconnect closes the connection env arrived on. A router drops the
// peer named by the first route frame. A dealer resets its link, which
// is dialed again with backoff.
func (c *Communicator) Disconnect(env *Envelope) error {
	if c.role == mq.Dealer {
		c.logger.Warn("resetting connection after protocol error")
		c.socket.Reset()
		return nil
	}
	if env == nil || len(env.Route) == 0 {
		return ErrMissingRoute
	}
	c.logger.Warn("disconnecting peer after protocol error", "peer", string(env.Route[0]))
	return c.socket.Disconnect(env.Route[0])
}

// dropPeer tears down the connection of a message whose framing could
// not be read.
func (c *Communicator) dropPeer(parts [][]byte, err error) {
	if c.role == mq.Dealer {
		c.logger.Warn("resetting connection after protocol error", "error", err)
		c.socket.Reset()
		return
	}
	if len(parts) == 0 {
		return
	}
	identity := parts[0]
	c.logger.Warn("disconnecting peer after protocol error", "peer", string(identity), "error", err)
	if disconnectErr := c.socket.Disconnect(identity); disconnectErr != nil {
		c.logger.Debug("disconnect failed", "peer", string(identity), "error", disconnectErr)
	}
}

// PeerCount returns the number of connected peers.
func (c *Communicator) PeerCount() int { return c.socket.PeerCount() }

// Close closes the socket.
func (c *Communicator) Close() error {
	return c.socket.Close()
}
