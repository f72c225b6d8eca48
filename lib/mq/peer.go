// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sdms-foundation/sdms/lib/netutil"
)

// peer is one established connection.
type peer struct {
	socket   *Socket
	conn     net.Conn
	channel  Channel
	identity []byte
	role     string

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

// attach runs the connection preamble: the mechanism handshake, then
// metadata. The dialing side speaks first. On success the peer is
// registered with the socket.
func (s *Socket) attach(conn net.Conn, dialed bool) (*peer, error) {
	if !s.trackPending(conn) {
		conn.Close()
		return nil, ErrClosed
	}
	defer s.untrackPending(conn)

	s.mu.Lock()
	lowLatency := s.lowLatency
	s.mu.Unlock()
	if err := configureTCP(conn, s.options.KeepAlive, lowLatency); err != nil {
		conn.Close()
		return nil, fmt.Errorf("configuring connection: %w", err)
	}

	conn.SetDeadline(time.Now().Add(s.options.HandshakeTimeout))
	p, err := s.handshake(conn, dialed)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})

	if err := s.register(p); err != nil {
		p.channel.Close()
		return nil, err
	}
	return p, nil
}

func (s *Socket) handshake(conn net.Conn, dialed bool) (*peer, error) {
	channel, err := s.mechanism.Handshake(conn, dialed)
	if err != nil {
		if errors.Is(err, ErrHandshake) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrHandshake, s.mechanism.Name(), err)
	}

	local := encodeMetadata([][2][]byte{
		{[]byte(propertySocketType), []byte(s.options.Role.String())},
		{[]byte(propertyIdentity), s.options.Identity},
	})
	remote, err := exchange(channel, local, dialed)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("%w: metadata: %w", ErrHandshake, err)
	}
	properties, err := parseMetadata(remote)
	if err != nil {
		channel.Close()
		return nil, err
	}

	identity := properties[propertyIdentity]
	if len(identity) == 0 {
		identity = []byte(uuid.NewString())
	}
	if len(identity) > MaxIdentitySize {
		channel.Close()
		return nil, fmt.Errorf("%w: identity is %d bytes", ErrHandshake, len(identity))
	}
	return &peer{
		socket:   s,
		conn:     conn,
		channel:  channel,
		identity: identity,
		role:     string(properties[propertySocketType]),
	}, nil
}

func (s *Socket) trackPending(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosing() {
		return false
	}
	if s.pending == nil {
		s.pending = make(map[net.Conn]struct{})
	}
	s.pending[conn] = struct{}{}
	return true
}

func (s *Socket) untrackPending(conn net.Conn) {
	s.mu.Lock()
	delete(s.pending, conn)
	s.mu.Unlock()
}

func (p *peer) send(parts [][]byte) error {
	frame := encodeParts(parts)
	p.writeMu.Lock()
	err := p.channel.WriteFrame(frame)
	p.writeMu.Unlock()
	if err != nil {
		p.close()
		if netutil.IsExpectedCloseError(err) {
			return fmt.Errorf("%w: %q", ErrHostUnreachable, p.identity)
		}
		return err
	}
	return nil
}

// idle returns a channel closed once no write is in progress.
func (p *peer) idle() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		p.writeMu.Lock()
		p.writeMu.Unlock()
		close(done)
	}()
	return done
}

// readLoop delivers messages until the connection ends, then
// unregisters the peer.
func (p *peer) readLoop() {
	defer p.close()
	logger := p.socket.logger.With("peer", string(p.identity))
	peerKey := p.channel.PeerKey()
	for {
		frame, err := p.channel.ReadFrame()
		if err != nil {
			switch {
			case p.closed.Load(), netutil.IsExpectedCloseError(err):
				logger.Debug("peer disconnected")
			default:
				logger.Warn("peer connection failed", "error", err)
				p.socket.deliver(inbound{err: &PeerError{Identity: p.identity, Err: err}})
			}
			return
		}

		parts, err := decodeParts(frame)
		if err != nil {
			logger.Warn("discarding peer after malformed frame", "error", err)
			p.socket.deliver(inbound{err: &PeerError{Identity: p.identity, Err: err}})
			return
		}

		if p.socket.options.Role == Router {
			parts = append([][]byte{p.identity}, parts...)
		}
		p.socket.deliver(inbound{message: Message{Parts: parts, PeerKey: peerKey}})
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.socket.unregister(p)
		if err := p.channel.Close(); err != nil && !isClosedError(err) {
			p.socket.logger.Debug("closing peer connection", "peer", string(p.identity), "error", err)
		}
	})
}
