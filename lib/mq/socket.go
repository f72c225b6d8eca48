// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Role selects the socket's routing behavior.
type Role int

const (
	// Router is the addressable, fan-in role.
	Router Role = iota + 1
	// Dealer is the point-to-point role.
	Dealer
)

func (r Role) String() string {
	switch r {
	case Router:
		return "ROUTER"
	case Dealer:
		return "DEALER"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Fixed socket policies.
const (
	DefaultKeepAlive         = 30 * time.Second
	DefaultReconnectInterval = 500 * time.Millisecond
	DefaultReconnectMax      = 4 * time.Second
	DefaultLinger            = 100 * time.Millisecond
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultQueueSize         = 1000

	// MaxIdentitySize is the longest identity a peer may declare.
	MaxIdentitySize = 255
)

// Options configures a Socket. Zero durations take the defaults above.
type Options struct {
	Role Role

	// Identity is declared to peers on connect. A router addresses
	// this peer by it; when empty the router assigns a random one.
	Identity []byte

	// Mechanism secures each connection. Nil means Null().
	Mechanism Mechanism

	Logger *slog.Logger

	QueueSize         int
	KeepAlive         time.Duration
	ReconnectInterval time.Duration
	ReconnectMax      time.Duration
	Linger            time.Duration
	HandshakeTimeout  time.Duration
}

// Message is one multi-part unit. On a router socket Parts[0] is the
// peer identity. PeerKey is the authenticated public key of the
// sending peer when the mechanism provides one.
type Message struct {
	Parts   [][]byte
	PeerKey []byte
}

type inbound struct {
	message Message
	err     error
}

// Socket is a message-queue socket. Its methods are safe for
// concurrent use.
type Socket struct {
	options   Options
	mechanism Mechanism
	logger    *slog.Logger
	inbound   chan inbound
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu           sync.Mutex
	peers        map[string]*peer
	order        []*peer
	next         int
	changed      chan struct{}
	listeners    []net.Listener
	pending      map[net.Conn]struct{}
	lastEndpoint string
	lowLatency   bool
}

// New creates a socket with the given options.
func New(options Options) (*Socket, error) {
	if options.Role != Router && options.Role != Dealer {
		return nil, fmt.Errorf("mq: invalid socket role %d", int(options.Role))
	}
	if len(options.Identity) > MaxIdentitySize {
		return nil, fmt.Errorf("mq: identity is %d bytes, maximum is %d", len(options.Identity), MaxIdentitySize)
	}
	if options.QueueSize <= 0 {
		options.QueueSize = DefaultQueueSize
	}
	if options.KeepAlive <= 0 {
		options.KeepAlive = DefaultKeepAlive
	}
	if options.ReconnectInterval <= 0 {
		options.ReconnectInterval = DefaultReconnectInterval
	}
	if options.ReconnectMax < options.ReconnectInterval {
		options.ReconnectMax = max(DefaultReconnectMax, options.ReconnectInterval)
	}
	if options.Linger <= 0 {
		options.Linger = DefaultLinger
	}
	if options.HandshakeTimeout <= 0 {
		options.HandshakeTimeout = DefaultHandshakeTimeout
	}
	mechanism := options.Mechanism
	if mechanism == nil {
		mechanism = Null()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Socket{
		options:   options,
		mechanism: mechanism,
		logger:    logger.With("role", options.Role.String()),
		inbound:   make(chan inbound, options.QueueSize),
		closing:   make(chan struct{}),
		peers:     make(map[string]*peer),
		changed:   make(chan struct{}),
	}, nil
}

// Role returns the socket's role.
func (s *Socket) Role() Role { return s.options.Role }

// Bind listens on endpoint and accepts peers in the background.
func (s *Socket) Bind(endpoint string) error {
	parsed, err := ParseEndpoint(endpoint)
	if err != nil {
		return err
	}
	if s.isClosing() {
		return ErrClosed
	}
	listener, err := listen(parsed, s.options.KeepAlive)
	if err != nil {
		return fmt.Errorf("binding %s: %w", endpoint, err)
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.lastEndpoint = boundEndpoint(parsed, listener)
	s.mu.Unlock()
	s.logger.Info("socket bound", "endpoint", s.LastEndpoint(), "mechanism", s.mechanism.Name())

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// LastEndpoint returns the endpoint most recently bound, with any
// ephemeral tcp port resolved.
func (s *Socket) LastEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEndpoint
}

// Connect links to endpoint in the background. The link is retried
// with backoff until it succeeds, and re-established if it drops,
// until the socket is closed. The endpoint need not be bound yet.
func (s *Socket) Connect(endpoint string) error {
	parsed, err := ParseEndpoint(endpoint)
	if err != nil {
		return err
	}
	if s.isClosing() {
		return ErrClosed
	}
	s.wg.Add(1)
	go s.connectLoop(parsed)
	return nil
}

// Send transmits message atomically. On a router socket the first
// part names the destination peer and is not transmitted. A dealer
// socket with no connected peer waits for one until ctx is done.
func (s *Socket) Send(ctx context.Context, message Message) error {
	if s.isClosing() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	parts := message.Parts
	var target *peer
	if s.options.Role == Router {
		if len(parts) < 2 {
			return ErrEmptyMessage
		}
		s.mu.Lock()
		target = s.peers[string(parts[0])]
		s.mu.Unlock()
		if target == nil {
			return fmt.Errorf("%w: %q", ErrHostUnreachable, parts[0])
		}
		parts = parts[1:]
	} else {
		if len(parts) == 0 {
			return ErrEmptyMessage
		}
		var err error
		if target, err = s.nextPeer(ctx); err != nil {
			return err
		}
	}
	return target.send(parts)
}

// nextPeer picks the next connected peer round-robin, waiting for
// one to appear.
func (s *Socket) nextPeer(ctx context.Context) (*peer, error) {
	for {
		s.mu.Lock()
		if len(s.order) > 0 {
			s.next %= len(s.order)
			target := s.order[s.next]
			s.next++
			s.mu.Unlock()
			return target, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closing:
			return nil, ErrClosed
		}
	}
}

// Receive returns the next message. A timeout of zero or less waits
// until a message arrives or the socket is closed. Failures on a
// single peer connection are returned as *PeerError.
func (s *Socket) Receive(timeout time.Duration) (Message, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case item := <-s.inbound:
		return item.message, item.err
	case <-expired:
		return Message{}, ErrTimeout
	case <-s.closing:
		return Message{}, ErrClosed
	}
}

// Disconnect closes the connection to the peer with identity.
func (s *Socket) Disconnect(identity []byte) error {
	s.mu.Lock()
	target := s.peers[string(identity)]
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("%w: %q", ErrHostUnreachable, identity)
	}
	s.logger.Debug("disconnecting peer", "peer", string(identity))
	target.close()
	return nil
}

// Reset closes every current connection. Connected endpoints are
// dialed again with backoff; bound endpoints wait for peers to return.
func (s *Socket) Reset() {
	s.mu.Lock()
	peers := append([]*peer(nil), s.order...)
	s.mu.Unlock()
	for _, p := range peers {
		s.logger.Debug("resetting peer", "peer", string(p.identity))
		p.close()
	}
}

// SetLowLatency toggles TCP_NODELAY on every current and future TCP
// connection of this socket.
func (s *Socket) SetLowLatency(enabled bool) error {
	s.mu.Lock()
	s.lowLatency = enabled
	peers := append([]*peer(nil), s.order...)
	s.mu.Unlock()

	var errs []error
	for _, p := range peers {
		if err := setLowLatency(p.conn, enabled); err != nil && !isClosedError(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PeerCount returns the number of connected peers.
func (s *Socket) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Close stops accepting and connecting, waits up to the linger period
// for writes in progress, then closes every connection.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)

		s.mu.Lock()
		listeners := s.listeners
		s.listeners = nil
		peers := append([]*peer(nil), s.order...)
		for conn := range s.pending {
			conn.Close()
		}
		s.mu.Unlock()

		for _, listener := range listeners {
			listener.Close()
		}

		linger := time.NewTimer(s.options.Linger)
		for _, p := range peers {
			select {
			case <-p.idle():
			case <-linger.C:
			}
		}
		linger.Stop()
		for _, p := range peers {
			p.close()
		}
		s.wg.Wait()
	})
	return nil
}

func (s *Socket) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

func (s *Socket) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !s.isClosing() && !isClosedError(err) {
				s.logger.Error("accept failed", "error", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			p, err := s.attach(conn, false)
			if err != nil {
				s.logger.Warn("rejected incoming peer", "remote", conn.RemoteAddr().String(), "error", err)
				return
			}
			p.readLoop()
		}()
	}
}

func (s *Socket) connectLoop(endpoint Endpoint) {
	defer s.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	delays := newBackoff(s.options.ReconnectInterval, s.options.ReconnectMax)
	for {
		conn, err := dial(ctx, endpoint, s.options.KeepAlive)
		if err == nil {
			var p *peer
			if p, err = s.attach(conn, true); err == nil {
				delays.reset()
				s.logger.Debug("connected", "endpoint", endpoint.String())
				p.readLoop()
			}
		}
		if s.isClosing() {
			return
		}
		if err != nil {
			s.logger.Debug("connect attempt failed", "endpoint", endpoint.String(), "error", err)
		}

		delay := time.NewTimer(delays.next())
		select {
		case <-delay.C:
		case <-s.closing:
			delay.Stop()
			return
		}
	}
}

func (s *Socket) deliver(item inbound) {
	select {
	case s.inbound <- item:
	case <-s.closing:
	}
}

func (s *Socket) register(p *peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosing() {
		return ErrClosed
	}
	key := string(p.identity)
	if _, exists := s.peers[key]; exists {
		return fmt.Errorf("%w: identity %q already connected", ErrHandshake, p.identity)
	}
	s.peers[key] = p
	s.order = append(s.order, p)
	close(s.changed)
	s.changed = make(chan struct{})
	return nil
}

func (s *Socket) unregister(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(p.identity)
	if s.peers[key] == p {
		delete(s.peers, key)
	}
	for index, candidate := range s.order {
		if candidate == p {
			s.order = append(s.order[:index], s.order[index+1:]...)
			break
		}
	}
}
