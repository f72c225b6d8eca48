// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdms-foundation/sdms/lib/clock"
	"github.com/sdms-foundation/sdms/lib/credential"
	"github.com/sdms-foundation/sdms/lib/curve"
	"github.com/sdms-foundation/sdms/lib/dbclient"
	"github.com/sdms-foundation/sdms/lib/mq"
	"github.com/sdms-foundation/sdms/lib/proto"
	"github.com/sdms-foundation/sdms/lib/schema"
	"github.com/sdms-foundation/sdms/transport"
)

// Defaults for zero Config fields.
const (
	DefaultWorkers         = 4
	DefaultQueueSize       = 1000
	DefaultPollInterval    = 10 * time.Millisecond
	DefaultRequestTimeout  = 10 * time.Second
	DefaultMaintenanceTick = 5 * time.Second
)

// TokenVerifier resolves an access token to its owner.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (uid string, err error)
}

// RepoAuthorizer decides repository access checks. It returns nil to
// allow and an error matching dbclient.ErrDenied to refuse.
type RepoAuthorizer interface {
	AuthorizeRepo(ctx context.Context, access dbclient.RepoAccess) error
}

// AccessTokenSource issues access tokens for users.
type AccessTokenSource interface {
	AccessToken(ctx context.Context, uid string) (dbclient.AccessToken, error)
}

// Config configures a Server.
type Config struct {
	// Endpoint is where the ROUTER socket binds.
	Endpoint string

	// Registry holds every protocol the server speaks. Required.
	Registry *proto.Registry

	// Manager gates authenticated protocols. Required.
	Manager *credential.Manager

	// Security secures the socket; nil means none.
	Security mq.Mechanism

	Workers   int
	QueueSize int

	// PollInterval bounds how long the I/O goroutine waits for
	// inbound traffic before draining queued replies.
	PollInterval time.Duration

	// RequestTimeout bounds each handler call.
	RequestTimeout time.Duration

	// MaintenanceTick is how often the purge loop wakes.
	MaintenanceTick time.Duration

	// Collaborators. A nil collaborator makes the requests that need
	// it fail with a service error.
	Verifier   TokenVerifier
	Authorizer RepoAuthorizer
	Tokens     AccessTokenSource

	Clock  clock.Clock
	Logger *slog.Logger
}

// Request is one authenticated-or-anonymous message handed to a
// handler.
type Request struct {
	Envelope *transport.Envelope

	// Key is the sender's public key: the CURVE handshake key when
	// the socket is secured, otherwise the key the envelope declares.
	Key string

	// UID and Tier are set when the gate authenticated the key.
	UID  string
	Tier credential.Tier
}

// HandlerFunc answers one request. A *transport.NackError return
// becomes a NackReply with its code and message; any other error
// becomes a generic internal error.
type HandlerFunc func(ctx context.Context, request *Request) (proto.Message, error)

// Server is the core message server.
type Server struct {
	comm     *transport.Communicator
	registry *proto.Registry
	manager  *credential.Manager
	secured  bool

	verifier   TokenVerifier
	authorizer RepoAuthorizer
	tokens     AccessTokenSource

	handlers map[proto.MessageType]HandlerFunc

	workers         int
	queueSize       int
	pollInterval    time.Duration
	requestTimeout  time.Duration
	maintenanceTick time.Duration

	clock  clock.Clock
	logger *slog.Logger

	serving atomic.Bool
}

// New binds the server's socket. Call Serve to start handling
// traffic.
func New(config Config) (*Server, error) {
	if config.Registry == nil {
		return nil, errors.New("server: Config.Registry is required")
	}
	if config.Manager == nil {
		return nil, errors.New("server: Config.Manager is required")
	}

	s := &Server{
		registry:        config.Registry,
		manager:         config.Manager,
		secured:         config.Security != nil && config.Security.Name() != mq.Null().Name(),
		verifier:        config.Verifier,
		authorizer:      config.Authorizer,
		tokens:          config.Tokens,
		workers:         positive(config.Workers, DefaultWorkers),
		queueSize:       positive(config.QueueSize, DefaultQueueSize),
		pollInterval:    positiveDuration(config.PollInterval, DefaultPollInterval),
		requestTimeout:  positiveDuration(config.RequestTimeout, DefaultRequestTimeout),
		maintenanceTick: positiveDuration(config.MaintenanceTick, DefaultMaintenanceTick),
		clock:           config.Clock,
		logger:          config.Logger,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	handlers, err := s.handlerTable()
	if err != nil {
		return nil, err
	}
	s.handlers = handlers

	comm, err := transport.New(transport.Config{
		Endpoint:  config.Endpoint,
		Role:      mq.Router,
		Codec:     proto.NewCodec(config.Registry),
		Mechanism: config.Security,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	s.comm = comm
	return s, nil
}

func positive(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func positiveDuration(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

// Endpoint returns the bound endpoint with any ephemeral port
// resolved.
func (s *Server) Endpoint() string { return s.comm.Endpoint() }

// Serve handles traffic until ctx is cancelled, then stops the
// workers and the purge loop, closes the socket and returns. A Server
// serves once.
func (s *Server) Serve(ctx context.Context) error {
	if !s.serving.CompareAndSwap(false, true) {
		return errors.New("server: Serve called twice")
	}

	s.logger.Info("server started",
		"endpoint", s.Endpoint(),
		"secured", s.secured,
		"workers", s.workers,
	)

	inbound := make(chan *transport.Envelope, s.queueSize)
	outbound := make(chan *transport.Envelope, s.queueSize)

	maintenanceContext, stopMaintenance := context.WithCancel(context.Background())
	maintenanceDone := make(chan struct{})
	go func() {
		defer close(maintenanceDone)
		s.manager.Run(maintenanceContext, s.maintenanceTick)
	}()

	var workers sync.WaitGroup
	for range s.workers {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.work(ctx, inbound, outbound)
		}()
	}
	workersDone := make(chan struct{})

	s.receiveLoop(ctx, inbound, outbound)

	// Workers may still be replying; keep sending until they finish.
	close(inbound)
	go func() {
		workers.Wait()
		close(workersDone)
	}()
	for draining := true; draining; {
		select {
		case reply := <-outbound:
			s.send(reply)
		case <-workersDone:
			draining = false
		}
	}
	s.drain(outbound)

	stopMaintenance()
	<-maintenanceDone

	if err := s.comm.Close(); err != nil {
		return fmt.Errorf("server: closing socket: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// receiveLoop is the I/O goroutine's main loop.
func (s *Server) receiveLoop(ctx context.Context, inbound, outbound chan *transport.Envelope) {
	for ctx.Err() == nil {
		s.drain(outbound)

		response := s.comm.Receive(s.pollInterval)
		switch {
		case response.TimeOut:
			continue
		case response.Error:
			s.receiveFailed(response)
			continue
		}

		select {
		case inbound <- response.Envelope:
		default:
			s.logger.Warn("worker queue full, rejecting request", "message", s.registry.Name(response.Envelope.MessageType()))
			s.send(transport.Reply(response.Envelope, schema.Nack(schema.ErrorCodeServiceError, "server busy")))
		}
	}
}

// receiveFailed answers what can be answered. Connection-level
// failures have no envelope to reply to, and the communicator has
// already dropped peers whose framing broke. A request that was framed
// but cannot be decoded gets a NACK, then its peer is disconnected.
func (s *Server) receiveFailed(response transport.Response) {
	if errors.Is(response.Err, mq.ErrClosed) {
		return
	}
	if response.Envelope == nil {
		s.logger.Warn("receive failed", "error", response.Err)
		return
	}
	s.logger.Warn("rejecting undecodable request",
		"frame", response.Envelope.Frame.String(),
		"error", response.Err,
	)
	s.send(transport.Reply(response.Envelope, schema.Nack(schema.ErrorCodeBadRequest, "malformed request")))
	if err := s.comm.Disconnect(response.Envelope); err != nil {
		s.logger.Debug("disconnecting peer failed", "error", err)
	}
}

func (s *Server) drain(outbound chan *transport.Envelope) {
	for {
		select {
		case reply := <-outbound:
			s.send(reply)
		default:
			return
		}
	}
}

func (s *Server) send(reply *transport.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	if err := s.comm.Send(ctx, reply); err != nil {
		s.logger.Warn("sending reply failed", "error", err)
	}
}

func (s *Server) work(ctx context.Context, inbound <-chan *transport.Envelope, outbound chan<- *transport.Envelope) {
	for request := range inbound {
		outbound <- s.handle(ctx, request)
	}
}

// handle runs one envelope through the gate and its handler and
// returns the reply.
func (s *Server) handle(ctx context.Context, env *transport.Envelope) *transport.Envelope {
	messageType := env.MessageType()
	name := s.registry.Name(messageType)
	logger := s.logger.With("message", name, "context", env.Frame.Context)
	start := s.clock.Now()

	handler, ok := s.handlers[messageType]
	if !ok {
		logger.Warn("no handler for message")
		return transport.Reply(env, schema.Nack(schema.ErrorCodeBadRequest, "unsupported message"))
	}

	if validator, ok := env.Payload.(proto.Validator); ok {
		if err := validator.Validate(); err != nil {
			logger.Warn("rejecting invalid request", "error", err)
			return transport.Reply(env, schema.Nack(schema.ErrorCodeBadRequest, "invalid request"))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	request, nack := s.authenticate(ctx, env)
	if nack != nil {
		logger.Info("request not authenticated", "error", nack.Message)
		return transport.Reply(env, schema.Nack(nack.Code, nack.Message))
	}
	if request.Key != "" {
		logger = logger.With("key", curve.Fingerprint([]byte(request.Key)))
	}

	reply, err := handler(ctx, request)
	if err != nil {
		var handlerNack *transport.NackError
		if errors.As(err, &handlerNack) {
			logger.Info("request rejected", "code", handlerNack.Code.String(), "reason", handlerNack.Message)
			return transport.Reply(env, schema.Nack(handlerNack.Code, handlerNack.Message))
		}
		logger.Error("handler failed", "error", err)
		return transport.Reply(env, schema.Nack(schema.ErrorCodeInternalError, "internal error"))
	}
	logger.Debug("request handled", "uid", request.UID, "duration", s.clock.Now().Sub(start))
	return transport.Reply(env, reply)
}
