// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sdms-foundation/sdms/lib/proto"
	"github.com/sdms-foundation/sdms/lib/schema"
)

const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultRetries        = 3
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Communicator must be a dealer communicator.
	Communicator *Communicator

	// Timeout bounds the wait for a reply to each attempt.
	Timeout time.Duration

	// Retries is the number of times a timed-out request is resent.
	// Zero means DefaultRetries; negative means none.
	Retries int

	Logger *slog.Logger
}

// Client sends requests and waits for their replies. Requests are
// serialized: one is outstanding at a time.
type Client struct {
	comm    *Communicator
	timeout time.Duration
	retries int
	logger  *slog.Logger

	mu      sync.Mutex
	context uint16
}

// NewClient returns a Client over config.Communicator.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Communicator == nil {
		return nil, errors.New("transport: ClientConfig.Communicator is required")
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	retries := config.Retries
	switch {
	case retries == 0:
		retries = DefaultRetries
	case retries < 0:
		retries = 0
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{comm: config.Communicator, timeout: timeout, retries: retries, logger: logger}, nil
}

// Request sends request and returns the reply payload. A NackReply is
// returned as *NackError. Replies carrying another context (answers to
// earlier, abandoned attempts) are discarded.
func (c *Client) Request(ctx context.Context, request proto.Message) (proto.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error = ErrNoReply
	for attempt := 0; attempt <= c.retries; attempt++ {
		c.context++
		requestContext := c.context

		env := &Envelope{Payload: request}
		env.Frame.Context = requestContext
		if err := c.comm.Send(ctx, env); err != nil {
			return nil, err
		}

		reply, err := c.awaitReply(ctx, requestContext)
		if err == nil {
			return reply, nil
		}
		if !errors.Is(err, ErrNoReply) {
			return nil, err
		}
		lastErr = err
		c.logger.Debug("request timed out", "context", requestContext, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("%w (%d attempts)", lastErr, c.retries+1)
}

func (c *Client) awaitReply(ctx context.Context, requestContext uint16) (proto.Message, error) {
	deadline := time.Now().Add(c.timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if ctxDeadline, ok := ctx.Deadline(); ok && time.Until(ctxDeadline) < remaining {
			remaining = time.Until(ctxDeadline)
		}
		if remaining <= 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrNoReply
		}

		response := c.comm.Receive(remaining)
		switch {
		case response.TimeOut:
			continue
		case response.Error:
			if response.Envelope != nil {
				if err := c.comm.Disconnect(response.Envelope); err != nil {
					c.logger.Debug("disconnect failed", "error", err)
				}
			}
			return nil, response.Err
		}

		env := response.Envelope
		if env.Frame.Context != requestContext {
			c.logger.Debug("discarding stale reply", "context", env.Frame.Context, "want", requestContext)
			continue
		}
		if nack, ok := env.Payload.(*schema.NackReply); ok {
			return nil, &NackError{Code: nack.ErrCode, Message: nack.ErrMsg}
		}
		return env.Payload, nil
	}
}
