// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"errors"
	"fmt"
)

var (
	ErrClosed              = errors.New("mq: socket closed")
	ErrTimeout             = errors.New("mq: receive timed out")
	ErrHostUnreachable     = errors.New("mq: no peer with that identity")
	ErrUnsupportedEndpoint = errors.New("mq: unsupported endpoint")
	ErrAddressInUse        = errors.New("mq: address in use")
	ErrConnectionRefused   = errors.New("mq: connection refused")
	ErrPartialMessage      = errors.New("mq: connection ended inside a message")
	ErrMalformed           = errors.New("mq: malformed record")
	ErrHandshake           = errors.New("mq: handshake failed")
	ErrEmptyMessage        = errors.New("mq: message has no parts")
	ErrRecordTooLarge      = errors.New("mq: record exceeds size limit")
)

// PeerError reports a failure on one peer connection. The connection
// has been closed by the time Receive returns it.
type PeerError struct {
	Identity []byte
	Err      error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer %q: %v", e.Identity, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }
