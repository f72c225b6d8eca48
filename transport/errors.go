// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"

	"github.com/sdms-foundation/sdms/lib/mq"
	"github.com/sdms-foundation/sdms/lib/schema"
	"github.com/sdms-foundation/sdms/lib/wire"
)

var (
	ErrRouteTooLong   = errors.New("transport: route too long")
	ErrRouteFrameSize = errors.New("transport: route frame must be 1 to 255 bytes")
	ErrMissingRoute   = errors.New("transport: envelope has no route")
	ErrMissingPart    = errors.New("transport: message ends before key and id parts")
	ErrTrailingParts  = errors.New("transport: unexpected parts after id")
	ErrNoReply        = errors.New("transport: no reply after retries")

	// Shared with the lower layers so errors.Is matches either name.
	ErrHeaderSize     = wire.ErrHeaderSize
	ErrBodyLength     = wire.ErrBodyLength
	ErrPartialMessage = mq.ErrPartialMessage
)

// ProtocolError marks a message that broke the protocol, by its
// framing or by a body that cannot be decoded. The connection it
// arrived on cannot be trusted to stay in sync and is closed.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Err.Error() }

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolError(format string, args ...any) error {
	return &ProtocolError{Err: fmt.Errorf(format, args...)}
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

// NackError is a request rejected by the server with a NackReply.
type NackError struct {
	Code    schema.ErrorCode
	Message string
}

func (e *NackError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request rejected: %s", e.Code)
	}
	return fmt.Sprintf("request rejected: %s: %s", e.Code, e.Message)
}
