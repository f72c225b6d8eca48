// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal end of a
// connection: EOF, a locally closed socket or pipe, a broken pipe, or
// a reset from the peer. Message sockets see all of these when a peer
// goes away between messages, and none of them deserve a warning.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
