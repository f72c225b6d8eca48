// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries SDMS envelopes over lib/mq sockets.
//
// An [Envelope] is one request or reply: the 8-byte frame header, the
// route of hop identities it travelled, the caller's key and declared
// id, and the decoded payload. On the wire it is one multi-part
// message:
//
//	[route]* [delimiter] [header:8] [body]? [key] [id]
//
// Route frames are non-empty (at most 255 bytes) and oldest hop first.
// The body part is omitted when the header announces no body. The
// empty delimiter is written only by dealers, and a router requires it
// to find the end of the route. A router's socket consumes the first
// route frame on send, so a dealer receives the header first and
// rejects anything else.
//
// A [Communicator] owns one socket and exchanges whole envelopes;
// [Communicator.Receive] reports data, timeout and failure in a single
// [Response]. Envelopes that break the framing rules or carry an
// undecodable body are protocol errors, and the connection they came
// on is torn down. When the framing was intact Receive returns the
// envelope so the caller can reply before [Communicator.Disconnect];
// otherwise Receive drops the peer itself. A dealer redials after the
// teardown.
//
// A [Client] issues requests on a dealer communicator, matching
// replies by frame context and retrying on timeout.
package transport
