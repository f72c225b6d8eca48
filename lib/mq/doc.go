// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package mq provides message-queue sockets that exchange multi-part
// messages atomically over tcp://, ipc:// and inproc:// endpoints.
//
// Two roles exist. A [Router] socket is addressable: it accepts many
// peers, prefixes every received message with the sending peer's
// identity, and routes outgoing messages by consuming the first part
// as the destination identity. A [Dealer] socket is point-to-point:
// messages are sent to a connected peer and received unmodified.
//
// Every connection starts with the [Mechanism] handshake, which yields
// a [Channel] of whole frames, then an exchange of socket metadata
// (role and declared identity) as the first frame in each direction.
// After that each multi-part message travels as one frame:
//
//	frame = part+
//	part  = flags:u8 size:(u8 | u64) data
//
// with flag bit 0 (MORE) set on every part but the last and flag bit 1
// (LONG) selecting the 8-byte size. A connection that ends inside a
// frame surfaces as [ErrPartialMessage], distinct from [ErrTimeout].
//
// The [Null] mechanism sends a greeting naming itself and then carries
// each frame as size:u32 followed by the frame bytes. Encrypting
// mechanisms such as CURVE bring their own framing.
//
// Connected (dealer-side) links reconnect with randomized exponential
// backoff. TCP links use keepalive and an adjustable low-latency
// (TCP_NODELAY) mode; Close lingers briefly for writes in flight.
package mq
