// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package proto maps SDMS message types to wire identifiers and
// converts messages to and from their framed byte form.
//
// A [Protocol] is an ordered list of message [Descriptor] values under a
// one-byte protocol ID. A message's ID is its zero-based index in that
// list, so (protocol ID, message ID), represented as [MessageType], names
// exactly one Go type. Protocols are registered once, at process start,
// into an explicit [Registry] value that is then handed to every
// component that encodes or decodes. There is no package-level registry.
//
// Registration is append-only. Readers never take a lock: every
// Register publishes a fresh immutable snapshot through an atomic
// pointer, and lookups read whichever snapshot is current.
//
// [Codec] writes the 8-byte header from lib/wire followed by the CBOR
// body from lib/codec. Decoding resolves the header's MessageType once
// and returns a freshly allocated instance of the concrete type, so
// handlers switch on MessageType (or a Go type switch) instead of
// probing candidate types.
package proto
