// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by every SDMS
// message body.
//
// Message bodies travel after the fixed 8-byte frame header (see
// lib/wire) and are opaque to the transport. This package fixes how
// they are produced: Core Deterministic Encoding (RFC 8949 §4.2), so
// the same message value always yields identical bytes, and a decoder
// that ignores unknown fields so older peers tolerate newer senders.
//
// Message structs carry `cbor` tags with small integer-free string
// keys:
//
//	type VersionReply struct {
//	    Release  string `cbor:"release"`
//	    APIMajor uint32 `cbor:"api_major"`
//	}
package codec
