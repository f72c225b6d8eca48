// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the fixed 8-byte frame header that precedes
// every SDMS message body.
//
//	┌───────────────────┬──────────┬──────────┬──────────────┐
//	│       Size        │ Proto ID │  Msg ID  │   Context    │
//	│     (32 bits)     │ (8 bits) │ (8 bits) │  (16 bits)   │
//	└───────────────────┴──────────┴──────────┴──────────────┘
//
// Size counts the header and the body together, so it is never less
// than [HeaderSize]. Size and Context are big-endian (network order).
// Proto ID and Msg ID select the concrete message type through the
// protocol registry (lib/proto). Context correlates a reply with its
// request: a reply always carries its request's Context.
//
// Headers are written and read field by field at fixed offsets. No Go
// struct is ever overlaid on wire bytes.
package wire
