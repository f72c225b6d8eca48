// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the SDMS core message protocols.
//
// Two protocols are registered at startup by [NewRegistry]:
//
//   - anon (ID 1): messages any connected peer may send before it has
//     authenticated, plus the generic ACK and NACK replies.
//   - authz (ID 2): messages that require an authenticated public key,
//     including the repository authorization check issued by
//     data-transfer gateways.
//
// Message IDs are positions in the protocol's descriptor list. New
// messages are appended; existing entries are never reordered.
//
// Peers that fail a request receive a [NackReply] with a coarse
// [ErrorCode] and a short message. Server-side diagnostics stay in the
// server log.
package schema
