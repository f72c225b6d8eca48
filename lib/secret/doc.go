// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps private key material out of the Go heap.
//
// A [Buffer] is an anonymous mmap region that is mlock'ed (never
// swapped) and marked MADV_DONTDUMP (absent from core dumps). Close
// zeroes, unlocks, and unmaps it; any later access panics. The CURVE
// secret keys held by lib/curve and the age identities read by
// lib/sealed live in Buffers for their whole lifetime.
package secret
