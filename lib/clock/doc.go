// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that reasons about expirations or periodic work (credential
// tiers, purge sweeps, the maintenance loop) takes a [Clock] instead of
// calling the time package directly. Production wiring passes [Real];
// tests pass [Fake] and move time forward explicitly with
// [FakeClock.Advance]:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store := credential.NewStore(credential.StoreConfig{Clock: c})
//	c.Advance(2 * time.Second)
//
// Goroutines that block on a fake ticker or timer register a waiter.
// [FakeClock.WaitForTimers] blocks until a given number of waiters
// exist, which removes the race between a goroutine starting and the
// test advancing time.
package clock
