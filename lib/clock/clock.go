// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the subset of the time package used by SDMS components.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0, like time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. The channel has capacity 1;
// ticks are dropped when the reader falls behind.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stop: ticker.Stop}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
