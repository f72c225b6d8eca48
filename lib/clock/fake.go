// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves when Advance is called.
// It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	changed *sync.Cond
}

// waiter is a pending After, Sleep, or ticker registration.
type waiter struct {
	deadline time.Time
	channel  chan time.Time
	// interval is non-zero for tickers, which are rescheduled after
	// each fire instead of being dropped.
	interval time.Duration
	stopped  bool
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot waiter that fires once the clock has been
// advanced by at least d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&waiter{deadline: c.now.Add(d), channel: channel})
	return channel
}

// NewTicker registers a periodic waiter. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &waiter{
		deadline: c.now.Add(d),
		channel:  make(chan time.Time, 1),
		interval: d,
	}
	c.addLocked(w)

	return &Ticker{
		C: w.channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.stopped = true
		},
	}
}

// Sleep blocks until the clock is advanced past now+d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline is not after the new time, in deadline order. A ticker whose
// interval is crossed several times fires several times, but because
// sends never block, a full channel drops the extra ticks.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.collectDue(target)
		if len(due) == 0 {
			return
		}
		for _, w := range due {
			select {
			case w.channel <- target:
			default:
			}
		}
	}
}

// WaitForTimers blocks until at least n waiters are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of active waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) addLocked(w *waiter) {
	c.waiters = append(c.waiters, w)
	c.changed.Broadcast()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, w := range c.waiters {
		if !w.stopped {
			count++
		}
	}
	return count
}

// collectDue removes due waiters from the pending list, reschedules
// tickers, and returns the waiters to fire sorted by deadline.
func (c *FakeClock) collectDue(target time.Time) []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*waiter
	for _, w := range c.waiters {
		switch {
		case w.stopped:
		case !w.deadline.After(target):
			due = append(due, w)
		default:
			remaining = append(remaining, w)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, w := range due {
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	return due
}
