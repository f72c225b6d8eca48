// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"math/rand/v2"
	"time"
)

// backoff produces randomized exponential reconnect delays between
// an initial interval and a ceiling.
type backoff struct {
	initial time.Duration
	maximum time.Duration
	current time.Duration
}

func newBackoff(initial, maximum time.Duration) *backoff {
	return &backoff{initial: initial, maximum: maximum}
}

// next returns the delay before the following attempt. Each delay is
// drawn from [current, 2*current) and the base doubles up to maximum.
func (b *backoff) next() time.Duration {
	if b.current == 0 {
		b.current = b.initial
	}
	delay := b.current + time.Duration(rand.Int64N(int64(b.current)))
	if delay > b.maximum {
		delay = b.maximum
	}
	b.current *= 2
	if b.current > b.maximum {
		b.current = b.maximum
	}
	return delay
}

func (b *backoff) reset() {
	b.current = 0
}
