// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sdms-foundation/sdms/lib/curve"
)

// Tier is a credential's lifecycle class.
type Tier int

const (
	Transient Tier = iota
	Session
	Persistent

	tierCount = 3
)

// Tiers lists every tier in lookup order.
var Tiers = []Tier{Transient, Session, Persistent}

func (t Tier) String() string {
	switch t {
	case Transient:
		return "TRANSIENT"
	case Session:
		return "SESSION"
	case Persistent:
		return "PERSISTENT"
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

func (t Tier) valid() bool { return t >= Transient && t <= Persistent }

// ParseTier accepts a tier name in any case.
func ParseTier(name string) (Tier, error) {
	for _, tier := range Tiers {
		if strings.EqualFold(name, tier.String()) {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("credential: unknown tier %q", name)
}

// ErrMissingKey is matched by every *MissingKeyError.
var ErrMissingKey = errors.New("credential: missing key")

// MissingKeyError reports an operation on a key absent from a tier.
// It carries only the key's fingerprint.
type MissingKeyError struct {
	Tier        Tier
	Fingerprint string
}

func missingKey(tier Tier, key string) *MissingKeyError {
	return &MissingKeyError{Tier: tier, Fingerprint: curve.Fingerprint([]byte(key))}
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("credential: key %s not in %s tier", e.Fingerprint, e.Tier)
}

func (e *MissingKeyError) Is(target error) bool { return target == ErrMissingKey }
