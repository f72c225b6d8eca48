// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package credential

// Outcome is what a Condition did to one swept entry.
type Outcome int

const (
	// Skipped means the entry was already gone when the condition ran.
	Skipped Outcome = iota
	Promoted
	Renewed
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Promoted:
		return "promoted"
	case Renewed:
		return "renewed"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Condition is a sweep-time policy. Apply may only mutate the store.
type Condition interface {
	Apply(store *Store, key string) Outcome
}

// Promote moves a key from one tier to another once its access count
// reaches Threshold. The key leaves From on every sweep that visits
// it, promoted or not.
type Promote struct {
	From      Tier
	To        Tier
	Threshold int
}

func (p Promote) Apply(store *Store, key string) Outcome {
	value, ok := store.lookup(p.From, key)
	if !ok {
		return Skipped
	}
	outcome := Removed
	if value.accessCount >= p.Threshold {
		store.AddKey(p.To, key, value.uid)
		outcome = Promoted
	}
	store.RemoveKey(p.From, key)
	return outcome
}

// Reset renews a key used at least Threshold times since its last
// renewal and removes it otherwise.
type Reset struct {
	Tier      Tier
	Threshold int
}

func (r Reset) Apply(store *Store, key string) Outcome {
	value, ok := store.lookup(r.Tier, key)
	if !ok {
		return Skipped
	}
	if value.accessCount >= r.Threshold {
		if err := store.ResetKey(r.Tier, key); err != nil {
			// Removed concurrently between the lookup and the reset.
			return Skipped
		}
		return Renewed
	}
	store.RemoveKey(r.Tier, key)
	return Removed
}
