// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sdms-foundation/sdms/lib/clock"
	"github.com/sdms-foundation/sdms/lib/curve"
)

// Default expirations. Each is longer than the matching default purge
// interval in manager.go.
const (
	DefaultTransientExpiration = 60 * time.Second
	DefaultSessionExpiration   = 30 * time.Minute

	DefaultResolveTimeout = 5 * time.Second
)

// UIDResolver finds the user that owns a persistent key when the
// store has not cached it. found is false for unknown keys.
type UIDResolver interface {
	LookupUID(ctx context.Context, key string) (uid string, found bool, err error)
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Clock clock.Clock

	// Expiration is how far past "now" AddKey and ResetKey set a
	// TRANSIENT or SESSION entry's expiration time.
	Expiration map[Tier]time.Duration

	// Resolver backs the PERSISTENT tier. Nil means the tier holds
	// only what AddKey puts there.
	Resolver       UIDResolver
	ResolveTimeout time.Duration

	Logger *slog.Logger
}

type entry struct {
	uid         string
	expiration  time.Time
	accessCount int
}

type tierMap struct {
	mu      sync.Mutex
	entries map[string]entry
}

// Store is the three-tier key cache. It is safe for concurrent use.
type Store struct {
	clock          clock.Clock
	expiration     [tierCount]time.Duration
	resolver       UIDResolver
	resolveTimeout time.Duration
	logger         *slog.Logger

	tiers [tierCount]tierMap
}

// NewStore returns an empty Store.
func NewStore(config StoreConfig) *Store {
	store := &Store{
		clock:          config.Clock,
		resolver:       config.Resolver,
		resolveTimeout: config.ResolveTimeout,
		logger:         config.Logger,
	}
	if store.clock == nil {
		store.clock = clock.Real()
	}
	if store.resolveTimeout <= 0 {
		store.resolveTimeout = DefaultResolveTimeout
	}
	if store.logger == nil {
		store.logger = slog.New(slog.DiscardHandler)
	}
	store.expiration[Transient] = DefaultTransientExpiration
	store.expiration[Session] = DefaultSessionExpiration
	for tier, increment := range config.Expiration {
		if tier.valid() && increment > 0 {
			store.expiration[tier] = increment
		}
	}
	for index := range store.tiers {
		store.tiers[index].entries = make(map[string]entry)
	}
	return store
}

func (s *Store) tier(tier Tier) *tierMap {
	if !tier.valid() {
		panic(fmt.Sprintf("credential: invalid tier %d", int(tier)))
	}
	return &s.tiers[tier]
}

// AddKey inserts or overwrites key in tier. TRANSIENT and SESSION
// entries start with a zero access count and expire one tier
// increment from now.
func (s *Store) AddKey(tier Tier, key, uid string) {
	value := entry{uid: uid}
	if tier != Persistent {
		value.expiration = s.clock.Now().Add(s.expiration[tier])
	}
	tiers := s.tier(tier)
	tiers.mu.Lock()
	tiers.entries[key] = value
	tiers.mu.Unlock()
}

func (s *Store) lookup(tier Tier, key string) (entry, bool) {
	tiers := s.tier(tier)
	tiers.mu.Lock()
	defer tiers.mu.Unlock()
	value, ok := tiers.entries[key]
	return value, ok
}

// HasKey reports whether key is in tier. For PERSISTENT a key missing
// from the local cache is looked up through the resolver; resolver
// failures count as absent.
func (s *Store) HasKey(ctx context.Context, tier Tier, key string) bool {
	if _, ok := s.lookup(tier, key); ok {
		return true
	}
	if tier != Persistent {
		return false
	}
	_, found, err := s.resolve(ctx, key)
	if err != nil {
		s.logger.Warn("persistent key lookup failed", "key", curve.Fingerprint([]byte(key)), "error", err)
		return false
	}
	return found
}

// GetUID returns the uid bound to key in tier, with the same
// PERSISTENT fallback as HasKey.
func (s *Store) GetUID(ctx context.Context, tier Tier, key string) (string, error) {
	if value, ok := s.lookup(tier, key); ok {
		return value.uid, nil
	}
	if tier != Persistent {
		return "", missingKey(tier, key)
	}
	uid, found, err := s.resolve(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolving persistent key %s: %w", curve.Fingerprint([]byte(key)), err)
	}
	if !found {
		return "", missingKey(tier, key)
	}
	return uid, nil
}

func (s *Store) resolve(ctx context.Context, key string) (string, bool, error) {
	if s.resolver == nil {
		return "", false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
	defer cancel()
	return s.resolver.LookupUID(ctx, key)
}

// IncrementKeyAccessCounter adds one to key's access count. Absent
// keys are ignored.
func (s *Store) IncrementKeyAccessCounter(tier Tier, key string) {
	tiers := s.tier(tier)
	tiers.mu.Lock()
	defer tiers.mu.Unlock()
	if value, ok := tiers.entries[key]; ok {
		value.accessCount++
		tiers.entries[key] = value
	}
}

// ResetKey clears key's access count and extends its expiration by
// one tier increment from now.
func (s *Store) ResetKey(tier Tier, key string) error {
	expiration := s.clock.Now().Add(s.expiration[tier])
	tiers := s.tier(tier)
	tiers.mu.Lock()
	defer tiers.mu.Unlock()
	value, ok := tiers.entries[key]
	if !ok {
		return missingKey(tier, key)
	}
	value.accessCount = 0
	if tier != Persistent {
		value.expiration = expiration
	}
	tiers.entries[key] = value
	return nil
}

// RemoveKey deletes key from tier. Absent keys are ignored.
func (s *Store) RemoveKey(tier Tier, key string) {
	tiers := s.tier(tier)
	tiers.mu.Lock()
	delete(tiers.entries, key)
	tiers.mu.Unlock()
}

// ExpiredKeys returns the keys in tier due for a sweep at threshold:
// those whose expiration time is at or after threshold.
func (s *Store) ExpiredKeys(tier Tier, threshold time.Time) []string {
	tiers := s.tier(tier)
	tiers.mu.Lock()
	defer tiers.mu.Unlock()
	var keys []string
	for key, value := range tiers.entries {
		if !value.expiration.Before(threshold) {
			keys = append(keys, key)
		}
	}
	return keys
}

// AccessCount returns key's access count, or zero if absent.
func (s *Store) AccessCount(tier Tier, key string) int {
	value, _ := s.lookup(tier, key)
	return value.accessCount
}

// Expiration returns key's expiration time in tier.
func (s *Store) Expiration(tier Tier, key string) (time.Time, bool) {
	value, ok := s.lookup(tier, key)
	return value.expiration, ok
}

// Len returns the number of locally held entries in tier.
func (s *Store) Len(tier Tier) int {
	tiers := s.tier(tier)
	tiers.mu.Lock()
	defer tiers.mu.Unlock()
	return len(tiers.entries)
}
