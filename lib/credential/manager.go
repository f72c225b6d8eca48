// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sdms-foundation/sdms/lib/clock"
	"github.com/sdms-foundation/sdms/lib/curve"
)

// Default sweep intervals for the expiring tiers.
const (
	DefaultTransientPurgeInterval = 30 * time.Second
	DefaultSessionPurgeInterval   = 15 * time.Minute
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Store *Store
	Clock clock.Clock

	// PurgeInterval is the minimum time between sweeps of a tier.
	// PERSISTENT is never swept.
	PurgeInterval map[Tier]time.Duration

	Logger *slog.Logger
}

// PurgeReport summarizes one sweep. A zero Swept with Ran false means
// the tier was empty or not yet due.
type PurgeReport struct {
	Tier     Tier
	Ran      bool
	Swept    int
	Promoted int
	Renewed  int
	Removed  int
}

// Manager drives the credential lifecycle over a Store: scheduled
// sweeps with per-tier conditions, and tier-ordered lookups.
type Manager struct {
	store  *Store
	clock  clock.Clock
	logger *slog.Logger

	interval [tierCount]time.Duration

	// sweepMu serializes sweeps so a condition never races another
	// sweep of the same entry. It is never held across a Store lock.
	sweepMu    sync.Mutex
	nextPurge  [tierCount]time.Time
	conditions [tierCount][]Condition
}

// NewManager returns a Manager whose first sweep of each tier is due
// one interval from now.
func NewManager(config ManagerConfig) *Manager {
	manager := &Manager{
		store:  config.Store,
		clock:  config.Clock,
		logger: config.Logger,
	}
	if manager.store == nil {
		manager.store = NewStore(StoreConfig{Clock: config.Clock, Logger: config.Logger})
	}
	if manager.clock == nil {
		manager.clock = manager.store.clock
	}
	if manager.logger == nil {
		manager.logger = slog.New(slog.DiscardHandler)
	}
	manager.interval[Transient] = DefaultTransientPurgeInterval
	manager.interval[Session] = DefaultSessionPurgeInterval
	for tier, interval := range config.PurgeInterval {
		if tier.valid() && tier != Persistent && interval > 0 {
			manager.interval[tier] = interval
		}
	}
	now := manager.clock.Now()
	for _, tier := range []Tier{Transient, Session} {
		manager.nextPurge[tier] = now.Add(manager.interval[tier])
	}
	return manager
}

// Store returns the underlying store.
func (m *Manager) Store() *Store { return m.store }

// AddCondition appends condition to the conditions applied when tier
// is swept. Conditions run in the order added.
func (m *Manager) AddCondition(tier Tier, condition Condition) {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()
	m.conditions[tier] = append(m.conditions[tier], condition)
}

// NextPurge returns when tier's next sweep becomes due.
func (m *Manager) NextPurge(tier Tier) time.Time {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()
	return m.nextPurge[tier]
}

// Purge sweeps tier if it is due and non-empty. Every key the store
// reports due at the current time passes through the tier's
// conditions in order, or is removed when the tier has none.
func (m *Manager) Purge(tier Tier) PurgeReport {
	report := PurgeReport{Tier: tier}
	if tier == Persistent || !tier.valid() {
		return report
	}

	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	if m.store.Len(tier) == 0 {
		return report
	}
	now := m.clock.Now()
	if now.Before(m.nextPurge[tier]) {
		return report
	}

	report.Ran = true
	keys := m.store.ExpiredKeys(tier, now)
	conditions := m.conditions[tier]
	for _, key := range keys {
		report.Swept++
		if len(conditions) == 0 {
			m.store.RemoveKey(tier, key)
			report.Removed++
			continue
		}
		for _, condition := range conditions {
			outcome := condition.Apply(m.store, key)
			switch outcome {
			case Promoted:
				report.Promoted++
			case Renewed:
				report.Renewed++
			case Removed:
				report.Removed++
			}
			if outcome != Skipped {
				m.logger.Debug("credential swept",
					"tier", tier.String(),
					"key", curve.Fingerprint([]byte(key)),
					"outcome", outcome.String(),
				)
			}
		}
	}
	m.nextPurge[tier] = now.Add(m.interval[tier])

	if report.Swept > 0 {
		m.logger.Info("credential tier purged",
			"tier", tier.String(),
			"swept", report.Swept,
			"promoted", report.Promoted,
			"renewed", report.Renewed,
			"removed", report.Removed,
		)
	}
	return report
}

// PurgeAll sweeps each expiring tier, TRANSIENT first.
func (m *Manager) PurgeAll() []PurgeReport {
	return []PurgeReport{m.Purge(Transient), m.Purge(Session)}
}

// Run calls PurgeAll every tick until ctx is cancelled. Sweeps still
// honor each tier's interval, so tick only bounds how late one runs.
func (m *Manager) Run(ctx context.Context, tick time.Duration) {
	ticker := m.clock.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PurgeAll()
		}
	}
}

// AddKey inserts key into tier.
func (m *Manager) AddKey(tier Tier, key, uid string) {
	m.store.AddKey(tier, key, uid)
}

// HasKey reports whether any tier holds key.
func (m *Manager) HasKey(ctx context.Context, key string) bool {
	_, _, ok := m.find(ctx, key)
	return ok
}

// GetUID returns the uid bound to key by the first tier that holds it.
func (m *Manager) GetUID(ctx context.Context, key string) (string, error) {
	var lastErr error
	for _, tier := range Tiers {
		uid, err := m.store.GetUID(ctx, tier, key)
		if err == nil {
			return uid, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// IncrementKeyAccessCounter counts a use of key in TRANSIENT, or in
// SESSION if TRANSIENT does not hold it. PERSISTENT keys carry no
// counter.
func (m *Manager) IncrementKeyAccessCounter(key string) {
	if _, ok := m.store.lookup(Transient, key); ok {
		m.store.IncrementKeyAccessCounter(Transient, key)
		return
	}
	m.store.IncrementKeyAccessCounter(Session, key)
}

// Authenticate looks key up in tier order and, on a hit in an
// expiring tier, counts the use.
func (m *Manager) Authenticate(ctx context.Context, key string) (uid string, tier Tier, ok bool) {
	uid, tier, ok = m.find(ctx, key)
	if ok && tier != Persistent {
		m.store.IncrementKeyAccessCounter(tier, key)
	}
	return uid, tier, ok
}

func (m *Manager) find(ctx context.Context, key string) (string, Tier, bool) {
	for _, tier := range []Tier{Transient, Session} {
		if value, ok := m.store.lookup(tier, key); ok {
			return value.uid, tier, true
		}
	}
	uid, err := m.store.GetUID(ctx, Persistent, key)
	if err != nil {
		if !errors.Is(err, ErrMissingKey) {
			m.logger.Warn("persistent key lookup failed", "error", err)
		}
		return "", Persistent, false
	}
	return uid, Persistent, true
}
