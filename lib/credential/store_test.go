// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sdms-foundation/sdms/lib/clock"
)

var epoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// Keys in these tests are shaped like real Z85 public keys.
const (
	keyA = "rq:rM>}U?@Lns47E1%kR.o@n%FcmmsL/@{H8]yf7"
	keyB = "Yne@$w-vo<fVvi]a<NY6T1ed:M$fCG*[IaLV{hID"
)

type fakeResolver struct {
	mu    sync.Mutex
	uids  map[string]string
	err   error
	calls int
}

func (r *fakeResolver) LookupUID(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", false, r.err
	}
	uid, ok := r.uids[key]
	return uid, ok, nil
}

func newTestStore(resolver UIDResolver) (*Store, *clock.FakeClock) {
	fake := clock.Fake(epoch)
	store := NewStore(StoreConfig{
		Clock: fake,
		Expiration: map[Tier]time.Duration{
			Transient: time.Minute,
			Session:   30 * time.Minute,
		},
		Resolver: resolver,
	})
	return store, fake
}

func TestTier_StringAndParse(t *testing.T) {
	for _, tier := range Tiers {
		parsed, err := ParseTier(tier.String())
		if err != nil {
			t.Fatalf("ParseTier(%q): %v", tier.String(), err)
		}
		if parsed != tier {
			t.Errorf("ParseTier(%q) = %v", tier.String(), parsed)
		}
	}
	if tier, err := ParseTier("session"); err != nil || tier != Session {
		t.Errorf("ParseTier(session) = %v, %v", tier, err)
	}
	if _, err := ParseTier("forever"); err == nil {
		t.Error("ParseTier(forever) should fail")
	}
	if got := Tier(9).String(); got != "Tier(9)" {
		t.Errorf("Tier(9).String() = %q", got)
	}
}

func TestStore_AddKeySetsExpiration(t *testing.T) {
	store, _ := newTestStore(nil)

	store.AddKey(Transient, keyA, "u/alice")
	store.AddKey(Session, keyB, "u/bob")

	expiration, ok := store.Expiration(Transient, keyA)
	if !ok || !expiration.Equal(epoch.Add(time.Minute)) {
		t.Errorf("transient expiration = %v, %v; want %v", expiration, ok, epoch.Add(time.Minute))
	}
	expiration, ok = store.Expiration(Session, keyB)
	if !ok || !expiration.Equal(epoch.Add(30*time.Minute)) {
		t.Errorf("session expiration = %v, %v; want %v", expiration, ok, epoch.Add(30*time.Minute))
	}

	store.AddKey(Persistent, keyA, "u/service")
	expiration, ok = store.Expiration(Persistent, keyA)
	if !ok || !expiration.IsZero() {
		t.Errorf("persistent expiration = %v, %v; want zero", expiration, ok)
	}
}

func TestStore_AddKeyOverwrites(t *testing.T) {
	store, _ := newTestStore(nil)

	store.AddKey(Transient, keyA, "u/alice")
	store.IncrementKeyAccessCounter(Transient, keyA)
	store.AddKey(Transient, keyA, "u/alice2")

	uid, err := store.GetUID(context.Background(), Transient, keyA)
	if err != nil || uid != "u/alice2" {
		t.Errorf("GetUID = %q, %v; want u/alice2", uid, err)
	}
	if count := store.AccessCount(Transient, keyA); count != 0 {
		t.Errorf("AccessCount after overwrite = %d, want 0", count)
	}
	if store.Len(Transient) != 1 {
		t.Errorf("Len = %d, want 1", store.Len(Transient))
	}
}

func TestStore_MissingKeyErrors(t *testing.T) {
	store, _ := newTestStore(nil)
	ctx := context.Background()

	_, err := store.GetUID(ctx, Session, keyA)
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("GetUID error = %v, want ErrMissingKey", err)
	}
	var missing *MissingKeyError
	if !errors.As(err, &missing) {
		t.Fatalf("GetUID error %T is not *MissingKeyError", err)
	}
	if missing.Tier != Session {
		t.Errorf("MissingKeyError.Tier = %v, want SESSION", missing.Tier)
	}
	if len(missing.Fingerprint) != 16 {
		t.Errorf("Fingerprint = %q, want 16 hex chars", missing.Fingerprint)
	}
	if message := err.Error(); strings.Contains(message, keyA) {
		t.Errorf("error message leaks the key: %q", message)
	}

	if err := store.ResetKey(Transient, keyA); !errors.Is(err, ErrMissingKey) {
		t.Errorf("ResetKey error = %v, want ErrMissingKey", err)
	}
}

func TestStore_AbsentKeyNoOps(t *testing.T) {
	store, _ := newTestStore(nil)

	store.IncrementKeyAccessCounter(Transient, keyA)
	store.RemoveKey(Session, keyA)

	if store.Len(Transient) != 0 || store.Len(Session) != 0 {
		t.Error("no-ops on absent keys should not create entries")
	}
	if count := store.AccessCount(Transient, keyA); count != 0 {
		t.Errorf("AccessCount of absent key = %d, want 0", count)
	}
	if store.HasKey(context.Background(), Transient, keyA) {
		t.Error("HasKey should be false for an absent key")
	}
}

func TestStore_ResetKey(t *testing.T) {
	store, fake := newTestStore(nil)

	store.AddKey(Session, keyA, "u/alice")
	store.IncrementKeyAccessCounter(Session, keyA)
	store.IncrementKeyAccessCounter(Session, keyA)
	if count := store.AccessCount(Session, keyA); count != 2 {
		t.Fatalf("AccessCount = %d, want 2", count)
	}

	fake.Advance(10 * time.Minute)
	if err := store.ResetKey(Session, keyA); err != nil {
		t.Fatalf("ResetKey: %v", err)
	}
	if count := store.AccessCount(Session, keyA); count != 0 {
		t.Errorf("AccessCount after reset = %d, want 0", count)
	}
	want := epoch.Add(40 * time.Minute)
	if expiration, _ := store.Expiration(Session, keyA); !expiration.Equal(want) {
		t.Errorf("expiration after reset = %v, want %v", expiration, want)
	}
}

func TestStore_ExpiredKeysComparison(t *testing.T) {
	store, fake := newTestStore(nil)

	store.AddKey(Transient, keyA, "u/alice") // expires epoch+1m
	fake.Advance(30 * time.Second)
	store.AddKey(Transient, keyB, "u/bob") // expires epoch+1m30s

	tests := []struct {
		name      string
		threshold time.Time
		want      []string
	}{
		{"before both", epoch, []string{keyA, keyB}},
		{"at first expiration", epoch.Add(time.Minute), []string{keyA, keyB}},
		{"between", epoch.Add(time.Minute + time.Second), []string{keyB}},
		{"after both", epoch.Add(2 * time.Minute), nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := store.ExpiredKeys(Transient, test.threshold)
			slices.Sort(got)
			want := slices.Clone(test.want)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("ExpiredKeys(%v) = %v, want %v", test.threshold, got, want)
			}
		})
	}
}

func TestStore_PersistentResolverFallback(t *testing.T) {
	resolver := &fakeResolver{uids: map[string]string{keyB: "u/remote"}}
	store, _ := newTestStore(resolver)
	ctx := context.Background()

	store.AddKey(Persistent, keyA, "u/service")

	uid, err := store.GetUID(ctx, Persistent, keyA)
	if err != nil || uid != "u/service" {
		t.Errorf("cached GetUID = %q, %v", uid, err)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times for a cached key", resolver.calls)
	}

	uid, err = store.GetUID(ctx, Persistent, keyB)
	if err != nil || uid != "u/remote" {
		t.Errorf("resolved GetUID = %q, %v", uid, err)
	}
	if !store.HasKey(ctx, Persistent, keyB) {
		t.Error("HasKey should consult the resolver")
	}
	if store.Len(Persistent) != 1 {
		t.Errorf("resolved keys should not be cached, Len = %d", store.Len(Persistent))
	}

	// Expiring tiers never consult the resolver.
	if store.HasKey(ctx, Session, keyB) {
		t.Error("SESSION HasKey should not use the resolver")
	}

	if _, err := store.GetUID(ctx, Persistent, "unknown-key"); !errors.Is(err, ErrMissingKey) {
		t.Errorf("unknown persistent key error = %v, want ErrMissingKey", err)
	}
}

func TestStore_PersistentResolverFailure(t *testing.T) {
	failure := errors.New("database unavailable")
	store, _ := newTestStore(&fakeResolver{err: failure})
	ctx := context.Background()

	if store.HasKey(ctx, Persistent, keyA) {
		t.Error("HasKey should be false when the resolver fails")
	}
	_, err := store.GetUID(ctx, Persistent, keyA)
	if !errors.Is(err, failure) {
		t.Errorf("GetUID error = %v, want wrapped resolver error", err)
	}
	if errors.Is(err, ErrMissingKey) {
		t.Error("resolver failure should not read as a missing key")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store, _ := newTestStore(nil)
	store.AddKey(Session, keyA, "u/alice")

	var group sync.WaitGroup
	for range 8 {
		group.Add(1)
		go func() {
			defer group.Done()
			for range 100 {
				store.IncrementKeyAccessCounter(Session, keyA)
				store.AddKey(Transient, keyB, "u/bob")
				store.RemoveKey(Transient, keyB)
			}
		}()
	}
	group.Wait()

	if count := store.AccessCount(Session, keyA); count != 800 {
		t.Errorf("AccessCount = %d, want 800", count)
	}
}
