package security_test

import (
	"testing"
	"time"

	"github.com/scaroll/pgclosets-store-sub011/internal/security"
)

func TestStore_GetExpiredIsAbsent(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := security.NewStore[int]()
	store.Set("key", 7, now.Add(time.Minute))

	if value, ok := store.Get("key", now); !ok || value != 7 {
		t.Fatalf("expected live entry, got %d %v", value, ok)
	}
	if _, ok := store.Get("key", now.Add(time.Minute)); ok {
		t.Fatalf("entry at its reset instant must read as absent")
	}
	if _, ok := store.Get("missing", now); ok {
		t.Fatalf("missing key must read as absent")
	}
}

func TestStore_MutateSeesExpiredAsZero(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := security.NewStore[int]()
	store.Set("key", 41, now.Add(-time.Second))

	got := store.Mutate("key", now, func(value int, live bool) (int, time.Time) {
		if live {
			t.Fatalf("expired entry must not be live")
		}
		if value != 0 {
			t.Fatalf("expired entry must present the zero value, got %d", value)
		}
		return value + 1, now.Add(time.Minute)
	})
	if got != 1 {
		t.Fatalf("unexpected mutated value: %d", got)
	}
	if value, ok := store.Get("key", now); !ok || value != 1 {
		t.Fatalf("mutation not persisted: %d %v", value, ok)
	}
}

func TestStore_SweepRemovesOnlyExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := security.NewStore[string]()
	store.Set("stale", "a", now.Add(-time.Minute))
	store.Set("boundary", "b", now)
	store.Set("live", "c", now.Add(time.Minute))

	if removed := store.Sweep(now); removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", store.Len())
	}
	if _, ok := store.Get("live", now); !ok {
		t.Fatalf("live entry must survive the sweep")
	}
}

func TestStore_RangeSkipsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := security.NewStore[int]()
	store.Set("stale", 1, now.Add(-time.Minute))
	store.Set("live", 2, now.Add(time.Minute))

	seen := map[string]int{}
	store.Range(now, func(key string, value int) bool {
		seen[key] = value
		return true
	})
	if len(seen) != 1 || seen["live"] != 2 {
		t.Fatalf("unexpected range contents: %#v", seen)
	}
}
