// Package pool implements the keyed candidate pool: pre-generated lines
// partitioned by day + intent + topic signature, consumed destructively one
// at a time and topped up in batches.
package pool

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/perspective/internal/storage"
	"github.com/scrypster/perspective/pkg/types"
)

// keyPrefix namespaces pool entries inside the shared key-value store.
const keyPrefix = "pool:"

// Store is the candidate pool repository. All pool mutations run under one
// mutex so a take is atomic with respect to concurrent requests: two
// near-simultaneous takes against the same signature can never both select
// the same item.
type Store struct {
	kv storage.KVStore
	mu sync.Mutex
}

// NewStore creates a pool store over the given key-value backend.
func NewStore(kv storage.KVStore) *Store {
	return &Store{kv: kv}
}

// Signature derives the pool key for a calendar day, intent, and set of
// user-declared topics. Topics are sorted so declaration order does not split
// pools.
func Signature(day time.Time, intent types.Intent, topics []string) string {
	sorted := make([]string, len(topics))
	copy(sorted, topics)
	sort.Strings(sorted)

	raw := day.Format("2006-01-02") + "|" + string(intent) + "|" + strings.Join(sorted, ",")
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum[:8])
}

// Take removes and returns one item from the pool under sig. The pick
// function receives the current items and returns the index to consume;
// an out-of-range index falls back to the head. Returns (nil, 0, nil) when
// the pool is empty or missing — a pool miss is not an error.
//
// The second return value is the pool size remaining after consumption,
// which the orchestrator compares against the refill threshold.
func (s *Store) Take(ctx context.Context, sig string, pick func(items []types.PoolItem) int) (*types.PoolItem, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load(ctx, sig)
	if len(items) == 0 {
		return nil, 0, nil
	}

	idx := 0
	if pick != nil {
		if i := pick(items); i >= 0 && i < len(items) {
			idx = i
		}
	}

	item := items[idx]
	items = append(items[:idx], items[idx+1:]...)

	if err := s.persist(ctx, sig, items); err != nil {
		// The caller still gets the item; a stale pool risks one duplicate
		// later, which beats failing the request now.
		log.Printf("WARNING: pool: failed to persist consumption for %s: %v", sig, err)
	}

	return &item, len(items), nil
}

// Append adds freshly generated items to the pool under sig.
func (s *Store) Append(ctx context.Context, sig string, newItems []types.PoolItem) error {
	if len(newItems) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load(ctx, sig)
	items = append(items, newItems...)
	return s.persist(ctx, sig, items)
}

// Size returns the current number of items pooled under sig.
func (s *Store) Size(ctx context.Context, sig string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.load(ctx, sig))
}

// load reads the pool list for sig. Missing keys and store failures both
// yield an empty pool; failures are logged, never propagated (the engine
// treats the store as best-effort).
func (s *Store) load(ctx context.Context, sig string) []types.PoolItem {
	data, err := s.kv.Get(ctx, keyPrefix+sig)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("WARNING: pool: read failed for %s, treating as empty: %v", sig, err)
		}
		return nil
	}

	var items []types.PoolItem
	if err := json.Unmarshal(data, &items); err != nil {
		log.Printf("WARNING: pool: corrupt pool data for %s, resetting: %v", sig, err)
		return nil
	}
	return items
}

// persist writes the pool list for sig back to the store.
func (s *Store) persist(ctx context.Context, sig string, items []types.PoolItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("pool: failed to marshal items: %w", err)
	}
	return s.kv.Set(ctx, keyPrefix+sig, data)
}
