// Package history implements the rolling display log and the near-duplicate
// guard used to keep the engine from visibly repeating itself.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/scrypster/perspective/internal/storage"
	"github.com/scrypster/perspective/pkg/types"
)

// Retention policy: entries older than MaxAge are dropped on every read;
// the list is capped to MaxEntries most-recent on every write.
const (
	MaxEntries = 50
	MaxAge     = 14 * 24 * time.Hour
)

// keyPrefix namespaces history logs inside the shared key-value store.
const keyPrefix = "history:"

// anonKey is the shared namespace when no user ID exists.
const anonKey = "anon"

// Log is the rolling history repository. Entries are ordered
// most-recent-first and never mutate after creation.
type Log struct {
	kv  storage.KVStore
	now func() time.Time
	mu  sync.Mutex
}

// NewLog creates a history log over the given store. The now function may be
// nil (defaults to time.Now); tests inject a fixed clock.
func NewLog(kv storage.KVStore, now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{kv: kv, now: now}
}

// Append records a newly displayed line, then prunes to the retention policy.
func (l *Log) Append(ctx context.Context, userID string, entry types.HistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.load(ctx, userID)
	entries = append([]types.HistoryEntry{entry}, entries...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	return l.persist(ctx, userID, entries)
}

// Recent returns the retained history window, most-recent-first, with
// age-expired entries dropped.
func (l *Log) Recent(ctx context.Context, userID string) []types.HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx, userID)
}

// load reads and age-prunes a user's history. Missing keys and store
// failures both yield an empty log.
func (l *Log) load(ctx context.Context, userID string) []types.HistoryEntry {
	data, err := l.kv.Get(ctx, keyPrefix+namespace(userID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("WARNING: history: read failed for user %q, treating as empty: %v", namespace(userID), err)
		}
		return nil
	}

	var entries []types.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("WARNING: history: corrupt log for user %q, resetting: %v", namespace(userID), err)
		return nil
	}

	cutoff := l.now().Add(-MaxAge)
	kept := entries[:0]
	for _, e := range entries {
		if e.ShownAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}

// persist writes a user's history back to the store.
func (l *Log) persist(ctx context.Context, userID string, entries []types.HistoryEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return l.kv.Set(ctx, keyPrefix+namespace(userID), data)
}

func namespace(userID string) string {
	if userID == "" {
		return anonKey
	}
	return userID
}
