// Package bandit implements engagement-weighted track selection: a per-track
// affinity score learned from dwell time, used to bias which pool entry is
// consumed, with continual light exploration so no track ever disappears.
package bandit

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/scrypster/perspective/internal/storage"
	"github.com/scrypster/perspective/pkg/types"
)

// Affinity bounds. The floor keeps every track explorable; the ceiling
// prevents runaway dominance by one track.
const (
	MinAffinity     = 0.1
	MaxAffinity     = 2.0
	DefaultAffinity = 1.0
)

// Engagement delta rules keyed on exit reason and displayed duration.
const (
	deltaRejected  = -0.3 // refreshed away within 3s
	deltaPassive   = 0.05 // left between 3s and 10s
	deltaSustained = 0.2  // left after 10s
	deltaReaction  = 0.4  // explicit emotional reaction, any duration

	shortDwellMs = 3_000
	longDwellMs  = 10_000
)

// anonKey is the shared personalization namespace when no user ID exists.
const anonKey = "anon"

// keyPrefix namespaces affinity tables inside the shared key-value store.
const keyPrefix = "affinity:"

// Rand is the seedable randomness source for the epsilon draw.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Bandit owns the per-user affinity tables and the epsilon-greedy selection
// policy.
type Bandit struct {
	kv      storage.KVStore
	epsilon float64
	rng     Rand
	mu      sync.Mutex
}

// New creates a bandit over the given store. epsilon is the exploration
// probability (0.15 in production).
func New(kv storage.KVStore, epsilon float64, rng Rand) *Bandit {
	return &Bandit{kv: kv, epsilon: epsilon, rng: rng}
}

// Affinities returns the current affinity table for a user. Missing tracks
// and missing tables default to 1.0.
func (b *Bandit) Affinities(ctx context.Context, userID string) map[types.Track]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(ctx, userID)
}

// Update applies one engagement report to the reporting user's table.
// The explicit-reaction rule takes precedence over the duration rules.
// Scores are clamped to [MinAffinity, MaxAffinity] after every update.
func (b *Bandit) Update(ctx context.Context, report types.EngagementReport) error {
	if !types.IsValidTrack(string(report.Track)) {
		log.Printf("WARNING: bandit: ignoring report for unknown track %q", report.Track)
		return nil
	}

	delta := engagementDelta(report)
	if delta == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	table := b.load(ctx, report.UserID)
	score := table[report.Track] + delta
	if score < MinAffinity {
		score = MinAffinity
	}
	if score > MaxAffinity {
		score = MaxAffinity
	}
	table[report.Track] = score

	return b.persist(ctx, report.UserID, table)
}

// PickIndex selects which pool item to consume. With probability epsilon it
// explores a uniformly random track present in the pool; otherwise it
// exploits the highest-affinity track present. A non-empty override track
// takes precedence over both branches when present in the pool. Within the
// chosen track the entry is picked uniformly at random.
//
// Returns -1 only for an empty item slice.
func (b *Bandit) PickIndex(ctx context.Context, userID string, items []types.PoolItem, override types.Track) int {
	if len(items) == 0 {
		return -1
	}

	byTrack := make(map[types.Track][]int)
	for i, item := range items {
		byTrack[item.Track] = append(byTrack[item.Track], i)
	}

	var chosen types.Track
	switch {
	case override != "" && len(byTrack[override]) > 0:
		chosen = override
	case len(byTrack) == 1 || b.rng.Float64() < b.epsilon:
		present := presentTracks(byTrack)
		chosen = present[b.rng.Intn(len(present))]
	default:
		b.mu.Lock()
		table := b.load(ctx, userID)
		b.mu.Unlock()

		best := MinAffinity - 1
		for _, track := range presentTracks(byTrack) {
			if table[track] > best {
				best = table[track]
				chosen = track
			}
		}
	}

	candidates := byTrack[chosen]
	return candidates[b.rng.Intn(len(candidates))]
}

// engagementDelta maps a report to an affinity delta.
func engagementDelta(report types.EngagementReport) float64 {
	if report.ExitReason == types.ExitReaction {
		return deltaReaction
	}

	switch {
	case report.DurationMs < shortDwellMs:
		if report.ExitReason == types.ExitRefresh {
			return deltaRejected
		}
		return 0 // a quick navigation away says nothing about the content
	case report.DurationMs <= longDwellMs:
		return deltaPassive
	default:
		return deltaSustained
	}
}

// load reads a user's affinity table, defaulting every track to 1.0 when the
// table is missing, unreadable, or incomplete.
func (b *Bandit) load(ctx context.Context, userID string) map[types.Track]float64 {
	table := make(map[types.Track]float64, len(types.AllTracks))
	for _, track := range types.AllTracks {
		table[track] = DefaultAffinity
	}

	data, err := b.kv.Get(ctx, keyPrefix+namespace(userID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("WARNING: bandit: read failed for user %q, using defaults: %v", namespace(userID), err)
		}
		return table
	}

	var stored map[types.Track]float64
	if err := json.Unmarshal(data, &stored); err != nil {
		log.Printf("WARNING: bandit: corrupt affinity table for user %q, using defaults: %v", namespace(userID), err)
		return table
	}

	for track, score := range stored {
		if !types.IsValidTrack(string(track)) {
			continue
		}
		if score < MinAffinity {
			score = MinAffinity
		}
		if score > MaxAffinity {
			score = MaxAffinity
		}
		table[track] = score
	}
	return table
}

// persist writes a user's affinity table back to the store.
func (b *Bandit) persist(ctx context.Context, userID string, table map[types.Track]float64) error {
	data, err := json.Marshal(table)
	if err != nil {
		return err
	}
	return b.kv.Set(ctx, keyPrefix+namespace(userID), data)
}

func namespace(userID string) string {
	if userID == "" {
		return anonKey
	}
	return userID
}

// presentTracks returns the tracks present in stable order so seeded draws
// are reproducible.
func presentTracks(byTrack map[types.Track][]int) []types.Track {
	tracks := make([]types.Track, 0, len(byTrack))
	for t := range byTrack {
		tracks = append(tracks, t)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i] < tracks[j] })
	return tracks
}
