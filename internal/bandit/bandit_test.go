package bandit

import (
	"context"
	"testing"

	"github.com/scrypster/perspective/internal/storage"
	"github.com/scrypster/perspective/pkg/types"
)

// fakeRand returns fixed values so tests can force the explore or exploit
// branch.
type fakeRand struct {
	float float64
	ints  []int
	ii    int
}

func (f *fakeRand) Float64() float64 { return f.float }

func (f *fakeRand) Intn(n int) int {
	if len(f.ints) == 0 {
		return 0
	}
	i := f.ii
	if i >= len(f.ints) {
		i = len(f.ints) - 1
	}
	f.ii++
	return f.ints[i] % n
}

func TestEngagementDeltas(t *testing.T) {
	tests := []struct {
		name   string
		report types.EngagementReport
		want   float64
	}{
		{"quick_refresh_rejects", types.EngagementReport{ExitReason: types.ExitRefresh, DurationMs: 1500}, -0.3},
		{"quick_navigate_neutral", types.EngagementReport{ExitReason: types.ExitNavigate, DurationMs: 1500}, 0},
		{"passive_read", types.EngagementReport{ExitReason: types.ExitNavigate, DurationMs: 5000}, 0.05},
		{"sustained_read", types.EngagementReport{ExitReason: types.ExitNavigate, DurationMs: 15000}, 0.2},
		{"slow_refresh_counts_as_read", types.EngagementReport{ExitReason: types.ExitRefresh, DurationMs: 15000}, 0.2},
		{"reaction_any_duration", types.EngagementReport{ExitReason: types.ExitReaction, DurationMs: 500}, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engagementDelta(tt.report); got != tt.want {
				t.Errorf("engagementDelta = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdateAppliesAndClampsAffinity(t *testing.T) {
	ctx := context.Background()
	b := New(storage.NewMemoryStore(), 0.15, &fakeRand{})

	report := types.EngagementReport{Track: types.TrackHumor, ExitReason: types.ExitReaction, UserID: "u1"}
	if err := b.Update(ctx, report); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if got := b.Affinities(ctx, "u1")[types.TrackHumor]; got != 1.4 {
		t.Errorf("humor affinity = %v, want 1.4", got)
	}

	// Repeated reactions must saturate at the ceiling.
	for i := 0; i < 10; i++ {
		_ = b.Update(ctx, report)
	}
	if got := b.Affinities(ctx, "u1")[types.TrackHumor]; got != MaxAffinity {
		t.Errorf("humor affinity = %v, want ceiling %v", got, MaxAffinity)
	}

	// Repeated rejections must saturate at the floor.
	reject := types.EngagementReport{Track: types.TrackCalm, ExitReason: types.ExitRefresh, DurationMs: 500, UserID: "u1"}
	for i := 0; i < 10; i++ {
		_ = b.Update(ctx, reject)
	}
	if got := b.Affinities(ctx, "u1")[types.TrackCalm]; got != MinAffinity {
		t.Errorf("calm affinity = %v, want floor %v", got, MinAffinity)
	}
}

func TestUpdateIgnoresUnknownTrack(t *testing.T) {
	ctx := context.Background()
	b := New(storage.NewMemoryStore(), 0.15, &fakeRand{})

	report := types.EngagementReport{Track: "disco", ExitReason: types.ExitReaction}
	if err := b.Update(ctx, report); err != nil {
		t.Fatalf("unknown track should be dropped silently, got %v", err)
	}
	for track, score := range b.Affinities(ctx, "") {
		if score != DefaultAffinity {
			t.Errorf("track %s moved to %v", track, score)
		}
	}
}

func TestUpdatesAreNamespacedPerUser(t *testing.T) {
	ctx := context.Background()
	b := New(storage.NewMemoryStore(), 0.15, &fakeRand{})

	_ = b.Update(ctx, types.EngagementReport{Track: types.TrackGrowth, ExitReason: types.ExitReaction, UserID: "u1"})

	if got := b.Affinities(ctx, "u2")[types.TrackGrowth]; got != DefaultAffinity {
		t.Errorf("other user's growth affinity = %v, want default", got)
	}
	if got := b.Affinities(ctx, "")[types.TrackGrowth]; got != DefaultAffinity {
		t.Errorf("anonymous growth affinity = %v, want default", got)
	}
}

func poolItems() []types.PoolItem {
	return []types.PoolItem{
		{Text: "a", Track: types.TrackCalm},
		{Text: "b", Track: types.TrackEnergy},
		{Text: "c", Track: types.TrackEnergy},
		{Text: "d", Track: types.TrackHumor},
	}
}

func TestPickIndexExploitsHighestAffinity(t *testing.T) {
	ctx := context.Background()
	b := New(storage.NewMemoryStore(), 0.15, &fakeRand{float: 0.99, ints: []int{0}})

	// Push energy above the default for this user.
	_ = b.Update(ctx, types.EngagementReport{Track: types.TrackEnergy, ExitReason: types.ExitReaction, UserID: "u1"})

	idx := b.PickIndex(ctx, "u1", poolItems(), "")
	if got := poolItems()[idx].Track; got != types.TrackEnergy {
		t.Errorf("exploit picked track %s, want energy", got)
	}
}

func TestPickIndexExploresOnEpsilonDraw(t *testing.T) {
	ctx := context.Background()
	// Draw below epsilon forces exploration; Intn(3)=2 selects the last of
	// the present tracks in sorted order (calm, energy, humor).
	b := New(storage.NewMemoryStore(), 0.15, &fakeRand{float: 0.01, ints: []int{2, 0}})

	idx := b.PickIndex(ctx, "u1", poolItems(), "")
	if got := poolItems()[idx].Track; got != types.TrackHumor {
		t.Errorf("explore picked track %s, want humor", got)
	}
}

func TestPickIndexHonorsOverride(t *testing.T) {
	ctx := context.Background()
	b := New(storage.NewMemoryStore(), 0.15, &fakeRand{float: 0.99, ints: []int{0}})

	// Even with calm at default and no learned preference, the override wins.
	idx := b.PickIndex(ctx, "", poolItems(), types.TrackCalm)
	if got := poolItems()[idx].Track; got != types.TrackCalm {
		t.Errorf("override picked track %s, want calm", got)
	}

	// An override absent from the pool falls through to the normal policy.
	idx = b.PickIndex(ctx, "", poolItems(), types.TrackReflection)
	if idx < 0 || idx >= len(poolItems()) {
		t.Errorf("absent override produced index %d", idx)
	}
}

func TestPickIndexEmptyPool(t *testing.T) {
	b := New(storage.NewMemoryStore(), 0.15, &fakeRand{})
	if idx := b.PickIndex(context.Background(), "", nil, ""); idx != -1 {
		t.Errorf("empty pool index = %d, want -1", idx)
	}
}

func TestLoadClampsStoredScores(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	_ = kv.Set(ctx, "affinity:anon", []byte(`{"humor": 9.5, "calm": -2, "disco": 1.3}`))

	b := New(kv, 0.15, &fakeRand{})
	table := b.Affinities(ctx, "")
	if table[types.TrackHumor] != MaxAffinity {
		t.Errorf("stored overshoot = %v, want clamped to %v", table[types.TrackHumor], MaxAffinity)
	}
	if table[types.TrackCalm] != MinAffinity {
		t.Errorf("stored undershoot = %v, want clamped to %v", table[types.TrackCalm], MinAffinity)
	}
	if _, ok := table["disco"]; ok {
		t.Error("unknown stored track leaked into the table")
	}
}
