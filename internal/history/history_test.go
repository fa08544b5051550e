package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/scrypster/perspective/internal/storage"
	"github.com/scrypster/perspective/pkg/types"
)

func TestAppendOrdersMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	l := NewLog(storage.NewMemoryStore(), func() time.Time { return now })

	for i := 0; i < 3; i++ {
		entry := types.HistoryEntry{
			Text:    fmt.Sprintf("line-%d", i),
			ShownAt: now.Add(time.Duration(i) * time.Minute),
		}
		if err := l.Append(ctx, "u1", entry); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}

	entries := l.Recent(ctx, "u1")
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Text != "line-2" || entries[2].Text != "line-0" {
		t.Errorf("entries out of order: %s .. %s", entries[0].Text, entries[2].Text)
	}
}

func TestAppendCapsEntryCount(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	l := NewLog(storage.NewMemoryStore(), func() time.Time { return now })

	for i := 0; i < MaxEntries+10; i++ {
		entry := types.HistoryEntry{Text: fmt.Sprintf("line-%d", i), ShownAt: now}
		_ = l.Append(ctx, "u1", entry)
	}

	entries := l.Recent(ctx, "u1")
	if len(entries) != MaxEntries {
		t.Fatalf("got %d entries, want cap of %d", len(entries), MaxEntries)
	}
	// The newest entry survives, the oldest were dropped.
	if entries[0].Text != fmt.Sprintf("line-%d", MaxEntries+9) {
		t.Errorf("newest entry = %s", entries[0].Text)
	}
}

func TestRecentPrunesExpiredEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	l := NewLog(storage.NewMemoryStore(), func() time.Time { return now })

	_ = l.Append(ctx, "u1", types.HistoryEntry{Text: "stale", ShownAt: now.Add(-MaxAge - time.Hour)})
	_ = l.Append(ctx, "u1", types.HistoryEntry{Text: "fresh", ShownAt: now.Add(-time.Hour)})

	entries := l.Recent(ctx, "u1")
	if len(entries) != 1 || entries[0].Text != "fresh" {
		t.Errorf("got %v, want only the fresh entry", entries)
	}
}

func TestHistoryIsNamespacedPerUser(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	l := NewLog(storage.NewMemoryStore(), func() time.Time { return now })

	_ = l.Append(ctx, "u1", types.HistoryEntry{Text: "mine", ShownAt: now})

	if got := l.Recent(ctx, "u2"); len(got) != 0 {
		t.Errorf("other user sees %d entries", len(got))
	}
	if got := l.Recent(ctx, ""); len(got) != 0 {
		t.Errorf("anonymous sees %d entries", len(got))
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "small steps forward", "small steps forward", 1.0},
		{"disjoint", "one two three", "four five six", 0.0},
		{"both_empty", "", "", 1.0},
		{"markup_and_case_ignored", "<b>Small</b> Steps", "small   steps", 1.0},
		{"half_overlap", "one two", "two three", 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Jaccard(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTooSimilar(t *testing.T) {
	recent := []types.HistoryEntry{
		{Text: "Small steps still move you forward."},
		{Text: "The afternoon is yours to shape."},
	}

	if !TooSimilar("Small steps still move you forward!", recent) {
		t.Error("near-identical candidate passed the guard")
	}
	if TooSimilar("A completely different thought about rain.", recent) {
		t.Error("distinct candidate was rejected")
	}
	if TooSimilar("anything", nil) {
		t.Error("empty history rejected a candidate")
	}
}
