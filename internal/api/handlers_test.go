package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/perspective/internal/config"
	"github.com/scrypster/perspective/internal/engine"
	"github.com/scrypster/perspective/internal/llm"
	"github.com/scrypster/perspective/internal/pool"
	"github.com/scrypster/perspective/internal/router"
	"github.com/scrypster/perspective/internal/storage"
	"github.com/scrypster/perspective/pkg/types"
)

// exploitRand never draws the exploration branch, so track selection is the
// deterministic highest-affinity pick.
type exploitRand struct{}

func (exploitRand) Float64() float64 { return 0.9 }
func (exploitRand) Intn(n int) int   { return 0 }

// stubGenerator streams a fixed batch.
type stubGenerator struct {
	items []types.PoolItem
}

func (g *stubGenerator) GenerateBatch(ctx context.Context, req llm.BatchRequest) (<-chan types.PoolItem, error) {
	ch := make(chan types.PoolItem, len(g.items))
	for _, item := range g.items {
		ch <- item
	}
	close(ch)
	return ch, nil
}

func (g *stubGenerator) GetModel() string { return "stub-model" }

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			RefillThreshold: 5,
			NumWorkers:      1,
			QueueSize:       8,
			Epsilon:         0.15,
			MaxRetries:      3,
			ShutdownTimeout: time.Second,
		},
		LLM: config.LLMConfig{
			BatchSize:        10,
			FirstItemTimeout: time.Second,
			BatchTimeout:     time.Second,
		},
		Security: config.SecurityConfig{SecurityMode: "development"},
	}
}

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	gen := &stubGenerator{items: []types.PoolItem{
		{Text: "a generated line for the tab", Style: types.StyleObservation, Track: types.TrackCalm},
		{Text: "a spare line for the pool", Style: types.StyleAction, Track: types.TrackEnergy},
	}}
	cfg := testConfig()
	eng := engine.New(cfg, storage.NewMemoryStore(), gen, router.DefaultWeights(),
		rand.New(rand.NewSource(1)), nil)
	return NewHandlers(eng, cfg, gen.GetModel())
}

func TestGeneratePerspective(t *testing.T) {
	h := newTestHandlers(t)

	body := `{"local_time":"10:00","weekday":2,"language":"en","user_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/perspective", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.GeneratePerspective(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var snippet types.Snippet
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snippet))
	assert.NotEmpty(t, snippet.Text)
	assert.NotEmpty(t, snippet.Plan.RequestID)
	assert.Equal(t, types.IntentFocus, snippet.Plan.Intent)
	assert.True(t, types.IsValidTrack(string(snippet.Track)))
}

func TestGeneratePerspectiveDefaultsLanguage(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/api/perspective", strings.NewReader(`{"local_time":"10:00"}`))
	rec := httptest.NewRecorder()
	h.GeneratePerspective(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snippet types.Snippet
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snippet))
	assert.Equal(t, "en", snippet.Plan.Language)
	assert.Equal(t, 120, snippet.Plan.MaxChars)
}

// newDipHandlers builds handlers over a weekday-afternoon clock with a pool
// of mostly-calm items, so the energy pattern override is observable on the
// served track.
func newDipHandlers(t *testing.T) *Handlers {
	t.Helper()
	now := func() time.Time { return time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC) }
	kv := storage.NewMemoryStore()
	cfg := testConfig()
	eng := engine.New(cfg, kv, &stubGenerator{}, router.DefaultWeights(), exploitRand{}, now)

	items := make([]types.PoolItem, 0, 6)
	for i := 0; i < 5; i++ {
		items = append(items, types.PoolItem{
			Text:  fmt.Sprintf("a quiet afternoon line %d", i),
			Style: types.StyleObservation,
			Track: types.TrackCalm,
		})
	}
	items = append(items, types.PoolItem{
		Text:  "a brisk afternoon line",
		Style: types.StyleAction,
		Track: types.TrackEnergy,
	})
	sig := pool.Signature(now(), types.IntentFocus, nil)
	require.NoError(t, pool.NewStore(kv).Append(context.Background(), sig, items))

	return NewHandlers(eng, cfg, "stub-model")
}

func TestGeneratePerspectiveOmittedBaselineKeepsBanditPick(t *testing.T) {
	h := newDipHandlers(t)

	// No emotional_baseline in the body: absence must not read as a detected
	// low baseline, so the afternoon window leaves the pick to affinities.
	body := `{"local_time":"15:00","weekday":2,"language":"en"}`
	req := httptest.NewRequest(http.MethodPost, "/api/perspective", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.GeneratePerspective(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snippet types.Snippet
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snippet))
	assert.Equal(t, types.TrackCalm, snippet.Track)
}

func TestGeneratePerspectiveLowBaselineForcesEnergy(t *testing.T) {
	h := newDipHandlers(t)

	body := `{"local_time":"15:00","weekday":2,"language":"en","emotional_baseline":0.2}`
	req := httptest.NewRequest(http.MethodPost, "/api/perspective", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.GeneratePerspective(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snippet types.Snippet
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snippet))
	assert.Equal(t, types.TrackEnergy, snippet.Track)
}

func TestGeneratePerspectiveBadBody(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/api/perspective", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.GeneratePerspective(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "invalid request body", errResp.Error)
}

func TestReportEngagement(t *testing.T) {
	h := newTestHandlers(t)

	body := `{"track":"humor","duration_ms":15000,"exit_reason":"navigate","user_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/engagement", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ReportEngagement(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	// The report moved the user's humor affinity.
	affReq := httptest.NewRequest(http.MethodGet, "/api/affinity?user_id=u1", nil)
	affRec := httptest.NewRecorder()
	h.GetAffinity(affRec, affReq)
	require.Equal(t, http.StatusOK, affRec.Code)

	var resp struct {
		UserID     string                     `json:"user_id"`
		Affinities map[types.Track]float64    `json:"affinities"`
	}
	require.NoError(t, json.NewDecoder(affRec.Body).Decode(&resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.InDelta(t, 1.2, resp.Affinities[types.TrackHumor], 1e-9)
}

func TestReportEngagementRejectsNegativeDuration(t *testing.T) {
	h := newTestHandlers(t)

	body := `{"track":"humor","duration_ms":-5,"exit_reason":"navigate"}`
	req := httptest.NewRequest(http.MethodPost, "/api/engagement", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ReportEngagement(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAffinityDefaults(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/affinity", nil)
	rec := httptest.NewRecorder()
	h.GetAffinity(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Affinities map[types.Track]float64 `json:"affinities"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Affinities, len(types.AllTracks))
	for track, score := range resp.Affinities {
		assert.Equalf(t, 1.0, score, "track %s", track)
	}
}

func TestGetHistoryAfterGenerate(t *testing.T) {
	h := newTestHandlers(t)

	genReq := httptest.NewRequest(http.MethodPost, "/api/perspective",
		strings.NewReader(`{"local_time":"10:00","language":"en","user_id":"u1"}`))
	genRec := httptest.NewRecorder()
	h.GeneratePerspective(genRec, genReq)
	require.Equal(t, http.StatusOK, genRec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/history?user_id=u1", nil)
	rec := httptest.NewRecorder()
	h.GetHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Entries []types.HistoryEntry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Entries, 1)
	assert.NotEmpty(t, resp.Entries[0].Text)
	assert.NotEmpty(t, resp.Entries[0].RequestID)
}

func TestGetHistoryEmpty(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	h.GetHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entries":[]`)
}

func TestGetHealth(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.GetHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "stub-model", resp["model"])
}
