// Package engine is the orchestrator: it routes a request context to an
// intent and plan, serves from the candidate pool when possible, falls back
// to streaming fresh generation, and guarantees a static line when everything
// else fails. A displayed line is always produced; errors never surface to
// the new-tab page.
package engine

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/perspective/internal/bandit"
	"github.com/scrypster/perspective/internal/config"
	"github.com/scrypster/perspective/internal/history"
	"github.com/scrypster/perspective/internal/llm"
	"github.com/scrypster/perspective/internal/pool"
	"github.com/scrypster/perspective/internal/router"
	"github.com/scrypster/perspective/internal/storage"
	"github.com/scrypster/perspective/pkg/types"
)

// avoidListSize bounds how many recent lines are passed to the generation
// service as an avoid list.
const avoidListSize = 10

// Afternoon-dip window: weekday mid-afternoon with a low emotional baseline
// forces the energy track regardless of learned affinities.
const (
	dipStartHour         = 14
	dipEndHour           = 16
	lowBaselineThreshold = 0.4
)

// Engine coordinates routing, pooling, generation, personalization, and
// history for the perspective service.
type Engine struct {
	engineCfg config.EngineConfig
	llmCfg    config.LLMConfig

	pool       *pool.Store
	historyLog *history.Log
	bandit     *bandit.Bandit
	generator  llm.BatchGenerator
	selector   *router.Selector
	rng        router.Rand
	now        func() time.Time

	// notify, when set, receives every served snippet (live feed broadcast).
	notify func(types.Snippet)

	refillJobs chan refillJob
	wg         sync.WaitGroup

	mu           sync.Mutex
	started      bool
	shuttingDown bool
}

// New creates the engine over the given store and generator. rng and now may
// be nil (production randomness and clock); tests inject seeded and fixed
// ones.
func New(cfg *config.Config, kv storage.KVStore, generator llm.BatchGenerator, weights *router.WeightTable, rng router.Rand, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}

	return &Engine{
		engineCfg:  cfg.Engine,
		llmCfg:     cfg.LLM,
		pool:       pool.NewStore(kv),
		historyLog: history.NewLog(kv, now),
		bandit:     bandit.New(kv, cfg.Engine.Epsilon, rng),
		generator:  generator,
		selector:   router.NewSelector(weights, rng, now),
		rng:        rng,
		now:        now,
		refillJobs: make(chan refillJob, cfg.Engine.QueueSize),
	}
}

// SetNotify registers a callback invoked with every served snippet. Must be
// called before Start.
func (e *Engine) SetNotify(fn func(types.Snippet)) {
	e.notify = fn
}

// Start launches the background refill workers.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	for i := 0; i < e.engineCfg.NumWorkers; i++ {
		e.wg.Add(1)
		go e.refillWorker(i)
	}
	log.Printf("Engine started with %d refill workers", e.engineCfg.NumWorkers)
}

// Shutdown stops accepting refill jobs, drains the queue, and waits for
// in-flight work up to the configured timeout.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if !e.started || e.shuttingDown {
		e.mu.Unlock()
		return
	}
	e.shuttingDown = true
	e.mu.Unlock()

	close(e.refillJobs)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("Engine shut down cleanly")
	case <-time.After(e.engineCfg.ShutdownTimeout):
		log.Printf("WARNING: engine shutdown timed out after %v, abandoning in-flight work", e.engineCfg.ShutdownTimeout)
	}
}

// Generate produces the line for one new-tab request. It never returns an
// error: every failure path degrades to a static localized line.
func (e *Engine) Generate(ctx context.Context, rc types.RouterContext) types.Snippet {
	intent := router.ClassifyIntent(rc, e.rng)

	if len(rc.Recent) == 0 {
		rc.Recent = e.historyLog.Recent(ctx, rc.UserID)
	}

	plan := e.selector.MakePlan(intent, rc)
	plan.RequestID = uuid.New().String()

	sig := pool.Signature(e.now(), intent, rc.Topics)
	override := e.trackOverride(rc)

	// An explicit emotional signal bypasses the pool: pooled lines were
	// generated without it and would read tone-deaf.
	if rc.Emotion == "" {
		if snippet, ok := e.serveFromPool(ctx, sig, plan, rc, override); ok {
			return snippet
		}
	}

	return e.serveFresh(ctx, sig, plan, rc)
}

// ReportEngagement applies one fire-and-forget engagement report to the
// reporting user's track affinities.
func (e *Engine) ReportEngagement(ctx context.Context, report types.EngagementReport) error {
	return e.bandit.Update(ctx, report)
}

// Affinities returns a user's current track affinity table.
func (e *Engine) Affinities(ctx context.Context, userID string) map[types.Track]float64 {
	return e.bandit.Affinities(ctx, userID)
}

// History returns a user's retained display history, most-recent-first.
func (e *Engine) History(ctx context.Context, userID string) []types.HistoryEntry {
	return e.historyLog.Recent(ctx, userID)
}

// serveFromPool attempts the fast path: consume one bandit-selected item from
// the pool and trigger an async refill when the pool runs low.
func (e *Engine) serveFromPool(ctx context.Context, sig string, plan types.Plan, rc types.RouterContext, override types.Track) (types.Snippet, bool) {
	item, remaining, err := e.pool.Take(ctx, sig, func(items []types.PoolItem) int {
		return e.bandit.PickIndex(ctx, rc.UserID, items, override)
	})
	if err != nil || item == nil {
		return types.Snippet{}, false
	}

	if remaining < e.engineCfg.RefillThreshold {
		e.enqueueRefill(refillJob{sig: sig, plan: plan, rc: rc})
	}

	plan.FromPool = item
	plan.Style = item.Style
	return e.finish(ctx, types.Snippet{Text: item.Text, Track: item.Track, Plan: plan}, rc), true
}

// serveFresh runs the cold path: start a streaming batch call, serve the
// first candidate that clears the similarity guard, and drain the remainder
// of the batch into the pool in the background. Any failure yields the
// static fallback line.
func (e *Engine) serveFresh(ctx context.Context, sig string, plan types.Plan, rc types.RouterContext) types.Snippet {
	req := llm.BatchRequest{
		Plan:      plan,
		Context:   rc,
		Avoid:     avoidList(rc.Recent),
		BatchSize: e.llmCfg.BatchSize,
	}

	// The batch stream outlives the request: the remainder keeps filling the
	// pool after the response is sent, so it runs on its own deadline.
	batchCtx, cancel := context.WithTimeout(context.Background(), e.llmCfg.BatchTimeout)

	ch, err := e.generator.GenerateBatch(batchCtx, req)
	if err != nil {
		cancel()
		log.Printf("WARNING: generation call failed, serving fallback: %v", err)
		return e.finish(ctx, e.fallback(plan), rc)
	}

	chosen := e.firstAcceptable(ctx, ch, rc.Recent)
	e.drainToPool(cancel, ch, sig)

	if chosen == nil {
		log.Printf("WARNING: no candidate within %v, serving fallback", e.llmCfg.FirstItemTimeout)
		return e.finish(ctx, e.fallback(plan), rc)
	}

	plan.Style = chosen.Style
	return e.finish(ctx, types.Snippet{Text: chosen.Text, Track: chosen.Track, Plan: plan}, rc)
}

// firstAcceptable waits for the first streamed candidate that is not a
// near-duplicate of recent output. Up to MaxRetries similar candidates are
// skipped; after that the next candidate is accepted regardless, because a
// slightly repetitive line beats a static one. Returns nil when the first
// item budget elapses or the stream ends empty.
func (e *Engine) firstAcceptable(ctx context.Context, ch <-chan types.PoolItem, recent []types.HistoryEntry) *types.PoolItem {
	timer := time.NewTimer(e.llmCfg.FirstItemTimeout)
	defer timer.Stop()

	skipped := 0
	for {
		select {
		case item, ok := <-ch:
			if !ok {
				return nil
			}
			if skipped < e.engineCfg.MaxRetries && history.TooSimilar(item.Text, recent) {
				skipped++
				continue
			}
			return &item
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// drainToPool consumes the rest of the batch stream in the background and
// appends it to the pool, releasing the batch context when the stream ends.
func (e *Engine) drainToPool(cancel context.CancelFunc, ch <-chan types.PoolItem, sig string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		var rest []types.PoolItem
		for item := range ch {
			rest = append(rest, item)
		}
		if len(rest) == 0 {
			return
		}
		if err := e.pool.Append(context.Background(), sig, rest); err != nil {
			log.Printf("WARNING: failed to pool %d drained candidates for %s: %v", len(rest), sig, err)
			return
		}
		log.Printf("Pooled %d candidates under %s (batch drain)", len(rest), sig)
	}()
}

// fallback builds the static last-line-of-defense snippet.
func (e *Engine) fallback(plan types.Plan) types.Snippet {
	text := llm.FallbackLine(plan.Language, e.rng.Intn(64))
	return types.Snippet{Text: text, Track: types.TrackReflection, Plan: plan}
}

// finish records the served line in history and fires the notify hook.
func (e *Engine) finish(ctx context.Context, snippet types.Snippet, rc types.RouterContext) types.Snippet {
	entry := types.HistoryEntry{
		Text:      snippet.Text,
		ShownAt:   e.now(),
		RequestID: snippet.Plan.RequestID,
		Intent:    snippet.Plan.Intent,
		Style:     snippet.Plan.Style,
		Topic:     snippet.Plan.Topic,
		Track:     snippet.Track,
	}
	if err := e.historyLog.Append(ctx, rc.UserID, entry); err != nil {
		log.Printf("WARNING: failed to record history entry %s: %v", entry.RequestID, err)
	}

	if e.notify != nil {
		e.notify(snippet)
	}
	return snippet
}

// trackOverride returns the forced track for pattern-detected states, or ""
// when learned affinities should decide.
func (e *Engine) trackOverride(rc types.RouterContext) types.Track {
	hour := localHour(rc.LocalTime)
	if !rc.IsWeekend && hour >= dipStartHour && hour < dipEndHour &&
		rc.EmotionalBaseline >= 0 && rc.EmotionalBaseline < lowBaselineThreshold {
		return types.TrackEnergy
	}
	return ""
}

// avoidList projects the most recent display texts for the generation
// service's avoid clause.
func avoidList(recent []types.HistoryEntry) []string {
	n := len(recent)
	if n > avoidListSize {
		n = avoidListSize
	}
	texts := make([]string, 0, n)
	for _, e := range recent[:n] {
		texts = append(texts, e.Text)
	}
	return texts
}

// localHour parses the hour out of a "HH:MM" clock, defaulting to midday on
// malformed input.
func localHour(clock string) int {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 12
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 12
	}
	return hour
}
