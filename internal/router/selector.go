package router

import (
	"sort"
	"time"

	"github.com/scrypster/perspective/pkg/types"
)

// Cooldown multipliers. The immediate-repeat penalty is near zero rather than
// zero so a style is suppressed, not permanently banned.
const (
	immediateRepeatPenalty = 0.02 // shown in the previous slot, under 3 minutes ago
	recentRepeatPenalty    = 0.15 // shown in either of the last two slots
	frequentRepeatPenalty  = 0.5  // three or more of the last five slots
	immediateRepeatWindow  = 3 * time.Minute
	cooldownLookback       = 5
)

// Selector chooses a presentation style and, when user topics exist, a topic,
// applying short-term cooldowns so back-to-back repeats stay rare.
type Selector struct {
	weights *WeightTable
	rng     Rand
	now     func() time.Time
}

// NewSelector creates a selector over the given weight table and randomness
// source. The now function may be nil (defaults to time.Now); tests inject a
// fixed clock.
func NewSelector(weights *WeightTable, rng Rand, now func() time.Time) *Selector {
	if now == nil {
		now = time.Now
	}
	return &Selector{weights: weights, rng: rng, now: now}
}

// MakePlan builds the plan for one request: style, topic source and topic,
// plus the language-derived length constraints. RequestID and FromPool are
// filled in by the orchestrator.
func (s *Selector) MakePlan(intent types.Intent, rc types.RouterContext) types.Plan {
	plan := types.Plan{
		Intent:      intent,
		Language:    rc.Language,
		MaxChars:    types.LanguageMaxChars(rc.Language),
		AllowComma:  types.LanguageAllowsComma(rc.Language),
		TopicSource: types.TopicSourceContext,
	}

	plan.Style = s.pickStyle(intent, rc.Recent)

	if len(rc.Topics) > 0 {
		p := topicProbability(len(rc.Topics), intent, rc.SessionCount)
		if rc.TopicsOnly || s.rng.Float64() < p {
			plan.TopicSource = types.TopicSourceCustom
			plan.Topic = s.pickTopic(rc.Topics, rc.Recent)
		}
	}

	return plan
}

// pickStyle samples a style from the intent's weight table after cooldowns.
func (s *Selector) pickStyle(intent types.Intent, recent []types.HistoryEntry) types.Style {
	base := s.weights.For(intent)

	weighted := make(map[types.Style]float64, len(base))
	total := 0.0
	for style, w := range base {
		w *= s.cooldown(string(style), recent, func(h types.HistoryEntry) string { return string(h.Style) })
		weighted[style] = w
		total += w
	}

	// All weights collapsed: fall back to a uniform draw over the original
	// table's keys so the plan is never undefined.
	if total <= 0 {
		keys := sortedStyles(base)
		return keys[s.rng.Intn(len(keys))]
	}

	r := s.rng.Float64() * total
	for _, style := range sortedStyles(weighted) {
		r -= weighted[style]
		if r < 0 {
			return style
		}
	}
	// Floating point remainder; return the last key.
	keys := sortedStyles(weighted)
	return keys[len(keys)-1]
}

// pickTopic samples one of the user's declared topics using the same cooldown
// shape as styles, keyed by topic. A single topic is returned directly.
func (s *Selector) pickTopic(topics []string, recent []types.HistoryEntry) string {
	if len(topics) == 1 {
		return topics[0]
	}

	weighted := make([]float64, len(topics))
	total := 0.0
	for i, topic := range topics {
		w := s.cooldown(topic, recent, func(h types.HistoryEntry) string { return h.Topic })
		weighted[i] = w
		total += w
	}

	if total <= 0 {
		return topics[s.rng.Intn(len(topics))]
	}

	r := s.rng.Float64() * total
	for i, w := range weighted {
		r -= w
		if r < 0 {
			return topics[i]
		}
	}
	return topics[len(topics)-1]
}

// cooldown computes the penalty multiplier for a key against the recent
// history (most-recent-first), using keyOf to project entries.
func (s *Selector) cooldown(key string, recent []types.HistoryEntry, keyOf func(types.HistoryEntry) string) float64 {
	if len(recent) == 0 {
		return 1.0
	}

	window := recent
	if len(window) > cooldownLookback {
		window = window[:cooldownLookback]
	}

	mult := 1.0
	switch {
	case keyOf(window[0]) == key && s.now().Sub(window[0].ShownAt) < immediateRepeatWindow:
		mult = immediateRepeatPenalty
	case keyOf(window[0]) == key, len(window) > 1 && keyOf(window[1]) == key:
		mult = recentRepeatPenalty
	}

	count := 0
	for _, h := range window {
		if keyOf(h) == key {
			count++
		}
	}
	if count >= 3 {
		mult *= frequentRepeatPenalty
	}

	return mult
}

// topicProbability computes the chance of choosing a user-declared topic over
// ambient context. It scales mildly with the number of declared topics, is
// reduced during care/sleep intents, and rises on heavy-usage days.
func topicProbability(topicCount int, intent types.Intent, sessionCount int) float64 {
	n := topicCount
	if n > 5 {
		n = 5
	}
	p := 0.35 + 0.07*float64(n)

	switch intent {
	case types.IntentLateEveningCare, types.IntentSleep:
		p *= 0.5
	}

	if sessionCount >= highSessionThreshold {
		p += 0.15
	}

	if p > 0.9 {
		p = 0.9
	}
	return p
}

// sortedStyles returns map keys in stable order so seeded draws are
// reproducible.
func sortedStyles(m map[types.Style]float64) []types.Style {
	keys := make([]types.Style, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
