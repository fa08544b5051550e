// Package router implements the intent classifier and the style/topic
// selector: the part of the engine that decides what kind of line is
// appropriate for the current moment.
package router

import (
	"strconv"
	"strings"

	"github.com/scrypster/perspective/pkg/types"
)

// Rand is the seedable randomness source used by the classifier and selector.
// *math/rand.Rand satisfies it; tests supply a fixed-sequence fake to force
// specific branches.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// highSessionThreshold is the request count after which the classifier starts
// nudging toward lighter intents.
const highSessionThreshold = 6

// ClassifyIntent maps a context snapshot to an intent label.
//
// A time-of-day bucket yields the base intent, then override rules apply in
// fixed priority order: weekend (daytime hours only), disabled mode,
// late-night streak, and finally the high-session-count nudge. Only the last
// rule draws randomness: a weighted pick rather than a hard switch, so there
// is no visible mode cliff at the threshold.
func ClassifyIntent(rc types.RouterContext, rng Rand) types.Intent {
	hour, ok := parseClock(rc.LocalTime)
	if !ok {
		// Unparsable clock: treat as midday rather than failing the request.
		hour = 12
	}

	intent := baseIntent(hour)

	// Weekend override applies during daytime hours only; evenings and nights
	// keep their own moods regardless of the day.
	if rc.IsWeekend && hour >= 9 && hour < 18 {
		intent = types.IntentWeekend
	}

	// Disabled mode redirects focus-type pressure to a lighter register.
	if rc.DisabledMode && intent == types.IntentFocus {
		intent = types.IntentLightBreak
	}

	// A sustained late-night pattern forces care/sleep intents, itself
	// time-gated so it never fires in the middle of the day.
	if rc.LateNightStreak >= 2 {
		switch {
		case hour >= 1 && hour < 5:
			intent = types.IntentSleep
		case hour >= 22 || hour < 1:
			intent = types.IntentLateEveningCare
		}
	}

	// Heavy usage days get nudged toward lighter categories, probabilistically.
	if rc.SessionCount >= highSessionThreshold && rng != nil && isHeavyIntent(intent) {
		switch r := rng.Float64(); {
		case r < 0.35:
			intent = types.IntentLightBreak
		case r < 0.55:
			intent = types.IntentWindDown
		}
		// Otherwise keep the base intent.
	}

	return intent
}

// baseIntent maps an hour of day to the base intent bucket.
func baseIntent(hour int) types.Intent {
	switch {
	case hour >= 5 && hour < 9:
		return types.IntentMorning
	case hour >= 9 && hour < 12:
		return types.IntentFocus
	case hour >= 12 && hour < 14:
		return types.IntentLightBreak
	case hour >= 14 && hour < 18:
		return types.IntentFocus
	case hour >= 18 && hour < 21:
		return types.IntentWindDown
	case hour >= 21 && hour < 23:
		return types.IntentEveningCelebrate
	case hour == 23 || hour == 0:
		return types.IntentLateEveningCare
	default: // 01:00–04:59
		return types.IntentSleep
	}
}

// isHeavyIntent reports whether an intent is a candidate for the
// high-session-count nudge. Already-light intents are left alone.
func isHeavyIntent(intent types.Intent) bool {
	switch intent {
	case types.IntentMorning, types.IntentFocus, types.IntentWeekend, types.IntentEveningCelebrate:
		return true
	}
	return false
}

// parseClock extracts the hour from an "HH:MM" clock string. The minute must
// still parse for the clock to count as well-formed.
func parseClock(s string) (hour int, ok bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h, true
}
