// Package types defines the core data structures for the Perspective content
// engine: the closed intent/style/track enumerations, the per-request router
// context, generation plans, pool items, and engagement reports.
//
// All enumerations are closed sets. Free-form strings arriving from external
// context or upstream generation output are validated at the boundary and fall
// back to a default variant rather than propagating through the system.
package types

// Intent is the coarse time/context-derived mode governing which styles are
// eligible for a request.
type Intent string

// Style is a content category describing the rhetorical shape of a line.
type Style string

// Track is a coarser grouping than style, used as the unit of personalization
// by the affinity bandit.
type Track string

// TopicSource records where a plan's topic came from.
type TopicSource string

// EchoType is the sub-type of a memory-echo pool item.
type EchoType string

// ExitReason describes how a displayed line's lifetime ended.
type ExitReason string

// Intent constants. One per time-of-day mode plus the weekend override.
const (
	IntentMorning         Intent = "morning"
	IntentFocus           Intent = "focus"
	IntentLightBreak      Intent = "light_break"
	IntentWindDown        Intent = "wind_down"
	IntentEveningCelebrate Intent = "evening_celebrate"
	IntentLateEveningCare Intent = "late_evening_care"
	IntentSleep           Intent = "sleep"
	IntentWeekend         Intent = "weekend"
)

// Style constants.
const (
	StyleAction      Style = "action"
	StyleQuestion    Style = "question"
	StyleNarrative   Style = "narrative"
	StyleAffirmation Style = "affirmation"
	StyleObservation Style = "observation"
)

// Track constants. The generation contract distributes candidates across these
// five tracks; per-track character limits live in TrackCharLimits.
const (
	TrackCalm       Track = "calm"
	TrackEnergy     Track = "energy"
	TrackReflection Track = "reflection"
	TrackHumor      Track = "humor"
	TrackGrowth     Track = "growth"
)

// Topic source constants.
const (
	TopicSourceCustom  TopicSource = "custom"  // user-declared topic
	TopicSourceContext TopicSource = "context" // ambient context
)

// Echo type constants.
const (
	EchoStreak    EchoType = "streak"
	EchoReturn    EchoType = "return"
	EchoMilestone EchoType = "milestone"
)

// Exit reason constants for engagement reports.
const (
	ExitRefresh  ExitReason = "refresh"  // user-initiated replacement
	ExitNavigate ExitReason = "navigate" // tab navigated away or hidden
	ExitReaction ExitReason = "reaction" // explicit emotional-reaction interaction
)

// AllIntents lists every valid intent for validation and iteration.
var AllIntents = []Intent{
	IntentMorning,
	IntentFocus,
	IntentLightBreak,
	IntentWindDown,
	IntentEveningCelebrate,
	IntentLateEveningCare,
	IntentSleep,
	IntentWeekend,
}

// AllStyles lists every valid style.
var AllStyles = []Style{
	StyleAction,
	StyleQuestion,
	StyleNarrative,
	StyleAffirmation,
	StyleObservation,
}

// AllTracks lists every valid track.
var AllTracks = []Track{
	TrackCalm,
	TrackEnergy,
	TrackReflection,
	TrackHumor,
	TrackGrowth,
}

// TrackDistribution is the target percentage of each track in a generated
// batch. Values sum to 100.
var TrackDistribution = map[Track]int{
	TrackCalm:       25,
	TrackEnergy:     20,
	TrackReflection: 25,
	TrackHumor:      15,
	TrackGrowth:     15,
}

// TrackCharLimits is the per-track maximum character count requested from the
// generation service. Shorter tracks read better at a glance.
var TrackCharLimits = map[Track]int{
	TrackCalm:       100,
	TrackEnergy:     80,
	TrackReflection: 120,
	TrackHumor:      90,
	TrackGrowth:     110,
}

// IsValidIntent reports whether s names a known intent.
func IsValidIntent(s string) bool {
	for _, v := range AllIntents {
		if string(v) == s {
			return true
		}
	}
	return false
}

// IsValidStyle reports whether s names a known style.
func IsValidStyle(s string) bool {
	for _, v := range AllStyles {
		if string(v) == s {
			return true
		}
	}
	return false
}

// IsValidTrack reports whether s names a known track.
func IsValidTrack(s string) bool {
	for _, v := range AllTracks {
		if string(v) == s {
			return true
		}
	}
	return false
}

// IsValidEchoType reports whether s names a known echo type.
func IsValidEchoType(s string) bool {
	switch EchoType(s) {
	case EchoStreak, EchoReturn, EchoMilestone:
		return true
	}
	return false
}

// StyleOrDefault validates an upstream style string and falls back to
// observation on an unrecognized value.
func StyleOrDefault(s string) Style {
	if IsValidStyle(s) {
		return Style(s)
	}
	return StyleObservation
}

// TrackOrDefault validates an upstream track string and falls back to
// reflection on an unrecognized value.
func TrackOrDefault(s string) Track {
	if IsValidTrack(s) {
		return Track(s)
	}
	return TrackReflection
}

// LanguageMaxChars returns the maximum line length for a target language.
// Ideographic scripts carry far more meaning per glyph, so their budgets are
// much lower.
func LanguageMaxChars(lang string) int {
	switch lang {
	case "ja":
		return 60
	case "zh":
		return 50
	case "de", "fr":
		return 140
	case "es":
		return 130
	default:
		return 120
	}
}

// LanguageAllowsComma reports whether generated lines in the given language
// may contain comma pauses. Disabled for ja/zh where the budget is too tight.
func LanguageAllowsComma(lang string) bool {
	switch lang {
	case "ja", "zh":
		return false
	}
	return true
}
