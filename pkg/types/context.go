package types

import "time"

// RouterContext is the immutable per-request snapshot assembled by the session
// layer. It is always supplied whole; there are no partial updates.
type RouterContext struct {
	// LocalTime is the user's wall-clock time in "HH:MM" form.
	LocalTime string `json:"local_time"`

	// Weekday is the local weekday (time.Sunday .. time.Saturday).
	Weekday time.Weekday `json:"weekday"`

	// IsWeekend is true on Saturday and Sunday.
	IsWeekend bool `json:"is_weekend"`

	// SessionCount is the number of engine requests made today.
	SessionCount int `json:"session_count"`

	// MinutesSinceLast is the elapsed minutes since a line was last shown.
	// Zero means no prior line this session.
	MinutesSinceLast int `json:"minutes_since_last"`

	// LateNightStreak counts consecutive days with late-night activity.
	LateNightStreak int `json:"late_night_streak"`

	// DisabledMode redirects focus-type intents to lighter ones.
	DisabledMode bool `json:"disabled_mode,omitempty"`

	// Topics are the user-declared topics, if any.
	Topics []string `json:"topics,omitempty"`

	// TopicsOnly forces topic selection from Topics whenever any exist.
	TopicsOnly bool `json:"topics_only,omitempty"`

	// Recent is the recent display history, most-recent-first.
	Recent []HistoryEntry `json:"recent,omitempty"`

	// Language is the target language code (e.g. "en", "ja").
	Language string `json:"language"`

	// BatteryLevel is an optional ambient signal in [0,100]; -1 when unknown.
	BatteryLevel int `json:"battery_level,omitempty"`

	// Weather is an optional ambient weather string.
	Weather string `json:"weather,omitempty"`

	// Emotion is an optional explicit emotional signal from the user.
	Emotion string `json:"emotion,omitempty"`

	// EmotionalBaseline is an optional derived score in [0,1]; -1 when unset.
	EmotionalBaseline float64 `json:"emotional_baseline,omitempty"`

	// DeepObservation marks a deep-observation-mode request.
	DeepObservation bool `json:"deep_observation,omitempty"`

	// UserID is an opaque identifier used only to namespace personalization
	// data. Empty means the shared anonymous namespace.
	UserID string `json:"user_id,omitempty"`
}

// Plan is the routing outcome for one request. It is returned alongside the
// text so the caller can record provenance without re-deriving it.
type Plan struct {
	RequestID   string      `json:"request_id"`
	Intent      Intent      `json:"intent"`
	Style       Style       `json:"style"`
	TopicSource TopicSource `json:"topic_source"`
	Topic       string      `json:"topic,omitempty"`
	Language    string      `json:"language"`
	MaxChars    int         `json:"max_chars"`
	AllowComma  bool        `json:"allow_comma"`

	// FromPool is the consumed pool item when the request was satisfied from
	// the candidate pool; nil on the cold generation path.
	FromPool *PoolItem `json:"from_pool,omitempty"`
}

// PoolItem is a single pre-generated candidate line. Items are append-only
// until consumed; consumption removes them permanently.
type PoolItem struct {
	Text  string `json:"text"`
	Style Style  `json:"style"`
	Track Track  `json:"track"`

	// IsMemoryEcho flags a deliberate callback to a remembered past moment,
	// rendered distinctly by the UI.
	IsMemoryEcho bool     `json:"is_memory_echo,omitempty"`
	EchoType     EchoType `json:"echo_type,omitempty"`
}

// HistoryEntry records one displayed line. Entries never mutate after
// creation.
type HistoryEntry struct {
	Text      string    `json:"text"`
	ShownAt   time.Time `json:"shown_at"`
	RequestID string    `json:"request_id"`
	Intent    Intent    `json:"intent"`
	Style     Style     `json:"style"`
	Topic     string    `json:"topic,omitempty"`
	Track     Track     `json:"track"`
}

// EngagementReport is the inbound fire-and-forget signal describing how the
// previous line's display ended.
type EngagementReport struct {
	Track      Track      `json:"track"`
	DurationMs int64      `json:"duration_ms"`
	ExitReason ExitReason `json:"exit_reason"`
	UserID     string     `json:"user_id,omitempty"`
}

// Snippet is the engine's result: the line to display, the track it was
// drawn from, and the plan that produced it. Track is what engagement
// reports key on.
type Snippet struct {
	Text  string `json:"text"`
	Track Track  `json:"track"`
	Plan  Plan   `json:"plan"`
}
