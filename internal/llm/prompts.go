package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scrypster/perspective/pkg/types"
)

// systemInstructionTemplate is the behavioral contract sent with every batch
// call. It pins the output format, the track distribution, and the per-track
// character limits so the stream parser can rely on the shape of the reply.
const systemInstructionTemplate = `You write short perspective lines shown when a user opens a new browser tab.

Rules:
- Respond with a JSON array only. No prose, no markdown fences, no keys outside the schema.
- Each element: {"text": string, "style": string, "track": string, "is_memory_echo": bool (optional), "echo_type": string (optional)}.
- Allowed styles: %s.
- Allowed tracks, with the share of the batch each should fill and the hard character limit per line:
%s- Language: %s. Every line must fit %d characters.
%s- Tone: warm, concrete, never preachy. No exclamation marks. No emoji.
- Every line must be distinct in wording and idea from every other line in the batch.
`

// BuildSystemInstruction renders the behavioral contract for a plan.
func BuildSystemInstruction(plan types.Plan) string {
	var tracks strings.Builder
	for _, track := range types.AllTracks {
		fmt.Fprintf(&tracks, "  - %s: %d%% of the batch, at most %d characters\n",
			track, types.TrackDistribution[track], types.TrackCharLimits[track])
	}

	commaRule := ""
	if !plan.AllowComma {
		commaRule = "- Do not use commas; keep each line a single unbroken phrase.\n"
	}

	return fmt.Sprintf(systemInstructionTemplate,
		styleList(), tracks.String(), plan.Language, plan.MaxChars, commaRule)
}

// BuildUserInstruction renders the live context for a batch call: the routing
// decision, ambient signals, and the lines to steer away from.
func BuildUserInstruction(req BatchRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Moment: %s. Preferred style emphasis: %s.\n", req.Plan.Intent, req.Plan.Style)
	fmt.Fprintf(&b, "Local time %s, %s.\n", req.Context.LocalTime, req.Context.Weekday)

	if req.Plan.Topic != "" {
		fmt.Fprintf(&b, "The user cares about: %s. Weave it in naturally where it fits.\n", req.Plan.Topic)
	}
	if req.Context.Weather != "" {
		fmt.Fprintf(&b, "Weather outside: %s.\n", req.Context.Weather)
	}
	if req.Context.BatteryLevel >= 0 && req.Context.BatteryLevel <= 20 {
		fmt.Fprintf(&b, "Device battery is at %d%%; the session is probably winding down soon.\n", req.Context.BatteryLevel)
	}
	if req.Context.Emotion != "" {
		fmt.Fprintf(&b, "The user just signaled feeling: %s. Meet that feeling first.\n", req.Context.Emotion)
	}
	if req.Context.SessionCount >= 6 {
		b.WriteString("This is a heavy-usage day; keep lines light and undemanding.\n")
	}
	if req.Context.DeepObservation {
		b.WriteString("Deep observation mode: a few lines may gently reference a remembered past moment (mark them with is_memory_echo and echo_type streak, return, or milestone).\n")
	}

	if len(req.Avoid) > 0 {
		b.WriteString("Do not repeat or closely paraphrase any of these recent lines:\n")
		for _, line := range req.Avoid {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	fmt.Fprintf(&b, "Generate exactly %d lines.", req.BatchSize)
	return b.String()
}

// styleList renders the allowed styles in stable order.
func styleList() string {
	names := make([]string, 0, len(types.AllStyles))
	for _, s := range types.AllStyles {
		names = append(names, string(s))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
