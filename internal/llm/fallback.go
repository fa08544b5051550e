package llm

import (
	_ "embed"
	"log"

	"gopkg.in/yaml.v3"
)

//go:embed fallback_lines.yaml
var fallbackYAML []byte

// fallbackLines maps language code to the static lines shipped with the
// binary. Loaded once at init; a broken embed is a build artifact problem,
// so the English safety line below covers even that.
var fallbackLines map[string][]string

// lastResortLine is returned if the embedded table itself is unusable.
const lastResortLine = "A blank tab is still a small fresh start."

func init() {
	if err := yaml.Unmarshal(fallbackYAML, &fallbackLines); err != nil {
		log.Printf("ERROR: llm: failed to parse embedded fallback lines: %v", err)
		fallbackLines = map[string][]string{"en": {lastResortLine}}
	}
}

// FallbackLine returns a static localized line. Unknown languages fall back
// to English. idx selects among the language's lines (wrapped), so callers
// can rotate rather than always serving the first one.
func FallbackLine(lang string, idx int) string {
	lines, ok := fallbackLines[lang]
	if !ok || len(lines) == 0 {
		lines = fallbackLines["en"]
	}
	if len(lines) == 0 {
		return lastResortLine
	}
	if idx < 0 {
		idx = -idx
	}
	return lines[idx%len(lines)]
}
