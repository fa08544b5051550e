package llm

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"

	"github.com/scrypster/perspective/pkg/types"
)

// rawCandidate is the wire shape of one candidate object in the generated
// JSON array.
type rawCandidate struct {
	Text         string `json:"text"`
	Style        string `json:"style"`
	Track        string `json:"track"`
	IsMemoryEcho bool   `json:"is_memory_echo,omitempty"`
	EchoType     string `json:"echo_type,omitempty"`
}

// StreamParser incrementally extracts candidate objects from a chunked
// response whose concatenation is a JSON array of objects. Chunks may split
// anywhere, including mid-object and mid-string, so the parser tracks brace
// balance and string state across chunk boundaries. A malformed individual
// object is dropped without losing subsequent valid objects.
type StreamParser struct {
	inArray  bool
	inString bool
	escape   bool
	depth    int
	buf      bytes.Buffer

	parsed  int
	dropped int
}

// NewStreamParser creates an empty parser.
func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Feed consumes the next chunk and returns every candidate completed by it,
// in stream order, already validated: unknown style/track values fall back to
// their default variants, and empty-text objects are dropped.
func (p *StreamParser) Feed(chunk string) []types.PoolItem {
	var items []types.PoolItem

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		// Ignore preamble (markdown fences, prose) until the array opens.
		if !p.inArray {
			if c == '[' {
				p.inArray = true
			}
			continue
		}

		if p.depth == 0 {
			// Between objects: only an opening brace matters. Commas, the
			// closing bracket, whitespace, and any stray bytes are skipped.
			if c == '{' {
				p.depth = 1
				p.buf.Reset()
				p.buf.WriteByte(c)
			}
			continue
		}

		p.buf.WriteByte(c)

		if p.inString {
			switch {
			case p.escape:
				p.escape = false
			case c == '\\':
				p.escape = true
			case c == '"':
				p.inString = false
			}
			continue
		}

		switch c {
		case '"':
			p.inString = true
		case '{':
			p.depth++
		case '}':
			p.depth--
			if p.depth == 0 {
				if item, ok := p.complete(); ok {
					items = append(items, item)
				}
			}
		}
	}

	return items
}

// Counts returns how many objects parsed successfully and how many were
// dropped as malformed or empty.
func (p *StreamParser) Counts() (parsed, dropped int) {
	return p.parsed, p.dropped
}

// complete unmarshals the buffered object. Malformed objects are dropped, not
// retried; the stream keeps going.
func (p *StreamParser) complete() (types.PoolItem, bool) {
	raw := p.buf.Bytes()
	p.buf.Reset()

	var c rawCandidate
	if err := json.Unmarshal(raw, &c); err != nil {
		p.dropped++
		log.Printf("WARNING: llm: dropping malformed candidate object: %v", err)
		return types.PoolItem{}, false
	}

	c.Text = strings.TrimSpace(c.Text)
	if c.Text == "" {
		p.dropped++
		return types.PoolItem{}, false
	}

	item := types.PoolItem{
		Text:  c.Text,
		Style: types.StyleOrDefault(c.Style),
		Track: types.TrackOrDefault(c.Track),
	}
	if c.IsMemoryEcho && types.IsValidEchoType(c.EchoType) {
		item.IsMemoryEcho = true
		item.EchoType = types.EchoType(c.EchoType)
	}

	p.parsed++
	return item, true
}
