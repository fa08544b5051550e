package router

import (
	"fmt"
	"log"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/perspective/pkg/types"
)

// WeightTable holds the per-intent style weights. It is safe for concurrent
// use; the config file watcher reloads it in place while requests are served.
type WeightTable struct {
	mu      sync.RWMutex
	weights map[types.Intent]map[types.Style]float64
}

// DefaultWeights returns the built-in intent→style weight tables.
func DefaultWeights() *WeightTable {
	return &WeightTable{weights: map[types.Intent]map[types.Style]float64{
		types.IntentMorning: {
			types.StyleAction:      3.0,
			types.StyleNarrative:   2.5,
			types.StyleAffirmation: 2.0,
			types.StyleObservation: 1.5,
			types.StyleQuestion:    1.0,
		},
		types.IntentFocus: {
			types.StyleAction:      3.0,
			types.StyleObservation: 2.0,
			types.StyleNarrative:   1.5,
			types.StyleAffirmation: 1.5,
			types.StyleQuestion:    1.0,
		},
		types.IntentLightBreak: {
			types.StyleQuestion:    2.5,
			types.StyleObservation: 2.5,
			types.StyleNarrative:   2.0,
			types.StyleAffirmation: 1.5,
			types.StyleAction:      1.0,
		},
		types.IntentWindDown: {
			types.StyleNarrative:   3.0,
			types.StyleObservation: 2.5,
			types.StyleAffirmation: 2.0,
			types.StyleQuestion:    1.5,
			types.StyleAction:      0.5,
		},
		types.IntentEveningCelebrate: {
			types.StyleAffirmation: 3.0,
			types.StyleNarrative:   2.5,
			types.StyleObservation: 1.5,
			types.StyleAction:      1.0,
			types.StyleQuestion:    1.0,
		},
		types.IntentLateEveningCare: {
			types.StyleAffirmation: 3.0,
			types.StyleObservation: 2.0,
			types.StyleNarrative:   2.0,
			types.StyleQuestion:    0.5,
			types.StyleAction:      0.2,
		},
		types.IntentSleep: {
			types.StyleObservation: 3.0,
			types.StyleAffirmation: 2.5,
			types.StyleNarrative:   1.5,
			types.StyleQuestion:    0.2,
			types.StyleAction:      0.1,
		},
		types.IntentWeekend: {
			types.StyleNarrative:   2.5,
			types.StyleQuestion:    2.0,
			types.StyleAction:      2.0,
			types.StyleObservation: 1.5,
			types.StyleAffirmation: 1.5,
		},
	}}
}

// For returns a copy of the weight row for an intent. An unknown intent
// (should not happen past boundary validation) returns the focus row.
func (t *WeightTable) For(intent types.Intent) map[types.Style]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	row, ok := t.weights[intent]
	if !ok {
		row = t.weights[types.IntentFocus]
	}
	out := make(map[types.Style]float64, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// LoadFile merges weight overrides from a YAML file into the table. The file
// maps intent names to style→weight rows; unknown intent or style names are
// skipped with a warning so a typo never breaks routing. Rows not present in
// the file keep their current weights.
func (t *WeightTable) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("router: failed to read weights file: %w", err)
	}

	var raw map[string]map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("router: failed to parse weights file: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for intentName, row := range raw {
		if !types.IsValidIntent(intentName) {
			log.Printf("WARNING: router: skipping unknown intent %q in %s", intentName, path)
			continue
		}
		intent := types.Intent(intentName)
		merged := make(map[types.Style]float64, len(t.weights[intent]))
		for k, v := range t.weights[intent] {
			merged[k] = v
		}
		for styleName, w := range row {
			if !types.IsValidStyle(styleName) {
				log.Printf("WARNING: router: skipping unknown style %q in %s", styleName, path)
				continue
			}
			if w < 0 {
				log.Printf("WARNING: router: ignoring negative weight for %s/%s", intentName, styleName)
				continue
			}
			merged[types.Style(styleName)] = w
		}
		t.weights[intent] = merged
	}

	return nil
}
