// Package playback replays recorded exploration traces against a live,
// possibly drifted, GUI. Each Decide call reconciles the next recorded
// action(s) with the current screen and yields one concrete action.
package playback

import (
	"fmt"

	"github.com/leonbett/droidmate/pkg/model"
)

// LiveState is the observed GUI snapshot the engine decides against.
// model.State implements it.
type LiveState interface {
	Widgets() []model.Widget
	IsHomeScreen() bool
	HasCrashDialog() bool
}

// Confidence is the strength of correspondence between a recorded widget and
// a live one. Only the four constants below are ever produced.
type Confidence float64

const (
	ConfidenceNone   Confidence = 0.0
	ConfidenceCoarse Confidence = 0.5
	ConfidenceStrict Confidence = 0.6
	ConfidenceExact  Confidence = 1.0
)

// Tag renders the confidence the way it is attached to emitted clicks.
func (c Confidence) Tag() string {
	return fmt.Sprintf("[%.1f]", float64(c))
}

// Match resolves a recorded widget against a live state. Rules, first hit wins:
//  1. a live widget with the same id                                  → 1.0
//  2. recorded widget actionable with text or resource id, actionable
//     live widget with the same strict signature                      → 0.6
//  3. recorded widget has text or resource id, actionable live widget
//     with the same coarse signature                                  → 0.5
//  4. otherwise                                                       → 0.0, nil
func Match(recorded *model.Widget, live LiveState) (Confidence, *model.Widget) {
	if recorded == nil || live == nil {
		return ConfidenceNone, nil
	}
	widgets := live.Widgets()

	for i := range widgets {
		if widgets[i].ID == recorded.ID {
			w := widgets[i]
			return ConfidenceExact, &w
		}
	}

	if recorded.Actionable && recorded.HasIdentity() {
		sig := recorded.StrictSignature()
		for i := range widgets {
			if widgets[i].Actionable && widgets[i].StrictSignature() == sig {
				w := widgets[i]
				return ConfidenceStrict, &w
			}
		}
	}

	if recorded.HasIdentity() {
		sig := recorded.CoarseSignature()
		for i := range widgets {
			if widgets[i].Actionable && widgets[i].CoarseSignature() == sig {
				w := widgets[i]
				return ConfidenceCoarse, &w
			}
		}
	}

	return ConfidenceNone, nil
}

// Similarity is the fraction of relevant widgets of a that also appear in b
// under Match rules 1 and 2. The denominator is always a's relevant widgets,
// so the measure is asymmetric. A state without relevant widgets has
// similarity 0.
func Similarity(a, b LiveState) float64 {
	if a == nil || b == nil {
		return 0
	}
	other := b.Widgets()
	ids := make(map[string]bool, len(other))
	sigs := make(map[string]bool, len(other))
	for _, w := range other {
		ids[w.ID] = true
		if w.Actionable {
			sigs[w.StrictSignature()] = true
		}
	}

	relevant, shared := 0, 0
	for _, w := range a.Widgets() {
		if !w.Relevant() {
			continue
		}
		relevant++
		if ids[w.ID] || (w.Actionable && w.HasIdentity() && sigs[w.StrictSignature()]) {
			shared++
		}
	}
	if relevant == 0 {
		return 0
	}
	return float64(shared) / float64(relevant)
}
