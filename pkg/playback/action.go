package playback

import (
	"fmt"

	"github.com/leonbett/droidmate/pkg/model"
)

// ActionKind enumerates the concrete actions the engine emits.
type ActionKind string

const (
	ActionClick     ActionKind = "click"
	ActionPressBack ActionKind = "press_back"
	ActionReset     ActionKind = "reset"
	ActionTerminate ActionKind = "terminate"
	ActionReplay    ActionKind = "replay" // recorded "other" action, replayed verbatim
)

// TagPreviouslySkipped marks a click that retried an earlier skipped record.
const TagPreviouslySkipped = "[previously skipped]"

// Action is the single concrete action returned by a Decide call.
type Action struct {
	Kind       ActionKind          `json:"kind"`
	Widget     *model.Widget       `json:"widget,omitempty"`
	Confidence Confidence          `json:"confidence,omitempty"`
	Tag        string              `json:"tag,omitempty"`
	Record     *model.ActionRecord `json:"record,omitempty"`
	Position   *Position           `json:"position,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActionClick:
		id := ""
		if a.Widget != nil {
			id = a.Widget.ID
		}
		return fmt.Sprintf("click(%s) %s", id, a.Tag)
	case ActionReplay:
		if a.Record != nil {
			return "replay " + a.Record.String()
		}
	}
	return string(a.Kind)
}
