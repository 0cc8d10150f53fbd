// Package model defines the recorded GUI model of an explored app: widgets,
// state snapshots and the action log captured during exploration.
package model

import "fmt"

// APIVersion is the document version accepted by Load.
const APIVersion = "droidmate/v0"

// ---------------------------------------------------------------------------
// Document
// ---------------------------------------------------------------------------

// Document is the top-level model file. One document may hold several apps.
type Document struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`
	Apps       []App  `yaml:"apps"       json:"apps"`
}

// App is the recorded (or simulated live) model of one app package.
type App struct {
	Package    string         `yaml:"package"               json:"package"`
	StartState string         `yaml:"start_state,omitempty" json:"start_state,omitempty"`
	HomeState  string         `yaml:"home_state,omitempty"  json:"home_state,omitempty"`
	States     []State        `yaml:"states"                json:"states"`
	Actions    []ActionRecord `yaml:"actions,omitempty"     json:"actions,omitempty"`
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// ActionKind enumerates the recorded action kinds.
type ActionKind string

const (
	KindReset     ActionKind = "reset"
	KindTerminate ActionKind = "terminate"
	KindPressBack ActionKind = "press_back"
	KindClick     ActionKind = "click"
	KindOther     ActionKind = "other"
)

// Valid reports whether k is one of the known kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case KindReset, KindTerminate, KindPressBack, KindClick, KindOther:
		return true
	}
	return false
}

// ParseActionKind converts a string to an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown action kind %q", s)
	}
	return k, nil
}

// ActionRecord is one recorded action: what was done, to which widget, and
// the state the app was in afterwards.
type ActionRecord struct {
	Kind        ActionKind `yaml:"kind"                   json:"kind" jsonschema:"enum=reset,enum=terminate,enum=press_back,enum=click,enum=other"`
	Target      *Widget    `yaml:"target,omitempty"       json:"target,omitempty"`
	ResultState string     `yaml:"result_state,omitempty" json:"result_state,omitempty"`
}

// String renders the record for diagnostics.
func (r ActionRecord) String() string {
	if r.Target == nil {
		return string(r.Kind)
	}
	return fmt.Sprintf("%s(%s)", r.Kind, r.Target.ID)
}

// Trace is an ordered, immutable run of recorded actions between two resets.
type Trace []ActionRecord

// ---------------------------------------------------------------------------
// Widgets and states
// ---------------------------------------------------------------------------

// Widget is a GUI element. The same type describes recorded targets and
// widgets of a live snapshot.
type Widget struct {
	ID         string `yaml:"id"                    json:"id"`
	Text       string `yaml:"text,omitempty"        json:"text,omitempty"`
	ResourceID string `yaml:"resource_id,omitempty" json:"resource_id,omitempty"`
	Class      string `yaml:"class,omitempty"       json:"class,omitempty"`
	Bounds     string `yaml:"bounds,omitempty"      json:"bounds,omitempty"`
	Actionable bool   `yaml:"actionable,omitempty"  json:"actionable,omitempty"`

	// LeadsTo is only used by simulated devices: the state reached by clicking.
	LeadsTo string `yaml:"leads_to,omitempty" json:"leads_to,omitempty"`
}

// StrictSignature identifies a widget by text, resource id and class.
func (w Widget) StrictSignature() string {
	return w.Text + "\x1f" + w.ResourceID + "\x1f" + w.Class
}

// CoarseSignature identifies a widget by text and resource id only.
func (w Widget) CoarseSignature() string {
	return w.Text + "\x1f" + w.ResourceID
}

// HasIdentity reports whether the widget carries a text or resource id.
func (w Widget) HasIdentity() bool {
	return w.Text != "" || w.ResourceID != ""
}

// Relevant reports whether the widget counts towards state similarity.
func (w Widget) Relevant() bool {
	return w.Actionable || w.HasIdentity()
}

// State is a GUI snapshot.
type State struct {
	ID          string   `yaml:"id"                     json:"id"`
	Package     string   `yaml:"package,omitempty"      json:"package,omitempty"`
	Activity    string   `yaml:"activity,omitempty"     json:"activity,omitempty"`
	HomeScreen  bool     `yaml:"home_screen,omitempty"  json:"home_screen,omitempty"`
	CrashDialog bool     `yaml:"crash_dialog,omitempty" json:"crash_dialog,omitempty"`
	BackTo      string   `yaml:"back_to,omitempty"      json:"back_to,omitempty"`
	Items       []Widget `yaml:"widgets,omitempty"      json:"widgets,omitempty"`
}

// Widgets returns the widgets of the snapshot.
func (s State) Widgets() []Widget { return s.Items }

// IsHomeScreen reports whether the snapshot shows the launcher.
func (s State) IsHomeScreen() bool { return s.HomeScreen }

// HasCrashDialog reports whether an "app has stopped" dialog is shown.
func (s State) HasCrashDialog() bool { return s.CrashDialog }

// Widget looks up a widget by id.
func (s State) Widget(id string) (Widget, bool) {
	for _, w := range s.Items {
		if w.ID == id {
			return w, true
		}
	}
	return Widget{}, false
}
