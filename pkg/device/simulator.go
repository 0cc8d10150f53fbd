// Package device provides a simulated device that walks a live app model.
// It stands in for a real device in the exploration loop and in tests.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leonbett/droidmate/pkg/detect"
	"github.com/leonbett/droidmate/pkg/model"
	"github.com/leonbett/droidmate/pkg/playback"
)

var (
	// ErrStopped is returned once the app has been terminated.
	ErrStopped = errors.New("device stopped")
	// ErrNoSuchWidget is returned when a click targets a widget that is not
	// on the current screen.
	ErrNoSuchWidget = errors.New("no such widget on screen")
)

// Simulator is a deterministic device over one app of a live model.
type Simulator struct {
	mu         sync.Mutex
	app        *model.App
	states     map[string]model.State
	current    string
	stopped    bool
	classifier *detect.Classifier
	history    []playback.Action
	failures   []error
}

// NewSimulator starts on the app's home state, or its start state when no
// home state is modelled. A nil classifier uses detect.Default.
func NewSimulator(app *model.App, classifier *detect.Classifier) (*Simulator, error) {
	if classifier == nil {
		classifier = detect.Default()
	}
	states := make(map[string]model.State, len(app.States))
	for _, st := range app.States {
		states[st.ID] = st
	}
	initial := app.HomeState
	if initial == "" {
		initial = app.StartState
	}
	if _, ok := states[initial]; !ok {
		return nil, fmt.Errorf("app %q: initial state %q: %w", app.Package, initial, model.ErrNotFound)
	}
	return &Simulator{app: app, states: states, current: initial, classifier: classifier}, nil
}

// Observe returns the current screen, classified.
func (s *Simulator) Observe(ctx context.Context) (model.State, error) {
	if err := ctx.Err(); err != nil {
		return model.State{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return model.State{}, ErrStopped
	}
	return s.classifier.Classify(s.states[s.current])
}

// Execute performs one engine action.
func (s *Simulator) Execute(ctx context.Context, a playback.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}

	switch a.Kind {
	case playback.ActionReset:
		if err := s.moveTo(s.app.StartState); err != nil {
			return err
		}
	case playback.ActionPressBack:
		target := s.states[s.current].BackTo
		if target == "" {
			target = s.app.HomeState
		}
		if target != "" {
			if err := s.moveTo(target); err != nil {
				return err
			}
		}
	case playback.ActionClick:
		if a.Widget == nil {
			return fmt.Errorf("click without widget: %w", ErrNoSuchWidget)
		}
		if err := s.click(a.Widget.ID); err != nil {
			return err
		}
	case playback.ActionReplay:
		if a.Widget != nil {
			if _, ok := s.states[s.current].Widget(a.Widget.ID); ok {
				if err := s.click(a.Widget.ID); err != nil {
					return err
				}
			}
		}
	case playback.ActionTerminate:
		s.stopped = true
	default:
		return fmt.Errorf("unsupported action kind %q", a.Kind)
	}
	s.history = append(s.history, a)
	return nil
}

func (s *Simulator) click(id string) error {
	w, ok := s.states[s.current].Widget(id)
	if !ok {
		return fmt.Errorf("click %q in state %q: %w", id, s.current, ErrNoSuchWidget)
	}
	if w.LeadsTo == "" {
		return nil
	}
	return s.moveTo(w.LeadsTo)
}

func (s *Simulator) moveTo(id string) error {
	if _, ok := s.states[id]; !ok {
		return fmt.Errorf("state %q: %w", id, model.ErrNotFound)
	}
	s.current = id
	return nil
}

// FailNext makes the next Execute calls return errs, in order, without
// changing state.
func (s *Simulator) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Jump moves the device to a state directly, e.g. to inject a crash.
func (s *Simulator) Jump(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveTo(id)
}

// Current returns the id of the current state.
func (s *Simulator) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Stopped reports whether the app was terminated.
func (s *Simulator) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// History returns the actions executed successfully, in order.
func (s *Simulator) History() []playback.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]playback.Action(nil), s.history...)
}
