// Package detect classifies observed GUI states. Two boolean expressions
// decide whether a state is the launcher home screen and whether it shows an
// app crash dialog.
//
// Expressions see these variables:
//
//	package       string    app package of the state
//	activity      string    foreground activity
//	home_screen   bool      flag already present on the state
//	crash_dialog  bool      flag already present on the state
//	texts         []string  non-empty widget texts
//	resource_ids  []string  non-empty widget resource ids
//	widget_count  int       number of widgets
package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/leonbett/droidmate/pkg/model"
)

// Default expressions.
const (
	DefaultHomeScreen  = `home_screen`
	DefaultCrashDialog = `crash_dialog || any(texts, {# contains "has stopped"})`
)

// Classifier holds the compiled predicates.
type Classifier struct {
	home  *vm.Program
	crash *vm.Program
}

// New compiles the two predicates. Empty strings select the defaults.
func New(homeScreen, crashDialog string) (*Classifier, error) {
	if strings.TrimSpace(homeScreen) == "" {
		homeScreen = DefaultHomeScreen
	}
	if strings.TrimSpace(crashDialog) == "" {
		crashDialog = DefaultCrashDialog
	}

	env := Env(model.State{})
	home, err := expr.Compile(homeScreen, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile home_screen %q: %w", homeScreen, err)
	}
	crash, err := expr.Compile(crashDialog, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile crash_dialog %q: %w", crashDialog, err)
	}
	return &Classifier{home: home, crash: crash}, nil
}

// Default returns a classifier using the default expressions.
func Default() *Classifier {
	c, err := New("", "")
	if err != nil {
		panic(err)
	}
	return c
}

// Env builds the expression environment for a state.
func Env(st model.State) map[string]any {
	texts := []string{}
	rids := []string{}
	for _, w := range st.Items {
		if w.Text != "" {
			texts = append(texts, w.Text)
		}
		if w.ResourceID != "" {
			rids = append(rids, w.ResourceID)
		}
	}
	return map[string]any{
		"package":      st.Package,
		"activity":     st.Activity,
		"home_screen":  st.HomeScreen,
		"crash_dialog": st.CrashDialog,
		"texts":        texts,
		"resource_ids": rids,
		"widget_count": len(st.Items),
	}
}

// Classify returns st with HomeScreen and CrashDialog set by the predicates.
func (c *Classifier) Classify(st model.State) (model.State, error) {
	env := Env(st)
	home, err := run(c.home, env)
	if err != nil {
		return st, fmt.Errorf("eval home_screen for %q: %w", st.ID, err)
	}
	crash, err := run(c.crash, env)
	if err != nil {
		return st, fmt.Errorf("eval crash_dialog for %q: %w", st.ID, err)
	}
	st.HomeScreen = home
	st.CrashDialog = crash
	return st, nil
}

// StateSource resolves recorded state ids. model.PackageStore implements it.
type StateSource interface {
	StateAtRecordingTime(ctx context.Context, id string) (model.State, error)
}

// Recorded wraps src so recorded snapshots are classified by the same
// predicates as observed ones.
func (c *Classifier) Recorded(src StateSource) StateSource {
	return recorded{src: src, c: c}
}

type recorded struct {
	src StateSource
	c   *Classifier
}

func (r recorded) StateAtRecordingTime(ctx context.Context, id string) (model.State, error) {
	st, err := r.src.StateAtRecordingTime(ctx, id)
	if err != nil {
		return st, err
	}
	return r.c.Classify(st)
}

func run(p *vm.Program, env map[string]any) (bool, error) {
	out, err := expr.Run(p, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("did not return bool (got %T: %v)", out, out)
	}
	return b, nil
}
