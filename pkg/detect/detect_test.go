package detect

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leonbett/droidmate/pkg/model"
)

func TestDefaultClassifier(t *testing.T) {
	c := Default()

	st, err := c.Classify(model.State{ID: "launcher", HomeScreen: true})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !st.HomeScreen || st.CrashDialog {
		t.Errorf("launcher = home %v crash %v, want home only", st.HomeScreen, st.CrashDialog)
	}

	st, err = c.Classify(model.State{
		ID:    "anr",
		Items: []model.Widget{{ID: "msg", Text: "Notes has stopped"}, {ID: "ok", Text: "OK"}},
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !st.CrashDialog {
		t.Error("dialog mentioning 'has stopped' should be classified as a crash")
	}
}

func TestCustomExpressions(t *testing.T) {
	c, err := New(
		`package == "com.android.launcher"`,
		`"android:id/aerr_close" in resource_ids`,
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	st, err := c.Classify(model.State{ID: "l", Package: "com.android.launcher", HomeScreen: false})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !st.HomeScreen {
		t.Error("launcher package should be the home screen")
	}

	st, err = c.Classify(model.State{
		ID:          "c",
		CrashDialog: true,
		Items:       []model.Widget{{ID: "x", ResourceID: "android:id/aerr_close"}},
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !st.CrashDialog {
		t.Error("aerr_close should mark a crash")
	}

	st, _ = c.Classify(model.State{ID: "plain", CrashDialog: true})
	if st.CrashDialog {
		t.Error("custom expression should override the recorded flag")
	}
}

func TestNewRejectsBadExpressions(t *testing.T) {
	if _, err := New(`widget_count +`, ""); err == nil || !strings.Contains(err.Error(), "home_screen") {
		t.Errorf("err = %v, want home_screen compile error", err)
	}
	if _, err := New("", `widget_count`); err == nil {
		t.Error("expected error for non-bool crash expression")
	}
	if _, err := New("", `unknown_var`); err == nil {
		t.Error("expected error for unknown variable")
	}
}

func TestEnv(t *testing.T) {
	env := Env(model.State{
		Activity: ".Main",
		Items:    []model.Widget{{ID: "a", Text: "Save", ResourceID: "id/save"}, {ID: "b"}},
	})
	if env["widget_count"] != 2 {
		t.Errorf("widget_count = %v, want 2", env["widget_count"])
	}
	if texts := env["texts"].([]string); len(texts) != 1 || texts[0] != "Save" {
		t.Errorf("texts = %v, want [Save]", texts)
	}
}

type stateMap map[string]model.State

func (m stateMap) StateAtRecordingTime(_ context.Context, id string) (model.State, error) {
	st, ok := m[id]
	if !ok {
		return model.State{}, model.ErrNotFound
	}
	return st, nil
}

func TestRecordedStatesAreClassified(t *testing.T) {
	src := Default().Recorded(stateMap{
		"crash": {ID: "crash", Items: []model.Widget{{ID: "msg", Text: "Notes has stopped"}}},
	})

	st, err := src.StateAtRecordingTime(context.Background(), "crash")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !st.CrashDialog {
		t.Error("recorded state mentioning 'has stopped' should be classified as a crash")
	}

	if _, err := src.StateAtRecordingTime(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
