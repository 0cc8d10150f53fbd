package explore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leonbett/droidmate/pkg/device"
	"github.com/leonbett/droidmate/pkg/diag"
	"github.com/leonbett/droidmate/pkg/model"
	"github.com/leonbett/droidmate/pkg/playback"
)

const pkgName = "com.example.notes"

type fixture struct {
	engine *playback.Engine
	sim    *device.Simulator
}

func newFixture(t *testing.T, opts playback.Options) fixture {
	t.Helper()
	store, err := model.OpenStore("../../testdata/models/recorded.yaml")
	if err != nil {
		t.Fatalf("open recorded: %v", err)
	}
	traces, err := store.TracesForPackage(pkgName)
	if err != nil {
		t.Fatalf("traces: %v", err)
	}
	states, err := store.Package(pkgName)
	if err != nil {
		t.Fatalf("package: %v", err)
	}

	live, err := model.LoadFile("../../testdata/models/live.yaml")
	if err != nil {
		t.Fatalf("load live: %v", err)
	}
	sim, err := device.NewSimulator(&live.Apps[0], nil)
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}
	return fixture{engine: playback.New(traces, states, opts), sim: sim}
}

func TestRunReplaysDriftedApp(t *testing.T) {
	rec := &diag.Recorder{}
	f := newFixture(t, playback.Options{Sink: rec})

	res, err := NewRunner(f.sim, f.engine, Options{Sink: rec}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", res.Status)
	}

	want := []string{"reset", "click(w-new) [1.0]", "click(w-save-v2) [0.5]", "click(w-settings-v2) [0.6]",
		"press_back", "reset", "click(w-settings-v2) [0.6]", "terminate"}
	if len(res.Steps) != len(want) {
		t.Fatalf("steps = %d, want %d: %+v", len(res.Steps), len(want), res.Steps)
	}
	for i, w := range want {
		if got := res.Steps[i].Action.String(); got != w {
			t.Errorf("step %d = %q, want %q", i, got, w)
		}
	}

	if res.Stats.ReplayRatio != 0.8 {
		t.Errorf("replay ratio = %v, want 0.8", res.Stats.ReplayRatio)
	}
	if len(res.Stats.Skipped) != 1 || res.Stats.Skipped[0] != (playback.Position{Trace: 1, Action: 2}) {
		t.Errorf("skipped = %v, want [(1,2)]", res.Stats.Skipped)
	}
	if !f.sim.Stopped() {
		t.Error("device should be stopped after terminate")
	}
	if len(rec.OfType(diag.EventSessionStart)) != 1 || len(rec.OfType(diag.EventSessionComplete)) != 1 {
		t.Error("expected one session_start and one session_complete event")
	}
}

func TestRunRecoversFromCrash(t *testing.T) {
	f := newFixture(t, playback.Options{})
	r := NewRunner(f.sim, f.engine, Options{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, _, err := r.Step(ctx); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if err := f.sim.Jump("crash"); err != nil {
		t.Fatalf("jump: %v", err)
	}

	step, _, err := r.Step(ctx)
	if err != nil {
		t.Fatalf("step after crash: %v", err)
	}
	if step.State != "crash" || step.Action.Kind != playback.ActionReset {
		t.Errorf("step = %s on %q, want reset on crash", step.Action, step.State)
	}

	res, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusCompleted || res.Stats.Recoveries != 1 {
		t.Errorf("status = %q recoveries = %d, want completed with 1 recovery", res.Status, res.Stats.Recoveries)
	}
}

func TestRunMaxSteps(t *testing.T) {
	rec := &diag.Recorder{}
	f := newFixture(t, playback.Options{})

	res, err := NewRunner(f.sim, f.engine, Options{MaxSteps: 3, Sink: rec}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusMaxSteps || len(res.Steps) != 3 {
		t.Errorf("status = %q steps = %d, want max_steps after 3", res.Status, len(res.Steps))
	}
	done := rec.OfType(diag.EventSessionComplete)
	if len(done) != 1 || done[0].Data["status"] != "max_steps" {
		t.Errorf("session_complete = %+v", done)
	}
}

func TestRunRetriesFailedActions(t *testing.T) {
	rec := &diag.Recorder{}
	f := newFixture(t, playback.Options{})
	f.sim.FailNext(errors.New("adb timeout"))

	res, err := NewRunner(f.sim, f.engine, Options{ActionRetries: 2, Sink: rec}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Steps[0].Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Steps[0].Attempts)
	}
	if len(rec.OfType(diag.EventActionFailed)) != 1 {
		t.Error("expected one action_failed event")
	}
}

func TestRunFailsAfterRetries(t *testing.T) {
	f := newFixture(t, playback.Options{})
	boom := errors.New("adb: device offline")
	f.sim.FailNext(boom, boom, boom)

	res, err := NewRunner(f.sim, f.engine, Options{ActionRetries: 2}).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want device failure", err)
	}
	if res.Status != StatusError {
		t.Errorf("status = %q, want error", res.Status)
	}
	if res.Steps[0].Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Steps[0].Attempts)
	}
}

func TestRunCanceled(t *testing.T) {
	f := newFixture(t, playback.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewRunner(f.sim, f.engine, Options{}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Status != StatusCanceled {
		t.Errorf("status = %q, want canceled", res.Status)
	}
}

// scriptedDecider returns canned decisions.
type scriptedDecider struct {
	script []func() (playback.Action, error)
}

func (d *scriptedDecider) Decide(context.Context, playback.LiveState) (playback.Action, error) {
	next := d.script[0]
	if len(d.script) > 1 {
		d.script = d.script[1:]
	}
	return next()
}

func (d *scriptedDecider) Stats() playback.Stats { return playback.Stats{} }

func TestRunContinuesAfterUnrecoverableTrace(t *testing.T) {
	f := newFixture(t, playback.Options{})
	d := &scriptedDecider{script: []func() (playback.Action, error){
		func() (playback.Action, error) {
			return playback.Action{}, &playback.UnrecoverableError{Trace: 0, Reason: "no reset"}
		},
		func() (playback.Action, error) { return playback.Action{Kind: playback.ActionTerminate}, nil },
	}}

	res, err := NewRunner(f.sim, d, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", res.Status)
	}
	if len(res.Errors) != 1 || len(res.Steps) != 2 {
		t.Errorf("errors = %v steps = %d, want 1 error over 2 steps", res.Errors, len(res.Steps))
	}
}

func TestStepAfterDoneIsNoop(t *testing.T) {
	d := &scriptedDecider{script: []func() (playback.Action, error){
		func() (playback.Action, error) { return playback.Action{Kind: playback.ActionTerminate}, nil },
	}}
	f := newFixture(t, playback.Options{})
	r := NewRunner(f.sim, d, Options{})

	if _, done, err := r.Step(context.Background()); err != nil || !done {
		t.Fatalf("first step: done=%v err=%v", done, err)
	}
	if _, done, err := r.Step(context.Background()); err != nil || !done {
		t.Errorf("second step: done=%v err=%v, want no-op", done, err)
	}
	if len(r.Steps()) != 1 {
		t.Errorf("steps = %d, want 1", len(r.Steps()))
	}
}

// stallingDevice hangs the first stalls Execute calls until their context
// ends, then behaves like the wrapped simulator.
type stallingDevice struct {
	*device.Simulator
	stalls int
}

func (d *stallingDevice) Execute(ctx context.Context, a playback.Action) error {
	if d.stalls != 0 {
		d.stalls--
		<-ctx.Done()
		return ctx.Err()
	}
	return d.Simulator.Execute(ctx, a)
}

func TestRunActionTimeoutRetries(t *testing.T) {
	rec := &diag.Recorder{}
	f := newFixture(t, playback.Options{})
	dev := &stallingDevice{Simulator: f.sim, stalls: 1}

	res, err := NewRunner(dev, f.engine, Options{
		ActionRetries: 1,
		ActionTimeout: 20 * time.Millisecond,
		Sink:          rec,
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", res.Status)
	}
	if res.Steps[0].Attempts != 2 {
		t.Errorf("first step attempts = %d, want 2", res.Steps[0].Attempts)
	}
	failed := rec.OfType(diag.EventActionFailed)
	if len(failed) != 1 || failed[0].Data["error"] != context.DeadlineExceeded.Error() {
		t.Errorf("action_failed events = %+v", failed)
	}
}

func TestRunActionTimeoutExhausted(t *testing.T) {
	f := newFixture(t, playback.Options{})
	dev := &stallingDevice{Simulator: f.sim, stalls: -1}

	start := time.Now()
	res, err := NewRunner(dev, f.engine, Options{
		ActionRetries: 1,
		ActionTimeout: 10 * time.Millisecond,
	}).Run(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if res.Status != StatusError {
		t.Errorf("status = %q, want error", res.Status)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("run took %v; timeout not applied", elapsed)
	}
}
