// Package explore drives the observe, decide, execute loop between a replay
// engine and a device.
package explore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/leonbett/droidmate/pkg/diag"
	"github.com/leonbett/droidmate/pkg/model"
	"github.com/leonbett/droidmate/pkg/playback"
)

// Device is the GUI under test.
type Device interface {
	Observe(ctx context.Context) (model.State, error)
	Execute(ctx context.Context, a playback.Action) error
}

// Decider chooses the next action. *playback.Engine implements it.
type Decider interface {
	Decide(ctx context.Context, live playback.LiveState) (playback.Action, error)
	Stats() playback.Stats
}

// Status is the final state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusMaxSteps  Status = "max_steps"
	StatusCanceled  Status = "canceled"
	StatusError     Status = "error"
)

// Options bounds a run. Zero values select the defaults.
type Options struct {
	MaxSteps      int
	ActionRetries int
	ActionTimeout time.Duration
	SessionID     string
	Sink          diag.Sink
}

// StepRecord is one loop iteration.
type StepRecord struct {
	Index     int             `json:"index"`
	State     string          `json:"state"`
	Action    playback.Action `json:"action"`
	Attempts  int             `json:"attempts,omitempty"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
}

// Result summarizes a run.
type Result struct {
	SessionID string         `json:"session_id"`
	Status    Status         `json:"status"`
	Steps     []StepRecord   `json:"steps"`
	Errors    []string       `json:"errors,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Stats     playback.Stats `json:"stats"`
}

// GenerateSessionID creates an id in format YYYYMMDDTHHmmss-xxxx.
func GenerateSessionID() string {
	ts := time.Now().Format("20060102T150405")
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%x", ts, suffix)
}

// Runner executes one session. It is not safe for concurrent use.
type Runner struct {
	dev     Device
	engine  Decider
	opts    Options
	started time.Time
	ended   time.Time
	status  Status
	steps   []StepRecord
	errs    []string
}

// NewRunner creates a runner.
func NewRunner(dev Device, engine Decider, opts Options) *Runner {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 1000
	}
	if opts.ActionRetries < 0 {
		opts.ActionRetries = 0
	}
	if opts.SessionID == "" {
		opts.SessionID = GenerateSessionID()
	}
	if opts.Sink == nil {
		opts.Sink = diag.Discard
	}
	return &Runner{dev: dev, engine: engine, opts: opts}
}

// Run loops until the engine terminates, the step budget is exhausted, the
// context is canceled or the device fails.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	for {
		_, done, err := r.Step(ctx)
		if err != nil {
			return r.Result(), err
		}
		if done {
			return r.Result(), nil
		}
	}
}

// Step performs a single observe, decide, execute iteration. done is true
// once the run has finished; further calls are no-ops.
func (r *Runner) Step(ctx context.Context) (StepRecord, bool, error) {
	if r.Done() {
		return StepRecord{}, true, nil
	}
	if r.status == "" {
		r.start()
	}
	if err := ctx.Err(); err != nil {
		r.finish(StatusCanceled)
		return StepRecord{}, true, err
	}
	if len(r.steps) >= r.opts.MaxSteps {
		r.finish(StatusMaxSteps)
		return StepRecord{}, true, nil
	}

	rec := StepRecord{Index: len(r.steps), StartedAt: time.Now()}
	live, err := r.dev.Observe(ctx)
	if err != nil {
		return rec, true, r.fail(ctx, fmt.Errorf("observe: %w", err))
	}
	rec.State = live.ID

	act, err := r.engine.Decide(ctx, live)
	if err != nil {
		if !errors.Is(err, playback.ErrUnrecoverableReplay) {
			return rec, true, r.fail(ctx, fmt.Errorf("decide: %w", err))
		}
		rec.Error = err.Error()
		rec.EndedAt = time.Now()
		r.errs = append(r.errs, err.Error())
		r.steps = append(r.steps, rec)
		return rec, false, nil
	}
	rec.Action = act

	attempts, err := r.execute(ctx, act)
	rec.Attempts = attempts
	rec.EndedAt = time.Now()
	if err != nil {
		rec.Error = err.Error()
		r.steps = append(r.steps, rec)
		return rec, true, r.fail(ctx, fmt.Errorf("execute %s: %w", act, err))
	}
	r.steps = append(r.steps, rec)

	if act.Kind == playback.ActionTerminate {
		r.finish(StatusCompleted)
		return rec, true, nil
	}
	return rec, false, nil
}

func (r *Runner) execute(ctx context.Context, act playback.Action) (int, error) {
	var err error
	attempt := 0
	for attempt <= r.opts.ActionRetries {
		attempt++
		actx := ctx
		cancel := context.CancelFunc(func() {})
		if r.opts.ActionTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, r.opts.ActionTimeout)
		}
		err = r.dev.Execute(actx, act)
		cancel()
		if err == nil {
			return attempt, nil
		}
		r.opts.Sink.Emit(diag.EventActionFailed, map[string]any{
			"action":  act.String(),
			"attempt": attempt,
			"error":   err.Error(),
		})
		if ctx.Err() != nil {
			break
		}
	}
	return attempt, err
}

func (r *Runner) start() {
	r.started = time.Now()
	r.status = StatusRunning
	r.opts.Sink.Emit(diag.EventSessionStart, map[string]any{
		"session_id": r.opts.SessionID,
		"max_steps":  r.opts.MaxSteps,
	})
}

func (r *Runner) fail(ctx context.Context, err error) error {
	r.errs = append(r.errs, err.Error())
	if ctx.Err() != nil {
		r.finish(StatusCanceled)
	} else {
		r.finish(StatusError)
	}
	return err
}

func (r *Runner) finish(status Status) {
	r.status = status
	r.ended = time.Now()
	stats := r.engine.Stats()
	r.opts.Sink.Emit(diag.EventSessionComplete, map[string]any{
		"status":       string(status),
		"steps":        len(r.steps),
		"replay_ratio": stats.ReplayRatio,
		"duration_ms":  r.ended.Sub(r.started).Milliseconds(),
	})
}

// Done reports whether the run has finished.
func (r *Runner) Done() bool {
	return r.status != "" && r.status != StatusRunning
}

// Steps returns the iterations recorded so far.
func (r *Runner) Steps() []StepRecord {
	return append([]StepRecord(nil), r.steps...)
}

// Result returns the run summary. Before the run finishes its status is
// running.
func (r *Runner) Result() *Result {
	status := r.status
	if status == "" {
		status = StatusRunning
	}
	var d time.Duration
	switch {
	case !r.ended.IsZero():
		d = r.ended.Sub(r.started)
	case !r.started.IsZero():
		d = time.Since(r.started)
	}
	return &Result{
		SessionID: r.opts.SessionID,
		Status:    status,
		Steps:     r.Steps(),
		Errors:    append([]string(nil), r.errs...),
		Duration:  d,
		Stats:     r.engine.Stats(),
	}
}
