package playback

import (
	"context"
	"errors"

	"github.com/leonbett/droidmate/pkg/diag"
	"github.com/leonbett/droidmate/pkg/model"
)

// Defaults for Options fields left zero.
const (
	DefaultBackSimilarity = 0.95
	DefaultMaxRecoveries  = 3
)

// StateSource resolves recorded state ids to the snapshot seen at recording
// time. model.PackageStore implements it.
type StateSource interface {
	StateAtRecordingTime(ctx context.Context, id string) (model.State, error)
}

// Options configures an Engine.
type Options struct {
	// BackSimilarity is the minimum Similarity between the live screen and
	// the recorded post-back screen at which a recorded back press is
	// replayed without further checks.
	BackSimilarity float64

	// MaxRecoveries bounds crash rewinds per trace.
	MaxRecoveries int

	// Sink receives diagnostics; nil discards them.
	Sink diag.Sink
}

// Stats summarizes what a session has done so far.
type Stats struct {
	Decisions       int        `json:"decisions"`
	Replayed        int        `json:"replayed"`
	Skipped         []Position `json:"skipped,omitempty"`
	RedundantBacks  int        `json:"redundant_backs"`
	DeferredRetries int        `json:"deferred_retries"`
	Recoveries      int        `json:"recoveries"`
	Unrecoverable   []int      `json:"unrecoverable,omitempty"`
	ReplayRatio     float64    `json:"replay_ratio"`
}

// skipRecord is the most recently bypassed click.
type skipRecord struct {
	rec model.ActionRecord
	pos Position
}

// session is the mutable replay state. It belongs to exactly one Engine and
// is passed explicitly to every resolution step.
type session struct {
	cursor   *Cursor
	skipped  *skipRecord
	recovery *Recovery
	stats    Stats
	replayed map[Position]bool
	clicks   int
}

// Engine replays recorded traces. An Engine is not safe for concurrent use;
// concurrent sessions need independent engines.
type Engine struct {
	states StateSource
	opts   Options
	s      session
}

// New creates an engine over traces. The traces are only read.
func New(traces []model.Trace, states StateSource, opts Options) *Engine {
	if opts.BackSimilarity <= 0 {
		opts.BackSimilarity = DefaultBackSimilarity
	}
	if opts.MaxRecoveries <= 0 {
		opts.MaxRecoveries = DefaultMaxRecoveries
	}
	if opts.Sink == nil {
		opts.Sink = diag.Discard
	}

	clicks := 0
	for _, t := range traces {
		for _, r := range t {
			if r.Kind == model.KindClick {
				clicks++
			}
		}
	}

	return &Engine{
		states: states,
		opts:   opts,
		s: session{
			cursor:   NewCursor(traces),
			recovery: NewRecovery(opts.MaxRecoveries),
			replayed: make(map[Position]bool),
			clicks:   clicks,
		},
	}
}

// Decide returns the next concrete action for the live state. It may consume
// several recorded actions, but never more than remain. An unexpected crash
// that cannot be rewound abandons the current trace and is returned as an
// *UnrecoverableError with a zero Action; the next call continues with the
// following trace.
func (e *Engine) Decide(ctx context.Context, live LiveState) (Action, error) {
	s := &e.s
	s.stats.Decisions++

	if !s.cursor.IsComplete() && live.HasCrashDialog() && !e.crashAnticipated(ctx, s) {
		if err := e.recover(s); err != nil {
			return Action{}, err
		}
	}

	limit := s.cursor.Remaining() + 1
	for i := 0; i < limit; i++ {
		if s.cursor.IsComplete() {
			return e.emit(Action{Kind: ActionTerminate}), nil
		}
		rec, pos, _ := s.cursor.Advance()
		if act, ok := e.resolve(ctx, s, live, rec, pos); ok {
			return e.emit(act), nil
		}
	}
	return e.emit(Action{Kind: ActionTerminate}), nil
}

// resolve maps one consumed record to a concrete action, or reports that the
// record was skipped.
func (e *Engine) resolve(ctx context.Context, s *session, live LiveState, rec model.ActionRecord, pos Position) (Action, bool) {
	base := Action{Record: &rec, Position: &pos}

	switch rec.Kind {
	case model.KindClick:
		conf, w := Match(rec.Target, live)
		if conf > ConfidenceNone {
			if s.skipped != nil && s.skipped.pos == pos {
				s.skipped = nil
			}
			s.replayed[pos] = true
			base.Kind, base.Widget, base.Confidence, base.Tag = ActionClick, w, conf, conf.Tag()
			return base, true
		}
		s.stats.Skipped = append(s.stats.Skipped, pos)
		if s.skipped != nil {
			if act, ok := e.retrySkipped(ctx, s, live); ok {
				return act, true
			}
		}
		s.skipped = &skipRecord{rec: rec, pos: pos}
		e.opts.Sink.Emit(diag.EventSkip, map[string]any{
			"trace":  pos.Trace,
			"action": pos.Action,
			"record": rec.String(),
			"reason": "no matching widget",
		})
		return Action{}, false

	case model.KindTerminate:
		base.Kind = ActionTerminate
		return base, true

	case model.KindReset:
		base.Kind = ActionReset
		return base, true

	case model.KindPressBack:
		if live.IsHomeScreen() {
			s.stats.RedundantBacks++
			e.opts.Sink.Emit(diag.EventRedundantBack, map[string]any{
				"trace":  pos.Trace,
				"action": pos.Action,
				"reason": "home screen",
			})
			return Action{}, false
		}
		if e.backSimilarity(ctx, live, rec) >= e.opts.BackSimilarity {
			base.Kind = ActionPressBack
			return base, true
		}
		if next, ok := s.cursor.Peek(); ok && next.Kind == model.KindClick {
			if conf, _ := Match(next.Target, live); conf > ConfidenceNone {
				s.stats.RedundantBacks++
				e.opts.Sink.Emit(diag.EventRedundantBack, map[string]any{
					"trace":  pos.Trace,
					"action": pos.Action,
					"reason": "next click already reachable",
				})
				return Action{}, false
			}
		}
		base.Kind = ActionPressBack
		return base, true

	case model.KindOther:
		base.Kind = ActionReplay
		base.Widget = rec.Target
		return base, true
	}

	// Unknown kinds are rejected by model validation; replay them verbatim.
	base.Kind = ActionReplay
	base.Widget = rec.Target
	return base, true
}

// retrySkipped executes the pending skipped click instead of moving on when
// it now matches better than the upcoming record.
func (e *Engine) retrySkipped(ctx context.Context, s *session, live LiveState) (Action, bool) {
	prev := s.skipped
	prevConf, prevWidget := Match(prev.rec.Target, live)
	if prevConf == ConfidenceNone {
		return Action{}, false
	}

	next, hasNext := s.cursor.Peek()
	nextConf := ConfidenceNone
	if hasNext && next.Kind == model.KindClick {
		nextConf, _ = Match(next.Target, live)
	}
	if prevConf <= nextConf || !e.continuesTo(ctx, prev.rec, next, hasNext) {
		return Action{}, false
	}

	s.skipped = nil
	s.replayed[prev.pos] = true
	s.stats.DeferredRetries++
	e.opts.Sink.Emit(diag.EventDeferredRetry, map[string]any{
		"trace":      prev.pos.Trace,
		"action":     prev.pos.Action,
		"record":     prev.rec.String(),
		"confidence": float64(prevConf),
	})
	rec, pos := prev.rec, prev.pos
	return Action{
		Kind:       ActionClick,
		Widget:     prevWidget,
		Confidence: prevConf,
		Tag:        TagPreviouslySkipped,
		Record:     &rec,
		Position:   &pos,
	}, true
}

// continuesTo reports whether the upcoming record is still reachable after
// executing skipped: its target must be actionable in the state skipped led
// to at recording time.
func (e *Engine) continuesTo(ctx context.Context, skipped, next model.ActionRecord, hasNext bool) bool {
	if !hasNext || next.Target == nil {
		return true
	}
	st, ok := e.lookup(ctx, skipped.ResultState)
	if !ok {
		return false
	}
	sig, bySig := next.Target.StrictSignature(), next.Target.HasIdentity()
	for _, w := range st.Widgets() {
		if w.Actionable && (w.ID == next.Target.ID || (bySig && w.StrictSignature() == sig)) {
			return true
		}
	}
	return false
}

func (e *Engine) backSimilarity(ctx context.Context, live LiveState, rec model.ActionRecord) float64 {
	st, ok := e.lookup(ctx, rec.ResultState)
	if !ok {
		return 0
	}
	return Similarity(live, st)
}

// crashAnticipated reports whether the trace itself expects the crash dialog:
// either the last replayed record led to a crash at recording time, or the
// next record restarts the app anyway.
func (e *Engine) crashAnticipated(ctx context.Context, s *session) bool {
	if last, ok := s.cursor.Last(); ok {
		if rec, ok := s.cursor.At(last); ok && rec.ResultState != "" {
			if st, ok := e.lookup(ctx, rec.ResultState); ok && st.HasCrashDialog() {
				return true
			}
		}
	}
	next, ok := s.cursor.Peek()
	return ok && next.Kind == model.KindReset
}

func (e *Engine) recover(s *session) error {
	to, err := s.recovery.Rewind(s.cursor)
	if err != nil {
		var ue *UnrecoverableError
		if errors.As(err, &ue) {
			s.cursor.SkipTrace(ue.Trace)
			s.stats.Unrecoverable = append(s.stats.Unrecoverable, ue.Trace)
			e.opts.Sink.Emit(diag.EventUnrecoverable, map[string]any{
				"trace":  ue.Trace,
				"action": ue.At.Action,
				"reason": ue.Reason,
			})
		}
		return err
	}
	// The rewound span will be replayed again, including any skip inside it.
	if s.skipped != nil && !s.skipped.pos.Before(to) {
		s.skipped = nil
	}
	s.stats.Recoveries++
	e.opts.Sink.Emit(diag.EventRecovery, map[string]any{
		"trace":  to.Trace,
		"action": to.Action,
	})
	return nil
}

func (e *Engine) lookup(ctx context.Context, id string) (model.State, bool) {
	if id == "" || e.states == nil {
		return model.State{}, false
	}
	st, err := e.states.StateAtRecordingTime(ctx, id)
	if err != nil {
		e.opts.Sink.Emit(diag.EventStateLookupFault, map[string]any{
			"state": id,
			"error": err.Error(),
		})
		return model.State{}, false
	}
	return st, true
}

func (e *Engine) emit(a Action) Action {
	if a.Kind == ActionClick {
		e.s.stats.Replayed++
	}
	data := map[string]any{"kind": string(a.Kind)}
	if a.Position != nil {
		data["trace"] = a.Position.Trace
		data["action"] = a.Position.Action
	}
	if a.Widget != nil {
		data["widget"] = a.Widget.ID
	}
	if a.Tag != "" {
		data["tag"] = a.Tag
	}
	if a.Confidence > 0 {
		data["confidence"] = float64(a.Confidence)
	}
	e.opts.Sink.Emit(diag.EventDecision, data)
	return a
}

// Stats returns a copy of the session statistics.
func (e *Engine) Stats() Stats {
	st := e.s.stats
	st.Skipped = append([]Position(nil), st.Skipped...)
	st.Unrecoverable = append([]int(nil), st.Unrecoverable...)
	st.ReplayRatio = e.ReplayRatio()
	return st
}

// ReplayRatio is the fraction of recorded clicks that were replayed at least
// once. A session without recorded clicks has ratio 0.
func (e *Engine) ReplayRatio() float64 {
	if e.s.clicks == 0 {
		return 0
	}
	return float64(len(e.s.replayed)) / float64(e.s.clicks)
}

// Position returns the position of the next record to consume.
func (e *Engine) Position() Position {
	return e.s.cursor.Position()
}

// Peek returns the next recorded action without consuming it.
func (e *Engine) Peek() (model.ActionRecord, bool) {
	return e.s.cursor.Peek()
}

// Done reports whether every recorded action has been consumed.
func (e *Engine) Done() bool {
	return e.s.cursor.IsComplete()
}

// Skipped returns the pending skipped record, if any.
func (e *Engine) Skipped() (model.ActionRecord, Position, bool) {
	if e.s.skipped == nil {
		return model.ActionRecord{}, Position{}, false
	}
	return e.s.skipped.rec, e.s.skipped.pos, true
}

// Remaining returns the number of unconsumed recorded actions.
func (e *Engine) Remaining() int {
	return e.s.cursor.Remaining()
}

// Total returns the number of recorded actions.
func (e *Engine) Total() int {
	return e.s.cursor.Len()
}
