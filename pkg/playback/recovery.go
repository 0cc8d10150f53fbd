package playback

import (
	"errors"
	"fmt"

	"github.com/leonbett/droidmate/pkg/model"
)

// ErrUnrecoverableReplay marks a trace that cannot be continued after an
// unexpected app crash.
var ErrUnrecoverableReplay = errors.New("unrecoverable replay")

// UnrecoverableError reports which trace was abandoned and why.
type UnrecoverableError struct {
	Trace  int
	At     Position
	Reason string
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("trace %d at %s: %s: %s", e.Trace, e.At, ErrUnrecoverableReplay, e.Reason)
}

func (e *UnrecoverableError) Unwrap() error { return ErrUnrecoverableReplay }

// Recovery rewinds a cursor to the nearest preceding reset of the current
// trace after an unexpected crash. Each trace may be rewound at most max times.
type Recovery struct {
	max  int
	used map[int]int
}

// NewRecovery creates a controller allowing max rewinds per trace.
func NewRecovery(max int) *Recovery {
	return &Recovery{max: max, used: make(map[int]int)}
}

// Used returns how many rewinds trace i has consumed.
func (r *Recovery) Used(i int) int {
	return r.used[i]
}

// Rewind moves c back to the nearest reset at or before the most recently
// consumed record. It never moves the cursor outside that record's trace.
func (r *Recovery) Rewind(c *Cursor) (Position, error) {
	trace, from := c.currentTrace()
	at := Position{Trace: trace, Action: from}

	if r.used[trace] >= r.max {
		return at, &UnrecoverableError{
			Trace:  trace,
			At:     at,
			Reason: fmt.Sprintf("recovery budget of %d rewinds exhausted", r.max),
		}
	}

	records := c.Trace(trace)
	for i := from; i >= 0; i-- {
		if i >= len(records) || records[i].Kind != model.KindReset {
			continue
		}
		target := Position{Trace: trace, Action: i}
		if err := c.Rewind(target); err != nil {
			return at, &UnrecoverableError{Trace: trace, At: at, Reason: err.Error()}
		}
		r.used[trace]++
		return target, nil
	}

	return at, &UnrecoverableError{
		Trace:  trace,
		At:     at,
		Reason: "no reset precedes the crash in this trace",
	}
}

// currentTrace returns the trace the crash belongs to and the index from
// which to search backwards for a reset.
func (c *Cursor) currentTrace() (trace, from int) {
	if last, ok := c.Last(); ok {
		return last.Trace, last.Action
	}
	return c.pos.Trace, c.pos.Action - 1
}
