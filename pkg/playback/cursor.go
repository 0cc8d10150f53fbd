package playback

import (
	"fmt"

	"github.com/leonbett/droidmate/pkg/model"
)

// Position addresses one recorded action.
type Position struct {
	Trace  int `json:"trace"`
	Action int `json:"action"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Trace, p.Action)
}

// Before reports whether p comes earlier than q in recorded order.
func (p Position) Before(q Position) bool {
	return p.Trace < q.Trace || (p.Trace == q.Trace && p.Action < q.Action)
}

// Cursor walks the recorded traces in order. It always rests on an
// unconsumed record or past the end; empty traces are stepped over.
type Cursor struct {
	traces  []model.Trace
	pos     Position
	last    Position
	hasLast bool
}

// NewCursor creates a cursor at the first recorded action.
func NewCursor(traces []model.Trace) *Cursor {
	c := &Cursor{traces: traces}
	c.normalize()
	return c
}

func (c *Cursor) normalize() {
	for c.pos.Trace < len(c.traces) && c.pos.Action >= len(c.traces[c.pos.Trace]) {
		c.pos.Trace++
		c.pos.Action = 0
	}
}

// IsComplete reports whether every record has been consumed.
func (c *Cursor) IsComplete() bool {
	return c.pos.Trace >= len(c.traces)
}

// Current returns the record at the cursor without consuming it.
func (c *Cursor) Current() (model.ActionRecord, bool) {
	if c.IsComplete() {
		return model.ActionRecord{}, false
	}
	return c.traces[c.pos.Trace][c.pos.Action], true
}

// Peek is Current under the name the engine uses for look-ahead.
func (c *Cursor) Peek() (model.ActionRecord, bool) {
	return c.Current()
}

// Advance consumes the record at the cursor and returns it with its position.
// Once complete, Advance is a no-op returning false.
func (c *Cursor) Advance() (model.ActionRecord, Position, bool) {
	rec, ok := c.Current()
	if !ok {
		return model.ActionRecord{}, c.pos, false
	}
	at := c.pos
	c.last, c.hasLast = at, true
	c.pos.Action++
	c.normalize()
	return rec, at, true
}

// Position returns the position of the next record to consume.
func (c *Cursor) Position() Position {
	return c.pos
}

// Last returns the position of the most recently consumed record.
func (c *Cursor) Last() (Position, bool) {
	return c.last, c.hasLast
}

// At returns the record at p.
func (c *Cursor) At(p Position) (model.ActionRecord, bool) {
	if p.Trace < 0 || p.Trace >= len(c.traces) || p.Action < 0 || p.Action >= len(c.traces[p.Trace]) {
		return model.ActionRecord{}, false
	}
	return c.traces[p.Trace][p.Action], true
}

// Trace returns the records of trace i.
func (c *Cursor) Trace(i int) model.Trace {
	if i < 0 || i >= len(c.traces) {
		return nil
	}
	return c.traces[i]
}

// Rewind moves the cursor back to p, which must lie in the trace of the last
// consumed record at or before it.
func (c *Cursor) Rewind(p Position) error {
	if _, ok := c.At(p); !ok {
		return fmt.Errorf("rewind to %s: no such record", p)
	}
	if p.Trace > c.pos.Trace || (p.Trace == c.pos.Trace && p.Action > c.pos.Action) {
		return fmt.Errorf("rewind to %s: position is ahead of cursor %s", p, c.pos)
	}
	c.pos = p
	c.hasLast = false
	return nil
}

// SkipTrace abandons trace i and moves the cursor to the start of the next one.
func (c *Cursor) SkipTrace(i int) {
	if i < c.pos.Trace {
		return
	}
	c.pos = Position{Trace: i + 1}
	c.hasLast = false
	c.normalize()
}

// Remaining counts the unconsumed records.
func (c *Cursor) Remaining() int {
	if c.IsComplete() {
		return 0
	}
	n := len(c.traces[c.pos.Trace]) - c.pos.Action
	for _, t := range c.traces[c.pos.Trace+1:] {
		n += len(t)
	}
	return n
}

// Len counts all records across all traces.
func (c *Cursor) Len() int {
	n := 0
	for _, t := range c.traces {
		n += len(t)
	}
	return n
}
