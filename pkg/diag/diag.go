// Package diag implements the replay engine's append-only JSONL diagnostics stream.
package diag

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType enumerates all diagnostic event types.
type EventType string

const (
	EventSessionStart     EventType = "session_start"
	EventSessionComplete  EventType = "session_complete"
	EventDecision         EventType = "decision"
	EventSkip             EventType = "skip"
	EventRedundantBack    EventType = "redundant_back"
	EventDeferredRetry    EventType = "deferred_retry"
	EventRecovery         EventType = "recovery"
	EventUnrecoverable    EventType = "unrecoverable"
	EventStateLookupFault EventType = "state_lookup_failed"
	EventActionFailed     EventType = "action_failed"
)

// Event is a single diagnostic event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink receives diagnostic events. Events are advisory: replay decisions never
// depend on whether an Emit succeeded.
type Sink interface {
	Emit(eventType EventType, data map[string]any) error
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(EventType, map[string]any) error { return nil }

// Writer writes events to an append-only JSONL stream.
type Writer struct {
	mu        sync.Mutex
	w         io.Writer
	sessionID string
	enc       *json.Encoder
	now       func() time.Time
}

// NewWriter creates a writer that encodes events to w.
func NewWriter(w io.Writer, sessionID string) *Writer {
	return &Writer{
		w:         w,
		sessionID: sessionID,
		enc:       json.NewEncoder(w),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewFileWriter creates a writer that appends to a JSONL file. The caller
// closes the returned file.
func NewFileWriter(path, sessionID string) (*Writer, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open diagnostics file: %w", err)
	}
	return NewWriter(f, sessionID), f, nil
}

// Emit writes a single event.
func (dw *Writer) Emit(eventType EventType, data map[string]any) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	return dw.enc.Encode(Event{
		Type:      eventType,
		Timestamp: dw.now(),
		SessionID: dw.sessionID,
		Data:      data,
	})
}

// Recorder keeps events in memory. Used by the viewer and in tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

// Emit appends an event.
func (r *Recorder) Emit(eventType EventType, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data})
	return nil
}

// OfType returns the recorded events of one type, in order.
func (r *Recorder) OfType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Tee fans events out to several sinks. The first error is returned after
// every sink has been called.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Emit(eventType EventType, data map[string]any) error {
	var first error
	for _, s := range t {
		if err := s.Emit(eventType, data); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ReadEvents parses a JSONL diagnostics stream.
func ReadEvents(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var events []Event
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, fmt.Errorf("event %d: invalid JSON: %w", line, err)
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read diagnostics: %w", err)
	}
	return events, nil
}

// ReadFile parses a JSONL diagnostics file.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics file: %w", err)
	}
	defer f.Close()
	return ReadEvents(f)
}
