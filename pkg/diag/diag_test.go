package diag

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "sess-1")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	if err := w.Emit(EventSessionStart, map[string]any{"package": "com.example.notes"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := w.Emit(EventDecision, map[string]any{"kind": "click", "trace": 0}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("lines = %d, want 2", n)
	}

	events, err := ReadEvents(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != EventSessionStart || events[0].SessionID != "sess-1" {
		t.Errorf("event[0] = %+v", events[0])
	}
	if !events[1].Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", events[1].Timestamp, fixed)
	}
	// JSON numbers decode as float64.
	if events[1].Data["trace"] != float64(0) {
		t.Errorf("trace = %v, want 0", events[1].Data["trace"])
	}
}

func TestFileWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.jsonl")

	for i := 0; i < 2; i++ {
		w, f, err := NewFileWriter(path, "s")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := w.Emit(EventRecovery, nil); err != nil {
			t.Fatalf("emit: %v", err)
		}
		f.Close()
	}

	events, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}
}

func TestReadEventsRejectsGarbage(t *testing.T) {
	_, err := ReadEvents(strings.NewReader("{\"type\":\"skip\"}\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "event 2") {
		t.Errorf("err = %v, want failure on event 2", err)
	}
}

func TestReadFileMissing(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "nope.jsonl")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Emit(EventType, map[string]any) error {
	f.calls++
	return errors.New("disk full")
}

func TestTeeCallsEverySink(t *testing.T) {
	bad := &failingSink{}
	rec := &Recorder{}

	err := Tee(bad, rec, Discard).Emit(EventSkip, map[string]any{"trace": 1})
	if err == nil {
		t.Error("expected first error to be returned")
	}
	if bad.calls != 1 {
		t.Errorf("failing sink calls = %d, want 1", bad.calls)
	}
	if got := rec.OfType(EventSkip); len(got) != 1 {
		t.Errorf("recorded skips = %d, want 1", len(got))
	}
}
