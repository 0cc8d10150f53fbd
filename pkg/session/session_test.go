package session

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leonbett/droidmate/pkg/config"
	"github.com/leonbett/droidmate/pkg/diag"
	"github.com/leonbett/droidmate/pkg/explore"
)

const (
	recorded = "../../testdata/models/recorded.yaml"
	live     = "../../testdata/models/live.yaml"
)

func TestOpenAndRun(t *testing.T) {
	cfg := config.Default()
	cfg.Run.Trace = filepath.Join(t.TempDir(), "diag.jsonl")

	s, err := Open(Params{RecordedPath: recorded, LivePath: live, Config: cfg, SessionID: "test"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Package != "com.example.notes" {
		t.Errorf("package = %q", s.Package)
	}

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if res.Status != explore.StatusCompleted {
		t.Errorf("status = %q, want completed", res.Status)
	}

	events, err := diag.ReadFile(cfg.Run.Trace)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if len(events) == 0 || events[0].Type != diag.EventSessionStart || events[0].SessionID != "test" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[len(events)-1].Type != diag.EventSessionComplete {
		t.Errorf("last event = %s, want session_complete", events[len(events)-1].Type)
	}
}

func TestOpenHonorsMaxSteps(t *testing.T) {
	cfg := config.Default()
	cfg.Run.MaxSteps = 2
	rec := &diag.Recorder{}

	s, err := Open(Params{RecordedPath: recorded, LivePath: live, Config: cfg, Sink: rec})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	res, _ := s.Run(context.Background())
	if res.Status != explore.StatusMaxSteps {
		t.Errorf("status = %q, want max_steps", res.Status)
	}
	if len(rec.OfType(diag.EventDecision)) != 2 {
		t.Errorf("decisions = %d, want 2", len(rec.OfType(diag.EventDecision)))
	}
}

func TestOpenErrors(t *testing.T) {
	bad := config.Default()
	bad.Playback.BackSimilarity = 0

	tests := []struct {
		name string
		p    Params
		want string
	}{
		{"invalid config", Params{RecordedPath: recorded, LivePath: live, Config: bad}, "back_similarity"},
		{"unknown package", Params{RecordedPath: recorded, LivePath: live, Package: "org.other", Config: config.Default()}, "not found"},
		{"missing live", Params{RecordedPath: recorded, LivePath: "nope.yaml", Config: config.Default()}, "live model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.p)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestOpenRejectsBadExpression(t *testing.T) {
	cfg := config.Default()
	cfg.Detect.CrashDialog = "texts +"
	if _, err := Open(Params{RecordedPath: recorded, LivePath: live, Config: cfg}); err == nil || !strings.Contains(err.Error(), "detect") {
		t.Errorf("err = %v, want detect error", err)
	}
}
