package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Playback.BackSimilarity != 0.95 {
		t.Errorf("back_similarity = %v, want 0.95", cfg.Playback.BackSimilarity)
	}
	if cfg.Playback.MaxRecoveries != 3 || cfg.Run.MaxSteps != 1000 || cfg.Run.ActionRetries != 2 {
		t.Errorf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
playback:
  back_similarity: 0.8
detect:
  crash_dialog: 'any(texts, {# contains "keeps stopping"})'
run:
  trace: out/diag.jsonl
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Playback.BackSimilarity != 0.8 {
		t.Errorf("back_similarity = %v, want 0.8", cfg.Playback.BackSimilarity)
	}
	if cfg.Playback.MaxRecoveries != 3 {
		t.Errorf("max_recoveries = %d, want default 3", cfg.Playback.MaxRecoveries)
	}
	if !strings.Contains(cfg.Detect.CrashDialog, "keeps stopping") {
		t.Errorf("crash_dialog = %q", cfg.Detect.CrashDialog)
	}
	if cfg.Run.Trace != "out/diag.jsonl" || cfg.Path != path {
		t.Errorf("run = %+v, path = %q", cfg.Run, cfg.Path)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "playback:\n  back_similarty: 0.5\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "run:\n  max_steps: 50\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Discover(nested)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if cfg.Run.MaxSteps != 50 {
		t.Errorf("max_steps = %d, want 50", cfg.Run.MaxSteps)
	}
}

func TestDiscoverFallsBackToDefaults(t *testing.T) {
	cfg, err := Discover(t.TempDir())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if cfg.Run.MaxSteps != 1000 {
		t.Errorf("max_steps = %d, want default", cfg.Run.MaxSteps)
	}
}

func TestApplyEnvBeatsFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "playback:\n  max_recoveries: 5\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	err = ApplyEnv(&cfg, map[string]string{
		"DROIDREPLAY_MAX_RECOVERIES":  "1",
		"DROIDREPLAY_BACK_SIMILARITY": "0.9",
		"DROIDREPLAY_TRACE":           "/tmp/t.jsonl",
		"DROIDREPLAY_ACTION_TIMEOUT":  "750ms",
	})
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Playback.MaxRecoveries != 1 || cfg.Playback.BackSimilarity != 0.9 {
		t.Errorf("playback = %+v", cfg.Playback)
	}
	if cfg.Run.Trace != "/tmp/t.jsonl" {
		t.Errorf("trace = %q", cfg.Run.Trace)
	}
	if cfg.Run.ActionTimeout != 750*time.Millisecond {
		t.Errorf("action_timeout = %v, want 750ms", cfg.Run.ActionTimeout)
	}
	if cfg.Run.MaxSteps != 1000 {
		t.Errorf("unset variable changed max_steps to %d", cfg.Run.MaxSteps)
	}
}

func TestApplyEnvRejectsMalformed(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, map[string]string{"DROIDREPLAY_MAX_STEPS": "lots"})
	if err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Errorf("err = %v, want parse env error", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Playback.BackSimilarity = 1.5
	cfg.Run.ActionRetries = -1
	cfg.Run.ActionTimeout = -time.Second

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"back_similarity", "action_retries", "action_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadFileActionTimeout(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "run:\n  action_timeout: 5s\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.ActionTimeout != 5*time.Second {
		t.Errorf("action_timeout = %v, want 5s", cfg.Run.ActionTimeout)
	}
}
