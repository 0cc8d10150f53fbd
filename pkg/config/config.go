// Package config loads droidreplay.yaml and applies environment overrides.
// Precedence, lowest first: defaults, file, environment, command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileName is the manifest looked up by Discover.
const FileName = "droidreplay.yaml"

// Config is the full runtime configuration.
type Config struct {
	Playback Playback `yaml:"playback,omitempty" json:"playback"`
	Detect   Detect   `yaml:"detect,omitempty"   json:"detect"`
	Run      Run      `yaml:"run,omitempty"      json:"run"`

	// Path is the file the config was loaded from, if any.
	Path string `yaml:"-" json:"-"`
}

// Playback tunes the replay engine.
type Playback struct {
	BackSimilarity float64 `yaml:"back_similarity,omitempty" json:"back_similarity" env:"DROIDREPLAY_BACK_SIMILARITY"`
	MaxRecoveries  int     `yaml:"max_recoveries,omitempty"  json:"max_recoveries"  env:"DROIDREPLAY_MAX_RECOVERIES"`
}

// Detect holds the state classifier expressions.
type Detect struct {
	HomeScreen  string `yaml:"home_screen,omitempty"  json:"home_screen,omitempty"`
	CrashDialog string `yaml:"crash_dialog,omitempty" json:"crash_dialog,omitempty"`
}

// Run bounds the exploration loop.
type Run struct {
	MaxSteps      int           `yaml:"max_steps,omitempty"      json:"max_steps"                env:"DROIDREPLAY_MAX_STEPS"`
	ActionRetries int           `yaml:"action_retries,omitempty" json:"action_retries"           env:"DROIDREPLAY_ACTION_RETRIES"`
	ActionTimeout time.Duration `yaml:"action_timeout,omitempty" json:"action_timeout,omitempty" env:"DROIDREPLAY_ACTION_TIMEOUT"` // zero: no per-action limit
	Trace         string        `yaml:"trace,omitempty"          json:"trace,omitempty"          env:"DROIDREPLAY_TRACE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Playback: Playback{BackSimilarity: 0.95, MaxRecoveries: 3},
		Run:      Run{MaxSteps: 1000, ActionRetries: 2},
	}
}

// LoadFile reads a manifest on top of the defaults. Unknown keys are rejected.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Discover walks up from startPath to the nearest droidreplay.yaml. It returns
// the defaults when none is found.
func Discover(startPath string) (Config, error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return Default(), err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Default(), err
	}
	dir := abs
	if !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return LoadFile(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// ApplyEnv overrides cfg from environment variables. A nil environ reads
// the process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	var err error
	if environ == nil {
		err = env.Parse(cfg)
	} else {
		err = env.ParseWithOptions(cfg, env.Options{Environment: environ})
	}
	if err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load resolves the configuration: an explicit path if given, otherwise
// discovery from the working directory, then environment overrides.
func Load(path string) (Config, error) {
	var (
		cfg Config
		err error
	)
	if path != "" {
		cfg, err = LoadFile(path)
	} else {
		cfg, err = Discover(".")
	}
	if err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg, nil); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects out-of-range settings.
func (c Config) Validate() error {
	var errs []error
	if c.Playback.BackSimilarity <= 0 || c.Playback.BackSimilarity > 1 {
		errs = append(errs, fmt.Errorf("playback.back_similarity must be in (0,1], got %v", c.Playback.BackSimilarity))
	}
	if c.Playback.MaxRecoveries < 0 {
		errs = append(errs, fmt.Errorf("playback.max_recoveries must not be negative, got %d", c.Playback.MaxRecoveries))
	}
	if c.Run.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("run.max_steps must be positive, got %d", c.Run.MaxSteps))
	}
	if c.Run.ActionRetries < 0 {
		errs = append(errs, fmt.Errorf("run.action_retries must not be negative, got %d", c.Run.ActionRetries))
	}
	if c.Run.ActionTimeout < 0 {
		errs = append(errs, fmt.Errorf("run.action_timeout must not be negative, got %s", c.Run.ActionTimeout))
	}
	return errors.Join(errs...)
}
