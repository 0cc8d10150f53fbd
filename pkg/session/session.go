// Package session assembles a replay session from model files and
// configuration: stores, classifier, simulated device, engine, runner and
// diagnostics sinks.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/leonbett/droidmate/pkg/config"
	"github.com/leonbett/droidmate/pkg/detect"
	"github.com/leonbett/droidmate/pkg/device"
	"github.com/leonbett/droidmate/pkg/diag"
	"github.com/leonbett/droidmate/pkg/explore"
	"github.com/leonbett/droidmate/pkg/model"
	"github.com/leonbett/droidmate/pkg/playback"
)

// Params selects what to replay.
type Params struct {
	RecordedPath string
	LivePath     string
	Package      string // may be empty when the recorded model holds one app
	Config       config.Config
	SessionID    string
	Sink         diag.Sink // receives events in addition to the trace file
}

// Session is a ready-to-run replay.
type Session struct {
	ID      string
	Package string
	Traces  []model.Trace
	Engine  *playback.Engine
	Device  *device.Simulator
	Runner  *explore.Runner

	closers []func() error
}

// Open builds a session. The caller must Close it.
func Open(p Params) (*Session, error) {
	cfg := p.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	recorded, err := model.OpenStore(p.RecordedPath)
	if err != nil {
		return nil, fmt.Errorf("recorded model: %w", err)
	}
	pkg, err := ResolvePackage(recorded, p.Package)
	if err != nil {
		return nil, err
	}
	traces, err := recorded.TracesForPackage(pkg)
	if err != nil {
		return nil, err
	}
	states, err := recorded.Package(pkg)
	if err != nil {
		return nil, err
	}

	live, err := model.OpenStore(p.LivePath)
	if err != nil {
		return nil, fmt.Errorf("live model: %w", err)
	}
	liveApp, err := live.App(pkg)
	if err != nil {
		return nil, fmt.Errorf("live model: %w", err)
	}

	classifier, err := detect.New(cfg.Detect.HomeScreen, cfg.Detect.CrashDialog)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	sim, err := device.NewSimulator(liveApp, classifier)
	if err != nil {
		return nil, err
	}

	s := &Session{ID: p.SessionID, Package: pkg, Traces: traces, Device: sim}
	if s.ID == "" {
		s.ID = explore.GenerateSessionID()
	}

	var sinks []diag.Sink
	if p.Sink != nil {
		sinks = append(sinks, p.Sink)
	}
	if cfg.Run.Trace != "" {
		w, f, err := diag.NewFileWriter(cfg.Run.Trace, s.ID)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, f.Close)
		sinks = append(sinks, w)
	}
	sink := diag.Discard
	if len(sinks) > 0 {
		sink = diag.Tee(sinks...)
	}

	s.Engine = playback.New(traces, classifier.Recorded(states), playback.Options{
		BackSimilarity: cfg.Playback.BackSimilarity,
		MaxRecoveries:  cfg.Playback.MaxRecoveries,
		Sink:           sink,
	})
	s.Runner = explore.NewRunner(sim, s.Engine, explore.Options{
		MaxSteps:      cfg.Run.MaxSteps,
		ActionRetries: cfg.Run.ActionRetries,
		ActionTimeout: cfg.Run.ActionTimeout,
		SessionID:     s.ID,
		Sink:          sink,
	})
	return s, nil
}

// ResolvePackage picks the app to replay. An empty want selects the only app
// of a single-app model.
func ResolvePackage(store *model.Store, want string) (string, error) {
	if want != "" {
		if _, err := store.App(want); err != nil {
			return "", err
		}
		return want, nil
	}
	pkgs := store.Packages()
	switch len(pkgs) {
	case 0:
		return "", fmt.Errorf("recorded model has no apps")
	case 1:
		return pkgs[0], nil
	}
	return "", fmt.Errorf("recorded model holds %d apps (%s); choose one with --package", len(pkgs), strings.Join(pkgs, ", "))
}

// Run replays to completion.
func (s *Session) Run(ctx context.Context) (*explore.Result, error) {
	return s.Runner.Run(ctx)
}

// Close releases the trace file.
func (s *Session) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
