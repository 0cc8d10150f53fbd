package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned for unknown packages and state ids.
var ErrNotFound = errors.New("not found")

// Store is a read-only, in-memory view of a loaded document. It is safe for
// concurrent reads; nothing mutates it after NewStore returns.
type Store struct {
	apps   map[string]*App
	states map[string]map[string]State
	traces map[string][]Trace
}

// NewStore indexes a document.
func NewStore(doc *Document) (*Store, error) {
	s := &Store{
		apps:   make(map[string]*App, len(doc.Apps)),
		states: make(map[string]map[string]State, len(doc.Apps)),
		traces: make(map[string][]Trace, len(doc.Apps)),
	}
	for i := range doc.Apps {
		app := &doc.Apps[i]
		if _, dup := s.apps[app.Package]; dup {
			return nil, fmt.Errorf("duplicate app package %q", app.Package)
		}
		s.apps[app.Package] = app
		byID := make(map[string]State, len(app.States))
		for _, st := range app.States {
			byID[st.ID] = st
		}
		s.states[app.Package] = byID
		s.traces[app.Package] = SplitTraces(app.Actions)
	}
	return s, nil
}

// OpenStore loads a document file and indexes it.
func OpenStore(path string) (*Store, error) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewStore(doc)
}

// Packages returns the app packages in the store, sorted.
func (s *Store) Packages() []string {
	out := make([]string, 0, len(s.apps))
	for name := range s.apps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// App returns the app model for a package.
func (s *Store) App(pkg string) (*App, error) {
	app, ok := s.apps[pkg]
	if !ok {
		return nil, fmt.Errorf("app %q: %w", pkg, ErrNotFound)
	}
	return app, nil
}

// TracesForPackage returns the recorded traces of a package in order.
func (s *Store) TracesForPackage(pkg string) ([]Trace, error) {
	traces, ok := s.traces[pkg]
	if !ok {
		return nil, fmt.Errorf("app %q: %w", pkg, ErrNotFound)
	}
	return traces, nil
}

// Package scopes state lookups to one app.
func (s *Store) Package(pkg string) (*PackageStore, error) {
	if _, ok := s.apps[pkg]; !ok {
		return nil, fmt.Errorf("app %q: %w", pkg, ErrNotFound)
	}
	return &PackageStore{store: s, pkg: pkg}, nil
}

// PackageStore resolves state ids within one app.
type PackageStore struct {
	store *Store
	pkg   string
}

// StateAtRecordingTime returns the snapshot recorded under id.
func (p *PackageStore) StateAtRecordingTime(ctx context.Context, id string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	st, ok := p.store.states[p.pkg][id]
	if !ok {
		return State{}, fmt.Errorf("state %q in %q: %w", id, p.pkg, ErrNotFound)
	}
	return st, nil
}
