package model

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and structurally decodes a model document.
// Returns a structural error if the YAML contains unknown fields.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a model document from a reader.
func Load(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return &doc, nil
}

// SplitTraces cuts a flat action log into traces. Every reset record opens a
// new trace; records before the first reset form a trace of their own.
func SplitTraces(actions []ActionRecord) []Trace {
	var traces []Trace
	for _, a := range actions {
		if a.Kind == KindReset || len(traces) == 0 {
			traces = append(traces, Trace{})
		}
		last := len(traces) - 1
		traces[last] = append(traces[last], a)
	}
	return traces
}
