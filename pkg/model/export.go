package model

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// droidmate/v0 Document types.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Document{})
	s.ID = "https://github.com/leonbett/droidmate/schemas/model-v0.json"
	s.Title = "Recorded GUI model (droidmate/v0)"
	s.Description = "Schema for droidmate/v0 model documents: app states and recorded action logs"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal model schema: %w", err)
	}
	return data, nil
}
