package model

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // e.g. "apps[0].actions[3].target"
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile performs the 3-phase validation pipeline on a model file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (trace and state reference rules)
func ValidateFile(path string) (*Document, []*ValidationError) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return doc, Validate(doc)
}

// Validate runs the semantic and domain phases on a decoded document.
func Validate(doc *Document) []*ValidationError {
	errs := validateSemantic(doc)
	if HasErrors(errs) {
		return errs
	}
	return append(errs, validateDomain(doc)...)
}

func validateSemantic(doc *Document) []*ValidationError {
	fail := func(format string, args ...any) []*ValidationError {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		}}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fail("marshal for schema validation: %v", err)
	}
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return fail("generate schema: %v", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fail("unmarshal schema: %v", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("model-v0.json", schemaDoc); err != nil {
		return fail("add schema resource: %v", err)
	}
	sch, err := c.Compile("model-v0.json")
	if err != nil {
		return fail("compile schema: %v", err)
	}

	var inst any
	if err := json.Unmarshal(data, &inst); err != nil {
		return fail("unmarshal document: %v", err)
	}
	if err := sch.Validate(inst); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return fail("%v", err)
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     strings.Join(cause.InstanceLocation, "/"),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

func validateDomain(doc *Document) []*ValidationError {
	var errs []*ValidationError
	add := func(severity, path, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: severity,
		})
	}

	if doc.APIVersion != APIVersion {
		add("error", "apiVersion", "unrecognized apiVersion %q, expected %q", doc.APIVersion, APIVersion)
	}
	if len(doc.Apps) == 0 {
		add("error", "apps", "at least one app is required")
	}

	packages := make(map[string]bool)
	for i, app := range doc.Apps {
		appPath := fmt.Sprintf("apps[%d]", i)
		if app.Package == "" {
			add("error", appPath+".package", "package is required")
		} else if packages[app.Package] {
			add("error", appPath+".package", "duplicate package %q", app.Package)
		}
		packages[app.Package] = true

		states := make(map[string]bool, len(app.States))
		for j, st := range app.States {
			if st.ID == "" {
				add("error", fmt.Sprintf("%s.states[%d].id", appPath, j), "state id is required")
				continue
			}
			if states[st.ID] {
				add("error", fmt.Sprintf("%s.states[%d].id", appPath, j), "duplicate state id %q", st.ID)
			}
			states[st.ID] = true
		}
		for _, ref := range []struct{ field, id string }{
			{"start_state", app.StartState},
			{"home_state", app.HomeState},
		} {
			if ref.id != "" && !states[ref.id] {
				add("error", appPath+"."+ref.field, "unknown state %q", ref.id)
			}
		}
		for j, st := range app.States {
			if st.BackTo != "" && !states[st.BackTo] {
				add("error", fmt.Sprintf("%s.states[%d].back_to", appPath, j), "unknown state %q", st.BackTo)
			}
			for k, w := range st.Items {
				if w.LeadsTo != "" && !states[w.LeadsTo] {
					add("error", fmt.Sprintf("%s.states[%d].widgets[%d].leads_to", appPath, j, k), "unknown state %q", w.LeadsTo)
				}
			}
		}

		for j, a := range app.Actions {
			path := fmt.Sprintf("%s.actions[%d]", appPath, j)
			if a.Kind == KindClick && a.Target == nil {
				add("error", path+".target", "click record requires a target widget")
			}
			if a.ResultState != "" && !states[a.ResultState] {
				add("error", path+".result_state", "unknown state %q", a.ResultState)
			}
		}
		if n := len(app.Actions); n > 0 {
			if app.Actions[0].Kind != KindReset {
				add("warning", appPath+".actions[0]", "first recorded action is %q, not a reset; crash recovery cannot rewind the first trace", app.Actions[0].Kind)
			}
			if app.Actions[n-1].Kind != KindTerminate {
				add("error", fmt.Sprintf("%s.actions[%d]", appPath, n-1), "last recorded action must be terminate, got %q", app.Actions[n-1].Kind)
			}
		}
	}
	return errs
}
