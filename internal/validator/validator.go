// Package validator checks extracted data against a scraper's JSON Schema
// using draft 2020-12 semantics. All violations are collected, not just
// the first, so the failure message can show the caller what is wrong in
// one pass.
package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks data against a structured schema. It returns whether the
// data is valid and the formatted error list ("<dotted.path>: <message>",
// "root: <message>" for top-level violations). An invalid schema itself
// counts as a validation failure with a single error.
func Validate(data map[string]any, schema map[string]any) (bool, []string) {
	if len(schema) == 0 {
		return false, []string{"Schema cannot be empty"}
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return false, []string{fmt.Sprintf("Invalid JSON Schema: %v", err)}
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return false, []string{fmt.Sprintf("Invalid JSON Schema: %v", err)}
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return false, []string{fmt.Sprintf("Invalid JSON Schema: %v", err)}
	}

	if err := compiled.Validate(toPlain(data)); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return false, formatErrors(ve)
		}
		return false, []string{err.Error()}
	}
	return true, nil
}

// toPlain round-trips the data through JSON so every nested value has the
// decoded-JSON shape the validator expects, whatever Go types the caller
// built the map from.
func toPlain(data map[string]any) any {
	b, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return data
	}
	return v
}

// formatErrors walks the validation tree and formats each leaf violation.
// The library nests causes under aggregate errors; only leaves carry a
// concrete message worth showing.
func formatErrors(ve *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, formatOne(e))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

func formatOne(e *jsonschema.ValidationError) string {
	path := strings.TrimPrefix(e.InstanceLocation, "/")
	path = strings.ReplaceAll(path, "/", ".")
	if path == "" {
		return "root: " + e.Message
	}
	return path + ": " + e.Message
}

// FailureMessage builds the single error string recorded on a failed job:
// up to three formatted violations joined with commas.
func FailureMessage(errs []string) string {
	n := len(errs)
	if n > 3 {
		n = 3
	}
	return "Validation failed: " + strings.Join(errs[:n], ", ")
}
