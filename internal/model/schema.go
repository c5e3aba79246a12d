package model

import (
	"encoding/json"
	"fmt"
)

// Schema is what a scraper asks the language model for. It is either a
// structured JSON Schema document or a free-text prompt, depending on how
// the scraper was created. The two forms travel through the same JSON
// field, so Schema carries both and remembers which one it holds.
type Schema struct {
	// Object is the structured JSON Schema, nil for prompt scrapers.
	Object map[string]any
	// Prompt is the free-text instruction, empty for structured scrapers.
	Prompt string
}

// Structured reports whether the schema is a JSON Schema object.
func (s Schema) Structured() bool {
	return s.Object != nil
}

// IsZero reports whether no schema was provided at all.
func (s Schema) IsZero() bool {
	return s.Object == nil && s.Prompt == ""
}

// Canonical returns the canonical text of the schema used for cache keys:
// the JSON encoding with object keys sorted for structured schemas, or the
// prompt text itself otherwise. encoding/json writes map keys in sorted
// order, which is exactly the canonical form required.
func (s Schema) Canonical() string {
	if s.Object != nil {
		b, err := json.Marshal(s.Object)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return s.Prompt
}

func (s Schema) MarshalJSON() ([]byte, error) {
	if s.Object != nil {
		return json.Marshal(s.Object)
	}
	return json.Marshal(s.Prompt)
}

func (s *Schema) UnmarshalJSON(b []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err == nil {
		s.Object = obj
		s.Prompt = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		s.Object = nil
		s.Prompt = str
		return nil
	}
	return fmt.Errorf("schema must be a JSON object or a string")
}
