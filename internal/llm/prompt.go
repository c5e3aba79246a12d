package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"webtap/internal/model"
)

// systemPrompt fixes the extraction behavior regardless of schema.
const systemPrompt = `You are a data extraction expert. Your job is to extract structured data from webpage content.

Rules:
1. Return ONLY valid JSON matching the requested schema
2. If a field cannot be found, use null
3. For arrays, return empty array [] if no items found
4. For numbers, extract numeric values only (no currency symbols)
5. For dates, use ISO 8601 format (YYYY-MM-DD)
6. For strings, preserve the exact text from the content
7. Do not invent or infer data that isn't explicitly in the content

Be precise. Do not invent data that isn't in the content.`

// BuildSystemPrompt returns the fixed extraction system prompt.
func BuildSystemPrompt() string {
	return systemPrompt
}

// BuildUserPrompt renders the user message for a schema and the page
// content. Structured schemas are pretty-printed inside a fenced json
// block; natural-language schemas are passed through verbatim.
func BuildUserPrompt(schema model.Schema, markdown string) string {
	markdown = strings.TrimSpace(markdown)

	if schema.Structured() {
		schemaJSON, err := json.MarshalIndent(schema.Object, "", "  ")
		if err == nil {
			return fmt.Sprintf("Extract data matching this JSON Schema:\n\n```json\n%s\n```\n\nCONTENT:\n%s\n\nReturn the extracted data as valid JSON matching the schema above.", schemaJSON, markdown)
		}
		// Fall through to the plain form if the schema will not serialize.
	}

	prompt := strings.TrimSpace(schema.Prompt)
	if prompt == "" && !schema.Structured() {
		prompt = "Extract all relevant information from the content."
	}
	if prompt == "" {
		prompt = schema.Canonical()
	}
	return fmt.Sprintf("Extract the following information from the content:\n\n%s\n\nCONTENT:\n%s\n\nReturn the extracted data as valid JSON.", prompt, markdown)
}
