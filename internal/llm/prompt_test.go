package llm

import (
	"strings"
	"testing"

	"webtap/internal/model"
)

func TestBuildSystemPrompt(t *testing.T) {
	got := BuildSystemPrompt()
	if !strings.Contains(got, "data extraction expert") {
		t.Fatalf("unexpected system prompt: %q", got)
	}
	if !strings.Contains(got, "Return ONLY valid JSON") {
		t.Fatal("expected the JSON-only rule in the system prompt")
	}
}

func TestBuildUserPromptStructured(t *testing.T) {
	schema := model.Schema{Object: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
		},
	}}
	got := BuildUserPrompt(schema, "# Page\n\nsome content")

	if !strings.Contains(got, "Extract data matching this JSON Schema:") {
		t.Fatalf("expected schema framing, got %q", got)
	}
	if !strings.Contains(got, "```json") {
		t.Fatal("expected fenced json block")
	}
	if !strings.Contains(got, `"title"`) {
		t.Fatal("expected schema body in the prompt")
	}
	if !strings.Contains(got, "CONTENT:\n# Page") {
		t.Fatal("expected content section")
	}
	if !strings.Contains(got, "matching the schema above") {
		t.Fatal("expected closing instruction")
	}
}

func TestBuildUserPromptFreeText(t *testing.T) {
	schema := model.Schema{Prompt: "Extract the product name and price"}
	got := BuildUserPrompt(schema, "content here")

	if !strings.Contains(got, "Extract the following information from the content:") {
		t.Fatalf("expected free-text framing, got %q", got)
	}
	if !strings.Contains(got, "Extract the product name and price") {
		t.Fatal("expected the prompt text passed through")
	}
	if strings.Contains(got, "```json") {
		t.Fatal("free-text prompts must not use the schema framing")
	}
}

func TestBuildUserPromptEmptyPromptFallback(t *testing.T) {
	got := BuildUserPrompt(model.Schema{}, "content")
	if !strings.Contains(got, "Extract all relevant information from the content.") {
		t.Fatalf("expected fallback instruction, got %q", got)
	}
}
