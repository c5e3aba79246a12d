package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSchemaUnmarshalObject(t *testing.T) {
	var s Schema
	if err := json.Unmarshal([]byte(`{"type":"object"}`), &s); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if !s.Structured() {
		t.Fatal("expected structured schema")
	}
	if s.Object["type"] != "object" {
		t.Fatalf("unexpected object: %v", s.Object)
	}
}

func TestSchemaUnmarshalPrompt(t *testing.T) {
	var s Schema
	if err := json.Unmarshal([]byte(`"extract the title"`), &s); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if s.Structured() {
		t.Fatal("expected prompt schema")
	}
	if s.Prompt != "extract the title" {
		t.Fatalf("unexpected prompt: %q", s.Prompt)
	}
}

func TestSchemaUnmarshalRejectsOtherShapes(t *testing.T) {
	var s Schema
	if err := json.Unmarshal([]byte(`[1,2]`), &s); err == nil {
		t.Fatal("expected array to be rejected")
	}
	if err := json.Unmarshal([]byte(`42`), &s); err == nil {
		t.Fatal("expected number to be rejected")
	}
}

func TestSchemaMarshalRoundTrip(t *testing.T) {
	obj := Schema{Object: map[string]any{"type": "object"}}
	b, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal returned error: %v", err)
	}
	var back Schema
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if !back.Structured() || back.Object["type"] != "object" {
		t.Fatalf("round trip lost the object: %v", back)
	}

	prompt := Schema{Prompt: "get the price"}
	b, err = json.Marshal(prompt)
	if err != nil {
		t.Fatalf("marshal returned error: %v", err)
	}
	if string(b) != `"get the price"` {
		t.Fatalf("expected plain string encoding, got %s", b)
	}
}

func TestSchemaCanonicalSortsKeys(t *testing.T) {
	a := Schema{Object: map[string]any{"b": 1, "a": 2}}
	if a.Canonical() != `{"a":2,"b":1}` {
		t.Fatalf("expected sorted keys, got %q", a.Canonical())
	}

	p := Schema{Prompt: "the prompt"}
	if p.Canonical() != "the prompt" {
		t.Fatalf("expected prompt passthrough, got %q", p.Canonical())
	}
}

func TestSchemaIsZero(t *testing.T) {
	if !(Schema{}).IsZero() {
		t.Fatal("empty schema should be zero")
	}
	if (Schema{Prompt: "x"}).IsZero() {
		t.Fatal("prompt schema should not be zero")
	}
	if (Schema{Object: map[string]any{}}).IsZero() {
		t.Fatal("non-nil object schema should not be zero")
	}
}

func TestScheduleUnmarshal(t *testing.T) {
	var s Schedule
	if err := json.Unmarshal([]byte(`30`), &s); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if !s.Interval() || s.Minutes != 30 {
		t.Fatalf("expected 30-minute interval, got %+v", s)
	}

	var c Schedule
	if err := json.Unmarshal([]byte(`"0 */6 * * *"`), &c); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if c.Interval() || c.Cron != "0 */6 * * *" {
		t.Fatalf("expected cron schedule, got %+v", c)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusQueued, StatusFetching, StatusExtracting, StatusValidating} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("completed and failed are terminal")
	}
}

func TestExtractionOmitsAbsentSchema(t *testing.T) {
	b, err := json.Marshal(Extraction{JobID: "job_x", Status: StatusFailed, Error: "boom"})
	if err != nil {
		t.Fatalf("marshal returned error: %v", err)
	}
	if strings.Contains(string(b), `"schema"`) {
		t.Fatalf("row without a schema must omit the field, got %s", b)
	}

	withSchema := Extraction{
		JobID:  "job_x",
		Status: StatusCompleted,
		Schema: &Schema{Object: map[string]any{"type": "object"}},
	}
	b, err = json.Marshal(withSchema)
	if err != nil {
		t.Fatalf("marshal returned error: %v", err)
	}
	if !strings.Contains(string(b), `"schema":{"type":"object"}`) {
		t.Fatalf("expected schema encoded, got %s", b)
	}
}
