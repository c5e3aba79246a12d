package state

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	if err := st.Set(ctx, GroupJobs, "job_1", map[string]any{"status": "queued"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	raw, err := st.Get(ctx, GroupJobs, "job_1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("stored value is not JSON: %v", err)
	}
	if got["status"] != "queued" {
		t.Fatalf("expected status queued, got %v", got["status"])
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	if _, err := st.Get(ctx, GroupJobs, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// Missing group behaves the same as a missing key.
	if _, err := st.Get(ctx, "nope", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing group, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	if err := st.Set(ctx, GroupJobs, "job_1", "x"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := st.Delete(ctx, GroupJobs, "job_1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := st.Get(ctx, GroupJobs, "job_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing key is not an error.
	if err := st.Delete(ctx, GroupJobs, "job_1"); err != nil {
		t.Fatalf("second Delete returned error: %v", err)
	}
}

func TestMemoryStoreListGroup(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := st.Set(ctx, GroupMonitors, k, k); err != nil {
			t.Fatalf("Set returned error: %v", err)
		}
	}
	if err := st.Set(ctx, GroupJobs, "other", "x"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	rows, err := st.ListGroup(ctx, GroupMonitors)
	if err != nil {
		t.Fatalf("ListGroup returned error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if _, ok := rows["other"]; ok {
		t.Fatal("ListGroup leaked a row from another group")
	}
}

func TestUnwrapEnvelope(t *testing.T) {
	inner := Unwrap(json.RawMessage(`{"data":{"x":1}}`))
	if string(inner) != `{"x":1}` {
		t.Fatalf("expected envelope stripped, got %s", inner)
	}
}

func TestUnwrapLeavesNonEnvelopesAlone(t *testing.T) {
	cases := []string{
		`{"data":{"x":1},"meta":2}`, // data plus other keys
		`{"x":1}`,                   // no data key
		`[1,2,3]`,                   // not an object
		`"text"`,                    // scalar
	}
	for _, c := range cases {
		if got := Unwrap(json.RawMessage(c)); string(got) != c {
			t.Fatalf("Unwrap(%s) = %s, want unchanged", c, got)
		}
	}
}

func TestLoadThroughWrappingBackend(t *testing.T) {
	st := NewMemoryStore()
	st.WrapValues = true
	ctx := context.Background()

	if err := st.Set(ctx, GroupJobs, "job_1", map[string]any{"status": "queued"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	var got struct {
		Status string `json:"status"`
	}
	if err := Load(ctx, st, GroupJobs, "job_1", &got); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.Status != "queued" {
		t.Fatalf("expected status queued, got %q", got.Status)
	}
}

func TestLoadPropagatesNotFound(t *testing.T) {
	st := NewMemoryStore()
	var out map[string]any
	if err := Load(context.Background(), st, GroupJobs, "missing", &out); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
