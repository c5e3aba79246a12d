// Package state provides the namespaced key-value store every component
// shares. Values are JSON documents addressed by (group, key). Some
// backends wrap stored values in a {"data": ...} envelope; readers go
// through Unwrap so the rest of the code never sees the envelope.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no row exists for (group, key).
var ErrNotFound = errors.New("state: not found")

// Store is the shared persistence contract. Set is a whole-value write and
// Get observes the last committed write; that single-key atomicity is the
// only concurrency guarantee the pipeline relies on.
type Store interface {
	Get(ctx context.Context, group, key string) (json.RawMessage, error)
	Set(ctx context.Context, group, key string, value any) error
	Delete(ctx context.Context, group, key string) error
	ListGroup(ctx context.Context, group string) (map[string]json.RawMessage, error)
}

// State-store group names.
const (
	GroupScrapers           = "scrapers"
	GroupJobs               = "jobs"
	GroupExtractions        = "extractions"
	GroupMonitors           = "monitors"
	GroupContentCache       = "content_cache"
	GroupExtractionCache    = "extraction_cache"
	GroupJobPayloads        = "job_payloads"
	GroupFetchPayloads      = "fetch_payloads"
	GroupExtractionPayloads = "extraction_payloads"
)

// Unwrap strips the {"data": ...} envelope some backends put around stored
// values. Only an object with exactly the one key "data" counts as an
// envelope; a document that happens to contain a "data" field among others
// is returned as is.
func Unwrap(raw json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	if len(obj) == 1 {
		if inner, ok := obj["data"]; ok {
			return inner
		}
	}
	return raw
}

// Load reads (group, key) and decodes it into out, unwrapping any data
// envelope first. It returns ErrNotFound unchanged so callers can branch
// on it.
func Load(ctx context.Context, s Store, group, key string, out any) error {
	raw, err := s.Get(ctx, group, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(Unwrap(raw), out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", group, key, err)
	}
	return nil
}
