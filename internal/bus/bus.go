// Package bus carries the pipeline events between stages. Delivery is
// at-least-once; within one message group at most one message is in
// flight at a time and messages are delivered in publish order. Across
// groups there is no ordering.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Topic names for the pipeline events.
const (
	TopicExtractionRequested = "extraction.requested"
	TopicWebpageFetched      = "webpage.fetched"
	TopicExtractionCompleted = "extraction.completed"
	TopicResultsStored       = "results.stored"
	TopicExtractionFailed    = "extraction.failed"
)

// MaxBodyBytes is the per-message size cap. Large bodies belong in the
// state store's payload side-tables, not on the bus.
const MaxBodyBytes = 4096

// Message is one event on the bus. GroupID selects the FIFO lane.
type Message struct {
	Topic   string
	GroupID string
	Body    json.RawMessage
}

// Handler consumes one message. A non-nil error triggers redelivery up to
// the engine's retry bound; handlers must therefore be idempotent.
type Handler func(ctx context.Context, msg Message) error

// Bus is the publish/subscribe contract the stages are written against.
type Bus interface {
	Publish(ctx context.Context, topic, groupID string, body any) error
	Subscribe(topic string, h Handler)
}

// Encode marshals an event body and enforces the size cap.
func Encode(body any) (json.RawMessage, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("bus: encode body: %w", err)
	}
	if len(b) > MaxBodyBytes {
		return nil, fmt.Errorf("bus: body is %d bytes, cap is %d", len(b), MaxBodyBytes)
	}
	return b, nil
}
