package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Event types emitted by the negotiation stores.
const (
	TypeNegotiationCreated = "negotiation.created"
	TypeNegotiationDeleted = "negotiation.deleted"
)

// Envelope carries a single event with an opaque JSON payload.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt int64           `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload in an addressed envelope. Payloads that fail
// to marshal are replaced with null; events are advisory and must never
// fail the operation that emits them.
func NewEnvelope(eventType string, occurredAt int64, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: occurredAt,
		Payload:    raw,
	}
}

// Publisher delivers envelopes to interested subscribers. Implementations
// must not block the caller.
type Publisher interface {
	Publish(ctx context.Context, e Envelope)
}
