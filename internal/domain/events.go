package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for batch lifecycle events.
const (
	EventTypeBatchCreated   = "batch.created"
	EventTypeItemUpdated    = "batch.item_updated"
	EventTypeBatchCompleted = "batch.completed"
)

// Event is a batch lifecycle event published to the optional event topic.
type Event struct {
	EventID    string
	EventType  string
	BatchID    uuid.UUID
	Payload    []byte
	OccurredAt time.Time
}

// NewEvent creates an event with the given type and JSON-serialized payload.
func NewEvent(eventType string, batchID uuid.UUID, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		BatchID:    batchID,
		Payload:    payloadBytes,
		OccurredAt: time.Now(),
	}, nil
}

// BatchCreatedPayload is the payload for batch.created events.
type BatchCreatedPayload struct {
	BatchID       uuid.UUID `json:"batch_id"`
	Query         string    `json:"query"`
	TotalCount    int       `json:"total_count"`
	DegradedCount int       `json:"degraded_count"`
}

// ItemUpdatedPayload is the payload for batch.item_updated events.
type ItemUpdatedPayload struct {
	BatchID  uuid.UUID      `json:"batch_id"`
	Index    int            `json:"index"`
	State    BatchItemState `json:"state"`
	ImageURL string         `json:"image_url,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// BatchCompletedPayload is the payload for batch.completed events.
type BatchCompletedPayload struct {
	BatchID      uuid.UUID     `json:"batch_id"`
	Query        string        `json:"query"`
	SuccessCount int           `json:"success_count"`
	TotalCount   int           `json:"total_count"`
	Duration     time.Duration `json:"duration_ns"`
}
