package webhooks

import "time"

type EventStatus string

const (
	StatusReceived  EventStatus = "received"
	StatusDuplicate EventStatus = "duplicate"
	StatusRejected  EventStatus = "rejected"
)

// Event is one request that reached signature verification. It is never modified after creation.
type Event struct {
	ReceivedAt     time.Time   `json:"receivedAt"`
	EventType      string      `json:"eventType,omitempty"`
	SubjectID      string      `json:"subjectId,omitempty"`
	EventID        string      `json:"eventId,omitempty"`
	SignatureValid bool        `json:"signatureValid"`
	Status         EventStatus `json:"status"`
}

// Payload is the inbound webhook body.
type Payload struct {
	EventType string `json:"eventType"`
	SubjectID string `json:"subjectId"`
	EventID   string `json:"eventId"`
}
