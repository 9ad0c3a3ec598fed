package amqp

import (
	"encoding/json"
	"time"
)

type EventKind string

const (
	EventInvoiceCreated EventKind = "created"
	EventInvoiceUpdated EventKind = "updated"
	EventInvoiceDeleted EventKind = "deleted"
)

// InvoiceEventMessage announces a single invoice mutation. It carries only
// the id and kind; consumers fetch the current row from the database.
type InvoiceEventMessage struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

func NewInvoiceEventMessage(id string, kind EventKind) *InvoiceEventMessage {
	return &InvoiceEventMessage{
		ID:        id,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

func (m *InvoiceEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func InvoiceEventMessageFromJSON(data []byte) (*InvoiceEventMessage, error) {
	var msg InvoiceEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
