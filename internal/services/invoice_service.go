// Package services orchestrates invoice persistence with event
// publishing. The store write is authoritative; the AMQP event is best
// effort and never fails the request.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"fatture/internal/amqp"
	"fatture/internal/core"
	"fatture/internal/storage"
)

// EventPublisher is the outbound event boundary. *amqp.Client implements
// it; tests substitute a fake.
type EventPublisher interface {
	PublishInvoiceEvent(ctx context.Context, id string, kind amqp.EventKind) error
}

type InvoiceService struct {
	storage *storage.SQLiteRepository
	events  EventPublisher
}

// NewInvoiceService wires the repository and an optional event publisher.
// events may be nil when AMQP is not configured.
func NewInvoiceService(storage *storage.SQLiteRepository, events EventPublisher) *InvoiceService {
	return &InvoiceService{
		storage: storage,
		events:  events,
	}
}

// CreateInvoice persists a new invoice and announces it. The form path
// validates through the schema first; this guard covers direct callers.
func (s *InvoiceService) CreateInvoice(ctx context.Context, customerID string, amountCents int64, status core.Status, date string) (core.Invoice, error) {
	candidate := core.Invoice{
		CustomerID: customerID,
		Amount:     core.Money{Cents: amountCents},
		Status:     status,
		Date:       date,
	}
	if err := candidate.Validate(); err != nil {
		return core.Invoice{}, err
	}

	inv, err := s.storage.InsertInvoice(ctx, customerID, amountCents, status, date)
	if err != nil {
		return core.Invoice{}, err
	}

	s.publish(ctx, inv.ID, amqp.EventInvoiceCreated)
	return inv, nil
}

// UpdateInvoice rewrites the mutable columns of an existing invoice.
func (s *InvoiceService) UpdateInvoice(ctx context.Context, id, customerID string, amountCents int64, status core.Status) error {
	if err := s.storage.UpdateInvoice(ctx, id, customerID, amountCents, status); err != nil {
		return err
	}

	s.publish(ctx, id, amqp.EventInvoiceUpdated)
	return nil
}

// DeleteInvoice removes an invoice and announces the deletion.
func (s *InvoiceService) DeleteInvoice(ctx context.Context, id string) error {
	if err := s.storage.DeleteInvoice(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, id, amqp.EventInvoiceDeleted)
	return nil
}

func (s *InvoiceService) publish(ctx context.Context, id string, kind amqp.EventKind) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishInvoiceEvent(ctx, id, kind); err != nil {
		// The row is already persisted; the export worker catches up
		// from the unexported queue if this message is lost.
		slog.ErrorContext(ctx, "Failed to publish invoice event",
			"id", id, "kind", kind, "error", err)
	}
}

// Close releases the storage handle.
func (s *InvoiceService) Close() error {
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("close storage: %w", err)
		}
	}
	return nil
}
