package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"fatture/internal/amqp"
	"fatture/internal/core"
	"fatture/internal/storage"
)

const custDelba = "3958dc9e-712f-4377-85e9-fec4b6a6442a"

type fakePublisher struct {
	events []amqp.InvoiceEventMessage
	fail   error
}

func (f *fakePublisher) PublishInvoiceEvent(ctx context.Context, id string, kind amqp.EventKind) error {
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, amqp.InvoiceEventMessage{ID: id, Kind: kind})
	return nil
}

func newTestService(t *testing.T, pub EventPublisher) *InvoiceService {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "fatture.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	svc := NewInvoiceService(repo, pub)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestCreatePublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(t, pub)

	inv, err := svc.CreateInvoice(context.Background(), custDelba, 1999, core.StatusPaid, "2026-08-31")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("events = %+v", pub.events)
	}
	if pub.events[0].ID != inv.ID || pub.events[0].Kind != amqp.EventInvoiceCreated {
		t.Fatalf("unexpected event: %+v", pub.events[0])
	}
}

func TestUpdateAndDeletePublishEvents(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(t, pub)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, custDelba, 100, core.StatusPending, "2026-01-01")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.UpdateInvoice(ctx, inv.ID, custDelba, 200, core.StatusPaid); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.DeleteInvoice(ctx, inv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	kinds := make([]amqp.EventKind, len(pub.events))
	for i, e := range pub.events {
		kinds[i] = e.Kind
	}
	want := []amqp.EventKind{amqp.EventInvoiceCreated, amqp.EventInvoiceUpdated, amqp.EventInvoiceDeleted}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
}

func TestPublishFailureDoesNotFailAction(t *testing.T) {
	pub := &fakePublisher{fail: errors.New("broker unavailable")}
	svc := newTestService(t, pub)

	if _, err := svc.CreateInvoice(context.Background(), custDelba, 100, core.StatusPaid, "2026-01-01"); err != nil {
		t.Fatalf("publish failure must not fail the write: %v", err)
	}
}

func TestNilPublisherIsFine(t *testing.T) {
	svc := newTestService(t, nil)

	if _, err := svc.CreateInvoice(context.Background(), custDelba, 100, core.StatusPaid, "2026-01-01"); err != nil {
		t.Fatalf("create without publisher: %v", err)
	}
}

func TestCreateRejectsInvalidInvoice(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(t, pub)
	ctx := context.Background()

	cases := []struct {
		name       string
		customerID string
		cents      int64
		status     core.Status
	}{
		{"empty customer", "", 100, core.StatusPaid},
		{"zero amount", custDelba, 0, core.StatusPaid},
		{"bad status", custDelba, 100, core.Status("overdue")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateInvoice(ctx, tc.customerID, tc.cents, tc.status, "2026-01-01"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event should be published for rejected input: %+v", pub.events)
	}
}
