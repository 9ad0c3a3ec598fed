package actions

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"fatture/internal/core"
)

type fakeStore struct {
	created []core.Invoice
	updated []core.Invoice
	deleted []string
	fail    error
}

func (f *fakeStore) CreateInvoice(ctx context.Context, customerID string, amountCents int64, status core.Status, date string) (core.Invoice, error) {
	if f.fail != nil {
		return core.Invoice{}, f.fail
	}
	inv := core.Invoice{
		ID:         "store-assigned-1",
		CustomerID: customerID,
		Amount:     core.Money{Cents: amountCents},
		Status:     status,
		Date:       date,
	}
	f.created = append(f.created, inv)
	return inv, nil
}

func (f *fakeStore) UpdateInvoice(ctx context.Context, id, customerID string, amountCents int64, status core.Status) error {
	if f.fail != nil {
		return f.fail
	}
	f.updated = append(f.updated, core.Invoice{
		ID:         id,
		CustomerID: customerID,
		Amount:     core.Money{Cents: amountCents},
		Status:     status,
	})
	return nil
}

func (f *fakeStore) DeleteInvoice(ctx context.Context, id string) error {
	if f.fail != nil {
		return f.fail
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) Invalidate(route string) {
	f.invalidated = append(f.invalidated, route)
}

func form(pairs ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Set(pairs[i], pairs[i+1])
	}
	return v
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, time.August, 31, 14, 30, 0, 0, time.UTC)
	}
}

func TestCreateHappyPath(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{}
	a := New(store, cache, WithClock(fixedClock()))

	res, err := a.Create(context.Background(), form(
		"customerId", "abc",
		"amount", "19.99",
		"status", "paid",
	))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected one insert, got %d", len(store.created))
	}
	inv := store.created[0]
	if inv.Amount.Cents != 1999 {
		t.Fatalf("amount = %d, want 1999", inv.Amount.Cents)
	}
	if inv.Status != core.StatusPaid {
		t.Fatalf("status = %q", inv.Status)
	}
	if inv.Date != "2026-08-31" {
		t.Fatalf("date = %q, want server clock date", inv.Date)
	}
	if inv.ID != "store-assigned-1" {
		t.Fatalf("id = %q", inv.ID)
	}

	if len(cache.invalidated) != 1 || cache.invalidated[0] != InvoicesRoute {
		t.Fatalf("cache invalidation = %v", cache.invalidated)
	}
	if res.Redirect != InvoicesRoute {
		t.Fatalf("redirect = %q", res.Redirect)
	}
}

func TestCreateValidationStopsBeforeStore(t *testing.T) {
	cases := []url.Values{
		form("customerId", "abc", "amount", "abc", "status", "paid"),
		form("customerId", "abc", "amount", "19.99", "status", "overdue"),
		form("amount", "19.99", "status", "paid"),
		form(),
	}
	for _, f := range cases {
		store := &fakeStore{}
		cache := &fakeCache{}
		a := New(store, cache)

		_, err := a.Create(context.Background(), f)
		if !core.IsValidation(err) {
			t.Fatalf("form %v: expected ValidationError, got %v", f, err)
		}
		if len(store.created) != 0 {
			t.Fatalf("form %v: store must stay untouched", f)
		}
		if len(cache.invalidated) != 0 {
			t.Fatalf("form %v: cache must stay untouched", f)
		}
	}
}

func TestCreatePersistenceFailureSkipsInvalidation(t *testing.T) {
	store := &fakeStore{fail: &core.PersistenceError{Op: "insert invoice", Err: errors.New("connection lost")}}
	cache := &fakeCache{}
	a := New(store, cache)

	res, err := a.Create(context.Background(), form(
		"customerId", "abc",
		"amount", "5",
		"status", "pending",
	))
	if !core.IsPersistence(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if res.Redirect != "" {
		t.Fatal("no redirect on failure")
	}
	if len(cache.invalidated) != 0 {
		t.Fatal("no invalidation on failure")
	}
}

func TestUpdate(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{}
	a := New(store, cache)

	res, err := a.Update(context.Background(), form(
		"id", "X",
		"customerId", "def",
		"amount", "5.00",
		"status", "pending",
	))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(store.updated) != 1 {
		t.Fatalf("expected one update, got %d", len(store.updated))
	}
	up := store.updated[0]
	if up.ID != "X" || up.CustomerID != "def" || up.Amount.Cents != 500 || up.Status != core.StatusPending {
		t.Fatalf("unexpected update: %+v", up)
	}
	if up.Date != "" {
		t.Fatal("update must never carry a date")
	}
	if res.Redirect != InvoicesRoute {
		t.Fatalf("redirect = %q", res.Redirect)
	}
	if len(cache.invalidated) != 1 {
		t.Fatalf("invalidations = %v", cache.invalidated)
	}
}

func TestUpdateRequiresID(t *testing.T) {
	store := &fakeStore{}
	a := New(store, &fakeCache{})

	_, err := a.Update(context.Background(), form(
		"customerId", "def",
		"amount", "5.00",
		"status", "pending",
	))
	if !core.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(store.updated) != 0 {
		t.Fatal("store must stay untouched")
	}
}

func TestDelete(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{}
	a := New(store, cache)

	res, err := a.Delete(context.Background(), form("id", "X"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "X" {
		t.Fatalf("deleted = %v", store.deleted)
	}
	if res.Redirect != "" {
		t.Fatal("delete renders in place, no redirect")
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != InvoicesRoute {
		t.Fatalf("invalidations = %v", cache.invalidated)
	}
}

func TestDeletePersistenceFailureSkipsInvalidation(t *testing.T) {
	store := &fakeStore{fail: &core.PersistenceError{Op: "delete invoice", Err: errors.New("locked")}}
	cache := &fakeCache{}
	a := New(store, cache)

	if _, err := a.Delete(context.Background(), form("id", "X")); !core.IsPersistence(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if len(cache.invalidated) != 0 {
		t.Fatal("no invalidation on failure")
	}
}
