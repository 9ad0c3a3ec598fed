// Package actions implements the form-backed invoice mutations: create,
// update and delete. Each action runs validation, then a single store
// statement, then cache invalidation, in that order; any failure stops
// the chain before the next step.
package actions

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"fatture/internal/core"
	applog "fatture/internal/log"
	"fatture/internal/schema"
)

// InvoicesRoute is the logical route whose cached render the actions
// invalidate, and the redirect target after create and update.
const InvoicesRoute = "/dashboard/invoices"

// Store is the persistence boundary the actions write through. It is
// injected explicitly so tests can substitute a fake.
type Store interface {
	CreateInvoice(ctx context.Context, customerID string, amountCents int64, status core.Status, date string) (core.Invoice, error)
	UpdateInvoice(ctx context.Context, id, customerID string, amountCents int64, status core.Status) error
	DeleteInvoice(ctx context.Context, id string) error
}

// Invalidator discards the cached render of a logical route.
type Invalidator interface {
	Invalidate(route string)
}

// Result is the tagged outcome of a successful action. A non-empty
// Redirect tells the calling boundary to end the request with a location
// change; an empty one means the caller re-renders in place. Redirects
// are values, never panics, so error handling can't swallow them.
type Result struct {
	Redirect string
}

type Actions struct {
	store Store
	cache Invalidator
	now   func() time.Time
}

// Option configures optional Actions behavior.
type Option func(*Actions)

// WithClock substitutes the server clock. Used by tests to pin the
// creation date.
func WithClock(now func() time.Time) Option {
	return func(a *Actions) { a.now = now }
}

func New(store Store, cache Invalidator, opts ...Option) *Actions {
	a := &Actions{
		store: store,
		cache: cache,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Create validates the submission, stamps the server date, persists the
// new invoice and redirects to the invoices listing.
func (a *Actions) Create(ctx context.Context, form url.Values) (Result, error) {
	rec, err := schema.CreateInvoice().Parse(form)
	if err != nil {
		return Result{}, err
	}

	date := core.Today(a.now())
	inv, err := a.store.CreateInvoice(ctx, rec.CustomerID, rec.AmountCents, rec.Status, date)
	if err != nil {
		return Result{}, err
	}

	slog.InfoContext(ctx, "Invoice created",
		applog.FieldInvoiceID, inv.ID,
		applog.FieldCustomerID, inv.CustomerID,
		applog.FieldAmountCents, inv.Amount.Cents,
		applog.FieldStatus, inv.Status,
		"date", inv.Date)

	a.cache.Invalidate(InvoicesRoute)
	return Result{Redirect: InvoicesRoute}, nil
}

// Update validates the submission and rewrites customer, amount and
// status of the target row. Date and id are never touched; a missing id
// is a store-level no-op.
func (a *Actions) Update(ctx context.Context, form url.Values) (Result, error) {
	rec, err := schema.UpdateInvoice().Parse(form)
	if err != nil {
		return Result{}, err
	}

	if err := a.store.UpdateInvoice(ctx, rec.ID, rec.CustomerID, rec.AmountCents, rec.Status); err != nil {
		return Result{}, err
	}

	slog.InfoContext(ctx, "Invoice updated",
		applog.FieldInvoiceID, rec.ID,
		applog.FieldCustomerID, rec.CustomerID,
		applog.FieldAmountCents, rec.AmountCents,
		applog.FieldStatus, rec.Status)

	a.cache.Invalidate(InvoicesRoute)
	return Result{Redirect: InvoicesRoute}, nil
}

// Delete removes the target row and invalidates the listing cache. No
// redirect: the caller is already on the listing and re-renders in
// place. Deleting a missing id succeeds.
func (a *Actions) Delete(ctx context.Context, form url.Values) (Result, error) {
	rec, err := schema.DeleteInvoice().Parse(form)
	if err != nil {
		return Result{}, err
	}

	if err := a.store.DeleteInvoice(ctx, rec.ID); err != nil {
		return Result{}, err
	}

	slog.InfoContext(ctx, "Invoice deleted", applog.FieldInvoiceID, rec.ID)

	a.cache.Invalidate(InvoicesRoute)
	return Result{}, nil
}
