package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"fatture/internal/core"
	"fatture/internal/storage"
)

type fakeReader struct {
	mu        sync.Mutex
	invoices  []storage.InvoiceRow
	customers []core.Customer
	listErr   error
	cardErr   error
	listCalls int
}

func (f *fakeReader) CardData(ctx context.Context) (core.CardData, error) {
	if f.cardErr != nil {
		return core.CardData{}, f.cardErr
	}
	return core.CardData{
		InvoiceCount:  2,
		CustomerCount: 10,
		TotalPaid:     core.Money{Cents: 1999},
		TotalPending:  core.Money{Cents: 500},
	}, nil
}

func (f *fakeReader) MonthlyRevenue(ctx context.Context) ([]core.MonthRevenue, error) {
	return []core.MonthRevenue{
		{Month: "Jan", Revenue: core.Money{Cents: 200000}},
		{Month: "Feb", Revenue: core.Money{Cents: 100000}},
	}, nil
}

func (f *fakeReader) LatestInvoices(ctx context.Context, limit int) ([]core.LatestInvoice, error) {
	return []core.LatestInvoice{
		{ID: "inv-1", CustomerName: "Delba de Oliveira", Email: "delba@oliveira.com", Amount: core.Money{Cents: 1999}},
	}, nil
}

func (f *fakeReader) ListInvoices(ctx context.Context) ([]storage.InvoiceRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.invoices, nil
}

func (f *fakeReader) Customers(ctx context.Context) ([]core.Customer, error) {
	return f.customers, nil
}

func (f *fakeReader) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type fakeStore struct {
	created []core.Invoice
	updated []string
	deleted []string
	err     error
}

func (f *fakeStore) CreateInvoice(ctx context.Context, customerID string, amountCents int64, status core.Status, date string) (core.Invoice, error) {
	if f.err != nil {
		return core.Invoice{}, f.err
	}
	inv := core.Invoice{
		ID:         "inv-new",
		CustomerID: customerID,
		Amount:     core.Money{Cents: amountCents},
		Status:     status,
		Date:       date,
	}
	f.created = append(f.created, inv)
	return inv, nil
}

func (f *fakeStore) UpdateInvoice(ctx context.Context, id, customerID string, amountCents int64, status core.Status) error {
	if f.err != nil {
		return f.err
	}
	f.updated = append(f.updated, id)
	return nil
}

func (f *fakeStore) DeleteInvoice(ctx context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestServer(t *testing.T, reader *fakeReader, store *fakeStore) *Server {
	t.Helper()
	srv := NewServer(":0", reader, store, Options{})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func seededReader() *fakeReader {
	return &fakeReader{
		invoices: []storage.InvoiceRow{
			{
				Invoice: core.Invoice{
					ID:         "inv-1",
					CustomerID: "cust-1",
					Amount:     core.Money{Cents: 1999},
					Status:     core.StatusPaid,
					Date:       "2026-08-31",
				},
				CustomerName:  "Delba de Oliveira",
				CustomerEmail: "delba@oliveira.com",
			},
		},
		customers: []core.Customer{
			{ID: "cust-1", Name: "Delba de Oliveira", Email: "delba@oliveira.com"},
		},
	}
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(srv *Server, path, form string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestRootHealthAndReady(t *testing.T) {
	srv := newTestServer(t, seededReader(), &fakeStore{})

	rr := get(srv, "/")
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("root status=%d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("root redirect=%q", loc)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := get(srv, path); rr.Code != 200 {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestOverviewAndPartials(t *testing.T) {
	srv := newTestServer(t, seededReader(), &fakeStore{})

	rr := get(srv, "/dashboard")
	if rr.Code != 200 {
		t.Fatalf("overview status=%d", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("overview Cache-Control=%q", cc)
	}
	for _, region := range []string{"/ui/cards", "/ui/revenue-chart", "/ui/latest-invoices"} {
		if !strings.Contains(rr.Body.String(), region) {
			t.Fatalf("overview shell missing region %s", region)
		}
	}

	rr = get(srv, "/ui/cards")
	if rr.Code != 200 {
		t.Fatalf("cards status=%d", rr.Code)
	}
	for _, want := range []string{"€19,99", "€5,00", "10"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Fatalf("cards body missing %q:\n%s", want, rr.Body.String())
		}
	}

	rr = get(srv, "/ui/revenue-chart")
	if rr.Code != 200 {
		t.Fatalf("chart status=%d", rr.Code)
	}
	// Feb is half of Jan, so its bar is 50% of the tallest.
	if !strings.Contains(rr.Body.String(), "height: 100%") || !strings.Contains(rr.Body.String(), "height: 50%") {
		t.Fatalf("chart bars not scaled:\n%s", rr.Body.String())
	}

	rr = get(srv, "/ui/latest-invoices")
	if rr.Code != 200 {
		t.Fatalf("latest status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "delba@oliveira.com") {
		t.Fatalf("latest body missing customer email")
	}
}

func TestPartialErrorIsolated(t *testing.T) {
	reader := seededReader()
	reader.cardErr = context.DeadlineExceeded
	srv := newTestServer(t, reader, &fakeStore{})

	// The broken region renders its own error block...
	rr := get(srv, "/ui/cards")
	if !strings.Contains(rr.Body.String(), "Errore caricando i dati") {
		t.Fatalf("cards error not rendered:\n%s", rr.Body.String())
	}

	// ...while the others keep working.
	if rr := get(srv, "/ui/latest-invoices"); rr.Code != 200 || strings.Contains(rr.Body.String(), "Errore") {
		t.Fatalf("latest affected by cards failure: status=%d", rr.Code)
	}
}

func TestInvoicesPageCached(t *testing.T) {
	reader := seededReader()
	srv := newTestServer(t, reader, &fakeStore{})

	rr := get(srv, "/dashboard/invoices")
	if rr.Code != 200 {
		t.Fatalf("listing status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Delba de Oliveira") {
		t.Fatalf("listing missing invoice row")
	}

	get(srv, "/dashboard/invoices")
	if n := reader.listCount(); n != 1 {
		t.Fatalf("expected cached second render, store queried %d times", n)
	}
}

func TestCreateInvoiceRedirectsAndInvalidates(t *testing.T) {
	reader := seededReader()
	store := &fakeStore{}
	srv := newTestServer(t, reader, store)

	// Warm the listing cache.
	get(srv, "/dashboard/invoices")

	rr := postForm(srv, "/invoices", "customerId=cust-1&amount=19,99&status=pending")
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/dashboard/invoices" {
		t.Fatalf("create redirect=%q", loc)
	}
	if len(store.created) != 1 || store.created[0].Amount.Cents != 1999 {
		t.Fatalf("store not called correctly: %+v", store.created)
	}

	// The cached render must be gone: the next GET hits the store again.
	before := reader.listCount()
	get(srv, "/dashboard/invoices")
	if reader.listCount() != before+1 {
		t.Fatalf("listing cache not invalidated after create")
	}
}

func TestCreateInvoiceValidationRejected(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, seededReader(), store)

	rr := postForm(srv, "/invoices", "customerId=&amount=abc&status=unknown")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if len(store.created) != 0 {
		t.Fatalf("store reached despite invalid form")
	}
}

func TestUpdateInvoiceRedirects(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, seededReader(), store)

	rr := postForm(srv, "/invoices/update", "id=inv-1&customerId=cust-1&amount=7&status=paid")
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if len(store.updated) != 1 || store.updated[0] != "inv-1" {
		t.Fatalf("update not applied: %+v", store.updated)
	}
}

func TestDeleteInvoiceRerendersInPlace(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, seededReader(), store)

	rr := postForm(srv, "/invoices/delete", "id=inv-1")
	if rr.Code != 200 {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "" {
		t.Fatalf("delete must not redirect, got %q", loc)
	}
	if !strings.Contains(rr.Body.String(), "invoice-table") && !strings.Contains(rr.Body.String(), "Nessuna fattura") {
		t.Fatalf("delete did not re-render listing:\n%s", rr.Body.String())
	}
	if len(store.deleted) != 1 {
		t.Fatalf("delete not applied: %+v", store.deleted)
	}
}

func TestPersistenceFailureIsServerError(t *testing.T) {
	store := &fakeStore{err: &core.PersistenceError{Op: "insert invoice", Err: context.DeadlineExceeded}}
	srv := newTestServer(t, seededReader(), store)

	rr := postForm(srv, "/invoices", "customerId=cust-1&amount=5&status=paid")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestMutationsRequirePost(t *testing.T) {
	srv := newTestServer(t, seededReader(), &fakeStore{})

	for _, path := range []string{"/invoices", "/invoices/update", "/invoices/delete"} {
		if rr := get(srv, path); rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s GET status=%d", path, rr.Code)
		}
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv := newTestServer(t, seededReader(), &fakeStore{})

	rr := get(srv, "/dashboard")
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options=%q", got)
	}
}

func TestPostRateLimited(t *testing.T) {
	srv := newTestServer(t, seededReader(), &fakeStore{})

	var last int
	for i := 0; i < 70; i++ {
		rr := postForm(srv, "/invoices/delete", "id=inv-1")
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}

	// GETs stay unthrottled.
	if rr := get(srv, "/healthz"); rr.Code != 200 {
		t.Fatalf("health throttled: %d", rr.Code)
	}
}
