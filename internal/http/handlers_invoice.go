package http

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"fatture/internal/actions"
	"fatture/internal/core"
	applog "fatture/internal/log"
	"fatture/internal/middleware/trace"
)

// handleInvoicesPage serves the invoices listing. The rendered page is
// cached under its logical route; mutation actions invalidate it.
func (s *Server) handleInvoicesPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if page, found := s.pageCache.Get(actions.InvoicesRoute); found {
		slog.DebugContext(r.Context(), "Invoices page cache hit")
		_, _ = w.Write([]byte(page))
		return
	}

	page, err := s.renderInvoicesPage(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Invoices page render failed", "error", err)
		http.Error(w, "could not load invoices", http.StatusInternalServerError)
		return
	}

	s.pageCache.Set(actions.InvoicesRoute, page)
	_, _ = w.Write([]byte(page))
}

type invoiceView struct {
	ID       string
	Customer string
	Email    string
	Amount   string
	Status   string
	Date     string
}

type invoicesPageData struct {
	Invoices  []invoiceView
	Customers []core.Customer
	Statuses  []core.Status
}

// renderInvoicesPage computes the full listing render. Kept separate
// from the handler so the delete path can re-render in place.
func (s *Server) renderInvoicesPage(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, partialTimeout)
	defer cancel()

	rows, err := s.reader.ListInvoices(ctx)
	if err != nil {
		return "", err
	}
	customers, err := s.reader.Customers(ctx)
	if err != nil {
		return "", err
	}

	data := invoicesPageData{
		Customers: customers,
		Statuses:  []core.Status{core.StatusPending, core.StatusPaid},
	}
	for _, row := range rows {
		data.Invoices = append(data.Invoices, invoiceView{
			ID:       row.ID,
			Customer: row.CustomerName,
			Email:    row.CustomerEmail,
			Amount:   row.Amount.Format(),
			Status:   string(row.Status),
			Date:     row.Date,
		})
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "invoices.html", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeFormError(w, r, "Formato richiesta non valido")
		return
	}

	res, err := s.acts.Create(r.Context(), r.PostForm)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}
	http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeFormError(w, r, "Formato richiesta non valido")
		return
	}

	res, err := s.acts.Update(r.Context(), r.PostForm)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}
	http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
}

// handleDeleteInvoice runs the delete action and re-renders the listing
// in place: the action carries no redirect, the invalidated cache alone
// forces the fresh render.
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeFormError(w, r, "Formato richiesta non valido")
		return
	}

	if _, err := s.acts.Delete(r.Context(), r.PostForm); err != nil {
		s.writeActionError(w, r, err)
		return
	}

	s.handleInvoicesPageAfterDelete(w, r)
}

func (s *Server) handleInvoicesPageAfterDelete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page, err := s.renderInvoicesPage(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Invoices page render failed", "error", err)
		http.Error(w, "could not load invoices", http.StatusInternalServerError)
		return
	}
	s.pageCache.Set(actions.InvoicesRoute, page)
	_, _ = w.Write([]byte(page))
}

// writeActionError maps the action error taxonomy onto HTTP responses:
// validation failures are the client's, store failures are ours.
func (s *Server) writeActionError(w http.ResponseWriter, r *http.Request, err error) {
	if core.IsValidation(err) {
		slog.WarnContext(r.Context(), "Invoice form rejected",
			applog.FieldRequestID, trace.GetRequestID(r.Context()),
			applog.FieldError, err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`<div class="error">Dati non validi: ` + template.HTMLEscapeString(validationSummary(err)) + `</div>`))
		return
	}

	slog.ErrorContext(r.Context(), "Invoice action failed",
		applog.FieldRequestID, trace.GetRequestID(r.Context()),
		applog.FieldError, err)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`<div class="error">Errore nel salvataggio</div>`))
}

// validationSummary lists the offending fields without leaking reasons'
// internal wording into a giant paragraph.
func validationSummary(err error) string {
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	fields := make([]string, 0, len(verr.Fields))
	for f := range verr.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "controlla i campi " + strings.Join(fields, ", ")
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeFormError(w http.ResponseWriter, r *http.Request, msg string) {
	slog.ErrorContext(r.Context(), "Parse form error", "path", r.URL.Path)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`<div class="error">` + template.HTMLEscapeString(msg) + `</div>`))
}
