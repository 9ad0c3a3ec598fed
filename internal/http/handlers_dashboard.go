package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// partialTimeout bounds each region's data fetch so a hanging query
// degrades one region instead of the whole page.
const partialTimeout = 7 * time.Second

// handleOverview renders the dashboard shell. The three regions load
// from their own endpoints, so the shell itself carries no data and is
// never cached.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "path", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	// Aggregates are time-sensitive; always compute fresh.
	w.Header().Set("Cache-Control", "no-store")
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", nil); err != nil {
		slog.ErrorContext(r.Context(), "Dashboard template execution failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleCards renders the summary cards partial.
func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	ctx, cancel := context.WithTimeout(r.Context(), partialTimeout)
	defer cancel()

	data, err := s.reader.CardData(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Card data error", "error", err)
		s.renderPartialError(w, "cards")
		return
	}

	view := struct {
		Collected string
		Pending   string
		Invoices  int64
		Customers int64
	}{
		Collected: data.TotalPaid.Format(),
		Pending:   data.TotalPending.Format(),
		Invoices:  data.InvoiceCount,
		Customers: data.CustomerCount,
	}
	if err := s.templates.ExecuteTemplate(w, "cards.html", view); err != nil {
		slog.ErrorContext(ctx, "Cards template error", "error", err)
		s.renderPartialError(w, "cards")
	}
}

// handleRevenueChart renders the monthly revenue bars.
func (s *Server) handleRevenueChart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	ctx, cancel := context.WithTimeout(r.Context(), partialTimeout)
	defer cancel()

	series, err := s.reader.MonthlyRevenue(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Revenue series error", "error", err)
		s.renderPartialError(w, "revenue-chart")
		return
	}

	var maxCents int64
	for _, mr := range series {
		if mr.Revenue.Cents > maxCents {
			maxCents = mr.Revenue.Cents
		}
	}

	type bar struct {
		Month  string
		Amount string
		Height int // percent of the tallest bar
	}
	bars := make([]bar, 0, len(series))
	for _, mr := range series {
		height := 0
		if maxCents > 0 && mr.Revenue.Cents > 0 {
			height = int((mr.Revenue.Cents*100 + maxCents/2) / maxCents)
			if height < 2 {
				height = 2 // keep tiny months visible
			}
			if height > 100 {
				height = 100
			}
		}
		bars = append(bars, bar{Month: mr.Month, Amount: mr.Revenue.Format(), Height: height})
	}

	if err := s.templates.ExecuteTemplate(w, "revenue_chart.html", bars); err != nil {
		slog.ErrorContext(ctx, "Revenue chart template error", "error", err)
		s.renderPartialError(w, "revenue-chart")
	}
}

// handleLatestInvoices renders the most recent invoices partial.
func (s *Server) handleLatestInvoices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	ctx, cancel := context.WithTimeout(r.Context(), partialTimeout)
	defer cancel()

	latest, err := s.reader.LatestInvoices(ctx, 5)
	if err != nil {
		slog.ErrorContext(ctx, "Latest invoices error", "error", err)
		s.renderPartialError(w, "latest-invoices")
		return
	}

	type row struct {
		Name   string
		Email  string
		Amount string
	}
	rows := make([]row, 0, len(latest))
	for _, li := range latest {
		rows = append(rows, row{Name: li.CustomerName, Email: li.Email, Amount: li.Amount.Format()})
	}

	if err := s.templates.ExecuteTemplate(w, "latest_invoices.html", rows); err != nil {
		slog.ErrorContext(ctx, "Latest invoices template error", "error", err)
		s.renderPartialError(w, "latest-invoices")
	}
}

func (s *Server) renderPartialError(w http.ResponseWriter, region string) {
	_, _ = w.Write([]byte(`<div class="placeholder error" data-region="` + region + `">Errore caricando i dati</div>`))
}
