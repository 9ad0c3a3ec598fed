// Package http serves the dashboard pages and the invoice form endpoints.
//
// The invoices listing is rendered once and cached per route; the three
// mutation actions invalidate it. The overview page is always computed
// fresh, with each region loading from its own partial endpoint so a slow
// data source never blocks the others.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fatture/internal/actions"
	"fatture/internal/cache"
	"fatture/internal/core"
	applog "fatture/internal/log"
	"fatture/internal/middleware/ratelimit"
	"fatture/internal/middleware/security"
	"fatture/internal/middleware/trace"
	"fatture/internal/storage"
	appweb "fatture/web"
)

// DashboardReader supplies the three overview regions.
type DashboardReader interface {
	CardData(ctx context.Context) (core.CardData, error)
	MonthlyRevenue(ctx context.Context) ([]core.MonthRevenue, error)
	LatestInvoices(ctx context.Context, limit int) ([]core.LatestInvoice, error)
}

// InvoiceReader supplies the listing page and its forms.
type InvoiceReader interface {
	ListInvoices(ctx context.Context) ([]storage.InvoiceRow, error)
	Customers(ctx context.Context) ([]core.Customer, error)
}

// Reader is the full read path behind the server.
type Reader interface {
	DashboardReader
	InvoiceReader
}

// Options tunes the route cache.
type Options struct {
	CacheTTL     time.Duration
	CacheEntries int
}

func (o *Options) fill() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.CacheEntries <= 0 {
		o.CacheEntries = 100
	}
}

type Server struct {
	http.Server
	templates *template.Template
	reader    Reader
	acts      *actions.Actions

	// Rendered-page cache keyed by logical route.
	pageCache *cache.LRU[string]
	cacheMgr  *cache.Manager

	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes, templates and the route cache, returning
// a ready-to-run server. The actions receive the server itself as their
// cache invalidation boundary.
func NewServer(addr string, reader Reader, store actions.Store, opts Options) *Server {
	opts.fill()

	mux := http.NewServeMux()
	s := &Server{
		reader:    reader,
		pageCache: cache.NewLRU[string](opts.CacheEntries, opts.CacheTTL),
		cacheMgr:  cache.NewManager(),
		limiter:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}
	s.acts = actions.New(store, s)

	s.cacheMgr.Register(s.pageCache)
	s.cacheMgr.StartCleanup(10 * time.Minute)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/dashboard", s.handleOverview)
	mux.HandleFunc("/dashboard/invoices", s.handleInvoicesPage)
	mux.HandleFunc("/ui/cards", s.handleCards)
	mux.HandleFunc("/ui/revenue-chart", s.handleRevenueChart)
	mux.HandleFunc("/ui/latest-invoices", s.handleLatestInvoices)

	mux.HandleFunc("/invoices", s.handleCreateInvoice)
	mux.HandleFunc("/invoices/update", s.handleUpdateInvoice)
	mux.HandleFunc("/invoices/delete", s.handleDeleteInvoice)

	var handler http.Handler = mux
	handler = s.withRateLimit(handler)
	handler = security.Headers(handler)
	handler = trace.Middleware(security.ClientIP)(handler)

	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}

	return s
}

// Invalidate implements actions.Invalidator: it discards the cached
// render of a logical route.
func (s *Server) Invalidate(route string) {
	s.pageCache.Delete(route)
	slog.Debug("Route cache invalidated", applog.FieldRoute, route)
}

// withRateLimit applies the per-IP limit to form submissions only.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			clientIP := security.ClientIP(r)
			if !s.limiter.Allow(clientIP) {
				slog.WarnContext(r.Context(), "Rate limit exceeded",
					applog.FieldClientIP, clientIP, applog.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the cleanup goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheMgr.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if _, err := s.reader.Customers(ctx); err != nil {
		slog.ErrorContext(ctx, "Readiness check failed", applog.FieldError, err)
		http.Error(w, "store not reachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
