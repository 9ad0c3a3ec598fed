// Package storage implements the SQLite repository behind the dashboard.
// Every mutation is a single parameterized statement; user-supplied values
// are always bound, never interpolated.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fatture/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

// dsn appends the pragmas every connection needs: WAL so readers don't
// block the writer, and a busy timeout so parallel writers queue on the
// write lock instead of failing with SQLITE_BUSY.
func dsn(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InsertInvoice persists a new invoice and assigns its identity. The date
// comes from the caller's clock, already formatted as YYYY-MM-DD.
func (r *SQLiteRepository) InsertInvoice(ctx context.Context, customerID string, amountCents int64, status core.Status, date string) (core.Invoice, error) {
	inv := core.Invoice{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Amount:     core.Money{Cents: amountCents},
		Status:     status,
		Date:       date,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invoices (id, customer_id, amount, status, date) VALUES (?, ?, ?, ?, ?)`,
		inv.ID, inv.CustomerID, inv.Amount.Cents, string(inv.Status), inv.Date)
	if err != nil {
		return core.Invoice{}, &core.PersistenceError{Op: "insert invoice", Err: err}
	}

	slog.InfoContext(ctx, "Invoice saved",
		"id", inv.ID,
		"customer_id", inv.CustomerID,
		"amount_cents", inv.Amount.Cents,
		"status", inv.Status)

	return inv, nil
}

// UpdateInvoice rewrites customer, amount and status of the row matching
// id. The id and date columns are never touched. A missing id is a no-op:
// zero affected rows is not an error.
func (r *SQLiteRepository) UpdateInvoice(ctx context.Context, id, customerID string, amountCents int64, status core.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET customer_id = ?, amount = ?, status = ?, exported = 0 WHERE id = ?`,
		customerID, amountCents, string(status), id)
	if err != nil {
		return &core.PersistenceError{Op: "update invoice", Err: err}
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.WarnContext(ctx, "Update matched no invoice", "id", id)
	}
	return nil
}

// DeleteInvoice removes the row matching id. Deleting a non-existent id
// is an idempotent no-op.
func (r *SQLiteRepository) DeleteInvoice(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return &core.PersistenceError{Op: "delete invoice", Err: err}
	}
	return nil
}

// GetInvoice loads a single invoice by id.
func (r *SQLiteRepository) GetInvoice(ctx context.Context, id string) (core.Invoice, error) {
	var inv core.Invoice
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, customer_id, amount, status, date FROM invoices WHERE id = ?`, id).
		Scan(&inv.ID, &inv.CustomerID, &inv.Amount.Cents, &status, &inv.Date)
	if err != nil {
		return core.Invoice{}, &core.PersistenceError{Op: "get invoice", Err: err}
	}
	inv.Status = core.Status(status)
	return inv, nil
}

// InvoiceRow is an invoice joined with its customer for the listing page.
type InvoiceRow struct {
	core.Invoice
	CustomerName  string
	CustomerEmail string
}

// ListInvoices returns every invoice, newest first, joined with customers.
func (r *SQLiteRepository) ListInvoices(ctx context.Context) ([]InvoiceRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.customer_id, i.amount, i.status, i.date, c.name, c.email
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		ORDER BY i.date DESC, i.created_at DESC`)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list invoices", Err: err}
	}
	defer rows.Close()

	var out []InvoiceRow
	for rows.Next() {
		var row InvoiceRow
		var status string
		if err := rows.Scan(&row.ID, &row.CustomerID, &row.Amount.Cents, &status, &row.Date, &row.CustomerName, &row.CustomerEmail); err != nil {
			return nil, &core.PersistenceError{Op: "list invoices", Err: err}
		}
		row.Status = core.Status(status)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "list invoices", Err: err}
	}
	return out, nil
}

// LatestInvoices returns the most recent invoices joined with customers.
func (r *SQLiteRepository) LatestInvoices(ctx context.Context, limit int) ([]core.LatestInvoice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, c.name, c.email, i.amount
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		ORDER BY i.date DESC, i.created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, &core.PersistenceError{Op: "latest invoices", Err: err}
	}
	defer rows.Close()

	var out []core.LatestInvoice
	for rows.Next() {
		var li core.LatestInvoice
		if err := rows.Scan(&li.ID, &li.CustomerName, &li.Email, &li.Amount.Cents); err != nil {
			return nil, &core.PersistenceError{Op: "latest invoices", Err: err}
		}
		out = append(out, li)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "latest invoices", Err: err}
	}
	return out, nil
}

// CardData computes the four overview aggregates. The queries are
// independent and run concurrently on the pool.
func (r *SQLiteRepository) CardData(ctx context.Context) (core.CardData, error) {
	var data core.CardData

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.db.QueryRowContext(gctx, `SELECT COUNT(*) FROM invoices`).Scan(&data.InvoiceCount)
	})
	g.Go(func() error {
		return r.db.QueryRowContext(gctx, `SELECT COUNT(*) FROM customers`).Scan(&data.CustomerCount)
	})
	g.Go(func() error {
		return r.db.QueryRowContext(gctx,
			`SELECT COALESCE(SUM(amount), 0) FROM invoices WHERE status = 'paid'`).Scan(&data.TotalPaid.Cents)
	})
	g.Go(func() error {
		return r.db.QueryRowContext(gctx,
			`SELECT COALESCE(SUM(amount), 0) FROM invoices WHERE status = 'pending'`).Scan(&data.TotalPending.Cents)
	})
	if err := g.Wait(); err != nil {
		return core.CardData{}, &core.PersistenceError{Op: "card data", Err: err}
	}
	return data, nil
}

// MonthlyRevenue returns the chart series in calendar order.
func (r *SQLiteRepository) MonthlyRevenue(ctx context.Context) ([]core.MonthRevenue, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT month, revenue FROM revenue ORDER BY month_index`)
	if err != nil {
		return nil, &core.PersistenceError{Op: "monthly revenue", Err: err}
	}
	defer rows.Close()

	var out []core.MonthRevenue
	for rows.Next() {
		var mr core.MonthRevenue
		if err := rows.Scan(&mr.Month, &mr.Revenue.Cents); err != nil {
			return nil, &core.PersistenceError{Op: "monthly revenue", Err: err}
		}
		out = append(out, mr)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "monthly revenue", Err: err}
	}
	return out, nil
}

// Customers returns the seeded customers for the invoice forms.
func (r *SQLiteRepository) Customers(ctx context.Context) ([]core.Customer, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, email FROM customers ORDER BY name`)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list customers", Err: err}
	}
	defer rows.Close()

	var out []core.Customer
	for rows.Next() {
		var c core.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, &core.PersistenceError{Op: "list customers", Err: err}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "list customers", Err: err}
	}
	return out, nil
}

// UnexportedInvoices returns invoices the ledger worker has not pushed
// yet. A backup path in case event messages are lost.
func (r *SQLiteRepository) UnexportedInvoices(ctx context.Context, limit int) ([]core.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_id, amount, status, date
		FROM invoices WHERE exported = 0
		ORDER BY created_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, &core.PersistenceError{Op: "unexported invoices", Err: err}
	}
	defer rows.Close()

	var out []core.Invoice
	for rows.Next() {
		var inv core.Invoice
		var status string
		if err := rows.Scan(&inv.ID, &inv.CustomerID, &inv.Amount.Cents, &status, &inv.Date); err != nil {
			return nil, &core.PersistenceError{Op: "unexported invoices", Err: err}
		}
		inv.Status = core.Status(status)
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "unexported invoices", Err: err}
	}
	return out, nil
}

// MarkExported flags an invoice as pushed to the ledger.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE invoices SET exported = 1 WHERE id = ?`, id)
	if err != nil {
		return &core.PersistenceError{Op: "mark exported", Err: err}
	}
	return nil
}
