package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	StatusPaid    Status = "paid"
	StatusPending Status = "pending"
)

// DateLayout is the wire and storage format for invoice dates.
const DateLayout = "2006-01-02"

type (
	// Status is the invoice lifecycle state. Exactly two values exist;
	// there is no default and no null.
	Status string

	Money struct {
		Cents int64
	}

	// Invoice is a persisted invoice row. ID and Date are assigned by the
	// server at creation time and never change afterwards.
	Invoice struct {
		ID         string
		CustomerID string
		Amount     Money
		Status     Status
		Date       string // YYYY-MM-DD
	}

	// Customer is read-only reference data managed by migrations.
	Customer struct {
		ID    string
		Name  string
		Email string
	}

	// LatestInvoice is an invoice joined with its customer for display.
	LatestInvoice struct {
		ID           string
		CustomerName string
		Email        string
		Amount       Money
	}

	// CardData holds the aggregate figures for the overview cards.
	CardData struct {
		InvoiceCount  int64
		CustomerCount int64
		TotalPaid     Money
		TotalPending  Money
	}

	// MonthRevenue is one bar of the revenue chart.
	MonthRevenue struct {
		Month   string // Jan..Dec
		Revenue Money
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyField    = errors.New("missing required field")
)

// ParseStatus coerces a raw form value into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.TrimSpace(s)) {
	case StatusPaid:
		return StatusPaid, nil
	case StatusPending:
		return StatusPending, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Today returns the server-clock date in storage format.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// ParseDate checks that s is a well-formed YYYY-MM-DD date.
func ParseDate(s string) (string, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalidDate
	}
	return t.Format(DateLayout), nil
}

func (s Status) Valid() bool {
	return s == StatusPaid || s == StatusPending
}

func (inv Invoice) Validate() error {
	if strings.TrimSpace(inv.CustomerID) == "" {
		return fmt.Errorf("customer: %w", ErrEmptyField)
	}
	if err := inv.Amount.Validate(); err != nil {
		return err
	}
	if !inv.Status.Valid() {
		return ErrInvalidStatus
	}
	if inv.Date != "" {
		if _, err := ParseDate(inv.Date); err != nil {
			return err
		}
	}
	return nil
}

// ValidationError reports every field of a form submission that violated
// its constraint. It is produced before any side effect; an action that
// returns one has not touched the store.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add records a violation for a field.
func (e *ValidationError) Add(field, reason string) {
	e.Fields[field] = append(e.Fields[field], reason)
}

// Empty reports whether no violations were recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+strings.Join(e.Fields[f], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// PersistenceError wraps a store failure. It is returned after validation
// succeeded but before any cache invalidation or redirect happened.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
