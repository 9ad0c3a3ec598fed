// Package schema defines the canonical shape of an invoice form submission
// and derives the narrowed validators used by the mutation actions.
//
// There is exactly one field table. The create, update and delete schemas
// are structural projections of it (omit/pick), so a change to a shared
// field constraint cannot drift between the three.
package schema

import (
	"net/url"
	"strings"

	"fatture/internal/core"
)

// Record is a fully coerced invoice submission. Only the fields selected
// by the schema that produced it are populated; everything else is zero.
type Record struct {
	ID          string
	CustomerID  string
	AmountCents int64
	Status      core.Status
	Date        string // YYYY-MM-DD
}

type field struct {
	name  string
	apply func(raw string, rec *Record) (reason string)
}

// Schema validates a form submission against a selection of the canonical
// invoice fields.
type Schema struct {
	name   string
	fields []field
}

// canonical is the single source of truth for invoice field constraints.
var canonical = []field{
	{name: "id", apply: func(raw string, rec *Record) string {
		rec.ID = strings.TrimSpace(raw)
		return ""
	}},
	{name: "customerId", apply: func(raw string, rec *Record) string {
		rec.CustomerID = strings.TrimSpace(raw)
		return ""
	}},
	{name: "amount", apply: func(raw string, rec *Record) string {
		cents, err := core.ParseDecimalToCents(raw)
		if err != nil {
			return "must be a positive decimal amount"
		}
		rec.AmountCents = cents
		return ""
	}},
	{name: "status", apply: func(raw string, rec *Record) string {
		st, err := core.ParseStatus(raw)
		if err != nil {
			return "must be one of: paid, pending"
		}
		rec.Status = st
		return ""
	}},
	{name: "date", apply: func(raw string, rec *Record) string {
		d, err := core.ParseDate(raw)
		if err != nil {
			return "must be a YYYY-MM-DD date"
		}
		rec.Date = d
		return ""
	}},
}

// Invoice is the canonical schema with every field required.
func Invoice() Schema {
	return Schema{name: "invoice", fields: canonical}
}

// CreateInvoice omits id and date: both are assigned server-side.
func CreateInvoice() Schema {
	return Invoice().omit("id", "date").named("create_invoice")
}

// UpdateInvoice omits only date: id locates the target row, date is
// immutable after creation.
func UpdateInvoice() Schema {
	return Invoice().omit("date").named("update_invoice")
}

// DeleteInvoice narrows to just the id.
func DeleteInvoice() Schema {
	return Invoice().pick("id").named("delete_invoice")
}

func (s Schema) named(name string) Schema {
	s.name = name
	return s
}

func (s Schema) omit(names ...string) Schema {
	kept := make([]field, 0, len(s.fields))
	for _, f := range s.fields {
		if !contains(names, f.name) {
			kept = append(kept, f)
		}
	}
	s.fields = kept
	return s
}

func (s Schema) pick(names ...string) Schema {
	kept := make([]field, 0, len(names))
	for _, f := range s.fields {
		if contains(names, f.name) {
			kept = append(kept, f)
		}
	}
	s.fields = kept
	return s
}

// Name identifies the schema in logs.
func (s Schema) Name() string { return s.name }

// Fields lists the required form keys, in canonical order.
func (s Schema) Fields() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.name
	}
	return names
}

// Parse validates form against the schema's field selection. On failure it
// returns a *core.ValidationError enumerating every violating field; the
// returned Record is then meaningless. Keys outside the selection are
// ignored and never reach the Record.
func (s Schema) Parse(form url.Values) (Record, error) {
	var rec Record
	verr := core.NewValidationError()
	for _, f := range s.fields {
		raw := form.Get(f.name)
		if strings.TrimSpace(raw) == "" {
			verr.Add(f.name, "required")
			continue
		}
		if reason := f.apply(raw, &rec); reason != "" {
			verr.Add(f.name, reason)
		}
	}
	if !verr.Empty() {
		return Record{}, verr
	}
	return rec, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
