package documents

import (
	"time"

	"github.com/ledgerline/ledgerline/internal/rates"
)

// Kind discriminates the receivable document types sharing the calculation
// engine and lifecycle rules.
type Kind string

const (
	KindInvoice    Kind = "invoice"
	KindCreditNote Kind = "credit_note"
	KindEstimate   Kind = "estimate"
)

// Label returns the human-readable name used in error messages.
func (k Kind) Label() string {
	switch k {
	case KindInvoice:
		return "invoice"
	case KindCreditNote:
		return "credit note"
	case KindEstimate:
		return "estimate"
	}
	return "document"
}

// NumberPrefix returns the formatted-number prefix for the kind.
func (k Kind) NumberPrefix() string {
	switch k {
	case KindInvoice:
		return "INV"
	case KindCreditNote:
		return "CN"
	case KindEstimate:
		return "EST"
	}
	return "DOC"
}

// Status is the derived lifecycle state of a document.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusOpen    Status = "open"
	StatusPaid    Status = "paid"
	StatusClosed  Status = "closed"
	StatusVoided  Status = "voided"
	StatusBadDebt Status = "bad_debt"
)

// Document is the shared supertype for invoices, credit notes and estimates.
// Kind-specific behaviour (void preconditions, numbering prefix, which
// balance counters apply) is parameterized by Kind rather than inheritance.
type Document struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"-"`
	Kind       Kind      `json:"kind"`
	CustomerID int64     `json:"customer_id"`
	Currency   string    `json:"currency"`
	Number     string    `json:"number"`
	Date       time.Time `json:"date"`
	Name       string    `json:"name,omitempty"`
	Notes      string    `json:"notes,omitempty"`

	Items     []LineItem      `json:"items"`
	Discounts []rates.Applied `json:"discounts"`
	Taxes     []rates.Applied `json:"taxes"`
	Shipping  []rates.Applied `json:"shipping"`

	Subtotal int64 `json:"subtotal"`
	Total    int64 `json:"total"`
	Balance  int64 `json:"balance"`

	// Balance counters. AmountPaid/AmountCredited apply to invoices;
	// AmountRefunded/AmountApplied/CreditedToBalance to credit notes;
	// DepositPaid to estimates.
	AmountPaid        int64 `json:"amount_paid,omitempty"`
	AmountCredited    int64 `json:"amount_credited,omitempty"`
	AmountRefunded    int64 `json:"amount_refunded,omitempty"`
	AmountApplied     int64 `json:"amount_applied,omitempty"`
	CreditedToBalance int64 `json:"credited_to_balance,omitempty"`
	DepositPaid       int64 `json:"deposit_paid,omitempty"`

	Draft  bool `json:"draft"`
	Closed bool `json:"closed"`
	Voided bool `json:"voided"`
	Sent   bool `json:"sent"`
	Chase  bool `json:"chase"`

	DatePaid    *time.Time `json:"date_paid,omitempty"`
	DateVoided  *time.Time `json:"date_voided,omitempty"`
	DateBadDebt *time.Time `json:"date_bad_debt,omitempty"`

	// PendingTransactions counts non-final transactions attached to the
	// document; a non-zero count freezes the computed total.
	PendingTransactions int    `json:"-"`
	PaymentPlanID       *int64 `json:"payment_plan_id,omitempty"`

	// InvoicedID links an estimate to the invoice generated from it.
	InvoicedID *int64 `json:"invoiced_id,omitempty"`

	ClientID        string     `json:"client_id,omitempty"`
	ClientIDExpires *time.Time `json:"-"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status derives the lifecycle state. BadDebt is an overlay on Closed and
// takes precedence only when the closed document carries a bad-debt date and
// no payment.
func (d *Document) Status() Status {
	switch {
	case d.Voided:
		return StatusVoided
	case d.Closed && d.DateBadDebt != nil && d.AmountPaid == 0:
		return StatusBadDebt
	case d.Closed:
		return StatusClosed
	case d.Draft:
		return StatusDraft
	case d.paidInFull():
		return StatusPaid
	}
	return StatusOpen
}

func (d *Document) paidInFull() bool {
	if d.Total == 0 {
		return false
	}
	return d.Balance == 0
}

// TotalLocked reports whether the computed total may not change: a pending
// transaction or an attached payment plan pins it.
func (d *Document) TotalLocked() bool {
	return d.PendingTransactions > 0 || d.PaymentPlanID != nil
}

// ReconcileBalance re-derives Balance from the kind's counters. A voided
// document keeps a zero balance no matter what the counters say, so system
// recalculation cannot revive it.
func (d *Document) ReconcileBalance() {
	if d.Voided {
		d.Balance = 0
		return
	}
	switch d.Kind {
	case KindCreditNote:
		d.Balance = d.Total - d.AmountRefunded - d.AmountApplied - d.CreditedToBalance
	case KindEstimate:
		d.Balance = d.Total - d.DepositPaid
	default:
		d.Balance = d.Total - d.AmountPaid - d.AmountCredited
	}
}

// ToMap produces the stable serialization contract consumed by the event and
// search collaborators. Field presence follows the API response shape:
// nullable dates are omitted when unset, metadata is a plain map.
func (d *Document) ToMap() map[string]any {
	m := map[string]any{
		"id":          d.ID,
		"kind":        string(d.Kind),
		"customer_id": d.CustomerID,
		"currency":    d.Currency,
		"number":      d.Number,
		"date":        d.Date,
		"subtotal":    d.Subtotal,
		"total":       d.Total,
		"balance":     d.Balance,
		"status":      string(d.Status()),
		"draft":       d.Draft,
		"closed":      d.Closed,
		"voided":      d.Voided,
		"sent":        d.Sent,
		"chase":       d.Chase,
		"created_at":  d.CreatedAt,
		"updated_at":  d.UpdatedAt,
	}
	if d.Name != "" {
		m["name"] = d.Name
	}
	if d.Notes != "" {
		m["notes"] = d.Notes
	}
	if d.DatePaid != nil {
		m["date_paid"] = *d.DatePaid
	}
	if d.DateVoided != nil {
		m["date_voided"] = *d.DateVoided
	}
	if d.DateBadDebt != nil {
		m["date_bad_debt"] = *d.DateBadDebt
	}
	if len(d.Metadata) > 0 {
		meta := make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = v
		}
		m["metadata"] = meta
	}
	switch d.Kind {
	case KindCreditNote:
		m["amount_refunded"] = d.AmountRefunded
		m["amount_applied"] = d.AmountApplied
		m["credited_to_balance"] = d.CreditedToBalance
	case KindEstimate:
		m["deposit_paid"] = d.DepositPaid
		if d.InvoicedID != nil {
			m["invoiced_id"] = *d.InvoicedID
		}
	default:
		m["amount_paid"] = d.AmountPaid
		m["amount_credited"] = d.AmountCredited
	}
	return m
}
