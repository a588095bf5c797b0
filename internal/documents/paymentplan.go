package documents

import (
	"time"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Installment is one scheduled slice of an invoice's payment plan.
type Installment struct {
	Date    time.Time `json:"date"`
	Amount  int64     `json:"amount"`
	Balance int64     `json:"balance"`
}

// PaymentPlan schedules an invoice balance across installments. While a plan
// is attached the invoice total is immutable.
type PaymentPlan struct {
	ID           int64         `json:"id"`
	TenantID     int64         `json:"-"`
	InvoiceID    int64         `json:"invoice_id"`
	Installments []Installment `json:"installments"`
	CreatedAt    time.Time     `json:"created_at"`
}

// NewPaymentPlan validates the schedule against the invoice. Installment
// amounts must cover the invoice balance exactly and be chronological.
func NewPaymentPlan(inv *Document, installments []Installment) (*PaymentPlan, error) {
	var errs shared.ValidationErrors
	if inv.Kind != KindInvoice {
		errs.Add("payment plans attach to invoices only")
	}
	if inv.Draft {
		errs.Add("payment plans require an issued invoice")
	}
	if len(installments) == 0 {
		errs.Add("at least one installment is required")
	}
	var sum int64
	for i := range installments {
		if installments[i].Amount <= 0 {
			errs.Add("installment amounts must be positive")
			break
		}
		if i > 0 && installments[i].Date.Before(installments[i-1].Date) {
			errs.Add("installments must be in chronological order")
			break
		}
		sum += installments[i].Amount
	}
	if len(installments) > 0 && sum != inv.Balance {
		errs.Add("installments must sum to the invoice balance")
	}
	if errs.Any() {
		return nil, &errs
	}
	plan := &PaymentPlan{TenantID: inv.TenantID, InvoiceID: inv.ID, Installments: make([]Installment, len(installments))}
	copy(plan.Installments, installments)
	for i := range plan.Installments {
		plan.Installments[i].Balance = plan.Installments[i].Amount
	}
	return plan, nil
}

// Allocate applies a payment against the earliest unpaid installment first,
// carrying overflow into the next. Returns the unallocated remainder.
func (p *PaymentPlan) Allocate(amount int64) int64 {
	for i := range p.Installments {
		if amount <= 0 {
			break
		}
		inst := &p.Installments[i]
		if inst.Balance == 0 {
			continue
		}
		applied := amount
		if applied > inst.Balance {
			applied = inst.Balance
		}
		inst.Balance -= applied
		amount -= applied
	}
	return amount
}

// Outstanding sums the unpaid installment balances.
func (p *PaymentPlan) Outstanding() int64 {
	var sum int64
	for _, inst := range p.Installments {
		sum += inst.Balance
	}
	return sum
}

// NextDue returns the earliest installment with an unpaid balance.
func (p *PaymentPlan) NextDue() *Installment {
	for i := range p.Installments {
		if p.Installments[i].Balance > 0 {
			return &p.Installments[i]
		}
	}
	return nil
}
