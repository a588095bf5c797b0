package customers

import "time"

// Customer is the receivable counterparty. CreditBalance holds unapplied
// credit in minor units of the customer's currency, consumed by credit
// auto-application against open invoices.
type Customer struct {
	ID            int64     `json:"id"`
	TenantID      int64     `json:"-"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	Currency      string    `json:"currency"`
	CreditBalance int64     `json:"credit_balance"`
	AutoApply     bool      `json:"auto_apply_credits"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
