package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind discriminates the rate families applied to receivable documents.
type Kind string

const (
	KindDiscount Kind = "discount"
	KindTax      Kind = "tax"
	KindShipping Kind = "shipping"
)

// Rate is a named, tenant-scoped rate definition (coupon, tax rate or
// shipping rate). Rates are archived, never destroyed, so historical
// documents keep resolving their snapshots.
type Rate struct {
	ID        string          `json:"id"`
	TenantID  int64           `json:"-"`
	Kind      Kind            `json:"kind"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency,omitempty"`
	IsPercent bool            `json:"is_percent"`
	Value     decimal.Decimal `json:"value"`
	Archived  bool            `json:"archived"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Snapshot returns the fields of the rate that are frozen onto documents.
func (r *Rate) Snapshot() Rate {
	cp := *r
	return cp
}
