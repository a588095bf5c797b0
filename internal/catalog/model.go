package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a tenant-scoped catalog entry referenced by document line items.
// Unit cost is locked at creation; items are archived rather than deleted so
// historical documents keep their pricing.
type Item struct {
	ID        string          `json:"id"`
	TenantID  int64           `json:"-"`
	Type      string          `json:"type,omitempty"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Taxable   bool            `json:"taxable"`
	Archived  bool            `json:"archived"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
