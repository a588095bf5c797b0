package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/money"
)

// Applied is a rate application against a line item or a document subtotal.
// It freezes the resolved rate snapshot so later edits or archival of the
// underlying rate do not rewrite history.
type Applied struct {
	ID               int64           `json:"id,omitempty"`
	Kind             Kind            `json:"kind"`
	RateID           string          `json:"rate_id,omitempty"`
	Rate             *Rate           `json:"rate,omitempty"`
	Amount           int64           `json:"amount"`
	IsPercent        bool            `json:"is_percent"`
	Value            decimal.Decimal `json:"value"`
	Expires          *time.Time      `json:"expires,omitempty"`
	FromPaymentTerms bool            `json:"from_payment_terms,omitempty"`
	Order            int             `json:"order,omitempty"`

	// Scope of the application, used by Compare.
	InItems    bool `json:"-"`
	InSubtotal bool `json:"-"`

	seq int
}

// Expired reports whether the application is past its expiry.
func (a *Applied) Expired(now time.Time) bool {
	return a.Expires != nil && a.Expires.Before(now)
}

// Input is one raw element of a discounts/taxes/shipping payload. The wire
// form is either a bare rate id string or an object carrying a custom rate.
type Input struct {
	RateID           string           `json:"rate_id"`
	IsPercent        *bool            `json:"is_percent"`
	Value            *decimal.Decimal `json:"value"`
	Amount           *decimal.Decimal `json:"amount"`
	Expires          *time.Time       `json:"expires"`
	FromPaymentTerms bool             `json:"from_payment_terms"`
	Order            int              `json:"order"`

	bareID bool
}

// UnmarshalJSON accepts either "coupon-id" or a rate payload object.
func (in *Input) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*in = Input{RateID: id, bareID: true}
		return nil
	}
	type alias Input
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*in = Input(a)
	return nil
}

// Resolver looks up the last-known snapshot of a rate. Archived rates still
// resolve; ids that never existed return shared.ErrNotFound from storage and
// are surfaced as nil snapshots preserved by id.
type Resolver interface {
	Snapshot(ctx context.Context, tenantID int64, kind Kind, id string) (*Rate, error)
}

// ExpandList resolves each raw element into an Applied entry and collapses
// exact duplicates. Two entries referencing the same rate but differing in
// any other field stay distinct; snapshot equality is field-exact, timestamps
// included.
func ExpandList(ctx context.Context, resolver Resolver, tenantID int64, kind Kind, raw []Input) ([]Applied, error) {
	var out []Applied
	for i, in := range raw {
		entry := Applied{
			Kind:             kind,
			RateID:           in.RateID,
			FromPaymentTerms: in.FromPaymentTerms,
			Expires:          in.Expires,
			Order:            in.Order,
			seq:              i,
		}
		if in.RateID != "" {
			snap, err := resolver.Snapshot(ctx, tenantID, kind, in.RateID)
			if err != nil {
				return nil, fmt.Errorf("rates: resolve %s %q: %w", kind, in.RateID, err)
			}
			entry.Rate = snap
			if snap != nil {
				entry.IsPercent = snap.IsPercent
				entry.Value = snap.Value
			}
		}
		if !in.bareID {
			if in.IsPercent != nil {
				entry.IsPercent = *in.IsPercent
			}
			if in.Value != nil {
				entry.Value = *in.Value
			}
			if in.Amount != nil && in.Value == nil {
				entry.IsPercent = false
				entry.Value = *in.Amount
			}
		}
		if containsApplied(out, entry) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func containsApplied(list []Applied, entry Applied) bool {
	for _, existing := range list {
		if equalApplied(existing, entry) {
			return true
		}
	}
	return false
}

func equalApplied(a, b Applied) bool {
	if a.Kind != b.Kind || a.RateID != b.RateID ||
		a.IsPercent != b.IsPercent || !a.Value.Equal(b.Value) ||
		a.FromPaymentTerms != b.FromPaymentTerms || a.Order != b.Order {
		return false
	}
	if (a.Expires == nil) != (b.Expires == nil) {
		return false
	}
	if a.Expires != nil && !a.Expires.Equal(*b.Expires) {
		return false
	}
	if (a.Rate == nil) != (b.Rate == nil) {
		return false
	}
	if a.Rate != nil {
		ra, rb := *a.Rate, *b.Rate
		if ra.ID != rb.ID || ra.Kind != rb.Kind || ra.Name != rb.Name ||
			ra.Currency != rb.Currency || ra.IsPercent != rb.IsPercent ||
			!ra.Value.Equal(rb.Value) || ra.Archived != rb.Archived ||
			!ra.CreatedAt.Equal(rb.CreatedAt) || !ra.UpdatedAt.Equal(rb.UpdatedAt) {
			return false
		}
	}
	return true
}

// Compare orders two applications for deterministic amount calculation:
// item-scoped before subtotal-scoped, then Order ascending, then insertion
// order.
func Compare(a, b Applied) int {
	scopeA := scopeRank(a)
	scopeB := scopeRank(b)
	if scopeA != scopeB {
		if scopeA < scopeB {
			return -1
		}
		return 1
	}
	if a.Order != b.Order {
		if a.Order < b.Order {
			return -1
		}
		return 1
	}
	if a.seq != b.seq {
		if a.seq < b.seq {
			return -1
		}
		return 1
	}
	return 0
}

func scopeRank(a Applied) int {
	if a.InItems {
		return 0
	}
	if a.InSubtotal {
		return 1
	}
	return 2
}

// SortApplied sorts entries in place by Compare.
func SortApplied(entries []Applied) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Compare(entries[i], entries[j]) < 0
	})
}

// CalculateAmount resolves the monetary amount of an application against a
// base. A resolved or custom percentage applies to the base; a fixed value
// converts to minor units as given; an entry with neither yields zero.
func CalculateAmount(currency string, baseMinorUnits int64, a Applied) int64 {
	if a.Rate == nil && a.Value.IsZero() {
		return 0
	}
	return money.ApplyRate(currency, baseMinorUnits, money.Rate{
		IsPercent: a.IsPercent,
		Value:     a.Value,
	}).Amount
}
