package documents

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/rates"
	"github.com/ledgerline/ledgerline/internal/shared"
)

const (
	maxMetadataKeys     = 10
	maxMetadataKeyLen   = 40
	maxMetadataValueLen = 255
)

// LineItem is a single priced entry on a receivable document. It owns its
// discount and tax sublists and computes its own amount.
type LineItem struct {
	ID          int64  `json:"id,omitempty"`
	TenantID    int64  `json:"-"`
	Type        string `json:"type,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Parent references are mutually exclusive; SetParent enforces it.
	InvoiceID    *int64 `json:"invoice_id,omitempty"`
	CreditNoteID *int64 `json:"credit_note_id,omitempty"`
	EstimateID   *int64 `json:"estimate_id,omitempty"`
	CustomerID   *int64 `json:"customer_id,omitempty"`

	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	Amount        int64           `json:"amount"`
	Discountable  bool            `json:"discountable"`
	Taxable       bool            `json:"taxable"`
	CatalogItemID string          `json:"catalog_item_id,omitempty"`

	Discounts []rates.Applied `json:"discounts"`
	Taxes     []rates.Applied `json:"taxes"`

	Metadata map[string]string `json:"metadata,omitempty"`

	Order int `json:"-"`
}

// SetParent assigns the owning document, clearing any other parent.
func (li *LineItem) SetParent(kind Kind, id int64) {
	li.InvoiceID, li.CreditNoteID, li.EstimateID, li.CustomerID = nil, nil, nil, nil
	switch kind {
	case KindCreditNote:
		li.CreditNoteID = &id
	case KindEstimate:
		li.EstimateID = &id
	default:
		li.InvoiceID = &id
	}
}

// CalculateAmount recomputes Amount = round(quantity * unit_cost) at the
// currency precision.
func (li *LineItem) CalculateAmount(currency string) {
	li.Amount = money.LineAmount(currency, li.Quantity, li.UnitCost).Amount
}

// Numeric decodes JSON numbers or numeric strings, coercing anything
// non-numeric to zero instead of failing the whole payload.
type Numeric struct {
	decimal.Decimal
}

// UnmarshalJSON implements tolerant numeric decoding.
func (n *Numeric) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		n.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		n.Decimal = decimal.Zero
		return nil
	}
	n.Decimal = d
	return nil
}

// LineItemInput is the raw payload for one entry of a document's items
// setter. A nil field keeps the default (or, on update, the stored value).
type LineItemInput struct {
	ID            *int64            `json:"id"`
	Type          *string           `json:"type"`
	Name          *string           `json:"name"`
	Description   *string           `json:"description"`
	Quantity      *Numeric          `json:"quantity"`
	UnitCost      *Numeric          `json:"unit_cost"`
	Discountable  *bool             `json:"discountable"`
	Taxable       *bool             `json:"taxable"`
	CatalogItemID string            `json:"catalog_item_id"`
	Discounts     []rates.Input     `json:"discounts"`
	Taxes         []rates.Input     `json:"taxes"`
	Metadata      map[string]string `json:"metadata"`
}

var _ json.Unmarshaler = (*Numeric)(nil)

// Sanitize normalizes a raw payload into a new line item with defaults:
// quantity 1, unit cost 0, discountable and taxable true, trimmed strings.
func (in LineItemInput) Sanitize() LineItem {
	li := LineItem{
		Quantity:     decimal.NewFromInt(1),
		UnitCost:     decimal.Zero,
		Discountable: true,
		Taxable:      true,
	}
	in.applyTo(&li)
	return li
}

func (in LineItemInput) applyTo(li *LineItem) {
	if in.Type != nil {
		li.Type = strings.TrimSpace(*in.Type)
	}
	if in.Name != nil {
		li.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		li.Description = strings.TrimSpace(*in.Description)
	}
	if in.Quantity != nil {
		li.Quantity = in.Quantity.Decimal
	}
	if in.UnitCost != nil {
		li.UnitCost = in.UnitCost.Decimal
	}
	if in.Discountable != nil {
		li.Discountable = *in.Discountable
	}
	if in.Taxable != nil {
		li.Taxable = *in.Taxable
	}
	if in.CatalogItemID != "" {
		li.CatalogItemID = in.CatalogItemID
	}
	if in.Metadata != nil {
		li.Metadata = in.Metadata
	}
}

// ValidateMetadata enforces the metadata shape limits shared by all
// entities.
func ValidateMetadata(meta map[string]string, errs *shared.ValidationErrors) {
	if len(meta) > maxMetadataKeys {
		errs.Add("metadata cannot have more than %d keys", maxMetadataKeys)
	}
	for k, v := range meta {
		if len(k) > maxMetadataKeyLen {
			errs.Add("metadata key %q exceeds %d characters", k, maxMetadataKeyLen)
		}
		if len(v) > maxMetadataValueLen {
			errs.Add("metadata value for %q exceeds %d characters", k, maxMetadataValueLen)
		}
	}
}

// MergeLineItems applies the items-setter contract against the currently
// persisted items: an input with a matching id updates that item in place
// (preserving id and creation order), an input without an id creates a new
// item, and persisted items absent from the input list are deleted. Inputs
// referencing unknown ids fail validation. The expand callback resolves each
// input's own discount/tax sublists onto the merged item.
func MergeLineItems(existing []LineItem, inputs []LineItemInput, expand func(LineItemInput, *LineItem) error, errs *shared.ValidationErrors) (kept []LineItem, deleted []LineItem) {
	byID := make(map[int64]*LineItem, len(existing))
	for i := range existing {
		byID[existing[i].ID] = &existing[i]
	}

	seen := make(map[int64]bool, len(inputs))
	var created []LineItem
	updated := make(map[int64]LineItem)

	apply := func(in LineItemInput, li *LineItem) bool {
		if expand == nil {
			return true
		}
		if err := expand(in, li); err != nil {
			errs.Add("%s", err.Error())
			return false
		}
		return true
	}

	for _, in := range inputs {
		if in.ID == nil || *in.ID == 0 {
			li := in.Sanitize()
			if apply(in, &li) {
				created = append(created, li)
			}
			continue
		}
		prev, ok := byID[*in.ID]
		if !ok {
			errs.Add("Referenced line item that does not exist: %d", *in.ID)
			continue
		}
		seen[*in.ID] = true
		next := *prev
		in.applyTo(&next)
		if !apply(in, &next) {
			updated[*in.ID] = *prev
			continue
		}
		updated[*in.ID] = next
	}

	for _, prev := range existing {
		if next, ok := updated[prev.ID]; ok {
			kept = append(kept, next)
			continue
		}
		if !seen[prev.ID] {
			deleted = append(deleted, prev)
		}
	}
	kept = append(kept, created...)
	for i := range kept {
		kept[i].Order = i
	}
	return kept, deleted
}
