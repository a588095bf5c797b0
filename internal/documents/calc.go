package documents

import (
	"time"

	"github.com/ledgerline/ledgerline/internal/rates"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Totals is the result of one calculation pass over a document's items and
// rates. All amounts are minor units of the document currency.
type Totals struct {
	Subtotal      int64
	ItemDiscounts int64
	ItemTaxes     int64
	DocDiscounts  int64
	DocTaxes      int64
	Shipping      int64
	Discounts     int64 // ItemDiscounts + DocDiscounts, the aggregate shown on the document
	Taxes         int64 // ItemTaxes + DocTaxes
	Total         int64
}

// Calculate runs the fixed application order over a document: line amounts,
// item-level discounts and taxes, then document-level discounts on the
// discountable subtotal, taxes on the discounted taxable amount, and shipping
// after tax. Each rate amount rounds independently at the currency precision,
// so sub-cent drift across many small items is expected. The pass is a pure
// fold; running it twice yields identical totals.
func Calculate(doc *Document, now time.Time) Totals {
	var t Totals
	currency := doc.Currency

	// Discountable and taxable bases accumulate item amounts net of the
	// item's own discounts.
	var discountableBase, taxableBase int64

	for i := range doc.Items {
		li := &doc.Items[i]
		li.CalculateAmount(currency)
		t.Subtotal += li.Amount

		itemNet := li.Amount
		markScope(li.Discounts, true)
		rates.SortApplied(li.Discounts)
		for j := range li.Discounts {
			d := &li.Discounts[j]
			if d.Expired(now) {
				d.Amount = 0
				continue
			}
			d.Amount = rates.CalculateAmount(currency, li.Amount, *d)
			t.ItemDiscounts += d.Amount
			itemNet -= d.Amount
		}
		markScope(li.Taxes, true)
		rates.SortApplied(li.Taxes)
		for j := range li.Taxes {
			tx := &li.Taxes[j]
			if tx.Expired(now) {
				tx.Amount = 0
				continue
			}
			tx.Amount = rates.CalculateAmount(currency, itemNet, *tx)
			t.ItemTaxes += tx.Amount
		}

		if li.Discountable {
			discountableBase += itemNet
		}
		if li.Taxable {
			taxableBase += itemNet
		}
	}

	markScope(doc.Discounts, false)
	rates.SortApplied(doc.Discounts)
	for i := range doc.Discounts {
		d := &doc.Discounts[i]
		if d.Expired(now) {
			d.Amount = 0
			continue
		}
		d.Amount = rates.CalculateAmount(currency, discountableBase, *d)
		t.DocDiscounts += d.Amount
	}

	// Document discounts reduce the taxable base in full.
	taxBase := taxableBase - t.DocDiscounts
	markScope(doc.Taxes, false)
	rates.SortApplied(doc.Taxes)
	for i := range doc.Taxes {
		tx := &doc.Taxes[i]
		if tx.Expired(now) {
			tx.Amount = 0
			continue
		}
		tx.Amount = rates.CalculateAmount(currency, taxBase, *tx)
		t.DocTaxes += tx.Amount
	}

	// Shipping lands after tax and is not taxed itself. Percentage shipping
	// applies to the discounted subtotal.
	shippingBase := t.Subtotal - t.ItemDiscounts - t.DocDiscounts
	markScope(doc.Shipping, false)
	rates.SortApplied(doc.Shipping)
	for i := range doc.Shipping {
		sh := &doc.Shipping[i]
		if sh.Expired(now) {
			sh.Amount = 0
			continue
		}
		sh.Amount = rates.CalculateAmount(currency, shippingBase, *sh)
		t.Shipping += sh.Amount
	}

	t.Discounts = t.ItemDiscounts + t.DocDiscounts
	t.Taxes = t.ItemTaxes + t.DocTaxes
	t.Total = t.Subtotal - t.Discounts + t.Taxes + t.Shipping
	return t
}

func markScope(entries []rates.Applied, inItems bool) {
	for i := range entries {
		entries[i].InItems = inItems
		entries[i].InSubtotal = !inItems
	}
}

// ApplyTotals writes a calculation result onto the document and reconciles
// its balance.
func (d *Document) ApplyTotals(t Totals) {
	d.Subtotal = t.Subtotal
	d.Total = t.Total
	d.ReconcileBalance()
}

// Recalculate re-derives totals from the current items and rates without
// touching identity fields. Idempotent.
func (d *Document) Recalculate(now time.Time) Totals {
	t := Calculate(d, now)
	d.ApplyTotals(t)
	return t
}

// ValidateRateScopes rejects the same referenced rate appearing both on a
// line item and on the document subtotal within one save.
func ValidateRateScopes(doc *Document, errs *shared.ValidationErrors) {
	check := func(label string, docLevel []rates.Applied, itemLevel func(LineItem) []rates.Applied) {
		inDoc := make(map[string]bool)
		for _, a := range docLevel {
			if a.RateID != "" {
				inDoc[a.RateID] = true
			}
		}
		flagged := make(map[string]bool)
		for _, li := range doc.Items {
			for _, a := range itemLevel(li) {
				if a.RateID != "" && inDoc[a.RateID] && !flagged[a.RateID] {
					flagged[a.RateID] = true
					errs.Add("%s rate %q is being applied to both a line item and the subtotal", label, a.RateID)
				}
			}
		}
	}
	check("discount", doc.Discounts, func(li LineItem) []rates.Applied { return li.Discounts })
	check("tax", doc.Taxes, func(li LineItem) []rates.Applied { return li.Taxes })
}
