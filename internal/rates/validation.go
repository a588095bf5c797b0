package rates

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/money"
)

var hundred = decimal.NewFromInt(100)

func validate(r Rate) error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("rate id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rate name is required")
	}
	switch r.Kind {
	case KindDiscount, KindTax, KindShipping:
	default:
		return errors.New("unknown rate kind")
	}
	if r.IsPercent {
		if r.Value.IsNegative() || r.Value.GreaterThan(hundred) {
			return errors.New("percentage value must be between 0 and 100")
		}
		return nil
	}
	if r.Currency != "" && !money.ValidCode(r.Currency) {
		return errors.New("invalid currency code")
	}
	if r.Value.IsNegative() {
		return errors.New("fixed value cannot be negative")
	}
	return nil
}
