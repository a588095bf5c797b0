package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPrecision(t *testing.T) {
	require.EqualValues(t, 2, Precision("USD"))
	require.EqualValues(t, 2, Precision("EUR"))
	require.EqualValues(t, 0, Precision("JPY"))
	require.EqualValues(t, 2, Precision("usd"))
	require.EqualValues(t, 2, Precision("???"))
}

func TestFromDecimalRoundsHalfUp(t *testing.T) {
	require.EqualValues(t, 1205, FromDecimal("USD", decimal.RequireFromString("12.045")).Amount)
	require.EqualValues(t, 1204, FromDecimal("USD", decimal.RequireFromString("12.044")).Amount)
	require.EqualValues(t, -1205, FromDecimal("USD", decimal.RequireFromString("-12.045")).Amount)
	require.EqualValues(t, 12, FromDecimal("JPY", decimal.RequireFromString("12.4")).Amount)
	require.EqualValues(t, 13, FromDecimal("JPY", decimal.RequireFromString("12.5")).Amount)
}

func TestApplyPercentRate(t *testing.T) {
	// 5% of 105.26 = 5.263 -> 5.26
	got := ApplyRate("USD", 10526, Percent("5"))
	require.EqualValues(t, 526, got.Amount)

	// 5% of 102.05 = 5.1025 -> 5.10
	got = ApplyRate("USD", 10205, Percent("5"))
	require.EqualValues(t, 510, got.Amount)

	// 5% of 96.95 = 4.8475 -> 4.85
	got = ApplyRate("USD", 9695, Percent("5"))
	require.EqualValues(t, 485, got.Amount)

	// zero-decimal currency rounds to whole units
	got = ApplyRate("JPY", 999, Percent("5"))
	require.EqualValues(t, 50, got.Amount)
}

func TestApplyFixedRateNotClamped(t *testing.T) {
	got := ApplyRate("USD", 500, Fixed("10"))
	require.EqualValues(t, 1000, got.Amount)
}

func TestLineAmount(t *testing.T) {
	one := decimal.NewFromInt(1)
	require.EqualValues(t, 10526, LineAmount("USD", one, decimal.RequireFromString("105.26")).Amount)
	require.EqualValues(t, 1205, LineAmount("USD", one, decimal.RequireFromString("12.045")).Amount)
	require.EqualValues(t, -1000, LineAmount("USD", decimal.NewFromInt(-1), decimal.NewFromInt(10)).Amount)
}

func TestAddCurrencyMismatch(t *testing.T) {
	_, err := New("USD", 1).Add(New("EUR", 1))
	require.Error(t, err)

	sum, err := New("USD", 40).Add(New("USD", 2))
	require.NoError(t, err)
	require.EqualValues(t, 42, sum.Amount)
}
