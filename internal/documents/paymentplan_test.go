package documents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func planInvoice(balance int64) *Document {
	return &Document{ID: 1, TenantID: 1, Kind: KindInvoice, Total: balance, Balance: balance}
}

func TestNewPaymentPlanValidates(t *testing.T) {
	day := 24 * time.Hour
	now := time.Now()

	_, err := NewPaymentPlan(&Document{Kind: KindEstimate, Balance: 100}, []Installment{{Date: now, Amount: 100}})
	require.ErrorContains(t, err, "invoices only")

	draft := planInvoice(100)
	draft.Draft = true
	_, err = NewPaymentPlan(draft, []Installment{{Date: now, Amount: 100}})
	require.ErrorContains(t, err, "issued invoice")

	_, err = NewPaymentPlan(planInvoice(100), nil)
	require.ErrorContains(t, err, "at least one installment")

	_, err = NewPaymentPlan(planInvoice(300), []Installment{
		{Date: now.Add(day), Amount: 200},
		{Date: now, Amount: 100},
	})
	require.ErrorContains(t, err, "chronological order")

	_, err = NewPaymentPlan(planInvoice(300), []Installment{{Date: now, Amount: 100}})
	require.ErrorContains(t, err, "sum to the invoice balance")

	plan, err := NewPaymentPlan(planInvoice(300), []Installment{
		{Date: now, Amount: 100},
		{Date: now.Add(day), Amount: 200},
	})
	require.NoError(t, err)
	require.Equal(t, int64(300), plan.Outstanding())
}

func TestAllocateEarliestFirstWithOverflow(t *testing.T) {
	now := time.Now()
	plan, err := NewPaymentPlan(planInvoice(600), []Installment{
		{Date: now, Amount: 100},
		{Date: now.Add(24 * time.Hour), Amount: 200},
		{Date: now.Add(48 * time.Hour), Amount: 300},
	})
	require.NoError(t, err)

	// 250 covers the first installment and part of the second.
	remainder := plan.Allocate(250)
	require.Zero(t, remainder)
	require.Zero(t, plan.Installments[0].Balance)
	require.Equal(t, int64(50), plan.Installments[1].Balance)
	require.Equal(t, int64(300), plan.Installments[2].Balance)
	require.Equal(t, int64(350), plan.Outstanding())

	next := plan.NextDue()
	require.NotNil(t, next)
	require.Equal(t, int64(50), next.Balance)

	// Overpayment beyond the schedule returns the remainder.
	remainder = plan.Allocate(400)
	require.Equal(t, int64(50), remainder)
	require.Zero(t, plan.Outstanding())
	require.Nil(t, plan.NextDue())
}
