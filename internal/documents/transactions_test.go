package documents

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/shared"
)

func TestApplyPaymentReducesBalance(t *testing.T) {
	inv := &Document{Kind: KindInvoice, Total: 5000, Balance: 5000}
	err := applyTransaction(inv, Transaction{Type: TransactionPayment, Status: TransactionSucceeded, Amount: 2000, Date: time.Now()})

	require.NoError(t, err)
	require.Equal(t, int64(2000), inv.AmountPaid)
	require.Equal(t, int64(3000), inv.Balance)
	require.Nil(t, inv.DatePaid)
	require.Equal(t, StatusOpen, inv.Status())
}

func TestApplyFinalPaymentSetsDatePaid(t *testing.T) {
	paidAt := time.Now()
	inv := &Document{Kind: KindInvoice, Total: 5000, Balance: 5000}

	err := applyTransaction(inv, Transaction{Type: TransactionPayment, Status: TransactionSucceeded, Amount: 5000, Date: paidAt})
	require.NoError(t, err)
	require.Zero(t, inv.Balance)
	require.NotNil(t, inv.DatePaid)
	require.Equal(t, paidAt, *inv.DatePaid)
	require.Equal(t, StatusPaid, inv.Status())
}

func TestApplyTransactionAutoIssuesDraft(t *testing.T) {
	inv := &Document{Kind: KindInvoice, Draft: true, Total: 5000, Balance: 5000}
	err := applyTransaction(inv, Transaction{Type: TransactionPayment, Status: TransactionSucceeded, Amount: 1000, Date: time.Now()})

	require.NoError(t, err)
	require.False(t, inv.Draft)
}

func TestPendingTransactionFreezesWithoutCounting(t *testing.T) {
	inv := &Document{Kind: KindInvoice, Total: 5000, Balance: 5000}
	err := applyTransaction(inv, Transaction{Type: TransactionPayment, Status: TransactionPending, Amount: 1000})

	require.NoError(t, err)
	require.Equal(t, 1, inv.PendingTransactions)
	require.Zero(t, inv.AmountPaid)
	require.Equal(t, int64(5000), inv.Balance)
	require.True(t, inv.TotalLocked())
}

func TestSettlePendingSuccess(t *testing.T) {
	inv := &Document{Kind: KindInvoice, Total: 5000, Balance: 5000, PendingTransactions: 1}
	err := settlePending(inv, Transaction{Type: TransactionPayment, Status: TransactionSucceeded, Amount: 5000, Date: time.Now()})

	require.NoError(t, err)
	require.Zero(t, inv.PendingTransactions)
	require.Zero(t, inv.Balance)
	require.False(t, inv.TotalLocked())
}

func TestSettlePendingFailureReleasesFreeze(t *testing.T) {
	inv := &Document{Kind: KindInvoice, Total: 5000, Balance: 5000, PendingTransactions: 1}
	err := settlePending(inv, Transaction{Type: TransactionPayment, Status: TransactionFailed, Amount: 5000})

	require.NoError(t, err)
	require.Zero(t, inv.PendingTransactions)
	require.Equal(t, int64(5000), inv.Balance)
}

func TestApplyTransactionOnVoidedFails(t *testing.T) {
	inv := &Document{Kind: KindInvoice, Voided: true}
	err := applyTransaction(inv, Transaction{Type: TransactionPayment, Status: TransactionSucceeded, Amount: 100})

	var state *shared.StateError
	require.True(t, errors.As(err, &state))
}

func TestApplyTransactionRejectsNonPositiveAmount(t *testing.T) {
	inv := &Document{Kind: KindInvoice, Total: 5000, Balance: 5000}
	err := applyTransaction(inv, Transaction{Type: TransactionPayment, Status: TransactionSucceeded, Amount: 0})

	var validation *shared.ValidationErrors
	require.True(t, errors.As(err, &validation))
	require.Zero(t, inv.AmountPaid)
}

func TestCreditNoteCountersPerKind(t *testing.T) {
	cn := &Document{Kind: KindCreditNote, Total: 3000, Balance: 3000}

	require.NoError(t, applyTransaction(cn, Transaction{Type: TransactionRefund, Status: TransactionSucceeded, Amount: 1000, Date: time.Now()}))
	require.Equal(t, int64(1000), cn.AmountRefunded)
	require.Equal(t, int64(2000), cn.Balance)

	est := &Document{Kind: KindEstimate, Total: 3000, Balance: 3000}
	require.NoError(t, applyTransaction(est, Transaction{Type: TransactionDeposit, Status: TransactionSucceeded, Amount: 500, Date: time.Now()}))
	require.Equal(t, int64(500), est.DepositPaid)
	require.Equal(t, int64(2500), est.Balance)
}
