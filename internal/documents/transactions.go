package documents

import (
	"time"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// TransactionType enumerates the external money movements reconciled
// against a document. The engine does not process payments itself; gateways
// and the credit subsystem feed these in.
type TransactionType string

const (
	TransactionPayment    TransactionType = "payment"
	TransactionRefund     TransactionType = "refund"
	TransactionAdjustment TransactionType = "adjustment"
	TransactionCreditNote TransactionType = "credit_note"
	TransactionDeposit    TransactionType = "deposit"
)

// TransactionStatus tracks settlement. Pending transactions freeze the
// document total until they clear or fail.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionSucceeded TransactionStatus = "succeeded"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is an applied payment, refund, adjustment or credit-note
// application against a document.
type Transaction struct {
	ID         int64             `json:"id"`
	TenantID   int64             `json:"-"`
	DocumentID int64             `json:"document_id"`
	Kind       Kind              `json:"document_kind"`
	Type       TransactionType   `json:"type"`
	Status     TransactionStatus `json:"status"`
	Amount     int64             `json:"amount"`
	Date       time.Time         `json:"date"`
	GatewayRef string            `json:"gateway_ref,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// applyTransaction folds a settled or pending transaction into the
// document's counters and re-derives balance and status. A draft document
// auto-issues when money references it. Callers must hold the document lock
// and have re-read the document fresh.
func applyTransaction(d *Document, txn Transaction) error {
	if d.Voided {
		return &shared.StateError{Action: "apply " + string(txn.Type), Reason: "this document has been voided"}
	}
	if txn.Amount <= 0 {
		var errs shared.ValidationErrors
		errs.Add("transaction amount must be positive")
		return &errs
	}

	if txn.Status == TransactionPending {
		d.PendingTransactions++
		return nil
	}
	if txn.Status != TransactionSucceeded {
		return nil
	}

	if d.Draft {
		AutoIssue(d)
	}

	switch txn.Type {
	case TransactionPayment:
		d.AmountPaid += txn.Amount
	case TransactionCreditNote:
		d.AmountCredited += txn.Amount
	case TransactionRefund:
		d.AmountRefunded += txn.Amount
	case TransactionDeposit:
		d.DepositPaid += txn.Amount
	case TransactionAdjustment:
		d.AmountPaid += txn.Amount
	default:
		var errs shared.ValidationErrors
		errs.Add("unknown transaction type %q", txn.Type)
		return &errs
	}

	d.ReconcileBalance()
	if d.Balance == 0 && d.Total > 0 && d.DatePaid == nil {
		paidAt := txn.Date
		d.DatePaid = &paidAt
	}
	return nil
}

// settlePending clears one pending slot when a transaction finalizes, then
// folds it in if it succeeded.
func settlePending(d *Document, txn Transaction) error {
	if d.PendingTransactions > 0 {
		d.PendingTransactions--
	}
	if txn.Status == TransactionSucceeded {
		return applyTransaction(d, txn)
	}
	return nil
}
