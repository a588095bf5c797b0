package documents

import (
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// EnsureMutable rejects item/rate/total mutations on closed or voided
// documents. Un-closing, un-voiding, system recalculation and fields that do
// not affect the total go through other paths.
func EnsureMutable(d *Document) error {
	if d.Voided {
		return &shared.StateError{Action: "update " + d.Kind.Label(), Reason: "this document has been voided"}
	}
	if d.Closed {
		return &shared.StateError{Action: "update " + d.Kind.Label(), Reason: "this document has been closed"}
	}
	return nil
}

// Issue transitions a draft document to open. Requires the issue permission.
func Issue(d *Document, actor *shared.Actor) error {
	if !actor.Can(shared.PermDocumentIssue) {
		return &shared.PermissionError{Action: "issue " + d.Kind.Label()}
	}
	if err := EnsureMutable(d); err != nil {
		return err
	}
	d.Draft = false
	return nil
}

// AutoIssue clears the draft flag when a payment or credit application
// references the document. Not permission-gated: the triggering transaction
// already was.
func AutoIssue(d *Document) {
	d.Draft = false
}

// Void marks the document void after checking the kind's preconditions.
// Voiding is irreversible; the balance zeroes and stays zero.
func Void(d *Document, actor *shared.Actor, now time.Time) error {
	if !actor.Can(shared.PermDocumentVoid) {
		return &shared.PermissionError{Action: "void " + d.Kind.Label()}
	}
	if d.Voided {
		return &shared.StateError{Reason: "This document has already been voided."}
	}
	if err := voidPrecondition(d); err != nil {
		return err
	}
	d.Voided = true
	d.Closed = true
	d.DateVoided = &now
	d.Balance = 0
	return nil
}

func voidPrecondition(d *Document) error {
	blocked := func(reason string) error {
		return &shared.StateError{
			Reason: fmt.Sprintf("This %s cannot be voided because it %s.", d.Kind.Label(), reason),
		}
	}
	switch d.Kind {
	case KindInvoice:
		if d.AmountPaid > 0 {
			return blocked("has a payment applied")
		}
		if d.PendingTransactions > 0 {
			return blocked("has a pending payment")
		}
		if d.AmountCredited > 0 {
			return blocked("has a credit note applied")
		}
	case KindCreditNote:
		if d.CreditedToBalance > 0 {
			return blocked("has been credited to the customer balance")
		}
		if d.AmountRefunded > 0 {
			return blocked("has been refunded")
		}
		if d.AmountApplied > 0 {
			return blocked("has been applied to an invoice")
		}
	case KindEstimate:
		if d.DepositPaid > 0 {
			return blocked("has a deposit payment")
		}
		if d.InvoicedID != nil {
			return blocked("has already been invoiced")
		}
	}
	return nil
}

// Close marks a document closed. Restricted to explicit close actions and
// internal payment/void/credit flows.
func Close(d *Document, actor *shared.Actor) error {
	if !actor.Can(shared.PermDocumentClose) {
		return &shared.PermissionError{Action: "close " + d.Kind.Label()}
	}
	if d.Voided {
		return &shared.StateError{Action: "close " + d.Kind.Label(), Reason: "this document has been voided"}
	}
	d.Closed = true
	return nil
}

// Reopen clears the closed flag, exiting BadDebt as a side effect when set.
func Reopen(d *Document, actor *shared.Actor) error {
	if !actor.Can(shared.PermDocumentClose) {
		return &shared.PermissionError{Action: "reopen " + d.Kind.Label()}
	}
	if d.Voided {
		return &shared.StateError{Action: "reopen " + d.Kind.Label(), Reason: "this document has been voided"}
	}
	d.Closed = false
	d.DateBadDebt = nil
	return nil
}

// MarkBadDebt overlays bad-debt status on a closed, unpaid document.
func MarkBadDebt(d *Document, actor *shared.Actor, now time.Time) error {
	if !actor.Can(shared.PermDocumentClose) {
		return &shared.PermissionError{Action: "write off " + d.Kind.Label()}
	}
	if d.Voided {
		return &shared.StateError{Action: "write off " + d.Kind.Label(), Reason: "this document has been voided"}
	}
	if d.AmountPaid > 0 {
		return &shared.StateError{Action: "write off " + d.Kind.Label(), Reason: "a paid document cannot be written off"}
	}
	d.Closed = true
	d.DateBadDebt = &now
	return nil
}

// ClearBadDebt removes the bad-debt overlay, leaving the document closed.
func ClearBadDebt(d *Document, actor *shared.Actor) error {
	if !actor.Can(shared.PermDocumentClose) {
		return &shared.PermissionError{Action: "restore " + d.Kind.Label()}
	}
	d.DateBadDebt = nil
	return nil
}
