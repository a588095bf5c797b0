package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/catalog"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/rates"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// RepositoryPort defines data access for receivable documents.
type RepositoryPort interface {
	SequencePort
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID int64, kind Kind, id int64) (*Document, error)
	GetByClientID(ctx context.Context, clientID string) (*Document, error)
	List(ctx context.Context, tenantID int64, req ListRequest) ([]Document, int, error)
	GetPaymentPlan(ctx context.Context, tenantID, invoiceID int64) (*PaymentPlan, error)
	ListTransactions(ctx context.Context, tenantID int64, kind Kind, docID int64) ([]Transaction, error)
}

// TxRepository exposes the mutations available inside a save transaction.
type TxRepository interface {
	Get(ctx context.Context, tenantID int64, kind Kind, id int64) (*Document, error)
	// InsertDocument persists a new document aggregate. A unique-number
	// conflict reports collision=true without failing the transaction.
	InsertDocument(ctx context.Context, doc *Document) (collision bool, err error)
	// UpdateDocument persists the aggregate: document row, the line item
	// diff (removed items are deleted), and the rate lists.
	UpdateDocument(ctx context.Context, doc *Document, removed []LineItem) (collision bool, err error)
	DeleteDocument(ctx context.Context, tenantID int64, kind Kind, id int64) error
	// UpdateBalanceFields writes only the balance counters, status flags and
	// dates so concurrent writers of disjoint fields do not clobber each
	// other.
	UpdateBalanceFields(ctx context.Context, doc *Document) error
	InsertTransaction(ctx context.Context, txn *Transaction) error
	SavePaymentPlan(ctx context.Context, plan *PaymentPlan) error
	DeletePaymentPlan(ctx context.Context, tenantID, invoiceID int64) error
}

// ListRequest filters document listings.
type ListRequest struct {
	Kind       Kind
	CustomerID int64
	Status     Status
	Page       int
	PerPage    int
}

// CreditPort lets the engine consume customer credit balances during
// auto-application.
type CreditPort interface {
	Get(ctx context.Context, tenantID, id int64) (CustomerInfo, error)
	ConsumeCredit(ctx context.Context, tenantID, id, amount int64) (int64, error)
}

// CustomerInfo is the slice of the customer record the engine needs.
type CustomerInfo struct {
	ID            int64
	Currency      string
	CreditBalance int64
	AutoApply     bool
}

// CatalogPort resolves catalog item references on line items.
type CatalogPort interface {
	Get(ctx context.Context, tenantID int64, id string) (catalog.Item, error)
}

// Notifier receives the emitted events after a successful save. Delivery is
// fire-and-forget relative to the save.
type Notifier interface {
	DocumentSaved(ctx context.Context, tenantID int64, events []Event)
}

// Service coordinates document operations.
type Service struct {
	repo     RepositoryPort
	rates    rates.Resolver
	catalog  CatalogPort
	credits  CreditPort
	locker   *shared.DocumentLocker
	notifier Notifier
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, resolver rates.Resolver, cat CatalogPort, credits CreditPort, locker *shared.DocumentLocker, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		rates:    resolver,
		catalog:  cat,
		credits:  credits,
		locker:   locker,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateDocumentInput is the payload for creating any document kind.
type CreateDocumentInput struct {
	Kind       Kind
	CustomerID int64
	Currency   string
	Number     string
	Date       *time.Time
	Name       string
	Notes      string
	Draft      bool
	Items      []LineItemInput
	Discounts  []rates.Input
	Taxes      []rates.Input
	Shipping   []rates.Input
	Metadata   map[string]string
}

// Create builds, prices and persists a new document. Validation failures are
// returned as *shared.ValidationErrors with no partial writes; permission
// and state problems use their own error types.
func (s *Service) Create(ctx context.Context, input CreateDocumentInput) (*Document, []Event, error) {
	tenantID := shared.TenantFromContext(ctx)
	actor := shared.ActorFromContext(ctx)
	if !actor.Can(shared.PermDocumentCreate) {
		return nil, nil, &shared.PermissionError{Action: "create " + input.Kind.Label()}
	}
	if !input.Draft && !actor.Can(shared.PermDocumentIssue) {
		return nil, nil, &shared.PermissionError{Action: "issue " + input.Kind.Label()}
	}

	var errs shared.ValidationErrors
	now := s.now()

	cust, err := s.credits.Get(ctx, tenantID, input.CustomerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			errs.Add("customer %d does not exist", input.CustomerID)
			return nil, nil, &errs
		}
		return nil, nil, fmt.Errorf("documents: load customer: %w", err)
	}

	currency := input.Currency
	if currency == "" {
		currency = cust.Currency
	}
	if !money.ValidCode(currency) {
		errs.Add("invalid currency code %q", currency)
	}

	doc := &Document{
		TenantID:   tenantID,
		Kind:       input.Kind,
		CustomerID: input.CustomerID,
		Currency:   currency,
		Number:     input.Number,
		Name:       input.Name,
		Notes:      input.Notes,
		Draft:      input.Draft,
		Metadata:   input.Metadata,
		ClientID:   uuid.NewString(),
		Date:       now,
	}
	if input.Date != nil {
		doc.Date = *input.Date
	}
	ValidateMetadata(doc.Metadata, &errs)

	doc.Items, _ = MergeLineItems(nil, input.Items, s.rateExpander(ctx, tenantID, &errs), &errs)
	doc.Discounts = s.expandDocRates(ctx, tenantID, rates.KindDiscount, input.Discounts, &errs)
	doc.Taxes = s.expandDocRates(ctx, tenantID, rates.KindTax, input.Taxes, &errs)
	doc.Shipping = s.expandDocRates(ctx, tenantID, rates.KindShipping, input.Shipping, &errs)
	ValidateRateScopes(doc, &errs)

	totals := Calculate(doc, now)
	if totals.Total < 0 {
		errs.Add("total cannot be negative")
	}
	if errs.Any() {
		return nil, nil, &errs
	}
	doc.ApplyTotals(totals)
	doc.CreatedAt = now
	doc.UpdatedAt = now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if doc.Number != "" {
			collision, err := tx.InsertDocument(ctx, doc)
			if err != nil {
				return err
			}
			if collision {
				errs.Add("%s number %s is already in use", doc.Kind.Label(), doc.Number)
				return &errs
			}
			return nil
		}
		_, err := nextAvailableNumber(ctx, s.repo, tenantID, doc.Kind, func(number string) (bool, error) {
			doc.Number = number
			return tx.InsertDocument(ctx, doc)
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	events := buildSaveEvents(nil, doc, now)
	s.notify(ctx, tenantID, events)
	return doc, events, nil
}

// UpdateDocumentInput carries a partial update; nil slices leave the stored
// lists untouched.
type UpdateDocumentInput struct {
	Currency  *string
	Number    *string
	Date      *time.Time
	Name      *string
	Notes     *string
	Sent      *bool
	Chase     *bool
	Items     []LineItemInput
	Discounts []rates.Input
	Taxes     []rates.Input
	Shipping  []rates.Input
	Metadata  map[string]string
}

func (in UpdateDocumentInput) touchesTotals() bool {
	return in.Items != nil || in.Discounts != nil || in.Taxes != nil || in.Shipping != nil
}

// Update applies the items-setter contract and reprices the document.
// Serialized per document: the applied fields and the recomputed totals are
// built from a fresh in-transaction read so a payment landing concurrently is
// never overwritten with stale counters.
func (s *Service) Update(ctx context.Context, kind Kind, id int64, input UpdateDocumentInput) (*Document, []Event, error) {
	tenantID := shared.TenantFromContext(ctx)
	actor := shared.ActorFromContext(ctx)
	if !actor.Can(shared.PermDocumentEdit) {
		return nil, nil, &shared.PermissionError{Action: "edit " + kind.Label()}
	}
	now := s.now()

	var doc *Document
	var events []Event
	err := s.withDocumentLock(ctx, tenantID, kind, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			fresh, err := tx.Get(ctx, tenantID, kind, id)
			if err != nil {
				return err
			}
			prev := cloneDocument(fresh)

			if input.touchesTotals() || input.Currency != nil || input.Number != nil {
				if err := EnsureMutable(fresh); err != nil {
					return err
				}
			}

			var errs shared.ValidationErrors
			if input.Currency != nil && *input.Currency != fresh.Currency {
				errs.Add("currency cannot be changed after creation")
			}
			if input.Number != nil && *input.Number != "" {
				fresh.Number = *input.Number
			}
			if input.Date != nil {
				fresh.Date = *input.Date
			}
			if input.Name != nil {
				fresh.Name = *input.Name
			}
			if input.Notes != nil {
				fresh.Notes = *input.Notes
			}
			if input.Sent != nil {
				fresh.Sent = *input.Sent
			}
			if input.Chase != nil {
				fresh.Chase = *input.Chase
			}
			if input.Metadata != nil {
				fresh.Metadata = input.Metadata
				ValidateMetadata(fresh.Metadata, &errs)
			}

			var removed []LineItem
			if input.Items != nil {
				fresh.Items, removed = MergeLineItems(fresh.Items, input.Items, s.rateExpander(ctx, tenantID, &errs), &errs)
			}
			if input.Discounts != nil {
				fresh.Discounts = s.expandDocRates(ctx, tenantID, rates.KindDiscount, input.Discounts, &errs)
			}
			if input.Taxes != nil {
				fresh.Taxes = s.expandDocRates(ctx, tenantID, rates.KindTax, input.Taxes, &errs)
			}
			if input.Shipping != nil {
				fresh.Shipping = s.expandDocRates(ctx, tenantID, rates.KindShipping, input.Shipping, &errs)
			}
			ValidateRateScopes(fresh, &errs)

			totals := Calculate(fresh, now)
			if totals.Total < 0 {
				errs.Add("total cannot be negative")
			}
			if errs.Any() {
				return &errs
			}
			if fresh.TotalLocked() && totals.Total != prev.Total {
				return &shared.StateError{
					Action: "update " + kind.Label(),
					Reason: "the total is locked while a pending transaction or payment plan is attached",
				}
			}
			fresh.ApplyTotals(totals)
			fresh.UpdatedAt = now

			collision, err := tx.UpdateDocument(ctx, fresh, removed)
			if err != nil {
				return err
			}
			if collision {
				errs.Add("%s number %s is already in use", kind.Label(), fresh.Number)
				return &errs
			}
			doc = fresh
			events = buildSaveEvents(prev, fresh, now)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	s.notify(ctx, tenantID, events)
	return doc, events, nil
}

// Get loads one document.
func (s *Service) Get(ctx context.Context, kind Kind, id int64) (*Document, error) {
	return s.repo.Get(ctx, shared.TenantFromContext(ctx), kind, id)
}

// List returns documents matching the filter.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Document, int, error) {
	return s.repo.List(ctx, shared.TenantFromContext(ctx), req)
}

// ListTransactions returns the transactions applied to one document.
func (s *Service) ListTransactions(ctx context.Context, kind Kind, id int64) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, shared.TenantFromContext(ctx), kind, id)
}

// GetPaymentPlan loads the invoice's installment schedule.
func (s *Service) GetPaymentPlan(ctx context.Context, invoiceID int64) (*PaymentPlan, error) {
	return s.repo.GetPaymentPlan(ctx, shared.TenantFromContext(ctx), invoiceID)
}

// GetByClientID resolves the opaque external-facing id, honoring its expiry.
func (s *Service) GetByClientID(ctx context.Context, clientID string) (*Document, error) {
	doc, err := s.repo.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if doc.ClientIDExpires != nil && doc.ClientIDExpires.Before(s.now()) {
		return nil, shared.ErrNotFound
	}
	return doc, nil
}

// Delete removes a draft document. Issued documents must be voided instead.
func (s *Service) Delete(ctx context.Context, kind Kind, id int64) ([]Event, error) {
	tenantID := shared.TenantFromContext(ctx)
	actor := shared.ActorFromContext(ctx)
	if !actor.Can(shared.PermDocumentEdit) {
		return nil, &shared.PermissionError{Action: "delete " + kind.Label()}
	}
	doc, err := s.repo.Get(ctx, tenantID, kind, id)
	if err != nil {
		return nil, err
	}
	if !doc.Draft {
		return nil, &shared.StateError{Action: "delete " + kind.Label(), Reason: "issued documents must be voided, not deleted"}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteDocument(ctx, tenantID, kind, id)
	})
	if err != nil {
		return nil, err
	}
	events := []Event{deleteEvent(doc, s.now())}
	s.notify(ctx, tenantID, events)
	return events, nil
}

// Issue transitions a draft to open and attempts credit auto-application.
func (s *Service) Issue(ctx context.Context, kind Kind, id int64) (*Document, []Event, error) {
	tenantID := shared.TenantFromContext(ctx)
	actor := shared.ActorFromContext(ctx)

	now := s.now()
	var doc *Document
	var events []Event
	err := s.withDocumentLock(ctx, tenantID, kind, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			fresh, err := tx.Get(ctx, tenantID, kind, id)
			if err != nil {
				return err
			}
			prev := cloneDocument(fresh)
			if err := Issue(fresh, actor); err != nil {
				return err
			}
			fresh.UpdatedAt = now
			if err := tx.UpdateBalanceFields(ctx, fresh); err != nil {
				return err
			}
			doc = fresh
			events = buildSaveEvents(prev, fresh, now)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	s.notify(ctx, tenantID, events)

	// Credit auto-application re-enters ApplyTransaction, which takes the
	// same document lock, so it runs after the issue lock is released.
	if kind == KindInvoice {
		if err := s.autoApplyCredits(ctx, doc); err != nil {
			return nil, nil, err
		}
	}
	return doc, events, nil
}

// Void voids a document after its kind preconditions pass.
func (s *Service) Void(ctx context.Context, kind Kind, id int64) (*Document, []Event, error) {
	tenantID := shared.TenantFromContext(ctx)
	actor := shared.ActorFromContext(ctx)
	now := s.now()

	var doc *Document
	var events []Event
	err := s.withDocumentLock(ctx, tenantID, kind, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			fresh, err := tx.Get(ctx, tenantID, kind, id)
			if err != nil {
				return err
			}
			prev := cloneDocument(fresh)
			if err := Void(fresh, actor, now); err != nil {
				return err
			}
			fresh.UpdatedAt = now
			if err := tx.UpdateBalanceFields(ctx, fresh); err != nil {
				return err
			}
			doc = fresh
			events = buildSaveEvents(prev, fresh, now)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	s.notify(ctx, tenantID, events)
	return doc, events, nil
}

// Close closes a document; Reopen reverses it.
func (s *Service) Close(ctx context.Context, kind Kind, id int64) (*Document, []Event, error) {
	return s.transition(ctx, kind, id, func(d *Document, actor *shared.Actor, _ time.Time) error {
		return Close(d, actor)
	})
}

// Reopen clears the closed flag and any bad-debt overlay.
func (s *Service) Reopen(ctx context.Context, kind Kind, id int64) (*Document, []Event, error) {
	return s.transition(ctx, kind, id, func(d *Document, actor *shared.Actor, _ time.Time) error {
		return Reopen(d, actor)
	})
}

// MarkBadDebt writes off an unpaid document as bad debt.
func (s *Service) MarkBadDebt(ctx context.Context, kind Kind, id int64) (*Document, []Event, error) {
	return s.transition(ctx, kind, id, MarkBadDebt)
}

// ClearBadDebt removes the bad-debt overlay.
func (s *Service) ClearBadDebt(ctx context.Context, kind Kind, id int64) (*Document, []Event, error) {
	return s.transition(ctx, kind, id, func(d *Document, actor *shared.Actor, _ time.Time) error {
		return ClearBadDebt(d, actor)
	})
}

// transition runs a lifecycle change under the document lock. The flags and
// counters written back come from a fresh in-transaction read, never from a
// copy a concurrent payment may have outdated.
func (s *Service) transition(ctx context.Context, kind Kind, id int64, fn func(*Document, *shared.Actor, time.Time) error) (*Document, []Event, error) {
	tenantID := shared.TenantFromContext(ctx)
	actor := shared.ActorFromContext(ctx)
	now := s.now()

	var doc *Document
	var events []Event
	err := s.withDocumentLock(ctx, tenantID, kind, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			fresh, err := tx.Get(ctx, tenantID, kind, id)
			if err != nil {
				return err
			}
			prev := cloneDocument(fresh)
			if err := fn(fresh, actor, now); err != nil {
				return err
			}
			fresh.UpdatedAt = now
			if err := tx.UpdateBalanceFields(ctx, fresh); err != nil {
				return err
			}
			doc = fresh
			events = buildSaveEvents(prev, fresh, now)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	s.notify(ctx, tenantID, events)
	return doc, events, nil
}

// Recalculate re-derives totals as a system operation, bypassing the closed
// guard but never identity fields.
func (s *Service) Recalculate(ctx context.Context, kind Kind, id int64) (*Document, error) {
	tenantID := shared.TenantFromContext(ctx)
	now := s.now()

	var doc *Document
	err := s.withDocumentLock(ctx, tenantID, kind, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			fresh, err := tx.Get(ctx, tenantID, kind, id)
			if err != nil {
				return err
			}
			fresh.Recalculate(now)
			fresh.UpdatedAt = now
			if _, err := tx.UpdateDocument(ctx, fresh, nil); err != nil {
				return err
			}
			doc = fresh
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ApplyTransaction reconciles an external payment, refund, adjustment or
// credit application against the document balance. Serialized per document;
// the fresh in-transaction read plus field-level write keeps concurrent
// writers of disjoint fields intact.
func (s *Service) ApplyTransaction(ctx context.Context, txn Transaction) (*Document, []Event, error) {
	tenantID := shared.TenantFromContext(ctx)
	now := s.now()
	if txn.Date.IsZero() {
		txn.Date = now
	}
	txn.TenantID = tenantID

	var doc *Document
	var events []Event
	err := s.withDocumentLock(ctx, tenantID, txn.Kind, txn.DocumentID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			fresh, err := tx.Get(ctx, tenantID, txn.Kind, txn.DocumentID)
			if err != nil {
				return err
			}
			prev := cloneDocument(fresh)
			if err := applyTransaction(fresh, txn); err != nil {
				return err
			}
			if err := tx.InsertTransaction(ctx, &txn); err != nil {
				return err
			}
			if txn.Kind == KindInvoice && txn.Status == TransactionSucceeded && txn.Type == TransactionPayment {
				plan, err := s.repo.GetPaymentPlan(ctx, tenantID, fresh.ID)
				if err != nil && !errors.Is(err, shared.ErrNotFound) {
					return err
				}
				if plan != nil {
					plan.Allocate(txn.Amount)
					if err := tx.SavePaymentPlan(ctx, plan); err != nil {
						return err
					}
				}
			}
			fresh.UpdatedAt = now
			if err := tx.UpdateBalanceFields(ctx, fresh); err != nil {
				return err
			}
			doc = fresh
			events = buildSaveEvents(prev, fresh, now)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	s.notify(ctx, tenantID, events)
	return doc, events, nil
}

// SettleTransaction finalizes a previously pending transaction.
func (s *Service) SettleTransaction(ctx context.Context, txn Transaction) (*Document, []Event, error) {
	tenantID := shared.TenantFromContext(ctx)
	now := s.now()

	var doc *Document
	var events []Event
	err := s.withDocumentLock(ctx, tenantID, txn.Kind, txn.DocumentID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			fresh, err := tx.Get(ctx, tenantID, txn.Kind, txn.DocumentID)
			if err != nil {
				return err
			}
			prev := cloneDocument(fresh)
			if err := settlePending(fresh, txn); err != nil {
				return err
			}
			fresh.UpdatedAt = now
			if err := tx.UpdateBalanceFields(ctx, fresh); err != nil {
				return err
			}
			doc = fresh
			events = buildSaveEvents(prev, fresh, now)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	s.notify(ctx, tenantID, events)
	return doc, events, nil
}

// AttachPaymentPlan pins the invoice total behind an installment schedule.
func (s *Service) AttachPaymentPlan(ctx context.Context, invoiceID int64, installments []Installment) (*PaymentPlan, error) {
	tenantID := shared.TenantFromContext(ctx)
	actor := shared.ActorFromContext(ctx)
	if !actor.Can(shared.PermDocumentEdit) {
		return nil, &shared.PermissionError{Action: "attach payment plan"}
	}

	var plan *PaymentPlan
	err := s.withDocumentLock(ctx, tenantID, KindInvoice, invoiceID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			fresh, err := tx.Get(ctx, tenantID, KindInvoice, invoiceID)
			if err != nil {
				return err
			}
			p, err := NewPaymentPlan(fresh, installments)
			if err != nil {
				return err
			}
			if err := tx.SavePaymentPlan(ctx, p); err != nil {
				return err
			}
			fresh.PaymentPlanID = &p.ID
			if err := tx.UpdateBalanceFields(ctx, fresh); err != nil {
				return err
			}
			plan = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// RefreshClientID rotates the opaque external-facing id.
func (s *Service) RefreshClientID(ctx context.Context, kind Kind, id int64, ttl time.Duration) (*Document, error) {
	tenantID := shared.TenantFromContext(ctx)

	var doc *Document
	err := s.withDocumentLock(ctx, tenantID, kind, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			fresh, err := tx.Get(ctx, tenantID, kind, id)
			if err != nil {
				return err
			}
			fresh.ClientID = uuid.NewString()
			if ttl > 0 {
				expires := s.now().Add(ttl)
				fresh.ClientIDExpires = &expires
			} else {
				fresh.ClientIDExpires = nil
			}
			if err := tx.UpdateBalanceFields(ctx, fresh); err != nil {
				return err
			}
			doc = fresh
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ConvertEstimate generates an invoice from an estimate's current items and
// rates, linking the two.
func (s *Service) ConvertEstimate(ctx context.Context, estimateID int64) (*Document, []Event, error) {
	tenantID := shared.TenantFromContext(ctx)
	est, err := s.repo.Get(ctx, tenantID, KindEstimate, estimateID)
	if err != nil {
		return nil, nil, err
	}
	if est.Voided {
		return nil, nil, &shared.StateError{Action: "invoice estimate", Reason: "this document has been voided"}
	}
	if est.InvoicedID != nil {
		return nil, nil, &shared.StateError{Action: "invoice estimate", Reason: "this estimate has already been invoiced"}
	}

	input := CreateDocumentInput{
		Kind:       KindInvoice,
		CustomerID: est.CustomerID,
		Currency:   est.Currency,
		Name:       est.Name,
		Notes:      est.Notes,
		Metadata:   est.Metadata,
	}
	for _, li := range est.Items {
		item := li
		input.Items = append(input.Items, lineItemToInput(item))
	}
	input.Discounts = appliedToInputs(est.Discounts)
	input.Taxes = appliedToInputs(est.Taxes)
	input.Shipping = appliedToInputs(est.Shipping)

	inv, events, err := s.Create(ctx, input)
	if err != nil {
		return nil, nil, err
	}

	err = s.withDocumentLock(ctx, tenantID, KindEstimate, estimateID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			fresh, err := tx.Get(ctx, tenantID, KindEstimate, estimateID)
			if err != nil {
				return err
			}
			fresh.InvoicedID = &inv.ID
			fresh.UpdatedAt = s.now()
			return tx.UpdateBalanceFields(ctx, fresh)
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return inv, events, nil
}

func (s *Service) autoApplyCredits(ctx context.Context, doc *Document) error {
	if doc.Balance <= 0 {
		return nil
	}
	cust, err := s.credits.Get(ctx, doc.TenantID, doc.CustomerID)
	if err != nil || !cust.AutoApply || cust.CreditBalance <= 0 {
		return err
	}
	amount := cust.CreditBalance
	if amount > doc.Balance {
		amount = doc.Balance
	}
	if _, err := s.credits.ConsumeCredit(ctx, doc.TenantID, doc.CustomerID, amount); err != nil {
		return err
	}
	_, _, err = s.ApplyTransaction(ctx, Transaction{
		DocumentID: doc.ID,
		Kind:       doc.Kind,
		Type:       TransactionCreditNote,
		Status:     TransactionSucceeded,
		Amount:     amount,
	})
	return err
}

func (s *Service) withDocumentLock(ctx context.Context, tenantID int64, kind Kind, id int64, fn func(context.Context) error) error {
	key := shared.DocumentLockKey(tenantID, string(kind), id)
	return s.locker.WithLock(ctx, key, fn)
}

func (s *Service) notify(ctx context.Context, tenantID int64, events []Event) {
	if s.notifier == nil || len(events) == 0 {
		return
	}
	s.notifier.DocumentSaved(ctx, tenantID, events)
}

// rateExpander resolves a line item input's catalog reference and rate
// sublists during the merge.
func (s *Service) rateExpander(ctx context.Context, tenantID int64, errs *shared.ValidationErrors) func(LineItemInput, *LineItem) error {
	return func(in LineItemInput, li *LineItem) error {
		li.TenantID = tenantID
		if li.CatalogItemID != "" {
			item, err := s.catalog.Get(ctx, tenantID, li.CatalogItemID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					errs.Add("Referenced catalog item that does not exist: %s", li.CatalogItemID)
					return nil
				}
				return err
			}
			if li.Name == "" {
				li.Name = item.Name
			}
			if in.UnitCost == nil {
				li.UnitCost = item.UnitCost
			}
			if in.Taxable == nil {
				li.Taxable = item.Taxable
			}
			if li.Type == "" {
				li.Type = item.Type
			}
		}
		if in.Discounts != nil {
			expanded, err := rates.ExpandList(ctx, s.rates, tenantID, rates.KindDiscount, in.Discounts)
			if err != nil {
				return err
			}
			s.flagUnresolved(expanded, errs)
			li.Discounts = expanded
		}
		if in.Taxes != nil {
			expanded, err := rates.ExpandList(ctx, s.rates, tenantID, rates.KindTax, in.Taxes)
			if err != nil {
				return err
			}
			s.flagUnresolved(expanded, errs)
			li.Taxes = expanded
		}
		return nil
	}
}

func (s *Service) expandDocRates(ctx context.Context, tenantID int64, kind rates.Kind, inputs []rates.Input, errs *shared.ValidationErrors) []rates.Applied {
	if inputs == nil {
		return nil
	}
	expanded, err := rates.ExpandList(ctx, s.rates, tenantID, kind, inputs)
	if err != nil {
		errs.Add("%s", err.Error())
		return nil
	}
	s.flagUnresolved(expanded, errs)
	return expanded
}

// flagUnresolved converts unknown (or cross-tenant) rate references in user
// payloads into validation errors. Entries carrying explicit values pass:
// historical lists re-expanded after a rate deletion keep their snapshots by
// id and still price correctly.
func (s *Service) flagUnresolved(expanded []rates.Applied, errs *shared.ValidationErrors) {
	for _, a := range expanded {
		if a.RateID != "" && a.Rate == nil && a.Value.IsZero() {
			errs.Add("Referenced rate that does not exist: %s", a.RateID)
		}
	}
}

func cloneDocument(d *Document) *Document {
	cp := *d
	cp.Items = append([]LineItem(nil), d.Items...)
	cp.Discounts = append([]rates.Applied(nil), d.Discounts...)
	cp.Taxes = append([]rates.Applied(nil), d.Taxes...)
	cp.Shipping = append([]rates.Applied(nil), d.Shipping...)
	if d.Metadata != nil {
		cp.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func lineItemToInput(li LineItem) LineItemInput {
	qty := Numeric{li.Quantity}
	cost := Numeric{li.UnitCost}
	name := li.Name
	desc := li.Description
	typ := li.Type
	discountable := li.Discountable
	taxable := li.Taxable
	return LineItemInput{
		Type:          &typ,
		Name:          &name,
		Description:   &desc,
		Quantity:      &qty,
		UnitCost:      &cost,
		Discountable:  &discountable,
		Taxable:       &taxable,
		CatalogItemID: li.CatalogItemID,
		Discounts:     appliedToInputs(li.Discounts),
		Taxes:         appliedToInputs(li.Taxes),
		Metadata:      li.Metadata,
	}
}

func appliedToInputs(entries []rates.Applied) []rates.Input {
	if entries == nil {
		return nil
	}
	out := make([]rates.Input, 0, len(entries))
	for _, a := range entries {
		entry := a
		in := rates.Input{
			RateID:           entry.RateID,
			FromPaymentTerms: entry.FromPaymentTerms,
			Expires:          entry.Expires,
			Order:            entry.Order,
		}
		isPercent := entry.IsPercent
		value := entry.Value
		in.IsPercent = &isPercent
		in.Value = &value
		out = append(out, in)
	}
	return out
}
