package documents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/catalog"
	"github.com/ledgerline/ledgerline/internal/rates"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	docs    map[string]*Document
	nextID  int64
	seq     map[string]int64
	plans   map[int64]*PaymentPlan
	txns    []Transaction
	planSeq int64
	txnSeq  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		docs:  make(map[string]*Document),
		seq:   make(map[string]int64),
		plans: make(map[int64]*PaymentPlan),
	}
}

func docKey(tenantID int64, kind Kind, id int64) string {
	return fmt.Sprintf("%d/%s/%d", tenantID, kind, id)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(_ context.Context, tenantID int64, kind Kind, id int64) (*Document, error) {
	doc, ok := r.docs[docKey(tenantID, kind, id)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (r *memoryRepo) GetByClientID(_ context.Context, clientID string) (*Document, error) {
	for _, doc := range r.docs {
		if doc.ClientID == clientID {
			return cloneDocument(doc), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) List(_ context.Context, tenantID int64, req ListRequest) ([]Document, int, error) {
	var out []Document
	for _, doc := range r.docs {
		if doc.TenantID == tenantID && doc.Kind == req.Kind {
			out = append(out, *cloneDocument(doc))
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetPaymentPlan(_ context.Context, tenantID, invoiceID int64) (*PaymentPlan, error) {
	plan, ok := r.plans[invoiceID]
	if !ok || plan.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	cp := *plan
	cp.Installments = append([]Installment(nil), plan.Installments...)
	return &cp, nil
}

func (r *memoryRepo) ListTransactions(_ context.Context, tenantID int64, kind Kind, docID int64) ([]Transaction, error) {
	var out []Transaction
	for _, t := range r.txns {
		if t.TenantID == tenantID && t.Kind == kind && t.DocumentID == docID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryRepo) NextNumber(_ context.Context, tenantID int64, kind Kind) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%d/%s", tenantID, kind)
	n := r.seq[key]
	if n == 0 {
		n = 1
	}
	r.seq[key] = n + 1
	return n, nil
}

func (r *memoryRepo) SetNext(_ context.Context, tenantID int64, kind Kind, next int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq[fmt.Sprintf("%d/%s", tenantID, kind)] = next
	return nil
}

func (r *memoryRepo) numberTaken(tenantID int64, kind Kind, number string, excludeID int64) bool {
	for _, doc := range r.docs {
		if doc.TenantID == tenantID && doc.Kind == kind && doc.Number == number && doc.ID != excludeID {
			return true
		}
	}
	return false
}

func (r *memoryRepo) InsertDocument(_ context.Context, doc *Document) (bool, error) {
	if r.numberTaken(doc.TenantID, doc.Kind, doc.Number, 0) {
		return true, nil
	}
	r.nextID++
	doc.ID = r.nextID
	for i := range doc.Items {
		r.nextID++
		doc.Items[i].ID = r.nextID
		doc.Items[i].SetParent(doc.Kind, doc.ID)
	}
	r.docs[docKey(doc.TenantID, doc.Kind, doc.ID)] = cloneDocument(doc)
	return false, nil
}

func (r *memoryRepo) UpdateDocument(_ context.Context, doc *Document, _ []LineItem) (bool, error) {
	if r.numberTaken(doc.TenantID, doc.Kind, doc.Number, doc.ID) {
		return true, nil
	}
	if _, ok := r.docs[docKey(doc.TenantID, doc.Kind, doc.ID)]; !ok {
		return false, shared.ErrNotFound
	}
	for i := range doc.Items {
		if doc.Items[i].ID == 0 {
			r.nextID++
			doc.Items[i].ID = r.nextID
		}
		doc.Items[i].SetParent(doc.Kind, doc.ID)
	}
	r.docs[docKey(doc.TenantID, doc.Kind, doc.ID)] = cloneDocument(doc)
	return false, nil
}

func (r *memoryRepo) DeleteDocument(_ context.Context, tenantID int64, kind Kind, id int64) error {
	key := docKey(tenantID, kind, id)
	if _, ok := r.docs[key]; !ok {
		return shared.ErrNotFound
	}
	delete(r.docs, key)
	return nil
}

func (r *memoryRepo) UpdateBalanceFields(_ context.Context, doc *Document) error {
	stored, ok := r.docs[docKey(doc.TenantID, doc.Kind, doc.ID)]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Balance = doc.Balance
	stored.AmountPaid = doc.AmountPaid
	stored.AmountCredited = doc.AmountCredited
	stored.AmountRefunded = doc.AmountRefunded
	stored.AmountApplied = doc.AmountApplied
	stored.CreditedToBalance = doc.CreditedToBalance
	stored.DepositPaid = doc.DepositPaid
	stored.Draft = doc.Draft
	stored.Closed = doc.Closed
	stored.Voided = doc.Voided
	stored.DatePaid = doc.DatePaid
	stored.DateVoided = doc.DateVoided
	stored.DateBadDebt = doc.DateBadDebt
	stored.PendingTransactions = doc.PendingTransactions
	stored.PaymentPlanID = doc.PaymentPlanID
	stored.InvoicedID = doc.InvoicedID
	stored.ClientID = doc.ClientID
	stored.ClientIDExpires = doc.ClientIDExpires
	stored.UpdatedAt = doc.UpdatedAt
	return nil
}

func (r *memoryRepo) InsertTransaction(_ context.Context, txn *Transaction) error {
	r.txnSeq++
	txn.ID = r.txnSeq
	txn.CreatedAt = time.Now()
	r.txns = append(r.txns, *txn)
	return nil
}

func (r *memoryRepo) SavePaymentPlan(_ context.Context, plan *PaymentPlan) error {
	if plan.ID == 0 {
		r.planSeq++
		plan.ID = r.planSeq
		plan.CreatedAt = time.Now()
	}
	cp := *plan
	cp.Installments = append([]Installment(nil), plan.Installments...)
	r.plans[plan.InvoiceID] = &cp
	return nil
}

func (r *memoryRepo) DeletePaymentPlan(_ context.Context, _, invoiceID int64) error {
	if _, ok := r.plans[invoiceID]; !ok {
		return shared.ErrNotFound
	}
	delete(r.plans, invoiceID)
	return nil
}

type memoryResolver struct {
	rates map[string]*rates.Rate
}

func (m *memoryResolver) Snapshot(_ context.Context, tenantID int64, kind rates.Kind, id string) (*rates.Rate, error) {
	r, ok := m.rates[fmt.Sprintf("%d/%s/%s", tenantID, kind, id)]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

type memoryCatalog struct {
	items map[string]catalog.Item
}

func (m *memoryCatalog) Get(_ context.Context, tenantID int64, id string) (catalog.Item, error) {
	item, ok := m.items[fmt.Sprintf("%d/%s", tenantID, id)]
	if !ok {
		return catalog.Item{}, shared.ErrNotFound
	}
	return item, nil
}

type memoryCredits struct {
	customers map[string]*CustomerInfo
}

func creditKey(tenantID, id int64) string { return fmt.Sprintf("%d/%d", tenantID, id) }

func (m *memoryCredits) Get(_ context.Context, tenantID, id int64) (CustomerInfo, error) {
	c, ok := m.customers[creditKey(tenantID, id)]
	if !ok {
		return CustomerInfo{}, shared.ErrNotFound
	}
	return *c, nil
}

func (m *memoryCredits) ConsumeCredit(_ context.Context, tenantID, id, amount int64) (int64, error) {
	c, ok := m.customers[creditKey(tenantID, id)]
	if !ok {
		return 0, shared.ErrNotFound
	}
	if c.CreditBalance < amount {
		return 0, fmt.Errorf("insufficient credit")
	}
	c.CreditBalance -= amount
	return c.CreditBalance, nil
}

type captureNotifier struct {
	events []Event
}

func (n *captureNotifier) DocumentSaved(_ context.Context, _ int64, events []Event) {
	n.events = append(n.events, events...)
}

type serviceFixture struct {
	repo     *memoryRepo
	resolver *memoryResolver
	credits  *memoryCredits
	notifier *captureNotifier
	service  *Service
}

func newServiceFixture() *serviceFixture {
	repo := newMemoryRepo()
	resolver := &memoryResolver{rates: make(map[string]*rates.Rate)}
	cat := &memoryCatalog{items: make(map[string]catalog.Item)}
	credits := &memoryCredits{customers: map[string]*CustomerInfo{
		creditKey(1, 55): {ID: 55, Currency: "USD", AutoApply: true},
	}}
	notifier := &captureNotifier{}
	svc := NewService(repo, resolver, cat, credits, nil, notifier)
	return &serviceFixture{repo: repo, resolver: resolver, credits: credits, notifier: notifier, service: svc}
}

func authedContext() context.Context {
	ctx := shared.ContextWithTenant(context.Background(), 1)
	return shared.ContextWithActor(ctx, fullAccessActor())
}

func fixtureCreateInput() CreateDocumentInput {
	five := decimal.NewFromInt(5)
	isPercent := true
	coupon := rates.Input{IsPercent: &isPercent, Value: &five}
	return CreateDocumentInput{
		Kind:       KindInvoice,
		CustomerID: 55,
		Items: []LineItemInput{
			{Name: strPtr("annual plan"), Quantity: numPtr("1"), UnitCost: numPtr("105.26"), Discounts: []rates.Input{coupon}},
			{Name: strPtr("setup"), Quantity: numPtr("1"), UnitCost: numPtr("12.045")},
			{Name: strPtr("goodwill"), Quantity: numPtr("-1"), UnitCost: numPtr("10")},
		},
		Discounts: []rates.Input{coupon},
		Taxes:     []rates.Input{coupon},
		Draft:     true,
	}
}

func TestServiceCreateComputesFixtureTotals(t *testing.T) {
	fx := newServiceFixture()

	doc, events, err := fx.service.Create(authedContext(), fixtureCreateInput())
	require.NoError(t, err)

	require.Equal(t, int64(10731), doc.Subtotal)
	require.Equal(t, int64(10180), doc.Total)
	require.Equal(t, int64(10180), doc.Balance)
	require.Equal(t, "USD", doc.Currency) // defaulted from the customer
	require.Equal(t, "INV-00001", doc.Number)
	require.NotEmpty(t, doc.ClientID)
	require.Len(t, events, 1)
	require.Equal(t, EventCreated, events[0].Type)
	require.Len(t, fx.notifier.events, 1)
}

func TestServiceCreateNegativeTotalHasNoSideEffects(t *testing.T) {
	fx := newServiceFixture()

	_, _, err := fx.service.Create(authedContext(), CreateDocumentInput{
		Kind:       KindInvoice,
		CustomerID: 55,
		Draft:      true,
		Items: []LineItemInput{
			{Name: strPtr("credit line"), Quantity: numPtr("-1"), UnitCost: numPtr("10")},
		},
	})

	var validation *shared.ValidationErrors
	require.True(t, errors.As(err, &validation))
	require.Contains(t, validation.Messages, "total cannot be negative")
	require.Empty(t, fx.repo.docs)
	require.Empty(t, fx.notifier.events)
}

func TestServiceCreateUnknownRateRejected(t *testing.T) {
	fx := newServiceFixture()

	input := CreateDocumentInput{
		Kind:       KindInvoice,
		CustomerID: 55,
		Draft:      true,
		Items: []LineItemInput{
			{Name: strPtr("thing"), UnitCost: numPtr("10")},
		},
		Taxes: []rates.Input{{RateID: "ghost"}},
	}
	_, _, err := fx.service.Create(authedContext(), input)

	var validation *shared.ValidationErrors
	require.True(t, errors.As(err, &validation))
	require.Contains(t, validation.Messages, "Referenced rate that does not exist: ghost")
	require.Empty(t, fx.repo.docs)
}

func TestServiceCreateCrossTenantCustomerRejected(t *testing.T) {
	fx := newServiceFixture()
	fx.credits.customers[creditKey(2, 99)] = &CustomerInfo{ID: 99, Currency: "USD"}

	_, _, err := fx.service.Create(authedContext(), CreateDocumentInput{
		Kind:       KindInvoice,
		CustomerID: 99, // exists for tenant 2 only
		Draft:      true,
	})

	var validation *shared.ValidationErrors
	require.True(t, errors.As(err, &validation))
	require.Contains(t, validation.Messages, "customer 99 does not exist")
}

func TestServiceCreateRequiresPermissions(t *testing.T) {
	fx := newServiceFixture()
	ctx := shared.ContextWithTenant(context.Background(), 1)
	ctx = shared.ContextWithActor(ctx, &shared.Actor{ID: 3, Permissions: map[string]bool{
		shared.PermDocumentCreate: true,
	}})

	// Draft creation is allowed with the create permission alone.
	input := fixtureCreateInput()
	_, _, err := fx.service.Create(ctx, input)
	require.NoError(t, err)

	// Creating issued requires the issue permission too.
	input.Draft = false
	_, _, err = fx.service.Create(ctx, input)
	var perm *shared.PermissionError
	require.True(t, errors.As(err, &perm))
}

func TestServiceNumbersAreSequential(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	first, _, err := fx.service.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)
	second, _, err := fx.service.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)

	require.Equal(t, "INV-00001", first.Number)
	require.Equal(t, "INV-00002", second.Number)
}

func TestServiceManualNumberConflict(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	input := fixtureCreateInput()
	input.Number = "INV-00777"
	_, _, err := fx.service.Create(ctx, input)
	require.NoError(t, err)

	_, _, err = fx.service.Create(ctx, input)
	var validation *shared.ValidationErrors
	require.True(t, errors.As(err, &validation))
	require.Contains(t, validation.Messages, "invoice number INV-00777 is already in use")
}

func TestServiceUpdateLockedTotalRejected(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	doc, _, err := fx.service.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)

	// A pending payment freezes the total.
	_, _, err = fx.service.ApplyTransaction(ctx, Transaction{
		DocumentID: doc.ID, Kind: KindInvoice,
		Type: TransactionPayment, Status: TransactionPending, Amount: 1000,
	})
	require.NoError(t, err)

	_, _, err = fx.service.Update(ctx, KindInvoice, doc.ID, UpdateDocumentInput{
		Items: []LineItemInput{{Name: strPtr("replacement"), UnitCost: numPtr("1")}},
	})
	var state *shared.StateError
	require.True(t, errors.As(err, &state))
	require.Contains(t, state.Reason, "locked")

	// Fields that do not affect the total still save.
	sent := true
	updated, _, err := fx.service.Update(ctx, KindInvoice, doc.ID, UpdateDocumentInput{Sent: &sent})
	require.NoError(t, err)
	require.True(t, updated.Sent)
	require.Equal(t, doc.Total, updated.Total)
}

func TestServiceUpdateCurrencyImmutable(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	doc, _, err := fx.service.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)

	eur := "EUR"
	_, _, err = fx.service.Update(ctx, KindInvoice, doc.ID, UpdateDocumentInput{Currency: &eur})
	var validation *shared.ValidationErrors
	require.True(t, errors.As(err, &validation))
	require.Contains(t, validation.Messages, "currency cannot be changed after creation")
}

func TestServiceVoidedDocumentRejectsEdits(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	doc, _, err := fx.service.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)

	voided, events, err := fx.service.Void(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.Zero(t, voided.Balance)
	require.Len(t, events, 1)
	require.Equal(t, EventVoided, events[0].Type)

	_, _, err = fx.service.Update(ctx, KindInvoice, doc.ID, UpdateDocumentInput{
		Items: []LineItemInput{{Name: strPtr("nope"), UnitCost: numPtr("1")}},
	})
	var state *shared.StateError
	require.True(t, errors.As(err, &state))

	stored, err := fx.service.Get(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.Zero(t, stored.Balance)
	require.Equal(t, StatusVoided, stored.Status())
}

func TestServiceIssueAutoAppliesCustomerCredit(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()
	fx.credits.customers[creditKey(1, 55)].CreditBalance = 3000

	doc, _, err := fx.service.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)

	_, _, err = fx.service.Issue(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)

	stored, err := fx.service.Get(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.False(t, stored.Draft)
	require.Equal(t, int64(3000), stored.AmountCredited)
	require.Equal(t, doc.Total-3000, stored.Balance)
	require.Zero(t, fx.credits.customers[creditKey(1, 55)].CreditBalance)
}

func TestServiceApplyTransactionEmitsPaid(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	doc, _, err := fx.service.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)

	paid, events, err := fx.service.ApplyTransaction(ctx, Transaction{
		DocumentID: doc.ID, Kind: KindInvoice,
		Type: TransactionPayment, Status: TransactionSucceeded, Amount: doc.Total,
	})
	require.NoError(t, err)
	require.Zero(t, paid.Balance)
	require.Equal(t, StatusPaid, paid.Status())
	require.Len(t, events, 1)
	require.Equal(t, EventPaid, events[0].Type)

	txns, err := fx.service.ListTransactions(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
}

func TestServicePaymentPlanAllocation(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	doc, _, err := fx.service.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)
	_, _, err = fx.service.Issue(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)

	now := time.Now()
	plan, err := fx.service.AttachPaymentPlan(ctx, doc.ID, []Installment{
		{Date: now, Amount: 5000},
		{Date: now.Add(30 * 24 * time.Hour), Amount: 5180},
	})
	require.NoError(t, err)
	require.Equal(t, int64(10180), plan.Outstanding())

	stored, err := fx.service.Get(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.True(t, stored.TotalLocked())

	_, _, err = fx.service.ApplyTransaction(ctx, Transaction{
		DocumentID: doc.ID, Kind: KindInvoice,
		Type: TransactionPayment, Status: TransactionSucceeded, Amount: 6000,
	})
	require.NoError(t, err)

	updated, err := fx.service.GetPaymentPlan(ctx, doc.ID)
	require.NoError(t, err)
	require.Zero(t, updated.Installments[0].Balance)
	require.Equal(t, int64(4180), updated.Installments[1].Balance)
}

func TestServiceConvertEstimate(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	input := fixtureCreateInput()
	input.Kind = KindEstimate
	est, _, err := fx.service.Create(ctx, input)
	require.NoError(t, err)

	inv, _, err := fx.service.ConvertEstimate(ctx, est.ID)
	require.NoError(t, err)
	require.Equal(t, KindInvoice, inv.Kind)
	require.Equal(t, est.Total, inv.Total)
	require.Len(t, inv.Items, len(est.Items))

	stored, err := fx.service.Get(ctx, KindEstimate, est.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.InvoicedID)
	require.Equal(t, inv.ID, *stored.InvoicedID)

	_, _, err = fx.service.ConvertEstimate(ctx, est.ID)
	var state *shared.StateError
	require.True(t, errors.As(err, &state))
	require.Contains(t, state.Reason, "already been invoiced")
}

func TestServiceDeleteOnlyDrafts(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	doc, _, err := fx.service.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)
	_, _, err = fx.service.Issue(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)

	_, err = fx.service.Delete(ctx, KindInvoice, doc.ID)
	var state *shared.StateError
	require.True(t, errors.As(err, &state))

	draft, _, err := fx.service.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)
	events, err := fx.service.Delete(ctx, KindInvoice, draft.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventDeleted, events[0].Type)

	_, err = fx.service.Get(ctx, KindInvoice, draft.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestServiceRecalculateKeepsVoidedBalanceZero(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	doc, _, err := fx.service.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)
	_, _, err = fx.service.Void(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)

	recalced, err := fx.service.Recalculate(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.Total, recalced.Total)
	require.Zero(t, recalced.Balance)

	stored, err := fx.service.Get(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.Zero(t, stored.Balance)
	require.Equal(t, StatusVoided, stored.Status())
}

// interleaveRepo fires a hook once, right before the next save transaction
// opens, to model a writer that committed between dispatch and save.
type interleaveRepo struct {
	*memoryRepo
	before func()
}

func (r *interleaveRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.before != nil {
		hook := r.before
		r.before = nil
		hook()
	}
	return r.memoryRepo.WithTx(ctx, fn)
}

// newInterleavedServices returns two services over one store: svc saves
// through the hook, base plays the concurrent writer.
func newInterleavedServices() (svc, base *Service, wrapped *interleaveRepo) {
	repo := newMemoryRepo()
	resolver := &memoryResolver{rates: make(map[string]*rates.Rate)}
	cat := &memoryCatalog{items: make(map[string]catalog.Item)}
	credits := &memoryCredits{customers: map[string]*CustomerInfo{
		creditKey(1, 55): {ID: 55, Currency: "USD"},
	}}
	wrapped = &interleaveRepo{memoryRepo: repo}
	svc = NewService(wrapped, resolver, cat, credits, nil, nil)
	base = NewService(repo, resolver, cat, credits, nil, nil)
	return svc, base, wrapped
}

func TestServiceUpdateKeepsConcurrentPayment(t *testing.T) {
	svc, base, wrapped := newInterleavedServices()
	ctx := authedContext()

	doc, _, err := svc.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)

	// A payment commits after the chase-only update is dispatched but
	// before its transaction opens; both writes must survive.
	wrapped.before = func() {
		_, _, err := base.ApplyTransaction(ctx, Transaction{
			DocumentID: doc.ID, Kind: KindInvoice,
			Type: TransactionPayment, Status: TransactionSucceeded, Amount: 4000,
		})
		require.NoError(t, err)
	}

	chase := true
	updated, _, err := svc.Update(ctx, KindInvoice, doc.ID, UpdateDocumentInput{Chase: &chase})
	require.NoError(t, err)
	require.True(t, updated.Chase)
	require.Equal(t, int64(4000), updated.AmountPaid)
	require.Equal(t, doc.Total-4000, updated.Balance)

	stored, err := svc.Get(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.True(t, stored.Chase)
	require.Equal(t, int64(4000), stored.AmountPaid)
	require.Equal(t, doc.Total-4000, stored.Balance)
}

func TestServiceCloseKeepsConcurrentPayment(t *testing.T) {
	svc, base, wrapped := newInterleavedServices()
	ctx := authedContext()

	doc, _, err := svc.Create(ctx, fixtureCreateInput())
	require.NoError(t, err)

	wrapped.before = func() {
		_, _, err := base.ApplyTransaction(ctx, Transaction{
			DocumentID: doc.ID, Kind: KindInvoice,
			Type: TransactionPayment, Status: TransactionSucceeded, Amount: 2500,
		})
		require.NoError(t, err)
	}

	closed, _, err := svc.Close(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.True(t, closed.Closed)
	require.Equal(t, int64(2500), closed.AmountPaid)
	require.Equal(t, doc.Total-2500, closed.Balance)

	stored, err := svc.Get(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.True(t, stored.Closed)
	require.Equal(t, int64(2500), stored.AmountPaid)
}

func TestServiceCatalogItemFillsDefaults(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	cat := fx.service.catalog.(*memoryCatalog)
	cat.items["1/seat-license"] = catalog.Item{
		ID: "seat-license", TenantID: 1, Name: "Seat license",
		Currency: "USD", UnitCost: decimal.RequireFromString("49.99"), Taxable: true,
	}

	doc, _, err := fx.service.Create(ctx, CreateDocumentInput{
		Kind:       KindInvoice,
		CustomerID: 55,
		Draft:      true,
		Items: []LineItemInput{
			{CatalogItemID: "seat-license", Quantity: numPtr("2")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Seat license", doc.Items[0].Name)
	require.Equal(t, int64(9998), doc.Subtotal)
}

func TestServiceCrossTenantCatalogItemRejected(t *testing.T) {
	fx := newServiceFixture()
	ctx := authedContext()

	cat := fx.service.catalog.(*memoryCatalog)
	cat.items["2/other-tenant-item"] = catalog.Item{ID: "other-tenant-item", TenantID: 2, Name: "hidden"}

	_, _, err := fx.service.Create(ctx, CreateDocumentInput{
		Kind:       KindInvoice,
		CustomerID: 55,
		Draft:      true,
		Items: []LineItemInput{
			{CatalogItemID: "other-tenant-item"},
		},
	})
	var validation *shared.ValidationErrors
	require.True(t, errors.As(err, &validation))
	require.Contains(t, validation.Messages, "Referenced catalog item that does not exist: other-tenant-item")
}
