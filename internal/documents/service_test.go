package documents

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-ledger/internal/fiscal"
	"github.com/atlas-erp/atlas-ledger/internal/ledger"
	"github.com/atlas-erp/atlas-ledger/internal/money"
	"github.com/atlas-erp/atlas-ledger/internal/shared"
)

// ============================================================================
// MOCK LEDGER
// ============================================================================

type ledgerSourceKey struct {
	module string
	ref    uuid.UUID
}

type mockLedger struct {
	periods []fiscal.Period
	entries map[int64]*ledger.JournalEntry
	lines   map[int64][]ledger.JournalLine
	links   map[ledgerSourceKey]int64
	nextID  int64
}

func newMockLedger(periods ...fiscal.Period) *mockLedger {
	return &mockLedger{
		periods: periods,
		entries: make(map[int64]*ledger.JournalEntry),
		lines:   make(map[int64][]ledger.JournalLine),
		links:   make(map[ledgerSourceKey]int64),
		nextID:  1,
	}
}

func (m *mockLedger) InsertEntry(_ context.Context, in ledger.EntryParams) (ledger.JournalEntry, error) {
	id := m.nextID
	m.nextID++
	entry := ledger.JournalEntry{
		ID:           id,
		Number:       id,
		PeriodID:     in.PeriodID,
		Date:         in.Date,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
		Status:       in.Status,
		ReversalOfID: in.ReversalOfID,
		PostedBy:     in.PostedBy,
	}
	m.entries[id] = &entry
	return entry, nil
}

func (m *mockLedger) InsertLines(_ context.Context, entryID int64, lines []ledger.LineInput) error {
	for _, l := range lines {
		m.lines[entryID] = append(m.lines[entryID], ledger.JournalLine{
			EntryID:   entryID,
			AccountID: l.AccountID,
			Debit:     l.Debit,
			Credit:    l.Credit,
		})
	}
	return nil
}

func (m *mockLedger) LinkSource(_ context.Context, module string, ref uuid.UUID, entryID int64) error {
	key := ledgerSourceKey{module: module, ref: ref}
	if _, exists := m.links[key]; exists {
		return ledger.ErrSourceConflict
	}
	m.links[key] = entryID
	return nil
}

func (m *mockLedger) PeriodCoveringForUpdate(_ context.Context, on time.Time) (fiscal.Period, error) {
	for _, p := range m.periods {
		if p.Covers(on) {
			return p, nil
		}
	}
	return fiscal.Period{}, fiscal.ErrNoPeriod
}

func (m *mockLedger) NextOpenPeriodAfter(_ context.Context, on time.Time) (fiscal.Period, error) {
	for _, p := range m.periods {
		if p.Status == fiscal.StatusOpen && !p.StartDate.Before(on) {
			return p, nil
		}
	}
	return fiscal.Period{}, fiscal.ErrNoPeriod
}

func (m *mockLedger) EntryForUpdate(_ context.Context, entryID int64) (ledger.JournalEntry, []ledger.JournalLine, error) {
	entry, ok := m.entries[entryID]
	if !ok {
		return ledger.JournalEntry{}, nil, ledger.ErrEntryNotFound
	}
	return *entry, m.lines[entryID], nil
}

func (m *mockLedger) EntryBySource(_ context.Context, module string, ref uuid.UUID) (ledger.JournalEntry, error) {
	id, ok := m.links[ledgerSourceKey{module: module, ref: ref}]
	if !ok {
		return ledger.JournalEntry{}, ledger.ErrEntryNotFound
	}
	return *m.entries[id], nil
}

func (m *mockLedger) MarkReversed(_ context.Context, entryID int64) error {
	entry, ok := m.entries[entryID]
	if !ok {
		return ledger.ErrEntryNotFound
	}
	entry.Reversed = true
	return nil
}

func (m *mockLedger) MarkPosted(_ context.Context, entryID, periodID, actorID int64, postedAt time.Time) error {
	return nil
}

func (m *mockLedger) ListAccounts(_ context.Context) ([]ledger.Account, error) { return nil, nil }

func (m *mockLedger) AccountByCode(_ context.Context, code string) (ledger.Account, error) {
	return ledger.Account{}, ledger.ErrAccountNotFound
}

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	docs    map[int64]*Document
	nextID  int64
	numbers map[Family]int
	ledger  *mockLedger
	applied map[int64]money.Amount
	settled map[int64]money.Amount
}

func newMockRepository(lg *mockLedger) *mockRepository {
	return &mockRepository{
		docs:    make(map[int64]*Document),
		nextID:  1,
		numbers: make(map[Family]int),
		ledger:  lg,
		applied: make(map[int64]money.Amount),
		settled: make(map[int64]money.Amount),
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) Get(_ context.Context, id int64) (Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return *doc, nil
}

func (m *mockRepository) List(_ context.Context, req ListRequest) ([]Document, int, error) {
	var out []Document
	for _, d := range m.docs {
		if d.Family == req.Family {
			out = append(out, *d)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) DeleteDraft(_ context.Context, id int64) error {
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	if doc.Status != StatusDraft {
		return ErrNotEditable
	}
	delete(m.docs, id)
	return nil
}

func (m *mockRepository) SettledAmount(_ context.Context, targetID int64) (money.Amount, error) {
	return m.settled[targetID], nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) GetForUpdate(_ context.Context, id int64) (Document, error) {
	doc, ok := t.mock.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return *doc, nil
}

func (t *mockTxRepo) Insert(_ context.Context, doc Document) (Document, error) {
	doc.ID = t.mock.nextID
	t.mock.nextID++
	doc.Version = 1
	stored := doc
	t.mock.docs[doc.ID] = &stored
	return doc, nil
}

func (t *mockTxRepo) ReplaceLines(_ context.Context, docID int64, lines []Line) error {
	doc, ok := t.mock.docs[docID]
	if !ok {
		return ErrNotFound
	}
	doc.Lines = lines
	return nil
}

func (t *mockTxRepo) UpdateHeader(_ context.Context, doc Document) error {
	stored, ok := t.mock.docs[doc.ID]
	if !ok {
		return ErrNotFound
	}
	lines := stored.Lines
	*stored = doc
	stored.Lines = lines
	stored.Version++
	return nil
}

func (t *mockTxRepo) UpdateStatus(_ context.Context, id int64, to Status, reason *string) error {
	doc, ok := t.mock.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = to
	doc.Version++
	if reason != nil {
		doc.Reason = reason
	}
	return nil
}

func (t *mockTxRepo) SetSupersededBy(_ context.Context, originalID, revisionID int64) error {
	doc, ok := t.mock.docs[originalID]
	if !ok {
		return ErrNotFound
	}
	doc.SupersededByID = &revisionID
	return nil
}

func (t *mockTxRepo) SettledAmount(_ context.Context, targetID int64) (money.Amount, error) {
	return t.mock.settled[targetID], nil
}

func (t *mockTxRepo) AppliedAmount(_ context.Context, sourceID int64) (money.Amount, error) {
	return t.mock.applied[sourceID], nil
}

func (t *mockTxRepo) GenerateNumber(_ context.Context, family Family, on time.Time) (string, error) {
	t.mock.numbers[family]++
	return fmt.Sprintf("%s-%d-%05d", family, on.Year(), t.mock.numbers[family]), nil
}

func (t *mockTxRepo) Ledger() ledger.TxRepository {
	return t.mock.ledger
}

type nopAudit struct{ logs []shared.AuditLog }

func (a *nopAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

// ============================================================================
// FIXTURES
// ============================================================================

func newTestService(t *testing.T) (*Service, *mockRepository, *mockLedger) {
	t.Helper()
	lg := newMockLedger(fiscal.Period{
		ID:        1,
		Code:      "2026-06",
		StartDate: date(2026, 6, 1),
		EndDate:   date(2026, 6, 30),
		Status:    fiscal.StatusOpen,
	})
	repo := newMockRepository(lg)
	svc := NewService(repo, &nopAudit{}, nil, testAccountMap())
	svc.WithNow(func() time.Time { return date(2026, 6, 15) })
	return svc, repo, lg
}

func invoiceInput() CreateInput {
	return CreateInput{
		Family:         FamilyInvoice,
		CounterpartyID: 42,
		DocDate:        date(2026, 6, 15),
		Currency:       "USD",
		ActorID:        7,
		Lines: []LineInput{
			{ProductID: 1, Quantity: "10", UnitPrice: "27.50", TaxPct: "10"},
		},
	}
}

// ============================================================================
// CREATE / UPDATE / DELETE
// ============================================================================

func TestCreateInvoiceDraft(t *testing.T) {
	svc, _, _ := newTestService(t)

	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, doc.Status)
	assert.Equal(t, "INVOICE-2026-00001", doc.Number)
	assert.Equal(t, money.Amount(27500), doc.Subtotal)
	assert.Equal(t, money.Amount(2750), doc.Tax)
	assert.Equal(t, money.Amount(30250), doc.GrandTotal)
	assert.NotEqual(t, uuid.Nil, doc.UUID)
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)

	in := invoiceInput()
	in.Family = Family("RECEIPT")
	_, err := svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrUnknownFamily)

	in = invoiceInput()
	in.Lines = nil
	_, err = svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrEmptyLines)

	in = invoiceInput()
	in.Lines[0].Quantity = "0"
	_, err = svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	in = invoiceInput()
	in.Lines[0].UnitPrice = "-5"
	_, err = svc.Create(context.Background(), in)
	assert.Error(t, err)

	in = invoiceInput()
	in.CounterpartyID = 0
	_, err = svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestUpdateDraftRecomputesTotals(t *testing.T) {
	svc, _, _ := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), UpdateInput{
		DocumentID:     doc.ID,
		Version:        doc.Version,
		CounterpartyID: 42,
		Currency:       "USD",
		ActorID:        7,
		Lines: []LineInput{
			{ProductID: 1, Quantity: "2", UnitPrice: "100", TaxPct: "10"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, money.Amount(20000), updated.Subtotal)
	assert.Equal(t, money.Amount(22000), updated.GrandTotal)
	assert.Equal(t, doc.Version+1, updated.Version)
}

func TestUpdateStaleVersionFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), UpdateInput{
		DocumentID:     doc.ID,
		Version:        doc.Version + 5,
		CounterpartyID: 42,
		ActorID:        7,
		Lines:          invoiceInput().Lines,
	})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestUpdateNonDraftFails(t *testing.T) {
	svc, repo, _ := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)
	repo.docs[doc.ID].Status = StatusPosted

	_, err = svc.Update(context.Background(), UpdateInput{
		DocumentID:     doc.ID,
		CounterpartyID: 42,
		ActorID:        7,
		Lines:          invoiceInput().Lines,
	})
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestDeleteDraftOnly(t *testing.T) {
	svc, repo, _ := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), doc.ID, 7))
	_, err = svc.Get(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	doc2, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)
	repo.docs[doc2.ID].Status = StatusPosted
	assert.ErrorIs(t, svc.Delete(context.Background(), doc2.ID, 7), ErrNotEditable)
}

// ============================================================================
// TRANSITIONS AND POSTING
// ============================================================================

func TestPostInvoiceWritesBalancedEntry(t *testing.T) {
	svc, _, lg := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	posted, entry, err := svc.Transition(context.Background(), TransitionInput{
		DocumentID: doc.ID,
		Action:     ActionPost,
		ActorID:    7,
		Version:    doc.Version,
	})
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, StatusPosted, posted.Status)
	assert.Equal(t, "INVOICE", entry.SourceModule)
	assert.Equal(t, doc.UUID, entry.SourceID)
	assert.Equal(t, doc.Number, entry.Memo)

	lines := lg.lines[entry.ID]
	require.Len(t, lines, 3)
	assert.Equal(t, money.Amount(30250), lines[0].Debit)  // receivable
	assert.Equal(t, money.Amount(27500), lines[1].Credit) // revenue
	assert.Equal(t, money.Amount(2750), lines[2].Credit)  // tax payable
}

func TestPostInvoiceTwiceFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	_, _, err = svc.Transition(context.Background(), TransitionInput{DocumentID: doc.ID, Action: ActionPost, ActorID: 7})
	require.NoError(t, err)

	_, _, err = svc.Transition(context.Background(), TransitionInput{DocumentID: doc.ID, Action: ActionPost, ActorID: 7})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestPostStaleVersionKeepsState(t *testing.T) {
	svc, repo, lg := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	_, _, err = svc.Transition(context.Background(), TransitionInput{
		DocumentID: doc.ID,
		Action:     ActionPost,
		ActorID:    7,
		Version:    doc.Version + 1,
	})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, StatusDraft, repo.docs[doc.ID].Status)
	assert.Empty(t, lg.entries)
}

func TestPostIntoLockedPeriod(t *testing.T) {
	svc, _, lg := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)
	lg.periods[0].Status = fiscal.StatusLocked

	_, _, err = svc.Transition(context.Background(), TransitionInput{DocumentID: doc.ID, Action: ActionPost, ActorID: 7})
	assert.ErrorIs(t, err, fiscal.ErrPeriodLocked)

	_, entry, err := svc.Transition(context.Background(), TransitionInput{
		DocumentID: doc.ID,
		Action:     ActionPost,
		ActorID:    7,
		Override:   true,
	})
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestVoidRequiresReasonAndReverses(t *testing.T) {
	svc, repo, lg := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)
	_, posted, err := svc.Transition(context.Background(), TransitionInput{DocumentID: doc.ID, Action: ActionPost, ActorID: 7})
	require.NoError(t, err)

	_, _, err = svc.Transition(context.Background(), TransitionInput{DocumentID: doc.ID, Action: ActionVoid, ActorID: 7})
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Equal(t, StatusPosted, repo.docs[doc.ID].Status)

	voided, reversal, err := svc.Transition(context.Background(), TransitionInput{
		DocumentID: doc.ID,
		Action:     ActionVoid,
		ActorID:    7,
		Reason:     "customer cancelled order",
	})
	require.NoError(t, err)
	require.NotNil(t, reversal)
	assert.Equal(t, StatusVoid, voided.Status)
	require.NotNil(t, reversal.ReversalOfID)
	assert.Equal(t, posted.ID, *reversal.ReversalOfID)
	assert.True(t, lg.entries[posted.ID].Reversed)

	net := map[int64]int64{}
	for _, l := range append(lg.lines[posted.ID], lg.lines[reversal.ID]...) {
		net[l.AccountID] += int64(l.Debit) - int64(l.Credit)
	}
	for account, sum := range net {
		assert.Zero(t, sum, "account %d", account)
	}
}

func TestTransitionRejectsDedicatedEndpointActions(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.Transition(context.Background(), TransitionInput{DocumentID: 1, Action: ActionRevise})
	assert.ErrorIs(t, err, ErrIllegalTransition)
	_, _, err = svc.Transition(context.Background(), TransitionInput{DocumentID: 1, Action: ActionConvert})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

// ============================================================================
// DOWN PAYMENTS
// ============================================================================

func downPaymentInput() CreateInput {
	in := invoiceInput()
	in.Family = FamilyDownPayment
	in.Lines = []LineInput{{ProductID: 1, Quantity: "1", UnitPrice: "500"}}
	return in
}

func TestDownPaymentConfirmPosts(t *testing.T) {
	svc, _, lg := newTestService(t)
	dp, err := svc.Create(context.Background(), downPaymentInput())
	require.NoError(t, err)

	confirmed, entry, err := svc.Transition(context.Background(), TransitionInput{DocumentID: dp.ID, Action: ActionConfirm, ActorID: 7})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	lines := lg.lines[entry.ID]
	require.Len(t, lines, 2)
	assert.Equal(t, money.Amount(50000), lines[0].Debit)  // cash
	assert.Equal(t, money.Amount(50000), lines[1].Credit) // customer advances
}

func TestDownPaymentVoidBlockedWhileApplied(t *testing.T) {
	svc, repo, _ := newTestService(t)
	dp, err := svc.Create(context.Background(), downPaymentInput())
	require.NoError(t, err)
	_, _, err = svc.Transition(context.Background(), TransitionInput{DocumentID: dp.ID, Action: ActionConfirm, ActorID: 7})
	require.NoError(t, err)

	repo.applied[dp.ID] = 20000
	_, _, err = svc.Transition(context.Background(), TransitionInput{
		DocumentID: dp.ID,
		Action:     ActionVoid,
		ActorID:    7,
		Reason:     "entered in error",
	})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestDownPaymentRefundPostsRemainder(t *testing.T) {
	svc, repo, lg := newTestService(t)
	dp, err := svc.Create(context.Background(), downPaymentInput())
	require.NoError(t, err)
	_, _, err = svc.Transition(context.Background(), TransitionInput{DocumentID: dp.ID, Action: ActionConfirm, ActorID: 7})
	require.NoError(t, err)

	repo.applied[dp.ID] = 20000
	refunded, entry, err := svc.Transition(context.Background(), TransitionInput{DocumentID: dp.ID, Action: ActionRefund, ActorID: 7})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, StatusRefunded, refunded.Status)
	assert.Equal(t, "DOWN_PAYMENT:REFUND", entry.SourceModule)

	lines := lg.lines[entry.ID]
	require.Len(t, lines, 2)
	assert.Equal(t, money.Amount(30000), lines[0].Debit) // advances, unapplied remainder only
	assert.Equal(t, money.Amount(30000), lines[1].Credit)
}

// ============================================================================
// DUPLICATE / REVISE / CONVERT
// ============================================================================

func TestDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	dup, err := svc.Duplicate(context.Background(), doc.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, dup.Status)
	assert.NotEqual(t, doc.ID, dup.ID)
	assert.NotEqual(t, doc.Number, dup.Number)
	assert.NotEqual(t, doc.UUID, dup.UUID)
	assert.Equal(t, doc.GrandTotal, dup.GrandTotal)
	assert.Nil(t, dup.RevisionOfID)
}

func TestReviseQuotation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	in := invoiceInput()
	in.Family = FamilyQuotation
	quo, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	revision, err := svc.Revise(context.Background(), quo.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, revision.Status)
	require.NotNil(t, revision.RevisionOfID)
	assert.Equal(t, quo.ID, *revision.RevisionOfID)

	original := repo.docs[quo.ID]
	assert.Equal(t, StatusSuperseded, original.Status)
	require.NotNil(t, original.SupersededByID)
	assert.Equal(t, revision.ID, *original.SupersededByID)
}

func TestReviseInvoiceFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	_, err = svc.Revise(context.Background(), doc.ID, 9)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestConvertToInvoice(t *testing.T) {
	svc, repo, _ := newTestService(t)
	in := invoiceInput()
	in.Family = FamilyQuotation
	quo, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	_, _, err = svc.Transition(context.Background(), TransitionInput{DocumentID: quo.ID, Action: ActionSubmit, ActorID: 7})
	require.NoError(t, err)
	_, _, err = svc.Transition(context.Background(), TransitionInput{DocumentID: quo.ID, Action: ActionApprove, ActorID: 7})
	require.NoError(t, err)

	invoice, err := svc.ConvertToInvoice(context.Background(), quo.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, FamilyInvoice, invoice.Family)
	assert.Equal(t, StatusDraft, invoice.Status)
	require.NotNil(t, invoice.SourceDocID)
	assert.Equal(t, quo.ID, *invoice.SourceDocID)
	assert.Equal(t, quo.GrandTotal, invoice.GrandTotal)
	assert.Equal(t, StatusConverted, repo.docs[quo.ID].Status)
}

func TestConvertDraftQuotationFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	in := invoiceInput()
	in.Family = FamilyQuotation
	quo, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.ConvertToInvoice(context.Background(), quo.ID, 7)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

// ============================================================================
// PAYMENT STATE
// ============================================================================

func TestPaymentState(t *testing.T) {
	svc, repo, _ := newTestService(t)
	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)
	_, _, err = svc.Transition(context.Background(), TransitionInput{DocumentID: doc.ID, Action: ActionPost, ActorID: 7})
	require.NoError(t, err)

	posted := *repo.docs[doc.ID]
	state, settled, err := svc.PaymentState(context.Background(), posted)
	require.NoError(t, err)
	assert.Equal(t, PaymentStateUnpaid, state)
	assert.Zero(t, settled)

	repo.settled[doc.ID] = 10000
	state, settled, err = svc.PaymentState(context.Background(), posted)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatePartial, state)
	assert.Equal(t, money.Amount(10000), settled)

	repo.settled[doc.ID] = posted.GrandTotal
	state, _, err = svc.PaymentState(context.Background(), posted)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatePaid, state)
}

type captureMetrics struct {
	postings    []string
	reversals   int
	transitions []string
}

func (m *captureMetrics) CountPosting(sourceModule string) {
	m.postings = append(m.postings, sourceModule)
}

func (m *captureMetrics) CountReversal() { m.reversals++ }

func (m *captureMetrics) CountTransition(family, action string) {
	m.transitions = append(m.transitions, family+":"+action)
}

func TestTransitionCountsMetrics(t *testing.T) {
	svc, _, _ := newTestService(t)
	counts := &captureMetrics{}
	svc.WithMetrics(counts)

	doc, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	_, _, err = svc.Transition(context.Background(), TransitionInput{DocumentID: doc.ID, Action: ActionPost, ActorID: 7})
	require.NoError(t, err)
	_, _, err = svc.Transition(context.Background(), TransitionInput{
		DocumentID: doc.ID,
		Action:     ActionVoid,
		ActorID:    7,
		Reason:     "customer cancelled order",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"INVOICE:post", "INVOICE:void"}, counts.transitions)
	assert.Equal(t, []string{"INVOICE"}, counts.postings)
	assert.Equal(t, 1, counts.reversals)
}
