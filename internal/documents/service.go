package documents

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-ledger/internal/ledger"
	"github.com/atlas-erp/atlas-ledger/internal/money"
	"github.com/atlas-erp/atlas-ledger/internal/shared"
)

// RepositoryPort abstracts document persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Document, error)
	List(ctx context.Context, req ListRequest) ([]Document, int, error)
	DeleteDraft(ctx context.Context, id int64) error
	SettledAmount(ctx context.Context, targetID int64) (money.Amount, error)
}

// AuditPort records document events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventPort publishes domain events after commit.
type EventPort interface {
	DocumentCreated(ctx context.Context, doc Document)
	DocumentTransitioned(ctx context.Context, doc Document, action Action, entry *ledger.JournalEntry)
}

// MetricsPort counts workflow transitions and their ledger side effects.
type MetricsPort interface {
	CountPosting(sourceModule string)
	CountReversal()
	CountTransition(family, action string)
}

// Service coordinates the document lifecycle. Posting-equivalent transitions
// change document status and write the journal entry in one transaction.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	events   EventPort
	metrics  MetricsPort
	accounts AccountMap
	now      func() time.Time
}

// NewService constructs the document service.
func NewService(repo RepositoryPort, audit AuditPort, events EventPort, accounts AccountMap) *Service {
	return &Service{repo: repo, audit: audit, events: events, accounts: accounts, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches workflow counters.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

// LineInput carries one line of a create or update request.
type LineInput struct {
	ProductID   int64
	Description *string
	Quantity    string
	UnitPrice   string
	DiscountPct string
	TaxPct      string
}

// CreateInput carries a document creation request. Status is always DRAFT;
// totals are computed, never accepted.
type CreateInput struct {
	Family         Family
	CounterpartyID int64
	DocDate        time.Time
	DueDate        *time.Time
	Currency       string
	Notes          *string
	ActorID        int64
	Lines          []LineInput
}

// UpdateInput carries a draft document update.
type UpdateInput struct {
	DocumentID     int64
	Version        int64
	CounterpartyID int64
	DocDate        time.Time
	DueDate        *time.Time
	Currency       string
	Notes          *string
	ActorID        int64
	Lines          []LineInput
}

func buildLines(inputs []LineInput) ([]Line, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyLines
	}
	lines := make([]Line, 0, len(inputs))
	for i, in := range inputs {
		line := Line{ProductID: in.ProductID, Description: in.Description, LineOrder: i + 1}
		var err error
		if line.Quantity, err = money.ParseDecimal(in.Quantity); err != nil {
			return nil, fmt.Errorf("documents: line %d quantity: %w", i+1, err)
		}
		if line.Quantity.Sign() <= 0 {
			return nil, fmt.Errorf("%w (line %d)", ErrInvalidQuantity, i+1)
		}
		if line.UnitPrice, err = money.ParseDecimal(in.UnitPrice); err != nil {
			return nil, fmt.Errorf("documents: line %d unit price: %w", i+1, err)
		}
		if line.UnitPrice.Sign() < 0 {
			return nil, fmt.Errorf("documents: line %d unit price must not be negative", i+1)
		}
		if line.DiscountPct, err = money.ParsePercent(in.DiscountPct); err != nil {
			return nil, fmt.Errorf("documents: line %d discount: %w", i+1, err)
		}
		if line.TaxPct, err = money.ParsePercent(in.TaxPct); err != nil {
			return nil, fmt.Errorf("documents: line %d tax: %w", i+1, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Create inserts a new draft document with computed totals and a generated
// number.
func (s *Service) Create(ctx context.Context, in CreateInput) (Document, error) {
	if _, ok := transitions[in.Family]; !ok {
		return Document{}, ErrUnknownFamily
	}
	if in.CounterpartyID <= 0 {
		return Document{}, fmt.Errorf("%w: counterparty", ErrMissingField)
	}
	if in.Currency == "" {
		return Document{}, fmt.Errorf("%w: currency", ErrMissingField)
	}
	lines, err := buildLines(in.Lines)
	if err != nil {
		return Document{}, err
	}

	docDate := in.DocDate
	if docDate.IsZero() {
		docDate = s.now()
	}
	doc := Document{
		UUID:           uuid.New(),
		Family:         in.Family,
		CounterpartyID: in.CounterpartyID,
		DocDate:        docDate,
		DueDate:        in.DueDate,
		Currency:       in.Currency,
		Status:         InitialStatus,
		Notes:          in.Notes,
		CreatedBy:      in.ActorID,
		Lines:          lines,
	}
	ComputeTotals(&doc)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateNumber(ctx, doc.Family, doc.DocDate)
		if err != nil {
			return err
		}
		doc.Number = number
		doc, err = tx.Insert(ctx, doc)
		return err
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, in.ActorID, "document.create", doc.ID, map[string]any{"family": doc.Family, "number": doc.Number})
	if s.events != nil {
		s.events.DocumentCreated(ctx, doc)
	}
	return doc, nil
}

// Update replaces a draft document's header and lines. Non-draft documents
// are immutable through this path.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Document, error) {
	lines, err := buildLines(in.Lines)
	if err != nil {
		return Document{}, err
	}
	var updated Document
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, in.DocumentID)
		if err != nil {
			return err
		}
		if doc.Status != StatusDraft {
			return ErrNotEditable
		}
		if in.Version != 0 && in.Version != doc.Version {
			return ErrConcurrencyConflict
		}
		doc.CounterpartyID = in.CounterpartyID
		if !in.DocDate.IsZero() {
			doc.DocDate = in.DocDate
		}
		doc.DueDate = in.DueDate
		if in.Currency != "" {
			doc.Currency = in.Currency
		}
		doc.Notes = in.Notes
		doc.Lines = lines
		ComputeTotals(&doc)
		if err := tx.UpdateHeader(ctx, doc); err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, doc.ID, doc.Lines); err != nil {
			return err
		}
		doc.Version++
		updated = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, in.ActorID, "document.update", updated.ID, nil)
	return updated, nil
}

// Get loads one document.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.Get(ctx, id)
}

// List pages documents of one family.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Document, int, error) {
	return s.repo.List(ctx, req)
}

// Delete removes a draft document. Any other status is refused.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status != StatusDraft {
		return ErrNotEditable
	}
	if err := s.repo.DeleteDraft(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "document.delete", id, map[string]any{"number": doc.Number})
	return nil
}

// PaymentState derives the settlement sub-state for a posted invoice or
// bill.
func (s *Service) PaymentState(ctx context.Context, doc Document) (PaymentState, money.Amount, error) {
	if doc.Status != StatusPosted || (doc.Family != FamilyInvoice && doc.Family != FamilyBill) {
		return "", 0, nil
	}
	settled, err := s.repo.SettledAmount(ctx, doc.ID)
	if err != nil {
		return "", 0, err
	}
	return DerivePaymentState(doc, settled, s.now()), settled, nil
}

// Transition applies a workflow action. The status change and any journal
// posting or reversal it implies commit in the same transaction; on any
// failure the document keeps its previous state and no entry exists.
func (s *Service) Transition(ctx context.Context, in TransitionInput) (Document, *ledger.JournalEntry, error) {
	switch in.Action {
	case ActionRevise, ActionConvert:
		return Document{}, nil, fmt.Errorf("%w: %s has a dedicated endpoint", ErrIllegalTransition, in.Action)
	}

	var (
		doc      Document
		entry    *ledger.JournalEntry
		posted   bool
		reversed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, in.DocumentID)
		if err != nil {
			return err
		}
		if in.Version != 0 && in.Version != current.Version {
			return ErrConcurrencyConflict
		}
		edge, err := Next(current.Family, current.Status, in.Action)
		if err != nil {
			return err
		}
		if edge.RequiresReason && strings.TrimSpace(in.Reason) == "" {
			return fmt.Errorf("%w: reason", ErrMissingField)
		}

		date := in.Date
		if date.IsZero() {
			date = current.DocDate
		}

		if current.Family == FamilyDownPayment && (in.Action == ActionVoid || in.Action == ActionRefund) {
			applied, err := tx.AppliedAmount(ctx, current.ID)
			if err != nil {
				return err
			}
			if in.Action == ActionVoid && applied > 0 {
				return fmt.Errorf("%w: down payment has active applications", ErrIllegalTransition)
			}
			if in.Action == ActionRefund {
				entry, err = s.postRefund(ctx, tx, current, applied, date, in)
				if err != nil {
					return err
				}
				posted = true
			}
		}

		if edge.Posts && entry == nil {
			if len(current.Lines) == 0 {
				return ErrEmptyLines
			}
			lines, err := BuildPostingLines(s.accounts, current)
			if err != nil {
				return err
			}
			postedEntry, err := ledger.PostWithinTx(ctx, tx.Ledger(), ledger.PostingInput{
				Date:         date,
				SourceModule: string(current.Family),
				SourceID:     current.UUID,
				Memo:         current.Number,
				PostedBy:     in.ActorID,
				Override:     in.Override,
				Lines:        lines,
			})
			if err != nil {
				return err
			}
			entry = &postedEntry
			posted = true
		}

		if edge.Reverses {
			lg := tx.Ledger()
			original, err := lg.EntryBySource(ctx, string(current.Family), current.UUID)
			if err != nil {
				return err
			}
			reversal, err := ledger.ReverseWithinTx(ctx, lg, ledger.ReverseInput{
				EntryID:  original.ID,
				ActorID:  in.ActorID,
				Reason:   in.Reason,
				Date:     date,
				Override: in.Override,
			})
			if err != nil {
				return err
			}
			entry = &reversal
			reversed = true
		}

		var reason *string
		if r := strings.TrimSpace(in.Reason); r != "" {
			reason = &r
		}
		if err := tx.UpdateStatus(ctx, current.ID, edge.To, reason); err != nil {
			return err
		}
		current.Status = edge.To
		current.Version++
		if reason != nil {
			current.Reason = reason
		}
		doc = current
		return nil
	})
	if err != nil {
		return Document{}, nil, err
	}

	meta := map[string]any{"action": in.Action, "status": doc.Status}
	if entry != nil {
		meta["journal_entry_id"] = entry.ID
	}
	s.recordAudit(ctx, in.ActorID, "document."+string(in.Action), doc.ID, meta)
	if s.metrics != nil {
		s.metrics.CountTransition(string(doc.Family), string(in.Action))
		if posted {
			s.metrics.CountPosting(string(doc.Family))
		}
		if reversed {
			s.metrics.CountReversal()
		}
	}
	if s.events != nil {
		s.events.DocumentTransitioned(ctx, doc, in.Action, entry)
	}
	return doc, entry, nil
}

// postRefund posts the refund of a down payment's unapplied remainder.
func (s *Service) postRefund(ctx context.Context, tx TxRepository, doc Document, applied money.Amount, date time.Time, in TransitionInput) (*ledger.JournalEntry, error) {
	lines, err := BuildRefundLines(s.accounts, doc.GrandTotal-applied)
	if err != nil {
		return nil, err
	}
	posted, err := ledger.PostWithinTx(ctx, tx.Ledger(), ledger.PostingInput{
		Date:         date,
		SourceModule: string(doc.Family) + ":REFUND",
		SourceID:     uuid.New(),
		Memo:         "Refund " + doc.Number,
		PostedBy:     in.ActorID,
		Override:     in.Override,
		Lines:        lines,
	})
	if err != nil {
		return nil, err
	}
	return &posted, nil
}

// Duplicate creates a fresh draft copy of a document with a new number.
// Workflow history, postings and revision links are not carried over.
func (s *Service) Duplicate(ctx context.Context, id, actorID int64) (Document, error) {
	source, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	var dup Document
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		dup = copyAsDraft(source, actorID, s.now())
		number, err := tx.GenerateNumber(ctx, dup.Family, dup.DocDate)
		if err != nil {
			return err
		}
		dup.Number = number
		dup, err = tx.Insert(ctx, dup)
		return err
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, actorID, "document.duplicate", dup.ID, map[string]any{"source_id": id})
	return dup, nil
}

// Revise supersedes a quotation with a new editable draft. The original is
// kept for reference and points at its revision.
func (s *Service) Revise(ctx context.Context, id, actorID int64) (Document, error) {
	var revision Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := Next(original.Family, original.Status, ActionRevise); err != nil {
			return err
		}
		revision = copyAsDraft(original, actorID, s.now())
		revision.RevisionOfID = &original.ID
		number, err := tx.GenerateNumber(ctx, revision.Family, revision.DocDate)
		if err != nil {
			return err
		}
		revision.Number = number
		revision, err = tx.Insert(ctx, revision)
		if err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, original.ID, StatusSuperseded, nil); err != nil {
			return err
		}
		return tx.SetSupersededBy(ctx, original.ID, revision.ID)
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, actorID, "document.revise", id, map[string]any{"revision_id": revision.ID})
	return revision, nil
}

// ConvertToInvoice turns an approved quotation into a draft invoice carrying
// the quotation's lines. The quotation becomes CONVERTED in the same
// transaction.
func (s *Service) ConvertToInvoice(ctx context.Context, quotationID, actorID int64) (Document, error) {
	var invoice Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quotation, err := tx.GetForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		if quotation.Family != FamilyQuotation {
			return fmt.Errorf("%w: only quotations convert to invoices", ErrIllegalTransition)
		}
		if _, err := Next(quotation.Family, quotation.Status, ActionConvert); err != nil {
			return err
		}
		invoice = copyAsDraft(quotation, actorID, s.now())
		invoice.Family = FamilyInvoice
		invoice.SourceDocID = &quotation.ID
		number, err := tx.GenerateNumber(ctx, FamilyInvoice, invoice.DocDate)
		if err != nil {
			return err
		}
		invoice.Number = number
		invoice, err = tx.Insert(ctx, invoice)
		if err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, quotation.ID, StatusConverted, nil)
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, actorID, "document.convert", quotationID, map[string]any{"invoice_id": invoice.ID})
	return invoice, nil
}

func copyAsDraft(source Document, actorID int64, now time.Time) Document {
	doc := Document{
		UUID:           uuid.New(),
		Family:         source.Family,
		CounterpartyID: source.CounterpartyID,
		DocDate:        now,
		DueDate:        source.DueDate,
		Currency:       source.Currency,
		Status:         InitialStatus,
		Notes:          source.Notes,
		CreatedBy:      actorID,
	}
	doc.Lines = make([]Line, 0, len(source.Lines))
	for _, line := range source.Lines {
		doc.Lines = append(doc.Lines, Line{
			ProductID:   line.ProductID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			DiscountPct: line.DiscountPct,
			TaxPct:      line.TaxPct,
			LineOrder:   line.LineOrder,
		})
	}
	ComputeTotals(&doc)
	return doc
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, docID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "document",
		EntityID: strconv.FormatInt(docID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
