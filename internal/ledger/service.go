package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-ledger/internal/fiscal"
	"github.com/atlas-erp/atlas-ledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, limit, offset int) ([]JournalEntry, int, error)
	GetEntry(ctx context.Context, entryID int64) (JournalEntry, error)
	TrialBalance(ctx context.Context, asOf time.Time) ([]TrialBalanceRow, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventPort publishes domain events after commit.
type EventPort interface {
	JournalPosted(ctx context.Context, entry JournalEntry)
	JournalReversed(ctx context.Context, original int64, reversal JournalEntry)
}

// MetricsPort counts posted and reversed entries.
type MetricsPort interface {
	CountPosting(sourceModule string)
	CountReversal()
}

// Service coordinates posting and reversing journal entries.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	events  EventPort
	metrics MetricsPort
	now     func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, events EventPort) *Service {
	return &Service{repo: repo, audit: audit, events: events, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches posting counters.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

// Post validates and persists a new posted journal entry.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = PostWithinTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.PostedBy, "journal.post", entry.ID, map[string]any{
		"number":        entry.Number,
		"source_module": input.SourceModule,
		"source_id":     input.SourceID.String(),
	})
	if s.metrics != nil {
		s.metrics.CountPosting(input.SourceModule)
	}
	if s.events != nil {
		s.events.JournalPosted(ctx, entry)
	}
	return entry, nil
}

// CreateDraft stores a manual journal entry awaiting posting. Balance is
// enforced at creation time as well, so a draft can never hold an
// unbalanced line set.
func (s *Service) CreateDraft(ctx context.Context, input DraftInput) (JournalEntry, error) {
	if err := ValidateLines(input.Lines); err != nil {
		return JournalEntry{}, err
	}
	if input.Date.IsZero() {
		return JournalEntry{}, errors.New("ledger: entry date required")
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertEntry(ctx, EntryParams{
			Date:         input.Date,
			SourceModule: "MANUAL",
			SourceID:     uuid.New(),
			Memo:         input.Memo,
			Status:       EntryStatusDraft,
			PostedBy:     0,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		inserted.Lines = attachLines(inserted.ID, input.Lines)
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.CreatedBy, "journal.draft", entry.ID, map[string]any{"memo": input.Memo})
	return entry, nil
}

// PostDraft promotes a manual draft entry into the posted ledger, re-running
// the balance check and the period guard.
func (s *Service) PostDraft(ctx context.Context, entryID, actorID int64) (JournalEntry, error) {
	if entryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, lines, err := tx.EntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusDraft {
			return ErrAlreadyPosted
		}
		inputs := make([]LineInput, 0, len(lines))
		for _, line := range lines {
			inputs = append(inputs, LineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
		}
		if err := ValidateLines(inputs); err != nil {
			return err
		}
		period, err := tx.PeriodCoveringForUpdate(ctx, current.Date)
		if err != nil {
			return err
		}
		if err := fiscal.EnsurePostable(period, false); err != nil {
			return err
		}
		if err := tx.MarkPosted(ctx, current.ID, period.ID, actorID, s.now()); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, current.SourceModule, current.SourceID, current.ID); err != nil && !errors.Is(err, ErrSourceConflict) {
			return err
		}
		current.Status = EntryStatusPosted
		current.PeriodID = period.ID
		current.Lines = lines
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, actorID, "journal.post", entry.ID, map[string]any{"number": entry.Number, "manual": true})
	if s.metrics != nil {
		s.metrics.CountPosting(entry.SourceModule)
	}
	if s.events != nil {
		s.events.JournalPosted(ctx, entry)
	}
	return entry, nil
}

// Reverse creates a reversing journal entry for a posted entry.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = ReverseWithinTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.ActorID, "journal.reverse", input.EntryID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
		"reason":          input.Reason,
	})
	if s.metrics != nil {
		s.metrics.CountReversal()
	}
	if s.events != nil {
		s.events.JournalReversed(ctx, input.EntryID, reversal)
	}
	return reversal, nil
}

// Get loads one entry with lines.
func (s *Service) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, entryID)
}

// List returns entries newest first with a total count for pagination.
func (s *Service) List(ctx context.Context, limit, offset int) ([]JournalEntry, int, error) {
	return s.repo.ListEntries(ctx, limit, offset)
}

// ListAccounts retrieves the chart of accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx)
		return err
	})
	return accounts, err
}

// TrialBalance derives per-account totals from posted lines.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) ([]TrialBalanceRow, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.repo.TrialBalance(ctx, asOf)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
		At:       s.now(),
	})
}
