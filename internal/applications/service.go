package applications

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-ledger/internal/documents"
	"github.com/atlas-erp/atlas-ledger/internal/fiscal"
	"github.com/atlas-erp/atlas-ledger/internal/ledger"
	"github.com/atlas-erp/atlas-ledger/internal/shared"
)

// RepositoryPort abstracts application persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListForDocument(ctx context.Context, docID int64) ([]Application, error)
	Get(ctx context.Context, id int64) (Application, error)
}

// AuditPort records application events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventPort publishes domain events after commit.
type EventPort interface {
	Applied(ctx context.Context, app Application)
	Unapplied(ctx context.Context, app Application)
}

// Service coordinates applying and unapplying settlement money. The
// application row, the advance-to-receivable journal entry and the source
// status change all commit in one transaction.
type Service struct {
	repo       RepositoryPort
	audit      AuditPort
	events     EventPort
	advances   int64
	receivable int64
	now        func() time.Time
}

// NewService constructs the applications service with the customer advances
// and receivable account ids.
func NewService(repo RepositoryPort, audit AuditPort, events EventPort, advancesAccount, receivableAccount int64) *Service {
	return &Service{
		repo:       repo,
		audit:      audit,
		events:     events,
		advances:   advancesAccount,
		receivable: receivableAccount,
		now:        time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Apply settles part of a posted invoice from a confirmed down payment. The
// amount must fit both the source's unapplied remainder and the target's
// outstanding balance.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (Application, error) {
	if in.Amount <= 0 {
		return Application{}, ErrInvalidAmount
	}
	var app Application
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		source, err := tx.DocForUpdate(ctx, in.SourceID)
		if err != nil {
			return err
		}
		if source.Family != documents.FamilyDownPayment ||
			(source.Status != documents.StatusConfirmed && source.Status != documents.StatusApplied) {
			return ErrSourceNotApplicable
		}
		target, err := tx.DocForUpdate(ctx, in.TargetID)
		if err != nil {
			return err
		}
		if target.Family != documents.FamilyInvoice || target.Status != documents.StatusPosted {
			return ErrTargetNotApplicable
		}

		applied, err := tx.ActiveAppliedFrom(ctx, source.ID)
		if err != nil {
			return err
		}
		if in.Amount > source.GrandTotal-applied {
			return ErrOverApplication
		}
		settled, err := tx.ActiveSettledOn(ctx, target.ID)
		if err != nil {
			return err
		}
		if in.Amount > target.GrandTotal-settled {
			return ErrOverApplication
		}

		date := in.Date
		if date.IsZero() {
			date = s.now()
		}
		appUUID := uuid.New()
		entry, err := ledger.PostWithinTx(ctx, tx.Ledger(), ledger.PostingInput{
			Date:         date,
			SourceModule: "APPLICATION",
			SourceID:     appUUID,
			Memo:         "Apply " + source.Number + " to " + target.Number,
			PostedBy:     in.ActorID,
			Lines: []ledger.LineInput{
				{AccountID: s.advances, Debit: in.Amount},
				{AccountID: s.receivable, Credit: in.Amount},
			},
		})
		if err != nil {
			return err
		}
		app, err = tx.Insert(ctx, Application{
			UUID:      appUUID,
			SourceID:  source.ID,
			TargetID:  target.ID,
			Amount:    in.Amount,
			EntryID:   entry.ID,
			AppliedAt: date,
			CreatedBy: in.ActorID,
		})
		if err != nil {
			return err
		}
		if applied+in.Amount == source.GrandTotal && source.Status != documents.StatusApplied {
			return tx.SetDocStatus(ctx, source.ID, documents.StatusApplied)
		}
		return nil
	})
	if err != nil {
		return Application{}, err
	}
	s.recordAudit(ctx, in.ActorID, "application.apply", app.ID, map[string]any{
		"source_id": app.SourceID, "target_id": app.TargetID, "amount": int64(app.Amount),
	})
	if s.events != nil {
		s.events.Applied(ctx, app)
	}
	return app, nil
}

// Unapply reverses an application. The row stays on record with its reversal
// entry; the source regains the amount and leaves APPLIED if it was there.
// Reversal is refused when the application settled the last of a fully paid
// target and its posting period has closed, unless an override is held.
func (s *Service) Unapply(ctx context.Context, in UnapplyInput) (Application, error) {
	var app Application
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		app, err = tx.ApplicationForUpdate(ctx, in.ApplicationID)
		if err != nil {
			return err
		}
		if !app.Active() {
			return ErrAlreadyReversed
		}
		source, err := tx.DocForUpdate(ctx, app.SourceID)
		if err != nil {
			return err
		}
		target, err := tx.DocForUpdate(ctx, app.TargetID)
		if err != nil {
			return err
		}

		lg := tx.Ledger()
		original, _, err := lg.EntryForUpdate(ctx, app.EntryID)
		if err != nil {
			return err
		}
		if !in.Override && target.Status == documents.StatusPosted {
			settled, err := tx.ActiveSettledOn(ctx, target.ID)
			if err != nil {
				return err
			}
			if settled >= target.GrandTotal {
				period, err := lg.PeriodCoveringForUpdate(ctx, original.Date)
				if err == nil && period.Status == fiscal.StatusClosed {
					return ErrUnapplicationNotAllowed
				}
			}
		}

		date := in.Date
		if date.IsZero() {
			date = s.now()
		}
		reversal, err := ledger.ReverseWithinTx(ctx, lg, ledger.ReverseInput{
			EntryID:  app.EntryID,
			ActorID:  in.ActorID,
			Reason:   in.Reason,
			Date:     date,
			Override: in.Override,
		})
		if err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, app.ID, in.ActorID, reversal.ID, in.Reason, date); err != nil {
			return err
		}
		if source.Status == documents.StatusApplied {
			if err := tx.SetDocStatus(ctx, source.ID, documents.StatusConfirmed); err != nil {
				return err
			}
		}
		app.ReversedAt = &date
		app.ReversedBy = &in.ActorID
		app.ReversalEntryID = &reversal.ID
		return nil
	})
	if err != nil {
		return Application{}, err
	}
	s.recordAudit(ctx, in.ActorID, "application.unapply", app.ID, map[string]any{
		"source_id": app.SourceID, "target_id": app.TargetID, "amount": int64(app.Amount),
	})
	if s.events != nil {
		s.events.Unapplied(ctx, app)
	}
	return app, nil
}

// Get loads one application.
func (s *Service) Get(ctx context.Context, id int64) (Application, error) {
	return s.repo.Get(ctx, id)
}

// ListForDocument returns the application history of a document.
func (s *Service) ListForDocument(ctx context.Context, docID int64) ([]Application, error) {
	return s.repo.ListForDocument(ctx, docID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, appID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "application",
		EntityID: strconv.FormatInt(appID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
