package fiscal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/atlas-erp/atlas-ledger/internal/shared"
)

// RepositoryPort abstracts period persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Period, error)
	List(ctx context.Context) ([]Period, error)
	Covering(ctx context.Context, date time.Time) (Period, error)
	HasOverlap(ctx context.Context, start, end time.Time) (bool, error)
	Insert(ctx context.Context, in CreatePeriodInput) (Period, error)
	UpdateStatus(ctx context.Context, upd StatusUpdate) (Period, error)
	ClosingChecklist(ctx context.Context, p Period) ([]ChecklistItem, error)
}

// AuditPort records period events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LeasePort serializes period administration.
type LeasePort interface {
	Acquire(ctx context.Context, key, holder string) error
	Release(ctx context.Context, key, holder string) error
}

// Service administers fiscal periods. Status changes are serialized through
// a redis lease so two administrators cannot race a lock against a reopen.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	lease LeasePort
	now   func() time.Time
}

// NewService constructs the fiscal service.
func NewService(repo RepositoryPort, audit AuditPort, lease LeasePort) *Service {
	return &Service{repo: repo, audit: audit, lease: lease, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Guard checks whether a posting dated at the given date would be accepted.
func (s *Service) Guard(ctx context.Context, date time.Time, override bool) (Period, error) {
	period, err := s.repo.Covering(ctx, date)
	if err != nil {
		return Period{}, err
	}
	if err := EnsurePostable(period, override); err != nil {
		return Period{}, err
	}
	return period, nil
}

// Create opens a new period after checking for window overlaps.
func (s *Service) Create(ctx context.Context, in CreatePeriodInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	overlap, err := s.repo.HasOverlap(ctx, in.StartDate, in.EndDate)
	if err != nil {
		return Period{}, err
	}
	if overlap {
		return Period{}, ErrOverlap
	}
	period, err := s.repo.Insert(ctx, in)
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, in.ActorID, "period.create", period.ID, map[string]any{"code": period.Code})
	return period, nil
}

// Get loads one period.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// List returns all periods.
func (s *Service) List(ctx context.Context) ([]Period, error) {
	return s.repo.List(ctx)
}

// Lock moves an open period to LOCKED, a soft freeze that an explicit
// override can still post through.
func (s *Service) Lock(ctx context.Context, id, actorID int64) (Period, error) {
	return s.transition(ctx, id, actorID, StatusLocked, "period.lock", nil)
}

// Unlock moves a locked period back to OPEN.
func (s *Service) Unlock(ctx context.Context, id, actorID int64) (Period, error) {
	return s.transition(ctx, id, actorID, StatusOpen, "period.unlock", nil)
}

// Close moves a locked period to CLOSED. Blocking checklist items refuse the
// close.
func (s *Service) Close(ctx context.Context, id, actorID int64) (Period, error) {
	period, err := s.repo.Get(ctx, id)
	if err != nil {
		return Period{}, err
	}
	items, err := s.repo.ClosingChecklist(ctx, period)
	if err != nil {
		return Period{}, err
	}
	for _, item := range items {
		if item.Blocking && item.Count > 0 {
			return Period{}, fmt.Errorf("%w: %s (%d open)", ErrInvalidTransition, item.Label, item.Count)
		}
	}
	return s.transition(ctx, id, actorID, StatusClosed, "period.close", nil)
}

// Reopen moves a closed period back to OPEN. The reason lands in the audit
// trail; closed books do not quietly reopen.
func (s *Service) Reopen(ctx context.Context, id, actorID int64, reason string) (Period, error) {
	if reason == "" {
		return Period{}, fmt.Errorf("%w: reopen requires a reason", ErrInvalidTransition)
	}
	return s.transition(ctx, id, actorID, StatusOpen, "period.reopen", map[string]any{"reason": reason})
}

// ClosingChecklist reports what stands between a period and its close.
func (s *Service) ClosingChecklist(ctx context.Context, id int64) ([]ChecklistItem, error) {
	period, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repo.ClosingChecklist(ctx, period)
}

func (s *Service) transition(ctx context.Context, id, actorID int64, target Status, action string, meta map[string]any) (Period, error) {
	holder := fmt.Sprintf("actor-%d", actorID)
	if s.lease != nil {
		if err := s.lease.Acquire(ctx, shared.PeriodLeaseKey(), holder); err != nil {
			if errors.Is(err, shared.ErrLeaseHeld) {
				return Period{}, ErrLeaseHeld
			}
			return Period{}, err
		}
		defer func() { _ = s.lease.Release(ctx, shared.PeriodLeaseKey(), holder) }()
	}

	period, err := s.repo.Get(ctx, id)
	if err != nil {
		return Period{}, err
	}
	if err := ValidateTransition(period.Status, target); err != nil {
		return Period{}, err
	}
	updated, err := s.repo.UpdateStatus(ctx, StatusUpdate{
		ID:      id,
		From:    period.Status,
		To:      target,
		ActorID: actorID,
		At:      s.now(),
	})
	if err != nil {
		return Period{}, err
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["from"] = period.Status
	meta["to"] = target
	s.recordAudit(ctx, actorID, action, id, meta)
	return updated, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, periodID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fiscal_period",
		EntityID: strconv.FormatInt(periodID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
