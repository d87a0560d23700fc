// Package fiscal owns fiscal periods and gates every posting by date.
package fiscal

import (
	"errors"
	"strings"
	"time"
)

// Status enumerates valid period states.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusLocked Status = "LOCKED"
	StatusClosed Status = "CLOSED"
)

// Period represents a fiscal period window. Periods are non-overlapping and
// exhaustive over the operating calendar.
type Period struct {
	ID         int64
	Code       string
	StartDate  time.Time
	EndDate    time.Time
	Status     Status
	LockedBy   *int64
	LockedAt   *time.Time
	ClosedBy   *int64
	ClosedAt   *time.Time
	ReopenedBy *int64
	ReopenedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Covers reports whether the date falls inside the period window.
func (p Period) Covers(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// CreatePeriodInput captures validation rules for new periods.
type CreatePeriodInput struct {
	Code      string
	StartDate time.Time
	EndDate   time.Time
	ActorID   int64
}

// Validate ensures the create input is coherent.
func (in CreatePeriodInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("fiscal: code required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return errors.New("fiscal: start and end date required")
	}
	if in.StartDate.After(in.EndDate) {
		return errors.New("fiscal: start date cannot be after end date")
	}
	return nil
}

// ChecklistItem reports one blocking fact for closing a period.
type ChecklistItem struct {
	Code     string `json:"code"`
	Label    string `json:"label"`
	Count    int    `json:"count"`
	Blocking bool   `json:"blocking"`
}

var (
	// ErrNoPeriod indicates no period covers the requested date.
	ErrNoPeriod = errors.New("fiscal: no period covers date")
	// ErrPeriodLocked indicates the covering period is locked or closed.
	ErrPeriodLocked = errors.New("fiscal: period locked")
	// ErrPeriodNotFound indicates a missing period row.
	ErrPeriodNotFound = errors.New("fiscal: period not found")
	// ErrInvalidTransition indicates a period status change not allowed.
	ErrInvalidTransition = errors.New("fiscal: period transition invalid")
	// ErrOverlap indicates the requested window conflicts with an existing period.
	ErrOverlap = errors.New("fiscal: period overlaps existing range")
	// ErrLeaseHeld indicates another period-admin action is in flight.
	ErrLeaseHeld = errors.New("fiscal: period admin action already in progress")
)

// EnsurePostable rejects postings into locked or closed periods. Override is
// reserved for reopen workflows and administrative reversals.
func EnsurePostable(p Period, override bool) error {
	if p.Status == StatusOpen {
		return nil
	}
	if override {
		return nil
	}
	return ErrPeriodLocked
}

// ValidateTransition checks period status changes according to policy:
// open -> locked -> closed, with audited unlock and reopen paths back to open.
func ValidateTransition(current, target Status) error {
	if current == target {
		return ErrInvalidTransition
	}
	switch current {
	case StatusOpen:
		if target == StatusLocked {
			return nil
		}
	case StatusLocked:
		if target == StatusClosed || target == StatusOpen {
			return nil
		}
	case StatusClosed:
		if target == StatusOpen {
			return nil
		}
	}
	return ErrInvalidTransition
}
