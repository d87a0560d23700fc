// Package applications links settlement money between documents: a confirmed
// down payment applied against a posted invoice. Every application posts to
// the ledger in the same transaction, and unapplication reverses that entry
// rather than deleting the row.
package applications

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-ledger/internal/money"
)

// Application is one settlement link between a source and a target document.
// Reversed applications stay on record with ReversedAt set.
type Application struct {
	ID              int64
	UUID            uuid.UUID
	SourceID        int64
	TargetID        int64
	Amount          money.Amount
	EntryID         int64
	AppliedAt       time.Time
	CreatedBy       int64
	ReversedAt      *time.Time
	ReversedBy      *int64
	ReversalEntryID *int64
	ReversalReason  *string
}

// Active reports whether the application still settles money.
func (a Application) Active() bool {
	return a.ReversedAt == nil
}

// ApplyInput carries an application request.
type ApplyInput struct {
	SourceID int64
	TargetID int64
	Amount   money.Amount
	ActorID  int64
	Date     time.Time
}

// UnapplyInput carries an unapplication request.
type UnapplyInput struct {
	ApplicationID int64
	ActorID       int64
	Reason        string
	Date          time.Time
	Override      bool
}

var (
	// ErrNotFound indicates the application was not found.
	ErrNotFound = errors.New("applications: application not found")
	// ErrOverApplication indicates the amount exceeds what the source has
	// left or the target still owes.
	ErrOverApplication = errors.New("applications: amount exceeds available balance")
	// ErrUnapplicationNotAllowed indicates the application settled a now
	// fully paid target and its posting period has closed.
	ErrUnapplicationNotAllowed = errors.New("applications: unapplication not allowed")
	// ErrAlreadyReversed indicates the application was already unapplied.
	ErrAlreadyReversed = errors.New("applications: application already reversed")
	// ErrSourceNotApplicable indicates the source cannot give money.
	ErrSourceNotApplicable = errors.New("applications: source document cannot be applied")
	// ErrTargetNotApplicable indicates the target cannot receive money.
	ErrTargetNotApplicable = errors.New("applications: target document cannot receive applications")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("applications: amount must be greater than zero")
)
