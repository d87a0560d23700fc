package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-ledger/internal/money"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// EntryStatus enumerates journal lifecycle values. Manual entries start as
// DRAFT; engine-generated entries are inserted directly as POSTED.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
)

// Account models a chart of accounts node. Balances are always derived from
// posted lines, never stored.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64
	Number       int64
	PeriodID     int64
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	Status       EntryStatus
	Reversed     bool
	ReversalOfID *int64
	PostedBy     int64
	PostedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores a debit or credit amount for one account. Exactly one of
// the pair is non-zero.
type JournalLine struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     money.Amount
	Credit    money.Amount
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountID int64
	Debit     money.Amount
	Credit    money.Amount
}

// PostingInput groups fields required to create a posted journal entry.
type PostingInput struct {
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	Override     bool
	Lines        []LineInput
}

// DraftInput creates a manual journal entry awaiting posting.
type DraftInput struct {
	Date      time.Time
	Memo      string
	CreatedBy int64
	Lines     []LineInput
}

// ReverseInput wraps parameters for whole-entry reversal.
type ReverseInput struct {
	EntryID  int64
	ActorID  int64
	Reason   string
	Date     time.Time
	Override bool
}

// TrialBalanceRow aggregates posted activity for one account.
type TrialBalanceRow struct {
	AccountID   int64
	AccountCode string
	AccountName string
	AccountType AccountType
	Debit       money.Amount
	Credit      money.Amount
}

var (
	// ErrUnbalanced indicates sum(debit) != sum(credit).
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrBothSides indicates a line carrying debit and credit.
	ErrBothSides = errors.New("ledger: line cannot carry both debit and credit")
	// ErrEmptyLine indicates a line with neither debit nor credit.
	ErrEmptyLine = errors.New("ledger: line requires a debit or credit amount")
	// ErrNegativeAmount indicates a negative line amount.
	ErrNegativeAmount = errors.New("ledger: line amount cannot be negative")
	// ErrAlreadyPosted indicates the source document already has an entry.
	ErrAlreadyPosted = errors.New("ledger: source already posted")
	// ErrAlreadyReversed indicates the entry was reversed before.
	ErrAlreadyReversed = errors.New("ledger: entry already reversed")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrInvalidStatus indicates the action does not apply to the entry status.
	ErrInvalidStatus = errors.New("ledger: invalid entry status for action")
	// ErrAccountNotFound indicates a missing chart of accounts node.
	ErrAccountNotFound = errors.New("ledger: account not found")
)
