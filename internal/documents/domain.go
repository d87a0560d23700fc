// Package documents implements the commercial document lifecycle: one
// transition table per document family, with ledger postings fired at
// posting-equivalent transitions inside the same transaction.
package documents

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-ledger/internal/money"
)

// Family enumerates the document families governed by the state machine.
type Family string

const (
	FamilyQuotation      Family = "QUOTATION"
	FamilyInvoice        Family = "INVOICE"
	FamilyBill           Family = "BILL"
	FamilyDeliveryOrder  Family = "DELIVERY_ORDER"
	FamilySalesReturn    Family = "SALES_RETURN"
	FamilyPurchaseReturn Family = "PURCHASE_RETURN"
	FamilyDownPayment    Family = "DOWN_PAYMENT"
	FamilyWorkOrder      Family = "WORK_ORDER"
)

// Status enumerates workflow states across all families. Each family uses
// the subset its transition table names.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSubmitted  Status = "SUBMITTED"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusConverted  Status = "CONVERTED"
	StatusSuperseded Status = "SUPERSEDED"
	StatusPosted     Status = "POSTED"
	StatusVoid       Status = "VOID"
	StatusConfirmed  Status = "CONFIRMED"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusPending    Status = "PENDING"
	StatusCompleted  Status = "COMPLETED"
	StatusApplied    Status = "APPLIED"
	StatusRefunded   Status = "REFUNDED"
	StatusReleased   Status = "RELEASED"
	StatusInProgress Status = "IN_PROGRESS"
)

// Action enumerates workflow actions requestable against a document.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionPost     Action = "post"
	ActionVoid     Action = "void"
	ActionConfirm  Action = "confirm"
	ActionShip     Action = "ship"
	ActionDeliver  Action = "deliver"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionConvert  Action = "convert-to-invoice"
	ActionRevise   Action = "revise"
	ActionRefund   Action = "refund"
	ActionRelease  Action = "release"
	ActionStart    Action = "start"
)

// PaymentState is the derived settlement sub-state of a posted invoice or
// bill. It is computed from applications, never stored as workflow state.
type PaymentState string

const (
	PaymentStateUnpaid  PaymentState = "UNPAID"
	PaymentStatePartial PaymentState = "PARTIAL"
	PaymentStatePaid    PaymentState = "PAID"
	PaymentStateOverdue PaymentState = "OVERDUE"
)

// Document is the polymorphic commercial document. Totals are always
// recomputed from lines, never independently mutated.
type Document struct {
	ID             int64
	UUID           uuid.UUID
	Family         Family
	Number         string
	CounterpartyID int64
	DocDate        time.Time
	DueDate        *time.Time
	Currency       string
	Subtotal       money.Amount
	Discount       money.Amount
	Tax            money.Amount
	GrandTotal     money.Amount
	Status         Status
	Version        int64
	SupersededByID *int64
	RevisionOfID   *int64
	SourceDocID    *int64
	Reason         *string
	Notes          *string
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []Line
}

// Line is one ordered document line. Net and Tax are the banker-rounded
// minor-unit results of the decimal quantity/price arithmetic.
type Line struct {
	ID          int64
	DocumentID  int64
	ProductID   int64
	Description *string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	TaxPct      decimal.Decimal
	Discount    money.Amount
	Net         money.Amount
	Tax         money.Amount
	LineOrder   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Total returns the line total including tax.
func (l Line) Total() money.Amount {
	return l.Net + l.Tax
}

// TransitionInput carries a workflow action request.
type TransitionInput struct {
	DocumentID int64
	Action     Action
	ActorID    int64
	Version    int64
	Reason     string
	Date       time.Time
	Override   bool
}

var (
	// ErrNotFound indicates the requested document was not found.
	ErrNotFound = errors.New("documents: document not found")
	// ErrIllegalTransition indicates the action is not a legal edge from the
	// document's current state.
	ErrIllegalTransition = errors.New("documents: illegal transition")
	// ErrMissingField indicates a required action payload field is absent.
	ErrMissingField = errors.New("documents: missing required field")
	// ErrConcurrencyConflict indicates a stale document version.
	ErrConcurrencyConflict = errors.New("documents: version conflict")
	// ErrNotEditable indicates mutation of a non-draft document.
	ErrNotEditable = errors.New("documents: only draft documents can be edited")
	// ErrEmptyLines indicates a document without lines.
	ErrEmptyLines = errors.New("documents: at least one line is required")
	// ErrInvalidQuantity indicates a non-positive line quantity.
	ErrInvalidQuantity = errors.New("documents: quantity must be greater than zero")
	// ErrUnknownFamily indicates a family without a transition table.
	ErrUnknownFamily = errors.New("documents: unknown document family")
)

// DerivePaymentState computes the settlement sub-state for a posted invoice
// or bill from its settled amount and due date.
func DerivePaymentState(doc Document, settled money.Amount, now time.Time) PaymentState {
	if doc.Status != StatusPosted {
		return PaymentStateUnpaid
	}
	if settled >= doc.GrandTotal && doc.GrandTotal > 0 {
		return PaymentStatePaid
	}
	overdue := doc.DueDate != nil && now.After(*doc.DueDate)
	if overdue {
		return PaymentStateOverdue
	}
	if settled > 0 {
		return PaymentStatePartial
	}
	return PaymentStateUnpaid
}
