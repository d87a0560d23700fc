package documents

import (
	"time"

	"github.com/atlas-erp/atlas-ledger/internal/money"
	"github.com/atlas-erp/atlas-ledger/internal/shared"
)

// lineRequest is one line of a create or update payload.
type lineRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	Description *string `json:"description"`
	Quantity    string  `json:"quantity" validate:"required"`
	UnitPrice   string  `json:"unit_price" validate:"required"`
	DiscountPct string  `json:"discount_pct"`
	TaxPct      string  `json:"tax_pct"`
}

// createRequest is the payload for POST /{resource}.
type createRequest struct {
	CounterpartyID int64         `json:"counterparty_id" validate:"required,gt=0"`
	DocDate        string        `json:"doc_date"`
	DueDate        string        `json:"due_date"`
	Currency       string        `json:"currency" validate:"omitempty,len=3"`
	Notes          *string       `json:"notes"`
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

// updateRequest is the payload for PUT /{resource}/{id}.
type updateRequest struct {
	Version        int64         `json:"version" validate:"required,gt=0"`
	CounterpartyID int64         `json:"counterparty_id" validate:"required,gt=0"`
	DocDate        string        `json:"doc_date"`
	DueDate        string        `json:"due_date"`
	Currency       string        `json:"currency" validate:"omitempty,len=3"`
	Notes          *string       `json:"notes"`
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

// actionRequest is the payload for POST /{resource}/{id}/{action}.
// Override bypasses the locked-period guard. The gateway in front of this
// service strips it from requests that lack controller authority, the same
// trust boundary as the X-Actor-ID header.
type actionRequest struct {
	Version  int64  `json:"version"`
	Reason   string `json:"reason"`
	Date     string `json:"date"`
	Override bool   `json:"override"`
}

type lineResponse struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"product_id"`
	Description *string `json:"description,omitempty"`
	Quantity    string  `json:"quantity"`
	UnitPrice   string  `json:"unit_price"`
	DiscountPct string  `json:"discount_pct"`
	TaxPct      string  `json:"tax_pct"`
	Discount    int64   `json:"discount"`
	Net         int64   `json:"net"`
	Tax         int64   `json:"tax"`
	Total       int64   `json:"total"`
	LineOrder   int     `json:"line_order"`
}

type documentResponse struct {
	ID             int64          `json:"id"`
	UUID           string         `json:"uuid"`
	Family         Family         `json:"family"`
	Number         string         `json:"number"`
	CounterpartyID int64          `json:"counterparty_id"`
	DocDate        string         `json:"doc_date"`
	DueDate        *string        `json:"due_date,omitempty"`
	Currency       string         `json:"currency"`
	Subtotal       int64          `json:"subtotal"`
	Discount       int64          `json:"discount"`
	Tax            int64          `json:"tax"`
	GrandTotal     int64          `json:"grand_total"`
	Status         Status         `json:"status"`
	PaymentState   PaymentState   `json:"payment_state,omitempty"`
	SettledAmount  *int64         `json:"settled_amount,omitempty"`
	Version        int64          `json:"version"`
	SupersededByID *int64         `json:"superseded_by_id,omitempty"`
	RevisionOfID   *int64         `json:"revision_of_id,omitempty"`
	SourceDocID    *int64         `json:"source_doc_id,omitempty"`
	Reason         *string        `json:"reason,omitempty"`
	Notes          *string        `json:"notes,omitempty"`
	CreatedBy      int64          `json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Lines          []lineResponse `json:"lines,omitempty"`
}

type listResponse struct {
	Data []documentResponse `json:"data"`
	Meta shared.PageMeta    `json:"meta"`
}

type transitionResponse struct {
	Document       documentResponse `json:"document"`
	JournalEntryID *int64           `json:"journal_entry_id,omitempty"`
}

const dateLayout = "2006-01-02"

func toDocumentResponse(doc Document, state PaymentState, settled *money.Amount) documentResponse {
	resp := documentResponse{
		ID:             doc.ID,
		UUID:           doc.UUID.String(),
		Family:         doc.Family,
		Number:         doc.Number,
		CounterpartyID: doc.CounterpartyID,
		DocDate:        doc.DocDate.Format(dateLayout),
		Currency:       doc.Currency,
		Subtotal:       int64(doc.Subtotal),
		Discount:       int64(doc.Discount),
		Tax:            int64(doc.Tax),
		GrandTotal:     int64(doc.GrandTotal),
		Status:         doc.Status,
		PaymentState:   state,
		Version:        doc.Version,
		SupersededByID: doc.SupersededByID,
		RevisionOfID:   doc.RevisionOfID,
		SourceDocID:    doc.SourceDocID,
		Reason:         doc.Reason,
		Notes:          doc.Notes,
		CreatedBy:      doc.CreatedBy,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
	if doc.DueDate != nil {
		due := doc.DueDate.Format(dateLayout)
		resp.DueDate = &due
	}
	if settled != nil {
		v := int64(*settled)
		resp.SettledAmount = &v
	}
	for _, line := range doc.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:          line.ID,
			ProductID:   line.ProductID,
			Description: line.Description,
			Quantity:    line.Quantity.String(),
			UnitPrice:   line.UnitPrice.String(),
			DiscountPct: line.DiscountPct.String(),
			TaxPct:      line.TaxPct.String(),
			Discount:    int64(line.Discount),
			Net:         int64(line.Net),
			Tax:         int64(line.Tax),
			Total:       int64(line.Total()),
			LineOrder:   line.LineOrder,
		})
	}
	return resp
}
