package applications

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-erp/atlas-ledger/internal/documents"
	"github.com/atlas-erp/atlas-ledger/internal/fiscal"
	"github.com/atlas-erp/atlas-ledger/internal/ledger"
	"github.com/atlas-erp/atlas-ledger/internal/money"
	"github.com/atlas-erp/atlas-ledger/internal/platform/httpx"
	"github.com/atlas-erp/atlas-ledger/internal/shared"
)

// Handler exposes the application ledger over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers the application resource plus the down-payment
// shaped aliases. Applying is a POST naming the source and target;
// unapplying is a DELETE that reverses, never erases.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/applications", func(r chi.Router) {
		r.Post("/", h.apply)
		r.Get("/", h.list)
		r.Get("/{applicationID}", h.show)
		r.Delete("/{applicationID}", h.unapply)
	})
	r.Post("/down-payments/{id}/apply-to-invoice/{invoiceID}", h.applyToInvoice)
	r.Delete("/down-payments/{id}/applications/{applicationID}", h.unapplyFromSource)
}

type applyRequest struct {
	SourceID int64  `json:"source_id" validate:"required,gt=0"`
	TargetID int64  `json:"target_id" validate:"required,gt=0"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Date     string `json:"date"`
}

type applyToInvoiceRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Date   string `json:"date"`
}

type unapplyRequest struct {
	Reason   string `json:"reason"`
	Date     string `json:"date"`
	Override bool   `json:"override"`
}

type applicationResponse struct {
	ID              int64      `json:"id"`
	UUID            string     `json:"uuid"`
	SourceID        int64      `json:"source_id"`
	TargetID        int64      `json:"target_id"`
	Amount          int64      `json:"amount"`
	JournalEntryID  int64      `json:"journal_entry_id"`
	AppliedAt       time.Time  `json:"applied_at"`
	ReversedAt      *time.Time `json:"reversed_at,omitempty"`
	ReversalEntryID *int64     `json:"reversal_entry_id,omitempty"`
	ReversalReason  *string    `json:"reversal_reason,omitempty"`
}

func toApplicationResponse(app Application) applicationResponse {
	return applicationResponse{
		ID:              app.ID,
		UUID:            app.UUID.String(),
		SourceID:        app.SourceID,
		TargetID:        app.TargetID,
		Amount:          int64(app.Amount),
		JournalEntryID:  app.EntryID,
		AppliedAt:       app.AppliedAt,
		ReversedAt:      app.ReversedAt,
		ReversalEntryID: app.ReversalEntryID,
		ReversalReason:  app.ReversalReason,
	}
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidatorProblem(w, err)
		return
	}
	in := ApplyInput{
		SourceID: req.SourceID,
		TargetID: req.TargetID,
		Amount:   money.Amount(req.Amount),
		ActorID:  shared.ActorFromContext(r.Context()),
	}
	if d, err := time.Parse("2006-01-02", req.Date); err == nil {
		in.Date = d
	}
	app, err := h.service.Apply(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toApplicationResponse(app))
}

// applyToInvoice is the down-payment shaped alias: the source and target ids
// come from the path, only the amount and date come from the body.
func (h *Handler) applyToInvoice(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid down payment id")
		return
	}
	targetID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	var req applyToInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidatorProblem(w, err)
		return
	}
	in := ApplyInput{
		SourceID: sourceID,
		TargetID: targetID,
		Amount:   money.Amount(req.Amount),
		ActorID:  shared.ActorFromContext(r.Context()),
	}
	if d, err := time.Parse("2006-01-02", req.Date); err == nil {
		in.Date = d
	}
	app, err := h.service.Apply(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (h *Handler) unapply(w http.ResponseWriter, r *http.Request) {
	appID, err := strconv.ParseInt(chi.URLParam(r, "applicationID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid application id")
		return
	}
	h.doUnapply(w, r, appID)
}

// unapplyFromSource resolves the nested path and refuses an application that
// does not belong to the named down payment.
func (h *Handler) unapplyFromSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid down payment id")
		return
	}
	appID, err := strconv.ParseInt(chi.URLParam(r, "applicationID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid application id")
		return
	}
	app, err := h.service.Get(r.Context(), appID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if app.SourceID != sourceID {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "application does not belong to this down payment")
		return
	}
	h.doUnapply(w, r, appID)
}

func (h *Handler) doUnapply(w http.ResponseWriter, r *http.Request, appID int64) {
	var req unapplyRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
			return
		}
	}
	in := UnapplyInput{
		ApplicationID: appID,
		ActorID:       shared.ActorFromContext(r.Context()),
		Reason:        req.Reason,
		Override:      req.Override,
	}
	if d, err := time.Parse("2006-01-02", req.Date); err == nil {
		in.Date = d
	}
	app, err := h.service.Unapply(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	appID, err := strconv.ParseInt(chi.URLParam(r, "applicationID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid application id")
		return
	}
	app, err := h.service.Get(r.Context(), appID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	docID, err := strconv.ParseInt(r.URL.Query().Get("document_id"), 10, 64)
	if err != nil || docID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "document_id query parameter required")
		return
	}
	apps, err := h.service.ListForDocument(r.Context(), docID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	data := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		data = append(data, toApplicationResponse(app))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": data})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, documents.ErrNotFound), errors.Is(err, ledger.ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrOverApplication),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSourceNotApplicable),
		errors.Is(err, ErrTargetNotApplicable):
		httpx.Unprocessable(w, err.Error(), nil)
	case errors.Is(err, ErrUnapplicationNotAllowed), errors.Is(err, ErrAlreadyReversed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, fiscal.ErrPeriodLocked), errors.Is(err, fiscal.ErrNoPeriod):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Fiscal Period", err.Error())
	default:
		h.logger.Error("applications: request failed", "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
