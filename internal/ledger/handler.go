package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-erp/atlas-ledger/internal/fiscal"
	"github.com/atlas-erp/atlas-ledger/internal/money"
	"github.com/atlas-erp/atlas-ledger/internal/platform/httpx"
	"github.com/atlas-erp/atlas-ledger/internal/shared"
)

// Handler exposes journal entries, accounts and the trial balance over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/journal-entries", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.createDraft)
		r.Get("/{id}", h.show)
		r.Post("/{id}/post", h.postDraft)
		r.Post("/{id}/reverse", h.reverse)
	})
	r.Get("/accounts", h.accounts)
	r.Get("/trial-balance", h.trialBalance)
}

type entryLineRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
	Debit     int64 `json:"debit" validate:"gte=0"`
	Credit    int64 `json:"credit" validate:"gte=0"`
}

type draftRequest struct {
	Date  string             `json:"date" validate:"required"`
	Memo  string             `json:"memo"`
	Lines []entryLineRequest `json:"lines" validate:"required,min=2,dive"`
}

type reverseRequest struct {
	Reason   string `json:"reason"`
	Date     string `json:"date"`
	Override bool   `json:"override"`
}

type lineResponse struct {
	ID        int64 `json:"id"`
	AccountID int64 `json:"account_id"`
	Debit     int64 `json:"debit"`
	Credit    int64 `json:"credit"`
}

type entryResponse struct {
	ID           int64          `json:"id"`
	Number       int64          `json:"number"`
	Date         string         `json:"date"`
	PeriodID     int64          `json:"period_id"`
	SourceModule string         `json:"source_module"`
	SourceID     string         `json:"source_id"`
	Memo         string         `json:"memo,omitempty"`
	Status       EntryStatus    `json:"status"`
	Reversed     bool           `json:"is_reversed"`
	ReversalOfID *int64         `json:"reversal_of_id,omitempty"`
	Lines        []lineResponse `json:"lines,omitempty"`
}

func toEntryResponse(e JournalEntry) entryResponse {
	resp := entryResponse{
		ID:           e.ID,
		Number:       e.Number,
		Date:         e.Date.Format("2006-01-02"),
		PeriodID:     e.PeriodID,
		SourceModule: e.SourceModule,
		SourceID:     e.SourceID.String(),
		Memo:         e.Memo,
		Status:       e.Status,
		Reversed:     e.Reversed,
		ReversalOfID: e.ReversalOfID,
	}
	for _, line := range e.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:        line.ID,
			AccountID: line.AccountID,
			Debit:     int64(line.Debit),
			Credit:    int64(line.Credit),
		})
	}
	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	entries, total, err := h.service.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	data := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		data = append(data, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": shared.NewPageMeta(page, perPage, total),
	})
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidatorProblem(w, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Unprocessable(w, "invalid date", map[string][]string{"date": {"date"}})
		return
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, lr := range req.Lines {
		lines = append(lines, LineInput{
			AccountID: lr.AccountID,
			Debit:     money.Amount(lr.Debit),
			Credit:    money.Amount(lr.Credit),
		})
	}
	entry, err := h.service.CreateDraft(r.Context(), DraftInput{
		Date:      date,
		Memo:      req.Memo,
		CreatedBy: shared.ActorFromContext(r.Context()),
		Lines:     lines,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) postDraft(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	entry, err := h.service.PostDraft(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	var req reverseRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
			return
		}
	}
	in := ReverseInput{
		EntryID:  id,
		ActorID:  shared.ActorFromContext(r.Context()),
		Reason:   req.Reason,
		Override: req.Override,
	}
	if d, err := time.Parse("2006-01-02", req.Date); err == nil {
		in.Date = d
	}
	entry, err := h.service.Reverse(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) accounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": accounts})
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf := time.Time{}
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			httpx.Unprocessable(w, "invalid as_of date", map[string][]string{"as_of": {"date"}})
			return
		}
		asOf = d
	}
	rows, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyPosted), errors.Is(err, ErrAlreadyReversed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnbalanced),
		errors.Is(err, ErrTooFewLines),
		errors.Is(err, ErrBothSides),
		errors.Is(err, ErrEmptyLine),
		errors.Is(err, ErrNegativeAmount),
		errors.Is(err, ErrInvalidStatus):
		httpx.Unprocessable(w, err.Error(), nil)
	case errors.Is(err, fiscal.ErrPeriodLocked), errors.Is(err, fiscal.ErrNoPeriod):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Fiscal Period", err.Error())
	default:
		h.logger.Error("ledger: request failed", "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
