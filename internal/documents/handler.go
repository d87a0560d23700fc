package documents

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-erp/atlas-ledger/internal/fiscal"
	"github.com/atlas-erp/atlas-ledger/internal/ledger"
	"github.com/atlas-erp/atlas-ledger/internal/platform/httpx"
	"github.com/atlas-erp/atlas-ledger/internal/shared"
)

// Handler exposes the document lifecycle over HTTP. Every family gets the
// same resource shape; the transition table decides which actions exist.
type Handler struct {
	logger          *slog.Logger
	service         *Service
	validate        *validator.Validate
	defaultCurrency string
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, defaultCurrency string) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, defaultCurrency: defaultCurrency}
}

var resourceFamilies = map[string]Family{
	"quotations":       FamilyQuotation,
	"invoices":         FamilyInvoice,
	"bills":            FamilyBill,
	"delivery-orders":  FamilyDeliveryOrder,
	"sales-returns":    FamilySalesReturn,
	"purchase-returns": FamilyPurchaseReturn,
	"down-payments":    FamilyDownPayment,
	"work-orders":      FamilyWorkOrder,
}

// MountRoutes registers one resource per document family.
func (h *Handler) MountRoutes(r chi.Router) {
	for resource, family := range resourceFamilies {
		family := family
		r.Route("/"+resource, func(r chi.Router) {
			r.Get("/", h.list(family))
			r.Post("/", h.create(family))
			r.Get("/{id}", h.show)
			r.Put("/{id}", h.update)
			r.Delete("/{id}", h.remove)
			r.Post("/{id}/duplicate", h.duplicate)
			r.Post("/{id}/revise", h.revise)
			r.Post("/{id}/convert-to-invoice", h.convert)
			r.Post("/{id}/{action}", h.transition)
		})
	}
}

func (h *Handler) list(family Family) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := ListRequest{Family: family}
		req.Page, _ = strconv.Atoi(q.Get("page"))
		req.PerPage, _ = strconv.Atoi(q.Get("per_page"))
		if s := q.Get("status"); s != "" {
			status := Status(s)
			req.Status = &status
		}
		if c := q.Get("counterparty_id"); c != "" {
			id, err := strconv.ParseInt(c, 10, 64)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid counterparty_id")
				return
			}
			req.CounterpartyID = &id
		}
		if from, ok := parseDateParam(q.Get("date_from")); ok {
			req.DateFrom = &from
		}
		if to, ok := parseDateParam(q.Get("date_to")); ok {
			req.DateTo = &to
		}

		docs, total, err := h.service.List(r.Context(), req)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		data := make([]documentResponse, 0, len(docs))
		for _, doc := range docs {
			data = append(data, toDocumentResponse(doc, "", nil))
		}
		httpx.JSON(w, http.StatusOK, listResponse{
			Data: data,
			Meta: shared.NewPageMeta(req.Page, req.PerPage, total),
		})
	}
}

func (h *Handler) create(family Family) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.ValidatorProblem(w, err)
			return
		}
		in, err := h.toCreateInput(family, req, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		doc, err := h.service.Create(r.Context(), in)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc, "", nil))
	}
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	state, settled, err := h.service.PaymentState(r.Context(), doc)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	resp := toDocumentResponse(doc, state, nil)
	if state != "" {
		resp.SettledAmount = new(int64)
		*resp.SettledAmount = int64(settled)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidatorProblem(w, err)
		return
	}
	in := UpdateInput{
		DocumentID:     id,
		Version:        req.Version,
		CounterpartyID: req.CounterpartyID,
		Currency:       req.Currency,
		Notes:          req.Notes,
		ActorID:        shared.ActorFromContext(r.Context()),
		Lines:          toLineInputs(req.Lines),
	}
	if d, ok := parseDateParam(req.DocDate); ok {
		in.DocDate = d
	}
	if d, ok := parseDateParam(req.DueDate); ok {
		in.DueDate = &d
	}
	doc, err := h.service.Update(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc, "", nil))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) duplicate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	doc, err := h.service.Duplicate(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc, "", nil))
}

func (h *Handler) revise(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	doc, err := h.service.Revise(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc, "", nil))
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	doc, err := h.service.ConvertToInvoice(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc, "", nil))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	var req actionRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
			return
		}
	}
	in := TransitionInput{
		DocumentID: id,
		Action:     Action(chi.URLParam(r, "action")),
		ActorID:    shared.ActorFromContext(r.Context()),
		Version:    req.Version,
		Reason:     req.Reason,
		Override:   req.Override,
	}
	if d, ok := parseDateParam(req.Date); ok {
		in.Date = d
	}
	doc, entry, err := h.service.Transition(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	resp := transitionResponse{Document: toDocumentResponse(doc, "", nil)}
	if entry != nil {
		resp.JournalEntryID = &entry.ID
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) toCreateInput(family Family, req createRequest, actorID int64) (CreateInput, error) {
	in := CreateInput{
		Family:         family,
		CounterpartyID: req.CounterpartyID,
		Currency:       req.Currency,
		Notes:          req.Notes,
		ActorID:        actorID,
		Lines:          toLineInputs(req.Lines),
	}
	if in.Currency == "" {
		in.Currency = h.defaultCurrency
	}
	if d, ok := parseDateParam(req.DocDate); ok {
		in.DocDate = d
	}
	if d, ok := parseDateParam(req.DueDate); ok {
		in.DueDate = &d
	}
	return in, nil
}

func toLineInputs(reqs []lineRequest) []LineInput {
	lines := make([]LineInput, 0, len(reqs))
	for _, lr := range reqs {
		lines = append(lines, LineInput{
			ProductID:   lr.ProductID,
			Description: lr.Description,
			Quantity:    lr.Quantity,
			UnitPrice:   lr.UnitPrice,
			DiscountPct: lr.DiscountPct,
			TaxPct:      lr.TaxPct,
		})
	}
	return lines
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func parseDateParam(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConcurrencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledger.ErrAlreadyPosted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrNotEditable),
		errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, ledger.ErrInvalidStatus):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Illegal Transition", err.Error())
	case errors.Is(err, ErrMissingField),
		errors.Is(err, ErrEmptyLines),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrUnknownFamily),
		errors.Is(err, ledger.ErrUnbalanced):
		httpx.Unprocessable(w, err.Error(), nil)
	case errors.Is(err, fiscal.ErrPeriodLocked), errors.Is(err, fiscal.ErrNoPeriod):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Fiscal Period", err.Error())
	default:
		h.logger.Error("documents: request failed", "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
