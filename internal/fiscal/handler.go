package fiscal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-erp/atlas-ledger/internal/platform/httpx"
	"github.com/atlas-erp/atlas-ledger/internal/shared"
)

// Handler exposes fiscal period administration over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers fiscal period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/fiscal-periods", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
		r.Get("/{id}/closing-checklist", h.checklist)
		r.Post("/{id}/lock", h.action(h.service.Lock))
		r.Post("/{id}/unlock", h.action(h.service.Unlock))
		r.Post("/{id}/close", h.action(h.service.Close))
		r.Post("/{id}/reopen", h.reopen)
	})
}

type createPeriodRequest struct {
	Code      string `json:"code" validate:"required"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

type reopenRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type periodResponse struct {
	ID         int64      `json:"id"`
	Code       string     `json:"code"`
	StartDate  string     `json:"start_date"`
	EndDate    string     `json:"end_date"`
	Status     Status     `json:"status"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ReopenedAt *time.Time `json:"reopened_at,omitempty"`
}

func toPeriodResponse(p Period) periodResponse {
	return periodResponse{
		ID:         p.ID,
		Code:       p.Code,
		StartDate:  p.StartDate.Format("2006-01-02"),
		EndDate:    p.EndDate.Format("2006-01-02"),
		Status:     p.Status,
		LockedAt:   p.LockedAt,
		ClosedAt:   p.ClosedAt,
		ReopenedAt: p.ReopenedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	periods, err := h.service.List(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	data := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		data = append(data, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": data})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidatorProblem(w, err)
		return
	}
	start, err1 := time.Parse("2006-01-02", req.StartDate)
	end, err2 := time.Parse("2006-01-02", req.EndDate)
	if err1 != nil || err2 != nil {
		httpx.Unprocessable(w, "invalid date", map[string][]string{"start_date": {"date"}, "end_date": {"date"}})
		return
	}
	period, err := h.service.Create(r.Context(), CreatePeriodInput{
		Code:      req.Code,
		StartDate: start,
		EndDate:   end,
		ActorID:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPeriodResponse(period))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) checklist(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	items, err := h.service.ClosingChecklist(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) action(fn func(ctx context.Context, id, actorID int64) (Period, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
			return
		}
		period, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
	}
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	var req reopenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidatorProblem(w, err)
		return
	}
	period, err := h.service.Reopen(r.Context(), id, shared.ActorFromContext(r.Context()), req.Reason)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPeriodNotFound), errors.Is(err, ErrNoPeriod):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrOverlap):
		httpx.Unprocessable(w, err.Error(), nil)
	case errors.Is(err, ErrLeaseHeld):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("fiscal: request failed", "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
