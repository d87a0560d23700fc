package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atlas-erp/atlas-ledger/internal/applications"
	"github.com/atlas-erp/atlas-ledger/internal/documents"
	"github.com/atlas-erp/atlas-ledger/internal/fiscal"
	"github.com/atlas-erp/atlas-ledger/internal/ledger"
	"github.com/atlas-erp/atlas-ledger/internal/observability"
	"github.com/atlas-erp/atlas-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	LedgerHandler       *ledger.Handler
	DocumentsHandler    *documents.Handler
	ApplicationsHandler *applications.Handler
	FiscalHandler       *fiscal.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.FiscalHandler != nil {
			params.FiscalHandler.MountRoutes(r)
		}
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.DocumentsHandler != nil {
			params.DocumentsHandler.MountRoutes(r)
		}
		if params.ApplicationsHandler != nil {
			params.ApplicationsHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
