package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/atlas-erp/atlas-ledger/internal/app"
	"github.com/atlas-erp/atlas-ledger/internal/applications"
	"github.com/atlas-erp/atlas-ledger/internal/documents"
	"github.com/atlas-erp/atlas-ledger/internal/events"
	"github.com/atlas-erp/atlas-ledger/internal/fiscal"
	"github.com/atlas-erp/atlas-ledger/internal/ledger"
	"github.com/atlas-erp/atlas-ledger/internal/observability"
	"github.com/atlas-erp/atlas-ledger/internal/platform/cache"
	"github.com/atlas-erp/atlas-ledger/internal/platform/db"
	"github.com/atlas-erp/atlas-ledger/internal/shared"
	"github.com/atlas-erp/atlas-ledger/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	validate := validator.New()
	auditLogger := shared.NewAuditLogger(pool)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	ledgerRepo := ledger.NewRepository(pool)
	accountMap, err := resolveAccounts(ctx, ledgerRepo, cfg)
	if err != nil {
		logger.Error("resolve account map", slog.Any("error", err))
		os.Exit(1)
	}

	publisher := events.NewPublisher(jobClient, logger)

	ledgerService := ledger.NewService(ledgerRepo, auditLogger, publisher)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, validate)

	documentsRepo := documents.NewRepository(pool)
	documentsService := documents.NewService(documentsRepo, auditLogger, publisher, accountMap)
	documentsHandler := documents.NewHandler(logger, documentsService, validate, cfg.DefaultCurrency)

	applicationsRepo := applications.NewRepository(pool)
	applicationsService := applications.NewService(applicationsRepo, auditLogger, publisher, accountMap.CustomerAdvances, accountMap.Receivable)
	applicationsHandler := applications.NewHandler(logger, applicationsService, validate)

	lease := shared.NewLease(redisClient, cfg.PeriodLeaseTTL)
	fiscalRepo := fiscal.NewRepository(pool)
	fiscalService := fiscal.NewService(fiscalRepo, auditLogger, lease)
	fiscalHandler := fiscal.NewHandler(logger, fiscalService, validate)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()
	ledgerService.WithMetrics(metrics)
	documentsService.WithMetrics(metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		LedgerHandler:       ledgerHandler,
		DocumentsHandler:    documentsHandler,
		ApplicationsHandler: applicationsHandler,
		FiscalHandler:       fiscalHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// resolveAccounts maps configured account codes to chart-of-account ids.
func resolveAccounts(ctx context.Context, repo *ledger.Repository, cfg *app.Config) (documents.AccountMap, error) {
	var m documents.AccountMap
	err := repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		for _, binding := range []struct {
			code string
			dest *int64
		}{
			{cfg.AccountReceivable, &m.Receivable},
			{cfg.AccountPayable, &m.Payable},
			{cfg.AccountRevenue, &m.Revenue},
			{cfg.AccountExpense, &m.Expense},
			{cfg.AccountTaxPayable, &m.TaxPayable},
			{cfg.AccountTaxReceivable, &m.TaxReceivable},
			{cfg.AccountCash, &m.Cash},
			{cfg.AccountCustomerAdvances, &m.CustomerAdvances},
			{cfg.AccountSupplierAdvances, &m.SupplierAdvances},
			{cfg.AccountSalesReturns, &m.SalesReturns},
		} {
			account, err := tx.AccountByCode(ctx, binding.code)
			if err != nil {
				return err
			}
			*binding.dest = account.ID
		}
		return nil
	})
	if err != nil {
		return documents.AccountMap{}, err
	}
	return m, m.Validate()
}
