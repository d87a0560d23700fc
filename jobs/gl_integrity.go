package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/atlas-erp/atlas-ledger/internal/jobs"
)

// GLIntegrityChecker sweeps the general ledger for invariant violations:
// posted entries whose lines do not balance, posted documents without a
// linked entry, and reversal pairs that do not net to zero.
type GLIntegrityChecker struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewGLIntegrityChecker constructs a GLIntegrityChecker.
func NewGLIntegrityChecker(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityChecker {
	return &GLIntegrityChecker{pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskTypeGLIntegrity tasks.
func (c *GLIntegrityChecker) Handle(ctx context.Context, t *asynq.Task) error {
	return c.Run(ctx)
}

// Run executes the sweep. Violations are logged; the job fails when the
// queries themselves fail, never when violations are found.
func (c *GLIntegrityChecker) Run(ctx context.Context) (err error) {
	defer func() {
		err = c.metrics.Track("gl_integrity").End(err)
	}()

	var unbalanced, unlinked, brokenReversals int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := c.count(gctx, `
			SELECT COUNT(*) FROM (
				SELECT l.entry_id
				FROM journal_lines l
				JOIN journal_entries e ON e.id = l.entry_id
				WHERE e.status = 'POSTED'
				GROUP BY l.entry_id
				HAVING SUM(l.debit) <> SUM(l.credit)
			) x`)
		if err != nil {
			return fmt.Errorf("gl integrity: unbalanced entries: %w", err)
		}
		unbalanced = n
		return nil
	})
	g.Go(func() error {
		n, err := c.count(gctx, `
			SELECT COUNT(*) FROM documents d
			WHERE d.status IN ('POSTED', 'COMPLETED')
			  AND d.family IN ('INVOICE', 'BILL', 'SALES_RETURN', 'PURCHASE_RETURN')
			  AND NOT EXISTS (
				SELECT 1 FROM source_links s WHERE s.module = d.family AND s.ref_id = d.doc_uuid
			  )`)
		if err != nil {
			return fmt.Errorf("gl integrity: unlinked documents: %w", err)
		}
		unlinked = n
		return nil
	})
	g.Go(func() error {
		n, err := c.count(gctx, `
			SELECT COUNT(*) FROM journal_entries o
			JOIN journal_entries r ON r.reversal_of_id = o.id
			WHERE (SELECT COALESCE(SUM(debit - credit), 0) FROM journal_lines WHERE entry_id IN (o.id, r.id)) <> 0`)
		if err != nil {
			return fmt.Errorf("gl integrity: reversal pairs: %w", err)
		}
		brokenReversals = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.metrics.AddViolations("unbalanced_entries", unbalanced)
	c.metrics.AddViolations("unlinked_documents", unlinked)
	c.metrics.AddViolations("broken_reversal_pairs", brokenReversals)

	if c.logger != nil {
		level := slog.LevelInfo
		if unbalanced+unlinked+brokenReversals > 0 {
			level = slog.LevelError
		}
		c.logger.Log(ctx, level, "GL integrity sweep finished",
			slog.Int("unbalanced_entries", unbalanced),
			slog.Int("unlinked_documents", unlinked),
			slog.Int("broken_reversal_pairs", brokenReversals),
		)
	}
	return nil
}

func (c *GLIntegrityChecker) count(ctx context.Context, query string) (int, error) {
	var n int
	err := c.pool.QueryRow(ctx, query).Scan(&n)
	return n, err
}
