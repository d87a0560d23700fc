package fiscal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists fiscal periods.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const periodColumns = `id, code, start_date, end_date, status, locked_by, locked_at, closed_by, closed_at, reopened_by, reopened_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.LockedBy, &p.LockedAt,
		&p.ClosedBy, &p.ClosedAt, &p.ReopenedBy, &p.ReopenedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Get loads one period.
func (r *Repository) Get(ctx context.Context, id int64) (Period, error) {
	p, err := scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

// List returns all periods newest first.
func (r *Repository) List(ctx context.Context) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods ORDER BY start_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// Covering returns the period covering the date.
func (r *Repository) Covering(ctx context.Context, date time.Time) (Period, error) {
	p, err := scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE start_date <= $1::date AND end_date >= $1::date`, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrNoPeriod
		}
		return Period{}, err
	}
	return p, nil
}

// HasOverlap reports whether any period intersects the window.
func (r *Repository) HasOverlap(ctx context.Context, start, end time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fiscal_periods WHERE start_date <= $2::date AND end_date >= $1::date)`, start, end).Scan(&exists)
	return exists, err
}

// Insert creates a new open period.
func (r *Repository) Insert(ctx context.Context, in CreatePeriodInput) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `INSERT INTO fiscal_periods (code, start_date, end_date, status) VALUES ($1, $2, $3, 'OPEN') RETURNING `+periodColumns,
		in.Code, in.StartDate, in.EndDate))
}

// StatusUpdate carries one period status change and its actor stamps.
type StatusUpdate struct {
	ID      int64
	From    Status
	To      Status
	ActorID int64
	At      time.Time
}

// UpdateStatus transitions a period, stamping the actor column for the
// target status. The WHERE status guard makes the change race-safe against
// concurrent admin actions that slipped past the lease.
func (r *Repository) UpdateStatus(ctx context.Context, upd StatusUpdate) (Period, error) {
	var query string
	switch upd.To {
	case StatusLocked:
		query = `UPDATE fiscal_periods SET status=$3, locked_by=$4, locked_at=$5, updated_at=NOW() WHERE id=$1 AND status=$2 RETURNING ` + periodColumns
	case StatusClosed:
		query = `UPDATE fiscal_periods SET status=$3, closed_by=$4, closed_at=$5, updated_at=NOW() WHERE id=$1 AND status=$2 RETURNING ` + periodColumns
	case StatusOpen:
		query = `UPDATE fiscal_periods SET status=$3, reopened_by=$4, reopened_at=$5, updated_at=NOW() WHERE id=$1 AND status=$2 RETURNING ` + periodColumns
	default:
		return Period{}, ErrInvalidTransition
	}
	p, err := scanPeriod(r.pool.QueryRow(ctx, query, upd.ID, upd.From, upd.To, upd.ActorID, upd.At))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrInvalidTransition
		}
		return Period{}, err
	}
	return p, nil
}

// ClosingChecklist counts open items inside the period window that matter
// before closing.
func (r *Repository) ClosingChecklist(ctx context.Context, p Period) ([]ChecklistItem, error) {
	items := []ChecklistItem{
		{Code: "draft_journal_entries", Label: "Draft journal entries dated in the period", Blocking: true},
		{Code: "draft_invoices", Label: "Draft invoices dated in the period", Blocking: false},
		{Code: "draft_bills", Label: "Draft bills dated in the period", Blocking: false},
		{Code: "unapplied_down_payments", Label: "Confirmed down payments with unapplied balance", Blocking: false},
	}
	queries := []string{
		`SELECT COUNT(*) FROM journal_entries WHERE status='DRAFT' AND entry_date BETWEEN $1 AND $2`,
		`SELECT COUNT(*) FROM documents WHERE family='INVOICE' AND status='DRAFT' AND doc_date BETWEEN $1 AND $2`,
		`SELECT COUNT(*) FROM documents WHERE family='BILL' AND status='DRAFT' AND doc_date BETWEEN $1 AND $2`,
		`SELECT COUNT(*) FROM documents d WHERE d.family='DOWN_PAYMENT' AND d.status='CONFIRMED' AND d.doc_date BETWEEN $1 AND $2
		 AND d.grand_total > (SELECT COALESCE(SUM(a.amount),0) FROM applications a WHERE a.source_id = d.id AND a.reversed_at IS NULL)`,
	}
	for i, q := range queries {
		if err := r.pool.QueryRow(ctx, q, p.StartDate, p.EndDate).Scan(&items[i].Count); err != nil {
			return nil, err
		}
	}
	return items, nil
}
