package applications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-ledger/internal/documents"
	"github.com/atlas-erp/atlas-ledger/internal/ledger"
	"github.com/atlas-erp/atlas-ledger/internal/money"
	"github.com/atlas-erp/atlas-ledger/internal/platform/db"
)

// DocRef is the slice of a document row the application ledger needs.
type DocRef struct {
	ID         int64
	UUID       uuid.UUID
	Family     documents.Family
	Number     string
	Status     documents.Status
	GrandTotal money.Amount
}

// Repository persists applications.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional application operations over the same
// transaction as the ledger posting.
type TxRepository interface {
	DocForUpdate(ctx context.Context, id int64) (DocRef, error)
	ApplicationForUpdate(ctx context.Context, id int64) (Application, error)
	ActiveAppliedFrom(ctx context.Context, sourceID int64) (money.Amount, error)
	ActiveSettledOn(ctx context.Context, targetID int64) (money.Amount, error)
	Insert(ctx context.Context, app Application) (Application, error)
	MarkReversed(ctx context.Context, id, actorID, reversalEntryID int64, reason string, at time.Time) error
	SetDocStatus(ctx context.Context, docID int64, status documents.Status) error
	Ledger() ledger.TxRepository
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

func (r *txRepository) DocForUpdate(ctx context.Context, id int64) (DocRef, error) {
	var ref DocRef
	var grand int64
	err := r.tx.QueryRow(ctx, `SELECT id, doc_uuid, family, number, status, grand_total FROM documents WHERE id=$1 FOR UPDATE`, id).
		Scan(&ref.ID, &ref.UUID, &ref.Family, &ref.Number, &ref.Status, &grand)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DocRef{}, documents.ErrNotFound
		}
		return DocRef{}, err
	}
	ref.GrandTotal = money.Amount(grand)
	return ref, nil
}

const appColumns = `id, app_uuid, source_id, target_id, amount, entry_id, applied_at, created_by, reversed_at, reversed_by, reversal_entry_id, reversal_reason`

func scanApplication(row pgx.Row) (Application, error) {
	var app Application
	var amount int64
	err := row.Scan(&app.ID, &app.UUID, &app.SourceID, &app.TargetID, &amount, &app.EntryID, &app.AppliedAt,
		&app.CreatedBy, &app.ReversedAt, &app.ReversedBy, &app.ReversalEntryID, &app.ReversalReason)
	if err != nil {
		return Application{}, err
	}
	app.Amount = money.Amount(amount)
	return app, nil
}

func (r *txRepository) ApplicationForUpdate(ctx context.Context, id int64) (Application, error) {
	app, err := scanApplication(r.tx.QueryRow(ctx, `SELECT `+appColumns+` FROM applications WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	return app, nil
}

func (r *txRepository) ActiveAppliedFrom(ctx context.Context, sourceID int64) (money.Amount, error) {
	var applied int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount),0) FROM applications WHERE source_id=$1 AND reversed_at IS NULL`, sourceID).Scan(&applied)
	return money.Amount(applied), err
}

func (r *txRepository) ActiveSettledOn(ctx context.Context, targetID int64) (money.Amount, error) {
	var settled int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount),0) FROM applications WHERE target_id=$1 AND reversed_at IS NULL`, targetID).Scan(&settled)
	return money.Amount(settled), err
}

func (r *txRepository) Insert(ctx context.Context, app Application) (Application, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO applications (app_uuid, source_id, target_id, amount, entry_id, applied_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+appColumns,
		app.UUID, app.SourceID, app.TargetID, int64(app.Amount), app.EntryID, app.AppliedAt, app.CreatedBy)
	return scanApplication(row)
}

func (r *txRepository) MarkReversed(ctx context.Context, id, actorID, reversalEntryID int64, reason string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE applications SET reversed_at=$2, reversed_by=$3, reversal_entry_id=$4, reversal_reason=NULLIF($5, '') WHERE id=$1 AND reversed_at IS NULL`,
		id, at, actorID, reversalEntryID, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

func (r *txRepository) SetDocStatus(ctx context.Context, docID int64, status documents.Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE documents SET status=$2, version=version+1, updated_at=NOW() WHERE id=$1`, docID, status)
	return err
}

// ListForDocument returns applications touching the document as source or
// target, newest first.
func (r *Repository) ListForDocument(ctx context.Context, docID int64) ([]Application, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appColumns+` FROM applications WHERE source_id=$1 OR target_id=$1 ORDER BY id DESC`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var apps []Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// Get loads one application.
func (r *Repository) Get(ctx context.Context, id int64) (Application, error) {
	app, err := scanApplication(r.pool.QueryRow(ctx, `SELECT `+appColumns+` FROM applications WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	return app, nil
}
