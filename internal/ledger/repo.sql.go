package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-ledger/internal/fiscal"
	"github.com/atlas-erp/atlas-ledger/internal/money"
	"github.com/atlas-erp/atlas-ledger/internal/platform/db"
)

// ErrSourceConflict indicates the source link already exists.
var ErrSourceConflict = errors.New("ledger: source link conflict")

// Repository persists ledger entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional ledger operations. Other modules embed
// it in their own transaction repositories so a document status change and
// its journal entry commit or roll back together.
type TxRepository interface {
	InsertEntry(ctx context.Context, in EntryParams) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	PeriodCoveringForUpdate(ctx context.Context, date time.Time) (fiscal.Period, error)
	NextOpenPeriodAfter(ctx context.Context, date time.Time) (fiscal.Period, error)
	EntryForUpdate(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error)
	EntryBySource(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error)
	MarkReversed(ctx context.Context, entryID int64) error
	MarkPosted(ctx context.Context, entryID, periodID, actorID int64, postedAt time.Time) error
	ListAccounts(ctx context.Context) ([]Account, error)
	AccountByCode(ctx context.Context, code string) (Account, error)
}

// EntryParams carries the row values for a new journal entry.
type EntryParams struct {
	PeriodID     int64
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	Status       EntryStatus
	ReversalOfID *int64
	PostedBy     int64
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction. Callers own commit/rollback.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const entryColumns = `id, number, period_id, entry_date, source_module, source_id, memo, status, is_reversed, reversal_of_id, posted_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.PeriodID, &e.Date, &e.SourceModule, &e.SourceID, &e.Memo, &e.Status, &e.Reversed, &e.ReversalOfID, &e.PostedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r *txRepository) InsertEntry(ctx context.Context, in EntryParams) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (period_id, entry_date, source_module, source_id, memo, status, reversal_of_id, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8, CASE WHEN $6='POSTED' THEN NOW() END)
RETURNING `+entryColumns, in.PeriodID, in.Date, in.SourceModule, in.SourceID, in.Memo, in.Status, in.ReversalOfID, nullInt(in.PostedBy))
	return scanEntry(row)
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit)
VALUES ($1,$2,$3,$4)`, entryID, line.AccountID, int64(line.Debit), int64(line.Credit)); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, entry_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrSourceConflict
		}
		return err
	}
	return nil
}

func scanPeriod(row pgx.Row) (fiscal.Period, error) {
	var p fiscal.Period
	err := row.Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.LockedBy, &p.LockedAt, &p.ClosedBy, &p.ClosedAt, &p.ReopenedBy, &p.ReopenedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const periodColumns = `id, code, start_date, end_date, status, locked_by, locked_at, closed_by, closed_at, reopened_by, reopened_at, created_at, updated_at`

func (r *txRepository) PeriodCoveringForUpdate(ctx context.Context, date time.Time) (fiscal.Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+`
FROM fiscal_periods WHERE $1::date BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1 FOR UPDATE`, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fiscal.Period{}, fiscal.ErrNoPeriod
		}
		return fiscal.Period{}, err
	}
	return p, nil
}

func (r *txRepository) NextOpenPeriodAfter(ctx context.Context, date time.Time) (fiscal.Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+`
FROM fiscal_periods WHERE status='OPEN' AND start_date >= $1::date ORDER BY start_date ASC LIMIT 1 FOR UPDATE`, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fiscal.Period{}, fiscal.ErrNoPeriod
		}
		return fiscal.Period{}, err
	}
	return p, nil
}

func (r *txRepository) EntryForUpdate(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, ErrEntryNotFound
		}
		return JournalEntry{}, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, created_at, updated_at
FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		var debit, credit int64
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &debit, &credit, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return JournalEntry{}, nil, err
		}
		line.Debit = money.Amount(debit)
		line.Credit = money.Amount(credit)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return JournalEntry{}, nil, err
	}
	return entry, lines, nil
}

func (r *txRepository) EntryBySource(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT e.`+aliasedEntryColumns("e")+`
FROM journal_entries e JOIN source_links s ON s.entry_id = e.id
WHERE s.module=$1 AND s.ref_id=$2 ORDER BY e.id DESC LIMIT 1`, module, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) MarkReversed(ctx context.Context, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET is_reversed=TRUE, updated_at=NOW() WHERE id=$1`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) MarkPosted(ctx context.Context, entryID, periodID, actorID int64, postedAt time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='POSTED', period_id=$2, posted_by=$3, posted_at=$4, updated_at=NOW() WHERE id=$1 AND status='DRAFT'`, entryID, periodID, nullInt(actorID), postedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, code, name, type, parent_id, is_active, created_at, updated_at FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) AccountByCode(ctx context.Context, code string) (Account, error) {
	var a Account
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, type, parent_id, is_active, created_at, updated_at FROM accounts WHERE code=$1`, code).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// ListEntries returns journal entries newest first, without lines.
func (r *Repository) ListEntries(ctx context.Context, limit, offset int) ([]JournalEntry, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY number DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// GetEntry loads one entry with its lines outside a transaction.
func (r *Repository) GetEntry(ctx context.Context, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, lines, err := tx.EntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		e.Lines = lines
		entry = e
		return nil
	})
	return entry, err
}

// TrialBalance aggregates posted lines per account up to the given date.
func (r *Repository) TrialBalance(ctx context.Context, asOf time.Time) ([]TrialBalanceRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.type,
COALESCE(SUM(pl.debit),0), COALESCE(SUM(pl.credit),0)
FROM accounts a
LEFT JOIN (
    SELECT l.account_id, l.debit, l.credit
    FROM journal_lines l
    JOIN journal_entries e ON e.id = l.entry_id
    WHERE e.status='POSTED' AND e.entry_date <= $1
) pl ON pl.account_id = a.id
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalanceRow
	for rows.Next() {
		var row TrialBalanceRow
		var debit, credit int64
		if err := rows.Scan(&row.AccountID, &row.AccountCode, &row.AccountName, &row.AccountType, &debit, &credit); err != nil {
			return nil, err
		}
		row.Debit = money.Amount(debit)
		row.Credit = money.Amount(credit)
		out = append(out, row)
	}
	return out, rows.Err()
}

func aliasedEntryColumns(alias string) string {
	return `id, ` + alias + `.number, ` + alias + `.period_id, ` + alias + `.entry_date, ` + alias + `.source_module, ` + alias + `.source_id, ` + alias + `.memo, ` + alias + `.status, ` + alias + `.is_reversed, ` + alias + `.reversal_of_id, ` + alias + `.posted_by, ` + alias + `.posted_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
