package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-ledger/internal/ledger"
	"github.com/atlas-erp/atlas-ledger/internal/money"
	"github.com/atlas-erp/atlas-ledger/internal/platform/db"
)

// Repository persists documents and their lines.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional document operations. Ledger returns a
// posting repository bound to the same transaction, so a status change and
// its journal entry commit together.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Document, error)
	Insert(ctx context.Context, doc Document) (Document, error)
	ReplaceLines(ctx context.Context, docID int64, lines []Line) error
	UpdateHeader(ctx context.Context, doc Document) error
	UpdateStatus(ctx context.Context, id int64, to Status, reason *string) error
	SetSupersededBy(ctx context.Context, originalID, revisionID int64) error
	SettledAmount(ctx context.Context, targetID int64) (money.Amount, error)
	AppliedAmount(ctx context.Context, sourceID int64) (money.Amount, error)
	GenerateNumber(ctx context.Context, family Family, date time.Time) (string, error)
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

const docColumns = `id, doc_uuid, family, number, counterparty_id, doc_date, due_date, currency, subtotal, discount, tax, grand_total, status, version, superseded_by_id, revision_of_id, source_doc_id, reason, notes, created_by, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var subtotal, discount, tax, grand int64
	err := row.Scan(&d.ID, &d.UUID, &d.Family, &d.Number, &d.CounterpartyID, &d.DocDate, &d.DueDate, &d.Currency,
		&subtotal, &discount, &tax, &grand, &d.Status, &d.Version, &d.SupersededByID, &d.RevisionOfID,
		&d.SourceDocID, &d.Reason, &d.Notes, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	d.Subtotal = money.Amount(subtotal)
	d.Discount = money.Amount(discount)
	d.Tax = money.Amount(tax)
	d.GrandTotal = money.Amount(grand)
	return d, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Document, error) {
	doc, err := scanDocument(r.tx.QueryRow(ctx, `SELECT `+docColumns+` FROM documents WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	lines, err := queryLines(ctx, r.tx, id)
	if err != nil {
		return Document{}, err
	}
	doc.Lines = lines
	return doc, nil
}

func (r *txRepository) Insert(ctx context.Context, doc Document) (Document, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO documents
(doc_uuid, family, number, counterparty_id, doc_date, due_date, currency, subtotal, discount, tax, grand_total, status, version, revision_of_id, source_doc_id, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,1,$13,$14,$15,$16)
RETURNING `+docColumns,
		doc.UUID, doc.Family, doc.Number, doc.CounterpartyID, doc.DocDate, doc.DueDate, doc.Currency,
		int64(doc.Subtotal), int64(doc.Discount), int64(doc.Tax), int64(doc.GrandTotal), doc.Status,
		doc.RevisionOfID, doc.SourceDocID, doc.Notes, doc.CreatedBy)
	inserted, err := scanDocument(row)
	if err != nil {
		return Document{}, err
	}
	if err := r.ReplaceLines(ctx, inserted.ID, doc.Lines); err != nil {
		return Document{}, err
	}
	lines, err := queryLines(ctx, r.tx, inserted.ID)
	if err != nil {
		return Document{}, err
	}
	inserted.Lines = lines
	return inserted, nil
}

func (r *txRepository) ReplaceLines(ctx context.Context, docID int64, lines []Line) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM document_lines WHERE document_id=$1`, docID); err != nil {
		return err
	}
	for i, line := range lines {
		order := line.LineOrder
		if order == 0 {
			order = i + 1
		}
		if _, err := r.tx.Exec(ctx, `INSERT INTO document_lines
(document_id, product_id, description, quantity, unit_price, discount_pct, tax_pct, discount, net, tax, line_order)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			docID, line.ProductID, line.Description, line.Quantity, line.UnitPrice, line.DiscountPct, line.TaxPct,
			int64(line.Discount), int64(line.Net), int64(line.Tax), order); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) UpdateHeader(ctx context.Context, doc Document) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE documents SET counterparty_id=$2, doc_date=$3, due_date=$4, currency=$5,
subtotal=$6, discount=$7, tax=$8, grand_total=$9, notes=$10, version=version+1, updated_at=NOW()
WHERE id=$1`, doc.ID, doc.CounterpartyID, doc.DocDate, doc.DueDate, doc.Currency,
		int64(doc.Subtotal), int64(doc.Discount), int64(doc.Tax), int64(doc.GrandTotal), doc.Notes)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, to Status, reason *string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE documents SET status=$2, reason=COALESCE($3, reason), version=version+1, updated_at=NOW() WHERE id=$1`, id, to, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetSupersededBy(ctx context.Context, originalID, revisionID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE documents SET superseded_by_id=$2, updated_at=NOW() WHERE id=$1`, originalID, revisionID)
	return err
}

func (r *txRepository) SettledAmount(ctx context.Context, targetID int64) (money.Amount, error) {
	var settled int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount),0) FROM applications WHERE target_id=$1 AND reversed_at IS NULL`, targetID).Scan(&settled)
	return money.Amount(settled), err
}

func (r *txRepository) AppliedAmount(ctx context.Context, sourceID int64) (money.Amount, error) {
	var applied int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount),0) FROM applications WHERE source_id=$1 AND reversed_at IS NULL`, sourceID).Scan(&applied)
	return money.Amount(applied), err
}

var numberPrefixes = map[Family]string{
	FamilyQuotation:      "QUO",
	FamilyInvoice:        "INV",
	FamilyBill:           "BIL",
	FamilyDeliveryOrder:  "DO",
	FamilySalesReturn:    "SRT",
	FamilyPurchaseReturn: "PRT",
	FamilyDownPayment:    "DP",
	FamilyWorkOrder:      "WO",
}

func (r *txRepository) GenerateNumber(ctx context.Context, family Family, date time.Time) (string, error) {
	prefix, ok := numberPrefixes[family]
	if !ok {
		return "", ErrUnknownFamily
	}
	year := date.Year()
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO document_numbers (family, year, last_value) VALUES ($1,$2,1)
ON CONFLICT (family, year) DO UPDATE SET last_value = document_numbers.last_value + 1
RETURNING last_value`, family, year).Scan(&next)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%05d", prefix, year, next), nil
}

func queryLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, docID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, document_id, product_id, description, quantity, unit_price, discount_pct, tax_pct, discount, net, tax, line_order, created_at, updated_at
FROM document_lines WHERE document_id=$1 ORDER BY line_order ASC, id ASC`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		var qty, price, discPct, taxPct string
		var discount, net, tax int64
		if err := rows.Scan(&line.ID, &line.DocumentID, &line.ProductID, &line.Description, &qty, &price, &discPct, &taxPct,
			&discount, &net, &tax, &line.LineOrder, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return nil, err
		}
		if line.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if line.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if line.DiscountPct, err = decimal.NewFromString(discPct); err != nil {
			return nil, err
		}
		if line.TaxPct, err = decimal.NewFromString(taxPct); err != nil {
			return nil, err
		}
		line.Discount = money.Amount(discount)
		line.Net = money.Amount(net)
		line.Tax = money.Amount(tax)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListRequest filters document listings.
type ListRequest struct {
	Family         Family
	Status         *Status
	CounterpartyID *int64
	DateFrom       *time.Time
	DateTo         *time.Time
	Page           int
	PerPage        int
}

// Get loads one document with lines.
func (r *Repository) Get(ctx context.Context, id int64) (Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+docColumns+` FROM documents WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	lines, err := queryLines(ctx, r.pool, id)
	if err != nil {
		return Document{}, err
	}
	doc.Lines = lines
	return doc, nil
}

// List returns documents of one family, newest first, with a total count.
func (r *Repository) List(ctx context.Context, req ListRequest) ([]Document, int, error) {
	where := `WHERE family=$1`
	args := []any{req.Family}
	idx := 2
	addFilter := func(clause string, val any) {
		where += fmt.Sprintf(" AND "+clause, idx)
		args = append(args, val)
		idx++
	}
	if req.Status != nil {
		addFilter("status=$%d", *req.Status)
	}
	if req.CounterpartyID != nil {
		addFilter("counterparty_id=$%d", *req.CounterpartyID)
	}
	if req.DateFrom != nil {
		addFilter("doc_date >= $%d", *req.DateFrom)
	}
	if req.DateTo != nil {
		addFilter("doc_date <= $%d", *req.DateTo)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf(`SELECT `+docColumns+` FROM documents %s ORDER BY id DESC LIMIT $%d OFFSET $%d`, where, idx, idx+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// DeleteDraft removes a draft document and its lines.
func (r *Repository) DeleteDraft(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1 AND status='DRAFT'`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SettledAmount sums active applications targeting the document, outside a
// transaction, for read-model responses.
func (r *Repository) SettledAmount(ctx context.Context, targetID int64) (money.Amount, error) {
	var settled int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount),0) FROM applications WHERE target_id=$1 AND reversed_at IS NULL`, targetID).Scan(&settled)
	return money.Amount(settled), err
}
