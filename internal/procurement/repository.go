package procurement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/procurio/procurio/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateRequest(ctx context.Context, pr PurchaseRequest) (int64, error)
	InsertItem(ctx context.Context, item PurchaseItem) error
	DeleteItems(ctx context.Context, requestID int64) error
	UpdateTotals(ctx context.Context, id int64, net, gross decimal.Decimal) error
	UpdateStatus(ctx context.Context, id int64, from, to Status, managerID int64) error
	UpdateAccountantComment(ctx context.Context, id int64, comment string) error
	InsertDocument(ctx context.Context, doc RequestDocument) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const requestColumns = `id, ro_number, creator_id, COALESCE(manager_id, 0), COALESCE(supplier_id, 0), COALESCE(customer_id, 0),
	amount_without_vat::text, vat_percent::text, amount_with_vat::text,
	payment_date, deadline, COALESCE(comment, ''), COALESCE(accountant_comment, ''), status, created_at, updated_at`

// GetRequest returns the aggregate with items and document metadata.
func (r *Repository) GetRequest(ctx context.Context, id int64) (PurchaseRequest, []PurchaseItem, []RequestDocument, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM purchase_requests WHERE id = $1`, id)
	pr, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRequest{}, nil, nil, ErrNotFound
		}
		return PurchaseRequest{}, nil, nil, err
	}

	itemRows, err := r.pool.Query(ctx, `SELECT id, request_id, name, COALESCE(description, ''), quantity, price::text, total::text
FROM purchase_items WHERE request_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseRequest{}, nil, nil, err
	}
	defer itemRows.Close()
	var items []PurchaseItem
	for itemRows.Next() {
		var item PurchaseItem
		var price, total string
		if err := itemRows.Scan(&item.ID, &item.RequestID, &item.Name, &item.Description, &item.Quantity, &price, &total); err != nil {
			return PurchaseRequest{}, nil, nil, err
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return PurchaseRequest{}, nil, nil, err
		}
		if item.Total, err = decimal.NewFromString(total); err != nil {
			return PurchaseRequest{}, nil, nil, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		return PurchaseRequest{}, nil, nil, err
	}

	docRows, err := r.pool.Query(ctx, `SELECT id, request_id, object_key, file_name, doc_type, COALESCE(uploaded_by, 0), uploaded_at
FROM request_documents WHERE request_id = $1 ORDER BY uploaded_at`, id)
	if err != nil {
		return PurchaseRequest{}, nil, nil, err
	}
	defer docRows.Close()
	var docs []RequestDocument
	for docRows.Next() {
		var doc RequestDocument
		var docType string
		if err := docRows.Scan(&doc.ID, &doc.RequestID, &doc.ObjectKey, &doc.FileName, &docType, &doc.UploadedBy, &doc.UploadedAt); err != nil {
			return PurchaseRequest{}, nil, nil, err
		}
		doc.Type = DocType(docType)
		docs = append(docs, doc)
	}
	if err := docRows.Err(); err != nil {
		return PurchaseRequest{}, nil, nil, err
	}
	return pr, items, docs, nil
}

// statusPriorityCase mirrors Status.SortPriority for SQL ordering.
const statusPriorityCase = `CASE r.status
	WHEN 'WAITING' THEN 1
	WHEN 'APPROVED' THEN 2
	WHEN 'PAID' THEN 3
	WHEN 'REJECTED' THEN 4
	WHEN 'CANCELLED' THEN 5
	ELSE 99 END`

// ListRequests returns the review dashboard page: status priority first,
// newest first within a status.
func (r *Repository) ListRequests(ctx context.Context, filters ListFilters) ([]RequestSummary, int, error) {
	countSQL := `SELECT COUNT(*) FROM purchase_requests r WHERE 1=1`
	countArgs := []any{}
	if filters.Status != "" {
		countSQL += ` AND r.status = $1`
		countArgs = append(countArgs, string(filters.Status))
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT r.id, r.ro_number, COALESCE(s.name, '') AS supplier_name, COALESCE(c.name, '') AS customer_name,
	r.creator_id, COALESCE(r.manager_id, 0), r.amount_with_vat::text, r.status, r.payment_date, r.deadline, r.created_at
FROM purchase_requests r
LEFT JOIN suppliers s ON s.id = r.supplier_id
LEFT JOIN departments c ON c.id = r.customer_id
WHERE 1=1`
	args := []any{}
	argNum := 1
	if filters.Status != "" {
		dataSQL += ` AND r.status = $` + strconv.Itoa(argNum)
		args = append(args, string(filters.Status))
		argNum++
	}
	dataSQL += ` ORDER BY ` + statusPriorityCase + `, r.created_at DESC`
	dataSQL += ` LIMIT $` + strconv.Itoa(argNum) + ` OFFSET $` + strconv.Itoa(argNum+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListByCreator returns the creator's requests, newest first.
func (r *Repository) ListByCreator(ctx context.Context, creatorID int64) ([]RequestSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.ro_number, COALESCE(s.name, '') AS supplier_name, COALESCE(c.name, '') AS customer_name,
	r.creator_id, COALESCE(r.manager_id, 0), r.amount_with_vat::text, r.status, r.payment_date, r.deadline, r.created_at
FROM purchase_requests r
LEFT JOIN suppliers s ON s.id = r.supplier_id
LEFT JOIN departments c ON c.id = r.customer_id
WHERE r.creator_id = $1
ORDER BY r.created_at DESC`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func scanSummaries(rows pgx.Rows) ([]RequestSummary, error) {
	var items []RequestSummary
	for rows.Next() {
		var item RequestSummary
		var amount, status string
		var paymentDate, deadline pgtype.Date
		if err := rows.Scan(&item.ID, &item.RONumber, &item.SupplierName, &item.CustomerName,
			&item.CreatorID, &item.ManagerID, &amount, &status, &paymentDate, &deadline, &item.CreatedAt); err != nil {
			return nil, err
		}
		var err error
		if item.AmountWithVAT, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		item.Status = Status(status)
		if paymentDate.Valid {
			item.PaymentDate = paymentDate.Time
		}
		if deadline.Valid {
			item.Deadline = deadline.Time
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanRequest(row pgx.Row) (PurchaseRequest, error) {
	var pr PurchaseRequest
	var net, vat, gross, status string
	var paymentDate, deadline pgtype.Date
	if err := row.Scan(&pr.ID, &pr.RONumber, &pr.CreatorID, &pr.ManagerID, &pr.SupplierID, &pr.CustomerID,
		&net, &vat, &gross, &paymentDate, &deadline, &pr.Comment, &pr.AccountantComment, &status, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
		return PurchaseRequest{}, err
	}
	var err error
	if pr.AmountWithoutVAT, err = decimal.NewFromString(net); err != nil {
		return PurchaseRequest{}, err
	}
	if pr.VATPercent, err = decimal.NewFromString(vat); err != nil {
		return PurchaseRequest{}, err
	}
	if pr.AmountWithVAT, err = decimal.NewFromString(gross); err != nil {
		return PurchaseRequest{}, err
	}
	pr.Status = Status(status)
	if paymentDate.Valid {
		pr.PaymentDate = paymentDate.Time
	}
	if deadline.Valid {
		pr.Deadline = deadline.Time
	}
	return pr, nil
}

func (t *txRepo) CreateRequest(ctx context.Context, pr PurchaseRequest) (int64, error) {
	var supplierID, customerID pgtype.Int8
	if pr.SupplierID != 0 {
		supplierID = pgtype.Int8{Int64: pr.SupplierID, Valid: true}
	}
	if pr.CustomerID != 0 {
		customerID = pgtype.Int8{Int64: pr.CustomerID, Valid: true}
	}
	var deadline pgtype.Date
	if !pr.Deadline.IsZero() {
		deadline = pgtype.Date{Time: pr.Deadline, Valid: true}
	}
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_requests
	(ro_number, creator_id, supplier_id, customer_id, amount_without_vat, vat_percent, amount_with_vat, deadline, comment, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, NOW(), NOW())
RETURNING id`,
		pr.RONumber, pr.CreatorID, supplierID, customerID,
		pr.AmountWithoutVAT.String(), pr.VATPercent.String(), pr.AmountWithVAT.String(),
		deadline, pr.Comment, string(pr.Status)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) InsertItem(ctx context.Context, item PurchaseItem) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_items (request_id, name, description, quantity, price, total)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric)`,
		item.RequestID, item.Name, item.Description, item.Quantity, item.Price.String(), item.Total.String())
	return err
}

func (t *txRepo) DeleteItems(ctx context.Context, requestID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_items WHERE request_id = $1`, requestID)
	return err
}

// UpdateTotals refuses to touch a request that reached a terminal status
// after the caller's guard read.
func (t *txRepo) UpdateTotals(ctx context.Context, id int64, net, gross decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_requests
SET amount_without_vat = $1::numeric, amount_with_vat = $2::numeric, updated_at = NOW()
WHERE id = $3 AND status NOT IN ('PAID', 'REJECTED', 'CANCELLED')`, net.String(), gross.String(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %d is settled: %w", id, ErrInvalidTransition)
	}
	return nil
}

// UpdateStatus is a compare-and-set on the status column: the write only
// lands if the row still holds the status the caller authorized against, so
// a reviewer racing on a stale read loses cleanly.
func (t *txRepo) UpdateStatus(ctx context.Context, id int64, from, to Status, managerID int64) error {
	var paymentDate any
	if to == StatusPaid {
		paymentDate = time.Now()
	}
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_requests
SET status = $1, manager_id = $2, payment_date = COALESCE($3, payment_date), updated_at = NOW()
WHERE id = $4 AND status = $5`, string(to), managerID, paymentDate, id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %d is no longer %s: %w", id, from, ErrInvalidTransition)
	}
	return nil
}

func (t *txRepo) UpdateAccountantComment(ctx context.Context, id int64, comment string) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_requests SET accountant_comment = $1, updated_at = NOW() WHERE id = $2`, comment, id)
	return err
}

func (t *txRepo) InsertDocument(ctx context.Context, doc RequestDocument) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO request_documents (request_id, object_key, file_name, doc_type, uploaded_by, uploaded_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`, doc.RequestID, doc.ObjectKey, doc.FileName, string(doc.Type), doc.UploadedBy, doc.UploadedAt).Scan(&id)
	return id, err
}
