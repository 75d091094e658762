package departments

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procurio/procurio/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Department, int, error)
	Get(ctx context.Context, id int64) (Department, error)
	Create(ctx context.Context, department Department) (Department, error)
	Update(ctx context.Context, id int64, department Department) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Department, int, error) {
	countQuery := `SELECT COUNT(*) FROM departments WHERE 1=1`
	countArgs := []any{}
	if filters.Search != "" {
		countQuery += ` AND name ILIKE $1`
		countArgs = append(countArgs, "%"+filters.Search+"%")
	}
	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, name, COALESCE(description, ''), created_at, updated_at FROM departments WHERE 1=1`
	args := []any{}
	argCount := 0
	if filters.Search != "" {
		argCount++
		query += ` AND name ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Search+"%")
	}
	query += ` ORDER BY name ASC`

	limit := filters.Limit
	if limit < 1 {
		limit = shared.DefaultLimit
	}
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, filters.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var departments []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, err
		}
		departments = append(departments, d)
	}
	return departments, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Department, error) {
	var d Department
	err := r.db.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), created_at, updated_at FROM departments WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Department{}, shared.ErrNotFound
	}
	return d, err
}

func (r *repository) Create(ctx context.Context, department Department) (Department, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO departments (name, description, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		department.Name, department.Description, now, now).Scan(&department.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Department{}, shared.ErrDuplicate
		}
		return Department{}, err
	}
	department.CreatedAt = now
	department.UpdatedAt = now
	return department, nil
}

func (r *repository) Update(ctx context.Context, id int64, department Department) error {
	tag, err := r.db.Exec(ctx, `UPDATE departments SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		department.Name, department.Description, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
