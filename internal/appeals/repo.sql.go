package appeals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andres-saa/restaurant-reports/internal/shared"
)

// Repository persists appeal records as jsonb documents keyed by order code.
// The site and day columns duplicate document fields for cheap filtering.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the appeals repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads one record by code.
func (r *Repository) Get(ctx context.Context, code string) (Appeal, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx, `SELECT doc FROM appeals WHERE code = $1`, code).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appeal{}, fmt.Errorf("%w: appeal %s", shared.ErrNotFound, code)
	}
	if err != nil {
		return Appeal{}, fmt.Errorf("appeals: load %s: %w", code, err)
	}
	var a Appeal
	if err := json.Unmarshal(doc, &a); err != nil {
		return Appeal{}, fmt.Errorf("appeals: decode %s: %w", code, err)
	}
	return a, nil
}

// Mutate runs fn on the existing record under FOR UPDATE and writes the
// result back in the same transaction. Missing codes fail with ErrNotFound.
func (r *Repository) Mutate(ctx context.Context, code string, fn func(*Appeal) error) error {
	return r.mutate(ctx, code, false, func(a *Appeal, _ bool) error { return fn(a) })
}

// MutateOrCreate is Mutate that starts from a zero record when the code is
// new; fn receives whether the record was created by this call.
func (r *Repository) MutateOrCreate(ctx context.Context, code string, fn func(a *Appeal, created bool) error) error {
	return r.mutate(ctx, code, true, fn)
}

func (r *Repository) mutate(ctx context.Context, code string, createMissing bool, fn func(*Appeal, bool) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("appeals: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		a       Appeal
		doc     []byte
		created bool
	)
	err = tx.QueryRow(ctx, `SELECT doc FROM appeals WHERE code = $1 FOR UPDATE`, code).Scan(&doc)
	switch {
	case err == nil:
		if err := json.Unmarshal(doc, &a); err != nil {
			return fmt.Errorf("appeals: decode %s: %w", code, err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		if !createMissing {
			return fmt.Errorf("%w: appeal %s", shared.ErrNotFound, code)
		}
		a.Code = code
		created = true
	default:
		return fmt.Errorf("appeals: load %s: %w", code, err)
	}

	if err := fn(&a, created); err != nil {
		return err
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("appeals: encode %s: %w", code, err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO appeals (code, site_id, day, doc, updated_at)
		VALUES ($1, $2, NULLIF($3, '')::date, $4, now())
		ON CONFLICT (code) DO UPDATE
		SET site_id = EXCLUDED.site_id, day = EXCLUDED.day, doc = EXCLUDED.doc, updated_at = now()`,
		code, a.Site, a.Day, payload)
	if err != nil {
		return fmt.Errorf("appeals: save %s: %w", code, err)
	}
	return tx.Commit(ctx)
}

// List returns records matching the filter, oldest day first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Appeal, error) {
	query := `SELECT doc FROM appeals WHERE 1=1`
	args := make([]any, 0, 3)
	if filter.Site != "" {
		args = append(args, filter.Site)
		query += fmt.Sprintf(` AND site_id = $%d`, len(args))
	}
	if filter.From != "" {
		args = append(args, filter.From)
		query += fmt.Sprintf(` AND day >= $%d::date`, len(args))
	}
	if filter.To != "" {
		args = append(args, filter.To)
		query += fmt.Sprintf(` AND day <= $%d::date`, len(args))
	}
	query += ` ORDER BY day NULLS LAST, code`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appeals: list: %w", err)
	}
	defer rows.Close()

	var out []Appeal
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("appeals: scan: %w", err)
		}
		var a Appeal
		if err := json.Unmarshal(doc, &a); err != nil {
			return nil, fmt.Errorf("appeals: decode %s: %w", a.Code, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
