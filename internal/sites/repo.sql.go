package sites

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andres-saa/restaurant-reports/internal/shared"
)

// Repository persists the site registry in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the site repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert writes the site, keeping an existing display-name override when the
// incoming one is empty.
func (r *Repository) Upsert(ctx context.Context, site Site) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sites (id, name, display_name, hidden, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			display_name = COALESCE(EXCLUDED.display_name, sites.display_name),
			hidden = EXCLUDED.hidden,
			updated_at = now()`,
		site.ID, site.Name, site.DisplayName, site.Hidden)
	if err != nil {
		return fmt.Errorf("sites: upsert %s: %w", site.ID, err)
	}
	return nil
}

// Get loads one site by id.
func (r *Repository) Get(ctx context.Context, id string) (Site, error) {
	var s Site
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(display_name, ''), hidden FROM sites WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.DisplayName, &s.Hidden)
	if errors.Is(err, pgx.ErrNoRows) {
		return Site{}, fmt.Errorf("%w: site %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return Site{}, fmt.Errorf("sites: load %s: %w", id, err)
	}
	return s, nil
}

// List returns the registry ordered by name, hidden sites only on request.
func (r *Repository) List(ctx context.Context, includeHidden bool) ([]Site, error) {
	query := `SELECT id, name, COALESCE(display_name, ''), hidden FROM sites`
	if !includeHidden {
		query += ` WHERE NOT hidden`
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sites: list: %w", err)
	}
	defer rows.Close()
	var out []Site
	for rows.Next() {
		var s Site
		if err := rows.Scan(&s.ID, &s.Name, &s.DisplayName, &s.Hidden); err != nil {
			return nil, fmt.Errorf("sites: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetHidden flips the visibility flag.
func (r *Repository) SetHidden(ctx context.Context, id string, hidden bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sites SET hidden = $2, updated_at = now() WHERE id = $1`, id, hidden)
	if err != nil {
		return fmt.Errorf("sites: set hidden %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: site %s", shared.ErrNotFound, id)
	}
	return nil
}

// SetDisplayName stores the override; empty clears it.
func (r *Repository) SetDisplayName(ctx context.Context, id, displayName string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sites SET display_name = NULLIF($2, ''), updated_at = now() WHERE id = $1`,
		id, displayName)
	if err != nil {
		return fmt.Errorf("sites: set display name %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: site %s", shared.ErrNotFound, id)
	}
	return nil
}
