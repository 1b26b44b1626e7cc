package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andres-saa/restaurant-reports/internal/shared"
)

// Repository persists order partitions, rename maps and delivery flags as
// plain jsonb documents in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the order store repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpdatePartition loads the partition under FOR UPDATE, applies fn and
// writes the result back in the same transaction. Writers on the same
// (site, day) serialize; other partitions proceed concurrently.
func (r *Repository) UpdatePartition(ctx context.Context, site, day string, fn func(*Partition) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("orders: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	part := Partition{Site: site, Day: day, Records: make(map[string]OrderRecord)}
	var doc []byte
	err = tx.QueryRow(ctx,
		`SELECT doc FROM order_partitions WHERE site_id = $1 AND day = $2::date FOR UPDATE`,
		site, day).Scan(&doc)
	switch {
	case err == nil:
		if err := json.Unmarshal(doc, &part.Records); err != nil {
			return fmt.Errorf("orders: decode partition %s/%s: %w", site, day, err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// first sighting for this partition
	default:
		return fmt.Errorf("orders: load partition: %w", err)
	}

	if err := fn(&part); err != nil {
		return err
	}

	payload, err := json.Marshal(part.Records)
	if err != nil {
		return fmt.Errorf("orders: encode partition: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO order_partitions (site_id, day, doc, updated_at)
		VALUES ($1, $2::date, $3, now())
		ON CONFLICT (site_id, day) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		site, day, payload)
	if err != nil {
		return fmt.Errorf("orders: save partition: %w", err)
	}
	return tx.Commit(ctx)
}

// Partition reads one partition; an empty one is returned when nothing was
// merged for the scope yet.
func (r *Repository) Partition(ctx context.Context, site, day string) (Partition, error) {
	part := Partition{Site: site, Day: day, Records: make(map[string]OrderRecord)}
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT doc FROM order_partitions WHERE site_id = $1 AND day = $2::date`,
		site, day).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return part, nil
	}
	if err != nil {
		return Partition{}, fmt.Errorf("orders: load partition: %w", err)
	}
	if err := json.Unmarshal(doc, &part.Records); err != nil {
		return Partition{}, fmt.Errorf("orders: decode partition %s/%s: %w", site, day, err)
	}
	return part, nil
}

// PartitionsForDay lists every site partition stored for the day.
func (r *Repository) PartitionsForDay(ctx context.Context, day string) ([]Partition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT site_id, day, doc FROM order_partitions WHERE day = $1::date ORDER BY site_id`, day)
	if err != nil {
		return nil, fmt.Errorf("orders: list partitions: %w", err)
	}
	defer rows.Close()
	return scanPartitions(rows)
}

// PartitionsInRange lists partitions for the sites and inclusive day range.
// Empty sites means all sites; empty bounds mean unbounded.
func (r *Repository) PartitionsInRange(ctx context.Context, sites []string, from, to string) ([]Partition, error) {
	query := `SELECT site_id, day, doc FROM order_partitions WHERE 1=1`
	args := make([]any, 0, 3)
	if len(sites) > 0 {
		args = append(args, sites)
		query += fmt.Sprintf(` AND site_id = ANY($%d)`, len(args))
	}
	if from != "" {
		args = append(args, from)
		query += fmt.Sprintf(` AND day >= $%d::date`, len(args))
	}
	if to != "" {
		args = append(args, to)
		query += fmt.Sprintf(` AND day <= $%d::date`, len(args))
	}
	query += ` ORDER BY day, site_id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orders: list partitions: %w", err)
	}
	defer rows.Close()
	return scanPartitions(rows)
}

func scanPartitions(rows pgx.Rows) ([]Partition, error) {
	var out []Partition
	for rows.Next() {
		var (
			site string
			day  pgtype.Date
			doc  []byte
		)
		if err := rows.Scan(&site, &day, &doc); err != nil {
			return nil, fmt.Errorf("orders: scan partition: %w", err)
		}
		part := Partition{Site: site, Day: day.Time.Format(shared.DayFormat), Records: make(map[string]OrderRecord)}
		if err := json.Unmarshal(doc, &part.Records); err != nil {
			return nil, fmt.Errorf("orders: decode partition %s/%s: %w", part.Site, part.Day, err)
		}
		out = append(out, part)
	}
	return out, rows.Err()
}

// UpsertRenameMap merges entries into the stored map for (channel, day) and
// returns the merged result. New entries win over stored ones, matching how
// the channel re-reports display numbers.
func (r *Repository) UpsertRenameMap(ctx context.Context, channel, day string, entries map[string]string) (map[string]string, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("orders: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	merged := make(map[string]string)
	var doc []byte
	err = tx.QueryRow(ctx,
		`SELECT doc FROM rename_maps WHERE channel = $1 AND day = $2::date FOR UPDATE`,
		channel, day).Scan(&doc)
	switch {
	case err == nil:
		if err := json.Unmarshal(doc, &merged); err != nil {
			return nil, fmt.Errorf("orders: decode rename map: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("orders: load rename map: %w", err)
	}
	for k, v := range entries {
		merged[k] = v
	}
	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("orders: encode rename map: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO rename_maps (channel, day, doc, updated_at)
		VALUES ($1, $2::date, $3, now())
		ON CONFLICT (channel, day) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		channel, day, payload)
	if err != nil {
		return nil, fmt.Errorf("orders: save rename map: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return merged, nil
}

// RenameMapsForDay returns every channel's stored rename map for the day.
func (r *Repository) RenameMapsForDay(ctx context.Context, day string) ([]RenameMap, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT channel, day, doc FROM rename_maps WHERE day = $1::date ORDER BY channel`, day)
	if err != nil {
		return nil, fmt.Errorf("orders: list rename maps: %w", err)
	}
	defer rows.Close()
	var out []RenameMap
	for rows.Next() {
		var (
			channel string
			d       pgtype.Date
			doc     []byte
		)
		if err := rows.Scan(&channel, &d, &doc); err != nil {
			return nil, fmt.Errorf("orders: scan rename map: %w", err)
		}
		m := RenameMap{Channel: channel, Day: d.Time.Format(shared.DayFormat), Entries: make(map[string]string)}
		if err := json.Unmarshal(doc, &m.Entries); err != nil {
			return nil, fmt.Errorf("orders: decode rename map: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetUndelivered stores or clears the not-delivered flag for an order.
func (r *Repository) SetUndelivered(ctx context.Context, orderIdentity string, undelivered bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO order_flags (order_identity, undelivered, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (order_identity) DO UPDATE SET undelivered = EXCLUDED.undelivered, updated_at = now()`,
		orderIdentity, undelivered)
	if err != nil {
		return fmt.Errorf("orders: set undelivered: %w", err)
	}
	return nil
}

// UndeliveredSet returns the identities currently flagged as not delivered.
func (r *Repository) UndeliveredSet(ctx context.Context) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT order_identity FROM order_flags WHERE undelivered`)
	if err != nil {
		return nil, fmt.Errorf("orders: list undelivered: %w", err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("orders: scan undelivered: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
