package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/simplyinspect/permwatch/internal/domain/change"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
)

type CacheRepository struct {
	db *sql.DB
}

func NewCacheRepository(db *sql.DB) change.CacheRepository {
	return &CacheRepository{db: db}
}

func (r *CacheRepository) Save(ctx context.Context, entry *change.CacheEntry) error {
	if entry.ComputedAt.IsZero() {
		entry.ComputedAt = time.Now().UTC()
	}

	summary, err := json.Marshal(entry.Summary)
	if err != nil {
		return errors.InternalError("Failed to encode comparison summary", err)
	}

	query := `INSERT INTO baseline_comparison_cache (baseline_id, site_id, summary, computed_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (baseline_id) DO UPDATE
	          SET site_id = EXCLUDED.site_id, summary = EXCLUDED.summary, computed_at = EXCLUDED.computed_at`

	_, err = r.db.ExecContext(ctx, query,
		entry.BaselineID, entry.SiteID, string(summary),
		entry.ComputedAt.Format(time.RFC3339))
	if err != nil {
		return errors.DatabaseError("Failed to save comparison cache", err)
	}

	return nil
}

func (r *CacheRepository) Get(ctx context.Context, baselineID int64, maxAge time.Duration) (*change.CacheEntry, error) {
	query := `SELECT baseline_id, site_id, summary, computed_at
	          FROM baseline_comparison_cache
	          WHERE baseline_id = $1`

	var entry change.CacheEntry
	var summary, computedAt string

	err := r.db.QueryRowContext(ctx, query, baselineID).Scan(
		&entry.BaselineID, &entry.SiteID, &summary, &computedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Comparison cache entry")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get comparison cache", err)
	}

	entry.ComputedAt, _ = time.Parse(time.RFC3339, computedAt)
	if time.Since(entry.ComputedAt) > maxAge {
		return nil, errors.NotFound("Comparison cache entry")
	}

	if err := json.Unmarshal([]byte(summary), &entry.Summary); err != nil {
		return nil, errors.InternalError("Failed to decode comparison summary", err)
	}

	return &entry, nil
}

func (r *CacheRepository) Invalidate(ctx context.Context, baselineID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM baseline_comparison_cache WHERE baseline_id = $1`, baselineID)
	if err != nil {
		return errors.DatabaseError("Failed to invalidate comparison cache", err)
	}
	return nil
}
