package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/simplyinspect/permwatch/internal/domain/baseline"
	"github.com/simplyinspect/permwatch/internal/domain/permission"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
)

type BaselineRepository struct {
	db *sql.DB
}

func NewBaselineRepository(db *sql.DB) baseline.Repository {
	return &BaselineRepository{db: db}
}

func (r *BaselineRepository) Create(ctx context.Context, b *baseline.Baseline) (int64, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.EntryCount = len(b.Entries)

	data, err := json.Marshal(b.Entries)
	if err != nil {
		return 0, errors.InternalError("Failed to encode baseline entries", err)
	}

	query := `INSERT INTO permission_baselines
	          (site_id, site_url, name, description, baseline_data, entry_count, created_by, created_by_email, created_at, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING id`

	// RETURNING works on both postgres and modernc sqlite
	err = r.db.QueryRowContext(ctx, query,
		b.SiteID, b.SiteURL, b.Name, b.Description,
		string(data), b.EntryCount, b.CreatedBy, b.CreatedByEmail,
		b.CreatedAt.Format(time.RFC3339), b.IsActive).Scan(&b.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, errors.Conflict("Site already has an active baseline")
		}
		return 0, errors.DatabaseError("Failed to create baseline", err)
	}

	return b.ID, nil
}

func (r *BaselineRepository) GetByID(ctx context.Context, id int64) (*baseline.Baseline, error) {
	query := `SELECT id, site_id, site_url, name, description, baseline_data, entry_count, created_by, created_by_email, created_at, is_active
	          FROM permission_baselines
	          WHERE id = $1`

	b, err := scanBaseline(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (r *BaselineRepository) GetActive(ctx context.Context, siteID string) (*baseline.Baseline, error) {
	query := `SELECT id, site_id, site_url, name, description, baseline_data, entry_count, created_by, created_by_email, created_at, is_active
	          FROM permission_baselines
	          WHERE site_id = $1 AND is_active`

	b, err := scanBaseline(r.db.QueryRowContext(ctx, query, siteID))
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (r *BaselineRepository) List(ctx context.Context, siteID string, limit, offset int) ([]*baseline.Baseline, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM permission_baselines WHERE site_id = $1`, siteID).Scan(&total); err != nil {
		return nil, 0, errors.DatabaseError("Failed to count baselines", err)
	}

	// Listing omits baseline_data; snapshots can be large
	query := `SELECT id, site_id, site_url, name, description, entry_count, created_by, created_by_email, created_at, is_active
	          FROM permission_baselines
	          WHERE site_id = $1
	          ORDER BY created_at DESC
	          LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, siteID, limit, offset)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to list baselines", err)
	}
	defer rows.Close()

	var baselines []*baseline.Baseline
	for rows.Next() {
		var b baseline.Baseline
		var createdAt string
		err := rows.Scan(&b.ID, &b.SiteID, &b.SiteURL, &b.Name, &b.Description,
			&b.EntryCount, &b.CreatedBy, &b.CreatedByEmail, &createdAt, &b.IsActive)
		if err != nil {
			return nil, 0, errors.DatabaseError("Failed to scan baseline", err)
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		baselines = append(baselines, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.DatabaseError("Failed to read baselines", err)
	}

	return baselines, total, nil
}

// Activate deactivates whatever baseline is active for the site and
// activates the requested one, in a single transaction. The partial
// unique index on (site_id) WHERE is_active backstops races between
// concurrent activations.
func (r *BaselineRepository) Activate(ctx context.Context, siteID string, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("Failed to begin activation", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE permission_baselines SET is_active = FALSE WHERE site_id = $1 AND is_active`, siteID); err != nil {
		return errors.DatabaseError("Failed to deactivate current baseline", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE permission_baselines SET is_active = TRUE WHERE id = $1 AND site_id = $2`, id, siteID)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("Another baseline was activated concurrently")
		}
		return errors.DatabaseError("Failed to activate baseline", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to check activation result", err)
	}
	if affected == 0 {
		return errors.NotFound("Baseline")
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("Another baseline was activated concurrently")
		}
		return errors.DatabaseError("Failed to commit activation", err)
	}

	return nil
}

func (r *BaselineRepository) Deactivate(ctx context.Context, siteID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE permission_baselines SET is_active = FALSE WHERE id = $1 AND site_id = $2`, id, siteID)
	if err != nil {
		return errors.DatabaseError("Failed to deactivate baseline", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to check deactivation result", err)
	}
	if affected == 0 {
		return errors.NotFound("Baseline")
	}

	return nil
}

func (r *BaselineRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM permission_baselines WHERE id = $1`, id)
	if err != nil {
		return errors.DatabaseError("Failed to delete baseline", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to check delete result", err)
	}
	if affected == 0 {
		return errors.NotFound("Baseline")
	}

	return nil
}

func (r *BaselineRepository) ListActiveSites(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT site_id FROM permission_baselines WHERE is_active ORDER BY site_id`)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list active sites", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var siteID string
		if err := rows.Scan(&siteID); err != nil {
			return nil, errors.DatabaseError("Failed to scan site ID", err)
		}
		sites = append(sites, siteID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to read active sites", err)
	}

	return sites, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBaseline(row rowScanner) (*baseline.Baseline, error) {
	var b baseline.Baseline
	var data, createdAt string

	err := row.Scan(&b.ID, &b.SiteID, &b.SiteURL, &b.Name, &b.Description,
		&data, &b.EntryCount, &b.CreatedBy, &b.CreatedByEmail, &createdAt, &b.IsActive)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Baseline")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get baseline", err)
	}

	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if data != "" {
		var entries []permission.Entry
		if err := json.Unmarshal([]byte(data), &entries); err != nil {
			return nil, errors.InternalError("Failed to decode baseline entries", err)
		}
		b.Entries = entries
	}

	return &b, nil
}

// isUniqueViolation detects unique constraint failures from either
// driver. lib/pq reports SQLSTATE 23505; modernc sqlite wraps
// SQLITE_CONSTRAINT_UNIQUE in the error text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
