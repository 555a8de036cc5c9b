package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/simplyinspect/permwatch/internal/domain/change"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
)

type ChangeRepository struct {
	db *sql.DB
}

func NewChangeRepository(db *sql.DB) change.Repository {
	return &ChangeRepository{db: db}
}

// PersistSet stores the records of one comparison in a single
// transaction. A record whose (baseline_id, resource_id, principal_id,
// change_type) identity already exists unreviewed is skipped, so
// re-running a comparison never duplicates open findings.
func (r *ChangeRepository) PersistSet(ctx context.Context, set *change.Set) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.DatabaseError("Failed to begin change persistence", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	// The partial unique index on (baseline_id, resource_id,
	// principal_id, change_type) WHERE NOT reviewed enforces the
	// dedup, so concurrent runs for the same site resolve in the
	// database rather than through a read-then-write check. RETURNING
	// hands back the generated id so the caller can route the record
	// through notifications.
	query := `INSERT INTO permission_changes
	          (baseline_id, site_id, resource_id, resource_name, resource_type,
	           principal_id, principal_name, principal_email, change_type,
	           previous_level, current_level, previous_inherited, current_inherited,
	           detected_at, reviewed, notified)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, FALSE, FALSE)
	          ON CONFLICT (baseline_id, resource_id, principal_id, change_type)
	          WHERE NOT reviewed DO NOTHING
	          RETURNING id`

	stored := 0
	for i := range set.Records {
		rec := &set.Records[i]
		err := tx.QueryRowContext(ctx, query,
			rec.BaselineID, rec.SiteID, rec.ResourceID, rec.ResourceName, rec.ResourceType,
			rec.PrincipalID, rec.PrincipalName, rec.PrincipalEmail, string(rec.ChangeType),
			rec.PreviousLevel, rec.CurrentLevel, rec.PreviousInherited, rec.CurrentInherited,
			now.Format(time.RFC3339)).Scan(&rec.ID)
		if err == sql.ErrNoRows {
			// Identity already open and unreviewed.
			continue
		}
		if err != nil {
			return 0, errors.DatabaseError("Failed to persist change record", err)
		}

		rec.DetectedAt = now
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.DatabaseError("Failed to commit change persistence", err)
	}

	return stored, nil
}

func (r *ChangeRepository) List(ctx context.Context, f change.Filter) ([]*change.Record, int64, error) {
	where, args := buildChangeFilter(f)

	var total int64
	countQuery := "SELECT COUNT(*) FROM permission_changes" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.DatabaseError("Failed to count changes", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := selectChangeColumns + where +
		fmt.Sprintf(" ORDER BY detected_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to list changes", err)
	}
	defer rows.Close()

	records, err := scanChanges(rows)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (r *ChangeRepository) GetByID(ctx context.Context, id int64) (*change.Record, error) {
	row := r.db.QueryRowContext(ctx, selectChangeColumns+" WHERE id = $1", id)

	rec, err := scanChange(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Change record")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get change record", err)
	}

	return rec, nil
}

func (r *ChangeRepository) MarkReviewed(ctx context.Context, ids []int64, reviewedBy, notes string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := make([]string, len(ids))
	args := []interface{}{reviewedBy, now, nullableString(notes)}
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+4)
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`UPDATE permission_changes
		 SET reviewed = TRUE, reviewed_by = $1, reviewed_at = $2, review_notes = $3
		 WHERE id IN (%s) AND NOT reviewed`, strings.Join(placeholders, ", "))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.DatabaseError("Failed to mark changes reviewed", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.DatabaseError("Failed to check review result", err)
	}

	return int(affected), nil
}

func (r *ChangeRepository) MarkNotified(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(
		`UPDATE permission_changes SET notified = TRUE WHERE id IN (%s)`,
		strings.Join(placeholders, ", "))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return errors.DatabaseError("Failed to mark changes notified", err)
	}

	return nil
}

func (r *ChangeRepository) ListUnreviewedSince(ctx context.Context, siteID string, since time.Time) ([]*change.Record, error) {
	query := selectChangeColumns +
		` WHERE site_id = $1 AND NOT reviewed AND detected_at > $2
		  ORDER BY detected_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, siteID, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, errors.DatabaseError("Failed to list unreviewed changes", err)
	}
	defer rows.Close()

	return scanChanges(rows)
}

const selectChangeColumns = `SELECT id, baseline_id, site_id, resource_id, resource_name, resource_type,
       principal_id, principal_name, principal_email, change_type,
       previous_level, current_level, previous_inherited, current_inherited,
       detected_at, reviewed, reviewed_by, reviewed_at, review_notes, notified
FROM permission_changes`

func buildChangeFilter(f change.Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.SiteID != "" {
		add("site_id = $%d", f.SiteID)
	}
	if f.BaselineID != 0 {
		add("baseline_id = $%d", f.BaselineID)
	}
	if f.Reviewed != nil {
		add("reviewed = $%d", *f.Reviewed)
	}
	if f.Since != nil {
		add("detected_at > $%d", f.Since.UTC().Format(time.RFC3339))
	}
	if len(f.Types) > 0 {
		placeholders := make([]string, len(f.Types))
		for i, t := range f.Types {
			args = append(args, string(t))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, fmt.Sprintf("change_type IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanChange(row rowScanner) (*change.Record, error) {
	var rec change.Record
	var changeType, detectedAt string
	var reviewedBy, reviewedAt, reviewNotes sql.NullString

	err := row.Scan(&rec.ID, &rec.BaselineID, &rec.SiteID, &rec.ResourceID, &rec.ResourceName,
		&rec.ResourceType, &rec.PrincipalID, &rec.PrincipalName, &rec.PrincipalEmail,
		&changeType, &rec.PreviousLevel, &rec.CurrentLevel,
		&rec.PreviousInherited, &rec.CurrentInherited, &detectedAt,
		&rec.Reviewed, &reviewedBy, &reviewedAt, &reviewNotes, &rec.Notified)
	if err != nil {
		return nil, err
	}

	rec.ChangeType = change.Type(changeType)
	rec.DetectedAt, _ = time.Parse(time.RFC3339, detectedAt)
	if reviewedBy.Valid {
		rec.ReviewedBy = reviewedBy.String
	}
	if reviewedAt.Valid {
		if t, err := time.Parse(time.RFC3339, reviewedAt.String); err == nil {
			rec.ReviewedAt = &t
		}
	}
	if reviewNotes.Valid {
		rec.ReviewNotes = reviewNotes.String
	}

	return &rec, nil
}

// nullableString maps an empty string to SQL NULL.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanChanges(rows *sql.Rows) ([]*change.Record, error) {
	var records []*change.Record
	for rows.Next() {
		rec, err := scanChange(rows)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan change record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to read change records", err)
	}
	return records, nil
}
