package postgres

import (
	"context"
	"database/sql"

	"github.com/simplyinspect/permwatch/internal/collector"
	"github.com/simplyinspect/permwatch/internal/domain/permission"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
)

// PermissionSource reads current permission state from the
// sharepoint_permissions table, which the external collection pipeline
// keeps up to date.
type PermissionSource struct {
	db *sql.DB
}

func NewPermissionSource(db *sql.DB) collector.Source {
	return &PermissionSource{db: db}
}

func (s *PermissionSource) CollectPermissions(ctx context.Context, siteID string) ([]permission.Entry, error) {
	query := `SELECT site_id, resource_id, resource_name, resource_type,
	                 principal_id, principal_name, principal_email, principal_type,
	                 permission_level, inherited, parent_resource_id
	          FROM sharepoint_permissions
	          WHERE site_id = $1
	          ORDER BY resource_id, principal_id`

	rows, err := s.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, errors.DatabaseError("Failed to read current permissions", err)
	}
	defer rows.Close()

	var entries []permission.Entry
	for rows.Next() {
		var e permission.Entry
		var parent sql.NullString
		err := rows.Scan(&e.SiteID, &e.ResourceID, &e.ResourceName, &e.ResourceType,
			&e.PrincipalID, &e.PrincipalName, &e.PrincipalEmail, &e.PrincipalType,
			&e.PermissionLevel, &e.Inherited, &parent)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan permission entry", err)
		}
		if parent.Valid {
			e.ParentResourceID = parent.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to read permission entries", err)
	}

	return entries, nil
}
