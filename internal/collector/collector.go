// Package collector abstracts the source of current SharePoint
// permission state. Collection itself happens out of process; this
// package reads what the collection pipeline has landed.
package collector

import (
	"context"

	"github.com/simplyinspect/permwatch/internal/domain/permission"
)

// Source yields the current permission entries for a site
type Source interface {
	CollectPermissions(ctx context.Context, siteID string) ([]permission.Entry, error)
}
