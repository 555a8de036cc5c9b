package baseline

import "context"

// Repository defines the interface for baseline data access
type Repository interface {
	// Create stores a new baseline snapshot and returns its ID
	Create(ctx context.Context, b *Baseline) (int64, error)

	// GetByID retrieves a baseline including its entries
	GetByID(ctx context.Context, id int64) (*Baseline, error)

	// GetActive retrieves the active baseline for a site, or a
	// not-found error when the site has none
	GetActive(ctx context.Context, siteID string) (*Baseline, error)

	// List retrieves baseline metadata for a site, newest first,
	// without entries
	List(ctx context.Context, siteID string, limit, offset int) ([]*Baseline, int64, error)

	// Activate marks the given baseline active and deactivates any
	// other baseline for the site, atomically
	Activate(ctx context.Context, siteID string, id int64) error

	// Deactivate clears the active flag on a baseline
	Deactivate(ctx context.Context, siteID string, id int64) error

	// Delete removes a baseline. Deleting the active baseline leaves
	// the site with no active baseline.
	Delete(ctx context.Context, id int64) error

	// ListActiveSites returns the site IDs that currently have an
	// active baseline
	ListActiveSites(ctx context.Context) ([]string, error)
}
