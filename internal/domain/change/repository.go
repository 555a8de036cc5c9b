package change

import (
	"context"
	"time"
)

// Repository defines the interface for change record data access
type Repository interface {
	// PersistSet stores all records of a comparison in one
	// transaction, skipping records that duplicate an unreviewed
	// record with the same identity. Returns the number stored.
	PersistSet(ctx context.Context, set *Set) (int, error)

	// List retrieves change records matching the filter, newest first
	List(ctx context.Context, f Filter) ([]*Record, int64, error)

	// GetByID retrieves a single change record
	GetByID(ctx context.Context, id int64) (*Record, error)

	// MarkReviewed marks records as reviewed by the given reviewer,
	// storing the optional notes on each record
	MarkReviewed(ctx context.Context, ids []int64, reviewedBy, notes string) (int, error)

	// MarkNotified flags records as having been included in a
	// delivered notification
	MarkNotified(ctx context.Context, ids []int64) error

	// ListUnreviewedSince returns unreviewed records for a site
	// detected after the given time
	ListUnreviewedSince(ctx context.Context, siteID string, since time.Time) ([]*Record, error)
}

// CacheRepository memoizes comparison summaries per baseline
type CacheRepository interface {
	// Save stores or replaces the cached summary for a baseline
	Save(ctx context.Context, entry *CacheEntry) error

	// Get retrieves a cached summary no older than maxAge, or a
	// not-found error
	Get(ctx context.Context, baselineID int64, maxAge time.Duration) (*CacheEntry, error)

	// Invalidate drops the cached summary for a baseline
	Invalidate(ctx context.Context, baselineID int64) error
}
