package baseline

import (
	"context"

	"github.com/simplyinspect/permwatch/internal/domain/permission"
)

// Service defines the business logic for baseline management
type Service interface {
	// CaptureBaseline collects the site's current permissions and
	// stores them as a new baseline snapshot
	CaptureBaseline(ctx context.Context, req CaptureRequest) (*Baseline, error)

	// GetBaseline retrieves a baseline by ID
	GetBaseline(ctx context.Context, id int64) (*Baseline, error)

	// GetActiveBaseline retrieves the active baseline for a site
	GetActiveBaseline(ctx context.Context, siteID string) (*Baseline, error)

	// ListBaselines lists baseline metadata for a site
	ListBaselines(ctx context.Context, siteID string, limit, offset int) ([]*Baseline, int64, error)

	// ActivateBaseline makes the given baseline the site's single
	// active baseline
	ActivateBaseline(ctx context.Context, siteID string, id int64) error

	// DeactivateBaseline clears the active flag on a baseline
	DeactivateBaseline(ctx context.Context, siteID string, id int64) error

	// DeleteBaseline removes a baseline
	DeleteBaseline(ctx context.Context, id int64) error

	// BaselineStatistics computes aggregate statistics for a baseline
	BaselineStatistics(ctx context.Context, id int64) (*permission.Statistics, error)
}

// CaptureRequest describes a baseline capture
type CaptureRequest struct {
	SiteID         string `json:"site_id" validate:"required"`
	SiteURL        string `json:"site_url,omitempty" validate:"omitempty,url"`
	Name           string `json:"name" validate:"required,max=255"`
	Description    string `json:"description,omitempty"`
	CreatedBy      string `json:"created_by,omitempty"`
	CreatedByEmail string `json:"created_by_email,omitempty" validate:"omitempty,email"`
	Activate       bool   `json:"activate"`
}
