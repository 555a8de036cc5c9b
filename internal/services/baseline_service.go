package services

import (
	"context"

	"github.com/simplyinspect/permwatch/internal/collector"
	"github.com/simplyinspect/permwatch/internal/domain/baseline"
	"github.com/simplyinspect/permwatch/internal/domain/permission"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
)

// BaselineService implements baseline.Service
type BaselineService struct {
	repo   baseline.Repository
	source collector.Source
	logger *logger.Logger
}

// NewBaselineService creates a new baseline service
func NewBaselineService(repo baseline.Repository, source collector.Source, log *logger.Logger) baseline.Service {
	return &BaselineService{
		repo:   repo,
		source: source,
		logger: log,
	}
}

// CaptureBaseline snapshots the site's current permission state
func (s *BaselineService) CaptureBaseline(ctx context.Context, req baseline.CaptureRequest) (*baseline.Baseline, error) {
	entries, err := s.source.CollectPermissions(ctx, req.SiteID)
	if err != nil {
		s.logger.ErrorWithErr(err, "Failed to collect permissions for baseline")
		return nil, err
	}

	if len(entries) == 0 {
		return nil, errors.ValidationFailed(
			"Cannot capture a baseline from an empty permission set", nil)
	}

	b := &baseline.Baseline{
		SiteID:         req.SiteID,
		SiteURL:        req.SiteURL,
		Name:           req.Name,
		Description:    req.Description,
		Entries:        entries,
		CreatedBy:      req.CreatedBy,
		CreatedByEmail: req.CreatedByEmail,
	}

	if _, err := s.repo.Create(ctx, b); err != nil {
		s.logger.ErrorWithErr(err, "Failed to create baseline")
		return nil, err
	}

	if req.Activate {
		if err := s.ActivateBaseline(ctx, b.SiteID, b.ID); err != nil {
			return nil, err
		}
		b.IsActive = true
	}

	s.logger.WithFields(map[string]interface{}{
		"baseline_id": b.ID,
		"site_id":     b.SiteID,
		"entry_count": b.EntryCount,
		"active":      b.IsActive,
	}).Info("Baseline captured")

	return b, nil
}

// GetBaseline retrieves a baseline by ID
func (s *BaselineService) GetBaseline(ctx context.Context, id int64) (*baseline.Baseline, error) {
	return s.repo.GetByID(ctx, id)
}

// GetActiveBaseline retrieves the active baseline for a site
func (s *BaselineService) GetActiveBaseline(ctx context.Context, siteID string) (*baseline.Baseline, error) {
	return s.repo.GetActive(ctx, siteID)
}

// ListBaselines lists baseline metadata for a site
func (s *BaselineService) ListBaselines(ctx context.Context, siteID string, limit, offset int) ([]*baseline.Baseline, int64, error) {
	return s.repo.List(ctx, siteID, limit, offset)
}

// ActivateBaseline makes the given baseline the site's single active
// baseline. A conflict from a concurrent activation is retried once;
// activation is last-writer-wins.
func (s *BaselineService) ActivateBaseline(ctx context.Context, siteID string, id int64) error {
	err := s.repo.Activate(ctx, siteID, id)
	if errors.IsConflict(err) {
		s.logger.WithFields(map[string]interface{}{
			"baseline_id": id,
			"site_id":     siteID,
		}).Warn("Concurrent baseline activation, retrying once")
		err = s.repo.Activate(ctx, siteID, id)
	}
	if err != nil {
		s.logger.ErrorWithErr(err, "Failed to activate baseline")
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"baseline_id": id,
		"site_id":     siteID,
	}).Info("Baseline activated")

	return nil
}

// DeactivateBaseline clears the active flag, leaving the site with no
// active baseline
func (s *BaselineService) DeactivateBaseline(ctx context.Context, siteID string, id int64) error {
	if err := s.repo.Deactivate(ctx, siteID, id); err != nil {
		s.logger.ErrorWithErr(err, "Failed to deactivate baseline")
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"baseline_id": id,
		"site_id":     siteID,
	}).Info("Baseline deactivated")

	return nil
}

// DeleteBaseline removes a baseline
func (s *BaselineService) DeleteBaseline(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.ErrorWithErr(err, "Failed to delete baseline")
		return err
	}

	s.logger.With("baseline_id", id).Info("Baseline deleted")

	return nil
}

// BaselineStatistics computes aggregate statistics for a baseline
func (s *BaselineService) BaselineStatistics(ctx context.Context, id int64) (*permission.Statistics, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := b.Statistics()
	return &stats, nil
}
