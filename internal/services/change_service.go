package services

import (
	"context"

	"github.com/simplyinspect/permwatch/internal/domain/change"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
)

// ChangeService exposes the change ledger
type ChangeService struct {
	repo   change.Repository
	cache  change.CacheRepository
	logger *logger.Logger
}

// NewChangeService creates a new change service
func NewChangeService(repo change.Repository, cache change.CacheRepository, log *logger.Logger) *ChangeService {
	return &ChangeService{
		repo:   repo,
		cache:  cache,
		logger: log,
	}
}

// ListChanges retrieves change records matching the filter
func (s *ChangeService) ListChanges(ctx context.Context, f change.Filter) ([]*change.Record, int64, error) {
	for _, t := range f.Types {
		if !t.Valid() {
			return nil, 0, errors.BadRequest("unknown change type: " + string(t))
		}
	}
	return s.repo.List(ctx, f)
}

// GetChange retrieves a single change record
func (s *ChangeService) GetChange(ctx context.Context, id int64) (*change.Record, error) {
	return s.repo.GetByID(ctx, id)
}

// MarkReviewed marks change records as reviewed. Reviewing frees the
// record's identity for future detections, so the comparison cache for
// the affected baselines is dropped.
func (s *ChangeService) MarkReviewed(ctx context.Context, ids []int64, reviewedBy, notes string) (int, error) {
	if len(ids) == 0 {
		return 0, errors.BadRequest("no change IDs given")
	}
	if reviewedBy == "" {
		return 0, errors.BadRequest("reviewer is required")
	}

	baselineIDs := make(map[int64]struct{})
	for _, id := range ids {
		rec, err := s.repo.GetByID(ctx, id)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		baselineIDs[rec.BaselineID] = struct{}{}
	}

	updated, err := s.repo.MarkReviewed(ctx, ids, reviewedBy, notes)
	if err != nil {
		s.logger.ErrorWithErr(err, "Failed to mark changes reviewed")
		return 0, err
	}

	for baselineID := range baselineIDs {
		if err := s.cache.Invalidate(ctx, baselineID); err != nil {
			s.logger.ErrorWithErr(err, "Failed to invalidate comparison cache")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"requested": len(ids),
		"updated":   updated,
		"reviewer":  reviewedBy,
	}).Info("Changes marked reviewed")

	return updated, nil
}
