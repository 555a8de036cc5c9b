package services

import (
	"context"
	"time"

	"github.com/simplyinspect/permwatch/internal/collector"
	"github.com/simplyinspect/permwatch/internal/detector"
	"github.com/simplyinspect/permwatch/internal/domain/baseline"
	"github.com/simplyinspect/permwatch/internal/domain/change"
	"github.com/simplyinspect/permwatch/internal/domain/notification"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
	"github.com/simplyinspect/permwatch/internal/pkg/metrics"
)

// Detection run statuses
const (
	RunChangesDetected = "changes_detected"
	RunNoChanges       = "no_changes"
	RunNoBaseline      = "no_baseline"
	RunError           = "error"
)

// SiteRunResult reports the outcome of one per-site detection run
type SiteRunResult struct {
	SiteID       string          `json:"site_id"`
	Status       string          `json:"status"`
	Summary      *change.Summary `json:"summary,omitempty"`
	StoredCount  int             `json:"stored_count"`
	QueuedCount  int             `json:"queued_count"`
	Error        string          `json:"error,omitempty"`
	Duration     time.Duration   `json:"-"`
	DurationMS   int64           `json:"duration_ms"`
}

// RunReport aggregates a full detection sweep
type RunReport struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Sites      []SiteRunResult `json:"sites"`
}

// DetectionService runs baseline comparisons and records the outcome
type DetectionService struct {
	baselines  baseline.Repository
	changes    change.Repository
	cache      change.CacheRepository
	source     collector.Source
	dispatcher notification.Service
	detector   *detector.Detector
	cacheAge   time.Duration
	logger     *logger.Logger
}

// NewDetectionService creates a new detection service
func NewDetectionService(
	baselines baseline.Repository,
	changes change.Repository,
	cache change.CacheRepository,
	source collector.Source,
	dispatcher notification.Service,
	cacheAge time.Duration,
	log *logger.Logger,
) *DetectionService {
	return &DetectionService{
		baselines:  baselines,
		changes:    changes,
		cache:      cache,
		source:     source,
		dispatcher: dispatcher,
		detector:   detector.New(),
		cacheAge:   cacheAge,
		logger:     log,
	}
}

// DetectSite compares a site's active baseline against its current
// permission state, persists new change records, and queues immediate
// notifications.
func (s *DetectionService) DetectSite(ctx context.Context, siteID string) SiteRunResult {
	start := time.Now()
	result := SiteRunResult{SiteID: siteID}

	defer func() {
		result.Duration = time.Since(start)
		result.DurationMS = result.Duration.Milliseconds()
		metrics.RecordDetectionRun(result.Status, result.Duration)
	}()

	b, err := s.baselines.GetActive(ctx, siteID)
	if errors.IsNotFound(err) {
		result.Status = RunNoBaseline
		return result
	}
	if err != nil {
		s.logger.ErrorWithErr(err, "Failed to load active baseline")
		result.Status = RunError
		result.Error = err.Error()
		return result
	}

	current, err := s.source.CollectPermissions(ctx, siteID)
	if err != nil {
		s.logger.ErrorWithErr(err, "Failed to collect current permissions")
		result.Status = RunError
		result.Error = err.Error()
		return result
	}

	set := s.detector.Diff(b.ID, siteID, b.Entries, current)
	result.Summary = &set.Summary
	set.ComparedAt = time.Now().UTC()

	if set.Summary.PossibleCollectionFailure {
		s.logger.With("site_id", siteID).
			Warn("Current permission set is empty against a non-empty baseline; possible collection failure")
	}

	if err := s.cache.Save(ctx, &change.CacheEntry{
		BaselineID: b.ID,
		SiteID:     siteID,
		Summary:    set.Summary,
		ComputedAt: set.ComparedAt,
	}); err != nil {
		// Cache trouble must not fail the run
		s.logger.ErrorWithErr(err, "Failed to cache comparison summary")
	}

	if set.Summary.ChangeCount() == 0 {
		result.Status = RunNoChanges
		return result
	}

	stored, err := s.changes.PersistSet(ctx, set)
	if err != nil {
		s.logger.ErrorWithErr(err, "Failed to persist change records")
		result.Status = RunError
		result.Error = err.Error()
		return result
	}
	result.StoredCount = stored

	for _, t := range change.Types {
		count := 0
		for _, rec := range set.Records {
			if rec.ChangeType == t {
				count++
			}
		}
		if count > 0 {
			metrics.RecordChangeDetected(string(t), count)
		}
	}

	if stored > 0 && s.dispatcher != nil {
		queued, err := s.dispatcher.EnqueueForChanges(ctx, set)
		if err != nil {
			// Notification trouble must not fail the detection run;
			// records are already durable
			s.logger.ErrorWithErr(err, "Failed to queue notifications for changes")
		}
		result.QueuedCount = queued
	}

	result.Status = RunChangesDetected

	s.logger.WithFields(map[string]interface{}{
		"site_id":      siteID,
		"baseline_id":  b.ID,
		"changes":      set.Summary.ChangeCount(),
		"stored":       stored,
		"notifications": result.QueuedCount,
	}).Info("Detection run completed")

	return result
}

// DetectAll runs detection for every site with an active baseline. A
// failure on one site does not stop the sweep; cancellation does.
func (s *DetectionService) DetectAll(ctx context.Context) (*RunReport, error) {
	report := &RunReport{StartedAt: time.Now().UTC()}

	sites, err := s.baselines.ListActiveSites(ctx)
	if err != nil {
		return nil, err
	}

	for _, siteID := range sites {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = time.Now().UTC()
			return report, err
		}
		report.Sites = append(report.Sites, s.DetectSite(ctx, siteID))
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}

// CompareBaseline returns the comparison summary for a baseline,
// serving a cached summary when fresh enough. It never persists change
// records; use DetectSite for that.
func (s *DetectionService) CompareBaseline(ctx context.Context, baselineID int64, useCache bool) (*change.Summary, error) {
	if useCache {
		if entry, err := s.cache.Get(ctx, baselineID, s.cacheAge); err == nil {
			return &entry.Summary, nil
		}
	}

	b, err := s.baselines.GetByID(ctx, baselineID)
	if err != nil {
		return nil, err
	}

	current, err := s.source.CollectPermissions(ctx, b.SiteID)
	if err != nil {
		return nil, err
	}

	set := s.detector.Diff(b.ID, b.SiteID, b.Entries, current)

	if err := s.cache.Save(ctx, &change.CacheEntry{
		BaselineID: b.ID,
		SiteID:     b.SiteID,
		Summary:    set.Summary,
		ComputedAt: time.Now().UTC(),
	}); err != nil {
		s.logger.ErrorWithErr(err, "Failed to cache comparison summary")
	}

	return &set.Summary, nil
}
