package services

import (
	"context"
	"time"

	"github.com/simplyinspect/permwatch/internal/config"
	"github.com/simplyinspect/permwatch/internal/domain/change"
	"github.com/simplyinspect/permwatch/internal/domain/notification"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
	"github.com/simplyinspect/permwatch/internal/pkg/metrics"
	"github.com/simplyinspect/permwatch/internal/transport"
)

// DispatcherService implements notification.Service: it routes change
// sets to recipients, works the durable queue, and builds digests.
// Delivery is at-least-once.
type DispatcherService struct {
	repo    notification.Repository
	changes change.Repository
	sender  transport.Sender
	cfg     config.NotificationConfig
	logger  *logger.Logger
	now     func() time.Time
}

// NewDispatcherService creates a new dispatcher service
func NewDispatcherService(
	repo notification.Repository,
	changes change.Repository,
	sender transport.Sender,
	cfg config.NotificationConfig,
	log *logger.Logger,
) *DispatcherService {
	return &DispatcherService{
		repo:    repo,
		changes: changes,
		sender:  sender,
		cfg:     cfg,
		logger:  log,
		now:     time.Now,
	}
}

// EnqueueForChanges queues one message per immediate-frequency
// recipient whose rule covers the change set's site. Daily and weekly
// recipients are handled by BuildDigests.
func (s *DispatcherService) EnqueueForChanges(ctx context.Context, set *change.Set) (int, error) {
	if len(set.Records) == 0 {
		return 0, nil
	}

	rules, err := s.repo.RulesForSite(ctx, set.SiteID)
	if err != nil {
		return 0, err
	}

	records := make([]*change.Record, len(set.Records))
	changeIDs := make([]int64, len(set.Records))
	for i := range set.Records {
		records[i] = &set.Records[i]
		changeIDs[i] = set.Records[i].ID
	}

	subject, body, htmlBody, err := renderChangeEmail(set.SiteID, records)
	if err != nil {
		return 0, errors.InternalError("Failed to render change notification", err)
	}

	queued := 0
	for _, rule := range rules {
		if rule.Frequency != notification.FrequencyImmediate {
			continue
		}
		if !rule.Subscribes(notification.TypePermissionChange) {
			continue
		}

		msg := &notification.Message{
			Type:       notification.TypePermissionChange,
			SiteID:     set.SiteID,
			Recipient:  rule.Email,
			Subject:    subject,
			Body:       body,
			HTMLBody:   htmlBody,
			Priority:   3,
			ChangeIDs:  changeIDs,
			RuleID:     rule.ID,
			MaxRetries: s.cfg.MaxRetries,
		}
		if err := s.repo.Enqueue(ctx, msg); err != nil {
			s.logger.ErrorWithErr(err, "Failed to enqueue change notification")
			continue
		}
		queued++
	}

	if queued > 0 {
		s.logger.WithFields(map[string]interface{}{
			"site_id": set.SiteID,
			"changes": len(set.Records),
			"queued":  queued,
		}).Info("Change notifications queued")
	}

	return queued, nil
}

// ProcessQueue reclaims stale claims, then claims due messages and
// attempts delivery. Transient failures back off exponentially until
// max retries; permanent failures finalize immediately.
func (s *DispatcherService) ProcessQueue(ctx context.Context) (sent, failed int, err error) {
	now := s.now()

	reclaimed, err := s.repo.ReclaimStale(ctx, now, s.cfg.StaleTimeout)
	if err != nil {
		return 0, 0, err
	}
	if reclaimed > 0 {
		s.logger.With("count", reclaimed).Warn("Reclaimed stale in-flight notifications")
	}

	msgs, err := s.repo.ClaimPending(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return sent, failed, err
		}

		if done := s.deliver(ctx, msg); done {
			sent++
		} else if msg.Status == notification.StatusFailed {
			failed++
		}
	}

	s.publishQueueDepth(ctx)

	return sent, failed, nil
}

// deliver attempts one delivery of a claimed message and finalizes or
// reschedules it. Returns true when the message was sent.
func (s *DispatcherService) deliver(ctx context.Context, msg *notification.Message) bool {
	err := s.sender.Send(ctx, msg)
	if err == nil {
		sentAt := s.now().UTC()
		if err := s.repo.MarkSent(ctx, msg.ID, sentAt); err != nil {
			s.logger.ErrorWithErr(err, "Failed to finalize sent notification")
			return false
		}
		msg.Status = notification.StatusSent
		metrics.RecordNotificationDelivery("sent")

		if len(msg.ChangeIDs) > 0 {
			if err := s.changes.MarkNotified(ctx, msg.ChangeIDs); err != nil {
				s.logger.ErrorWithErr(err, "Failed to flag notified changes")
			}
		}
		// The rule's window advances only on delivery, so a digest
		// that never leaves the queue does not swallow its changes.
		if msg.RuleID != 0 {
			if err := s.repo.UpdateLastNotified(ctx, msg.RuleID, sentAt); err != nil {
				s.logger.ErrorWithErr(err, "Failed to update recipient last notification time")
			}
		}
		return true
	}

	permanent := errors.IsPermanentDelivery(err)
	exhausted := msg.RetryCount+1 >= msg.MaxRetries

	if permanent || exhausted {
		if markErr := s.repo.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
			s.logger.ErrorWithErr(markErr, "Failed to finalize failed notification")
			return false
		}
		msg.Status = notification.StatusFailed
		metrics.RecordNotificationDelivery("failed")

		s.logger.WithFields(map[string]interface{}{
			"notification_id": msg.ID,
			"recipient":       msg.Recipient,
			"retries":         msg.RetryCount,
			"permanent":       permanent,
		}).WithError(err).Error("Notification delivery failed permanently")
		return false
	}

	retryCount := msg.RetryCount + 1
	nextAttempt := s.now().Add(s.backoff(retryCount))
	if rescheduleErr := s.repo.Reschedule(ctx, msg.ID, retryCount, nextAttempt, err.Error()); rescheduleErr != nil {
		s.logger.ErrorWithErr(rescheduleErr, "Failed to reschedule notification")
		return false
	}
	msg.Status = notification.StatusPending
	msg.RetryCount = retryCount
	metrics.RecordNotificationDelivery("retried")

	s.logger.WithFields(map[string]interface{}{
		"notification_id": msg.ID,
		"retry":           retryCount,
		"next_attempt":    nextAttempt.UTC().Format(time.RFC3339),
	}).WithError(err).Warn("Notification delivery failed, rescheduled")

	return false
}

// backoff computes base * 2^(retry-1), capped.
func (s *DispatcherService) backoff(retry int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= s.cfg.BackoffCap {
			return s.cfg.BackoffCap
		}
	}
	if d > s.cfg.BackoffCap {
		return s.cfg.BackoffCap
	}
	return d
}

// BuildDigests queues one summary per recipient on the given frequency,
// covering unreviewed changes since the recipient was last notified.
// Recipients with nothing new get nothing.
func (s *DispatcherService) BuildDigests(ctx context.Context, freq notification.Frequency) (int, error) {
	if freq != notification.FrequencyDaily && freq != notification.FrequencyWeekly {
		return 0, errors.BadRequest("digests cover daily and weekly frequencies only")
	}

	rules, err := s.repo.ListRulesByFrequency(ctx, freq)
	if err != nil {
		return 0, err
	}

	period := "Daily"
	msgType := notification.TypeDailySummary
	window := 24 * time.Hour
	if freq == notification.FrequencyWeekly {
		period = "Weekly"
		msgType = notification.TypeWeeklySummary
		window = 7 * 24 * time.Hour
	}

	queued := 0
	for _, rule := range rules {
		// Digests summarize permission changes, so they honor the
		// same subscription as immediate notifications.
		if !rule.Subscribes(notification.TypePermissionChange) {
			continue
		}

		// An undelivered digest already covers this recipient's
		// window; queueing another would duplicate it.
		undelivered, err := s.repo.HasUndelivered(ctx, rule.Email, msgType)
		if err != nil {
			s.logger.ErrorWithErr(err, "Failed to check for queued digest")
			continue
		}
		if undelivered {
			continue
		}

		since := s.now().Add(-window)
		if rule.LastNotificationAt != nil && rule.LastNotificationAt.After(since) {
			since = *rule.LastNotificationAt
		}

		records, err := s.collectDigestChanges(ctx, rule, since)
		if err != nil {
			s.logger.ErrorWithErr(err, "Failed to collect digest changes")
			continue
		}
		if len(records) == 0 {
			continue
		}

		subject, body, err := renderDigestEmail(period, records)
		if err != nil {
			s.logger.ErrorWithErr(err, "Failed to render digest")
			continue
		}

		changeIDs := make([]int64, len(records))
		for i, rec := range records {
			changeIDs[i] = rec.ID
		}

		msg := &notification.Message{
			Type:       msgType,
			SiteID:     rule.SiteID,
			Recipient:  rule.Email,
			Subject:    subject,
			Body:       body,
			Priority:   5,
			ChangeIDs:  changeIDs,
			RuleID:     rule.ID,
			MaxRetries: s.cfg.MaxRetries,
		}
		if err := s.repo.Enqueue(ctx, msg); err != nil {
			s.logger.ErrorWithErr(err, "Failed to enqueue digest")
			continue
		}
		queued++
	}

	if queued > 0 {
		s.logger.WithFields(map[string]interface{}{
			"frequency": string(freq),
			"queued":    queued,
		}).Info("Digest notifications queued")
	}

	return queued, nil
}

// collectDigestChanges gathers the unreviewed changes a rule covers. A
// global rule (no site) spans every site with recent changes.
func (s *DispatcherService) collectDigestChanges(ctx context.Context, rule *notification.RecipientRule, since time.Time) ([]*change.Record, error) {
	if rule.SiteID != "" {
		return s.changes.ListUnreviewedSince(ctx, rule.SiteID, since)
	}

	reviewed := false
	records, _, err := s.changes.List(ctx, change.Filter{
		Reviewed: &reviewed,
		Since:    &since,
		Limit:    1000,
	})
	return records, err
}

// UpsertRule creates or updates a recipient rule
func (s *DispatcherService) UpsertRule(ctx context.Context, rule *notification.RecipientRule) error {
	if rule.Frequency == "" {
		rule.Frequency = notification.FrequencyImmediate
	}
	if !rule.Frequency.Valid() {
		return errors.BadRequest("unknown notification frequency: " + string(rule.Frequency))
	}
	if len(rule.NotificationTypes) == 0 {
		rule.NotificationTypes = []string{notification.TypePermissionChange}
	}
	for _, t := range rule.NotificationTypes {
		if !notification.KnownType(t) {
			return errors.BadRequest("unknown notification type: " + t)
		}
	}
	rule.Active = true

	if err := s.repo.UpsertRule(ctx, rule); err != nil {
		s.logger.ErrorWithErr(err, "Failed to upsert recipient rule")
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"email":     rule.Email,
		"site_id":   rule.SiteID,
		"frequency": string(rule.Frequency),
	}).Info("Recipient rule saved")

	return nil
}

// RemoveRule deactivates a recipient rule
func (s *DispatcherService) RemoveRule(ctx context.Context, id int64) error {
	if err := s.repo.DeactivateRule(ctx, id); err != nil {
		s.logger.ErrorWithErr(err, "Failed to deactivate recipient rule")
		return err
	}

	s.logger.With("rule_id", id).Info("Recipient rule deactivated")
	return nil
}

// ListRules lists all recipient rules
func (s *DispatcherService) ListRules(ctx context.Context) ([]*notification.RecipientRule, error) {
	return s.repo.ListRules(ctx)
}

// ListMessages lists queued messages
func (s *DispatcherService) ListMessages(ctx context.Context, status notification.Status, limit, offset int) ([]*notification.Message, int64, error) {
	return s.repo.ListMessages(ctx, status, limit, offset)
}

// QueueDepth returns queue depth per status
func (s *DispatcherService) QueueDepth(ctx context.Context) (map[notification.Status]int64, error) {
	return s.repo.CountByStatus(ctx)
}

// CancelMessage withdraws a pending message before a worker claims it
func (s *DispatcherService) CancelMessage(ctx context.Context, id string) error {
	if err := s.repo.CancelMessage(ctx, id); err != nil {
		return err
	}

	s.logger.With("notification_id", id).Info("Notification cancelled")
	return nil
}

func (s *DispatcherService) publishQueueDepth(ctx context.Context) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return
	}
	for _, status := range []notification.Status{
		notification.StatusPending, notification.StatusSending,
		notification.StatusSent, notification.StatusFailed,
		notification.StatusCancelled,
	} {
		metrics.SetQueueDepth(string(status), float64(counts[status]))
	}
}
