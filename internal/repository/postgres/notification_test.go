package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/simplyinspect/permwatch/internal/domain/notification"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/repository/postgres"
	"github.com/simplyinspect/permwatch/internal/testutil"
)

func notificationTestEnv(t *testing.T) notification.Repository {
	t.Helper()
	return postgres.NewNotificationRepository(testutil.NewTestDB(t))
}

func queuedMessage(recipient string, due time.Time) *notification.Message {
	return &notification.Message{
		Type:         notification.TypePermissionChange,
		SiteID:       "site-1",
		Recipient:    recipient,
		Subject:      "Permission changes on site-1",
		Body:         "2 changes detected",
		Priority:     3,
		ChangeIDs:    []int64{1, 2},
		RuleID:       7,
		MaxRetries:   3,
		ScheduledFor: due,
	}
}

func TestNotificationRepository_ClaimIsExclusive(t *testing.T) {
	repo := notificationTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	msg := queuedMessage("ops@example.com", now.Add(-time.Minute))
	if err := repo.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	claimed, err := repo.ClaimPending(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != msg.ID {
		t.Fatalf("claimed %d messages, want the enqueued one", len(claimed))
	}
	if claimed[0].Status != notification.StatusSending || claimed[0].ClaimedAt == nil {
		t.Errorf("claimed message = %+v, want sending with a claim time", claimed[0])
	}
	if claimed[0].RuleID != 7 {
		t.Errorf("rule ID = %d, want 7", claimed[0].RuleID)
	}

	// A second worker arriving while the message is in flight gets
	// nothing: the claim moved it out of pending.
	again, err := repo.ClaimPending(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimPending() second worker error = %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second claim returned %d messages, want 0", len(again))
	}

	// Finalizing from the sending state succeeds exactly once
	if err := repo.MarkSent(ctx, msg.ID, now); err != nil {
		t.Fatalf("MarkSent() error = %v", err)
	}
	if err := repo.MarkSent(ctx, msg.ID, now); !errors.IsNotFound(err) {
		t.Errorf("second MarkSent() error = %v, want not found", err)
	}
}

func TestNotificationRepository_ClaimSkipsUndueAndClaimed(t *testing.T) {
	repo := notificationTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := queuedMessage("due@example.com", now.Add(-time.Minute))
	future := queuedMessage("later@example.com", now.Add(time.Hour))
	if err := repo.Enqueue(ctx, due); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := repo.Enqueue(ctx, future); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	claimed, err := repo.ClaimPending(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if len(claimed) != 1 || claimed[0].Recipient != "due@example.com" {
		t.Fatalf("claimed = %+v, want only the due message", claimed)
	}
}

func TestNotificationRepository_RescheduleReturnsToPending(t *testing.T) {
	repo := notificationTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	msg := queuedMessage("flaky@example.com", now.Add(-time.Minute))
	if err := repo.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := repo.ClaimPending(ctx, now, 1); err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}

	next := now.Add(2 * time.Minute)
	if err := repo.Reschedule(ctx, msg.ID, 1, next, "connection refused"); err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}

	// Not due until the new attempt time
	claimed, err := repo.ClaimPending(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("claimed %d messages before the retry is due", len(claimed))
	}

	claimed, err = repo.ClaimPending(ctx, next.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("ClaimPending() after backoff error = %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed = %d, want the rescheduled message", len(claimed))
	}
	if claimed[0].RetryCount != 1 || claimed[0].LastError != "connection refused" {
		t.Errorf("rescheduled message = %+v", claimed[0])
	}
}

func TestNotificationRepository_ReclaimStale(t *testing.T) {
	repo := notificationTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	msg := queuedMessage("ops@example.com", now.Add(-time.Minute))
	if err := repo.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := repo.ClaimPending(ctx, now, 1); err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}

	// Fresh claims stay put
	reclaimed, err := repo.ReclaimStale(ctx, now.Add(time.Minute), 15*time.Minute)
	if err != nil {
		t.Fatalf("ReclaimStale() error = %v", err)
	}
	if reclaimed != 0 {
		t.Errorf("reclaimed = %d, want 0 inside the window", reclaimed)
	}

	reclaimed, err = repo.ReclaimStale(ctx, now.Add(time.Hour), 15*time.Minute)
	if err != nil {
		t.Fatalf("ReclaimStale() past timeout error = %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}

	got, err := repo.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if got.Status != notification.StatusPending || got.ClaimedAt != nil {
		t.Errorf("reclaimed message = %+v, want pending and unclaimed", got)
	}
}

func TestNotificationRepository_CancelPendingOnly(t *testing.T) {
	repo := notificationTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	msg := queuedMessage("ops@example.com", now.Add(-time.Minute))
	if err := repo.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := repo.CancelMessage(ctx, msg.ID); err != nil {
		t.Fatalf("CancelMessage() error = %v", err)
	}
	got, err := repo.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if got.Status != notification.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}

	// Cancelled messages are invisible to workers
	claimed, err := repo.ClaimPending(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("claimed %d cancelled messages", len(claimed))
	}

	if err := repo.CancelMessage(ctx, msg.ID); !errors.IsConflict(err) {
		t.Errorf("second cancel error = %v, want conflict", err)
	}
	if err := repo.CancelMessage(ctx, "no-such-id"); !errors.IsNotFound(err) {
		t.Errorf("cancel of unknown message error = %v, want not found", err)
	}
}

func TestNotificationRepository_HasUndelivered(t *testing.T) {
	repo := notificationTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	undelivered, err := repo.HasUndelivered(ctx, "daily@example.com", notification.TypeDailySummary)
	if err != nil {
		t.Fatalf("HasUndelivered() error = %v", err)
	}
	if undelivered {
		t.Error("empty queue reported an undelivered message")
	}

	msg := queuedMessage("daily@example.com", now.Add(-time.Minute))
	msg.Type = notification.TypeDailySummary
	if err := repo.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	undelivered, err = repo.HasUndelivered(ctx, "daily@example.com", notification.TypeDailySummary)
	if err != nil {
		t.Fatalf("HasUndelivered() error = %v", err)
	}
	if !undelivered {
		t.Error("pending digest not reported")
	}

	// Other recipients and types are unaffected
	if got, _ := repo.HasUndelivered(ctx, "other@example.com", notification.TypeDailySummary); got {
		t.Error("wrong recipient reported undelivered")
	}
	if got, _ := repo.HasUndelivered(ctx, "daily@example.com", notification.TypePermissionChange); got {
		t.Error("wrong type reported undelivered")
	}

	// Delivery clears the flag
	if _, err := repo.ClaimPending(ctx, now, 1); err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if err := repo.MarkSent(ctx, msg.ID, now); err != nil {
		t.Fatalf("MarkSent() error = %v", err)
	}
	if got, _ := repo.HasUndelivered(ctx, "daily@example.com", notification.TypeDailySummary); got {
		t.Error("sent digest still reported undelivered")
	}
}

func TestNotificationRepository_RuleRoundTrip(t *testing.T) {
	repo := notificationTestEnv(t)
	ctx := context.Background()

	rule := &notification.RecipientRule{
		Email:             "audit@example.com",
		Name:              "Audit team",
		SiteID:            "site-1",
		Frequency:         notification.FrequencyDaily,
		NotificationTypes: []string{notification.TypePermissionChange, notification.TypeDailySummary},
		Active:            true,
	}
	if err := repo.UpsertRule(ctx, rule); err != nil {
		t.Fatalf("UpsertRule() error = %v", err)
	}
	if rule.ID == 0 {
		t.Fatal("UpsertRule() did not assign an ID")
	}

	rules, err := repo.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(rules))
	}
	got := rules[0]
	if got.Frequency != notification.FrequencyDaily {
		t.Errorf("frequency = %s", got.Frequency)
	}
	if len(got.NotificationTypes) != 2 || !got.Subscribes(notification.TypeDailySummary) {
		t.Errorf("notification types = %v", got.NotificationTypes)
	}

	// Re-upserting the same (site, email) updates in place
	rule.Frequency = notification.FrequencyWeekly
	rule.NotificationTypes = []string{notification.TypePermissionChange}
	if err := repo.UpsertRule(ctx, rule); err != nil {
		t.Fatalf("UpsertRule() update error = %v", err)
	}
	rules, _ = repo.ListRules(ctx)
	if len(rules) != 1 {
		t.Fatalf("rules after update = %d, want 1", len(rules))
	}
	if rules[0].Frequency != notification.FrequencyWeekly || len(rules[0].NotificationTypes) != 1 {
		t.Errorf("updated rule = %+v", rules[0])
	}

	if err := repo.UpdateLastNotified(ctx, rule.ID, time.Now().UTC()); err != nil {
		t.Fatalf("UpdateLastNotified() error = %v", err)
	}
	rules, _ = repo.ListRules(ctx)
	if rules[0].LastNotificationAt == nil {
		t.Error("last notification time not persisted")
	}
}
