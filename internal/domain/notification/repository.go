package notification

import (
	"context"
	"time"
)

// Repository defines the notification queue and recipient rule data access
type Repository interface {
	// Queue
	Enqueue(ctx context.Context, msg *Message) error

	// ClaimPending atomically transitions up to limit due pending
	// messages to sending and returns them. A message claimed by one
	// worker is never returned to another.
	ClaimPending(ctx context.Context, now time.Time, limit int) ([]*Message, error)

	// MarkSent finalizes a delivered message
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// Reschedule returns a claimed message to pending with an
	// incremented retry count and a new due time
	Reschedule(ctx context.Context, id string, retryCount int, nextAttempt time.Time, lastError string) error

	// MarkFailed finalizes a message that will not be retried
	MarkFailed(ctx context.Context, id string, lastError string) error

	// ReclaimStale returns messages stuck in sending longer than the
	// timeout back to pending. Returns the number reclaimed.
	ReclaimStale(ctx context.Context, now time.Time, timeout time.Duration) (int, error)

	// CancelMessage withdraws a pending message from the queue. Only
	// pending messages can be cancelled; anything else is a conflict.
	CancelMessage(ctx context.Context, id string) error

	// HasUndelivered reports whether the recipient already has a
	// pending or sending message of the given type
	HasUndelivered(ctx context.Context, recipient, msgType string) (bool, error)

	// GetMessage retrieves a queued message by ID
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListMessages retrieves queued messages, optionally filtered by
	// status, newest first
	ListMessages(ctx context.Context, status Status, limit, offset int) ([]*Message, int64, error)

	// CountByStatus returns queue depth per status
	CountByStatus(ctx context.Context) (map[Status]int64, error)

	// Recipient rules
	UpsertRule(ctx context.Context, rule *RecipientRule) error
	DeactivateRule(ctx context.Context, id int64) error
	ListRules(ctx context.Context) ([]*RecipientRule, error)
	RulesForSite(ctx context.Context, siteID string) ([]*RecipientRule, error)
	ListRulesByFrequency(ctx context.Context, freq Frequency) ([]*RecipientRule, error)
	UpdateLastNotified(ctx context.Context, id int64, at time.Time) error
}
