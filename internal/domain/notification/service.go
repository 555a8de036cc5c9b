package notification

import (
	"context"

	"github.com/simplyinspect/permwatch/internal/domain/change"
)

// Service defines the notification dispatch business logic
type Service interface {
	// EnqueueForChanges queues immediate notifications for the
	// recipients whose rules match the change set's site
	EnqueueForChanges(ctx context.Context, set *change.Set) (int, error)

	// ProcessQueue claims due messages and attempts delivery,
	// rescheduling transient failures and finalizing permanent ones.
	// Returns counts of sent and failed messages.
	ProcessQueue(ctx context.Context) (sent, failed int, err error)

	// BuildDigests queues summary notifications for recipients on the
	// given frequency, batching their unreviewed changes since the
	// last notification
	BuildDigests(ctx context.Context, freq Frequency) (int, error)

	// Recipient rules
	UpsertRule(ctx context.Context, rule *RecipientRule) error
	RemoveRule(ctx context.Context, id int64) error
	ListRules(ctx context.Context) ([]*RecipientRule, error)

	// Queue inspection
	ListMessages(ctx context.Context, status Status, limit, offset int) ([]*Message, int64, error)
	QueueDepth(ctx context.Context) (map[Status]int64, error)

	// CancelMessage withdraws a pending message before delivery
	CancelMessage(ctx context.Context, id string) error
}
