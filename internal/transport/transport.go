// Package transport delivers notification messages to recipients.
package transport

import (
	"context"

	"github.com/simplyinspect/permwatch/internal/domain/notification"
)

// Sender delivers a single notification message. Implementations
// classify failures as transient or permanent via the errors package so
// the dispatcher can decide whether to retry.
type Sender interface {
	Send(ctx context.Context, msg *notification.Message) error
}
