package notification

import "time"

// Status of a queued notification
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Frequency controls how often a recipient is notified
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
)

// Valid reports whether f is a known frequency
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// Notification types
const (
	TypePermissionChange = "permission_change"
	TypeDailySummary     = "daily_summary"
	TypeWeeklySummary    = "weekly_summary"
)

// KnownType reports whether t is a notification type this system emits
func KnownType(t string) bool {
	switch t {
	case TypePermissionChange, TypeDailySummary, TypeWeeklySummary:
		return true
	}
	return false
}

// Message is a queued notification awaiting delivery
type Message struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	SiteID       string     `json:"site_id"`
	Recipient    string     `json:"recipient"`
	Subject      string     `json:"subject"`
	Body         string     `json:"body"`
	HTMLBody     string     `json:"html_body,omitempty"`
	Priority     int        `json:"priority"` // 1 (highest) to 10
	ChangeIDs    []int64    `json:"change_ids,omitempty"`
	RuleID       int64      `json:"rule_id,omitempty"` // recipient rule that produced the message, 0 for ad hoc sends
	Status       Status     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	LastError    string     `json:"last_error,omitempty"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// RecipientRule routes detected changes to an email address
type RecipientRule struct {
	ID                 int64      `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name,omitempty"`
	SiteID             string     `json:"site_id,omitempty"` // empty means all sites
	Frequency          Frequency  `json:"frequency"`
	NotificationTypes  []string   `json:"notification_types"`
	Active             bool       `json:"active"`
	LastNotificationAt *time.Time `json:"last_notification_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// AppliesTo reports whether the rule covers the given site
func (r *RecipientRule) AppliesTo(siteID string) bool {
	return r.Active && (r.SiteID == "" || r.SiteID == siteID)
}

// Subscribes reports whether the rule opted into the given
// notification type
func (r *RecipientRule) Subscribes(t string) bool {
	for _, nt := range r.NotificationTypes {
		if nt == t {
			return true
		}
	}
	return false
}
