package client

import "time"

// PermissionEntry represents one principal's permission on a resource
type PermissionEntry struct {
	SiteID           string `json:"site_id"`
	ResourceID       string `json:"resource_id"`
	ResourceName     string `json:"resource_name,omitempty"`
	ResourceType     string `json:"resource_type,omitempty"` // site, list, folder, item
	PrincipalID      string `json:"principal_id"`
	PrincipalName    string `json:"principal_name,omitempty"`
	PrincipalEmail   string `json:"principal_email,omitempty"`
	PrincipalType    string `json:"principal_type,omitempty"` // user, group
	PermissionLevel  string `json:"permission_level"`
	Inherited        bool   `json:"inherited"`
	ParentResourceID string `json:"parent_resource_id,omitempty"`
}

// Baseline represents a captured permission baseline
type Baseline struct {
	ID             int64             `json:"id"`
	SiteID         string            `json:"site_id"`
	SiteURL        string            `json:"site_url,omitempty"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Entries        []PermissionEntry `json:"entries,omitempty"`
	EntryCount     int               `json:"entry_count"`
	CreatedBy      string            `json:"created_by,omitempty"`
	CreatedByEmail string            `json:"created_by_email,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	IsActive       bool              `json:"is_active"`
}

// BaselineStatistics aggregates a baseline's permission entries
type BaselineStatistics struct {
	TotalEntries    int            `json:"total_entries"`
	UniqueResources int            `json:"unique_resources"`
	UniquePrincipal int            `json:"unique_principals"`
	ByLevel         map[string]int `json:"by_level"`
	ByResourceType  map[string]int `json:"by_resource_type"`
	ByPrincipalType map[string]int `json:"by_principal_type"`
	InheritedCount  int            `json:"inherited_count"`
	UniquePermCount int            `json:"unique_perm_count"`
}

// ChangeRecord represents a detected permission change
type ChangeRecord struct {
	ID             int64      `json:"id"`
	BaselineID     int64      `json:"baseline_id"`
	SiteID         string     `json:"site_id"`
	ResourceID     string     `json:"resource_id"`
	ResourceName   string     `json:"resource_name,omitempty"`
	ResourceType   string     `json:"resource_type,omitempty"`
	PrincipalID    string     `json:"principal_id"`
	PrincipalName  string     `json:"principal_name,omitempty"`
	PrincipalEmail string     `json:"principal_email,omitempty"`
	ChangeType     string     `json:"change_type"` // added, removed, modified, inheritance_broken, inheritance_restored
	PreviousLevel  string     `json:"previous_level,omitempty"`
	CurrentLevel   string     `json:"current_level,omitempty"`

	// Inheritance state on both sides of the comparison
	PreviousInherited bool `json:"previous_inherited"`
	CurrentInherited  bool `json:"current_inherited"`

	DetectedAt  time.Time  `json:"detected_at"`
	Reviewed    bool       `json:"reviewed"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty"`
	Notified    bool       `json:"notified"`
}

// ChangeSummary summarizes one baseline comparison
type ChangeSummary struct {
	TotalBaseline             int  `json:"total_baseline"`
	TotalCurrent              int  `json:"total_current"`
	AddedCount                int  `json:"added_count"`
	RemovedCount              int  `json:"removed_count"`
	ModifiedCount             int  `json:"modified_count"`
	UnchangedCount            int  `json:"unchanged_count"`
	PossibleCollectionFailure bool `json:"possible_collection_failure,omitempty"`
}

// SiteRunResult is the outcome of a detection run for one site
type SiteRunResult struct {
	SiteID      string         `json:"site_id"`
	Status      string         `json:"status"` // changes_detected, no_changes, no_baseline, error
	Summary     *ChangeSummary `json:"summary,omitempty"`
	StoredCount int            `json:"stored_count"`
	QueuedCount int            `json:"queued_count"`
	Error       string         `json:"error,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
}

// RunReport is the outcome of a detection sweep over all sites
type RunReport struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Sites      []SiteRunResult `json:"sites"`
}

// RecipientRule represents a notification recipient
type RecipientRule struct {
	ID                 int64      `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name,omitempty"`
	SiteID             string     `json:"site_id,omitempty"` // empty means all sites
	Frequency          string     `json:"frequency"`         // immediate, daily, weekly
	NotificationTypes  []string   `json:"notification_types,omitempty"`
	Active             bool       `json:"active"`
	LastNotificationAt *time.Time `json:"last_notification_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Message represents a queued notification message
type Message struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	SiteID       string     `json:"site_id"`
	Recipient    string     `json:"recipient"`
	Subject      string     `json:"subject"`
	Priority     int        `json:"priority"`
	ChangeIDs    []int64    `json:"change_ids,omitempty"`
	RuleID       int64      `json:"rule_id,omitempty"`
	Status       string     `json:"status"` // pending, sending, sent, failed, cancelled
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	LastError    string     `json:"last_error,omitempty"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ListOptions contains common options for list operations
type ListOptions struct {
	Page     int `json:"page,omitempty"`      // Page number (1-based)
	PageSize int `json:"page_size,omitempty"` // Items per page
}

// PageInfo carries pagination metadata from list responses
type PageInfo struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}
