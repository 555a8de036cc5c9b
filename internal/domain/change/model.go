package change

import "time"

// Type classifies a detected permission change
type Type string

const (
	TypeAdded               Type = "added"
	TypeRemoved             Type = "removed"
	TypeModified            Type = "modified"
	TypeInheritanceBroken   Type = "inheritance_broken"
	TypeInheritanceRestored Type = "inheritance_restored"
)

// Types lists all change classifications
var Types = []Type{
	TypeAdded,
	TypeRemoved,
	TypeModified,
	TypeInheritanceBroken,
	TypeInheritanceRestored,
}

// Valid reports whether t is a known change type
func (t Type) Valid() bool {
	switch t {
	case TypeAdded, TypeRemoved, TypeModified, TypeInheritanceBroken, TypeInheritanceRestored:
		return true
	}
	return false
}

// Record represents one detected difference between a baseline and the
// current permission state of a site
type Record struct {
	ID             int64     `json:"id"`
	BaselineID     int64     `json:"baseline_id"`
	SiteID         string    `json:"site_id"`
	ResourceID     string    `json:"resource_id"`
	ResourceName   string    `json:"resource_name,omitempty"`
	ResourceType   string    `json:"resource_type,omitempty"`
	PrincipalID    string    `json:"principal_id"`
	PrincipalName  string    `json:"principal_name,omitempty"`
	PrincipalEmail string    `json:"principal_email,omitempty"`
	ChangeType     Type      `json:"change_type"`
	PreviousLevel  string    `json:"previous_level,omitempty"`
	CurrentLevel   string    `json:"current_level,omitempty"`
	// Inheritance state on both sides of the comparison. A modified
	// record that coincided with an inheritance flip carries the flip
	// here rather than in its classification.
	PreviousInherited bool       `json:"previous_inherited"`
	CurrentInherited  bool       `json:"current_inherited"`
	DetectedAt        time.Time  `json:"detected_at"`
	Reviewed          bool       `json:"reviewed"`
	ReviewedBy        string     `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes       string     `json:"review_notes,omitempty"`
	Notified          bool       `json:"notified"`
}

// Summary aggregates the outcome of one baseline comparison
type Summary struct {
	TotalBaseline            int  `json:"total_baseline"`
	TotalCurrent             int  `json:"total_current"`
	AddedCount               int  `json:"added_count"`
	RemovedCount             int  `json:"removed_count"`
	ModifiedCount            int  `json:"modified_count"`
	UnchangedCount           int  `json:"unchanged_count"`
	PossibleCollectionFailure bool `json:"possible_collection_failure,omitempty"`
}

// ChangeCount returns the total number of detected changes
func (s Summary) ChangeCount() int {
	return s.AddedCount + s.RemovedCount + s.ModifiedCount
}

// Set is the full result of comparing a baseline against current state
type Set struct {
	BaselineID int64    `json:"baseline_id"`
	SiteID     string   `json:"site_id"`
	Records    []Record `json:"records"`
	Summary    Summary  `json:"summary"`
	ComparedAt time.Time `json:"compared_at"`
}

// Filter narrows change record queries
type Filter struct {
	SiteID     string
	BaselineID int64
	Types      []Type
	Reviewed   *bool
	Since      *time.Time
	Limit      int
	Offset     int
}

// CacheEntry is a memoized comparison summary for a baseline
type CacheEntry struct {
	BaselineID int64     `json:"baseline_id"`
	SiteID     string    `json:"site_id"`
	Summary    Summary   `json:"summary"`
	ComputedAt time.Time `json:"computed_at"`
}
