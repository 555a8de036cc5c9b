package baseline

import (
	"time"

	"github.com/simplyinspect/permwatch/internal/domain/permission"
)

// Baseline represents an approved snapshot of a site's permission state
type Baseline struct {
	ID             int64              `json:"id"`
	SiteID         string             `json:"site_id"`
	SiteURL        string             `json:"site_url,omitempty"`
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Entries        []permission.Entry `json:"entries,omitempty"`
	EntryCount     int                `json:"entry_count"`
	CreatedBy      string             `json:"created_by,omitempty"`
	CreatedByEmail string             `json:"created_by_email,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	IsActive       bool               `json:"is_active"`
}

// Statistics returns aggregate statistics over the baseline's entries
func (b *Baseline) Statistics() permission.Statistics {
	return permission.Summarize(b.Entries)
}
