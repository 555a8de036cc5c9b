package permission

// Entry represents a single permission assignment observed on a
// SharePoint resource: one principal holding one permission level.
type Entry struct {
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

// Key identifies an entry within a snapshot. A snapshot holds at most
// one entry per key.
type Key struct {
	ResourceID  string
	PrincipalID string
}

// Key returns the identity of this entry
func (e Entry) Key() Key {
	return Key{ResourceID: e.ResourceID, PrincipalID: e.PrincipalID}
}

// Resource types
const (
	ResourceSite   = "site"
	ResourceList   = "list"
	ResourceFolder = "folder"
	ResourceItem   = "item"
)

// Principal types
const (
	PrincipalUser  = "user"
	PrincipalGroup = "group"
)

// Statistics summarizes the composition of a permission snapshot
type Statistics struct {
	TotalEntries    int            `json:"total_entries"`
	UniqueResources int            `json:"unique_resources"`
	UniquePrincipal int            `json:"unique_principals"`
	ByLevel         map[string]int `json:"by_level"`
	ByResourceType  map[string]int `json:"by_resource_type"`
	ByPrincipalType map[string]int `json:"by_principal_type"`
	InheritedCount  int            `json:"inherited_count"`
	UniquePermCount int            `json:"unique_perm_count"`
}

// Summarize computes aggregate statistics for a set of entries
func Summarize(entries []Entry) Statistics {
	stats := Statistics{
		ByLevel:         make(map[string]int),
		ByResourceType:  make(map[string]int),
		ByPrincipalType: make(map[string]int),
	}

	resources := make(map[string]struct{})
	principals := make(map[string]struct{})

	for _, e := range entries {
		stats.TotalEntries++
		resources[e.ResourceID] = struct{}{}
		principals[e.PrincipalID] = struct{}{}
		stats.ByLevel[e.PermissionLevel]++
		if e.ResourceType != "" {
			stats.ByResourceType[e.ResourceType]++
		}
		if e.PrincipalType != "" {
			stats.ByPrincipalType[e.PrincipalType]++
		}
		if e.Inherited {
			stats.InheritedCount++
		} else {
			stats.UniquePermCount++
		}
	}

	stats.UniqueResources = len(resources)
	stats.UniquePrincipal = len(principals)

	return stats
}

// Index builds a key-to-entry map from a slice of entries. Later
// entries win on duplicate keys.
func Index(entries []Entry) map[Key]Entry {
	m := make(map[Key]Entry, len(entries))
	for _, e := range entries {
		m[e.Key()] = e
	}
	return m
}
