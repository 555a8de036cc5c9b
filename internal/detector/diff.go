// Package detector implements the structural comparison between a
// permission baseline and the current permission state of a site.
package detector

import (
	"sort"

	"github.com/simplyinspect/permwatch/internal/domain/change"
	"github.com/simplyinspect/permwatch/internal/domain/permission"
)

// Detector compares permission snapshots. It is stateless and safe for
// concurrent use.
type Detector struct{}

// New creates a new detector
func New() *Detector {
	return &Detector{}
}

// Diff compares a baseline snapshot against current entries and
// classifies every difference. The result is deterministic: records are
// ordered by (resource_id, principal_id) and DetectedAt is left zero
// for the persistence layer to stamp.
func (d *Detector) Diff(baselineID int64, siteID string, baseline, current []permission.Entry) *change.Set {
	base := permission.Index(baseline)
	curr := permission.Index(current)

	set := &change.Set{
		BaselineID: baselineID,
		SiteID:     siteID,
		Summary: change.Summary{
			TotalBaseline: len(base),
			TotalCurrent:  len(curr),
		},
	}

	// A non-empty baseline against an empty current snapshot is more
	// likely a collection outage than a mass revocation; flag it so
	// consumers can treat the removals with suspicion.
	if len(base) > 0 && len(curr) == 0 {
		set.Summary.PossibleCollectionFailure = true
	}

	for key, be := range base {
		ce, exists := curr[key]
		if !exists {
			set.Records = append(set.Records, newRecord(baselineID, siteID, be, change.TypeRemoved, be.PermissionLevel, "", be.Inherited, false))
			set.Summary.RemovedCount++
			continue
		}

		rec, changed := classifyPair(baselineID, siteID, be, ce)
		if !changed {
			set.Summary.UnchangedCount++
			continue
		}

		set.Records = append(set.Records, rec)
		set.Summary.ModifiedCount++
	}

	for key, ce := range curr {
		if _, exists := base[key]; !exists {
			set.Records = append(set.Records, newRecord(baselineID, siteID, ce, change.TypeAdded, "", ce.PermissionLevel, false, ce.Inherited))
			set.Summary.AddedCount++
		}
	}

	sort.Slice(set.Records, func(i, j int) bool {
		a, b := set.Records[i], set.Records[j]
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		return a.PrincipalID < b.PrincipalID
	})

	return set
}

// classifyPair inspects an entry present in both snapshots. A level
// change wins over an inheritance flip when both happen at once: the
// record is classified modified and the flip stays visible through the
// inherited fields.
func classifyPair(baselineID int64, siteID string, base, curr permission.Entry) (change.Record, bool) {
	levelChanged := base.PermissionLevel != curr.PermissionLevel
	inheritanceFlip := base.Inherited != curr.Inherited

	switch {
	case levelChanged:
		return newRecord(baselineID, siteID, curr, change.TypeModified, base.PermissionLevel, curr.PermissionLevel, base.Inherited, curr.Inherited), true
	case inheritanceFlip && base.Inherited:
		return newRecord(baselineID, siteID, curr, change.TypeInheritanceBroken, base.PermissionLevel, curr.PermissionLevel, base.Inherited, curr.Inherited), true
	case inheritanceFlip:
		return newRecord(baselineID, siteID, curr, change.TypeInheritanceRestored, base.PermissionLevel, curr.PermissionLevel, base.Inherited, curr.Inherited), true
	default:
		return change.Record{}, false
	}
}

func newRecord(baselineID int64, siteID string, e permission.Entry, t change.Type, prev, curr string, prevInherited, currInherited bool) change.Record {
	return change.Record{
		BaselineID:        baselineID,
		SiteID:            siteID,
		ResourceID:        e.ResourceID,
		ResourceName:      e.ResourceName,
		ResourceType:      e.ResourceType,
		PrincipalID:       e.PrincipalID,
		PrincipalName:     e.PrincipalName,
		PrincipalEmail:    e.PrincipalEmail,
		ChangeType:        t,
		PreviousLevel:     prev,
		CurrentLevel:      curr,
		PreviousInherited: prevInherited,
		CurrentInherited:  currInherited,
	}
}
