package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/simplyinspect/permwatch/internal/domain/change"
	"github.com/simplyinspect/permwatch/internal/repository/postgres"
	"github.com/simplyinspect/permwatch/internal/testutil"
)

func changeTestEnv(t *testing.T) (change.Repository, int64) {
	t.Helper()

	db := testutil.NewTestDB(t)
	baselineID, err := postgres.NewBaselineRepository(db).Create(context.Background(), testBaseline("site-1", "base"))
	if err != nil {
		t.Fatalf("failed to create baseline: %v", err)
	}
	return postgres.NewChangeRepository(db), baselineID
}

func changeSet(baselineID int64, types ...change.Type) *change.Set {
	set := &change.Set{BaselineID: baselineID, SiteID: "site-1"}
	for i, ct := range types {
		set.Records = append(set.Records, change.Record{
			BaselineID:    baselineID,
			SiteID:        "site-1",
			ResourceID:    "doc-" + string(rune('a'+i)),
			PrincipalID:   "user-" + string(rune('a'+i)),
			ChangeType:    ct,
			PreviousLevel: "Read",
			CurrentLevel:  "Edit",
		})
	}
	return set
}

func TestChangeRepository_PersistSetDeduplicates(t *testing.T) {
	repo, baselineID := changeTestEnv(t)
	ctx := context.Background()

	stored, err := repo.PersistSet(ctx, changeSet(baselineID, change.TypeAdded, change.TypeModified))
	if err != nil {
		t.Fatalf("PersistSet() error = %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored = %d, want 2", stored)
	}

	// Re-running the same comparison must not duplicate open findings
	stored, err = repo.PersistSet(ctx, changeSet(baselineID, change.TypeAdded, change.TypeModified))
	if err != nil {
		t.Fatalf("PersistSet() rerun error = %v", err)
	}
	if stored != 0 {
		t.Errorf("rerun stored = %d, want 0", stored)
	}

	_, total, err := repo.List(ctx, change.Filter{BaselineID: baselineID})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
}

func TestChangeRepository_PersistSetAssignsIDs(t *testing.T) {
	repo, baselineID := changeTestEnv(t)
	ctx := context.Background()

	set := changeSet(baselineID, change.TypeAdded, change.TypeModified)
	set.Records[0].PreviousInherited = true
	if _, err := repo.PersistSet(ctx, set); err != nil {
		t.Fatalf("PersistSet() error = %v", err)
	}

	// The stored records carry their generated IDs back to the caller
	seen := make(map[int64]bool)
	ids := make([]int64, 0, len(set.Records))
	for _, rec := range set.Records {
		if rec.ID == 0 {
			t.Fatalf("record %s/%s has no ID after persistence", rec.ResourceID, rec.PrincipalID)
		}
		if seen[rec.ID] {
			t.Fatalf("duplicate ID %d", rec.ID)
		}
		seen[rec.ID] = true
		ids = append(ids, rec.ID)
		if rec.DetectedAt.IsZero() {
			t.Errorf("record %d has no detection time", rec.ID)
		}
	}

	// The IDs resolve to the right rows, so downstream notification
	// flagging lands on the records it delivered
	if err := repo.MarkNotified(ctx, ids); err != nil {
		t.Fatalf("MarkNotified() error = %v", err)
	}
	for _, id := range ids {
		rec, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID(%d) error = %v", id, err)
		}
		if !rec.Notified {
			t.Errorf("record %d not flagged notified", id)
		}
	}

	// Inheritance state survives the round trip
	rec, err := repo.GetByID(ctx, set.Records[0].ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !rec.PreviousInherited || rec.CurrentInherited {
		t.Errorf("inherited state = (%v, %v), want (true, false)", rec.PreviousInherited, rec.CurrentInherited)
	}
}

func TestChangeRepository_ReviewFreesIdentity(t *testing.T) {
	repo, baselineID := changeTestEnv(t)
	ctx := context.Background()

	set := changeSet(baselineID, change.TypeRemoved)
	if _, err := repo.PersistSet(ctx, set); err != nil {
		t.Fatalf("PersistSet() error = %v", err)
	}

	records, _, err := repo.List(ctx, change.Filter{BaselineID: baselineID})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}

	updated, err := repo.MarkReviewed(ctx, []int64{records[0].ID}, "auditor@example.com", "known cleanup")
	if err != nil {
		t.Fatalf("MarkReviewed() error = %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1", updated)
	}

	rec, err := repo.GetByID(ctx, records[0].ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !rec.Reviewed || rec.ReviewedBy != "auditor@example.com" || rec.ReviewedAt == nil {
		t.Errorf("record not marked reviewed: %+v", rec)
	}
	if rec.ReviewNotes != "known cleanup" {
		t.Errorf("review notes = %q, want the notes stored", rec.ReviewNotes)
	}

	// Reviewing again is a no-op
	updated, err = repo.MarkReviewed(ctx, []int64{records[0].ID}, "auditor@example.com", "")
	if err != nil {
		t.Fatalf("MarkReviewed() second call error = %v", err)
	}
	if updated != 0 {
		t.Errorf("second review updated = %d, want 0", updated)
	}

	// A reviewed finding no longer blocks re-detection of the same identity
	stored, err := repo.PersistSet(ctx, changeSet(baselineID, change.TypeRemoved))
	if err != nil {
		t.Fatalf("PersistSet() after review error = %v", err)
	}
	if stored != 1 {
		t.Errorf("stored after review = %d, want 1", stored)
	}
}

func TestChangeRepository_ListFilters(t *testing.T) {
	repo, baselineID := changeTestEnv(t)
	ctx := context.Background()

	if _, err := repo.PersistSet(ctx, changeSet(baselineID,
		change.TypeAdded, change.TypeRemoved, change.TypeInheritanceBroken)); err != nil {
		t.Fatalf("PersistSet() error = %v", err)
	}

	records, total, err := repo.List(ctx, change.Filter{
		Types: []change.Type{change.TypeAdded, change.TypeRemoved},
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Errorf("type filter returned %d records (total %d), want 2", len(records), total)
	}

	records, _, err = repo.List(ctx, change.Filter{SiteID: "site-other"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("unknown site returned %d records", len(records))
	}

	records, total, err = repo.List(ctx, change.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(records) != 2 {
		t.Errorf("limited page returned %d records, want 2", len(records))
	}
}

func TestChangeRepository_ListUnreviewedSince(t *testing.T) {
	repo, baselineID := changeTestEnv(t)
	ctx := context.Background()

	set := changeSet(baselineID, change.TypeAdded, change.TypeModified)
	if _, err := repo.PersistSet(ctx, set); err != nil {
		t.Fatalf("PersistSet() error = %v", err)
	}

	since := time.Now().UTC().Add(-time.Hour)
	records, err := repo.ListUnreviewedSince(ctx, "site-1", since)
	if err != nil {
		t.Fatalf("ListUnreviewedSince() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	if _, err := repo.MarkReviewed(ctx, []int64{records[0].ID}, "auditor@example.com", ""); err != nil {
		t.Fatalf("MarkReviewed() error = %v", err)
	}

	records, err = repo.ListUnreviewedSince(ctx, "site-1", since)
	if err != nil {
		t.Fatalf("ListUnreviewedSince() after review error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("records after review = %d, want 1", len(records))
	}

	// Window excludes records detected before it
	records, err = repo.ListUnreviewedSince(ctx, "site-1", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListUnreviewedSince() future window error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("future window returned %d records", len(records))
	}
}

func TestChangeRepository_MarkNotified(t *testing.T) {
	repo, baselineID := changeTestEnv(t)
	ctx := context.Background()

	if _, err := repo.PersistSet(ctx, changeSet(baselineID, change.TypeAdded)); err != nil {
		t.Fatalf("PersistSet() error = %v", err)
	}

	records, _, err := repo.List(ctx, change.Filter{BaselineID: baselineID})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if err := repo.MarkNotified(ctx, []int64{records[0].ID}); err != nil {
		t.Fatalf("MarkNotified() error = %v", err)
	}

	rec, err := repo.GetByID(ctx, records[0].ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !rec.Notified {
		t.Error("record not marked notified")
	}
}
