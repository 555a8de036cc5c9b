package services

import (
	"context"
	"testing"
	"time"

	"github.com/simplyinspect/permwatch/internal/domain/change"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/testutil"
)

func seedChanges(t *testing.T, repo *testutil.MockChangeRepository, baselineID int64, siteID string, types ...change.Type) []int64 {
	t.Helper()

	set := &change.Set{BaselineID: baselineID, SiteID: siteID}
	for i, ct := range types {
		set.Records = append(set.Records, change.Record{
			BaselineID:  baselineID,
			SiteID:      siteID,
			ResourceID:  "doc-" + string(rune('a'+i)),
			PrincipalID: "user-" + string(rune('a'+i)),
			ChangeType:  ct,
		})
	}
	if _, err := repo.PersistSet(context.Background(), set); err != nil {
		t.Fatalf("PersistSet() error = %v", err)
	}

	ids := make([]int64, len(set.Records))
	for i := range set.Records {
		ids[i] = set.Records[i].ID
	}
	return ids
}

func TestChangeService_ListChangesFilters(t *testing.T) {
	repo := testutil.NewMockChangeRepository()
	cache := testutil.NewMockCacheRepository()
	service := NewChangeService(repo, cache, testLogger())

	seedChanges(t, repo, 1, "site-1", change.TypeAdded, change.TypeRemoved, change.TypeModified)
	seedChanges(t, repo, 2, "site-2", change.TypeInheritanceBroken)

	records, total, err := service.ListChanges(context.Background(), change.Filter{SiteID: "site-1"})
	if err != nil {
		t.Fatalf("ListChanges() error = %v", err)
	}
	if total != 3 || len(records) != 3 {
		t.Fatalf("site filter returned %d records (total %d), want 3", len(records), total)
	}

	records, _, err = service.ListChanges(context.Background(), change.Filter{
		Types: []change.Type{change.TypeRemoved},
	})
	if err != nil {
		t.Fatalf("ListChanges() error = %v", err)
	}
	if len(records) != 1 || records[0].ChangeType != change.TypeRemoved {
		t.Errorf("type filter returned %d records, want 1 removal", len(records))
	}
}

func TestChangeService_ListChangesRejectsUnknownType(t *testing.T) {
	service := NewChangeService(testutil.NewMockChangeRepository(), testutil.NewMockCacheRepository(), testLogger())

	_, _, err := service.ListChanges(context.Background(), change.Filter{
		Types: []change.Type{change.Type("granted")},
	})
	if err == nil {
		t.Fatal("expected error for unknown change type")
	}
	appErr, ok := errors.IsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeBadRequest {
		t.Errorf("error = %v, want bad request", err)
	}
}

func TestChangeService_MarkReviewed(t *testing.T) {
	repo := testutil.NewMockChangeRepository()
	cache := testutil.NewMockCacheRepository()
	service := NewChangeService(repo, cache, testLogger())

	ids := seedChanges(t, repo, 7, "site-1", change.TypeAdded, change.TypeRemoved)
	cache.Entries[7] = &change.CacheEntry{BaselineID: 7, ComputedAt: time.Now().UTC()}

	updated, err := service.MarkReviewed(context.Background(), ids, "auditor@example.com", "expected after the reorg")
	if err != nil {
		t.Fatalf("MarkReviewed() error = %v", err)
	}
	if updated != 2 {
		t.Errorf("updated = %d, want 2", updated)
	}

	rec, err := service.GetChange(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("GetChange() error = %v", err)
	}
	if !rec.Reviewed || rec.ReviewedBy != "auditor@example.com" || rec.ReviewedAt == nil {
		t.Errorf("record not marked reviewed: %+v", rec)
	}
	if rec.ReviewNotes != "expected after the reorg" {
		t.Errorf("review notes = %q", rec.ReviewNotes)
	}

	// Reviewing invalidates the baseline's comparison cache
	if _, ok := cache.Entries[7]; ok {
		t.Error("expected comparison cache for baseline 7 to be invalidated")
	}

	// A second pass over the same IDs updates nothing
	updated, err = service.MarkReviewed(context.Background(), ids, "auditor@example.com", "")
	if err != nil {
		t.Fatalf("MarkReviewed() second pass error = %v", err)
	}
	if updated != 0 {
		t.Errorf("second pass updated = %d, want 0", updated)
	}
}

func TestChangeService_MarkReviewedValidation(t *testing.T) {
	service := NewChangeService(testutil.NewMockChangeRepository(), testutil.NewMockCacheRepository(), testLogger())

	if _, err := service.MarkReviewed(context.Background(), nil, "auditor@example.com", ""); err == nil {
		t.Error("expected error for empty ID list")
	}
	if _, err := service.MarkReviewed(context.Background(), []int64{1}, "", ""); err == nil {
		t.Error("expected error for missing reviewer")
	}
}

func TestChangeService_MarkReviewedSkipsUnknownIDs(t *testing.T) {
	repo := testutil.NewMockChangeRepository()
	service := NewChangeService(repo, testutil.NewMockCacheRepository(), testLogger())

	ids := seedChanges(t, repo, 3, "site-1", change.TypeModified)

	updated, err := service.MarkReviewed(context.Background(), append(ids, 9999), "auditor@example.com", "")
	if err != nil {
		t.Fatalf("MarkReviewed() error = %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1", updated)
	}
}
