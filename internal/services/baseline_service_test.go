package services

import (
	"context"
	"sync"
	"testing"

	"github.com/simplyinspect/permwatch/internal/domain/baseline"
	"github.com/simplyinspect/permwatch/internal/domain/permission"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
	"github.com/simplyinspect/permwatch/internal/testutil"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json"})
}

func siteEntries(siteID string, n int) []permission.Entry {
	entries := make([]permission.Entry, n)
	for i := range entries {
		entries[i] = permission.Entry{
			SiteID:          siteID,
			ResourceID:      "doc-" + string(rune('a'+i)),
			PrincipalID:     "user-" + string(rune('a'+i)),
			PermissionLevel: "Read",
			Inherited:       true,
		}
	}
	return entries
}

func TestBaselineService_CaptureBaseline(t *testing.T) {
	mockRepo := testutil.NewMockBaselineRepository()
	source := testutil.NewMockSource()
	source.SetEntries("site-1", siteEntries("site-1", 3))
	service := NewBaselineService(mockRepo, source, testLogger())

	b, err := service.CaptureBaseline(context.Background(), baseline.CaptureRequest{
		SiteID: "site-1",
		Name:   "Q3 approved state",
	})
	if err != nil {
		t.Fatalf("CaptureBaseline() error = %v", err)
	}

	if b.ID == 0 {
		t.Error("expected baseline ID to be assigned")
	}
	if b.EntryCount != 3 {
		t.Errorf("entry count = %d, want 3", b.EntryCount)
	}
	if b.IsActive {
		t.Error("baseline must not be active unless requested")
	}
}

func TestBaselineService_CaptureBaselineEmptySite(t *testing.T) {
	mockRepo := testutil.NewMockBaselineRepository()
	source := testutil.NewMockSource()
	service := NewBaselineService(mockRepo, source, testLogger())

	_, err := service.CaptureBaseline(context.Background(), baseline.CaptureRequest{
		SiteID: "site-empty",
		Name:   "empty",
	})
	if err == nil {
		t.Fatal("expected error capturing baseline from empty permission set")
	}
	appErr, ok := errors.IsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeValidation {
		t.Errorf("error code = %v, want validation error", err)
	}
	if len(mockRepo.Baselines) != 0 {
		t.Error("no baseline must be stored for an empty site")
	}
}

func TestBaselineService_CaptureAndActivate(t *testing.T) {
	mockRepo := testutil.NewMockBaselineRepository()
	source := testutil.NewMockSource()
	source.SetEntries("site-1", siteEntries("site-1", 2))
	service := NewBaselineService(mockRepo, source, testLogger())

	b, err := service.CaptureBaseline(context.Background(), baseline.CaptureRequest{
		SiteID:   "site-1",
		Name:     "initial",
		Activate: true,
	})
	if err != nil {
		t.Fatalf("CaptureBaseline() error = %v", err)
	}
	if !b.IsActive {
		t.Error("baseline should be active")
	}

	active, err := service.GetActiveBaseline(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("GetActiveBaseline() error = %v", err)
	}
	if active.ID != b.ID {
		t.Errorf("active baseline = %d, want %d", active.ID, b.ID)
	}
}

func TestBaselineService_ActivateReplacesActive(t *testing.T) {
	mockRepo := testutil.NewMockBaselineRepository()
	source := testutil.NewMockSource()
	source.SetEntries("site-1", siteEntries("site-1", 2))
	service := NewBaselineService(mockRepo, source, testLogger())

	first, _ := service.CaptureBaseline(context.Background(), baseline.CaptureRequest{
		SiteID: "site-1", Name: "first", Activate: true,
	})
	second, _ := service.CaptureBaseline(context.Background(), baseline.CaptureRequest{
		SiteID: "site-1", Name: "second",
	})

	if err := service.ActivateBaseline(context.Background(), "site-1", second.ID); err != nil {
		t.Fatalf("ActivateBaseline() error = %v", err)
	}

	if count := mockRepo.ActiveCount("site-1"); count != 1 {
		t.Fatalf("active baselines = %d, want exactly 1", count)
	}
	active, _ := service.GetActiveBaseline(context.Background(), "site-1")
	if active.ID != second.ID {
		t.Errorf("active baseline = %d, want %d", active.ID, second.ID)
	}
	_ = first
}

func TestBaselineService_ActivateRetriesOnConflict(t *testing.T) {
	mockRepo := testutil.NewMockBaselineRepository()
	source := testutil.NewMockSource()
	source.SetEntries("site-1", siteEntries("site-1", 1))
	service := NewBaselineService(mockRepo, source, testLogger())

	b, _ := service.CaptureBaseline(context.Background(), baseline.CaptureRequest{
		SiteID: "site-1", Name: "contested",
	})

	mockRepo.ConflictOnce = true
	if err := service.ActivateBaseline(context.Background(), "site-1", b.ID); err != nil {
		t.Fatalf("ActivateBaseline() should succeed after one retry, got %v", err)
	}
	if count := mockRepo.ActiveCount("site-1"); count != 1 {
		t.Errorf("active baselines = %d, want 1", count)
	}
}

func TestBaselineService_ConcurrentActivation(t *testing.T) {
	mockRepo := testutil.NewMockBaselineRepository()
	source := testutil.NewMockSource()
	source.SetEntries("site-1", siteEntries("site-1", 1))
	service := NewBaselineService(mockRepo, source, testLogger())

	var ids []int64
	for i := 0; i < 5; i++ {
		b, err := service.CaptureBaseline(context.Background(), baseline.CaptureRequest{
			SiteID: "site-1", Name: "candidate",
		})
		if err != nil {
			t.Fatalf("CaptureBaseline() error = %v", err)
		}
		ids = append(ids, b.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = service.ActivateBaseline(context.Background(), "site-1", id)
		}(id)
	}
	wg.Wait()

	if count := mockRepo.ActiveCount("site-1"); count != 1 {
		t.Fatalf("active baselines after concurrent activation = %d, want exactly 1", count)
	}
}

func TestBaselineService_Statistics(t *testing.T) {
	mockRepo := testutil.NewMockBaselineRepository()
	source := testutil.NewMockSource()
	source.SetEntries("site-1", []permission.Entry{
		{SiteID: "site-1", ResourceID: "doc-1", PrincipalID: "u1", PrincipalType: permission.PrincipalUser, PermissionLevel: "Read", Inherited: true},
		{SiteID: "site-1", ResourceID: "doc-1", PrincipalID: "g1", PrincipalType: permission.PrincipalGroup, PermissionLevel: "Edit", Inherited: false},
		{SiteID: "site-1", ResourceID: "doc-2", PrincipalID: "u1", PrincipalType: permission.PrincipalUser, PermissionLevel: "Read", Inherited: true},
	})
	service := NewBaselineService(mockRepo, source, testLogger())

	b, _ := service.CaptureBaseline(context.Background(), baseline.CaptureRequest{
		SiteID: "site-1", Name: "stats",
	})

	stats, err := service.BaselineStatistics(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("BaselineStatistics() error = %v", err)
	}

	if stats.TotalEntries != 3 {
		t.Errorf("total entries = %d, want 3", stats.TotalEntries)
	}
	if stats.UniqueResources != 2 {
		t.Errorf("unique resources = %d, want 2", stats.UniqueResources)
	}
	if stats.ByLevel["Read"] != 2 || stats.ByLevel["Edit"] != 1 {
		t.Errorf("by level = %v", stats.ByLevel)
	}
	if stats.InheritedCount != 2 || stats.UniquePermCount != 1 {
		t.Errorf("inherited = %d, unique = %d", stats.InheritedCount, stats.UniquePermCount)
	}
}

func TestBaselineService_DeactivateLeavesNoActive(t *testing.T) {
	mockRepo := testutil.NewMockBaselineRepository()
	source := testutil.NewMockSource()
	source.SetEntries("site-1", siteEntries("site-1", 1))
	service := NewBaselineService(mockRepo, source, testLogger())

	b, _ := service.CaptureBaseline(context.Background(), baseline.CaptureRequest{
		SiteID: "site-1", Name: "only", Activate: true,
	})

	if err := service.DeactivateBaseline(context.Background(), "site-1", b.ID); err != nil {
		t.Fatalf("DeactivateBaseline() error = %v", err)
	}

	_, err := service.GetActiveBaseline(context.Background(), "site-1")
	if !errors.IsNotFound(err) {
		t.Errorf("expected not-found after deactivation, got %v", err)
	}
}
