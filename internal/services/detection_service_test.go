package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/simplyinspect/permwatch/internal/domain/baseline"
	"github.com/simplyinspect/permwatch/internal/domain/permission"
	"github.com/simplyinspect/permwatch/internal/testutil"
)

type detectionFixture struct {
	baselines *testutil.MockBaselineRepository
	changes   *testutil.MockChangeRepository
	cache     *testutil.MockCacheRepository
	source    *testutil.MockSource
	service   *DetectionService
}

func newDetectionFixture(t *testing.T) *detectionFixture {
	t.Helper()
	f := &detectionFixture{
		baselines: testutil.NewMockBaselineRepository(),
		changes:   testutil.NewMockChangeRepository(),
		cache:     testutil.NewMockCacheRepository(),
		source:    testutil.NewMockSource(),
	}
	f.service = NewDetectionService(
		f.baselines, f.changes, f.cache, f.source, nil, time.Hour, testLogger())
	return f
}

// seedBaseline stores an active baseline holding the given entries
func (f *detectionFixture) seedBaseline(t *testing.T, siteID string, entries []permission.Entry) int64 {
	t.Helper()
	b := &baseline.Baseline{SiteID: siteID, Name: "test", Entries: entries, IsActive: true}
	id, err := f.baselines.Create(context.Background(), b)
	if err != nil {
		t.Fatalf("seed baseline: %v", err)
	}
	if err := f.baselines.Activate(context.Background(), siteID, id); err != nil {
		t.Fatalf("activate baseline: %v", err)
	}
	return id
}

func TestDetectionService_DetectSiteNoBaseline(t *testing.T) {
	f := newDetectionFixture(t)

	result := f.service.DetectSite(context.Background(), "site-unknown")

	if result.Status != RunNoBaseline {
		t.Errorf("status = %s, want %s", result.Status, RunNoBaseline)
	}
}

func TestDetectionService_DetectSiteNoChanges(t *testing.T) {
	f := newDetectionFixture(t)
	entries := siteEntries("site-1", 3)
	f.seedBaseline(t, "site-1", entries)
	f.source.SetEntries("site-1", entries)

	result := f.service.DetectSite(context.Background(), "site-1")

	if result.Status != RunNoChanges {
		t.Errorf("status = %s, want %s", result.Status, RunNoChanges)
	}
	if len(f.changes.Records) != 0 {
		t.Errorf("stored records = %d, want 0", len(f.changes.Records))
	}
}

func TestDetectionService_DetectSiteChanges(t *testing.T) {
	f := newDetectionFixture(t)
	baseEntries := []permission.Entry{
		{SiteID: "site-1", ResourceID: "doc-1", PrincipalID: "u1", PermissionLevel: "Read", Inherited: true},
		{SiteID: "site-1", ResourceID: "doc-2", PrincipalID: "u2", PermissionLevel: "Edit", Inherited: true},
	}
	f.seedBaseline(t, "site-1", baseEntries)
	f.source.SetEntries("site-1", []permission.Entry{
		// doc-1/u1 escalated, doc-2/u2 removed, doc-3/u3 added
		{SiteID: "site-1", ResourceID: "doc-1", PrincipalID: "u1", PermissionLevel: "Full Control", Inherited: true},
		{SiteID: "site-1", ResourceID: "doc-3", PrincipalID: "u3", PermissionLevel: "Read", Inherited: true},
	})

	result := f.service.DetectSite(context.Background(), "site-1")

	if result.Status != RunChangesDetected {
		t.Fatalf("status = %s, want %s", result.Status, RunChangesDetected)
	}
	if result.StoredCount != 3 {
		t.Errorf("stored = %d, want 3", result.StoredCount)
	}
	if result.Summary.AddedCount != 1 || result.Summary.RemovedCount != 1 || result.Summary.ModifiedCount != 1 {
		t.Errorf("summary = %+v", result.Summary)
	}
}

func TestDetectionService_RerunDoesNotDuplicate(t *testing.T) {
	f := newDetectionFixture(t)
	f.seedBaseline(t, "site-1", []permission.Entry{
		{SiteID: "site-1", ResourceID: "doc-1", PrincipalID: "u1", PermissionLevel: "Read", Inherited: true},
	})
	f.source.SetEntries("site-1", []permission.Entry{
		{SiteID: "site-1", ResourceID: "doc-1", PrincipalID: "u1", PermissionLevel: "Edit", Inherited: true},
	})

	first := f.service.DetectSite(context.Background(), "site-1")
	second := f.service.DetectSite(context.Background(), "site-1")

	if first.StoredCount != 1 {
		t.Errorf("first run stored = %d, want 1", first.StoredCount)
	}
	if second.StoredCount != 0 {
		t.Errorf("second run stored = %d, want 0 (unreviewed duplicate)", second.StoredCount)
	}
	if len(f.changes.Records) != 1 {
		t.Errorf("total records = %d, want 1", len(f.changes.Records))
	}
}

func TestDetectionService_ReviewedChangeRecordsAgain(t *testing.T) {
	f := newDetectionFixture(t)
	f.seedBaseline(t, "site-1", []permission.Entry{
		{SiteID: "site-1", ResourceID: "doc-1", PrincipalID: "u1", PermissionLevel: "Read", Inherited: true},
	})
	f.source.SetEntries("site-1", []permission.Entry{
		{SiteID: "site-1", ResourceID: "doc-1", PrincipalID: "u1", PermissionLevel: "Edit", Inherited: true},
	})

	f.service.DetectSite(context.Background(), "site-1")
	if _, err := f.changes.MarkReviewed(context.Background(), []int64{1}, "auditor", ""); err != nil {
		t.Fatalf("MarkReviewed() error = %v", err)
	}

	// The finding persists, so a re-run records it again as a fresh
	// unreviewed change
	result := f.service.DetectSite(context.Background(), "site-1")
	if result.StoredCount != 1 {
		t.Errorf("stored after review = %d, want 1", result.StoredCount)
	}
}

func TestDetectionService_DetectAllIsolatesSiteFailures(t *testing.T) {
	f := newDetectionFixture(t)
	good := []permission.Entry{
		{SiteID: "site-a", ResourceID: "doc-1", PrincipalID: "u1", PermissionLevel: "Read", Inherited: true},
	}
	f.seedBaseline(t, "site-a", good)
	f.source.SetEntries("site-a", good)

	// site-b has an active baseline whose snapshot decodes fine but the
	// collection source errors for it
	f.seedBaseline(t, "site-b", good)

	brokenSource := &failingSource{inner: f.source, failFor: "site-b"}
	f.service = NewDetectionService(
		f.baselines, f.changes, f.cache, brokenSource, nil, time.Hour, testLogger())

	report, err := f.service.DetectAll(context.Background())
	if err != nil {
		t.Fatalf("DetectAll() error = %v", err)
	}

	if len(report.Sites) != 2 {
		t.Fatalf("sites in report = %d, want 2", len(report.Sites))
	}
	byStatus := make(map[string]int)
	for _, s := range report.Sites {
		byStatus[s.Status]++
	}
	if byStatus[RunError] != 1 {
		t.Errorf("error runs = %d, want 1", byStatus[RunError])
	}
	if byStatus[RunNoChanges] != 1 {
		t.Errorf("clean runs = %d, want 1 (failure must not stop the sweep)", byStatus[RunNoChanges])
	}
}

func TestDetectionService_DetectAllHonorsCancellation(t *testing.T) {
	f := newDetectionFixture(t)
	entries := siteEntries("site-a", 1)
	f.seedBaseline(t, "site-a", entries)
	f.seedBaseline(t, "site-b", entries)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.service.DetectAll(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
	if len(report.Sites) != 0 {
		t.Errorf("sites processed after cancellation = %d, want 0", len(report.Sites))
	}
}

func TestDetectionService_EmptyCurrentFlagsSuspicion(t *testing.T) {
	f := newDetectionFixture(t)
	f.seedBaseline(t, "site-1", siteEntries("site-1", 3))
	// source returns nothing for site-1

	result := f.service.DetectSite(context.Background(), "site-1")

	if result.Status != RunChangesDetected {
		t.Fatalf("status = %s, want %s", result.Status, RunChangesDetected)
	}
	if !result.Summary.PossibleCollectionFailure {
		t.Error("expected possible collection failure flag")
	}
	if result.Summary.RemovedCount != 3 {
		t.Errorf("removed = %d, want 3", result.Summary.RemovedCount)
	}
}

func TestDetectionService_CompareBaselineUsesCache(t *testing.T) {
	f := newDetectionFixture(t)
	entries := siteEntries("site-1", 2)
	id := f.seedBaseline(t, "site-1", entries)
	f.source.SetEntries("site-1", entries)

	first, err := f.service.CompareBaseline(context.Background(), id, true)
	if err != nil {
		t.Fatalf("CompareBaseline() error = %v", err)
	}
	if first.UnchangedCount != 2 {
		t.Errorf("unchanged = %d, want 2", first.UnchangedCount)
	}

	// Mutate live state; a cached compare must not see it
	f.source.SetEntries("site-1", nil)

	cached, err := f.service.CompareBaseline(context.Background(), id, true)
	if err != nil {
		t.Fatalf("CompareBaseline() cached error = %v", err)
	}
	if cached.UnchangedCount != 2 {
		t.Errorf("cached unchanged = %d, want 2", cached.UnchangedCount)
	}

	fresh, err := f.service.CompareBaseline(context.Background(), id, false)
	if err != nil {
		t.Fatalf("CompareBaseline() fresh error = %v", err)
	}
	if fresh.RemovedCount != 2 {
		t.Errorf("fresh removed = %d, want 2", fresh.RemovedCount)
	}
}

// failingSource wraps a source and errors for one site
type failingSource struct {
	inner   *testutil.MockSource
	failFor string
}

func (s *failingSource) CollectPermissions(ctx context.Context, siteID string) ([]permission.Entry, error) {
	if siteID == s.failFor {
		return nil, fmt.Errorf("graph api unavailable")
	}
	return s.inner.CollectPermissions(ctx, siteID)
}
