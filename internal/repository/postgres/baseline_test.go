package postgres_test

import (
	"context"
	"testing"

	"github.com/simplyinspect/permwatch/internal/domain/baseline"
	"github.com/simplyinspect/permwatch/internal/domain/permission"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/repository/postgres"
	"github.com/simplyinspect/permwatch/internal/testutil"
)

func testBaseline(siteID, name string) *baseline.Baseline {
	return &baseline.Baseline{
		SiteID: siteID,
		Name:   name,
		Entries: []permission.Entry{
			{
				SiteID:          siteID,
				ResourceID:      "doc-1",
				PrincipalID:     "user-1",
				PermissionLevel: "Read",
				Inherited:       true,
			},
			{
				SiteID:          siteID,
				ResourceID:      "doc-2",
				PrincipalID:     "user-2",
				PermissionLevel: "Edit",
				Inherited:       false,
			},
		},
	}
}

func TestBaselineRepository_CreateAndGet(t *testing.T) {
	repo := postgres.NewBaselineRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	b := testBaseline("site-1", "Q3 approved state")
	id, err := repo.Create(ctx, b)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id == 0 {
		t.Fatal("Create() did not assign an ID")
	}
	if b.EntryCount != 2 {
		t.Errorf("entry count = %d, want 2", b.EntryCount)
	}

	got, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.SiteID != "site-1" || got.Name != "Q3 approved state" {
		t.Errorf("GetByID() = %+v", got)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(got.Entries))
	}
	if got.Entries[0].PermissionLevel != "Read" || got.Entries[1].Inherited {
		t.Errorf("entries not preserved: %+v", got.Entries)
	}

	_, err = repo.GetByID(ctx, 9999)
	if !errors.IsNotFound(err) {
		t.Errorf("GetByID(9999) error = %v, want not found", err)
	}
}

func TestBaselineRepository_ActivateSwitchesActive(t *testing.T) {
	repo := postgres.NewBaselineRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	first := testBaseline("site-1", "first")
	firstID, err := repo.Create(ctx, first)
	if err != nil {
		t.Fatalf("Create(first) error = %v", err)
	}
	second := testBaseline("site-1", "second")
	secondID, err := repo.Create(ctx, second)
	if err != nil {
		t.Fatalf("Create(second) error = %v", err)
	}

	if _, err := repo.GetActive(ctx, "site-1"); !errors.IsNotFound(err) {
		t.Fatalf("GetActive() before activation error = %v, want not found", err)
	}

	if err := repo.Activate(ctx, "site-1", firstID); err != nil {
		t.Fatalf("Activate(first) error = %v", err)
	}
	if err := repo.Activate(ctx, "site-1", secondID); err != nil {
		t.Fatalf("Activate(second) error = %v", err)
	}

	active, err := repo.GetActive(ctx, "site-1")
	if err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}
	if active.ID != secondID {
		t.Errorf("active baseline = %d, want %d", active.ID, secondID)
	}

	old, err := repo.GetByID(ctx, firstID)
	if err != nil {
		t.Fatalf("GetByID(first) error = %v", err)
	}
	if old.IsActive {
		t.Error("first baseline still active after switching")
	}

	sites, err := repo.ListActiveSites(ctx)
	if err != nil {
		t.Fatalf("ListActiveSites() error = %v", err)
	}
	if len(sites) != 1 || sites[0] != "site-1" {
		t.Errorf("active sites = %v, want [site-1]", sites)
	}
}

func TestBaselineRepository_ActivateUnknownBaseline(t *testing.T) {
	repo := postgres.NewBaselineRepository(testutil.NewTestDB(t))

	err := repo.Activate(context.Background(), "site-1", 42)
	if !errors.IsNotFound(err) {
		t.Errorf("Activate() error = %v, want not found", err)
	}
}

func TestBaselineRepository_ListOmitsSnapshots(t *testing.T) {
	repo := postgres.NewBaselineRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := repo.Create(ctx, testBaseline("site-1", name)); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}
	if _, err := repo.Create(ctx, testBaseline("site-2", "other")); err != nil {
		t.Fatalf("Create(other) error = %v", err)
	}

	baselines, total, err := repo.List(ctx, "site-1", 2, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(baselines) != 2 {
		t.Fatalf("page size = %d, want 2", len(baselines))
	}
	for _, b := range baselines {
		if len(b.Entries) != 0 {
			t.Errorf("List() returned snapshot entries for baseline %d", b.ID)
		}
		if b.EntryCount != 2 {
			t.Errorf("entry count = %d, want 2", b.EntryCount)
		}
	}
}

func TestBaselineRepository_Delete(t *testing.T) {
	repo := postgres.NewBaselineRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, testBaseline("site-1", "doomed"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, id); !errors.IsNotFound(err) {
		t.Errorf("GetByID() after delete error = %v, want not found", err)
	}
	if err := repo.Delete(ctx, id); !errors.IsNotFound(err) {
		t.Errorf("second Delete() error = %v, want not found", err)
	}
}
