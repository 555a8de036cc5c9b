package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/simplyinspect/permwatch/internal/repository/postgres"
	"github.com/simplyinspect/permwatch/migrations"
)

// NewTestDB creates an in-memory SQLite database with the full schema
// applied
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fsys, err := migrations.ForDriver("sqlite")
	if err != nil {
		t.Fatalf("Failed to load migrations: %v", err)
	}
	if err := postgres.RunMigrations(db, fsys); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return db
}
