// Package testing provides shared database helpers for package tests.
package testing

import (
	"database/sql"
	"testing"

	"go.uber.org/zap"

	"github.com/fitbaus/fitbaus/db"
)

// CreateTestDB creates an in-memory SQLite database with the job archive
// schema applied. Cleanup is registered via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	log := zap.NewNop().Sugar()

	database, err := db.Open(":memory:", log)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.Migrate(database, log); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}
