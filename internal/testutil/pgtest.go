// Package testutil holds shared test helpers.
package testutil

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// appTables lists every table the indexer owns, in truncation order.
var appTables = []string{
	"agents",
	"feedback",
	"agent_stats",
	"activity",
	"payments",
	"payee_lookup",
	"agent_volume",
}

// PGTest opens the database named by POSTGRES_URL and truncates all
// indexer tables so each test starts clean. Tests calling it are
// skipped when POSTGRES_URL is unset, which keeps the default
// `go test ./...` run database-free.
func PGTest(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, table := range appTables {
		if _, err := db.Exec("TRUNCATE TABLE " + table + " CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return db
}
