package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// TestDatabaseURLEnv names the variable holding the Postgres URL tests run
// against.
const TestDatabaseURLEnv = "BINAS_TEST_DATABASE_URL"

// TestingT is an interface for testing compatibility.
type TestingT interface {
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	FailNow()
	Cleanup(func())
}

// SetupTestDatabase creates a test database with an isolated schema. The test
// is skipped when BINAS_TEST_DATABASE_URL is unset.
func SetupTestDatabase(t TestingT) *sql.DB {
	var connURL = os.Getenv(TestDatabaseURLEnv)
	if connURL == "" {
		t.Skipf("%s not set", TestDatabaseURLEnv)
		return nil
	}

	var schema = fmt.Sprintf("test_%s", uuid.New().String()[0:8])

	// First, connect to create the schema
	conn, err := sql.Open("postgres", connURL)
	if err != nil {
		t.Logf("failed to connect to database. Is your local database running?: %v", err)
		t.FailNow()
	}

	_, err = conn.Exec("CREATE SCHEMA IF NOT EXISTS " + schema)
	if err != nil {
		t.Logf("Failed to create schema %s", schema)
		t.Logf("Error: %s", err)
		t.FailNow()
	}
	conn.Close()

	// Reconnect with the schema on the search path
	u, err := url.Parse(connURL)
	if err != nil {
		t.Logf("invalid %s: %v", TestDatabaseURLEnv, err)
		t.FailNow()
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	conn, err = sql.Open("postgres", u.String())
	if err != nil {
		t.Logf("failed to connect to database with schema: %v", err)
		t.FailNow()
	}

	t.Cleanup(func() {
		_, _ = conn.Exec("DROP SCHEMA IF EXISTS " + schema + " CASCADE")
		_ = conn.Close()
	})

	return conn
}
