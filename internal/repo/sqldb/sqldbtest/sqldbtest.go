// Package sqldbtest opens throwaway stores for repository and service tests.
package sqldbtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkrupp/library/internal/repo/sqldb"
)

// PostgresDSNEnv names the variable holding the DSN used by integration tests.
const PostgresDSNEnv = "LIBRARY_TEST_PG_DSN"

// Open creates a fresh sqlite store in a temp dir, closed on test cleanup.
func Open(t *testing.T) *sqldb.DB {
	t.Helper()

	return OpenConfig(t, sqldb.Config{
		Driver:          sqldb.DriverSQLite,
		DSN:             filepath.Join(t.TempDir(), "library.db"),
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Minute,
		BusyTimeout:     5 * time.Second,
	})
}

// OpenPostgres opens the store named by LIBRARY_TEST_PG_DSN, skipping the test
// when it is unset.
func OpenPostgres(t *testing.T) *sqldb.DB {
	t.Helper()

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}

	db := OpenConfig(t, sqldb.Config{
		Driver:          sqldb.DriverPostgres,
		DSN:             dsn,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Minute,
	})

	_, err := db.Conn().ExecContext(context.Background(), "TRUNCATE loans, books, users RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	return db
}

// OpenConfig opens a store with cfg, closed on test cleanup.
func OpenConfig(t *testing.T, cfg sqldb.Config) *sqldb.DB {
	t.Helper()

	db, err := sqldb.Open(context.Background(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}
