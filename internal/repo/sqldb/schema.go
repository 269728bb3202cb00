package sqldb

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

func (db *DB) migrate(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			db.log.ErrorContext(ctx, "migrate failed", "error", err)
		} else {
			db.log.DebugContext(ctx, "schema ready")
		}
	}()

	schema := schemaSQLite
	if db.driver == DriverPostgres {
		schema = schemaPostgres
	}

	unlock := db.LockWrites()
	defer unlock()

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}

		if _, err := db.x.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}

	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if line, _, ok := strings.Cut(stmt, "\n"); ok {
		return line
	}

	return stmt
}
