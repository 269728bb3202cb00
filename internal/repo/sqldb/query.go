package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
)

// Builder is any goqu dataset.
type Builder interface {
	ToSQL() (string, []any, error)
}

// Get runs ds and scans the single result row into dest.
func Get(ctx context.Context, q Querier, dest any, ds Builder) error {
	query, args, err := ds.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	//nolint:wrapcheck
	return q.GetContext(ctx, dest, query, args...)
}

// Select runs ds and scans all result rows into the slice dest.
func Select(ctx context.Context, q Querier, dest any, ds Builder) error {
	query, args, err := ds.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	//nolint:wrapcheck
	return q.SelectContext(ctx, dest, query, args...)
}

// Exec runs ds and returns the number of affected rows.
func Exec(ctx context.Context, q Querier, ds Builder) (int64, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return affected, nil
}

// InsertID runs the insert and returns the generated id. The RETURNING clause
// is appended by hand because goqu's sqlite3 dialect does not emit it, while
// both sqlite and PostgreSQL support it.
func InsertID(ctx context.Context, q Querier, ds *goqu.InsertDataset) (int64, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var id int64
	if err := q.QueryRowxContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err //nolint:wrapcheck
	}

	return id, nil
}

// Unix converts a timestamp to its stored form.
func Unix(t time.Time) int64 {
	return t.Unix()
}

// Time converts a stored timestamp back to UTC time.
func Time(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}
