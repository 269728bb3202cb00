package sqldb_test

import (
	"context"
	"errors"
	"testing"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/library/internal/repo/sqldb"
	"github.com/mkrupp/library/internal/repo/sqldb/sqldbtest"
)

func insertUser(ctx context.Context, q sqldb.Querier, db *sqldb.DB, email string) (int64, error) {
	return sqldb.InsertID(ctx, q, db.Insert("users").Rows(goqu.Record{
		"name":          "Test",
		"email":         email,
		"password_hash": "x",
		"role":          "READER",
		"active":        true,
		"registered_at": 1,
	}))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := sqldb.Open(context.Background(), sqldb.Config{Driver: "oracle"})
	require.ErrorIs(t, err, sqldb.ErrUnsupportedDriver)
}

func TestWithTx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := sqldbtest.Open(t)
	errBoom := errors.New("boom")

	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := insertUser(ctx, tx, db, "rolled@back.org"); err != nil {
			return err
		}

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	err = db.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := insertUser(ctx, tx, db, "committed@example.org")

		return err
	})
	require.NoError(t, err)

	var emails []string
	require.NoError(t, sqldb.Select(ctx, db.Conn(), &emails, db.From("users").Select("email")))
	assert.Equal(t, []string{"committed@example.org"}, emails)
}

func TestConstraintClassification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := sqldbtest.Open(t)

	_, err := insertUser(ctx, db.Conn(), db, "dup@example.org")
	require.NoError(t, err)

	_, err = insertUser(ctx, db.Conn(), db, "dup@example.org")
	require.Error(t, err)
	assert.True(t, sqldb.IsUniqueViolation(err))
	assert.False(t, sqldb.IsForeignKeyViolation(err))

	_, err = sqldb.Exec(ctx, db.Conn(), db.Insert("loans").Rows(goqu.Record{
		"book_id":   999,
		"user_id":   999,
		"loaned_at": 1,
		"due_at":    2,
		"state":     "ACTIVE",
	}))
	require.Error(t, err)
	assert.True(t, sqldb.IsForeignKeyViolation(err), "foreign keys must be enforced on every connection")

	_, err = sqldb.Exec(ctx, db.Conn(), db.Insert("books").Rows(goqu.Record{
		"title":            "T",
		"author":           "A",
		"total_copies":     1,
		"available_copies": 2,
		"registered_at":    1,
	}))
	require.Error(t, err)
	assert.True(t, sqldb.IsCheckViolation(err))
}
