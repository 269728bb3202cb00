package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	"github.com/mkrupp/library/internal/repo/sqldb"
)

const tableUsers = "users"

//nolint:gochecknoglobals
var userColumns = []any{"id", "name", "email", "password_hash", "role", "active", "registered_at"}

type userRow struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
	Active       bool   `db:"active"`
	RegisteredAt int64  `db:"registered_at"`
}

func (row userRow) toDomain() domain.User {
	return domain.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         domain.Role(row.Role),
		Active:       row.Active,
		RegisteredAt: sqldb.Time(row.RegisteredAt),
	}
}

// SQLUserRepository implements Repository on the shared SQL store.
type SQLUserRepository struct {
	db  *sqldb.DB
	log logging.Logger
	now func() time.Time
}

var _ Repository = (*SQLUserRepository)(nil)

// NewSQLUserRepository creates a user repository on db.
func NewSQLUserRepository(db *sqldb.DB) *SQLUserRepository {
	return &SQLUserRepository{
		db:  db,
		log: logging.GetLogger("repo.user"),
		now: time.Now,
	}
}

func tagWriteErr(err error) error {
	if sqldb.IsUniqueViolation(err) {
		return errors.Join(domain.ErrEmailTaken, err)
	}

	return err
}

// Create implements Repository.Create.
func (r *SQLUserRepository) Create(ctx context.Context, user domain.User) (_ domain.User, err error) {
	log := r.log.With(logging.Group("user", "email", user.Email, "role", user.Role))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "create user failed", "error", err)
		} else {
			log.DebugContext(ctx, "user created", "id", user.ID)
		}
	}()

	if user.RegisteredAt.IsZero() {
		user.RegisteredAt = r.now()
	}

	unlock := r.db.LockWrites()
	defer unlock()

	id, err := sqldb.InsertID(ctx, r.db.Conn(), r.db.Insert(tableUsers).Rows(goqu.Record{
		"name":          user.Name,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"role":          string(user.Role),
		"active":        user.Active,
		"registered_at": sqldb.Unix(user.RegisteredAt),
	}))
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", tagWriteErr(err))
	}

	user.ID = id
	user.RegisteredAt = sqldb.Time(sqldb.Unix(user.RegisteredAt))

	return user, nil
}

// Get implements Repository.Get.
func (r *SQLUserRepository) Get(ctx context.Context, id int64) (domain.User, error) {
	return r.get(ctx, r.db.Conn(), id)
}

func (r *SQLUserRepository) get(ctx context.Context, q sqldb.Querier, id int64) (domain.User, error) {
	var row userRow

	err := sqldb.Get(ctx, q, &row, r.db.From(tableUsers).Select(userColumns...).Where(goqu.C("id").Eq(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return domain.User{}, fmt.Errorf("query user: %w", err)
	}

	return row.toDomain(), nil
}

// GetByEmail implements Repository.GetByEmail.
func (r *SQLUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var row userRow

	err := sqldb.Get(ctx, r.db.Conn(), &row, r.db.From(tableUsers).
		Select(userColumns...).
		Where(goqu.C("email").Eq(domain.NormalizeEmail(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, false, nil
		}

		return domain.User{}, false, fmt.Errorf("query user: %w", err)
	}

	return row.toDomain(), true, nil
}

// List implements Repository.List.
func (r *SQLUserRepository) List(ctx context.Context) ([]domain.User, error) {
	var rows []userRow

	err := sqldb.Select(ctx, r.db.Conn(), &rows, r.db.From(tableUsers).
		Select(userColumns...).
		Order(goqu.C("name").Asc(), goqu.C("id").Asc()))
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}

	users := make([]domain.User, len(rows))
	for i, row := range rows {
		users[i] = row.toDomain()
	}

	return users, nil
}

// Update implements Repository.Update.
func (r *SQLUserRepository) Update(ctx context.Context, user domain.User) (updated domain.User, err error) {
	log := r.log.With(logging.Group("user", "id", user.ID))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "update user failed", "error", err)
		} else {
			log.DebugContext(ctx, "user updated")
		}
	}()

	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := sqldb.Exec(ctx, tx, r.db.Update(tableUsers).
			Set(goqu.Record{
				"name":          user.Name,
				"email":         user.Email,
				"password_hash": user.PasswordHash,
				"role":          string(user.Role),
			}).
			Where(goqu.C("id").Eq(user.ID)))
		if err != nil {
			return fmt.Errorf("update user: %w", tagWriteErr(err))
		}

		if affected == 0 {
			return fmt.Errorf("update user: %w", domain.ErrUserNotFound)
		}

		updated, err = r.get(ctx, tx, user.ID)

		return err
	})

	return updated, err
}

// SetActive implements Repository.SetActive.
func (r *SQLUserRepository) SetActive(ctx context.Context, id int64, active bool) (updated domain.User, err error) {
	log := r.log.With(logging.Group("user", "id", id, "active", active))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "set active failed", "error", err)
		} else {
			log.DebugContext(ctx, "active flag set")
		}
	}()

	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := sqldb.Exec(ctx, tx, r.db.Update(tableUsers).
			Set(goqu.Record{"active": active}).
			Where(goqu.C("id").Eq(id)))
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}

		if affected == 0 {
			return fmt.Errorf("update user: %w", domain.ErrUserNotFound)
		}

		updated, err = r.get(ctx, tx, id)

		return err
	})

	return updated, err
}

// Delete implements Repository.Delete. The active-loan guard is part of the
// DELETE statement itself, so a loan created concurrently cannot slip
// between check and delete.
func (r *SQLUserRepository) Delete(ctx context.Context, id int64) (err error) {
	log := r.log.With(logging.Group("user", "id", id))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "delete user failed", "error", err)
		} else {
			log.DebugContext(ctx, "user deleted")
		}
	}()

	activeLoans := r.db.From("loans").
		Select(goqu.L("1")).
		Where(
			goqu.I("loans.user_id").Eq(goqu.I("users.id")),
			goqu.I("loans.state").Neq(string(domain.LoanReturned)),
		)

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := sqldb.Exec(ctx, tx, r.db.Delete(tableUsers).Where(
			goqu.C("id").Eq(id),
			goqu.L("NOT EXISTS ?", activeLoans),
		))
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}

		if affected > 0 {
			return nil
		}

		if _, err := r.get(ctx, tx, id); err != nil {
			return err
		}

		return domain.ErrHasActiveLoans
	})
}
