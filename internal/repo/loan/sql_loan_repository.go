package loan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	"github.com/mkrupp/library/internal/repo/sqldb"
)

const (
	tableLoans = "loans"
	tableBooks = "books"
	tableUsers = "users"
)

type loanRow struct {
	ID         int64         `db:"id"`
	BookID     int64         `db:"book_id"`
	UserID     int64         `db:"user_id"`
	LoanedAt   int64         `db:"loaned_at"`
	DueAt      int64         `db:"due_at"`
	ReturnedAt sql.NullInt64 `db:"returned_at"`
	State      string        `db:"state"`
	BookTitle  string        `db:"book_title"`
	BookAuthor string        `db:"book_author"`
	UserName   string        `db:"user_name"`
	UserEmail  string        `db:"user_email"`
}

func (row loanRow) toDomain() domain.Loan {
	loan := domain.Loan{
		ID:         row.ID,
		BookID:     row.BookID,
		UserID:     row.UserID,
		LoanedAt:   sqldb.Time(row.LoanedAt),
		DueAt:      sqldb.Time(row.DueAt),
		State:      domain.LoanState(row.State),
		BookTitle:  row.BookTitle,
		BookAuthor: row.BookAuthor,
		UserName:   row.UserName,
		UserEmail:  row.UserEmail,
	}

	if row.ReturnedAt.Valid {
		returnedAt := sqldb.Time(row.ReturnedAt.Int64)
		loan.ReturnedAt = &returnedAt
	}

	return loan
}

// SQLLoanRepository implements Repository on the shared SQL store.
type SQLLoanRepository struct {
	db  *sqldb.DB
	log logging.Logger
}

var _ Repository = (*SQLLoanRepository)(nil)

// NewSQLLoanRepository creates a loan repository on db.
func NewSQLLoanRepository(db *sqldb.DB) *SQLLoanRepository {
	return &SQLLoanRepository{
		db:  db,
		log: logging.GetLogger("repo.loan"),
	}
}

func (r *SQLLoanRepository) selectLoans() *goqu.SelectDataset {
	return r.db.From(goqu.T(tableLoans).As("l")).
		Join(goqu.T(tableBooks).As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Join(goqu.T(tableUsers).As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.user_id")))).
		Select(
			goqu.I("l.id").As("id"),
			goqu.I("l.book_id").As("book_id"),
			goqu.I("l.user_id").As("user_id"),
			goqu.I("l.loaned_at").As("loaned_at"),
			goqu.I("l.due_at").As("due_at"),
			goqu.I("l.returned_at").As("returned_at"),
			goqu.I("l.state").As("state"),
			goqu.I("b.title").As("book_title"),
			goqu.I("b.author").As("book_author"),
			goqu.I("u.name").As("user_name"),
			goqu.I("u.email").As("user_email"),
		)
}

// Checkout implements Repository.Checkout.
//
//nolint:cyclop
func (r *SQLLoanRepository) Checkout(ctx context.Context, loan domain.Loan) (created domain.Loan, err error) {
	log := r.log.With(logging.Group("loan", "book_id", loan.BookID, "user_id", loan.UserID))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "checkout failed", "error", err)
		} else {
			log.DebugContext(ctx, "checked out", "id", created.ID, "due", created.DueAt)
		}
	}()

	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var active bool

		err := sqldb.Get(ctx, tx, &active, r.db.From(tableUsers).Select("active").Where(goqu.C("id").Eq(loan.UserID)))
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Join(domain.ErrUserNotFound, err)
		} else if err != nil {
			return fmt.Errorf("query user: %w", err)
		} else if !active {
			return domain.ErrUserInactive
		}

		affected, err := sqldb.Exec(ctx, tx, r.db.Update(tableBooks).
			Set(goqu.Record{"available_copies": goqu.L("available_copies - 1")}).
			Where(goqu.C("id").Eq(loan.BookID), goqu.C("available_copies").Gt(0)))
		if err != nil {
			return fmt.Errorf("take copy: %w", err)
		}

		if affected == 0 {
			var exists int

			err := sqldb.Get(ctx, tx, &exists, r.db.From(tableBooks).Select(goqu.COUNT("*")).Where(goqu.C("id").Eq(loan.BookID)))
			if err != nil {
				return fmt.Errorf("query book: %w", err)
			}

			if exists == 0 {
				return domain.ErrBookNotFound
			}

			return domain.ErrNoCopiesAvailable
		}

		id, err := sqldb.InsertID(ctx, tx, r.db.Insert(tableLoans).Rows(goqu.Record{
			"book_id":   loan.BookID,
			"user_id":   loan.UserID,
			"loaned_at": sqldb.Unix(loan.LoanedAt),
			"due_at":    sqldb.Unix(loan.DueAt),
			"state":     string(domain.LoanActive),
		}))
		if err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}

		created, err = r.get(ctx, tx, id)

		return err
	})

	return created, err
}

// Return implements Repository.Return.
func (r *SQLLoanRepository) Return(ctx context.Context, id int64, at time.Time) (returned domain.Loan, err error) {
	log := r.log.With(logging.Group("loan", "id", id))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "return failed", "error", err)
		} else {
			log.DebugContext(ctx, "returned", "book_id", returned.BookID)
		}
	}()

	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := sqldb.Exec(ctx, tx, r.db.Update(tableLoans).
			Set(goqu.Record{
				"state":       string(domain.LoanReturned),
				"returned_at": sqldb.Unix(at),
			}).
			Where(goqu.C("id").Eq(id), goqu.C("state").Neq(string(domain.LoanReturned))))
		if err != nil {
			return fmt.Errorf("update loan: %w", err)
		}

		if affected == 0 {
			return domain.ErrLoanNotFoundOrReturned
		}

		if returned, err = r.get(ctx, tx, id); err != nil {
			return err
		}

		affected, err = sqldb.Exec(ctx, tx, r.db.Update(tableBooks).
			Set(goqu.Record{"available_copies": goqu.L("available_copies + 1")}).
			Where(goqu.C("id").Eq(returned.BookID), goqu.C("available_copies").Lt(goqu.C("total_copies"))))
		if err != nil {
			return fmt.Errorf("give copy back: %w", err)
		}

		if affected == 0 {
			log.WarnContext(ctx, "book already fully available", "book_id", returned.BookID)
		}

		return nil
	})

	return returned, err
}

// Get implements Repository.Get.
func (r *SQLLoanRepository) Get(ctx context.Context, id int64) (domain.Loan, error) {
	return r.get(ctx, r.db.Conn(), id)
}

func (r *SQLLoanRepository) get(ctx context.Context, q sqldb.Querier, id int64) (domain.Loan, error) {
	var row loanRow

	if err := sqldb.Get(ctx, q, &row, r.selectLoans().Where(goqu.I("l.id").Eq(id))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrLoanNotFound, err)
		}

		return domain.Loan{}, fmt.Errorf("query loan: %w", err)
	}

	return row.toDomain(), nil
}

func (r *SQLLoanRepository) list(ctx context.Context, ds *goqu.SelectDataset) ([]domain.Loan, error) {
	var rows []loanRow
	if err := sqldb.Select(ctx, r.db.Conn(), &rows, ds); err != nil {
		return nil, fmt.Errorf("select loans: %w", err)
	}

	loans := make([]domain.Loan, len(rows))
	for i, row := range rows {
		loans[i] = row.toDomain()
	}

	return loans, nil
}

//nolint:gochecknoglobals
var (
	mostRecentFirst = []exp.OrderedExpression{goqu.I("l.loaned_at").Desc(), goqu.I("l.id").Desc()}
	dueFirst        = []exp.OrderedExpression{goqu.I("l.due_at").Asc(), goqu.I("l.id").Asc()}
	unreturned      = goqu.I("l.state").Neq(string(domain.LoanReturned))
)

// ListAll implements Repository.ListAll.
func (r *SQLLoanRepository) ListAll(ctx context.Context) ([]domain.Loan, error) {
	return r.list(ctx, r.selectLoans().Order(mostRecentFirst...))
}

// ListForUser implements Repository.ListForUser.
func (r *SQLLoanRepository) ListForUser(ctx context.Context, userID int64) ([]domain.Loan, error) {
	return r.list(ctx, r.selectLoans().Where(goqu.I("l.user_id").Eq(userID)).Order(mostRecentFirst...))
}

// ListActive implements Repository.ListActive.
func (r *SQLLoanRepository) ListActive(ctx context.Context) ([]domain.Loan, error) {
	return r.list(ctx, r.selectLoans().Where(unreturned).Order(dueFirst...))
}

// ListOverdue implements Repository.ListOverdue.
func (r *SQLLoanRepository) ListOverdue(ctx context.Context, now time.Time) ([]domain.Loan, error) {
	return r.list(ctx, r.selectLoans().
		Where(unreturned, goqu.I("l.due_at").Lt(sqldb.Unix(now))).
		Order(dueFirst...))
}
