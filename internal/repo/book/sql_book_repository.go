package book

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	"github.com/mkrupp/library/internal/repo/sqldb"
)

const tableBooks = "books"

//nolint:gochecknoglobals
var bookColumns = []any{
	"id", "title", "author", "isbn", "publication_year", "genre", "publisher",
	"total_copies", "available_copies", "registered_at",
}

type bookRow struct {
	ID              int64  `db:"id"`
	Title           string `db:"title"`
	Author          string `db:"author"`
	ISBN            string `db:"isbn"`
	PublicationYear int    `db:"publication_year"`
	Genre           string `db:"genre"`
	Publisher       string `db:"publisher"`
	TotalCopies     int    `db:"total_copies"`
	AvailableCopies int    `db:"available_copies"`
	RegisteredAt    int64  `db:"registered_at"`
}

func (row bookRow) toDomain() domain.Book {
	return domain.Book{
		ID:              row.ID,
		Title:           row.Title,
		Author:          row.Author,
		ISBN:            row.ISBN,
		PublicationYear: row.PublicationYear,
		Genre:           row.Genre,
		Publisher:       row.Publisher,
		TotalCopies:     row.TotalCopies,
		AvailableCopies: row.AvailableCopies,
		RegisteredAt:    sqldb.Time(row.RegisteredAt),
	}
}

func toDomain(rows []bookRow) []domain.Book {
	books := make([]domain.Book, len(rows))
	for i, row := range rows {
		books[i] = row.toDomain()
	}

	return books
}

// SQLBookRepository implements Repository on the shared SQL store.
type SQLBookRepository struct {
	db  *sqldb.DB
	log logging.Logger
	now func() time.Time
}

var _ Repository = (*SQLBookRepository)(nil)

// NewSQLBookRepository creates a book repository on db.
func NewSQLBookRepository(db *sqldb.DB) *SQLBookRepository {
	return &SQLBookRepository{
		db:  db,
		log: logging.GetLogger("repo.book"),
		now: time.Now,
	}
}

func (r *SQLBookRepository) selectBooks() *goqu.SelectDataset {
	return r.db.From(tableBooks).Select(bookColumns...)
}

// Create implements Repository.Create.
func (r *SQLBookRepository) Create(ctx context.Context, book domain.Book) (_ domain.Book, err error) {
	defer func() {
		if err != nil {
			r.log.ErrorContext(ctx, "create book failed", "error", err)
		}
	}()

	if book.RegisteredAt.IsZero() {
		book.RegisteredAt = r.now()
	}

	unlock := r.db.LockWrites()
	defer unlock()

	id, err := sqldb.InsertID(ctx, r.db.Conn(), r.db.Insert(tableBooks).Rows(goqu.Record{
		"title":            book.Title,
		"author":           book.Author,
		"isbn":             book.ISBN,
		"publication_year": book.PublicationYear,
		"genre":            book.Genre,
		"publisher":        book.Publisher,
		"total_copies":     book.TotalCopies,
		"available_copies": book.AvailableCopies,
		"registered_at":    sqldb.Unix(book.RegisteredAt),
	}))
	if err != nil {
		if sqldb.IsCheckViolation(err) {
			err = errors.Join(domain.Validationf("copy counts out of range"), err)
		}

		return domain.Book{}, fmt.Errorf("insert book: %w", err)
	}

	book.ID = id
	book.RegisteredAt = sqldb.Time(sqldb.Unix(book.RegisteredAt))

	return book, nil
}

// Get implements Repository.Get.
func (r *SQLBookRepository) Get(ctx context.Context, id int64) (domain.Book, error) {
	return r.get(ctx, r.db.Conn(), id)
}

func (r *SQLBookRepository) get(ctx context.Context, q sqldb.Querier, id int64) (domain.Book, error) {
	var row bookRow

	if err := sqldb.Get(ctx, q, &row, r.selectBooks().Where(goqu.C("id").Eq(id))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrBookNotFound, err)
		}

		return domain.Book{}, fmt.Errorf("query book: %w", err)
	}

	return row.toDomain(), nil
}

// FindByTitleAuthor implements Repository.FindByTitleAuthor.
func (r *SQLBookRepository) FindByTitleAuthor(ctx context.Context, title, author string) (domain.Book, bool, error) {
	var row bookRow

	err := sqldb.Get(ctx, r.db.Conn(), &row, r.selectBooks().
		Where(goqu.C("title").Eq(title), goqu.C("author").Eq(author)).
		Order(goqu.C("id").Asc()).
		Limit(1))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Book{}, false, nil
		}

		return domain.Book{}, false, fmt.Errorf("query book: %w", err)
	}

	return row.toDomain(), true, nil
}

// List implements Repository.List.
func (r *SQLBookRepository) List(ctx context.Context, offset, limit int) ([]domain.Book, int, error) {
	var total int
	if err := sqldb.Get(ctx, r.db.Conn(), &total, r.db.From(tableBooks).Select(goqu.COUNT("*"))); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	var rows []bookRow

	err := sqldb.Select(ctx, r.db.Conn(), &rows, r.selectBooks().
		Order(goqu.C("title").Asc(), goqu.C("id").Asc()).
		Offset(uint(max(offset, 0))).
		Limit(uint(max(limit, 0))))
	if err != nil {
		return nil, 0, fmt.Errorf("select books: %w", err)
	}

	return toDomain(rows), total, nil
}

//nolint:gochecknoglobals
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsFold matches value as a literal, case-insensitive substring of col.
func containsFold(col, value string) exp.Expression {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(value)) + "%"

	return goqu.L(`LOWER(?) LIKE ? ESCAPE '\'`, goqu.C(col), pattern)
}

// Search implements Repository.Search.
func (r *SQLBookRepository) Search(ctx context.Context, query domain.BookQuery) ([]domain.Book, error) {
	var where []exp.Expression

	for _, field := range [...]struct{ col, value string }{
		{"title", query.Title},
		{"author", query.Author},
		{"genre", query.Genre},
	} {
		if value := strings.TrimSpace(field.value); value != "" {
			where = append(where, containsFold(field.col, value))
		}
	}

	ds := r.selectBooks().Order(goqu.C("title").Asc(), goqu.C("id").Asc())
	if len(where) > 0 {
		ds = ds.Where(goqu.And(where...))
	}

	if query.Limit > 0 {
		ds = ds.Limit(uint(query.Limit))
	}

	var rows []bookRow
	if err := sqldb.Select(ctx, r.db.Conn(), &rows, ds); err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}

	return toDomain(rows), nil
}

// ListLowStock implements Repository.ListLowStock.
func (r *SQLBookRepository) ListLowStock(ctx context.Context, threshold int) ([]domain.Book, error) {
	var rows []bookRow

	err := sqldb.Select(ctx, r.db.Conn(), &rows, r.selectBooks().
		Where(goqu.C("available_copies").Lt(threshold)).
		Order(goqu.C("available_copies").Asc(), goqu.C("title").Asc(), goqu.C("id").Asc()))
	if err != nil {
		return nil, fmt.Errorf("select low stock: %w", err)
	}

	return toDomain(rows), nil
}

// Genres implements Repository.Genres.
func (r *SQLBookRepository) Genres(ctx context.Context) ([]string, error) {
	genres := []string{}

	err := sqldb.Select(ctx, r.db.Conn(), &genres, r.db.From(tableBooks).
		SelectDistinct("genre").
		Where(goqu.C("genre").Neq("")).
		Order(goqu.C("genre").Asc()))
	if err != nil {
		return nil, fmt.Errorf("select genres: %w", err)
	}

	return genres, nil
}

// Each implements Repository.Each.
func (r *SQLBookRepository) Each(ctx context.Context, fn func(domain.Book) error) error {
	query, args, err := r.selectBooks().Order(goqu.C("id").Asc()).ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.Conn().QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row bookRow
		if err := rows.StructScan(&row); err != nil {
			return fmt.Errorf("scan book: %w", err)
		}

		if err := fn(row.toDomain()); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate books: %w", err)
	}

	return nil
}

// Update implements Repository.Update.
func (r *SQLBookRepository) Update(ctx context.Context, expectedTotal int, next domain.Book) (book domain.Book, err error) {
	log := r.log.With(logging.Group("book", "id", next.ID))

	defer func() {
		if err != nil && !errors.Is(err, ErrStaleTotal) {
			log.ErrorContext(ctx, "update book failed", "error", err)
		} else if err == nil {
			log.DebugContext(ctx, "book updated", "total", book.TotalCopies, "available", book.AvailableCopies)
		}
	}()

	delta := next.TotalCopies - expectedTotal

	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := sqldb.Exec(ctx, tx, r.db.Update(tableBooks).
			Set(goqu.Record{
				"title":            next.Title,
				"author":           next.Author,
				"isbn":             next.ISBN,
				"publication_year": next.PublicationYear,
				"genre":            next.Genre,
				"publisher":        next.Publisher,
				"total_copies":     next.TotalCopies,
				"available_copies": goqu.L("available_copies + ?", delta),
			}).
			Where(
				goqu.C("id").Eq(next.ID),
				goqu.C("total_copies").Eq(expectedTotal),
				goqu.L("available_copies + ?", delta).Gte(0),
			))
		if err != nil {
			return fmt.Errorf("update book: %w", err)
		}

		current, err := r.get(ctx, tx, next.ID)
		if err != nil {
			return err
		}

		if affected == 0 {
			if current.TotalCopies != expectedTotal {
				return ErrStaleTotal
			}

			return domain.ErrInsufficientCopies.With(
				"cannot reduce to %d copies: %d on loan", next.TotalCopies, current.OnLoan())
		}

		book = current

		return nil
	})
	if err != nil {
		return domain.Book{}, err
	}

	return book, nil
}

// SetAvailable implements Repository.SetAvailable.
func (r *SQLBookRepository) SetAvailable(ctx context.Context, id int64, available int) (book domain.Book, err error) {
	log := r.log.With(logging.Group("book", "id", id, "available", available))

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "set available copies failed", "error", err)
		} else {
			log.DebugContext(ctx, "available copies set")
		}
	}()

	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := sqldb.Exec(ctx, tx, r.db.Update(tableBooks).
			Set(goqu.Record{"available_copies": available}).
			Where(
				goqu.C("id").Eq(id),
				goqu.C("total_copies").Gte(available),
			))
		if err != nil {
			return fmt.Errorf("update book: %w", err)
		}

		current, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}

		if affected == 0 {
			return domain.Validationf("available_copies must be between 0 and %d", current.TotalCopies)
		}

		book = current

		return nil
	})
	if err != nil {
		return domain.Book{}, err
	}

	return book, nil
}

// Delete implements Repository.Delete.
func (r *SQLBookRepository) Delete(ctx context.Context, id int64, guardActive bool) (err error) {
	log := r.log.With(logging.Group("book", "id", id))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "delete book failed", "error", err)
		} else {
			log.DebugContext(ctx, "book deleted")
		}
	}()

	where := []exp.Expression{goqu.C("id").Eq(id)}
	if guardActive {
		where = append(where, goqu.L("NOT EXISTS ?", r.db.From("loans").
			Select(goqu.L("1")).
			Where(goqu.I("loans.book_id").Eq(goqu.I("books.id")), goqu.I("loans.state").Eq(string(domain.LoanActive)))))
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := sqldb.Exec(ctx, tx, r.db.Delete(tableBooks).Where(where...))
		if err != nil {
			return fmt.Errorf("delete book: %w", err)
		}

		if affected > 0 {
			return nil
		}

		if _, err := r.get(ctx, tx, id); err != nil {
			return err
		}

		return domain.ErrBookHasActiveLoans
	})
}
