package catalogsvc

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	"github.com/mkrupp/library/internal/repo/book"
)

// CatalogConfig contains configuration parameters for the catalog.
type CatalogConfig struct {
	// GuardDelete refuses to delete books with active loans
	GuardDelete bool `env:"GUARD_DELETE" default:"false"`

	// LowStockThreshold is the availability below which a book is low on stock
	LowStockThreshold int `env:"LOW_STOCK_THRESHOLD" default:"2"`

	SearchDefaultLimit int `env:"SEARCH_DEFAULT_LIMIT" default:"200"`
	SearchMaxLimit     int `env:"SEARCH_MAX_LIMIT" default:"500"`

	DefaultPerPage int `env:"DEFAULT_PER_PAGE" default:"100"`
	MaxPerPage     int `env:"MAX_PER_PAGE" default:"500"`
}

const (
	maxUpdateAttempts = 5
	maxListOffset     = math.MaxInt32
)

// DeleteHook runs after a book was deleted.
type DeleteHook func(ctx context.Context, bookID int64) error

// CatalogService manages the book catalog.
type CatalogService struct {
	Config CatalogConfig
	Books  book.Repository
	Log    logging.Logger

	onDelete []DeleteHook
}

// NewCatalogService creates a CatalogService on the given repository.
func NewCatalogService(books book.Repository, cfg CatalogConfig) *CatalogService {
	return &CatalogService{
		Config: cfg,
		Books:  books,
		Log:    logging.GetLogger("svc.catalogsvc"),
	}
}

// OnDelete registers hook to run after every successful Delete. Hook
// failures are logged and do not fail the deletion.
func (s *CatalogService) OnDelete(hook DeleteHook) {
	s.onDelete = append(s.onDelete, hook)
}

// Create adds a book. TotalCopies defaults to 1 when nil and every copy
// starts out available.
func (s *CatalogService) Create(ctx context.Context, patch domain.BookPatch) (created domain.Book, err error) {
	defer func() {
		if err != nil {
			s.Log.WarnContext(ctx, "create book failed", "error", err)
		} else {
			s.Log.InfoContext(ctx, "book created", logging.Group("book", "id", created.ID, "title", created.Title))
		}
	}()

	//nolint:exhaustruct
	b := domain.Book{TotalCopies: 1}
	applyPatch(&b, patch)

	if err := validateBook(b); err != nil {
		return domain.Book{}, err
	}

	b.AvailableCopies = b.TotalCopies

	created, err = s.Books.Create(ctx, b)
	if err != nil {
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}

	return created, nil
}

// Update applies the non-nil fields of patch. A change of TotalCopies shifts
// AvailableCopies by the same delta; ErrInsufficientCopies is returned when
// that would leave fewer than zero copies available.
func (s *CatalogService) Update(ctx context.Context, id int64, patch domain.BookPatch) (updated domain.Book, err error) {
	log := s.Log.With(logging.Group("book", "id", id))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "update book failed", "error", err)
		} else {
			log.InfoContext(ctx, "book updated", "total_copies", updated.TotalCopies, "available_copies", updated.AvailableCopies)
		}
	}()

	for attempt := 1; ; attempt++ {
		current, err := s.Books.Get(ctx, id)
		if err != nil {
			return domain.Book{}, fmt.Errorf("get book: %w", err)
		}

		next := current
		applyPatch(&next, patch)

		if err := validateBook(next); err != nil {
			return domain.Book{}, err
		}

		updated, err = s.Books.Update(ctx, current.TotalCopies, next)
		if errors.Is(err, book.ErrStaleTotal) && attempt < maxUpdateAttempts {
			log.DebugContext(ctx, "book total changed concurrently, retrying", "attempt", attempt)

			continue
		} else if err != nil {
			return domain.Book{}, fmt.Errorf("update book: %w", err)
		}

		return updated, nil
	}
}

// Delete removes a book and runs the delete hooks.
func (s *CatalogService) Delete(ctx context.Context, id int64) (err error) {
	log := s.Log.With(logging.Group("book", "id", id))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "delete book failed", "error", err)
		} else {
			log.InfoContext(ctx, "book deleted")
		}
	}()

	if err := s.Books.Delete(ctx, id, s.Config.GuardDelete); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	for _, hook := range s.onDelete {
		if err := hook(ctx, id); err != nil {
			log.ErrorContext(ctx, "book delete hook failed", "error", err)
		}
	}

	return nil
}

// SetAvailable corrects the number of available copies by hand, for example
// after a stock count. n must lie within [0, TotalCopies].
func (s *CatalogService) SetAvailable(ctx context.Context, id int64, n int) (updated domain.Book, err error) {
	log := s.Log.With(logging.Group("book", "id", id))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "set available copies failed", "error", err)
		} else {
			log.InfoContext(ctx, "available copies set", "total_copies", updated.TotalCopies, "available_copies", updated.AvailableCopies)
		}
	}()

	if n < 0 {
		return domain.Book{}, domain.Validationf("available_copies must not be negative")
	}

	updated, err = s.Books.SetAvailable(ctx, id, n)
	if err != nil {
		return domain.Book{}, fmt.Errorf("set available copies: %w", err)
	}

	return updated, nil
}

// Get returns the book with the given id.
func (s *CatalogService) Get(ctx context.Context, id int64) (domain.Book, error) {
	b, err := s.Books.Get(ctx, id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}

	return b, nil
}

// List returns one page of the catalog ordered by title. An out-of-range
// perPage falls back to the default and page is capped so its offset fits
// an int32; a positive limit returns only the first limit books.
func (s *CatalogService) List(ctx context.Context, page, perPage, limit int) (domain.BookPage, error) {
	page = max(page, 1)

	if perPage < 1 || perPage > s.Config.MaxPerPage {
		perPage = s.Config.DefaultPerPage
	}

	page = min(page, maxListOffset/perPage+1)

	offset, size := (page-1)*perPage, perPage
	if limit > 0 {
		offset, size = 0, limit
	}

	books, total, err := s.Books.List(ctx, offset, size)
	if err != nil {
		return domain.BookPage{}, fmt.Errorf("list books: %w", err)
	}

	return domain.BookPage{
		Books:      books,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

// Search matches books by case-insensitive substrings. A zero limit means the
// default; others are clamped to [1, SearchMaxLimit].
func (s *CatalogService) Search(ctx context.Context, query domain.BookQuery) ([]domain.Book, error) {
	query.Title = strings.TrimSpace(query.Title)
	query.Author = strings.TrimSpace(query.Author)
	query.Genre = strings.TrimSpace(query.Genre)

	if query.Limit == 0 {
		query.Limit = s.Config.SearchDefaultLimit
	}

	query.Limit = min(max(query.Limit, 1), s.Config.SearchMaxLimit)

	books, err := s.Books.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}

	return books, nil
}

// ListLowStock returns books with fewer available copies than the configured
// threshold.
func (s *CatalogService) ListLowStock(ctx context.Context) ([]domain.Book, error) {
	books, err := s.Books.ListLowStock(ctx, s.Config.LowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}

	return books, nil
}

// Genres returns the distinct genres in the catalog.
func (s *CatalogService) Genres(ctx context.Context) ([]string, error) {
	genres, err := s.Books.Genres(ctx)
	if err != nil {
		return nil, fmt.Errorf("list genres: %w", err)
	}

	return genres, nil
}

//nolint:gochecknoglobals
var csvHeader = []string{
	"id", "title", "author", "isbn", "publication_year", "genre", "publisher",
	"total_copies", "available_copies", "registered_at",
}

// ExportCSV writes the whole catalog to w as CSV with a header row and
// returns the number of books written.
func (s *CatalogService) ExportCSV(ctx context.Context, w io.Writer) (count int, err error) {
	defer func() {
		if err != nil {
			s.Log.ErrorContext(ctx, "export catalog failed", "error", err)
		} else {
			s.Log.InfoContext(ctx, "catalog exported", "books", count)
		}
	}()

	out := csv.NewWriter(w)

	if err := out.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	err = s.Books.Each(ctx, func(b domain.Book) error {
		count++

		return out.Write([]string{
			strconv.FormatInt(b.ID, 10),
			b.Title,
			b.Author,
			b.ISBN,
			strconv.Itoa(b.PublicationYear),
			b.Genre,
			b.Publisher,
			strconv.Itoa(b.TotalCopies),
			strconv.Itoa(b.AvailableCopies),
			b.RegisteredAt.UTC().Format(time.DateOnly),
		})
	})
	if err != nil {
		return count, fmt.Errorf("write books: %w", err)
	}

	out.Flush()

	if err := out.Error(); err != nil {
		return count, fmt.Errorf("flush: %w", err)
	}

	return count, nil
}

func applyPatch(b *domain.Book, patch domain.BookPatch) {
	if patch.Title != nil {
		b.Title = strings.TrimSpace(*patch.Title)
	}

	if patch.Author != nil {
		b.Author = strings.TrimSpace(*patch.Author)
	}

	if patch.ISBN != nil {
		b.ISBN = strings.TrimSpace(*patch.ISBN)
	}

	if patch.PublicationYear != nil {
		b.PublicationYear = *patch.PublicationYear
	}

	if patch.Genre != nil {
		b.Genre = strings.TrimSpace(*patch.Genre)
	}

	if patch.Publisher != nil {
		b.Publisher = strings.TrimSpace(*patch.Publisher)
	}

	if patch.TotalCopies != nil {
		b.TotalCopies = *patch.TotalCopies
	}
}

func validateBook(b domain.Book) error {
	switch {
	case b.Title == "":
		return domain.Validationf("title is required")
	case b.Author == "":
		return domain.Validationf("author is required")
	case b.TotalCopies < 0:
		return domain.Validationf("total_copies must not be negative")
	case b.PublicationYear < 0:
		return domain.Validationf("publication_year must not be negative")
	}

	return nil
}
