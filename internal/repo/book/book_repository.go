package book

import (
	"context"
	"errors"

	"github.com/mkrupp/library/internal/domain"
)

// ErrStaleTotal is returned by Update when the book's total changed since it
// was read. Callers re-read and retry.
var ErrStaleTotal = errors.New("book total changed concurrently")

// Repository defines the interface for book persistence.
type Repository interface {
	// Create stores a new book and returns it with its id.
	Create(ctx context.Context, book domain.Book) (domain.Book, error)

	// Get returns the book with the given id or ErrBookNotFound.
	Get(ctx context.Context, id int64) (domain.Book, error)

	// FindByTitleAuthor looks up a book by exact title and author.
	FindByTitleAuthor(ctx context.Context, title, author string) (domain.Book, bool, error)

	// List returns a page of books ordered by title and the total count.
	List(ctx context.Context, offset, limit int) ([]domain.Book, int, error)

	// Search matches case-insensitive substrings on the non-empty query fields.
	Search(ctx context.Context, query domain.BookQuery) ([]domain.Book, error)

	// ListLowStock returns books with fewer than threshold available copies.
	ListLowStock(ctx context.Context, threshold int) ([]domain.Book, error)

	// Genres returns the distinct non-empty genres in order.
	Genres(ctx context.Context) ([]string, error)

	// Each calls fn for every book ordered by id.
	Each(ctx context.Context, fn func(domain.Book) error) error

	// Update stores next if the stored total still equals expectedTotal,
	// shifting available_copies by next.TotalCopies-expectedTotal.
	// Returns ErrStaleTotal, ErrBookNotFound or ErrInsufficientCopies when the
	// guard fails.
	Update(ctx context.Context, expectedTotal int, next domain.Book) (domain.Book, error)

	// SetAvailable overwrites available_copies if it does not exceed the
	// stored total. Returns ErrBookNotFound or a validation error.
	SetAvailable(ctx context.Context, id int64, available int) (domain.Book, error)

	// Delete removes a book and its loan history. With guardActive set,
	// books with ACTIVE loans are refused with ErrBookHasActiveLoans.
	Delete(ctx context.Context, id int64, guardActive bool) error
}
