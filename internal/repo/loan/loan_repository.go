package loan

import (
	"context"
	"time"

	"github.com/mkrupp/library/internal/domain"
)

// Repository defines the interface for loan persistence. Checkout and Return
// pair the loan write with the book's copy-count change in one transaction.
type Repository interface {
	// Checkout takes one available copy of loan.BookID and records an ACTIVE
	// loan for loan.UserID. Returns ErrNoCopiesAvailable, ErrBookNotFound,
	// ErrUserNotFound or ErrUserInactive without writing anything.
	Checkout(ctx context.Context, loan domain.Loan) (domain.Loan, error)

	// Return marks an unreturned loan RETURNED at the given time and gives the
	// copy back. Returns ErrLoanNotFoundOrReturned otherwise.
	Return(ctx context.Context, id int64, at time.Time) (domain.Loan, error)

	// Get returns the loan with the given id or ErrLoanNotFound.
	Get(ctx context.Context, id int64) (domain.Loan, error)

	// ListAll returns every loan, most recent first.
	ListAll(ctx context.Context) ([]domain.Loan, error)

	// ListForUser returns all loans of a user, most recent first.
	ListForUser(ctx context.Context, userID int64) ([]domain.Loan, error)

	// ListActive returns all unreturned loans ordered by due date.
	ListActive(ctx context.Context) ([]domain.Loan, error)

	// ListOverdue returns unreturned loans due strictly before now, ordered
	// by due date.
	ListOverdue(ctx context.Context, now time.Time) ([]domain.Loan, error)
}
