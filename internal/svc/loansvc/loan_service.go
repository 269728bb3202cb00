package loansvc

import (
	"context"
	"fmt"
	"time"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	"github.com/mkrupp/library/internal/repo/loan"
)

// LoanConfig contains configuration parameters for lending.
type LoanConfig struct {
	// DefaultDays is the loan period used when none is requested
	DefaultDays int `env:"DEFAULT_DAYS" default:"14"`

	// MaxDays is the longest loan period that may be requested
	MaxDays int `env:"MAX_DAYS" default:"365"`
}

// LoanService lends and takes back book copies.
type LoanService struct {
	Config LoanConfig
	Loans  loan.Repository
	Log    logging.Logger

	// Now is the clock for loan dates and overdue evaluation. Defaults to
	// time.Now.
	Now func() time.Time
}

// NewLoanService creates a LoanService on the given repository.
func NewLoanService(loans loan.Repository, cfg LoanConfig) *LoanService {
	return &LoanService{
		Config: cfg,
		Loans:  loans,
		Log:    logging.GetLogger("svc.loansvc"),
		Now:    time.Now,
	}
}

func (s *LoanService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}

	return s.Now()
}

// Checkout lends one copy of a book to a user for days days, or the default
// period when days is 0.
func (s *LoanService) Checkout(ctx context.Context, bookID, userID int64, days int) (created domain.Loan, err error) {
	log := s.Log.With(logging.Group("loan", "book_id", bookID, "user_id", userID))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "checkout failed", "error", err)
		} else {
			log.InfoContext(ctx, "book checked out", "id", created.ID, "due", created.DueAt)
		}
	}()

	if bookID <= 0 || userID <= 0 {
		return domain.Loan{}, domain.Validationf("book_id and user_id are required")
	}

	if days == 0 {
		days = s.Config.DefaultDays
	}

	if days < 1 || days > s.Config.MaxDays {
		return domain.Loan{}, domain.Validationf("days must be between 1 and %d", s.Config.MaxDays)
	}

	now := s.now()

	//nolint:exhaustruct
	created, err = s.Loans.Checkout(ctx, domain.Loan{
		BookID:   bookID,
		UserID:   userID,
		LoanedAt: now,
		DueAt:    now.AddDate(0, 0, days),
	})
	if err != nil {
		return domain.Loan{}, fmt.Errorf("checkout: %w", err)
	}

	return created.AsOf(now), nil
}

// Return closes an unreturned loan and gives its copy back.
func (s *LoanService) Return(ctx context.Context, id int64) (returned domain.Loan, err error) {
	log := s.Log.With(logging.Group("loan", "id", id))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "return failed", "error", err)
		} else {
			log.InfoContext(ctx, "book returned", "book_id", returned.BookID)
		}
	}()

	now := s.now()

	returned, err = s.Loans.Return(ctx, id, now)
	if err != nil {
		return domain.Loan{}, fmt.Errorf("return: %w", err)
	}

	return returned.AsOf(now), nil
}

// Get returns a loan with its state evaluated now.
func (s *LoanService) Get(ctx context.Context, id int64) (domain.Loan, error) {
	l, err := s.Loans.Get(ctx, id)
	if err != nil {
		return domain.Loan{}, fmt.Errorf("get loan: %w", err)
	}

	return l.AsOf(s.now()), nil
}

// ListAll returns every loan, most recent first.
func (s *LoanService) ListAll(ctx context.Context) ([]domain.Loan, error) {
	loans, err := s.Loans.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}

	return domain.LoansAsOf(loans, s.now()), nil
}

// ListForUser returns the loans of a user, most recent first.
func (s *LoanService) ListForUser(ctx context.Context, userID int64) ([]domain.Loan, error) {
	loans, err := s.Loans.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user loans: %w", err)
	}

	return domain.LoansAsOf(loans, s.now()), nil
}

// ListActive returns unreturned loans, overdue ones included, by due date.
func (s *LoanService) ListActive(ctx context.Context) ([]domain.Loan, error) {
	loans, err := s.Loans.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active loans: %w", err)
	}

	return domain.LoansAsOf(loans, s.now()), nil
}

// ListOverdue returns the loans past their due date as of now.
func (s *LoanService) ListOverdue(ctx context.Context) ([]domain.Loan, error) {
	now := s.now()

	loans, err := s.Loans.ListOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list overdue loans: %w", err)
	}

	return domain.LoansAsOf(loans, now), nil
}
