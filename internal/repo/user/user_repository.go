package user

import (
	"context"

	"github.com/mkrupp/library/internal/domain"
)

// Repository defines the interface for user account persistence.
type Repository interface {
	// Create adds a new user. Returns ErrEmailTaken if the email is in use.
	Create(ctx context.Context, user domain.User) (domain.User, error)

	// Get returns the user with the given id or ErrUserNotFound.
	Get(ctx context.Context, id int64) (domain.User, error)

	// GetByEmail looks up a user by normalized email.
	// Returns the user and true if found, or false if not found.
	GetByEmail(ctx context.Context, email string) (domain.User, bool, error)

	// List returns all users ordered by name.
	List(ctx context.Context) ([]domain.User, error)

	// Update stores name, email, role and password hash of user.
	// Returns ErrUserNotFound or ErrEmailTaken.
	Update(ctx context.Context, user domain.User) (domain.User, error)

	// SetActive flips the active flag. Returns ErrUserNotFound.
	SetActive(ctx context.Context, id int64, active bool) (domain.User, error)

	// Delete removes a user and their returned-loan history.
	// Returns ErrHasActiveLoans while any of their loans is unreturned.
	Delete(ctx context.Context, id int64) error
}
