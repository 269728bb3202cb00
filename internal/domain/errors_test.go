package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkrupp/library/internal/domain"
)

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	storageErr := errors.New("UNIQUE constraint failed: users.email")

	tests := []struct {
		name        string
		err         error
		wantKind    domain.ErrorKind
		wantMessage string
		wantIs      []error
		wantNotIs   []error
	}{
		{
			name:        "specific sentinel wrapped with context",
			err:         fmt.Errorf("checkout: %w", domain.ErrNoCopiesAvailable),
			wantKind:    domain.KindConflict,
			wantMessage: "no copies available",
			wantIs:      []error{domain.ErrNoCopiesAvailable, domain.ErrConflict},
			wantNotIs:   []error{domain.ErrValidation, domain.ErrHasActiveLoans},
		},
		{
			name:        "sentinel joined with storage error",
			err:         fmt.Errorf("create user: %w", errors.Join(domain.ErrEmailTaken, storageErr)),
			wantKind:    domain.KindConflict,
			wantMessage: "email already registered",
			wantIs:      []error{domain.ErrEmailTaken, domain.ErrConflict, storageErr},
		},
		{
			name:        "ad-hoc validation error",
			err:         domain.Validationf("%s is required", "title"),
			wantKind:    domain.KindValidation,
			wantMessage: "title is required",
			wantIs:      []error{domain.ErrValidation},
			wantNotIs:   []error{domain.ErrConflict},
		},
		{
			name:        "derived error keeps its sentinel",
			err:         domain.ErrInsufficientCopies.With("cannot reduce to %d copies: %d on loan", 2, 4),
			wantKind:    domain.KindConflict,
			wantMessage: "cannot reduce to 2 copies: 4 on loan",
			wantIs:      []error{domain.ErrInsufficientCopies, domain.ErrConflict},
		},
		{
			name:        "unclassified error is internal",
			err:         fmt.Errorf("query: %w", storageErr),
			wantKind:    domain.KindInternal,
			wantMessage: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.wantKind, domain.KindOf(tt.err))
			assert.Equal(t, tt.wantMessage, domain.PublicMessage(tt.err))

			for _, target := range tt.wantIs {
				assert.ErrorIs(t, tt.err, target)
			}

			for _, target := range tt.wantNotIs {
				assert.NotErrorIs(t, tt.err, target)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	role, err := domain.ParseRole(" librarian ")
	assert.NoError(t, err)
	assert.Equal(t, domain.RoleLibrarian, role)

	_, err = domain.ParseRole("ADMIN")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
