package usersvc

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	"github.com/mkrupp/library/internal/repo/user"
)

// UserConfig contains configuration parameters for the user directory.
type UserConfig struct {
	// MinPasswordLength is the minimum number of characters of a password
	MinPasswordLength int `env:"MIN_PASSWORD_LENGTH" default:"6"`
}

// PasswordHasher hashes passwords for storage.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// UserService manages library accounts.
type UserService struct {
	Config UserConfig
	Users  user.Repository
	Hasher PasswordHasher
	Log    logging.Logger
}

// NewUserService creates a UserService on the given repository.
func NewUserService(users user.Repository, hasher PasswordHasher, cfg UserConfig) *UserService {
	return &UserService{
		Config: cfg,
		Users:  users,
		Hasher: hasher,
		Log:    logging.GetLogger("svc.usersvc"),
	}
}

// Register creates an active READER account. Any role requested by the
// caller is ignored.
func (s *UserService) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	return s.createUser(ctx, name, email, password, domain.RoleReader)
}

// CreateWithRole creates an active account with an explicit role.
func (s *UserService) CreateWithRole(ctx context.Context, name, email, password string, role domain.Role) (domain.User, error) {
	if !role.Valid() {
		return domain.User{}, domain.Validationf("role must be one of %s, %s", domain.RoleReader, domain.RoleLibrarian)
	}

	return s.createUser(ctx, name, email, password, role)
}

func (s *UserService) createUser(ctx context.Context, name, email, password string, role domain.Role) (created domain.User, err error) {
	name = strings.TrimSpace(name)
	email = domain.NormalizeEmail(email)
	log := s.Log.With(logging.Group("user", "email", email, "role", role))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "create user failed", "error", err)
		} else {
			log.InfoContext(ctx, "user created", "id", created.ID)
		}
	}()

	if err := validateName(name); err != nil {
		return domain.User{}, err
	}

	if err := validateEmail(email); err != nil {
		return domain.User{}, err
	}

	if err := s.validatePassword(password); err != nil {
		return domain.User{}, err
	}

	if err := s.ensureEmailFree(ctx, email, 0); err != nil {
		return domain.User{}, err
	}

	hash, err := s.Hasher.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	//nolint:exhaustruct
	created, err = s.Users.Create(ctx, domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	return created, nil
}

// Get returns the user with the given id.
func (s *UserService) Get(ctx context.Context, id int64) (domain.User, error) {
	u, err := s.Users.Get(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}

	return u, nil
}

// List returns all users ordered by name.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.Users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return users, nil
}

// Update applies the non-nil fields of patch to the user. Creation rules
// apply to every changed field.
func (s *UserService) Update(ctx context.Context, id int64, patch domain.UserPatch) (updated domain.User, err error) {
	log := s.Log.With(logging.Group("user", "id", id))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "update user failed", "error", err)
		} else {
			log.InfoContext(ctx, "user updated")
		}
	}()

	current, err := s.Users.Get(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}

	if patch.Name != nil {
		current.Name = strings.TrimSpace(*patch.Name)
		if err := validateName(current.Name); err != nil {
			return domain.User{}, err
		}
	}

	if patch.Email != nil {
		email := domain.NormalizeEmail(*patch.Email)
		if err := validateEmail(email); err != nil {
			return domain.User{}, err
		}

		if email != current.Email {
			if err := s.ensureEmailFree(ctx, email, id); err != nil {
				return domain.User{}, err
			}
		}

		current.Email = email
	}

	if patch.Role != nil {
		if !patch.Role.Valid() {
			return domain.User{}, domain.Validationf("role must be one of %s, %s", domain.RoleReader, domain.RoleLibrarian)
		}

		current.Role = *patch.Role
	}

	if patch.Password != nil {
		if err := s.validatePassword(*patch.Password); err != nil {
			return domain.User{}, err
		}

		current.PasswordHash, err = s.Hasher.HashPassword(*patch.Password)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
	}

	updated, err = s.Users.Update(ctx, current)
	if err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}

	return updated, nil
}

// SetActive activates or deactivates an account. Inactive users cannot log
// in or borrow.
func (s *UserService) SetActive(ctx context.Context, id int64, active bool) (domain.User, error) {
	u, err := s.Users.SetActive(ctx, id, active)
	if err != nil {
		return domain.User{}, fmt.Errorf("set active: %w", err)
	}

	s.Log.InfoContext(ctx, "user activation changed", logging.Group("user", "id", id, "active", active))

	return u, nil
}

// Delete removes a user without unreturned loans.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.Users.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	s.Log.InfoContext(ctx, "user deleted", logging.Group("user", "id", id))

	return nil
}

// ensureEmailFree fails fast with ErrEmailTaken when another user owns email.
// The unique constraint still decides races.
func (s *UserService) ensureEmailFree(ctx context.Context, email string, selfID int64) error {
	existing, found, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("get user by email: %w", err)
	}

	if found && existing.ID != selfID {
		return domain.ErrEmailTaken
	}

	return nil
}

func validateName(name string) error {
	if name == "" {
		return domain.Validationf("name is required")
	}

	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return domain.Validationf("email is required")
	}

	local, host, ok := strings.Cut(email, "@")
	if !ok || local == "" || host == "" {
		return domain.Validationf("email %q is not a valid address", email)
	}

	return nil
}

func (s *UserService) validatePassword(password string) error {
	if utf8.RuneCountInString(password) < s.Config.MinPasswordLength {
		return domain.Validationf("password must be at least %d characters", s.Config.MinPasswordLength)
	}

	return nil
}
