package authsvc

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	http_ "github.com/mkrupp/library/internal/infra/transport/http"
)

// AuthConfig contains configuration parameters for the authentication service.
type AuthConfig struct {
	// SigningKeyFile is the path to the RSA private key file
	SigningKeyFile string `env:"SIGNING_KEY_FILE" default:"var/storage/library.key"`

	// TokenDuration is the validity duration of session tokens
	TokenDuration time.Duration `env:"TOKEN_DURATION" default:"24h"`

	// BcryptCost is the bcrypt work factor for new password hashes
	BcryptCost int `env:"BCRYPT_COST" default:"11"`
}

// UserLookup is the read side of the user directory the service needs.
type UserLookup interface {
	Get(ctx context.Context, id int64) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, bool, error)
}

// AuthService hashes passwords, issues and validates session tokens and
// logs users in.
type AuthService struct {
	Config     AuthConfig
	Users      UserLookup
	Log        logging.Logger
	SigningKey *rsa.PrivateKey

	// Now is the clock used for token timestamps. Defaults to time.Now.
	Now func() time.Time

	dummyHash func() string
}

var _ http_.TokenValidator = (*AuthService)(nil)

// NewAuthService creates an AuthService, loading or generating the signing key
// configured in cfg.
func NewAuthService(users UserLookup, cfg AuthConfig) (*AuthService, error) {
	signingKey, err := GetPrivateKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("get private key: %w", err)
	}

	return NewAuthServiceWithKey(users, cfg, signingKey), nil
}

// NewAuthServiceWithKey creates an AuthService signing with signingKey.
func NewAuthServiceWithKey(users UserLookup, cfg AuthConfig, signingKey *rsa.PrivateKey) *AuthService {
	s := &AuthService{
		Config:     cfg,
		Users:      users,
		Log:        logging.GetLogger("svc.authsvc"),
		SigningKey: signingKey,
		Now:        time.Now,
	}

	s.dummyHash = sync.OnceValue(func() string {
		hash, _ := HashPassword("library-dummy-password", s.Config.BcryptCost)

		return hash
	})

	return s
}

func (s *AuthService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}

	return s.Now()
}

// HashPassword hashes password at the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	return HashPassword(password, s.Config.BcryptCost)
}

// Login authenticates an active user by email and password and issues a
// session token. Unknown emails, inactive users and wrong passwords are all
// reported as ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (resp domain.LoginResponse, err error) {
	email = domain.NormalizeEmail(email)
	log := s.Log.With(logging.Group("user", "email", email))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "login failed", "error", err)
		} else {
			log.InfoContext(ctx, "login successful", "user_id", resp.User.ID)
		}
	}()

	if email == "" || strings.TrimSpace(password) == "" {
		return domain.LoginResponse{}, domain.Validationf("email and password are required")
	}

	user, found, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("get user: %w", err)
	}

	if !found {
		// Costs the same as comparing against a real hash.
		_ = VerifyPassword(password, s.dummyHash())

		return domain.LoginResponse{}, domain.ErrInvalidCredentials
	}

	if !VerifyPassword(password, user.PasswordHash) || !user.Active {
		return domain.LoginResponse{}, domain.ErrInvalidCredentials
	}

	token, expiresAt, err := s.IssueToken(ctx, user.Identity())
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("issue token: %w", err)
	}

	return domain.LoginResponse{Token: token, ExpiresAt: expiresAt.Unix(), User: user}, nil
}

// Me returns the user behind identity.
func (s *AuthService) Me(ctx context.Context, identity domain.Identity) (domain.User, error) {
	user, err := s.Users.Get(ctx, identity.UserID)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}
