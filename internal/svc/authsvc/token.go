package authsvc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
)

// Claims is the payload of a session token.
type Claims struct {
	UserID int64       `json:"user_id"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`

	jwt.RegisteredClaims
}

// IssueToken signs a session token for identity, valid for the configured
// token duration.
func (s *AuthService) IssueToken(ctx context.Context, identity domain.Identity) (token string, expiresAt time.Time, err error) {
	log := s.Log.With(logging.Group("token", "user_id", identity.UserID, "role", identity.Role))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "issue token failed", "error", err)
		} else {
			log.DebugContext(ctx, "token issued", "exp", expiresAt.UTC().Format(time.RFC3339))
		}
	}()

	now := s.now()
	expiresAt = now.Add(s.Config.TokenDuration)

	//nolint:exhaustruct
	claims := Claims{
		UserID: identity.UserID,
		Email:  identity.Email,
		Role:   identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodPS256, claims).SignedString(s.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return token, expiresAt, nil
}

// ValidateToken verifies the signature and expiry of token and returns the
// identity it carries. Expired tokens fail with ErrTokenExpired, everything
// else with ErrInvalidAuthToken.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (identity domain.Identity, err error) {
	defer func() {
		if err != nil {
			s.Log.DebugContext(ctx, "validate token failed", "error", err)
		}
	}()

	var claims Claims

	_, err = jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return &s.SigningKey.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodPS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.Identity{}, errors.Join(domain.ErrTokenExpired, err)
	case err != nil:
		return domain.Identity{}, errors.Join(domain.ErrInvalidAuthToken, err)
	case !claims.Role.Valid() || claims.UserID <= 0:
		return domain.Identity{}, fmt.Errorf("claims user %d role %q: %w", claims.UserID, claims.Role, domain.ErrInvalidAuthToken)
	}

	return domain.Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}
