package http

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/mkrupp/library/internal/domain"
	context_ "github.com/mkrupp/library/internal/infra/context"
	"github.com/mkrupp/library/internal/infra/logging"
)

// TokenValidator decodes a session token into the identity it carries.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (domain.Identity, error)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}

// Authenticating returns middleware attaching the caller's identity to the
// request context. Missing, invalid and expired tokens are rejected with 401
// before the handler runs.
func Authenticating(validator TokenValidator, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				WriteError(w, r, domain.ErrNoAuthToken, log)

				return
			}

			identity, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				WriteError(w, r, err, log)

				return
			}

			next.ServeHTTP(w, r.WithContext(context_.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole returns middleware rejecting callers whose role is not among
// roles with 403. It must run after Authenticating.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	log := logging.GetLogger("infra.transport.http.gate")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := context_.IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, r, domain.ErrNoAuthToken, log)

				return
			}

			if !slices.Contains(roles, identity.Role) {
				WriteError(w, r, domain.ErrRoleNotAllowed, log)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Identity returns the identity attached by Authenticating.
func Identity(r *http.Request) (domain.Identity, error) {
	identity, ok := context_.IdentityFromContext(r.Context())
	if !ok {
		return domain.Identity{}, domain.ErrNoAuthToken
	}

	return identity, nil
}
