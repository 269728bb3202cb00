package authsvc

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mkrupp/library/internal/domain"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// HashPassword hashes password with bcrypt at the given cost. Every call uses a
// fresh salt.
func HashPassword(password string, cost int) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", domain.Validationf("password must not exceed %d bytes", MaxPasswordBytes)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("generate hash: %w", err)
	}

	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. A malformed hash never
// matches.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
