package domain

import (
	"strings"
	"time"
)

// Role grants a set of permissions to a user.
type Role string

const (
	RoleLibrarian Role = "LIBRARIAN"
	RoleReader    Role = "READER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleLibrarian || r == RoleReader
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", Validationf("role must be one of %s, %s", RoleReader, RoleLibrarian)
	}

	return role, nil
}

// User is a library account. PasswordHash is never serialized.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Identity returns the token identity of u.
func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// UserPatch carries the fields of a user update; nil fields are left unchanged.
type UserPatch struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *Role   `json:"role"`
	Password *string `json:"password"`
}

// NormalizeEmail trims and lower-cases an email address. Emails are compared
// in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
