package domain

// Identity is the authenticated principal decoded from a session token.
type Identity struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// IsLibrarian reports whether the identity carries the LIBRARIAN role.
func (id Identity) IsLibrarian() bool {
	return id.Role == RoleLibrarian
}

// CanAccessUser reports whether the identity may read data owned by userID:
// its own, or anyone's for a librarian.
func (id Identity) CanAccessUser(userID int64) bool {
	return id.IsLibrarian() || id.UserID == userID
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	User      User   `json:"user"`
}
