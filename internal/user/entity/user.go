package entity

import "time"

// DefaultRole is assigned on registration and assumed when a row has no role.
const DefaultRole = "User"

// User represents an account row in the `users` table.
// RefreshTokenHash holds the SHA-256 hex digest of the live refresh token, never the token itself.
type User struct {
	ID                    int64      `db:"id"`
	Username              string     `db:"username"`
	Email                 string     `db:"email"`
	PasswordHash          string     `db:"password_hash"`
	Role                  *string    `db:"role"`
	IsActive              bool       `db:"is_active"`
	RefreshTokenHash      *string    `db:"refresh_token_hash"`
	RefreshTokenExpiresAt *time.Time `db:"refresh_token_expires_at"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             *time.Time `db:"updated_at"`
}

// RoleOrDefault returns the user's role, or DefaultRole when unset.
func (u *User) RoleOrDefault() string {
	if u.Role == nil || *u.Role == "" {
		return DefaultRole
	}
	return *u.Role
}

// HasLiveRefreshToken reports whether a refresh token is stored and unexpired at now.
func (u *User) HasLiveRefreshToken(now time.Time) bool {
	return u.RefreshTokenHash != nil && u.RefreshTokenExpiresAt != nil && u.RefreshTokenExpiresAt.After(now)
}

// Profile is the public projection of a user. It never carries secrets.
type Profile struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile maps the user to its public projection.
func (u *User) Profile() *Profile {
	return &Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.RoleOrDefault(),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}
