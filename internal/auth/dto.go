package auth

import (
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// LoginRequest login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned on login. On failure only Success is set.
type LoginResponse struct {
	Success      bool            `json:"success"`
	AccessToken  string          `json:"accessToken,omitempty"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
	User         *entity.Profile `json:"user,omitempty"`
}

// RegisterRequest request body for register endpoint.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type RegisterResponse struct {
	Success bool            `json:"success"`
	User    *entity.Profile `json:"user,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	Success      bool       `json:"success"`
	AccessToken  string     `json:"accessToken,omitempty"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}
