// Package config loads the auth service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinSecretLength is the shortest accepted HS256 signing secret, in bytes.
const MinSecretLength = 32

// Config holds runtime settings for the auth service.
type Config struct {
	HTTPAddr     string `env:"HTTP_ADDR"          envDefault:"0.0.0.0:8431"`
	BasePath     string `env:"HTTP_BASE_PATH"     envDefault:"/api/auth"`
	PasswordAlgo string `env:"AUTH_PASSWORD_ALGO" envDefault:"argon2id"`
	JWT          JWT    `envPrefix:"JWT_"`
}

// JWT controls token signing and lifetimes.
type JWT struct {
	Secret             string `env:"SECRET"`
	Issuer             string `env:"ISSUER"               envDefault:"pitchfork-auth"`
	Audience           string `env:"AUDIENCE"             envDefault:"pitchfork-app"`
	AccessTokenMinutes int    `env:"ACCESS_TOKEN_MINUTES" envDefault:"15"`
	RefreshTokenDays   int    `env:"REFRESH_TOKEN_DAYS"   envDefault:"7"`
}

// AccessTokenLifetime returns the access token lifetime as a duration.
func (j JWT) AccessTokenLifetime() time.Duration {
	return time.Duration(j.AccessTokenMinutes) * time.Minute
}

// RefreshTokenLifetime returns the refresh token lifetime as a duration.
func (j JWT) RefreshTokenLifetime() time.Duration {
	return time.Duration(j.RefreshTokenDays) * 24 * time.Hour
}

// Load parses the process environment.
func Load() (Config, error) {
	return load(env.Options{})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	// routes are mounted as BasePath+"/login", so "/" collapses to ""
	if p := strings.Trim(strings.TrimSpace(cfg.BasePath), "/"); p != "" {
		cfg.BasePath = "/" + p
	} else {
		cfg.BasePath = ""
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", MinSecretLength)
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT_ISSUER must not be empty")
	}
	if strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT_AUDIENCE must not be empty")
	}
	if c.JWT.AccessTokenMinutes <= 0 {
		return errors.New("JWT_ACCESS_TOKEN_MINUTES must be positive")
	}
	if c.JWT.RefreshTokenDays <= 0 {
		return errors.New("JWT_REFRESH_TOKEN_DAYS must be positive")
	}
	return nil
}
