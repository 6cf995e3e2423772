package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// SigningConfig holds everything needed to issue and verify access tokens.
type SigningConfig struct {
	Secret              []byte
	Issuer              string
	Audience            string
	AccessTokenLifetime time.Duration
}

// Claims carried by an access token. Subject is the decimal user ID.
type Claims struct {
	Username string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// TokenCodec issues and validates HS256 access tokens.
type TokenCodec struct {
	cfg    SigningConfig
	parser *jwt.Parser
	now    func() time.Time
}

func NewTokenCodec(cfg SigningConfig) *TokenCodec {
	c := &TokenCodec{cfg: cfg, now: time.Now}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c
}

// Issue signs an access token for u. The returned claims carry the expiry.
func (c *TokenCodec) Issue(u *entity.User) (string, *Claims, error) {
	if len(c.cfg.Secret) == 0 {
		return "", nil, errors.New("signing secret is empty")
	}
	now := c.now()
	claims := &Claims{
		Username: u.Username,
		Email:    u.Email,
		Role:     u.RoleOrDefault(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.AccessTokenLifetime)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        utilities.NewSnowflakeID(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.Secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Validate verifies signature, issuer, audience and nbf <= now < exp with no
// clock skew. Any failure yields (nil, false).
func (c *TokenCodec) Validate(token string) (*Claims, bool) {
	if token == "" || len(c.cfg.Secret) == 0 {
		return nil, false
	}
	claims := &Claims{}
	tok, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.cfg.Secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, false
	}
	if _, err := claims.UserID(); err != nil {
		return nil, false
	}
	return claims, true
}
