package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// RefreshTokenBytes is the entropy drawn for each refresh token.
const RefreshTokenBytes = 64

// RefreshTokenGenerator produces opaque refresh tokens.
type RefreshTokenGenerator interface {
	Generate() (string, error)
}

// RandomRefreshTokens draws RefreshTokenBytes from Reader (crypto/rand when nil)
// and encodes them as standard base64.
type RandomRefreshTokens struct {
	Reader io.Reader
}

func (g RandomRefreshTokens) Generate() (string, error) {
	r := g.Reader
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, RefreshTokenBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// HashRefreshToken is the at-rest form of a refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
