package user

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes and verifies passwords. Digests are self-describing:
// algorithm, parameters and salt travel inside the stored string.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	// Verify fails closed: a malformed digest never matches.
	Verify(digest, pw string) bool
	NeedsRehash(digest string) bool
}

const (
	AlgoArgon2id = "argon2id"
	AlgoBcrypt   = "bcrypt"
)

var ErrUnknownAlgo = errors.New("unknown password algorithm")

// Upper bounds on argon2 parameters read back from stored digests.
const (
	maxArgonMemory  = 1 << 20 // KiB
	maxArgonTime    = 16
	maxArgonThreads = 16
)

// Argon2idHasher produces PHC-formatted argon2id digests:
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<threads>$<salt>$<key>
type Argon2idHasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2id follows the OWASP minimum recommendation.
func DefaultArgon2id() Argon2idHasher {
	return Argon2idHasher{Time: 2, Memory: 19 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
}

func (a Argon2idHasher) Hash(pw string) (string, error) {
	salt := make([]byte, a.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(pw), salt, a.Time, a.Memory, a.Threads, a.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, a.Memory, a.Time, a.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func (a Argon2idHasher) Verify(digest, pw string) bool {
	p, salt, key, err := parseArgon2id(digest)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(pw), salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1
}

func (a Argon2idHasher) NeedsRehash(digest string) bool {
	p, salt, key, err := parseArgon2id(digest)
	if err != nil {
		return true
	}
	return p.Time != a.Time || p.Memory != a.Memory || p.Threads != a.Threads ||
		uint32(len(salt)) != a.SaltLen || uint32(len(key)) != a.KeyLen
}

func parseArgon2id(digest string) (Argon2idHasher, []byte, []byte, error) {
	var p Argon2idHasher
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != AlgoArgon2id {
		return p, nil, nil, errors.New("not an argon2id digest")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errors.New("unsupported argon2 version")
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, fmt.Errorf("argon2 params: %w", err)
	}
	if p.Time == 0 || p.Time > maxArgonTime || p.Threads == 0 || p.Threads > maxArgonThreads ||
		p.Memory < 8*uint32(p.Threads) || p.Memory > maxArgonMemory {
		return p, nil, nil, errors.New("argon2 params out of range")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, errors.New("argon2 salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errors.New("argon2 key")
	}
	p.SaltLen, p.KeyLen = uint32(len(salt)), uint32(len(key))
	return p, salt, key, nil
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(digest, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(pw)) == nil
}

func (b BcryptHasher) NeedsRehash(digest string) bool {
	c, err := bcrypt.Cost([]byte(digest))
	return err != nil || c != b.cost()
}

// MultiHasher hashes with Primary and verifies any digest format it knows,
// so stored digests keep working after the configured algorithm changes.
type MultiHasher struct {
	Primary PasswordHasher
	Argon2  Argon2idHasher
	Bcrypt  BcryptHasher
}

// NewHasher builds a MultiHasher whose primary algorithm is algo.
func NewHasher(algo string) (*MultiHasher, error) {
	m := &MultiHasher{Argon2: DefaultArgon2id(), Bcrypt: BcryptHasher{Cost: 12}}
	switch strings.ToLower(strings.TrimSpace(algo)) {
	case "", AlgoArgon2id:
		m.Primary = m.Argon2
	case AlgoBcrypt:
		m.Primary = m.Bcrypt
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgo, algo)
	}
	return m, nil
}

func (m *MultiHasher) Hash(pw string) (string, error) {
	return m.Primary.Hash(pw)
}

func (m *MultiHasher) Verify(digest, pw string) bool {
	h := m.forDigest(digest)
	if h == nil {
		return false
	}
	return h.Verify(digest, pw)
}

// NeedsRehash is true when the digest was produced by another algorithm or with stale parameters.
func (m *MultiHasher) NeedsRehash(digest string) bool {
	h := m.forDigest(digest)
	if h == nil || algoOf(h) != algoOf(m.Primary) {
		return true
	}
	return m.Primary.NeedsRehash(digest)
}

func (m *MultiHasher) forDigest(digest string) PasswordHasher {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return m.Argon2
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return m.Bcrypt
	default:
		return nil
	}
}

func algoOf(h PasswordHasher) string {
	switch h.(type) {
	case Argon2idHasher:
		return AlgoArgon2id
	case BcryptHasher:
		return AlgoBcrypt
	default:
		return ""
	}
}
