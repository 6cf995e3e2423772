package auth

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

var cheapArgon = user.Argon2idHasher{Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32}

func testSigning() SigningConfig {
	return SigningConfig{
		Secret:              []byte("0123456789abcdef0123456789abcdef"),
		Issuer:              "pitchfork-auth",
		Audience:            "pitchfork-app",
		AccessTokenLifetime: 15 * time.Minute,
	}
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	svc := NewService(store, cheapArgon, NewTokenCodec(testSigning()), 7*24*time.Hour, nil)
	return svc, store
}

// memStore mimics the Postgres repo: single-row updates are atomic and
// ClearRefreshToken matches any existing id.
type memStore struct {
	mu     sync.Mutex
	users  map[int64]*entity.User
	nextID int64
	now    func() time.Time

	err              error
	failUpdate       error
	passwordUpdates  int
	createBeforeSeen bool
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*entity.User{}, now: time.Now}
}

func clone(u *entity.User) *entity.User {
	c := *u
	return &c
}

func (m *memStore) GetByUsername(_ context.Context, username string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Username == username {
			return clone(u), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) GetByRefreshToken(_ context.Context, tokenHash string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.RefreshTokenHash != nil && *u.RefreshTokenHash == tokenHash && u.HasLiveRefreshToken(m.now()) {
			return clone(u), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) Exists(_ context.Context, username, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.createBeforeSeen {
		return false, nil
	}
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Create(_ context.Context, u *entity.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return 0, userrepo.ErrDuplicate
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = clone(u)
	return u.ID, nil
}

func (m *memStore) UpdateRefreshToken(_ context.Context, id int64, tokenHash string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return false, m.failUpdate
	}
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	u.RefreshTokenHash, u.RefreshTokenExpiresAt = &tokenHash, &expiresAt
	return true, nil
}

func (m *memStore) ReplaceRefreshToken(_ context.Context, id int64, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return false, m.failUpdate
	}
	u, ok := m.users[id]
	if !ok || u.RefreshTokenHash == nil || *u.RefreshTokenHash != oldHash || !u.HasLiveRefreshToken(m.now()) {
		return false, nil
	}
	u.RefreshTokenHash, u.RefreshTokenExpiresAt = &newHash, &expiresAt
	return true, nil
}

func (m *memStore) ClearRefreshToken(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return false, m.failUpdate
	}
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	u.RefreshTokenHash, u.RefreshTokenExpiresAt = nil, nil
	return true, nil
}

func (m *memStore) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = hash
	m.passwordUpdates++
	return nil
}

func (m *memStore) byID(id int64) *entity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.users[id])
}

func (m *memStore) setActive(id int64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].IsActive = active
}
