package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

// MinPasswordLength is the shortest password accepted at registration, in characters.
const MinPasswordLength = 6

// UserStore is the persistence the service needs. Lookups return sql.ErrNoRows
// on a miss; Create returns repo.ErrDuplicate on a username/email collision.
// Each mutating call must be a single atomic operation.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	GetByRefreshToken(ctx context.Context, tokenHash string) (*entity.User, error)
	Exists(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, u *entity.User) (int64, error)
	UpdateRefreshToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) (bool, error)
	ReplaceRefreshToken(ctx context.Context, id int64, oldHash, newHash string, expiresAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, id int64) (bool, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// Service orchestrates registration, login, refresh-token rotation, logout and
// access token validation. It keeps no per-user state in memory.
type Service struct {
	store      UserStore
	hasher     user.PasswordHasher
	codec      *TokenCodec
	refresh    RefreshTokenGenerator
	refreshTTL time.Duration
	logger     *zap.SugaredLogger
	now        func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

// NewService wires a Service. A nil hasher selects argon2id, a nil logger discards output.
func NewService(store UserStore, hasher user.PasswordHasher, codec *TokenCodec, refreshTTL time.Duration, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = user.DefaultArgon2id()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:      store,
		hasher:     hasher,
		codec:      codec,
		refresh:    RandomRefreshTokens{},
		refreshTTL: refreshTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Register creates an active account with the default role.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || email == "" || strings.TrimSpace(req.Password) == "" {
		return nil, ErrInvalidInput
	}
	if req.Password != req.PasswordConfirm {
		return nil, ErrPasswordMismatch
	}
	if utf8.RuneCountInString(req.Password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	exists, err := s.store.Exists(ctx, username, email)
	if err != nil {
		return nil, s.storeErr("exists", err)
	}
	if exists {
		return nil, ErrDuplicateAccount
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", ErrInternal, err)
	}
	role := entity.DefaultRole
	u := &entity.User{
		Username:     username,
		Email:        email,
		PasswordHash: digest,
		Role:         &role,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if _, err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicate) {
			return nil, ErrDuplicateAccount
		}
		return nil, s.storeErr("create", err)
	}
	s.logger.Infow("user registered", "user_id", u.ID)
	return &RegisterResponse{Success: true, User: u.Profile()}, nil
}

// Login verifies credentials and starts a session. Unknown user, wrong password
// and inactive account all yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || strings.TrimSpace(req.Password) == "" {
		return nil, ErrInvalidInput
	}

	u, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// keep the miss as slow as a real verification
			s.hasher.Verify(s.dummy(), req.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, s.storeErr("get by username", err)
	}
	if !s.hasher.Verify(u.PasswordHash, req.Password) || !u.IsActive {
		s.logger.Debugw("login rejected", "user_id", u.ID)
		return nil, ErrInvalidCredentials
	}

	access, claims, err := s.codec.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("%w: sign access token: %v", ErrInternal, err)
	}
	refresh, err := s.refresh.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	ok, err := s.store.UpdateRefreshToken(ctx, u.ID, HashRefreshToken(refresh), s.now().Add(s.refreshTTL))
	if err != nil {
		return nil, s.storeErr("update refresh token", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	s.rehashIfNeeded(ctx, u, req.Password)
	s.logger.Infow("user logged in", "user_id", u.ID)
	exp := claims.ExpiresAt.Time
	return &LoginResponse{
		Success:      true,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    &exp,
		User:         u.Profile(),
	}, nil
}

// Refresh exchanges a live refresh token for a new access token and a new
// refresh token. The presented token stops working once the new one is stored;
// of two concurrent refreshes with the same token only one succeeds.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (*RefreshResponse, error) {
	if strings.TrimSpace(req.RefreshToken) == "" {
		return nil, ErrInvalidInput
	}
	oldHash := HashRefreshToken(req.RefreshToken)

	u, err := s.store.GetByRefreshToken(ctx, oldHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenExpiredOrUnknown
		}
		return nil, s.storeErr("get by refresh token", err)
	}
	if !u.IsActive || !u.HasLiveRefreshToken(s.now()) {
		return nil, ErrTokenExpiredOrUnknown
	}

	access, claims, err := s.codec.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("%w: sign access token: %v", ErrInternal, err)
	}
	refresh, err := s.refresh.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	ok, err := s.store.ReplaceRefreshToken(ctx, u.ID, oldHash, HashRefreshToken(refresh), s.now().Add(s.refreshTTL))
	if err != nil {
		return nil, s.storeErr("replace refresh token", err)
	}
	if !ok {
		s.logger.Warnw("refresh token rotated concurrently", "user_id", u.ID)
		return nil, ErrTokenExpiredOrUnknown
	}

	exp := claims.ExpiresAt.Time
	return &RefreshResponse{
		Success:      true,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    &exp,
	}, nil
}

// Logout clears the stored refresh token of userID. Repeating it is harmless.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	ok, err := s.store.ClearRefreshToken(ctx, userID)
	if err != nil {
		return s.storeErr("clear refresh token", err)
	}
	if !ok {
		return ErrUnknownAccount
	}
	s.logger.Infow("user logged out", "user_id", userID)
	return nil
}

// ValidateToken reports whether token is a currently valid access token.
func (s *Service) ValidateToken(token string) bool {
	_, ok := s.codec.Validate(token)
	return ok
}

// Authenticate returns the claims of a valid access token.
func (s *Service) Authenticate(token string) (*Claims, error) {
	claims, ok := s.codec.Validate(token)
	if !ok {
		return nil, ErrMalformedOrInvalidToken
	}
	return claims, nil
}

func (s *Service) storeErr(op string, err error) error {
	s.logger.Errorw("user store call failed", "op", op, "err", err)
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// rehashIfNeeded upgrades a digest after a successful login. Failures are logged only.
func (s *Service) rehashIfNeeded(ctx context.Context, u *entity.User, password string) {
	if !s.hasher.NeedsRehash(u.PasswordHash) {
		return
	}
	digest, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warnw("password rehash failed", "user_id", u.ID, "err", err)
		return
	}
	if err := s.store.UpdatePassword(ctx, u.ID, digest); err != nil {
		s.logger.Warnw("password rehash not stored", "user_id", u.ID, "err", err)
		return
	}
	u.PasswordHash = digest
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyDigest, _ = s.hasher.Hash("pitchfork-dummy-password")
	})
	return s.dummyDigest
}
