package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

func newRepoWithMock(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewUserRepo(sqlx.NewDb(db, "postgres")), mock
}

var userCols = []string{
	"id", "username", "email", "password_hash", "role", "is_active",
	"refresh_token_hash", "refresh_token_expires_at", "created_at", "updated_at",
}

func TestGetByUsername_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)^SELECT .* FROM users WHERE username=\$1 LIMIT 1$`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(1), "alice", "a@x.com", "$argon2id$x", nil, true, nil, nil, created, nil))

	u, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, "a@x.com", u.Email)
	assert.True(t, u.IsActive)
	assert.Nil(t, u.Role)
	assert.Nil(t, u.RefreshTokenHash)
	assert.True(t, created.Equal(u.CreatedAt))
}

func TestGetByUsername_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM users WHERE username=\$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := repo.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGetByRefreshToken_FiltersExpired(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectQuery(`(?s)FROM users\s+WHERE refresh_token_hash=\$1 AND refresh_token_expires_at > NOW\(\)`).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(2), "bob", "b@x.com", "d", "Admin", true, "h1", exp, time.Now(), nil))

	u, err := repo.GetByRefreshToken(context.Background(), "h1")
	require.NoError(t, err)
	require.NotNil(t, u.RefreshTokenHash)
	assert.Equal(t, "h1", *u.RefreshTokenHash)
	assert.Equal(t, "Admin", u.RoleOrDefault())
}

func TestExists(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM users WHERE username=\$1 OR email=\$2\)`).
		WithArgs("alice", "a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), "alice", "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreate_ReturnsID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	role := entity.DefaultRole
	u := &entity.User{Username: "alice", Email: "a@x.com", PasswordHash: "d", Role: &role, IsActive: true, CreatedAt: time.Now()}

	mock.ExpectQuery(`(?s)^INSERT INTO users \(username, email, password_hash, role, is_active, created_at\).*RETURNING id$`).
		WithArgs("alice", "a@x.com", "d", "User", true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := repo.Create(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(42), u.ID)
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: uniqueViolation, Message: "duplicate key value"})

	_, err := repo.Create(context.Background(), &entity.User{Username: "alice", Email: "a@x.com", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCreate_OtherError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &entity.User{Username: "alice", Email: "a@x.com", CreatedAt: time.Now()})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)
}

func TestUpdateRefreshToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	exp := time.Now().Add(24 * time.Hour)

	mock.ExpectExec(`UPDATE users SET refresh_token_hash=\$2, refresh_token_expires_at=\$3, updated_at=NOW\(\) WHERE id=\$1`).
		WithArgs(int64(1), "h1", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateRefreshToken(context.Background(), 1, "h1", exp)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReplaceRefreshToken_Conditional(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	exp := time.Now().Add(24 * time.Hour)
	q := `(?s)UPDATE users SET refresh_token_hash=\$3, refresh_token_expires_at=\$4, updated_at=NOW\(\)\s+WHERE id=\$1 AND refresh_token_hash=\$2 AND refresh_token_expires_at > NOW\(\)`

	mock.ExpectExec(q).WithArgs(int64(1), "old", "new", exp).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(1), "old", "newer", exp).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.ReplaceRefreshToken(context.Background(), 1, "old", "new", exp)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ReplaceRefreshToken(context.Background(), 1, "old", "newer", exp)
	require.NoError(t, err)
	assert.False(t, ok, "second rotation of the same token must not match")
}

func TestClearRefreshToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `UPDATE users SET refresh_token_hash=NULL, refresh_token_expires_at=NULL, updated_at=NOW\(\) WHERE id=\$1`

	mock.ExpectExec(q).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(99)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs(int64(2)).WillReturnError(errors.New("db down"))

	ok, err := repo.ClearRefreshToken(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ClearRefreshToken(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.ClearRefreshToken(context.Background(), 2)
	assert.Error(t, err)
}

func TestUpdatePassword(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE users SET password_hash=\$2, updated_at=NOW\(\) WHERE id=\$1`).
		WithArgs(int64(5), "$argon2id$new").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), 5, "$argon2id$new"))
}
