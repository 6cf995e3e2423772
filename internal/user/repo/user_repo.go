package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// ErrDuplicate is returned by Create when username or email is already taken.
var ErrDuplicate = errors.New("duplicate user")

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const userColumns = `id, username, email, password_hash, role, is_active,
	refresh_token_hash, refresh_token_expires_at, created_at, updated_at`

// UserRepo provides data access for users table using sqlx.
// Every mutating method is a single statement, so each call is atomic on its own.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// GetByUsername fetches by username or returns sql.ErrNoRows.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE username=$1 LIMIT 1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, username); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByRefreshToken fetches the user holding the given refresh token digest,
// provided it has not expired. Returns sql.ErrNoRows otherwise.
func (r *UserRepo) GetByRefreshToken(ctx context.Context, tokenHash string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users
		WHERE refresh_token_hash=$1 AND refresh_token_expires_at > NOW() LIMIT 1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, tokenHash); err != nil {
		return nil, err
	}
	return &row, nil
}

// Exists reports whether username or email is already used by any user, active or not.
func (r *UserRepo) Exists(ctx context.Context, username, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1 OR email=$2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, q, username, email); err != nil {
		return false, err
	}
	return ok, nil
}

// Create inserts a new user row and returns its ID.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (int64, error) {
	const q = `INSERT INTO users (username, email, password_hash, role, is_active, created_at)
		VALUES (:username, :email, :password_hash, :role, :is_active, :created_at) RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		return 0, mapInsertErr(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, mapInsertErr(err)
		}
		return 0, errors.New("no id returned")
	}
	if err := rows.Scan(&u.ID); err != nil {
		return 0, err
	}
	return u.ID, nil
}

func mapInsertErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

// UpdateRefreshToken overwrites the stored refresh token unconditionally.
// Returns false when no row matched id.
func (r *UserRepo) UpdateRefreshToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) (bool, error) {
	const q = `UPDATE users SET refresh_token_hash=$2, refresh_token_expires_at=$3, updated_at=NOW() WHERE id=$1`
	return r.execAffected(ctx, q, id, tokenHash, expiresAt)
}

// ReplaceRefreshToken swaps oldHash for newHash only while oldHash is still the
// live token of user id. Returns false when another rotation or a logout got there first.
func (r *UserRepo) ReplaceRefreshToken(ctx context.Context, id int64, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	const q = `UPDATE users SET refresh_token_hash=$3, refresh_token_expires_at=$4, updated_at=NOW()
		WHERE id=$1 AND refresh_token_hash=$2 AND refresh_token_expires_at > NOW()`
	return r.execAffected(ctx, q, id, oldHash, newHash, expiresAt)
}

// ClearRefreshToken removes the stored refresh token. Returns false when no row matched id.
func (r *UserRepo) ClearRefreshToken(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE users SET refresh_token_hash=NULL, refresh_token_expires_at=NULL, updated_at=NOW() WHERE id=$1`
	return r.execAffected(ctx, q, id)
}

// UpdatePassword replaces the stored password digest.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id, hash)
	return err
}

func (r *UserRepo) execAffected(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
