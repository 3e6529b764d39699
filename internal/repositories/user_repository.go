package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts user persistence. Online/last-seen writes come only
// from the gateway connection lifecycle.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	BulkUsers(ctx context.Context, ids []int) ([]models.User, error)
	SetOnline(ctx context.Context, userID int) error
	SetOffline(ctx context.Context, userID int, lastSeen time.Time) error
	ListUsers(ctx context.Context, query string, page, limit int) ([]models.User, int, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, email, online, last_seen, theme, background, created_at`

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// BulkUsers fetches multiple users in one query.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var users []models.User
	err = r.db.SelectContext(ctx, &users, query, args...)
	return users, err
}

// SetOnline marks the user durably online.
func (r *UserRepo) SetOnline(ctx context.Context, userID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET online = TRUE WHERE id=$1`, userID)
	return err
}

// SetOffline marks the user offline and records the disconnect time.
func (r *UserRepo) SetOffline(ctx context.Context, userID int, lastSeen time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET online = FALSE, last_seen=$2 WHERE id=$1`, userID, lastSeen)
	return err
}

// ListUsers returns a page of users matching an optional username/email search.
func (r *UserRepo) ListUsers(ctx context.Context, query string, page, limit int) ([]models.User, int, error) {
	pattern := "%" + query + "%"

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM users WHERE username ILIKE $1 OR email ILIKE $1`, pattern); err != nil {
		return nil, 0, err
	}

	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users WHERE username ILIKE $1 OR email ILIKE $1
         ORDER BY username ASC LIMIT $2 OFFSET $3`, pattern, limit, (page-1)*limit)
	return users, total, err
}
