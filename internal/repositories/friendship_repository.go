package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var (
	ErrFriendshipNotFound = errors.New("friendship not found")
	ErrFriendshipExists   = errors.New("friendship already exists")
)

// FriendshipRepository abstracts friendship persistence. One row per unordered
// pair; both orders are checked on lookup.
type FriendshipRepository interface {
	CreateRequest(ctx context.Context, requesterID, recipientID int) (models.Friendship, error)
	GetByID(ctx context.Context, id int) (models.Friendship, error)
	GetBetween(ctx context.Context, userID, otherID int) (models.Friendship, error)
	AreFriends(ctx context.Context, userID, otherID int) (bool, error)
	UpdateStatus(ctx context.Context, id int, status string) error
	Delete(ctx context.Context, id int) error
	ListForUser(ctx context.Context, userID int, status string) ([]models.Friendship, error)
}

// FriendshipRepo is a sqlx implementation of FriendshipRepository.
type FriendshipRepo struct {
	db *sqlx.DB
}

// NewFriendshipRepo constructs a FriendshipRepo.
func NewFriendshipRepo(db *sqlx.DB) *FriendshipRepo {
	return &FriendshipRepo{db: db}
}

const friendshipColumns = `id, requester_id, recipient_id, status, created_at, updated_at`

// CreateRequest inserts a pending request unless a row already exists in either order.
func (r *FriendshipRepo) CreateRequest(ctx context.Context, requesterID, recipientID int) (models.Friendship, error) {
	if _, err := r.GetBetween(ctx, requesterID, recipientID); err == nil {
		return models.Friendship{}, ErrFriendshipExists
	} else if !errors.Is(err, ErrFriendshipNotFound) {
		return models.Friendship{}, err
	}

	var fr models.Friendship
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO friendships (requester_id, recipient_id, status) VALUES ($1, $2, $3)
         RETURNING `+friendshipColumns, requesterID, recipientID, models.FriendshipPending).
		StructScan(&fr)
	return fr, err
}

// GetByID fetches a friendship by id.
func (r *FriendshipRepo) GetByID(ctx context.Context, id int) (models.Friendship, error) {
	var fr models.Friendship
	err := r.db.GetContext(ctx, &fr, `SELECT `+friendshipColumns+` FROM friendships WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Friendship{}, ErrFriendshipNotFound
	}
	return fr, err
}

// GetBetween fetches the row for an unordered pair.
func (r *FriendshipRepo) GetBetween(ctx context.Context, userID, otherID int) (models.Friendship, error) {
	var fr models.Friendship
	err := r.db.GetContext(ctx, &fr,
		`SELECT `+friendshipColumns+` FROM friendships
         WHERE (requester_id=$1 AND recipient_id=$2) OR (requester_id=$2 AND recipient_id=$1)`,
		userID, otherID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Friendship{}, ErrFriendshipNotFound
	}
	return fr, err
}

// AreFriends reports whether an accepted friendship exists between the pair.
func (r *FriendshipRepo) AreFriends(ctx context.Context, userID, otherID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM friendships
         WHERE status=$3 AND ((requester_id=$1 AND recipient_id=$2) OR (requester_id=$2 AND recipient_id=$1)))`,
		userID, otherID, models.FriendshipAccepted)
	return exists, err
}

// UpdateStatus transitions a friendship.
func (r *FriendshipRepo) UpdateStatus(ctx context.Context, id int, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE friendships SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

// Delete removes a friendship row.
func (r *FriendshipRepo) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM friendships WHERE id=$1`, id)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

// ListForUser returns friendships involving the user, optionally filtered by status.
func (r *FriendshipRepo) ListForUser(ctx context.Context, userID int, status string) ([]models.Friendship, error) {
	var friendships []models.Friendship
	if status == "" {
		err := r.db.SelectContext(ctx, &friendships,
			`SELECT `+friendshipColumns+` FROM friendships
             WHERE requester_id=$1 OR recipient_id=$1 ORDER BY created_at DESC`, userID)
		return friendships, err
	}
	err := r.db.SelectContext(ctx, &friendships,
		`SELECT `+friendshipColumns+` FROM friendships
         WHERE (requester_id=$1 OR recipient_id=$1) AND status=$2 ORDER BY created_at DESC`, userID, status)
	return friendships, err
}
