package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence and membership.
type ConversationRepository interface {
	CreateOrGetPersonal(ctx context.Context, userID, friendID int) (models.Conversation, error)
	CreateGroup(ctx context.Context, adminID int, name string, memberIDs []int) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID int) (bool, error)
	ListForUser(ctx context.Context, userID int) ([]models.Conversation, error)
	ConversationIDsForUser(ctx context.Context, userID int) ([]int, error)
	AddMember(ctx context.Context, conversationID, userID int) error
	RemoveMember(ctx context.Context, conversationID, userID int) error
	Rename(ctx context.Context, conversationID int, name string) error
	Delete(ctx context.Context, conversationID int) error
	UpdateLastMessage(ctx context.Context, conversationID int, preview string, senderID int, at time.Time) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationSelect = `SELECT c.id, c.kind, c.name, c.admin_id, c.user_low, c.user_high,
        c.last_message_preview, c.last_message_sender_id, c.last_message_at, c.created_at,
        array_agg(cm.user_id ORDER BY cm.user_id) AS participants
    FROM conversations c
    INNER JOIN conversation_members cm ON cm.conversation_id = c.id`

func scanConversation(row sqlx.ColScanner) (models.Conversation, error) {
	var conv models.Conversation
	var participants pq.Int64Array
	err := row.Scan(&conv.ID, &conv.Kind, &conv.Name, &conv.AdminID, &conv.UserLow, &conv.UserHigh,
		&conv.LastMessagePreview, &conv.LastMessageSenderID, &conv.LastMessageAt, &conv.CreatedAt,
		&participants)
	if err != nil {
		return models.Conversation{}, err
	}
	conv.Participants = make([]int, 0, len(participants))
	for _, id := range participants {
		conv.Participants = append(conv.Participants, int(id))
	}
	return conv, nil
}

// CreateOrGetPersonal returns the existing conversation for the pair or creates it.
// The pair is stored sorted so the uniqueness constraint holds regardless of who starts.
func (r *ConversationRepo) CreateOrGetPersonal(ctx context.Context, userID, friendID int) (models.Conversation, error) {
	if userID == friendID {
		return models.Conversation{}, errors.New("cannot create conversation with self")
	}
	pair := []int{userID, friendID}
	sort.Ints(pair)
	low, high := pair[0], pair[1]

	var id int
	err := r.db.GetContext(ctx, &id,
		`SELECT id FROM conversations WHERE user_low=$1 AND user_high=$2`, low, high)
	if err == nil {
		return r.GetConversation(ctx, id)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (kind, user_low, user_high) VALUES ($1, $2, $3) RETURNING id`,
		models.ConversationPersonal, low, high).Scan(&id); err != nil {
		return models.Conversation{}, err
	}
	for _, member := range pair {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)`, id, member); err != nil {
			return models.Conversation{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return r.GetConversation(ctx, id)
}

// CreateGroup creates a group conversation and its members atomically. The admin is
// always a member; memberIDs are deduplicated.
func (r *ConversationRepo) CreateGroup(ctx context.Context, adminID int, name string, memberIDs []int) (models.Conversation, error) {
	memberSet := map[int]struct{}{adminID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var id int
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (kind, name, admin_id) VALUES ($1, $2, $3) RETURNING id`,
		models.ConversationGroup, name, adminID).Scan(&id); err != nil {
		return models.Conversation{}, err
	}
	for _, member := range ids {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)`, id, member); err != nil {
			return models.Conversation{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return r.GetConversation(ctx, id)
}

// GetConversation fetches a conversation with its participant set.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	row := r.db.QueryRowxContext(ctx, conversationSelect+` WHERE c.id=$1 GROUP BY c.id`, conversationID)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_members WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, err
}

// ListForUser returns the conversations the user participates in, most recently
// active first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	rows, err := r.db.QueryxContext(ctx, conversationSelect+`
        WHERE c.id IN (SELECT conversation_id FROM conversation_members WHERE user_id=$1)
        GROUP BY c.id
        ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, conv)
	}
	return result, rows.Err()
}

// ConversationIDsForUser returns ids only, used for room joins at connect time.
func (r *ConversationRepo) ConversationIDsForUser(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT conversation_id FROM conversation_members WHERE user_id=$1`, userID)
	return ids, err
}

// AddMember inserts a membership row; adding an existing member is a no-op.
func (r *ConversationRepo) AddMember(ctx context.Context, conversationID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)
         ON CONFLICT (conversation_id, user_id) DO NOTHING`, conversationID, userID)
	return err
}

// RemoveMember deletes a membership row.
func (r *ConversationRepo) RemoveMember(ctx context.Context, conversationID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM conversation_members WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	return err
}

// Rename updates a group name.
func (r *ConversationRepo) Rename(ctx context.Context, conversationID int, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET name=$2 WHERE id=$1`, conversationID, name)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Delete removes the conversation; members, messages and read rows cascade.
func (r *ConversationRepo) Delete(ctx context.Context, conversationID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, conversationID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// UpdateLastMessage overwrites the denormalized last-message snapshot.
func (r *ConversationRepo) UpdateLastMessage(ctx context.Context, conversationID int, preview string, senderID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_preview=$2, last_message_sender_id=$3, last_message_at=$4 WHERE id=$1`,
		conversationID, preview, senderID, at)
	return err
}
