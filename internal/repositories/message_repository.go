package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for messages and their read-by sets.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID, senderID int, content string) (models.Message, error)
	ListPage(ctx context.Context, conversationID, page, limit int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, userID int) (int, error)
	UnreadCount(ctx context.Context, conversationID, userID int) (int, error)
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageSelect = `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at,
        COALESCE(array_agg(mr.user_id) FILTER (WHERE mr.user_id IS NOT NULL), '{}') AS read_by
    FROM messages m
    LEFT JOIN message_reads mr ON mr.message_id = m.id`

func scanMessage(row sqlx.ColScanner) (models.Message, error) {
	var msg models.Message
	var readBy pq.Int64Array
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.CreatedAt, &readBy)
	if err != nil {
		return models.Message{}, err
	}
	msg.ReadBy = make([]int, 0, len(readBy))
	for _, id := range readBy {
		msg.ReadBy = append(msg.ReadBy, int(id))
	}
	return msg, nil
}

// CreateMessage appends a message with the sender pre-inserted into its read-by set.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID, senderID int, content string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content) VALUES ($1, $2, $3)
         RETURNING id, conversation_id, sender_id, content, created_at`,
		conversationID, senderID, content).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.CreatedAt); err != nil {
		return models.Message{}, err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)`, msg.ID, senderID); err != nil {
		return models.Message{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}

	msg.ReadBy = []int{senderID}
	return msg, nil
}

// ListPage returns one page of a conversation's messages in creation order.
func (r *MessageRepo) ListPage(ctx context.Context, conversationID, page, limit int) ([]models.Message, error) {
	rows, err := r.db.QueryxContext(ctx, messageSelect+`
        WHERE m.conversation_id=$1
        GROUP BY m.id
        ORDER BY m.created_at ASC, m.id ASC
        LIMIT $2 OFFSET $3`, conversationID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// GetMessage fetches a single message with its read-by set.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	row := r.db.QueryRowxContext(ctx, messageSelect+` WHERE m.id=$1 GROUP BY m.id`, messageID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkConversationRead adds the user to the read-by set of every message in the
// conversation. The insert is additive and conflict-free, so the call is idempotent
// and safe under concurrent readers. Returns the number of newly read messages.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, userID int) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id)
         SELECT id, $2 FROM messages WHERE conversation_id=$1
         ON CONFLICT (message_id, user_id) DO NOTHING`, conversationID, userID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}

// UnreadCount counts messages in the conversation the user has not read.
func (r *MessageRepo) UnreadCount(ctx context.Context, conversationID, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages m
         WHERE m.conversation_id=$1
         AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id=$2)`,
		conversationID, userID)
	return count, err
}
