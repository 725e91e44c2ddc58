package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conversa/internal/logger"
	"github.com/conversa/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const msgCols = `m.id, m.conversation_id, m.sender_id, m.content, m.content_type, m.parent_id, m.seq, m.edited_at, m.is_deleted, m.created_at,
	        u.id, u.username, COALESCE(u.profile_image,''), u.presence_status, u.last_seen_at`

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	sender := &model.UserPublic{}
	err := s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.ContentType, &m.ParentID, &m.Seq, &m.EditedAt, &m.IsDeleted, &m.CreatedAt,
		&sender.ID, &sender.Username, &sender.ProfileImage, &sender.Presence, &sender.LastSeenAt)
	if err != nil {
		return err
	}
	m.Sender = sender
	return nil
}

// Create persists a message. Seq is assigned by the database and read back;
// within one conversation it is strictly monotonic.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, content_type, parent_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING seq`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.ContentType, m.ParentID, m.CreatedAt,
	).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+msgCols+`
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.id = $1`, id,
	)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListByConversation", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+msgCols+`
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.conversation_id = $1
		 ORDER BY m.seq DESC
		 LIMIT $2 OFFSET $3`, conversationID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListByConversation query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.ListByConversation scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListByConversation rows: %w", err)
	}
	return messages, nil
}

// ListThreadReplies returns replies to a parent message in delivery order.
func (r *MessageRepository) ListThreadReplies(ctx context.Context, parentID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListThreadReplies", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+msgCols+`
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.parent_id = $1 AND m.is_deleted = false
		 ORDER BY m.seq
		 LIMIT $2`, parentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListThreadReplies query: %w", err)
	}
	defer rows.Close()

	replies := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.ListThreadReplies scan: %w", err)
		}
		replies = append(replies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListThreadReplies rows: %w", err)
	}
	return replies, nil
}

// UpdateContentIfSender edits a message only when senderID owns it. The
// returned bool is false when zero rows were affected: missing and foreign
// messages are deliberately indistinguishable.
func (r *MessageRepository) UpdateContentIfSender(ctx context.Context, id, senderID, content string, editedAt time.Time) (bool, error) {
	defer logger.DeferLogDuration("msg.UpdateContentIfSender", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET content = $1, edited_at = $2
		 WHERE id = $3 AND sender_id = $4 AND is_deleted = false`,
		content, editedAt.UTC(), id, senderID,
	)
	if err != nil {
		return false, fmt.Errorf("msgRepo.UpdateContentIfSender: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SoftDeleteIfSender marks a message deleted only when senderID owns it.
func (r *MessageRepository) SoftDeleteIfSender(ctx context.Context, id, senderID string) (bool, error) {
	defer logger.DeferLogDuration("msg.SoftDeleteIfSender", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_deleted = true, content = ''
		 WHERE id = $1 AND sender_id = $2 AND is_deleted = false`,
		id, senderID,
	)
	if err != nil {
		return false, fmt.Errorf("msgRepo.SoftDeleteIfSender: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
