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

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

const convCols = `id, COALESCE(name,''), is_group, COALESCE(invite_code,''), COALESCE(group_image,''), last_message_id, created_at, updated_at`

func scanConversation(s interface{ Scan(dest ...any) error }, c *model.Conversation) error {
	return s.Scan(&c.ID, &c.Name, &c.IsGroup, &c.InviteCode, &c.GroupImage, &c.LastMessageID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	defer logger.DeferLogDuration("conv.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversations (id, name, is_group, invite_code, group_image, created_at, updated_at)
		 VALUES ($1, NULLIF($2,''), $3, NULLIF($4,''), NULLIF($5,''), $6, $7)`,
		c.ID, c.Name, c.IsGroup, c.InviteCode, c.GroupImage, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("convRepo.Create: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByID", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx, `SELECT `+convCols+` FROM conversations WHERE id = $1`, id)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("convRepo.GetByID: %w", err)
	}
	return c, nil
}

func (r *ConversationRepository) GetByInviteCode(ctx context.Context, code string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByInviteCode", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx, `SELECT `+convCols+` FROM conversations WHERE invite_code = $1`, code)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("convRepo.GetByInviteCode: %w", err)
	}
	return c, nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conv.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, COALESCE(c.name,''), c.is_group, COALESCE(c.invite_code,''), COALESCE(c.group_image,''), c.last_message_id, c.created_at, c.updated_at
		 FROM conversations c
		 JOIN participants p ON p.conversation_id = c.id
		 WHERE p.user_id = $1
		 ORDER BY c.updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	convs := make([]model.Conversation, 0, 16)
	for rows.Next() {
		var c model.Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, fmt.Errorf("convRepo.ListForUser scan: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser rows: %w", err)
	}
	return convs, nil
}

func (r *ConversationRepository) AddParticipant(ctx context.Context, p *model.Participant) error {
	defer logger.DeferLogDuration("conv.AddParticipant", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO participants (conversation_id, user_id, is_admin, unread_count, joined_at)
		 VALUES ($1, $2, $3, 0, $4) ON CONFLICT DO NOTHING`,
		p.ConversationID, p.UserID, p.IsAdmin, p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("convRepo.AddParticipant: %w", err)
	}
	return nil
}

func (r *ConversationRepository) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	defer logger.DeferLogDuration("conv.RemoveParticipant", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM participants WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("convRepo.RemoveParticipant: %w", err)
	}
	return nil
}

func (r *ConversationRepository) ListParticipants(ctx context.Context, conversationID string) ([]model.Participant, error) {
	defer logger.DeferLogDuration("conv.ListParticipants", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT p.conversation_id, p.user_id, p.is_admin, p.unread_count, p.joined_at,
		        u.id, u.username, COALESCE(u.profile_image,''), u.presence_status, u.last_seen_at
		 FROM participants p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.conversation_id = $1
		 ORDER BY p.joined_at`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.ListParticipants query: %w", err)
	}
	defer rows.Close()

	parts := make([]model.Participant, 0, 8)
	for rows.Next() {
		var p model.Participant
		u := &model.UserPublic{}
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.IsAdmin, &p.UnreadCount, &p.JoinedAt,
			&u.ID, &u.Username, &u.ProfileImage, &u.Presence, &u.LastSeenAt); err != nil {
			return nil, fmt.Errorf("convRepo.ListParticipants scan: %w", err)
		}
		p.User = u
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.ListParticipants rows: %w", err)
	}
	return parts, nil
}

func (r *ConversationRepository) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	defer logger.DeferLogDuration("conv.ParticipantIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM participants WHERE conversation_id = $1`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.ParticipantIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("convRepo.ParticipantIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.ParticipantIDs rows: %w", err)
	}
	return ids, nil
}

func (r *ConversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	defer logger.DeferLogDuration("conv.IsParticipant", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("convRepo.IsParticipant: %w", err)
	}
	return exists, nil
}

func (r *ConversationRepository) IsAdmin(ctx context.Context, conversationID, userID string) (bool, error) {
	defer logger.DeferLogDuration("conv.IsAdmin", time.Now())()
	var isAdmin bool
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT is_admin FROM participants WHERE conversation_id = $1 AND user_id = $2), false)`,
		conversationID, userID,
	).Scan(&isAdmin)
	if err != nil {
		return false, fmt.Errorf("convRepo.IsAdmin: %w", err)
	}
	return isAdmin, nil
}

// SetLastMessage moves the conversation's last-message pointer and bumps
// updated_at so conversation lists sort by recency.
func (r *ConversationRepository) SetLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	defer logger.DeferLogDuration("conv.SetLastMessage", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET last_message_id = $1, updated_at = $2 WHERE id = $3`,
		messageID, at.UTC(), conversationID,
	)
	if err != nil {
		return fmt.Errorf("convRepo.SetLastMessage: %w", err)
	}
	return nil
}

// IncrementUnread bumps the unread counter for every participant except exceptUserID.
func (r *ConversationRepository) IncrementUnread(ctx context.Context, conversationID, exceptUserID string) error {
	defer logger.DeferLogDuration("conv.IncrementUnread", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE participants SET unread_count = unread_count + 1
		 WHERE conversation_id = $1 AND user_id != $2`,
		conversationID, exceptUserID,
	)
	if err != nil {
		return fmt.Errorf("convRepo.IncrementUnread: %w", err)
	}
	return nil
}

// ResetUnread zeroes the unread counter for one participant. Idempotent.
func (r *ConversationRepository) ResetUnread(ctx context.Context, conversationID, userID string) error {
	defer logger.DeferLogDuration("conv.ResetUnread", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE participants SET unread_count = 0
		 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("convRepo.ResetUnread: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetUnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	defer logger.DeferLogDuration("conv.GetUnreadCount", time.Now())()
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT unread_count FROM participants WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("convRepo.GetUnreadCount: %w", err)
	}
	return count, nil
}

// FindPrivate returns the existing non-group conversation between two users.
func (r *ConversationRepository) FindPrivate(ctx context.Context, userID1, userID2 string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.FindPrivate", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+convCols+` FROM conversations c
		 WHERE c.is_group = false
		   AND EXISTS (SELECT 1 FROM participants WHERE conversation_id = c.id AND user_id = $1)
		   AND EXISTS (SELECT 1 FROM participants WHERE conversation_id = c.id AND user_id = $2)`,
		userID1, userID2,
	)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("convRepo.FindPrivate: %w", err)
	}
	return c, nil
}
