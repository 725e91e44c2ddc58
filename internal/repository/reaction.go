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

type ReactionRepository struct {
	pool *pgxpool.Pool
}

func NewReactionRepository(pool *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{pool: pool}
}

// Get returns the identity's reaction on a message, or ErrNotFound. The
// (message_id, user_id) primary key guarantees at most one.
func (r *ReactionRepository) Get(ctx context.Context, messageID, userID string) (*model.Reaction, error) {
	defer logger.DeferLogDuration("reaction.Get", time.Now())()
	rc := &model.Reaction{}
	err := r.pool.QueryRow(ctx,
		`SELECT message_id, user_id, value, created_at
		 FROM message_reactions
		 WHERE message_id = $1 AND user_id = $2`, messageID, userID,
	).Scan(&rc.MessageID, &rc.UserID, &rc.Value, &rc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.Get: %w", err)
	}
	return rc, nil
}

// Set creates or replaces the identity's reaction on a message.
func (r *ReactionRepository) Set(ctx context.Context, messageID, userID, value string) error {
	defer logger.DeferLogDuration("reaction.Set", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_reactions (message_id, user_id, value, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (message_id, user_id) DO UPDATE SET value = EXCLUDED.value`,
		messageID, userID, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("reactionRepo.Set: %w", err)
	}
	return nil
}

// Delete removes the identity's reaction regardless of value.
func (r *ReactionRepository) Delete(ctx context.Context, messageID, userID string) error {
	defer logger.DeferLogDuration("reaction.Delete", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2`,
		messageID, userID,
	)
	if err != nil {
		return fmt.Errorf("reactionRepo.Delete: %w", err)
	}
	return nil
}

// ListByMessage returns the full authoritative reaction set for a message.
func (r *ReactionRepository) ListByMessage(ctx context.Context, messageID string) ([]model.Reaction, error) {
	defer logger.DeferLogDuration("reaction.ListByMessage", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT mr.message_id, mr.user_id, mr.value, u.username, mr.created_at
		 FROM message_reactions mr
		 JOIN users u ON u.id = mr.user_id
		 WHERE mr.message_id = $1
		 ORDER BY mr.created_at`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.ListByMessage query: %w", err)
	}
	defer rows.Close()

	reactions := make([]model.Reaction, 0, 8)
	for rows.Next() {
		var rc model.Reaction
		if err := rows.Scan(&rc.MessageID, &rc.UserID, &rc.Value, &rc.Username, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("reactionRepo.ListByMessage scan: %w", err)
		}
		reactions = append(reactions, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.ListByMessage rows: %w", err)
	}
	return reactions, nil
}
