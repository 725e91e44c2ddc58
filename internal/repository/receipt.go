package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/conversa/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReceiptRepository struct {
	pool *pgxpool.Pool
}

func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

// InsertMissing records a read receipt for every message in the conversation
// that userID did not send and has not yet marked read. Duplicate-skip makes
// it idempotent under retry and replay. Returns the number of new receipts.
func (r *ReceiptRepository) InsertMissing(ctx context.Context, conversationID, userID string) (int64, error) {
	defer logger.DeferLogDuration("receipt.InsertMissing", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO read_receipts (message_id, user_id, read_at)
		 SELECT m.id, $2, $3 FROM messages m
		 WHERE m.conversation_id = $1 AND m.sender_id != $2
		 ON CONFLICT DO NOTHING`,
		conversationID, userID, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("receiptRepo.InsertMissing: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReaderIDs returns the identities that have marked a message read.
func (r *ReceiptRepository) ReaderIDs(ctx context.Context, messageID string) ([]string, error) {
	defer logger.DeferLogDuration("receipt.ReaderIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM read_receipts WHERE message_id = $1 ORDER BY read_at`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("receiptRepo.ReaderIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("receiptRepo.ReaderIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("receiptRepo.ReaderIDs rows: %w", err)
	}
	return ids, nil
}
