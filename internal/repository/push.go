package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/conversa/internal/logger"
	"github.com/conversa/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PushSubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewPushSubscriptionRepository(pool *pgxpool.Pool) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{pool: pool}
}

// Save upserts by endpoint: re-subscribing from the same browser replaces
// the keys instead of accumulating rows.
func (r *PushSubscriptionRepository) Save(ctx context.Context, s *model.PushSubscription) error {
	defer logger.DeferLogDuration("pushSub.Save", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (endpoint) DO UPDATE SET user_id = EXCLUDED.user_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth`,
		s.ID, s.UserID, s.Endpoint, s.P256dh, s.Auth, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("pushSubRepo.Save: %w", err)
	}
	return nil
}

func (r *PushSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	defer logger.DeferLogDuration("pushSub.ListByUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth, created_at
		 FROM push_subscriptions WHERE user_id = $1`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("pushSubRepo.ListByUser query: %w", err)
	}
	defer rows.Close()

	subs := make([]model.PushSubscription, 0, 2)
	for rows.Next() {
		var s model.PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("pushSubRepo.ListByUser scan: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pushSubRepo.ListByUser rows: %w", err)
	}
	return subs, nil
}

func (r *PushSubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	defer logger.DeferLogDuration("pushSub.DeleteByEndpoint", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint,
	)
	if err != nil {
		return fmt.Errorf("pushSubRepo.DeleteByEndpoint: %w", err)
	}
	return nil
}
