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

var ErrNotFound = errors.New("not found")

const userCols = `id, username, email, password_hash, COALESCE(profile_image,''), presence_status, last_seen_at, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// scanUser scans a row into model.User (order matches userCols).
func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.ProfileImage, &u.Presence, &u.LastSeenAt, &u.CreatedAt)
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, profile_image, presence_status, last_seen_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.ProfileImage, u.Presence, u.LastSeenAt, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByUsername", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByUsername: %w", err)
	}
	return u, nil
}

func (r *UserRepository) SearchByUsername(ctx context.Context, query string, limit int) ([]model.User, error) {
	defer logger.DeferLogDuration("user.SearchByUsername", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE username ILIKE $1 ORDER BY username LIMIT $2`,
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.SearchByUsername query: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.SearchByUsername scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.SearchByUsername rows: %w", err)
	}
	return users, nil
}

// SetPresence persists the presence state and last-seen. Called best-effort
// from the presence machine; in-memory state stays authoritative.
func (r *UserRepository) SetPresence(ctx context.Context, userID string, status model.PresenceStatus, at time.Time) error {
	defer logger.DeferLogDuration("user.SetPresence", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET presence_status = $1, last_seen_at = $2 WHERE id = $3`,
		status, at.UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.SetPresence: %w", err)
	}
	return nil
}

// ResetAllPresence flips everyone to OFFLINE. Run at startup: after a restart
// no connection survives, so no identity can still be online.
func (r *UserRepository) ResetAllPresence(ctx context.Context) error {
	defer logger.DeferLogDuration("user.ResetAllPresence", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE users SET presence_status = 'OFFLINE' WHERE presence_status != 'OFFLINE'`)
	if err != nil {
		return fmt.Errorf("userRepo.ResetAllPresence: %w", err)
	}
	return nil
}

// TouchLastActive stamps last_seen_at on authenticated REST activity.
func (r *UserRepository) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	defer logger.DeferLogDuration("user.TouchLastActive", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET last_seen_at = $1 WHERE id = $2`, at.UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.TouchLastActive: %w", err)
	}
	return nil
}
