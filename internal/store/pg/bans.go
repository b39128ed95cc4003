package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// BanStore implements store.BanStore on Postgres. Bans are upserted by
// subject id so repeated bans leave a single active row; timed bans are
// treated as inactive on read once expired.
type BanStore struct {
	db *sql.DB
}

func NewBanStore(db *sql.DB) *BanStore {
	return &BanStore{db: db}
}

func (s *BanStore) BanUser(ctx context.Context, ban store.BannedUser) error {
	var durationMS *int64
	if ban.Duration != nil {
		ms := ban.Duration.Milliseconds()
		durationMS = &ms
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO banned_users (user_id, reason, moderator_id, duration_ms, banned_at, active)
		 VALUES ($1, $2, $3, $4, $5, true)
		 ON CONFLICT (user_id) DO UPDATE
		 SET reason = $2, moderator_id = $3, duration_ms = $4, banned_at = $5, active = true`,
		ban.UserID, ban.Reason, ban.ModeratorID, durationMS, ban.BannedAt)
	if err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	return nil
}

func (s *BanStore) UnbanUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE banned_users SET active = false WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("unban user: %w", err)
	}
	return nil
}

func (s *BanStore) GetUserBan(ctx context.Context, userID string) (*store.BannedUser, error) {
	var ban store.BannedUser
	var durationMS *int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, reason, moderator_id, duration_ms, banned_at
		 FROM banned_users WHERE user_id = $1 AND active = true`, userID,
	).Scan(&ban.UserID, &ban.Reason, &ban.ModeratorID, &durationMS, &ban.BannedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user ban: %w", err)
	}
	ban.Active = true
	if durationMS != nil {
		d := time.Duration(*durationMS) * time.Millisecond
		ban.Duration = &d
	}
	if ban.Expired(time.Now()) {
		return nil, store.ErrNotFound
	}
	return &ban, nil
}

func (s *BanStore) BanServer(ctx context.Context, ban store.BannedServer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO banned_servers (server_id, reason, moderator_id, banned_at, active)
		 VALUES ($1, $2, $3, $4, true)
		 ON CONFLICT (server_id) DO UPDATE
		 SET reason = $2, moderator_id = $3, banned_at = $4, active = true`,
		ban.ServerID, ban.Reason, ban.ModeratorID, ban.BannedAt)
	if err != nil {
		return fmt.Errorf("ban server: %w", err)
	}
	return nil
}

func (s *BanStore) UnbanServer(ctx context.Context, serverID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE banned_servers SET active = false WHERE server_id = $1`, serverID)
	if err != nil {
		return fmt.Errorf("unban server: %w", err)
	}
	return nil
}

func (s *BanStore) GetServerBan(ctx context.Context, serverID string) (*store.BannedServer, error) {
	var ban store.BannedServer
	err := s.db.QueryRowContext(ctx,
		`SELECT server_id, reason, moderator_id, banned_at
		 FROM banned_servers WHERE server_id = $1 AND active = true`, serverID,
	).Scan(&ban.ServerID, &ban.Reason, &ban.ModeratorID, &ban.BannedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load server ban: %w", err)
	}
	ban.Active = true
	return &ban, nil
}
