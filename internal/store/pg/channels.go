package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// ChannelStore implements store.ChannelStore on Postgres. A partial unique
// index on (server_id) WHERE active enforces one active channel per server;
// Upsert swaps entries inside one transaction so the invariant never lapses.
type ChannelStore struct {
	db *sql.DB
}

func NewChannelStore(db *sql.DB) *ChannelStore {
	return &ChannelStore{db: db}
}

func (s *ChannelStore) Upsert(ctx context.Context, entry store.ChannelEntry) (*store.ChannelEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin channel upsert: %w", err)
	}
	defer tx.Rollback()

	var replaced *store.ChannelEntry
	var prev store.ChannelEntry
	err = tx.QueryRowContext(ctx,
		`SELECT server_id, channel_id, server_name, channel_name, created_at, updated_at
		 FROM crosschat_channels WHERE server_id = $1 AND active = true`,
		entry.ServerID,
	).Scan(&prev.ServerID, &prev.ChannelID, &prev.ServerName, &prev.ChannelName,
		&prev.CreatedAt, &prev.UpdatedAt)
	switch {
	case err == nil:
		prev.Active = true
		replaced = &prev
		if _, err := tx.ExecContext(ctx,
			`UPDATE crosschat_channels SET active = false, updated_at = $1
			 WHERE server_id = $2 AND active = true`,
			time.Now().UTC(), entry.ServerID); err != nil {
			return nil, fmt.Errorf("deactivate prior channel: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		// first channel for this server
	default:
		return nil, fmt.Errorf("lookup prior channel: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO crosschat_channels
		 (server_id, channel_id, server_name, channel_name, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, true, $5, $5)
		 ON CONFLICT (channel_id) DO UPDATE
		 SET active = true, server_name = $3, channel_name = $4, updated_at = $5`,
		entry.ServerID, entry.ChannelID, entry.ServerName, entry.ChannelName, now,
	); err != nil {
		return nil, fmt.Errorf("insert channel entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit channel upsert: %w", err)
	}
	return replaced, nil
}

func (s *ChannelStore) Deactivate(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE crosschat_channels SET active = false, updated_at = $1 WHERE channel_id = $2`,
		time.Now().UTC(), channelID)
	if err != nil {
		return fmt.Errorf("deactivate channel: %w", err)
	}
	return nil
}

func (s *ChannelStore) DeactivateServer(ctx context.Context, serverID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE crosschat_channels SET active = false, updated_at = $1 WHERE server_id = $2`,
		time.Now().UTC(), serverID)
	if err != nil {
		return fmt.Errorf("deactivate server channels: %w", err)
	}
	return nil
}

func (s *ChannelStore) ListActive(ctx context.Context) ([]store.ChannelEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT server_id, channel_id, server_name, channel_name, created_at, updated_at
		 FROM crosschat_channels WHERE active = true ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active channels: %w", err)
	}
	defer rows.Close()

	var out []store.ChannelEntry
	for rows.Next() {
		var e store.ChannelEntry
		if err := rows.Scan(&e.ServerID, &e.ChannelID, &e.ServerName, &e.ChannelName,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan channel entry: %w", err)
		}
		e.Active = true
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *ChannelStore) UpdateNames(ctx context.Context, serverID, serverName, channelName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE crosschat_channels SET server_name = $1, channel_name = $2, updated_at = $3
		 WHERE server_id = $4 AND active = true`,
		serverName, channelName, time.Now().UTC(), serverID)
	if err != nil {
		return fmt.Errorf("update channel names: %w", err)
	}
	return nil
}
