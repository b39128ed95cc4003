package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// WhitelistStore implements store.WhitelistStore on Postgres.
type WhitelistStore struct {
	db *sql.DB
}

func NewWhitelistStore(db *sql.DB) *WhitelistStore {
	return &WhitelistStore{db: db}
}

func (s *WhitelistStore) Add(ctx context.Context, entry store.WhitelistEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO automod_whitelist (kind, identifier, added_at, added_by)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (kind, identifier) DO NOTHING`,
		entry.Kind, entry.Identifier, entry.AddedAt, entry.AddedBy)
	if err != nil {
		return fmt.Errorf("add whitelist entry: %w", err)
	}
	return nil
}

func (s *WhitelistStore) Remove(ctx context.Context, kind store.WhitelistKind, identifier string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM automod_whitelist WHERE kind = $1 AND identifier = $2`, kind, identifier)
	if err != nil {
		return fmt.Errorf("remove whitelist entry: %w", err)
	}
	return nil
}

func (s *WhitelistStore) List(ctx context.Context) ([]store.WhitelistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, identifier, added_at, added_by FROM automod_whitelist`)
	if err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}
	defer rows.Close()

	var out []store.WhitelistEntry
	for rows.Next() {
		var e store.WhitelistEntry
		if err := rows.Scan(&e.Kind, &e.Identifier, &e.AddedAt, &e.AddedBy); err != nil {
			return nil, fmt.Errorf("scan whitelist entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PartnerStore implements store.PartnerStore on Postgres.
type PartnerStore struct {
	db *sql.DB
}

func NewPartnerStore(db *sql.DB) *PartnerStore {
	return &PartnerStore{db: db}
}

func (s *PartnerStore) Upsert(ctx context.Context, p store.PartnerServer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO partner_servers (server_id, server_name, boost_delay_ms, partnered_at, partnered_by)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (server_id) DO UPDATE
		 SET server_name = $2, boost_delay_ms = $3, partnered_by = $5`,
		p.ServerID, p.ServerName, p.BoostDelayMS, p.PartneredAt, p.PartneredBy)
	if err != nil {
		return fmt.Errorf("upsert partner server: %w", err)
	}
	return nil
}

func (s *PartnerStore) Remove(ctx context.Context, serverID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM partner_servers WHERE server_id = $1`, serverID)
	if err != nil {
		return fmt.Errorf("remove partner server: %w", err)
	}
	return nil
}

func (s *PartnerStore) Get(ctx context.Context, serverID string) (*store.PartnerServer, error) {
	var p store.PartnerServer
	err := s.db.QueryRowContext(ctx,
		`SELECT server_id, server_name, boost_delay_ms, partnered_at, partnered_by
		 FROM partner_servers WHERE server_id = $1`, serverID,
	).Scan(&p.ServerID, &p.ServerName, &p.BoostDelayMS, &p.PartneredAt, &p.PartneredBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load partner server: %w", err)
	}
	return &p, nil
}

func (s *PartnerStore) List(ctx context.Context) ([]store.PartnerServer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT server_id, server_name, boost_delay_ms, partnered_at, partnered_by
		 FROM partner_servers ORDER BY partnered_at`)
	if err != nil {
		return nil, fmt.Errorf("list partner servers: %w", err)
	}
	defer rows.Close()

	var out []store.PartnerServer
	for rows.Next() {
		var p store.PartnerServer
		if err := rows.Scan(&p.ServerID, &p.ServerName, &p.BoostDelayMS,
			&p.PartneredAt, &p.PartneredBy); err != nil {
			return nil, fmt.Errorf("scan partner server: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ModerationStore implements store.ModerationStore on Postgres.
type ModerationStore struct {
	db *sql.DB
}

func NewModerationStore(db *sql.DB) *ModerationStore {
	return &ModerationStore{db: db}
}

func (s *ModerationStore) Append(ctx context.Context, entry store.ModerationLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO moderation_logs (action, subject_id, moderator_id, reason, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Action, entry.SubjectID, entry.ModeratorID, entry.Reason, entry.Detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append moderation log: %w", err)
	}
	return nil
}

func (s *ModerationStore) CountWarnings(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM moderation_logs WHERE action = $1 AND subject_id = $2`,
		store.ActionWarn, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count warnings: %w", err)
	}
	return n, nil
}

// VoteStore implements store.VoteStore on Postgres.
type VoteStore struct {
	db *sql.DB
}

func NewVoteStore(db *sql.DB) *VoteStore {
	return &VoteStore{db: db}
}

func (s *VoteStore) Record(ctx context.Context, v store.Vote) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO votes (user_id, month, total, last_vote_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, month) DO UPDATE
		 SET total = votes.total + $3, last_vote_at = $4`,
		v.UserID, v.Month, v.Weight, v.VotedAt)
	if err != nil {
		return fmt.Errorf("record vote: %w", err)
	}
	return nil
}

func (s *VoteStore) Top(ctx context.Context, month string, limit int) ([]store.VoteTally, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, total FROM votes WHERE month = $1 ORDER BY total DESC LIMIT $2`,
		month, limit)
	if err != nil {
		return nil, fmt.Errorf("load vote leaderboard: %w", err)
	}
	defer rows.Close()

	var out []store.VoteTally
	for rows.Next() {
		var t store.VoteTally
		if err := rows.Scan(&t.UserID, &t.Total); err != nil {
			return nil, fmt.Errorf("scan vote tally: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GuildStore implements store.GuildStore on Postgres.
type GuildStore struct {
	db *sql.DB
}

func NewGuildStore(db *sql.DB) *GuildStore {
	return &GuildStore{db: db}
}

func (s *GuildStore) Upsert(ctx context.Context, g store.GuildInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_info (server_id, name, member_count, joined_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (server_id) DO UPDATE
		 SET name = $2, member_count = $3, updated_at = $5`,
		g.ServerID, g.Name, g.MemberCount, g.JoinedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert guild info: %w", err)
	}
	return nil
}

func (s *GuildStore) Remove(ctx context.Context, serverID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM guild_info WHERE server_id = $1`, serverID)
	if err != nil {
		return fmt.Errorf("remove guild info: %w", err)
	}
	return nil
}
