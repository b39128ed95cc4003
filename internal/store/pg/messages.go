package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// Constraint names from migrations/000001_init.up.sql. Insert uses them to
// tell the caller which uniqueness guard fired.
const (
	constraintSourceID = "crosschat_messages_source_message_id_key"
	constraintCCID     = "crosschat_messages_cc_id_key"
)

// MessageStore implements store.MessageStore on Postgres.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) Insert(ctx context.Context, rec store.MessageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crosschat_messages
		 (source_message_id, cc_id, user_id, user_display_name, server_id, channel_id,
		  content, tag_level, tag_name, is_vip, created_at, is_deleted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false)`,
		rec.SourceMessageID, rec.CCID, rec.UserID, rec.UserDisplayName,
		rec.ServerID, rec.ChannelID, rec.Content, rec.TagLevel, rec.TagName,
		rec.VIP, rec.CreatedAt,
	)
	if err != nil {
		switch {
		case uniqueViolation(err, constraintSourceID):
			return store.ErrDuplicateSource
		case uniqueViolation(err, constraintCCID):
			return store.ErrDuplicateCCID
		}
		return fmt.Errorf("insert message record: %w", err)
	}
	return nil
}

func (s *MessageStore) BySource(ctx context.Context, sourceMessageID string) (*store.MessageRecord, error) {
	return s.get(ctx, "source_message_id", sourceMessageID)
}

func (s *MessageStore) ByCCID(ctx context.Context, ccID string) (*store.MessageRecord, error) {
	return s.get(ctx, "cc_id", ccID)
}

func (s *MessageStore) get(ctx context.Context, col, val string) (*store.MessageRecord, error) {
	var rec store.MessageRecord
	var deletedAt sql.NullTime
	var deletedBy *string
	err := s.db.QueryRowContext(ctx,
		`SELECT source_message_id, cc_id, user_id, user_display_name, server_id,
		        channel_id, content, tag_level, tag_name, is_vip, created_at,
		        is_deleted, deleted_at, deleted_by
		 FROM crosschat_messages WHERE `+col+` = $1`, val,
	).Scan(&rec.SourceMessageID, &rec.CCID, &rec.UserID, &rec.UserDisplayName,
		&rec.ServerID, &rec.ChannelID, &rec.Content, &rec.TagLevel, &rec.TagName,
		&rec.VIP, &rec.CreatedAt, &rec.Deleted, &deletedAt, &deletedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load message record: %w", err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	rec.DeletedBy = derefStr(deletedBy)
	return &rec, nil
}

func (s *MessageStore) UpdateContent(ctx context.Context, ccID, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crosschat_messages SET content = $1 WHERE cc_id = $2`, content, ccID)
	if err != nil {
		return fmt.Errorf("update message content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *MessageStore) MarkDeleted(ctx context.Context, ccID, deletedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crosschat_messages
		 SET is_deleted = true, deleted_at = $1, deleted_by = $2
		 WHERE cc_id = $3 AND is_deleted = false`,
		time.Now().UTC(), deletedBy, ccID)
	if err != nil {
		return false, fmt.Errorf("mark message deleted: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
