package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/crosschat/internal/store"
)

const constraintDelivery = "sent_messages_cc_id_target_channel_id_key"

// DeliveryStore implements store.DeliveryStore on Postgres. The collection is
// called sent_messages: one row per delivered copy.
type DeliveryStore struct {
	db *sql.DB
}

func NewDeliveryStore(db *sql.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

func (s *DeliveryStore) Append(ctx context.Context, rec store.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sent_messages
		 (cc_id, target_channel_id, delivered_message_id, delivered_at, source_message_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.CCID, rec.TargetChannelID, rec.DeliveredMessageID, rec.DeliveredAt,
		nilStr(rec.SourceMessageID),
	)
	if err != nil {
		if uniqueViolation(err, constraintDelivery) {
			return store.ErrDuplicateDelivery
		}
		return fmt.Errorf("append delivery record: %w", err)
	}
	return nil
}

func (s *DeliveryStore) ByCCID(ctx context.Context, ccID string) ([]store.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cc_id, target_channel_id, delivered_message_id, delivered_at, source_message_id
		 FROM sent_messages WHERE cc_id = $1 ORDER BY delivered_at`, ccID)
	if err != nil {
		return nil, fmt.Errorf("load delivery records: %w", err)
	}
	defer rows.Close()

	var out []store.DeliveryRecord
	for rows.Next() {
		var rec store.DeliveryRecord
		var src *string
		if err := rows.Scan(&rec.CCID, &rec.TargetChannelID, &rec.DeliveredMessageID,
			&rec.DeliveredAt, &src); err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		rec.SourceMessageID = derefStr(src)
		out = append(out, rec)
	}
	return out, rows.Err()
}
