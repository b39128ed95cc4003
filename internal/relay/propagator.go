package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/platform"
	"github.com/nextlevelbuilder/crosschat/internal/registry"
	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// Propagator applies source edits and operator deletes to every delivered
// copy using the Message Log and the Delivery Index.
type Propagator struct {
	client     platform.Client
	registry   *registry.Registry
	messages   store.MessageStore
	deliveries store.DeliveryStore
	moderation store.ModerationStore
}

// NewPropagator wires the edit/delete propagator.
func NewPropagator(client platform.Client, reg *registry.Registry, messages store.MessageStore, deliveries store.DeliveryStore, moderation store.ModerationStore) *Propagator {
	return &Propagator{
		client:     client,
		registry:   reg,
		messages:   messages,
		deliveries: deliveries,
		moderation: moderation,
	}
}

// HandleEdit propagates a source-message edit to every delivered copy. The
// stored content is updated in place; delivered embeds get a new description
// and keep author line, From field, footer, image and color. Per-target
// failures are logged and skipped.
func (p *Propagator) HandleEdit(ctx context.Context, channelID, sourceMessageID, newContent string) error {
	isRelay, err := p.registry.IsRelayChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("edit registry gate: %w", err)
	}
	if !isRelay {
		return nil
	}

	rec, err := p.messages.BySource(ctx, sourceMessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("edit lookup: %w", err)
	}

	if err := p.messages.UpdateContent(ctx, rec.CCID, newContent); err != nil {
		return fmt.Errorf("edit store update: %w", err)
	}

	recs, err := p.deliveries.ByCCID(ctx, rec.CCID)
	if err != nil {
		return fmt.Errorf("edit delivery lookup: %w", err)
	}

	edited := 0
	for _, d := range recs {
		msg, err := p.client.Message(ctx, d.TargetChannelID, d.DeliveredMessageID)
		if err != nil || len(msg.Embeds) == 0 {
			slog.Warn("edit propagation fetch failed", "cc_id", rec.CCID,
				"target", d.TargetChannelID, "error", err)
			continue
		}
		embed := msg.Embeds[0]
		embed.Description = newContent
		if err := p.client.EditEmbed(ctx, d.TargetChannelID, d.DeliveredMessageID, embed); err != nil {
			slog.Warn("edit propagation failed", "cc_id", rec.CCID,
				"target", d.TargetChannelID, "error", err)
			continue
		}
		edited++
	}

	if err := p.client.React(ctx, channelID, sourceMessageID, ReactEdited); err != nil {
		slog.Debug("edit reaction failed", "error", err)
	}

	slog.Info("edit propagated", "cc_id", rec.CCID, "targets", len(recs), "edited", edited)
	return nil
}

// GlobalDelete removes every delivered copy for a CC-ID, marks the record
// deleted and writes an audit entry. Idempotent: a second call on an
// already-deleted id reports zero deletions.
func (p *Propagator) GlobalDelete(ctx context.Context, ccID, operatorID string) (int, error) {
	if _, err := p.messages.ByCCID(ctx, ccID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("global delete lookup: %w", err)
	}

	marked, err := p.messages.MarkDeleted(ctx, ccID, operatorID)
	if err != nil {
		return 0, fmt.Errorf("global delete mark: %w", err)
	}
	if !marked {
		// Already deleted by an earlier call.
		return 0, nil
	}

	recs, err := p.deliveries.ByCCID(ctx, ccID)
	if err != nil {
		return 0, fmt.Errorf("global delete delivery lookup: %w", err)
	}

	deleted := 0
	for _, d := range recs {
		if err := p.client.DeleteMessage(ctx, d.TargetChannelID, d.DeliveredMessageID); err != nil {
			slog.Warn("global delete target unreachable", "cc_id", ccID,
				"target", d.TargetChannelID, "error", err)
			continue
		}
		deleted++
	}

	if err := p.moderation.Append(ctx, store.ModerationLog{
		Action:      store.ActionGlobalDelete,
		SubjectID:   ccID,
		ModeratorID: operatorID,
		Detail:      fmt.Sprintf("deleted_count=%d targets=%d", deleted, len(recs)),
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		slog.Error("global delete audit write failed", "cc_id", ccID, "error", err)
	}

	slog.Info("global delete applied", "cc_id", ccID, "operator", operatorID,
		"deleted", deleted, "targets", len(recs))
	return deleted, nil
}

// HandleSourceDelete reacts to a gateway delete of a source message by
// flagging the record. Delivered copies stay: only operator deletes reach
// the network.
func (p *Propagator) HandleSourceDelete(ctx context.Context, channelID, sourceMessageID string) error {
	isRelay, err := p.registry.IsRelayChannel(ctx, channelID)
	if err != nil || !isRelay {
		return err
	}
	rec, err := p.messages.BySource(ctx, sourceMessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("source delete lookup: %w", err)
	}
	if _, err := p.messages.MarkDeleted(ctx, rec.CCID, rec.UserID); err != nil {
		return fmt.Errorf("source delete mark: %w", err)
	}
	return nil
}
