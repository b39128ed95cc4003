package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/crosschat/internal/automod"
	"github.com/nextlevelbuilder/crosschat/internal/bans"
	"github.com/nextlevelbuilder/crosschat/internal/config"
	"github.com/nextlevelbuilder/crosschat/internal/fingerprint"
	"github.com/nextlevelbuilder/crosschat/internal/platform"
	"github.com/nextlevelbuilder/crosschat/internal/registry"
	"github.com/nextlevelbuilder/crosschat/internal/store"
	"github.com/nextlevelbuilder/crosschat/internal/tiers"
)

// Orchestrator ties the relay components together for one ingress event.
// One value exists per process; every dependency is injected.
type Orchestrator struct {
	cfg        config.RelayConfig
	client     platform.Client
	registry   *registry.Registry
	bans       *bans.Service
	automod    *automod.Pipeline
	resolver   *tiers.Resolver
	allocator  *fingerprint.Allocator
	scheduler  *Scheduler
	messages   store.MessageStore
	partners   store.PartnerStore
	serializer *channelSerializer
	tracer     trace.Tracer
}

// NewOrchestrator wires the ingress pipeline.
func NewOrchestrator(
	cfg config.RelayConfig,
	client platform.Client,
	reg *registry.Registry,
	banSvc *bans.Service,
	pipeline *automod.Pipeline,
	resolver *tiers.Resolver,
	allocator *fingerprint.Allocator,
	scheduler *Scheduler,
	messages store.MessageStore,
	partners store.PartnerStore,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		client:     client,
		registry:   reg,
		bans:       banSvc,
		automod:    pipeline,
		resolver:   resolver,
		allocator:  allocator,
		scheduler:  scheduler,
		messages:   messages,
		partners:   partners,
		serializer: newChannelSerializer(),
		tracer:     otel.Tracer("crosschat/relay"),
	}
}

// HandleMessage processes one gateway message-create event end to end.
// Events from the same source channel are serialized; events from different
// channels run concurrently.
func (o *Orchestrator) HandleMessage(ctx context.Context, m IngressMessage) Outcome {
	if m.AuthorIsBot || m.ServerID == "" || m.empty() {
		return OutcomeIgnored
	}

	// Privacy gate: nothing outside the registry may be read or relayed.
	isRelay, err := o.registry.IsRelayChannel(ctx, m.ChannelID)
	if err != nil {
		return o.abandon(err, "registry gate")
	}
	if !isRelay {
		return OutcomeIgnored
	}

	release := o.serializer.acquire(m.ChannelID)
	defer release()

	ctx, span := o.tracer.Start(ctx, "relay.ingress", trace.WithAttributes(
		attribute.String("relay.source_channel", m.ChannelID),
		attribute.String("relay.source_server", m.ServerID),
	))
	defer span.End()

	outcome := o.process(ctx, m)
	span.SetAttributes(attribute.String("relay.outcome", outcome.String()))
	return outcome
}

func (o *Orchestrator) process(ctx context.Context, m IngressMessage) Outcome {
	// Duplicate gate: another replica may have processed this already.
	if _, err := o.messages.BySource(ctx, m.MessageID); err == nil {
		return OutcomeDuplicate
	} else if !errors.Is(err, store.ErrNotFound) {
		return o.abandon(err, "duplicate gate")
	}

	o.react(ctx, m, ReactProcessing)

	info, err := o.resolver.Resolve(ctx, m.AuthorID, m.ServerID)
	if err != nil {
		o.replaceReaction(ctx, m, ReactFailed)
		return o.abandon(err, "tier resolve")
	}

	if outcome, done := o.banGates(ctx, m); done {
		return outcome
	}

	verdict, err := o.automod.Evaluate(ctx, automod.Input{
		UserID:  m.AuthorID,
		RoleIDs: m.RoleIDs,
		Content: m.Content,
	})
	if err != nil {
		o.replaceReaction(ctx, m, ReactFailed)
		return o.abandon(err, "automod evaluate")
	}
	if !verdict.Allowed() {
		return o.block(ctx, m, info, verdict)
	}

	ccID, fresh, err := o.allocator.Assign(ctx, store.MessageRecord{
		SourceMessageID: m.MessageID,
		UserID:          m.AuthorID,
		UserDisplayName: m.AuthorDisplayName,
		ServerID:        m.ServerID,
		ChannelID:       m.ChannelID,
		Content:         m.Content,
		TagLevel:        info.TagLevel,
		TagName:         info.TagName,
		VIP:             info.VIP,
		CreatedAt:       m.CreatedAt.UTC(),
	})
	if err != nil {
		o.replaceReaction(ctx, m, ReactFailed)
		return o.abandon(err, "cc-id assign")
	}
	if !fresh {
		// Lost the allocation race after the duplicate gate; the winner
		// delivers.
		o.removeReaction(ctx, m, ReactProcessing)
		return OutcomeDuplicate
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("relay.cc_id", ccID),
		attribute.String("relay.tier", info.Tier.String()),
	)

	source, err := o.registry.Entry(ctx, m.ChannelID)
	if err != nil || source == nil {
		o.replaceReaction(ctx, m, ReactFailed)
		return o.abandon(err, "source entry")
	}

	targets, err := o.targets(ctx, m.ChannelID)
	if err != nil {
		o.replaceReaction(ctx, m, ReactFailed)
		return o.abandon(err, "target list")
	}

	atts := o.fetchAttachments(ctx, m)

	embed := RenderEmbed(EmbedInput{
		CCID:              ccID,
		AuthorID:          m.AuthorID,
		AuthorDisplayName: m.AuthorDisplayName,
		AuthorAvatarURL:   m.AuthorAvatarURL,
		Content:           m.Content,
		SourceServerName:  source.ServerName,
		SourceChannelName: source.ChannelName,
		Tier:              info,
		Attachments:       atts,
		CreatedAt:         m.CreatedAt.UTC().Format(time.RFC3339),
	})

	plan := PlanFor(info, o.cfg, o.partnerBoost(ctx, m.ServerID))
	sent := o.scheduler.Deliver(ctx, ccID, m.MessageID, embed, atts, targets, plan)

	if sent > 0 {
		o.replaceReaction(ctx, m, ReactDelivered)
	} else {
		o.replaceReaction(ctx, m, ReactFailed)
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("relay.deliveries", sent))
	slog.Info("relay processed", "cc_id", ccID, "tier", info.Tier.String(),
		"targets", len(targets), "delivered", sent)
	return OutcomeProcessed
}

// banGates checks user and server bans. done is true when the event stops here.
func (o *Orchestrator) banGates(ctx context.Context, m IngressMessage) (Outcome, bool) {
	ban, err := o.bans.UserBan(ctx, m.AuthorID)
	if err != nil {
		o.replaceReaction(ctx, m, ReactFailed)
		return o.abandon(err, "user ban gate"), true
	}
	if ban != nil {
		o.replaceReaction(ctx, m, ReactBanned)
		o.dm(ctx, m.AuthorID, fmt.Sprintf("You are currently banned from CrossChat: %s", ban.Reason))
		return OutcomeBanned, true
	}

	serverBanned, err := o.bans.IsServerBanned(ctx, m.ServerID)
	if err != nil {
		o.replaceReaction(ctx, m, ReactFailed)
		return o.abandon(err, "server ban gate"), true
	}
	if serverBanned {
		o.replaceReaction(ctx, m, ReactBanned)
		return OutcomeServerBanned, true
	}
	return OutcomeIgnored, false
}

// block applies an automod delete verdict: remove the source, warn the user,
// escalate, and post a generic notice when a ban results.
func (o *Orchestrator) block(ctx context.Context, m IngressMessage, info tiers.Info, verdict automod.Verdict) Outcome {
	o.replaceReaction(ctx, m, ReactBlocked)

	if verdict.Action == automod.ActionDelete {
		if err := o.client.DeleteMessage(ctx, m.ChannelID, m.MessageID); err != nil {
			slog.Warn("automod source delete failed", "channel", m.ChannelID, "error", err)
		}
		o.dm(ctx, m.AuthorID, "Your message was removed by the CrossChat content filter. Repeated violations lead to a temporary ban.")
	}

	esc, err := o.automod.RecordViolation(ctx, m.AuthorID, verdict.Category)
	if err != nil {
		slog.Error("automod escalation failed", "user", m.AuthorID, "error", err)
		return OutcomeBlocked
	}
	if esc.Banned {
		o.broadcastNotice(ctx, verdict.Category)
	}

	// Reduced telemetry for VIP tiers: category only, no counts.
	if info.VIP {
		slog.Debug("automod blocked vip message", "category", string(verdict.Category))
	} else {
		slog.Info("automod blocked message", "category", string(verdict.Category),
			"violations", esc.Count, "warned", esc.WarningIssued, "banned", esc.Banned)
	}
	return OutcomeBlocked
}

// broadcastNotice posts a generic, anonymous community notice to every relay
// channel. Best effort.
func (o *Orchestrator) broadcastNotice(ctx context.Context, category automod.Category) {
	targets, err := o.targets(ctx, "")
	if err != nil {
		return
	}
	embed := NoticeEmbed(category, "network-wide")
	for _, target := range targets {
		if _, err := o.client.SendEmbed(ctx, target, embed, nil); err != nil {
			slog.Debug("community notice send failed", "target", target)
		}
	}
}

// targets returns every active relay channel except exclude.
func (o *Orchestrator) targets(ctx context.Context, exclude string) ([]string, error) {
	entries, err := o.registry.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ChannelID != exclude {
			out = append(out, e.ChannelID)
		}
	}
	return out, nil
}

// fetchAttachments reads attachment bodies into memory once per event.
// A failed download drops that attachment, never the message.
func (o *Orchestrator) fetchAttachments(ctx context.Context, m IngressMessage) []Attachment {
	if len(m.Attachments) == 0 {
		return nil
	}
	out := make([]Attachment, 0, len(m.Attachments))
	for _, att := range m.Attachments {
		data, err := o.client.DownloadAttachment(ctx, att.URL)
		if err != nil {
			slog.Warn("attachment download failed", "filename", att.Filename, "error", err)
			continue
		}
		att.Data = data
		out = append(out, att)
	}
	return out
}

func (o *Orchestrator) partnerBoost(ctx context.Context, serverID string) time.Duration {
	p, err := o.partners.Get(ctx, serverID)
	if err != nil {
		return 0
	}
	return time.Duration(p.BoostDelayMS) * time.Millisecond
}

// abandon logs a store/platform failure with a correlation id and fails the
// event. The orchestrator never delivers optimistically after a failed read.
func (o *Orchestrator) abandon(err error, stage string) Outcome {
	if err != nil {
		slog.Error("relay event abandoned", "stage", stage,
			"correlation_id", uuid.NewString(), "error", err)
	}
	return OutcomeFailed
}

func (o *Orchestrator) react(ctx context.Context, m IngressMessage, emoji string) {
	if err := o.client.React(ctx, m.ChannelID, m.MessageID, emoji); err != nil {
		slog.Debug("reaction add failed", "emoji", emoji, "error", err)
	}
}

func (o *Orchestrator) removeReaction(ctx context.Context, m IngressMessage, emoji string) {
	if err := o.client.Unreact(ctx, m.ChannelID, m.MessageID, emoji); err != nil {
		slog.Debug("reaction remove failed", "emoji", emoji, "error", err)
	}
}

func (o *Orchestrator) replaceReaction(ctx context.Context, m IngressMessage, emoji string) {
	o.removeReaction(ctx, m, ReactProcessing)
	o.react(ctx, m, emoji)
}

func (o *Orchestrator) dm(ctx context.Context, userID, content string) {
	if err := o.client.DM(ctx, userID, content); err != nil {
		slog.Debug("dm failed", "user", userID, "error", err)
	}
}
