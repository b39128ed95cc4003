// Package bot wires discordgo gateway events into the relay engine.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/crosschat/internal/registry"
	"github.com/nextlevelbuilder/crosschat/internal/relay"
	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// Bot owns the gateway session and dispatches events to the relay core.
type Bot struct {
	session      *discordgo.Session
	orchestrator *relay.Orchestrator
	propagator   *relay.Propagator
	registry     *registry.Registry
	guilds       store.GuildStore
	botUserID    string // populated on start
}

// New creates the bot around an unopened session.
func New(session *discordgo.Session, orch *relay.Orchestrator, prop *relay.Propagator, reg *registry.Registry, guilds store.GuildStore) *Bot {
	return &Bot{
		session:      session,
		orchestrator: orch,
		propagator:   prop,
		registry:     reg,
		guilds:       guilds,
	}
}

// Start opens the gateway connection and begins receiving events.
func (b *Bot) Start(_ context.Context) error {
	slog.Info("starting crosschat bot")

	b.session.AddHandler(b.handleMessageCreate)
	b.session.AddHandler(b.handleMessageUpdate)
	b.session.AddHandler(b.handleMessageDelete)
	b.session.AddHandler(b.handleGuildCreate)
	b.session.AddHandler(b.handleGuildDelete)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := b.session.User("@me")
	if err != nil {
		b.session.Close()
		return fmt.Errorf("fetch bot identity: %w", err)
	}
	b.botUserID = user.ID

	slog.Info("crosschat bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop(_ context.Context) error {
	slog.Info("stopping crosschat bot")
	return b.session.Close()
}

func (b *Bot) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == b.botUserID {
		return
	}

	msg := relay.IngressMessage{
		MessageID:         m.ID,
		ChannelID:         m.ChannelID,
		ServerID:          m.GuildID,
		AuthorID:          m.Author.ID,
		AuthorDisplayName: resolveDisplayName(m),
		AuthorAvatarURL:   m.Author.AvatarURL("128"),
		AuthorIsBot:       m.Author.Bot,
		Content:           m.Content,
		CreatedAt:         m.Timestamp,
	}
	if m.Member != nil {
		msg.RoleIDs = m.Member.Roles
	}
	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, relay.Attachment{
			Filename:    att.Filename,
			URL:         att.URL,
			ContentType: att.ContentType,
		})
	}

	// Each ingress event is its own task; per-channel ordering is enforced
	// inside the orchestrator.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		b.orchestrator.HandleMessage(ctx, msg)
	}()
}

func (b *Bot) handleMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := b.propagator.HandleEdit(ctx, m.ChannelID, m.ID, m.Content); err != nil {
			slog.Error("edit propagation failed", "message_id", m.ID, "error", err)
		}
	}()
}

func (b *Bot) handleMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := b.propagator.HandleSourceDelete(ctx, m.ChannelID, m.ID); err != nil {
			slog.Warn("source delete handling failed", "message_id", m.ID, "error", err)
		}
	}()
}

func (b *Bot) handleGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := b.guilds.Upsert(ctx, store.GuildInfo{
		ServerID:    g.ID,
		Name:        g.Name,
		MemberCount: g.MemberCount,
		JoinedAt:    time.Now().UTC(),
	}); err != nil {
		slog.Warn("guild info upsert failed", "guild", g.ID, "error", err)
	}
}

func (b *Bot) handleGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := b.registry.DisableServer(ctx, g.ID); err != nil {
		slog.Warn("registry disable on guild leave failed", "guild", g.ID, "error", err)
	}
	if err := b.guilds.Remove(ctx, g.ID); err != nil {
		slog.Warn("guild info remove failed", "guild", g.ID, "error", err)
	}
	slog.Info("left guild, relay channel deactivated", "guild", g.ID)
}

// resolveDisplayName returns the best available display name for an author.
// Priority: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
