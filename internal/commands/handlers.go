package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/crosschat/internal/registry"
	"github.com/nextlevelbuilder/crosschat/internal/store"
)

func (h *Handler) handleSetup(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		replyError(s, i, "Run this inside a server.")
		return
	}

	channelID := i.ChannelID
	channelName := ""
	if opt := option(i, "channel"); opt != nil {
		ch := opt.ChannelValue(s)
		if ch != nil {
			channelID = ch.ID
			channelName = ch.Name
		}
	}
	if channelName == "" {
		if ch, err := s.State.Channel(channelID); err == nil {
			channelName = ch.Name
		}
	}
	serverName := i.GuildID
	if g, err := s.State.Guild(i.GuildID); err == nil {
		serverName = g.Name
	}

	slowmode, err := h.client.ChannelSlowmode(ctx, channelID)
	if err != nil {
		replyError(s, i, "Could not read the channel's slowmode setting.")
		return
	}

	replaced, err := h.registry.Enable(ctx, store.ChannelEntry{
		ServerID:    i.GuildID,
		ChannelID:   channelID,
		ServerName:  serverName,
		ChannelName: channelName,
	}, slowmode)
	if errors.Is(err, registry.ErrSlowmodePolicy) {
		replyError(s, i, fmt.Sprintf("Slowmode must be between %d and %d seconds before enabling the relay. It is currently %ds.",
			h.cfg.Relay.SlowmodeMin, h.cfg.Relay.SlowmodeMax, slowmode))
		return
	}
	if err != nil {
		slog.Error("setup failed", "guild", i.GuildID, "channel", channelID, "error", err)
		replyError(s, i, "Setup failed, try again later.")
		return
	}

	msg := fmt.Sprintf("Cross-server chat enabled in <#%s>.", channelID)
	if replaced != nil && replaced.ChannelID != channelID {
		msg += fmt.Sprintf(" The previous relay channel <#%s> was disconnected.", replaced.ChannelID)
	}
	replyOK(s, i, "Relay enabled", msg)
}

func (h *Handler) handleDisconnect(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		replyError(s, i, "Run this inside a server.")
		return
	}
	if err := h.registry.DisableServer(ctx, i.GuildID); err != nil {
		slog.Error("disconnect failed", "guild", i.GuildID, "error", err)
		replyError(s, i, "Disconnect failed, try again later.")
		return
	}
	replyOK(s, i, "Relay disabled", "This server no longer participates in cross-server chat.")
}

func (h *Handler) handleStatus(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	active, err := h.registry.ListActive(ctx)
	if err != nil {
		replyError(s, i, "Status unavailable, try again later.")
		return
	}
	uptime := time.Since(h.startedAt).Round(time.Second)
	embed := &discordgo.MessageEmbed{
		Title: "CrossChat status",
		Color: 0x3498DB,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Connected servers", Value: fmt.Sprintf("%d", len(h.client.GuildIDs())), Inline: true},
			{Name: "Relay channels", Value: fmt.Sprintf("%d", len(active)), Inline: true},
			{Name: "Uptime", Value: uptime.String(), Inline: true},
			{Name: "Version", Value: h.version, Inline: true},
		},
	}
	replyEmbed(s, i, embed)
}

func (h *Handler) handleBan(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	userOpt := option(i, "user")
	reasonOpt := option(i, "reason")
	if userOpt == nil || reasonOpt == nil {
		replyError(s, i, "User and reason are required.")
		return
	}
	userID := userOpt.UserValue(nil).ID
	reason := reasonOpt.StringValue()

	var duration *time.Duration
	if opt := option(i, "duration"); opt != nil {
		d, err := time.ParseDuration(opt.StringValue())
		if err != nil || d <= 0 {
			replyError(s, i, "Duration must look like 20m or 24h.")
			return
		}
		duration = &d
	}

	if err := h.bans.BanUser(ctx, userID, reason, interactionUserID(i), duration); err != nil {
		slog.Error("ban command failed", "user", userID, "error", err)
		replyError(s, i, "Ban failed, try again later.")
		return
	}
	scope := "permanently"
	if duration != nil {
		scope = "for " + duration.String()
	}
	replyOK(s, i, "User banned", fmt.Sprintf("<@%s> is banned from the relay %s.", userID, scope))
}

func (h *Handler) handleUnban(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	userOpt := option(i, "user")
	if userOpt == nil {
		replyError(s, i, "User is required.")
		return
	}
	userID := userOpt.UserValue(nil).ID
	if err := h.bans.UnbanUser(ctx, userID, interactionUserID(i)); err != nil {
		slog.Error("unban command failed", "user", userID, "error", err)
		replyError(s, i, "Unban failed, try again later.")
		return
	}
	replyOK(s, i, "User unbanned", fmt.Sprintf("<@%s> may use the relay again.", userID))
}

func (h *Handler) handleServerBan(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	serverID := stringOption(i, "server")
	reason := stringOption(i, "reason")
	if serverID == "" || reason == "" {
		replyError(s, i, "Server id and reason are required.")
		return
	}
	if err := h.bans.BanServer(ctx, serverID, reason, interactionUserID(i)); err != nil {
		slog.Error("serverban command failed", "server", serverID, "error", err)
		replyError(s, i, "Server ban failed, try again later.")
		return
	}
	replyOK(s, i, "Server banned", fmt.Sprintf("Server `%s` is banned from the relay network.", serverID))
}

func (h *Handler) handleServerUnban(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	serverID := stringOption(i, "server")
	if serverID == "" {
		replyError(s, i, "Server id is required.")
		return
	}
	if err := h.bans.UnbanServer(ctx, serverID, interactionUserID(i)); err != nil {
		slog.Error("serverunban command failed", "server", serverID, "error", err)
		replyError(s, i, "Server unban failed, try again later.")
		return
	}
	replyOK(s, i, "Server unbanned", fmt.Sprintf("Server `%s` may use the relay again.", serverID))
}

func (h *Handler) handleCCDelete(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	ccID := strings.TrimSpace(stringOption(i, "cc_id"))
	ccID = strings.TrimPrefix(ccID, "CC-")
	if ccID == "" {
		replyError(s, i, "CC-ID is required.")
		return
	}

	deleted, err := h.propagator.GlobalDelete(ctx, ccID, interactionUserID(i))
	if errors.Is(err, store.ErrNotFound) {
		replyError(s, i, fmt.Sprintf("No message found for CC-%s.", ccID))
		return
	}
	if err != nil {
		slog.Error("ccdelete command failed", "cc_id", ccID, "error", err)
		replyError(s, i, "Delete failed, try again later.")
		return
	}
	replyOK(s, i, "Message deleted", fmt.Sprintf("Removed %d delivered copies of CC-%s.", deleted, ccID))
}

func (h *Handler) handleWhitelist(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	sub := i.ApplicationCommandData().Options[0]
	kind := store.WhitelistKind(subOption(sub, "kind"))
	id := subOption(sub, "id")
	if (kind != store.WhitelistUser && kind != store.WhitelistRole) || id == "" {
		replyError(s, i, "Kind must be user or role, and an id is required.")
		return
	}

	switch sub.Name {
	case "add":
		err := h.whitelist.Add(ctx, store.WhitelistEntry{
			Kind:       kind,
			Identifier: id,
			AddedAt:    time.Now().UTC(),
			AddedBy:    interactionUserID(i),
		})
		if err != nil {
			slog.Error("whitelist add failed", "kind", kind, "id", id, "error", err)
			replyError(s, i, "Whitelist update failed, try again later.")
			return
		}
		h.pipeline.InvalidateWhitelist()
		replyOK(s, i, "Whitelist updated", fmt.Sprintf("Added %s `%s` to the automod bypass list.", kind, id))
	case "remove":
		if err := h.whitelist.Remove(ctx, kind, id); err != nil {
			slog.Error("whitelist remove failed", "kind", kind, "id", id, "error", err)
			replyError(s, i, "Whitelist update failed, try again later.")
			return
		}
		h.pipeline.InvalidateWhitelist()
		replyOK(s, i, "Whitelist updated", fmt.Sprintf("Removed %s `%s` from the automod bypass list.", kind, id))
	}
}

func (h *Handler) handlePartner(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	sub := i.ApplicationCommandData().Options[0]
	serverID := subOption(sub, "server")
	if serverID == "" {
		replyError(s, i, "Server id is required.")
		return
	}

	switch sub.Name {
	case "add":
		boost := 0
		for _, opt := range sub.Options {
			if opt.Name == "boost_ms" {
				boost = int(opt.IntValue())
			}
		}
		err := h.partners.Upsert(ctx, store.PartnerServer{
			ServerID:     serverID,
			ServerName:   subOption(sub, "name"),
			BoostDelayMS: boost,
			PartneredAt:  time.Now().UTC(),
			PartneredBy:  interactionUserID(i),
		})
		if err != nil {
			slog.Error("partner add failed", "server", serverID, "error", err)
			replyError(s, i, "Partner update failed, try again later.")
			return
		}
		replyOK(s, i, "Partner updated", fmt.Sprintf("Server `%s` is now a partner.", serverID))
	case "remove":
		if err := h.partners.Remove(ctx, serverID); err != nil {
			slog.Error("partner remove failed", "server", serverID, "error", err)
			replyError(s, i, "Partner update failed, try again later.")
			return
		}
		replyOK(s, i, "Partner updated", fmt.Sprintf("Server `%s` is no longer a partner.", serverID))
	}
}

// option returns the top-level option with the given name, or nil.
func option(i *discordgo.InteractionCreate, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

func stringOption(i *discordgo.InteractionCreate, name string) string {
	if opt := option(i, name); opt != nil {
		return opt.StringValue()
	}
	return ""
}

func subOption(sub *discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range sub.Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func replyOK(s *discordgo.Session, i *discordgo.InteractionCreate, title, message string) {
	replyEmbed(s, i, &discordgo.MessageEmbed{
		Title:       title,
		Description: message,
		Color:       0x2ECC71,
	})
}

func replyError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	replyEmbed(s, i, &discordgo.MessageEmbed{
		Description: message,
		Color:       0xE74C3C,
	})
}

func replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("interaction reply failed", "error", err)
	}
}
