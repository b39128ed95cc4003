// Package commands implements the operator slash-command surface.
package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/crosschat/internal/automod"
	"github.com/nextlevelbuilder/crosschat/internal/bans"
	"github.com/nextlevelbuilder/crosschat/internal/config"
	"github.com/nextlevelbuilder/crosschat/internal/platform"
	"github.com/nextlevelbuilder/crosschat/internal/registry"
	"github.com/nextlevelbuilder/crosschat/internal/relay"
	"github.com/nextlevelbuilder/crosschat/internal/store"
)

const handlerTimeout = 30 * time.Second

// Handler owns slash-command registration and dispatch.
type Handler struct {
	cfg        *config.Config
	client     platform.Client
	registry   *registry.Registry
	bans       *bans.Service
	propagator *relay.Propagator
	pipeline   *automod.Pipeline
	whitelist  store.WhitelistStore
	partners   store.PartnerStore
	startedAt  time.Time
	version    string
}

// New wires the command handler.
func New(cfg *config.Config, client platform.Client, reg *registry.Registry, banSvc *bans.Service, prop *relay.Propagator, pipeline *automod.Pipeline, whitelist store.WhitelistStore, partners store.PartnerStore, version string) *Handler {
	return &Handler{
		cfg:        cfg,
		client:     client,
		registry:   reg,
		bans:       banSvc,
		propagator: prop,
		pipeline:   pipeline,
		whitelist:  whitelist,
		partners:   partners,
		startedAt:  time.Now(),
		version:    version,
	}
}

func definitions() []*discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageServer)
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "setup",
			Description:              "Enable cross-server chat in a channel",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Channel to relay (defaults to the current one)",
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:                     "disconnect",
			Description:              "Disable cross-server chat for this server",
			DefaultMemberPermissions: &manageGuild,
		},
		{
			Name:        "status",
			Description: "Show relay network status",
		},
		{
			Name:        "ban",
			Description: "Ban a user from the relay network (staff only)",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to ban", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "duration", Description: "e.g. 20m, 24h; empty = permanent"},
			},
		},
		{
			Name:        "unban",
			Description: "Lift a relay ban (staff only)",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to unban", Required: true},
			},
		},
		{
			Name:        "serverban",
			Description: "Ban a whole server from the network (staff only)",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "server", Description: "Server id", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason", Required: true},
			},
		},
		{
			Name:        "serverunban",
			Description: "Lift a server ban (staff only)",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "server", Description: "Server id", Required: true},
			},
		},
		{
			Name:        "ccdelete",
			Description: "Delete a relayed message everywhere by CC-ID (staff only)",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "cc_id", Description: "CC-ID from the message footer", Required: true},
			},
		},
		{
			Name:        "whitelist",
			Description: "Manage automod bypass entries (staff only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Add a bypass entry",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "kind", Description: "user or role", Required: true, Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "user", Value: "user"},
							{Name: "role", Value: "role"},
						}},
						{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "User or role id", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Remove a bypass entry",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "kind", Description: "user or role", Required: true, Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "user", Value: "user"},
							{Name: "role", Value: "role"},
						}},
						{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "User or role id", Required: true},
					},
				},
			},
		},
		{
			Name:        "partner",
			Description: "Manage partner servers (staff only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Add or update a partner server",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "server", Description: "Server id", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Display name"},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "boost_ms", Description: "Delivery boost in milliseconds"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Remove a partner server",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "server", Description: "Server id", Required: true},
					},
				},
			},
		},
	}
}

// Register creates the global application commands and installs the
// interaction dispatcher.
func (h *Handler) Register(session *discordgo.Session) error {
	session.AddHandler(h.dispatch)
	appID := ""
	if session.State.User != nil {
		appID = session.State.User.ID
	}
	if appID == "" {
		me, err := session.User("@me")
		if err != nil {
			return err
		}
		appID = me.ID
	}
	for _, def := range definitions() {
		if _, err := session.ApplicationCommandCreate(appID, "", def); err != nil {
			return err
		}
	}
	slog.Info("slash commands registered", "count", len(definitions()))
	return nil
}

func (h *Handler) dispatch(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	name := i.ApplicationCommandData().Name
	switch name {
	case "setup":
		h.handleSetup(ctx, s, i)
	case "disconnect":
		h.handleDisconnect(ctx, s, i)
	case "status":
		h.handleStatus(ctx, s, i)
	case "ban":
		h.staffOnly(ctx, s, i, h.handleBan)
	case "unban":
		h.staffOnly(ctx, s, i, h.handleUnban)
	case "serverban":
		h.staffOnly(ctx, s, i, h.handleServerBan)
	case "serverunban":
		h.staffOnly(ctx, s, i, h.handleServerUnban)
	case "ccdelete":
		h.staffOnly(ctx, s, i, h.handleCCDelete)
	case "whitelist":
		h.staffOnly(ctx, s, i, h.handleWhitelist)
	case "partner":
		h.staffOnly(ctx, s, i, h.handlePartner)
	default:
		slog.Warn("unknown slash command", "name", name)
	}
}

// staffOnly gates a handler behind the staff role in the support guild or the
// owner id.
func (h *Handler) staffOnly(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, next func(context.Context, *discordgo.Session, *discordgo.InteractionCreate)) {
	if h.isStaff(ctx, interactionUserID(i)) {
		next(ctx, s, i)
		return
	}
	replyError(s, i, "You need the staff role to use this command.")
}

func (h *Handler) isStaff(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	if userID == h.cfg.Discord.OwnerID {
		return true
	}
	if h.cfg.Discord.SupportGuildID == "" || h.cfg.Discord.StaffRoleID == "" {
		return false
	}
	roles, err := h.client.MemberRoles(ctx, h.cfg.Discord.SupportGuildID, userID)
	if err != nil {
		return false
	}
	for _, r := range roles {
		if r == h.cfg.Discord.StaffRoleID {
			return true
		}
	}
	return false
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
