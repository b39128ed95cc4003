// Package platform isolates the chat-platform client behind an interface so
// the relay core never touches a live gateway in tests. Embed and member
// values use discordgo's wire types directly; only I/O goes through here.
package platform

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Client is the outbound surface the relay engine consumes.
type Client interface {
	// SendEmbed posts an embed with optional file attachments and returns the
	// delivered message id.
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed, files []*discordgo.File) (string, error)
	// EditEmbed replaces the embed of a previously delivered message.
	EditEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error
	// Message fetches a single message.
	Message(ctx context.Context, channelID, messageID string) (*discordgo.Message, error)
	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	// React adds a reaction emoji to a message.
	React(ctx context.Context, channelID, messageID, emoji string) error
	// Unreact removes the bot's own reaction from a message.
	Unreact(ctx context.Context, channelID, messageID, emoji string) error
	// DM opens (or reuses) a DM channel with a user and sends content.
	DM(ctx context.Context, userID, content string) error
	// MemberRoles returns the role ids a user holds in one guild, or
	// ErrNoMember when the user is not in it.
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
	// GuildIDs lists the guilds the bot is currently connected to.
	GuildIDs() []string
	// ChannelSlowmode returns a channel's rate-limit-per-user in seconds.
	ChannelSlowmode(ctx context.Context, channelID string) (int, error)
	// DownloadAttachment reads an attachment body into memory.
	DownloadAttachment(ctx context.Context, url string) ([]byte, error)
}
