package relay

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/crosschat/internal/automod"
	"github.com/nextlevelbuilder/crosschat/internal/tiers"
)

const attachmentPlaceholder = "*(attachment)*"

// EmbedInput is everything the renderer needs for one delivered copy.
type EmbedInput struct {
	CCID              string
	AuthorID          string
	AuthorDisplayName string
	AuthorAvatarURL   string
	Content           string
	SourceServerName  string
	SourceChannelName string
	Tier              tiers.Info
	Attachments       []Attachment
	CreatedAt         string // RFC3339, source message creation time
}

// RenderEmbed builds the delivered embed. The contract is stable: edit
// propagation rewrites only the description and leaves every other part as
// rendered here.
func RenderEmbed(in EmbedInput) *discordgo.MessageEmbed {
	name := in.AuthorDisplayName
	if in.Tier.VIP {
		name += " ⭐"
	}

	description := in.Content
	if description == "" && len(in.Attachments) > 0 {
		description = attachmentPlaceholder
	}

	embed := &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name:    fmt.Sprintf("[%s] %s • %s", in.Tier.TagName, name, in.SourceServerName),
			IconURL: in.AuthorAvatarURL,
		},
		Description: description,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "From",
				Value:  fmt.Sprintf("#%s • %s", in.SourceChannelName, in.SourceServerName),
				Inline: true,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("CC-%s • ID: %s", in.CCID, in.AuthorID),
		},
		Color:     in.Tier.Color,
		Timestamp: in.CreatedAt,
	}

	for _, att := range in.Attachments {
		if att.IsImage() {
			// The image bytes ride along as a file on every send.
			embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + att.Filename}
			break
		}
	}

	return embed
}

const noticeColor = 0x95A5A6

// NoticeEmbed renders a generic community notice. It categorises the reason
// and scope ("server" or "network-wide") but never names the user.
func NoticeEmbed(category automod.Category, scope string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Community Notice",
		Description: fmt.Sprintf("A member was temporarily restricted for: **%s**", string(category)),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Scope: %s • Keep CrossChat friendly", scope),
		},
		Color: noticeColor,
	}
}
