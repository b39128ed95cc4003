package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/crosschat/internal/platform"
)

// fakeClient is an in-memory platform.Client that records every call.
type fakeClient struct {
	mu sync.Mutex

	nextID    int
	sent      map[string][]*discordgo.Message // channel id → delivered messages
	reactions map[string][]string             // channel/message → emoji, in order
	deleted   map[string]bool                 // channel/message
	dms       map[string][]string             // user id → contents
	edited    map[string]*discordgo.MessageEmbed

	guilds      []string
	roles       map[string][]string // guild/user → role ids
	slowmodes   map[string]int
	attachments map[string][]byte

	failSend  map[string]bool // channel id → refuse sends
	failFetch bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		sent:        make(map[string][]*discordgo.Message),
		reactions:   make(map[string][]string),
		deleted:     make(map[string]bool),
		dms:         make(map[string][]string),
		edited:      make(map[string]*discordgo.MessageEmbed),
		roles:       make(map[string][]string),
		slowmodes:   make(map[string]int),
		attachments: make(map[string][]byte),
		failSend:    make(map[string]bool),
	}
}

var _ platform.Client = (*fakeClient)(nil)

func (f *fakeClient) SendEmbed(_ context.Context, channelID string, embed *discordgo.MessageEmbed, _ []*discordgo.File) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend[channelID] {
		return "", errors.New("send refused")
	}
	f.nextID++
	id := fmt.Sprintf("d%d", f.nextID)
	f.sent[channelID] = append(f.sent[channelID], &discordgo.Message{
		ID:        id,
		ChannelID: channelID,
		Embeds:    []*discordgo.MessageEmbed{embed},
	})
	return id, nil
}

func (f *fakeClient) EditEmbed(_ context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited[channelID+"/"+messageID] = embed
	for _, m := range f.sent[channelID] {
		if m.ID == messageID {
			m.Embeds = []*discordgo.MessageEmbed{embed}
			return nil
		}
	}
	return errors.New("unknown message")
}

func (f *fakeClient) Message(_ context.Context, channelID, messageID string) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetch {
		return nil, errors.New("fetch refused")
	}
	for _, m := range f.sent[channelID] {
		if m.ID == messageID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, errors.New("unknown message")
}

func (f *fakeClient) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[channelID+"/"+messageID] = true
	return nil
}

func (f *fakeClient) React(_ context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := channelID + "/" + messageID
	f.reactions[key] = append(f.reactions[key], emoji)
	return nil
}

func (f *fakeClient) Unreact(_ context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := channelID + "/" + messageID
	out := f.reactions[key][:0]
	for _, e := range f.reactions[key] {
		if e != emoji {
			out = append(out, e)
		}
	}
	f.reactions[key] = out
	return nil
}

func (f *fakeClient) DM(_ context.Context, userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms[userID] = append(f.dms[userID], content)
	return nil
}

func (f *fakeClient) MemberRoles(_ context.Context, guildID, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if roles, ok := f.roles[guildID+"/"+userID]; ok {
		return roles, nil
	}
	return nil, platform.ErrNoMember
}

func (f *fakeClient) GuildIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.guilds...)
}

func (f *fakeClient) ChannelSlowmode(_ context.Context, channelID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slowmodes[channelID], nil
}

func (f *fakeClient) DownloadAttachment(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.attachments[url]; ok {
		return data, nil
	}
	return nil, errors.New("download refused")
}

func (f *fakeClient) sentTo(channelID string) []*discordgo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Message(nil), f.sent[channelID]...)
}

func (f *fakeClient) reactionsOn(channelID, messageID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reactions[channelID+"/"+messageID]...)
}

func (f *fakeClient) wasDeleted(channelID, messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted[channelID+"/"+messageID]
}

func (f *fakeClient) dmsTo(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dms[userID]...)
}
