package store

import "time"

// ChannelEntry is one relay-enabled channel. At most one active entry exists
// per server; enabling a new channel for a server replaces the old one.
type ChannelEntry struct {
	ServerID    string
	ChannelID   string
	ServerName  string // cached display name
	ChannelName string // cached display name
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BannedUser is a service ban. Duration nil means permanent.
type BannedUser struct {
	UserID      string
	Reason      string
	ModeratorID string
	Duration    *time.Duration
	BannedAt    time.Time
	Active      bool
}

// Expired reports whether a timed ban has run out.
func (b *BannedUser) Expired(now time.Time) bool {
	return b.Duration != nil && now.After(b.BannedAt.Add(*b.Duration))
}

// BannedServer is a server-wide service ban.
type BannedServer struct {
	ServerID    string
	Reason      string
	ModeratorID string
	BannedAt    time.Time
	Active      bool
}

// MessageRecord is the authoritative row for one relayed source message.
// Both SourceMessageID and CCID are unique fleet-wide; the pair is written
// atomically in a single insert, which is what serializes concurrent
// allocation attempts across replicas.
type MessageRecord struct {
	SourceMessageID string
	CCID            string
	UserID          string
	UserDisplayName string
	ServerID        string
	ChannelID       string
	Content         string
	TagLevel        int
	TagName         string
	VIP             bool
	CreatedAt       time.Time
	Deleted         bool
	DeletedAt       *time.Time
	DeletedBy       string
}

// DeliveryRecord maps a CC-ID to one delivered copy.
// (CCID, TargetChannelID) is unique.
type DeliveryRecord struct {
	CCID               string
	TargetChannelID    string
	DeliveredMessageID string
	DeliveredAt        time.Time
	SourceMessageID    string // back-reference, optional
}

// WhitelistKind discriminates automod whitelist entries.
type WhitelistKind string

const (
	WhitelistUser WhitelistKind = "user"
	WhitelistRole WhitelistKind = "role"
)

// WhitelistEntry bypasses the automod pipeline for a user or role.
type WhitelistEntry struct {
	Kind       WhitelistKind
	Identifier string
	AddedAt    time.Time
	AddedBy    string
}

// PartnerServer is a partnered community with a delivery boost.
type PartnerServer struct {
	ServerID     string
	ServerName   string
	BoostDelayMS int
	PartneredAt  time.Time
	PartneredBy  string
}

// ModerationAction enumerates audit log actions.
type ModerationAction string

const (
	ActionWarn         ModerationAction = "warn"
	ActionBan          ModerationAction = "ban"
	ActionUnban        ModerationAction = "unban"
	ActionServerBan    ModerationAction = "server_ban"
	ActionServerUnban  ModerationAction = "server_unban"
	ActionGlobalDelete ModerationAction = "global_delete"
)

// ModerationLog is one append-only audit entry.
type ModerationLog struct {
	Action      ModerationAction
	SubjectID   string // user or server or CC-ID depending on action
	ModeratorID string
	Reason      string
	Detail      string // free-form, e.g. "deleted_count=3"
	CreatedAt   time.Time
}

// Vote is one third-party vote event, folded into a per-month tally.
type Vote struct {
	UserID    string
	BotID     string
	Month     string // "2006-01"
	Weight    int    // 1, or 2 on weekends
	VotedAt   time.Time
}

// VoteTally is a per-user monthly aggregate.
type VoteTally struct {
	UserID string
	Total  int
}

// GuildInfo is cached metadata about a server the bot is in.
type GuildInfo struct {
	ServerID    string
	Name        string
	MemberCount int
	JoinedAt    time.Time
	UpdatedAt   time.Time
}
