package store

import "context"

// ChannelStore persists the relay channel registry (one active channel per server).
type ChannelStore interface {
	// Upsert activates entry and deactivates any prior channel for the same
	// server, atomically. It returns the replaced entry, if any.
	Upsert(ctx context.Context, entry ChannelEntry) (*ChannelEntry, error)
	// Deactivate marks the entry for channelID inactive, keeping the row.
	Deactivate(ctx context.Context, channelID string) error
	// DeactivateServer marks the active entry for a server inactive (bot left).
	DeactivateServer(ctx context.Context, serverID string) error
	// ListActive returns every active entry.
	ListActive(ctx context.Context) ([]ChannelEntry, error)
	// UpdateNames refreshes the cached display names for a server's entry.
	UpdateNames(ctx context.Context, serverID, serverName, channelName string) error
}

// BanStore persists user and server bans.
type BanStore interface {
	BanUser(ctx context.Context, ban BannedUser) error
	UnbanUser(ctx context.Context, userID string) error
	// GetUserBan returns the active ban for userID or ErrNotFound.
	// Expired timed bans are treated as absent.
	GetUserBan(ctx context.Context, userID string) (*BannedUser, error)
	BanServer(ctx context.Context, ban BannedServer) error
	UnbanServer(ctx context.Context, serverID string) error
	GetServerBan(ctx context.Context, serverID string) (*BannedServer, error)
}

// MessageStore persists MessageRecords. Insert is the fleet-wide coordination
// point: unique indexes on source_message_id and cc_id arbitrate races.
type MessageStore interface {
	// Insert writes the record or fails with ErrDuplicateSource /
	// ErrDuplicateCCID depending on which constraint tripped.
	Insert(ctx context.Context, rec MessageRecord) error
	BySource(ctx context.Context, sourceMessageID string) (*MessageRecord, error)
	ByCCID(ctx context.Context, ccID string) (*MessageRecord, error)
	// UpdateContent replaces the stored content in place (edit propagation).
	UpdateContent(ctx context.Context, ccID, content string) error
	// MarkDeleted flags the record deleted. It reports false when the record
	// was already flagged, making operator deletes idempotent.
	MarkDeleted(ctx context.Context, ccID, deletedBy string) (bool, error)
}

// DeliveryStore persists the Delivery Index.
type DeliveryStore interface {
	// Append records one delivered copy; (cc-id, target) duplicates fail with
	// ErrDuplicateDelivery.
	Append(ctx context.Context, rec DeliveryRecord) error
	ByCCID(ctx context.Context, ccID string) ([]DeliveryRecord, error)
}

// WhitelistStore persists automod bypass entries.
type WhitelistStore interface {
	Add(ctx context.Context, entry WhitelistEntry) error
	Remove(ctx context.Context, kind WhitelistKind, identifier string) error
	List(ctx context.Context) ([]WhitelistEntry, error)
}

// PartnerStore persists partner servers.
type PartnerStore interface {
	Upsert(ctx context.Context, p PartnerServer) error
	Remove(ctx context.Context, serverID string) error
	Get(ctx context.Context, serverID string) (*PartnerServer, error)
	List(ctx context.Context) ([]PartnerServer, error)
}

// ModerationStore is the append-only audit log plus warning counters.
type ModerationStore interface {
	Append(ctx context.Context, entry ModerationLog) error
	// CountWarnings returns the number of persisted formal warnings for a user.
	CountWarnings(ctx context.Context, userID string) (int, error)
}

// VoteStore folds webhook vote events into monthly tallies.
type VoteStore interface {
	Record(ctx context.Context, v Vote) error
	Top(ctx context.Context, month string, limit int) ([]VoteTally, error)
}

// GuildStore caches server metadata.
type GuildStore interface {
	Upsert(ctx context.Context, g GuildInfo) error
	Remove(ctx context.Context, serverID string) error
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Channels   ChannelStore
	Bans       BanStore
	Messages   MessageStore
	Deliveries DeliveryStore
	Whitelist  WhitelistStore
	Partners   PartnerStore
	Moderation ModerationStore
	Votes      VoteStore
	Guilds     GuildStore
}
