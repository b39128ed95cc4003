// Package memory provides an in-process implementation of every store
// interface. It honors the same uniqueness and error semantics as the
// Postgres backend and backs the test suites; it is not shared across
// replicas and therefore unsuitable for fleet deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// NewStores returns a fully wired in-memory store set.
func NewStores() *store.Stores {
	return &store.Stores{
		Channels:   NewChannelStore(),
		Bans:       NewBanStore(),
		Messages:   NewMessageStore(),
		Deliveries: NewDeliveryStore(),
		Whitelist:  NewWhitelistStore(),
		Partners:   NewPartnerStore(),
		Moderation: NewModerationStore(),
		Votes:      NewVoteStore(),
		Guilds:     NewGuildStore(),
	}
}

// ChannelStore is an in-memory store.ChannelStore.
type ChannelStore struct {
	mu      sync.RWMutex
	entries map[string]*store.ChannelEntry // channel id → entry
}

func NewChannelStore() *ChannelStore {
	return &ChannelStore{entries: make(map[string]*store.ChannelEntry)}
}

func (s *ChannelStore) Upsert(_ context.Context, entry store.ChannelEntry) (*store.ChannelEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var replaced *store.ChannelEntry
	for _, e := range s.entries {
		if e.ServerID == entry.ServerID && e.Active && e.ChannelID != entry.ChannelID {
			cp := *e
			replaced = &cp
			e.Active = false
			e.UpdatedAt = time.Now().UTC()
		}
	}

	now := time.Now().UTC()
	if existing, ok := s.entries[entry.ChannelID]; ok {
		existing.Active = true
		existing.ServerName = entry.ServerName
		existing.ChannelName = entry.ChannelName
		existing.UpdatedAt = now
		return replaced, nil
	}
	entry.Active = true
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.entries[entry.ChannelID] = &entry
	return replaced, nil
}

func (s *ChannelStore) Deactivate(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[channelID]; ok {
		e.Active = false
		e.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *ChannelStore) DeactivateServer(_ context.Context, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ServerID == serverID {
			e.Active = false
			e.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *ChannelStore) ListActive(_ context.Context) ([]store.ChannelEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.ChannelEntry
	for _, e := range s.entries {
		if e.Active {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *ChannelStore) UpdateNames(_ context.Context, serverID, serverName, channelName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ServerID == serverID && e.Active {
			e.ServerName = serverName
			e.ChannelName = channelName
			e.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

// BanStore is an in-memory store.BanStore.
type BanStore struct {
	mu      sync.RWMutex
	users   map[string]*store.BannedUser
	servers map[string]*store.BannedServer
}

func NewBanStore() *BanStore {
	return &BanStore{
		users:   make(map[string]*store.BannedUser),
		servers: make(map[string]*store.BannedServer),
	}
}

func (s *BanStore) BanUser(_ context.Context, ban store.BannedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ban.Active = true
	s.users[ban.UserID] = &ban
	return nil
}

func (s *BanStore) UnbanUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.users[userID]; ok {
		b.Active = false
	}
	return nil
}

func (s *BanStore) GetUserBan(_ context.Context, userID string) (*store.BannedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.users[userID]
	if !ok || !b.Active || b.Expired(time.Now()) {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *BanStore) BanServer(_ context.Context, ban store.BannedServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ban.Active = true
	s.servers[ban.ServerID] = &ban
	return nil
}

func (s *BanStore) UnbanServer(_ context.Context, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.servers[serverID]; ok {
		b.Active = false
	}
	return nil
}

func (s *BanStore) GetServerBan(_ context.Context, serverID string) (*store.BannedServer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.servers[serverID]
	if !ok || !b.Active {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// MessageStore is an in-memory store.MessageStore. Both indexes are enforced
// under one lock, matching the atomicity of the Postgres insert.
type MessageStore struct {
	mu       sync.RWMutex
	bySource map[string]*store.MessageRecord
	byCCID   map[string]*store.MessageRecord
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		bySource: make(map[string]*store.MessageRecord),
		byCCID:   make(map[string]*store.MessageRecord),
	}
}

func (s *MessageStore) Insert(_ context.Context, rec store.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bySource[rec.SourceMessageID]; ok {
		return store.ErrDuplicateSource
	}
	if _, ok := s.byCCID[rec.CCID]; ok {
		return store.ErrDuplicateCCID
	}
	cp := rec
	s.bySource[rec.SourceMessageID] = &cp
	s.byCCID[rec.CCID] = &cp
	return nil
}

func (s *MessageStore) BySource(_ context.Context, sourceMessageID string) (*store.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.bySource[sourceMessageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MessageStore) ByCCID(_ context.Context, ccID string) (*store.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byCCID[ccID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MessageStore) UpdateContent(_ context.Context, ccID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byCCID[ccID]
	if !ok {
		return store.ErrNotFound
	}
	rec.Content = content
	return nil
}

func (s *MessageStore) MarkDeleted(_ context.Context, ccID, deletedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byCCID[ccID]
	if !ok || rec.Deleted {
		return false, nil
	}
	now := time.Now().UTC()
	rec.Deleted = true
	rec.DeletedAt = &now
	rec.DeletedBy = deletedBy
	return true, nil
}

// DeliveryStore is an in-memory store.DeliveryStore.
type DeliveryStore struct {
	mu   sync.RWMutex
	recs map[string][]store.DeliveryRecord // cc-id → deliveries
	seen map[string]struct{}               // cc-id + "\x00" + target
}

func NewDeliveryStore() *DeliveryStore {
	return &DeliveryStore{
		recs: make(map[string][]store.DeliveryRecord),
		seen: make(map[string]struct{}),
	}
}

func (s *DeliveryStore) Append(_ context.Context, rec store.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.CCID + "\x00" + rec.TargetChannelID
	if _, ok := s.seen[key]; ok {
		return store.ErrDuplicateDelivery
	}
	s.seen[key] = struct{}{}
	s.recs[rec.CCID] = append(s.recs[rec.CCID], rec)
	return nil
}

func (s *DeliveryStore) ByCCID(_ context.Context, ccID string) ([]store.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.DeliveryRecord, len(s.recs[ccID]))
	copy(out, s.recs[ccID])
	return out, nil
}

// WhitelistStore is an in-memory store.WhitelistStore.
type WhitelistStore struct {
	mu      sync.RWMutex
	entries map[string]store.WhitelistEntry
}

func NewWhitelistStore() *WhitelistStore {
	return &WhitelistStore{entries: make(map[string]store.WhitelistEntry)}
}

func wlKey(kind store.WhitelistKind, id string) string {
	return string(kind) + "\x00" + id
}

func (s *WhitelistStore) Add(_ context.Context, entry store.WhitelistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := wlKey(entry.Kind, entry.Identifier)
	if _, ok := s.entries[key]; !ok {
		s.entries[key] = entry
	}
	return nil
}

func (s *WhitelistStore) Remove(_ context.Context, kind store.WhitelistKind, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, wlKey(kind, identifier))
	return nil
}

func (s *WhitelistStore) List(_ context.Context) ([]store.WhitelistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.WhitelistEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

// PartnerStore is an in-memory store.PartnerStore.
type PartnerStore struct {
	mu       sync.RWMutex
	partners map[string]store.PartnerServer
}

func NewPartnerStore() *PartnerStore {
	return &PartnerStore{partners: make(map[string]store.PartnerServer)}
}

func (s *PartnerStore) Upsert(_ context.Context, p store.PartnerServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partners[p.ServerID] = p
	return nil
}

func (s *PartnerStore) Remove(_ context.Context, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partners, serverID)
	return nil
}

func (s *PartnerStore) Get(_ context.Context, serverID string) (*store.PartnerServer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partners[serverID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *PartnerStore) List(_ context.Context) ([]store.PartnerServer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.PartnerServer, 0, len(s.partners))
	for _, p := range s.partners {
		out = append(out, p)
	}
	return out, nil
}

// ModerationStore is an in-memory store.ModerationStore.
type ModerationStore struct {
	mu      sync.RWMutex
	entries []store.ModerationLog
}

func NewModerationStore() *ModerationStore {
	return &ModerationStore{}
}

func (s *ModerationStore) Append(_ context.Context, entry store.ModerationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *ModerationStore) CountWarnings(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.Action == store.ActionWarn && e.SubjectID == userID {
			n++
		}
	}
	return n, nil
}

// Entries returns a snapshot of the audit log, oldest first. Test helper.
func (s *ModerationStore) Entries() []store.ModerationLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.ModerationLog, len(s.entries))
	copy(out, s.entries)
	return out
}

// VoteStore is an in-memory store.VoteStore.
type VoteStore struct {
	mu      sync.RWMutex
	tallies map[string]int // user + "\x00" + month → total
}

func NewVoteStore() *VoteStore {
	return &VoteStore{tallies: make(map[string]int)}
}

func (s *VoteStore) Record(_ context.Context, v store.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tallies[v.UserID+"\x00"+v.Month] += v.Weight
	return nil
}

func (s *VoteStore) Top(_ context.Context, month string, limit int) ([]store.VoteTally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.VoteTally
	suffix := "\x00" + month
	for key, total := range s.tallies {
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			out = append(out, store.VoteTally{UserID: key[:len(key)-len(suffix)], Total: total})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GuildStore is an in-memory store.GuildStore.
type GuildStore struct {
	mu     sync.RWMutex
	guilds map[string]store.GuildInfo
}

func NewGuildStore() *GuildStore {
	return &GuildStore{guilds: make(map[string]store.GuildInfo)}
}

func (s *GuildStore) Upsert(_ context.Context, g store.GuildInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[g.ServerID] = g
	return nil
}

func (s *GuildStore) Remove(_ context.Context, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, serverID)
	return nil
}
