// Package bans fronts the ban store with TTL caches for the hot path.
package bans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nextlevelbuilder/crosschat/internal/store"
)

const cacheSize = 8192

// Service answers ban checks on the hot path. Negative results are cached
// too: most lookups are for users who were never banned.
type Service struct {
	store       store.BanStore
	moderation  store.ModerationStore
	userCache   *expirable.LRU[string, *store.BannedUser]
	serverCache *expirable.LRU[string, *store.BannedServer]
}

// New creates the ban service with the given cache lifetime.
func New(st store.BanStore, moderation store.ModerationStore, ttl time.Duration) *Service {
	return &Service{
		store:       st,
		moderation:  moderation,
		userCache:   expirable.NewLRU[string, *store.BannedUser](cacheSize, nil, ttl),
		serverCache: expirable.NewLRU[string, *store.BannedServer](cacheSize, nil, ttl),
	}
}

// BanUser records a service ban and an audit entry. Repeated bans replace the
// prior row, leaving a single active ban.
func (s *Service) BanUser(ctx context.Context, userID, reason, moderatorID string, duration *time.Duration) error {
	ban := store.BannedUser{
		UserID:      userID,
		Reason:      reason,
		ModeratorID: moderatorID,
		Duration:    duration,
		BannedAt:    time.Now().UTC(),
	}
	if err := s.store.BanUser(ctx, ban); err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	s.userCache.Remove(userID)
	return s.moderation.Append(ctx, store.ModerationLog{
		Action:      store.ActionBan,
		SubjectID:   userID,
		ModeratorID: moderatorID,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	})
}

// UnbanUser lifts a user ban.
func (s *Service) UnbanUser(ctx context.Context, userID, moderatorID string) error {
	if err := s.store.UnbanUser(ctx, userID); err != nil {
		return fmt.Errorf("unban user: %w", err)
	}
	s.userCache.Remove(userID)
	return s.moderation.Append(ctx, store.ModerationLog{
		Action:      store.ActionUnban,
		SubjectID:   userID,
		ModeratorID: moderatorID,
		CreatedAt:   time.Now().UTC(),
	})
}

// BanServer records a server-wide ban.
func (s *Service) BanServer(ctx context.Context, serverID, reason, moderatorID string) error {
	ban := store.BannedServer{
		ServerID:    serverID,
		Reason:      reason,
		ModeratorID: moderatorID,
		BannedAt:    time.Now().UTC(),
	}
	if err := s.store.BanServer(ctx, ban); err != nil {
		return fmt.Errorf("ban server: %w", err)
	}
	s.serverCache.Remove(serverID)
	return s.moderation.Append(ctx, store.ModerationLog{
		Action:      store.ActionServerBan,
		SubjectID:   serverID,
		ModeratorID: moderatorID,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	})
}

// UnbanServer lifts a server ban.
func (s *Service) UnbanServer(ctx context.Context, serverID, moderatorID string) error {
	if err := s.store.UnbanServer(ctx, serverID); err != nil {
		return fmt.Errorf("unban server: %w", err)
	}
	s.serverCache.Remove(serverID)
	return s.moderation.Append(ctx, store.ModerationLog{
		Action:      store.ActionServerUnban,
		SubjectID:   serverID,
		ModeratorID: moderatorID,
		CreatedAt:   time.Now().UTC(),
	})
}

// UserBan returns the active ban for a user, or nil.
func (s *Service) UserBan(ctx context.Context, userID string) (*store.BannedUser, error) {
	if ban, ok := s.userCache.Get(userID); ok {
		if ban != nil && ban.Expired(time.Now()) {
			s.userCache.Remove(userID)
		} else {
			return ban, nil
		}
	}
	ban, err := s.store.GetUserBan(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		s.userCache.Add(userID, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user ban: %w", err)
	}
	s.userCache.Add(userID, ban)
	return ban, nil
}

// IsUserBanned is the hot-path check.
func (s *Service) IsUserBanned(ctx context.Context, userID string) (bool, error) {
	ban, err := s.UserBan(ctx, userID)
	return ban != nil, err
}

// ServerBan returns the active ban for a server, or nil.
func (s *Service) ServerBan(ctx context.Context, serverID string) (*store.BannedServer, error) {
	if ban, ok := s.serverCache.Get(serverID); ok {
		return ban, nil
	}
	ban, err := s.store.GetServerBan(ctx, serverID)
	if errors.Is(err, store.ErrNotFound) {
		s.serverCache.Add(serverID, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup server ban: %w", err)
	}
	s.serverCache.Add(serverID, ban)
	return ban, nil
}

// IsServerBanned is the hot-path check.
func (s *Service) IsServerBanned(ctx context.Context, serverID string) (bool, error) {
	ban, err := s.ServerBan(ctx, serverID)
	return ban != nil, err
}
