// Package registry is the authoritative set of relay-enabled channels, one
// active channel per server.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// ErrSlowmodePolicy means the source channel's slowmode is outside the
// required range for relay channels.
var ErrSlowmodePolicy = errors.New("registry: slowmode outside required range")

// Registry fronts the channel store with a TTL'd in-process snapshot of the
// active set. The snapshot is replaced wholesale on refresh and dropped on
// every write, so reads never see a half-applied change.
type Registry struct {
	store       store.ChannelStore
	slowmodeMin int
	slowmodeMax int
	ttl         time.Duration

	mu       sync.RWMutex
	snapshot map[string]store.ChannelEntry // channel id → entry
	fetched  time.Time
}

// New creates a registry. slowmodeMin/Max bound the setup policy in seconds.
func New(st store.ChannelStore, slowmodeMin, slowmodeMax int, ttl time.Duration) *Registry {
	return &Registry{
		store:       st,
		slowmodeMin: slowmodeMin,
		slowmodeMax: slowmodeMax,
		ttl:         ttl,
	}
}

// Enable registers channel as the relay channel for its server, replacing any
// prior channel. slowmode is the source channel's current rate limit in
// seconds; values outside the policy range fail with ErrSlowmodePolicy.
// It returns the replaced entry, if any.
func (r *Registry) Enable(ctx context.Context, entry store.ChannelEntry, slowmode int) (*store.ChannelEntry, error) {
	if slowmode < r.slowmodeMin || slowmode > r.slowmodeMax {
		return nil, fmt.Errorf("%w: %ds not in [%d, %d]", ErrSlowmodePolicy, slowmode, r.slowmodeMin, r.slowmodeMax)
	}
	replaced, err := r.store.Upsert(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("enable relay channel: %w", err)
	}
	r.Invalidate()
	return replaced, nil
}

// Disable deactivates a relay channel, keeping its row for audit.
func (r *Registry) Disable(ctx context.Context, channelID string) error {
	if err := r.store.Deactivate(ctx, channelID); err != nil {
		return fmt.Errorf("disable relay channel: %w", err)
	}
	r.Invalidate()
	return nil
}

// DisableServer deactivates the entry for a server (bot removed).
func (r *Registry) DisableServer(ctx context.Context, serverID string) error {
	if err := r.store.DeactivateServer(ctx, serverID); err != nil {
		return fmt.Errorf("disable server relay channel: %w", err)
	}
	r.Invalidate()
	return nil
}

// ListActive returns every active relay channel.
func (r *Registry) ListActive(ctx context.Context) ([]store.ChannelEntry, error) {
	snap, err := r.active(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]store.ChannelEntry, 0, len(snap))
	for _, e := range snap {
		out = append(out, e)
	}
	return out, nil
}

// IsRelayChannel is the hot-path membership check. A channel outside the
// active set must never be read or relayed.
func (r *Registry) IsRelayChannel(ctx context.Context, channelID string) (bool, error) {
	snap, err := r.active(ctx)
	if err != nil {
		return false, err
	}
	_, ok := snap[channelID]
	return ok, nil
}

// Entry returns the active entry for a channel, or nil.
func (r *Registry) Entry(ctx context.Context, channelID string) (*store.ChannelEntry, error) {
	snap, err := r.active(ctx)
	if err != nil {
		return nil, err
	}
	if e, ok := snap[channelID]; ok {
		return &e, nil
	}
	return nil, nil
}

// UpdateNames refreshes the cached display names for a server's entry.
func (r *Registry) UpdateNames(ctx context.Context, serverID, serverName, channelName string) error {
	if err := r.store.UpdateNames(ctx, serverID, serverName, channelName); err != nil {
		return fmt.Errorf("update channel names: %w", err)
	}
	r.Invalidate()
	return nil
}

// Invalidate drops the snapshot so the next read hits the store.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.snapshot = nil
	r.mu.Unlock()
}

func (r *Registry) active(ctx context.Context) (map[string]store.ChannelEntry, error) {
	r.mu.RLock()
	if r.snapshot != nil && time.Since(r.fetched) < r.ttl {
		snap := r.snapshot
		r.mu.RUnlock()
		return snap, nil
	}
	r.mu.RUnlock()

	entries, err := r.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh channel registry: %w", err)
	}
	snap := make(map[string]store.ChannelEntry, len(entries))
	for _, e := range entries {
		snap[e.ChannelID] = e
	}

	r.mu.Lock()
	r.snapshot = snap
	r.fetched = time.Now()
	r.mu.Unlock()
	return snap, nil
}
