// Package fingerprint assigns network-wide CC-IDs to source messages,
// exactly once across all replicas.
package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// ErrExhausted means repeated CC-ID collisions defeated the bounded retry.
// With 36^8 candidates this indicates a store problem, not bad luck.
var ErrExhausted = errors.New("fingerprint: allocator exhausted")

const (
	base36     = "0123456789abcdefghijklmnopqrstuvwxyz"
	timeDigits = 6
	randDigits = 2
	localCache = 65536
)

// vipPrefix marks VIP ids; uppercase so it can never collide with the
// lowercase base-36 body.
const vipPrefix = "V"

// Allocator implements the assign contract: concurrent callers fleet-wide
// observe one CC-ID per source message and exactly one of them writes the
// row. The store's unique indexes are the coordination primitive; the local
// cache and the pre-read are fast paths only and never load-bearing.
type Allocator struct {
	messages store.MessageStore
	retries  int
	cache    *lru.Cache[string, string] // source message id → cc-id
	now      func() time.Time
	intN     func(int) int
}

// New creates an allocator. retries bounds CC-ID regeneration on collision.
func New(messages store.MessageStore, retries int) *Allocator {
	if retries <= 0 {
		retries = 3
	}
	cache, _ := lru.New[string, string](localCache)
	return &Allocator{
		messages: messages,
		retries:  retries,
		cache:    cache,
		now:      time.Now,
		intN:     rand.IntN,
	}
}

// Assign returns the CC-ID for the source message described by snap,
// allocating one if none exists. fresh reports whether this call wrote the
// record; callers that observe fresh == false must not deliver again.
func (a *Allocator) Assign(ctx context.Context, snap store.MessageRecord) (ccID string, fresh bool, err error) {
	if id, ok := a.cache.Get(snap.SourceMessageID); ok {
		return id, false, nil
	}

	// Fast path: another replica may have allocated already.
	if rec, err := a.messages.BySource(ctx, snap.SourceMessageID); err == nil {
		a.cache.Add(snap.SourceMessageID, rec.CCID)
		return rec.CCID, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", false, fmt.Errorf("allocator pre-read: %w", err)
	}

	for attempt := 0; attempt < a.retries; attempt++ {
		candidate := a.generate(snap.VIP)
		rec := snap
		rec.CCID = candidate
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = a.now().UTC()
		}

		err := a.messages.Insert(ctx, rec)
		switch {
		case err == nil:
			a.cache.Add(snap.SourceMessageID, candidate)
			return candidate, true, nil
		case errors.Is(err, store.ErrDuplicateSource):
			// Lost the race; the winner's id is authoritative.
			winner, rerr := a.messages.BySource(ctx, snap.SourceMessageID)
			if rerr != nil {
				return "", false, fmt.Errorf("allocator re-read after conflict: %w", rerr)
			}
			a.cache.Add(snap.SourceMessageID, winner.CCID)
			return winner.CCID, false, nil
		case errors.Is(err, store.ErrDuplicateCCID):
			continue
		default:
			return "", false, fmt.Errorf("allocator insert: %w", err)
		}
	}
	return "", false, ErrExhausted
}

// Lookup returns the cached or stored CC-ID without allocating.
func (a *Allocator) Lookup(ctx context.Context, sourceMessageID string) (string, error) {
	if id, ok := a.cache.Get(sourceMessageID); ok {
		return id, nil
	}
	rec, err := a.messages.BySource(ctx, sourceMessageID)
	if err != nil {
		return "", err
	}
	a.cache.Add(sourceMessageID, rec.CCID)
	return rec.CCID, nil
}

// generate derives a candidate id: the low six base-36 digits of the local
// millisecond clock plus two random base-36 characters. Uniqueness is
// enforced by the store, never by the clock, so skew only costs retries.
func (a *Allocator) generate(vip bool) string {
	ms := a.now().UnixMilli()
	ts := strconv.FormatInt(ms, 36)
	if len(ts) > timeDigits {
		ts = ts[len(ts)-timeDigits:]
	}
	for len(ts) < timeDigits {
		ts = "0" + ts
	}

	buf := make([]byte, 0, timeDigits+randDigits+1)
	if vip {
		buf = append(buf, vipPrefix...)
	}
	buf = append(buf, ts...)
	for i := 0; i < randDigits; i++ {
		buf = append(buf, base36[a.intN(len(base36))])
	}
	return string(buf)
}
