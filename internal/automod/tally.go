package automod

import (
	"sync"
	"time"
)

const maxRecentReasons = 10

// Tally tracks per-user violations in this replica. It is advisory only:
// warnings and bans themselves are persisted, the tally is not.
type Tally struct {
	mu    sync.Mutex
	users map[string]*userTally
}

type userTally struct {
	count   int
	lastAt  time.Time
	reasons []Category
}

// NewTally creates an empty violation tally.
func NewTally() *Tally {
	return &Tally{users: make(map[string]*userTally)}
}

// Increment records one violation and returns the user's running count.
func (t *Tally) Increment(userID string, reason Category) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.users[userID]
	if !ok {
		u = &userTally{}
		t.users[userID] = u
	}
	u.count++
	u.lastAt = time.Now()
	u.reasons = append(u.reasons, reason)
	if len(u.reasons) > maxRecentReasons {
		u.reasons = u.reasons[len(u.reasons)-maxRecentReasons:]
	}
	return u.count
}

// Count returns the user's running violation count.
func (t *Tally) Count(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u, ok := t.users[userID]; ok {
		return u.count
	}
	return 0
}

// Reset clears a user's tally (called when a ban is applied).
func (t *Tally) Reset(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.users, userID)
}

// RecentReasons returns up to the last ten violation categories.
func (t *Tally) RecentReasons(userID string) []Category {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u, ok := t.users[userID]; ok {
		out := make([]Category, len(u.reasons))
		copy(out, u.reasons)
		return out
	}
	return nil
}
