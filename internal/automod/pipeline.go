// Package automod is the content filter pipeline: ordered checks that
// short-circuit on the first flag, a violation tally, and escalation into
// warnings and timed service bans.
package automod

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/nextlevelbuilder/crosschat/internal/bans"
	"github.com/nextlevelbuilder/crosschat/internal/config"
	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// Action is what the pipeline wants done with a message.
type Action int

const (
	ActionAllow Action = iota
	ActionWarn
	ActionDelete
)

// Verdict is the pipeline outcome for one message.
type Verdict struct {
	Action   Action
	Category Category
	Reason   string
}

// Allowed reports whether the message passes.
func (v Verdict) Allowed() bool { return v.Action == ActionAllow }

// Input is the evaluated snapshot of a message.
type Input struct {
	UserID  string
	RoleIDs []string
	Content string
}

// Escalation reports what RecordViolation did.
type Escalation struct {
	Count          int
	WarningIssued  bool
	Banned         bool
	BanDuration    time.Duration
	Category       Category
}

type historyEntry struct {
	at      time.Time
	lowered string
}

// Pipeline evaluates messages and escalates repeat offenders.
type Pipeline struct {
	cfg        config.AutomodConfig
	rules      *RuleSet
	whitelist  store.WhitelistStore
	moderation store.ModerationStore
	bans       *bans.Service
	tally      *Tally

	mu      sync.Mutex
	history map[string][]historyEntry // user id → recent messages

	wlMu      sync.RWMutex
	wlSnap    map[string]struct{} // kind + "\x00" + identifier
	wlFetched time.Time
	wlTTL     time.Duration
}

// New creates the pipeline.
func New(cfg config.AutomodConfig, rules *RuleSet, whitelist store.WhitelistStore, moderation store.ModerationStore, banSvc *bans.Service, cacheTTL time.Duration) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		rules:      rules,
		whitelist:  whitelist,
		moderation: moderation,
		bans:       banSvc,
		tally:      NewTally(),
		history:    make(map[string][]historyEntry),
		wlTTL:      cacheTTL,
	}
}

// Tally exposes the violation tally (for status reporting and tests).
func (p *Pipeline) Tally() *Tally { return p.tally }

// Evaluate runs the checks in order, short-circuiting on the first flag.
// It records the message in the rate/duplicate history either way.
func (p *Pipeline) Evaluate(ctx context.Context, in Input) (Verdict, error) {
	whitelisted, err := p.isWhitelisted(ctx, in)
	if err != nil {
		return Verdict{}, err
	}
	if whitelisted {
		p.record(in)
		return Verdict{Action: ActionAllow}, nil
	}

	recent, duplicates := p.record(in)

	if recent > p.cfg.RateLimit {
		return Verdict{Action: ActionDelete, Category: CategorySpam, Reason: "message rate exceeded"}, nil
	}
	if duplicates >= p.cfg.DuplicateLimit {
		return Verdict{Action: ActionDelete, Category: CategoryDuplicate, Reason: "repeated identical message"}, nil
	}
	if flagged, ratio := excessiveCaps(in.Content, p.cfg.CapsMinLength, p.cfg.CapsRatio); flagged {
		return Verdict{Action: ActionDelete, Category: CategoryCaps, Reason: fmt.Sprintf("uppercase ratio %.0f%%", ratio*100)}, nil
	}
	if p.cfg.BlockLinks && p.rules.Matches(patternLink, in.Content) {
		return Verdict{Action: ActionDelete, Category: CategoryLinks, Reason: "link posted"}, nil
	}
	if p.cfg.BlockInvites && p.rules.Matches(patternInvite, in.Content) {
		return Verdict{Action: ActionDelete, Category: CategoryInvites, Reason: "invite posted"}, nil
	}
	if p.rules.Matches(patternProfanity, in.Content) {
		return Verdict{Action: ActionDelete, Category: CategoryToxic, Reason: "profanity"}, nil
	}
	if p.rules.Matches(patternPhone, in.Content) {
		return Verdict{Action: ActionDelete, Category: CategoryContent, Reason: "phone number"}, nil
	}
	if p.rules.Matches(patternAddress, in.Content) {
		return Verdict{Action: ActionDelete, Category: CategoryContent, Reason: "residential address"}, nil
	}

	return Verdict{Action: ActionAllow}, nil
}

// RecordViolation increments the tally for a flagged message and escalates:
// every ViolationsPerWarning flags issues a persisted warning; when the
// user's total warnings reach WarningsForBan a timed service ban is applied
// and the tally resets.
func (p *Pipeline) RecordViolation(ctx context.Context, userID string, category Category) (Escalation, error) {
	count := p.tally.Increment(userID, category)
	esc := Escalation{Count: count, Category: category}

	if p.cfg.ViolationsPerWarning <= 0 || count%p.cfg.ViolationsPerWarning != 0 {
		return esc, nil
	}

	now := time.Now().UTC()
	if err := p.moderation.Append(ctx, store.ModerationLog{
		Action:      store.ActionWarn,
		SubjectID:   userID,
		ModeratorID: "automod",
		Reason:      string(category),
		CreatedAt:   now,
	}); err != nil {
		return esc, fmt.Errorf("persist warning: %w", err)
	}
	esc.WarningIssued = true

	total, err := p.moderation.CountWarnings(ctx, userID)
	if err != nil {
		return esc, fmt.Errorf("count warnings: %w", err)
	}
	if total < p.cfg.WarningsForBan {
		return esc, nil
	}

	duration := p.cfg.BanDuration.Std()
	if err := p.bans.BanUser(ctx, userID, "automod: "+string(category), "automod", &duration); err != nil {
		return esc, fmt.Errorf("apply automod ban: %w", err)
	}
	p.tally.Reset(userID)
	esc.Banned = true
	esc.BanDuration = duration
	return esc, nil
}

// record appends the message to the user's history and returns the number of
// messages inside the rate window (including this one) and the number of
// prior identical messages inside the duplicate window.
func (p *Pipeline) record(in Input) (recent, duplicates int) {
	now := time.Now()
	lowered := strings.ToLower(strings.TrimSpace(in.Content))

	p.mu.Lock()
	defer p.mu.Unlock()

	hist := p.history[in.UserID]
	keepFrom := 0
	longest := p.cfg.RateWindow.Std()
	if d := p.cfg.DuplicateWindow.Std(); d > longest {
		longest = d
	}
	for i, e := range hist {
		if now.Sub(e.at) <= longest {
			keepFrom = i
			break
		}
		keepFrom = i + 1
	}
	hist = hist[keepFrom:]

	for _, e := range hist {
		if now.Sub(e.at) <= p.cfg.RateWindow.Std() {
			recent++
		}
		if lowered != "" && e.lowered == lowered && now.Sub(e.at) <= p.cfg.DuplicateWindow.Std() {
			duplicates++
		}
	}

	hist = append(hist, historyEntry{at: now, lowered: lowered})
	p.history[in.UserID] = hist
	return recent + 1, duplicates
}

func (p *Pipeline) isWhitelisted(ctx context.Context, in Input) (bool, error) {
	snap, err := p.whitelistSnapshot(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := snap[string(store.WhitelistUser)+"\x00"+in.UserID]; ok {
		return true, nil
	}
	for _, role := range in.RoleIDs {
		if _, ok := snap[string(store.WhitelistRole)+"\x00"+role]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pipeline) whitelistSnapshot(ctx context.Context) (map[string]struct{}, error) {
	p.wlMu.RLock()
	if p.wlSnap != nil && time.Since(p.wlFetched) < p.wlTTL {
		snap := p.wlSnap
		p.wlMu.RUnlock()
		return snap, nil
	}
	p.wlMu.RUnlock()

	entries, err := p.whitelist.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load automod whitelist: %w", err)
	}
	snap := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		snap[string(e.Kind)+"\x00"+e.Identifier] = struct{}{}
	}

	p.wlMu.Lock()
	p.wlSnap = snap
	p.wlFetched = time.Now()
	p.wlMu.Unlock()
	return snap, nil
}

// InvalidateWhitelist drops the cached whitelist snapshot.
func (p *Pipeline) InvalidateWhitelist() {
	p.wlMu.Lock()
	p.wlSnap = nil
	p.wlMu.Unlock()
}

// excessiveCaps flags content of CapsMinLength or more runes whose letters
// are more than ratio uppercase.
func excessiveCaps(content string, minLength int, ratio float64) (bool, float64) {
	runes := []rune(content)
	if len(runes) < minLength {
		return false, 0
	}
	var letters, upper int
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return false, 0
	}
	got := float64(upper) / float64(letters)
	return got > ratio, got
}
