package automod

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/bans"
	"github.com/nextlevelbuilder/crosschat/internal/config"
	"github.com/nextlevelbuilder/crosschat/internal/store"
	"github.com/nextlevelbuilder/crosschat/internal/store/memory"
)

func testConfig() config.AutomodConfig {
	return config.AutomodConfig{
		RateLimit:            3,
		RateWindow:           config.Duration(10 * time.Second),
		DuplicateLimit:       3,
		DuplicateWindow:      config.Duration(60 * time.Second),
		CapsMinLength:        10,
		CapsRatio:            0.7,
		BlockLinks:           true,
		BlockInvites:         true,
		ViolationsPerWarning: 3,
		WarningsForBan:       3,
		BanDuration:          config.Duration(20 * time.Minute),
	}
}

type pipelineEnv struct {
	pipeline   *Pipeline
	whitelist  store.WhitelistStore
	moderation *memory.ModerationStore
	bans       *bans.Service
}

func newTestPipeline(t *testing.T, cfg config.AutomodConfig) *pipelineEnv {
	t.Helper()
	wl := memory.NewWhitelistStore()
	mod := memory.NewModerationStore()
	banSvc := bans.New(memory.NewBanStore(), mod, time.Minute)
	return &pipelineEnv{
		pipeline:   New(cfg, NewRuleSet(time.Minute), wl, mod, banSvc, time.Minute),
		whitelist:  wl,
		moderation: mod,
		bans:       banSvc,
	}
}

func TestEvaluateContentChecks(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		category Category
		allowed  bool
	}{
		{name: "plain message", content: "hello everyone, how is it going?", allowed: true},
		{name: "caps below min length", content: "HELLOHELL", allowed: true},
		{name: "caps at min length", content: "HELLOHELLO", category: CategoryCaps},
		{name: "caps ratio at threshold passes", content: "AAAAAAAbbb", allowed: true},
		{name: "mixed caps over threshold", content: "STOP SHOUTING AT me", category: CategoryCaps},
		{name: "no letters never caps", content: "?!?!?!?!?!", allowed: true},
		{name: "http link", content: "look at https://example.com/page", category: CategoryLinks},
		{name: "www link", content: "visit www.example.com now", category: CategoryLinks},
		{name: "discord invite", content: "join discord.gg/abc123", category: CategoryInvites},
		{name: "profanity", content: "what the fuck", category: CategoryToxic},
		{name: "stretched profanity", content: "fuuuuck this", category: CategoryToxic},
		{name: "phone number", content: "call me at 555-123-4567", category: CategoryContent},
		{name: "street address", content: "I live at 123 Main Street", category: CategoryContent},
		{name: "apartment number", content: "apt #42 is mine", category: CategoryContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestPipeline(t, testConfig())
			v, err := env.pipeline.Evaluate(context.Background(), Input{UserID: "u1", Content: tt.content})
			if err != nil {
				t.Fatal(err)
			}
			if tt.allowed {
				if !v.Allowed() {
					t.Fatalf("blocked %q: %+v", tt.content, v)
				}
				return
			}
			if v.Allowed() {
				t.Fatalf("allowed %q, want %s", tt.content, tt.category)
			}
			if v.Category != tt.category {
				t.Errorf("category: got %s, want %s", v.Category, tt.category)
			}
			if v.Action != ActionDelete {
				t.Errorf("action: got %v, want delete", v.Action)
			}
		})
	}
}

func TestEvaluateRateLimit(t *testing.T) {
	env := newTestPipeline(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := env.pipeline.Evaluate(ctx, Input{UserID: "u1", Content: fmt.Sprintf("message %d", i)})
		if err != nil {
			t.Fatal(err)
		}
		if !v.Allowed() {
			t.Fatalf("message %d blocked: %+v", i, v)
		}
	}

	v, err := env.pipeline.Evaluate(ctx, Input{UserID: "u1", Content: "message 3"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Allowed() || v.Category != CategorySpam {
		t.Errorf("4th message in window: got %+v, want Spam flag", v)
	}

	// Other users are unaffected.
	v, err = env.pipeline.Evaluate(ctx, Input{UserID: "u2", Content: "hi there"})
	if err != nil || !v.Allowed() {
		t.Errorf("unrelated user blocked: %+v err=%v", v, err)
	}
}

func TestEvaluateDuplicates(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 100 // keep the rate check out of the way
	env := newTestPipeline(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := env.pipeline.Evaluate(ctx, Input{UserID: "u1", Content: "Same Thing"})
		if err != nil {
			t.Fatal(err)
		}
		if !v.Allowed() {
			t.Fatalf("occurrence %d blocked: %+v", i+1, v)
		}
	}

	// 4th identical message has three priors in the window.
	v, err := env.pipeline.Evaluate(ctx, Input{UserID: "u1", Content: "same thing"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Allowed() || v.Category != CategoryDuplicate {
		t.Errorf("duplicate not flagged: %+v", v)
	}
}

func TestEvaluateWhitelistBypass(t *testing.T) {
	env := newTestPipeline(t, testConfig())
	ctx := context.Background()

	if err := env.whitelist.Add(ctx, store.WhitelistEntry{Kind: store.WhitelistUser, Identifier: "u1"}); err != nil {
		t.Fatal(err)
	}
	if err := env.whitelist.Add(ctx, store.WhitelistEntry{Kind: store.WhitelistRole, Identifier: "r9"}); err != nil {
		t.Fatal(err)
	}

	// Whitelisted user posts content every check would flag.
	v, err := env.pipeline.Evaluate(ctx, Input{UserID: "u1", Content: "fuck https://x.com discord.gg/z"})
	if err != nil || !v.Allowed() {
		t.Errorf("whitelisted user blocked: %+v err=%v", v, err)
	}

	// Whitelisted role, different user.
	v, err = env.pipeline.Evaluate(ctx, Input{UserID: "u2", RoleIDs: []string{"r9"}, Content: "SHOUTING LOUDLY OK"})
	if err != nil || !v.Allowed() {
		t.Errorf("whitelisted role blocked: %+v err=%v", v, err)
	}

	// Non-whitelisted user is still filtered.
	v, err = env.pipeline.Evaluate(ctx, Input{UserID: "u3", Content: "what the fuck"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Allowed() {
		t.Error("non-whitelisted user passed profanity")
	}
}

func TestWhitelistSnapshotInvalidation(t *testing.T) {
	env := newTestPipeline(t, testConfig())
	ctx := context.Background()

	// Warm the snapshot with an empty whitelist.
	if v, err := env.pipeline.Evaluate(ctx, Input{UserID: "u1", Content: "hello"}); err != nil || !v.Allowed() {
		t.Fatalf("warmup: %+v err=%v", v, err)
	}

	if err := env.whitelist.Add(ctx, store.WhitelistEntry{Kind: store.WhitelistUser, Identifier: "u1"}); err != nil {
		t.Fatal(err)
	}
	env.pipeline.InvalidateWhitelist()

	v, err := env.pipeline.Evaluate(ctx, Input{UserID: "u1", Content: "what the fuck"})
	if err != nil || !v.Allowed() {
		t.Errorf("whitelist add not visible after invalidation: %+v err=%v", v, err)
	}
}

func TestRecordViolationEscalation(t *testing.T) {
	cfg := testConfig()
	cfg.ViolationsPerWarning = 3
	cfg.WarningsForBan = 2
	env := newTestPipeline(t, cfg)
	ctx := context.Background()

	// Violations 1 and 2: tally only.
	for i := 1; i <= 2; i++ {
		esc, err := env.pipeline.RecordViolation(ctx, "u1", CategorySpam)
		if err != nil {
			t.Fatal(err)
		}
		if esc.Count != i || esc.WarningIssued || esc.Banned {
			t.Fatalf("violation %d: %+v", i, esc)
		}
	}

	// Violation 3: first formal warning.
	esc, err := env.pipeline.RecordViolation(ctx, "u1", CategorySpam)
	if err != nil {
		t.Fatal(err)
	}
	if !esc.WarningIssued || esc.Banned {
		t.Fatalf("3rd violation: %+v", esc)
	}
	if n, _ := env.moderation.CountWarnings(ctx, "u1"); n != 1 {
		t.Errorf("persisted warnings: got %d, want 1", n)
	}

	// Violations 4-5: tally toward the second warning.
	for i := 4; i <= 5; i++ {
		if esc, err = env.pipeline.RecordViolation(ctx, "u1", CategoryCaps); err != nil {
			t.Fatal(err)
		}
		if esc.WarningIssued || esc.Banned {
			t.Fatalf("violation %d: %+v", i, esc)
		}
	}

	// Violation 6: second warning reaches the ban threshold.
	esc, err = env.pipeline.RecordViolation(ctx, "u1", CategoryCaps)
	if err != nil {
		t.Fatal(err)
	}
	if !esc.WarningIssued || !esc.Banned {
		t.Fatalf("6th violation should ban: %+v", esc)
	}
	if esc.BanDuration != 20*time.Minute {
		t.Errorf("ban duration: got %v", esc.BanDuration)
	}

	banned, err := env.bans.IsUserBanned(ctx, "u1")
	if err != nil || !banned {
		t.Errorf("service ban not applied: banned=%v err=%v", banned, err)
	}
	if n := env.pipeline.Tally().Count("u1"); n != 0 {
		t.Errorf("tally not reset after ban: %d", n)
	}
}

func TestExcessiveCaps(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{name: "too short", content: "SHORTCAPS", want: false},
		{name: "all upper", content: "ALLUPPERCASE", want: true},
		{name: "mostly lower", content: "mostly lowercase TEXT", want: false},
		{name: "no letters", content: "!!!???!!!???", want: false},
		{name: "unicode letters", content: "ÉÀÇÈÙÂÊÎÔÛ", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := excessiveCaps(tt.content, 10, 0.7)
			if got != tt.want {
				t.Errorf("excessiveCaps(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}
