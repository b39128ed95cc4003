package bans

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/store"
	"github.com/nextlevelbuilder/crosschat/internal/store/memory"
)

func newTestService() (*Service, *memory.ModerationStore) {
	mod := memory.NewModerationStore()
	return New(memory.NewBanStore(), mod, time.Minute), mod
}

func TestBanAndUnbanUser(t *testing.T) {
	svc, mod := newTestService()
	ctx := context.Background()

	if err := svc.BanUser(ctx, "u1", "spamming", "mod1", nil); err != nil {
		t.Fatal(err)
	}
	banned, err := svc.IsUserBanned(ctx, "u1")
	if err != nil || !banned {
		t.Fatalf("want banned, got banned=%v err=%v", banned, err)
	}

	ban, err := svc.UserBan(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if ban.Reason != "spamming" || ban.Duration != nil {
		t.Errorf("unexpected ban: %+v", ban)
	}

	if err := svc.UnbanUser(ctx, "u1", "mod1"); err != nil {
		t.Fatal(err)
	}
	if banned, _ := svc.IsUserBanned(ctx, "u1"); banned {
		t.Error("still banned after unban")
	}

	entries := mod.Entries()
	if len(entries) != 2 {
		t.Fatalf("want 2 audit entries, got %d", len(entries))
	}
	if entries[0].Action != store.ActionBan || entries[1].Action != store.ActionUnban {
		t.Errorf("audit actions: %v, %v", entries[0].Action, entries[1].Action)
	}
}

func TestRebanReplacesPriorBan(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	d := time.Hour
	if err := svc.BanUser(ctx, "u1", "first", "mod1", &d); err != nil {
		t.Fatal(err)
	}
	if err := svc.BanUser(ctx, "u1", "second", "mod2", nil); err != nil {
		t.Fatal(err)
	}
	ban, err := svc.UserBan(ctx, "u1")
	if err != nil || ban == nil {
		t.Fatalf("lookup: %v", err)
	}
	if ban.Reason != "second" || ban.Duration != nil {
		t.Errorf("reban did not replace prior: %+v", ban)
	}
}

func TestTimedBanExpires(t *testing.T) {
	st := memory.NewBanStore()
	// Backdate the ban past its duration; the store treats it as absent.
	d := 20 * time.Minute
	err := st.BanUser(context.Background(), store.BannedUser{
		UserID:   "u1",
		Reason:   "automod: Spam",
		Duration: &d,
		BannedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	svc := New(st, memory.NewModerationStore(), time.Minute)
	banned, err := svc.IsUserBanned(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if banned {
		t.Error("expired timed ban still active")
	}
}

func TestNegativeCache(t *testing.T) {
	st := memory.NewBanStore()
	svc := New(st, memory.NewModerationStore(), time.Minute)
	ctx := context.Background()

	if banned, _ := svc.IsUserBanned(ctx, "u1"); banned {
		t.Fatal("unexpected ban")
	}

	// Write behind the service's back: the cached negative answer holds until
	// TTL or an invalidating write through the service.
	if err := st.BanUser(ctx, store.BannedUser{UserID: "u1", BannedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if banned, _ := svc.IsUserBanned(ctx, "u1"); banned {
		t.Error("negative cache should still answer false")
	}

	// A ban through the service invalidates the entry.
	if err := svc.BanUser(ctx, "u1", "x", "mod", nil); err != nil {
		t.Fatal(err)
	}
	if banned, _ := svc.IsUserBanned(ctx, "u1"); !banned {
		t.Error("ban through the service not visible")
	}
}

func TestServerBans(t *testing.T) {
	svc, mod := newTestService()
	ctx := context.Background()

	if err := svc.BanServer(ctx, "s1", "raid source", "mod1"); err != nil {
		t.Fatal(err)
	}
	if banned, _ := svc.IsServerBanned(ctx, "s1"); !banned {
		t.Error("server not banned")
	}
	if banned, _ := svc.IsServerBanned(ctx, "s2"); banned {
		t.Error("unrelated server banned")
	}

	if err := svc.UnbanServer(ctx, "s1", "mod1"); err != nil {
		t.Fatal(err)
	}
	if banned, _ := svc.IsServerBanned(ctx, "s1"); banned {
		t.Error("server still banned after unban")
	}

	entries := mod.Entries()
	if len(entries) != 2 || entries[0].Action != store.ActionServerBan || entries[1].Action != store.ActionServerUnban {
		t.Errorf("audit log: %+v", entries)
	}
}
