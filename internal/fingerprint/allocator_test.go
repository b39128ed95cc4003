package fingerprint

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/store"
	"github.com/nextlevelbuilder/crosschat/internal/store/memory"
)

func record(sourceID string) store.MessageRecord {
	return store.MessageRecord{
		SourceMessageID: sourceID,
		UserID:          "u1",
		ServerID:        "s1",
		ChannelID:       "c1",
		Content:         "hello",
	}
}

func TestAssignShape(t *testing.T) {
	a := New(memory.NewMessageStore(), 3)
	a.now = func() time.Time { return time.UnixMilli(1700000000000) }
	a.intN = func(n int) int { return 7 }

	ccID, fresh, err := a.Assign(context.Background(), record("m1"))
	if err != nil {
		t.Fatal(err)
	}
	if !fresh {
		t.Error("first assignment should be fresh")
	}
	if len(ccID) != 8 {
		t.Errorf("cc-id length: got %d (%q), want 8", len(ccID), ccID)
	}
	for _, r := range ccID {
		if !strings.ContainsRune(base36, r) {
			t.Errorf("cc-id %q contains non-base36 rune %q", ccID, r)
		}
	}
}

func TestAssignVIPPrefix(t *testing.T) {
	a := New(memory.NewMessageStore(), 3)

	rec := record("m1")
	rec.VIP = true
	ccID, _, err := a.Assign(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if len(ccID) != 9 || !strings.HasPrefix(ccID, "V") {
		t.Errorf("vip cc-id: got %q, want V prefix and 9 chars", ccID)
	}
	if strings.ContainsAny(ccID[1:], "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		t.Errorf("vip cc-id body must be lowercase: %q", ccID)
	}
}

func TestAssignIdempotent(t *testing.T) {
	a := New(memory.NewMessageStore(), 3)
	ctx := context.Background()

	first, fresh, err := a.Assign(ctx, record("m1"))
	if err != nil || !fresh {
		t.Fatalf("first assign: fresh=%v err=%v", fresh, err)
	}
	second, fresh, err := a.Assign(ctx, record("m1"))
	if err != nil {
		t.Fatal(err)
	}
	if fresh {
		t.Error("repeat assign must not be fresh")
	}
	if second != first {
		t.Errorf("cc-id changed on repeat: %q vs %q", second, first)
	}
}

func TestAssignSeesOtherReplica(t *testing.T) {
	st := memory.NewMessageStore()
	ctx := context.Background()

	// Another replica already wrote the row.
	rec := record("m1")
	rec.CCID = "abcdef12"
	if err := st.Insert(ctx, rec); err != nil {
		t.Fatal(err)
	}

	a := New(st, 3)
	ccID, fresh, err := a.Assign(ctx, record("m1"))
	if err != nil {
		t.Fatal(err)
	}
	if fresh || ccID != "abcdef12" {
		t.Errorf("got (%q, fresh=%v), want existing id not fresh", ccID, fresh)
	}
}

func TestAssignConcurrent(t *testing.T) {
	st := memory.NewMessageStore()
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	freshCount := make([]bool, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		// Separate allocators: local caches must not mask the store race.
		a := New(st, 3)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, fresh, err := a.Assign(ctx, record("m1"))
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			ids[i] = id
			freshCount[i] = fresh
		}(i)
	}
	wg.Wait()

	freshTotal := 0
	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("divergent cc-ids: %q vs %q", ids[i], ids[0])
		}
	}
	for _, f := range freshCount {
		if f {
			freshTotal++
		}
	}
	if freshTotal != 1 {
		t.Errorf("want exactly one fresh assignment, got %d", freshTotal)
	}
}

func TestAssignExhausted(t *testing.T) {
	st := memory.NewMessageStore()
	ctx := context.Background()

	a := New(st, 3)
	// Freeze the generator so every candidate is identical.
	a.now = func() time.Time { return time.UnixMilli(1700000000000) }
	a.intN = func(int) int { return 0 }

	// Occupy the only candidate under a different source id.
	taken := record("other")
	taken.CCID = a.generate(false)
	if err := st.Insert(ctx, taken); err != nil {
		t.Fatal(err)
	}

	_, _, err := a.Assign(ctx, record("m1"))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("want ErrExhausted, got %v", err)
	}
}

func TestGenerateUsesLowMillis(t *testing.T) {
	a := New(memory.NewMessageStore(), 3)
	a.intN = func(int) int { return 0 }

	a.now = func() time.Time { return time.UnixMilli(1) }
	id := a.generate(false)
	if id[:timeDigits] != "000001" {
		t.Errorf("small clock not zero-padded: %q", id)
	}

	a.now = func() time.Time { return time.UnixMilli(1<<62 - 1) }
	id = a.generate(false)
	if len(id) != timeDigits+randDigits {
		t.Errorf("large clock not truncated: %q", id)
	}
}
