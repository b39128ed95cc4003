package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/store"
	"github.com/nextlevelbuilder/crosschat/internal/store/memory"
)

func newTestRegistry() *Registry {
	return New(memory.NewChannelStore(), 5, 10, time.Minute)
}

func entry(server, channel string) store.ChannelEntry {
	return store.ChannelEntry{
		ServerID:    server,
		ChannelID:   channel,
		ServerName:  "Server " + server,
		ChannelName: "chat",
	}
}

func TestEnableSlowmodePolicy(t *testing.T) {
	tests := []struct {
		name     string
		slowmode int
		wantErr  bool
	}{
		{name: "below range", slowmode: 4, wantErr: true},
		{name: "lower bound", slowmode: 5},
		{name: "upper bound", slowmode: 10},
		{name: "above range", slowmode: 11, wantErr: true},
		{name: "zero", slowmode: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry()
			_, err := r.Enable(context.Background(), entry("s1", "c1"), tt.slowmode)
			if tt.wantErr {
				if !errors.Is(err, ErrSlowmodePolicy) {
					t.Fatalf("want ErrSlowmodePolicy, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("enable: %v", err)
			}
			ok, err := r.IsRelayChannel(context.Background(), "c1")
			if err != nil || !ok {
				t.Errorf("channel not active after enable: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestEnableReplacesPriorChannel(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	if _, err := r.Enable(ctx, entry("s1", "c1"), 5); err != nil {
		t.Fatal(err)
	}
	replaced, err := r.Enable(ctx, entry("s1", "c2"), 5)
	if err != nil {
		t.Fatal(err)
	}
	if replaced == nil || replaced.ChannelID != "c1" {
		t.Fatalf("want replaced entry c1, got %+v", replaced)
	}

	if ok, _ := r.IsRelayChannel(ctx, "c1"); ok {
		t.Error("old channel still active after replacement")
	}
	if ok, _ := r.IsRelayChannel(ctx, "c2"); !ok {
		t.Error("new channel not active")
	}

	active, err := r.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Errorf("want exactly one active entry per server, got %d", len(active))
	}
}

func TestDisableDropsSnapshot(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	if _, err := r.Enable(ctx, entry("s1", "c1"), 5); err != nil {
		t.Fatal(err)
	}
	// Warm the snapshot.
	if ok, _ := r.IsRelayChannel(ctx, "c1"); !ok {
		t.Fatal("expected c1 active")
	}

	if err := r.Disable(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	// The write invalidated the snapshot, so the change is visible at once.
	if ok, _ := r.IsRelayChannel(ctx, "c1"); ok {
		t.Error("c1 still visible after disable")
	}
}

func TestDisableServer(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	if _, err := r.Enable(ctx, entry("s1", "c1"), 5); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Enable(ctx, entry("s2", "c2"), 5); err != nil {
		t.Fatal(err)
	}

	if err := r.DisableServer(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	active, _ := r.ListActive(ctx)
	if len(active) != 1 || active[0].ServerID != "s2" {
		t.Errorf("want only s2 active, got %+v", active)
	}
}

func TestEntryReturnsNilForUnknown(t *testing.T) {
	r := newTestRegistry()
	e, err := r.Entry(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if e != nil {
		t.Errorf("want nil entry, got %+v", e)
	}
}

func TestUpdateNames(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	if _, err := r.Enable(ctx, entry("s1", "c1"), 5); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateNames(ctx, "s1", "Renamed", "general"); err != nil {
		t.Fatal(err)
	}
	e, err := r.Entry(ctx, "c1")
	if err != nil || e == nil {
		t.Fatalf("entry lookup: %v", err)
	}
	if e.ServerName != "Renamed" || e.ChannelName != "general" {
		t.Errorf("names not updated: %+v", e)
	}
}
