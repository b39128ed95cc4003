package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "minutes string", input: `"15m"`, want: 15 * time.Minute},
		{name: "seconds string", input: `"10s"`, want: 10 * time.Second},
		{name: "compound string", input: `"1h30m"`, want: 90 * time.Minute},
		{name: "bare number is milliseconds", input: `250`, want: 250 * time.Millisecond},
		{name: "garbage string", input: `"soon"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalJSON([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal %s: %v", tt.input, err)
			}
			if d.Std() != tt.want {
				t.Errorf("got %v, want %v", d.Std(), tt.want)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Relay.SlowmodeMin != 5 || cfg.Relay.SlowmodeMax != 10 {
		t.Errorf("slowmode defaults: got [%d, %d], want [5, 10]", cfg.Relay.SlowmodeMin, cfg.Relay.SlowmodeMax)
	}
	if cfg.Automod.RateLimit != 3 || cfg.Automod.RateWindow.Std() != 10*time.Second {
		t.Errorf("automod rate defaults wrong: %+v", cfg.Automod)
	}
	if cfg.Relay.CacheTTL.Std() != 15*time.Minute {
		t.Errorf("cache ttl default: got %v", cfg.Relay.CacheTTL.Std())
	}
}

func TestLoadFileAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	// JSON5: comments and trailing commas are fine.
	content := `{
		// relay tuning
		discord: {
			owner_id: "111",
			staff_role_id: "222",
		},
		relay: {
			slowmode_min: 6,
			standard_gap: "200ms",
		},
		automod: {
			caps_min_length: 12,
		},
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CROSSCHAT_DISCORD_TOKEN", "tok-from-env")
	t.Setenv("CROSSCHAT_POSTGRES_DSN", "postgres://env")
	t.Setenv("CROSSCHAT_OWNER_ID", "999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Discord.Token != "tok-from-env" {
		t.Errorf("token: got %q", cfg.Discord.Token)
	}
	if cfg.Database.PostgresDSN != "postgres://env" {
		t.Errorf("dsn: got %q", cfg.Database.PostgresDSN)
	}
	// Env beats the file.
	if cfg.Discord.OwnerID != "999" {
		t.Errorf("owner id: got %q, want env override 999", cfg.Discord.OwnerID)
	}
	// File beats the defaults.
	if cfg.Relay.SlowmodeMin != 6 {
		t.Errorf("slowmode min: got %d, want 6", cfg.Relay.SlowmodeMin)
	}
	if cfg.Relay.StandardGap.Std() != 200*time.Millisecond {
		t.Errorf("standard gap: got %v", cfg.Relay.StandardGap.Std())
	}
	if cfg.Automod.CapsMinLength != 12 {
		t.Errorf("caps min length: got %d", cfg.Automod.CapsMinLength)
	}
	// Untouched fields keep defaults.
	if cfg.Relay.SlowmodeMax != 10 {
		t.Errorf("slowmode max: got %d, want default 10", cfg.Relay.SlowmodeMax)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Discord.Token = "tok"
		cfg.Discord.OwnerID = "1"
		cfg.Database.PostgresDSN = "postgres://x"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "complete", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Discord.Token = "" }, wantErr: true},
		{name: "missing dsn", mutate: func(c *Config) { c.Database.PostgresDSN = "" }, wantErr: true},
		{name: "missing owner", mutate: func(c *Config) { c.Discord.OwnerID = "" }, wantErr: true},
		{name: "inverted slowmode range", mutate: func(c *Config) { c.Relay.SlowmodeMin = 20 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
