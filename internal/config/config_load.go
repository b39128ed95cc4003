package config

import (
	"fmt"
	"os"
	"time"

	"github.com/titanous/json5"
)

// Default returns a Config with the documented relay defaults.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			CacheTTL:          Duration(15 * time.Minute),
			SlowmodeMin:       5,
			SlowmodeMax:       10,
			StandardGap:       Duration(100 * time.Millisecond),
			EliteDelay:        Duration(250 * time.Millisecond),
			ArchitectDelay:    Duration(500 * time.Millisecond),
			PartnerDelay:      Duration(750 * time.Millisecond),
			ParallelTimeout:   Duration(10 * time.Second),
			SequentialTimeout: Duration(15 * time.Second),
			AllocatorRetries:  3,
		},
		Automod: AutomodConfig{
			RateLimit:            3,
			RateWindow:           Duration(10 * time.Second),
			DuplicateLimit:       3,
			DuplicateWindow:      Duration(60 * time.Second),
			CapsMinLength:        10,
			CapsRatio:            0.7,
			BlockLinks:           true,
			BlockInvites:         true,
			ViolationsPerWarning: 3,
			WarningsForBan:       3,
			BanDuration:          Duration(20 * time.Minute),
		},
		Telemetry: TelemetryConfig{
			ServiceName: "crosschat",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are enough to run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; secrets only exist here.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("CROSSCHAT_DISCORD_TOKEN", &c.Discord.Token)
	envStr("CROSSCHAT_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("CROSSCHAT_VOTE_SECRET", &c.Votes.Secret)
	envStr("CROSSCHAT_OWNER_ID", &c.Discord.OwnerID)
	envStr("CROSSCHAT_STAFF_ROLE_ID", &c.Discord.StaffRoleID)
	envStr("CROSSCHAT_ELITE_ROLE_ID", &c.Discord.EliteRoleID)
	envStr("CROSSCHAT_ARCHITECT_ROLE_ID", &c.Discord.ArchitectRoleID)
	envStr("CROSSCHAT_SUPPORT_GUILD_ID", &c.Discord.SupportGuildID)
	envStr("CROSSCHAT_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
}
