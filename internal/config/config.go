package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the CrossChat relay.
type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Database  DatabaseConfig  `json:"database"`
	Relay     RelayConfig     `json:"relay"`
	Automod   AutomodConfig   `json:"automod"`
	Votes     VotesConfig     `json:"votes,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// DiscordConfig holds the bot identity and the role/guild ids the tier
// resolver needs. Token comes from env only, never from the config file.
type DiscordConfig struct {
	Token           string `json:"-"` // from env CROSSCHAT_DISCORD_TOKEN only
	OwnerID         string `json:"owner_id"`
	StaffRoleID     string `json:"staff_role_id"`
	EliteRoleID     string `json:"elite_role_id"`
	ArchitectRoleID string `json:"architect_role_id"`
	SupportGuildID  string `json:"support_guild_id"`
}

// DatabaseConfig configures the Postgres store.
// DSN is NEVER read from the config file (secret), only from env CROSSCHAT_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
}

// RelayConfig tunes the hot path: caches, scheduler pacing and timeouts.
type RelayConfig struct {
	CacheTTL          Duration `json:"cache_ttl"`          // registry/ban/pattern cache lifetime
	SlowmodeMin       int      `json:"slowmode_min"`       // seconds, setup policy lower bound
	SlowmodeMax       int      `json:"slowmode_max"`       // seconds, setup policy upper bound
	StandardGap       Duration `json:"standard_gap"`       // delay between sequential Standard sends
	EliteDelay        Duration `json:"elite_delay"`        // pre-send delay for Elite
	ArchitectDelay    Duration `json:"architect_delay"`    // pre-send delay for Architect
	PartnerDelay      Duration `json:"partner_delay"`      // pre-send delay for Partner
	ParallelTimeout   Duration `json:"parallel_timeout"`   // per-send timeout, parallel tiers
	SequentialTimeout Duration `json:"sequential_timeout"` // per-send timeout, Standard
	AllocatorRetries  int      `json:"allocator_retries"`  // CC-ID regeneration attempts on collision
}

// AutomodConfig tunes the content filter pipeline.
type AutomodConfig struct {
	RateLimit            int      `json:"rate_limit"` // messages per RateWindow before flagging
	RateWindow           Duration `json:"rate_window"`
	DuplicateLimit       int      `json:"duplicate_limit"` // identical messages per DuplicateWindow
	DuplicateWindow      Duration `json:"duplicate_window"`
	CapsMinLength        int      `json:"caps_min_length"`
	CapsRatio            float64  `json:"caps_ratio"`
	BlockLinks           bool     `json:"block_links"`
	BlockInvites         bool     `json:"block_invites"`
	ViolationsPerWarning int      `json:"violations_per_warning"` // tally flags per formal warning
	WarningsForBan       int      `json:"warnings_for_ban"`       // total warnings before a service ban
	BanDuration          Duration `json:"ban_duration"`
	RulesFile            string   `json:"rules_file,omitempty"` // optional JSON5 pattern overrides, hot-reloaded
}

// VotesConfig configures the vote webhook listener.
// Secret comes from env CROSSCHAT_VOTE_SECRET only.
type VotesConfig struct {
	Listen          string `json:"listen,omitempty"` // e.g. ":8090"; empty disables the listener
	Secret          string `json:"-"`
	AnnounceChannel string `json:"announce_channel,omitempty"` // monthly leaderboard target
}

// TelemetryConfig configures the optional OTLP trace exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"` // host:port; empty disables tracing
	ServiceName  string `json:"service_name,omitempty"`
}

// Validate enforces the invariants the process cannot start without.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token is not set (CROSSCHAT_DISCORD_TOKEN)")
	}
	if c.Database.PostgresDSN == "" {
		return fmt.Errorf("postgres DSN is not set (CROSSCHAT_POSTGRES_DSN)")
	}
	if c.Discord.OwnerID == "" {
		return fmt.Errorf("discord.owner_id is required")
	}
	if c.Relay.SlowmodeMin > c.Relay.SlowmodeMax {
		return fmt.Errorf("relay.slowmode_min %d exceeds slowmode_max %d", c.Relay.SlowmodeMin, c.Relay.SlowmodeMax)
	}
	return nil
}

// Duration is a time.Duration that unmarshals from JSON strings like "15m".
// Bare numbers are taken as milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		parsed, err := time.ParseDuration(s[1 : len(s)-1])
		if err != nil {
			return fmt.Errorf("parse duration %s: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ms float64
	if _, err := fmt.Sscanf(s, "%f", &ms); err != nil {
		return fmt.Errorf("parse duration %s: %w", s, err)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }
