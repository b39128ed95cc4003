package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/automod"
	"github.com/nextlevelbuilder/crosschat/internal/bans"
	"github.com/nextlevelbuilder/crosschat/internal/bot"
	"github.com/nextlevelbuilder/crosschat/internal/commands"
	"github.com/nextlevelbuilder/crosschat/internal/config"
	"github.com/nextlevelbuilder/crosschat/internal/fingerprint"
	"github.com/nextlevelbuilder/crosschat/internal/platform"
	"github.com/nextlevelbuilder/crosschat/internal/registry"
	"github.com/nextlevelbuilder/crosschat/internal/relay"
	"github.com/nextlevelbuilder/crosschat/internal/store/pg"
	"github.com/nextlevelbuilder/crosschat/internal/telemetry"
	"github.com/nextlevelbuilder/crosschat/internal/tiers"
	"github.com/nextlevelbuilder/crosschat/internal/votes"
)

func runRelay() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		slog.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}

	stores, db, err := pg.NewStores(cfg.Database.PostgresDSN)
	if err != nil {
		slog.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	session, err := platform.NewSession(cfg.Discord.Token)
	if err != nil {
		slog.Error("discord session setup failed", "error", err)
		os.Exit(1)
	}
	client := platform.NewDiscord(session)

	cacheTTL := cfg.Relay.CacheTTL.Std()

	reg := registry.New(stores.Channels, cfg.Relay.SlowmodeMin, cfg.Relay.SlowmodeMax, cacheTTL)
	banSvc := bans.New(stores.Bans, stores.Moderation, cacheTTL)

	rules := automod.NewRuleSet(cacheTTL)
	if cfg.Automod.RulesFile != "" {
		if err := automod.WatchRules(ctx, rules, cfg.Automod.RulesFile); err != nil {
			slog.Error("automod rules watcher failed", "path", cfg.Automod.RulesFile, "error", err)
			os.Exit(1)
		}
	}
	pipeline := automod.New(cfg.Automod, rules, stores.Whitelist, stores.Moderation, banSvc, cacheTTL)

	resolver := tiers.NewResolver(client, stores.Partners, tiers.Roles{
		OwnerID:         cfg.Discord.OwnerID,
		StaffRoleID:     cfg.Discord.StaffRoleID,
		EliteRoleID:     cfg.Discord.EliteRoleID,
		ArchitectRoleID: cfg.Discord.ArchitectRoleID,
	})
	allocator := fingerprint.New(stores.Messages, cfg.Relay.AllocatorRetries)
	scheduler := relay.NewScheduler(client, stores.Deliveries)
	orchestrator := relay.NewOrchestrator(cfg.Relay, client, reg, banSvc, pipeline, resolver, allocator, scheduler, stores.Messages, stores.Partners)
	propagator := relay.NewPropagator(client, reg, stores.Messages, stores.Deliveries, stores.Moderation)

	relayBot := bot.New(session, orchestrator, propagator, reg, stores.Guilds)
	if err := relayBot.Start(ctx); err != nil {
		slog.Error("bot startup failed", "error", err)
		os.Exit(1)
	}

	cmdHandler := commands.New(cfg, client, reg, banSvc, propagator, pipeline, stores.Whitelist, stores.Partners, Version)
	if err := cmdHandler.Register(session); err != nil {
		slog.Error("slash command registration failed", "error", err)
	}

	var voteServer *http.Server
	if cfg.Votes.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/webhooks/vote", votes.NewWebhook(stores.Votes, cfg.Votes.Secret))
		voteServer = &http.Server{
			Addr:              cfg.Votes.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("vote webhook listening", "addr", cfg.Votes.Listen)
			if err := voteServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("vote webhook server failed", "error", err)
			}
		}()
		go votes.NewLeaderboard(stores.Votes, client, cfg.Votes.AnnounceChannel).Run(ctx)
	}

	slog.Info("crosschat relay running", "version", Version)
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if voteServer != nil {
		if err := voteServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("vote webhook shutdown failed", "error", err)
		}
	}
	if err := relayBot.Stop(shutdownCtx); err != nil {
		slog.Warn("bot shutdown failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("tracing shutdown failed", "error", err)
	}
}
