package votes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/crosschat/internal/platform"
	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// Midnight on the first of every month: announce the previous month's top
// voters.
const leaderboardSchedule = "0 0 1 * *"

const leaderboardSize = 10

// Leaderboard posts the monthly top-voter announcement.
type Leaderboard struct {
	votes   store.VoteStore
	client  platform.Client
	channel string // announcement channel id
	gron    *gronx.Gronx
}

// NewLeaderboard creates the monthly task. An empty channel disables it.
func NewLeaderboard(votes store.VoteStore, client platform.Client, channel string) *Leaderboard {
	return &Leaderboard{votes: votes, client: client, channel: channel, gron: gronx.New()}
}

// Run ticks once a minute and fires when the schedule matches, until ctx is
// done.
func (l *Leaderboard) Run(ctx context.Context) {
	if l.channel == "" {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := l.gron.IsDue(leaderboardSchedule, now)
			if err != nil || !due {
				continue
			}
			if err := l.Announce(ctx, now.AddDate(0, -1, 0)); err != nil {
				slog.Error("leaderboard announce failed", "error", err)
			}
		}
	}
}

// Announce posts the leaderboard for the month containing at.
func (l *Leaderboard) Announce(ctx context.Context, at time.Time) error {
	month := at.UTC().Format("2006-01")
	top, err := l.votes.Top(ctx, month, leaderboardSize)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}
	if len(top) == 0 {
		return nil
	}

	var b strings.Builder
	for i, t := range top {
		fmt.Fprintf(&b, "**%d.** <@%s> — %d votes\n", i+1, t.UserID, t.Total)
	}
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Top Voters — %s", month),
		Description: b.String(),
		Color:       0xF1C40F,
	}
	if _, err := l.client.SendEmbed(ctx, l.channel, embed, nil); err != nil {
		return fmt.Errorf("send leaderboard: %w", err)
	}
	slog.Info("leaderboard announced", "month", month, "entries", len(top))
	return nil
}
