package relay

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/crosschat/internal/config"
	"github.com/nextlevelbuilder/crosschat/internal/platform"
	"github.com/nextlevelbuilder/crosschat/internal/store"
	"github.com/nextlevelbuilder/crosschat/internal/tiers"
)

// Plan is the delivery policy for one ingress event.
type Plan struct {
	Parallel     bool
	PreSendDelay time.Duration // once, before any send
	Gap          time.Duration // between sequential sends
	Timeout      time.Duration // per send
}

// PlanFor maps tier info onto a delivery plan. partnerBoost overrides the
// configured Partner delay when the partner entry carries its own boost.
func PlanFor(info tiers.Info, cfg config.RelayConfig, partnerBoost time.Duration) Plan {
	switch info.Priority {
	case tiers.PriorityElite:
		delay := cfg.EliteDelay.Std()
		if info.Tier == tiers.Founder {
			delay = 0
		}
		return Plan{Parallel: true, PreSendDelay: delay, Timeout: cfg.ParallelTimeout.Std()}
	case tiers.PriorityArchitect:
		return Plan{Parallel: true, PreSendDelay: cfg.ArchitectDelay.Std(), Timeout: cfg.ParallelTimeout.Std()}
	case tiers.PriorityPartner:
		delay := cfg.PartnerDelay.Std()
		if partnerBoost > 0 && partnerBoost < delay {
			delay = partnerBoost
		}
		return Plan{Parallel: true, PreSendDelay: delay, Timeout: cfg.ParallelTimeout.Std()}
	default:
		return Plan{Parallel: false, Gap: cfg.StandardGap.Std(), Timeout: cfg.SequentialTimeout.Std()}
	}
}

// Scheduler fans one rendered embed out to the target channels. The Delivery
// Index write is the authoritative success signal: a platform send whose
// record cannot be written does not count.
type Scheduler struct {
	client     platform.Client
	deliveries store.DeliveryStore
}

// NewScheduler creates a fan-out scheduler.
func NewScheduler(client platform.Client, deliveries store.DeliveryStore) *Scheduler {
	return &Scheduler{client: client, deliveries: deliveries}
}

// Deliver sends the embed to every target under plan and returns the number
// of recorded deliveries. Per-target failures are counted or logged, never
// retried within the event; cancelling ctx abandons in-flight sends while
// deliveries already recorded stay authoritative.
func (s *Scheduler) Deliver(ctx context.Context, ccID, sourceMessageID string, embed *discordgo.MessageEmbed, atts []Attachment, targets []string, plan Plan) int {
	if len(targets) == 0 {
		return 0
	}

	if plan.PreSendDelay > 0 {
		select {
		case <-time.After(plan.PreSendDelay):
		case <-ctx.Done():
			return 0
		}
	}

	if plan.Parallel {
		return s.deliverParallel(ctx, ccID, sourceMessageID, embed, atts, targets, plan.Timeout)
	}
	return s.deliverSequential(ctx, ccID, sourceMessageID, embed, atts, targets, plan)
}

// deliverParallel dispatches every target at once and waits for all of them.
// Failures are silent, only counted.
func (s *Scheduler) deliverParallel(ctx context.Context, ccID, sourceMessageID string, embed *discordgo.MessageEmbed, atts []Attachment, targets []string, timeout time.Duration) int {
	var recorded atomic.Int64
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			if s.sendOne(gctx, ccID, sourceMessageID, embed, atts, target, timeout) {
				recorded.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	if n := failed.Load(); n > 0 {
		slog.Debug("parallel fan-out finished with failures", "cc_id", ccID, "failed", n)
	}
	return int(recorded.Load())
}

// deliverSequential sends one target at a time with a fixed gap. Failures
// are logged.
func (s *Scheduler) deliverSequential(ctx context.Context, ccID, sourceMessageID string, embed *discordgo.MessageEmbed, atts []Attachment, targets []string, plan Plan) int {
	limiter := rate.NewLimiter(rate.Every(plan.Gap), 1)
	recorded := 0
	for _, target := range targets {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if s.sendOne(ctx, ccID, sourceMessageID, embed, atts, target, plan.Timeout) {
			recorded++
		} else {
			slog.Warn("relay send failed", "cc_id", ccID, "target", target)
		}
	}
	return recorded
}

// sendOne performs a single timed send and records the delivery. It reports
// whether the delivery record was written; a duplicate record means another
// replica already delivered to this target, which is not a success for us.
func (s *Scheduler) sendOne(ctx context.Context, ccID, sourceMessageID string, embed *discordgo.MessageEmbed, atts []Attachment, target string, timeout time.Duration) bool {
	sendCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	messageID, err := s.client.SendEmbed(sendCtx, target, embed, wrapFiles(atts))
	if err != nil {
		return false
	}

	err = s.deliveries.Append(ctx, store.DeliveryRecord{
		CCID:               ccID,
		TargetChannelID:    target,
		DeliveredMessageID: messageID,
		DeliveredAt:        time.Now().UTC(),
		SourceMessageID:    sourceMessageID,
	})
	if errors.Is(err, store.ErrDuplicateDelivery) {
		return false
	}
	if err != nil {
		slog.Error("delivery record write failed", "cc_id", ccID, "target", target, "error", err)
		return false
	}
	return true
}

// wrapFiles builds fresh file readers for one send; the platform client
// consumes them.
func wrapFiles(atts []Attachment) []*discordgo.File {
	if len(atts) == 0 {
		return nil
	}
	files := make([]*discordgo.File, 0, len(atts))
	for _, a := range atts {
		if len(a.Data) == 0 {
			continue
		}
		files = append(files, &discordgo.File{
			Name:        a.Filename,
			ContentType: a.ContentType,
			Reader:      bytes.NewReader(a.Data),
		})
	}
	return files
}
