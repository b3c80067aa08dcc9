package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
)

const DefaultBatchSize = 500

type iMessageRepo interface {
	GetChannelIDs(ctx context.Context) ([]string, error)
	GetChannel(ctx context.Context, channelID string) (domain.Channel, error)
	ForgetChannel(ctx context.Context, channelID string) error
	GetExpiredMessageSeqs(ctx context.Context, channelID string, before time.Time) ([]string, error)
	RemoveMessages(context.Context, *channel.RemoveMessagesParams) error
}

type Config struct {
	Retention time.Duration
	// Interval between runs after the initial one. Zero disables the
	// periodic runs.
	Interval  time.Duration
	BatchSize int
}

// sweeper prunes messages older than the retention window. Every failure is
// logged and swallowed; a failed batch only stops the channel it belongs to.
type sweeper struct {
	repo      iMessageRepo
	logger    *slog.Logger
	retention time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func New(repo iMessageRepo, logger *slog.Logger, cfg *Config) *sweeper {
	if logger == nil {
		logger = slog.Default()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &sweeper{
		repo:      repo,
		logger:    logger,
		retention: cfg.Retention,
		interval:  cfg.Interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

type Result struct {
	Channels int
	Removed  int
	Failed   int
}

// Run sweeps once immediately and then on every interval tick until ctx is
// done.
func (s *sweeper) Run(ctx context.Context) error {
	s.Sweep(ctx)
	if s.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *sweeper) Sweep(ctx context.Context) Result {
	start := s.now()
	cutoff := start.Add(-s.retention)

	var res Result
	ids, err := s.repo.GetChannelIDs(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list channels", "error", err)
		res.Failed++
		return res
	}

	for _, channelID := range ids {
		if ctx.Err() != nil {
			break
		}

		removed, err := s.sweepChannel(ctxlogger.AppendCtx(ctx, slog.String("channel_id", channelID)), channelID, cutoff)
		res.Channels++
		res.Removed += removed
		if err != nil {
			res.Failed++
		}
	}

	s.logger.InfoContext(ctx, "sweep finished",
		"channels", res.Channels,
		"removed", res.Removed,
		"failed", res.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return res
}

func (s *sweeper) sweepChannel(ctx context.Context, channelID string, cutoff time.Time) (int, error) {
	if _, err := s.repo.GetChannel(ctx, channelID); err != nil {
		if !errors.Is(err, channel.ErrChannelNotFound) {
			s.logger.WarnContext(ctx, "failed to get channel", "error", err)
			return 0, err
		}

		// the channel record expired, drop whatever it left behind
		if err := s.repo.ForgetChannel(ctx, channelID); err != nil {
			s.logger.WarnContext(ctx, "failed to forget channel", "error", err)
			return 0, err
		}

		s.logger.DebugContext(ctx, "forgot expired channel")
		return 0, nil
	}

	seqs, err := s.repo.GetExpiredMessageSeqs(ctx, channelID, cutoff)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list expired messages", "error", err)
		return 0, err
	}

	var removed int
	for batch := range slices.Chunk(seqs, s.batchSize) {
		if err := s.repo.RemoveMessages(ctx, &channel.RemoveMessagesParams{
			ChannelID: channelID,
			Seqs:      batch,
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to remove message batch", "removed", removed, "error", err)
			return removed, err
		}
		removed += len(batch)
	}

	return removed, nil
}
