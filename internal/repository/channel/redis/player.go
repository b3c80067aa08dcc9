package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
	"github.com/vmihailenco/msgpack/v5"
)

func (r repo) getPlaybackKey(channelID string) string {
	return "channel:" + channelID + ":playback"
}

func (r repo) getPlaybackTopic(channelID string) string {
	return "channel:" + channelID + ":playback:events"
}

func (r repo) GetPlayback(ctx context.Context, channelID string) (domain.PlaybackState, error) {
	r.logger.DebugContext(ctx, "called", "channel_id", channelID)
	var playback channel.Playback
	if err := r.rc.HGetAll(ctx, r.getPlaybackKey(channelID)).Scan(&playback); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return domain.PlaybackState{}, fmt.Errorf("failed to get playback: %w", err)
	}

	return playback.ToDomain(channelID), nil
}

// PublishPlayback merges params.Update into the stored state and bumps the
// revision. The publisher's role is read inside the same optimistic
// transaction, so a concurrent demotion aborts and re-runs the write. A
// missing playback record is created.
func (r repo) PublishPlayback(ctx context.Context, params *channel.PublishPlaybackParams) (domain.PlaybackState, error) {
	r.logger.DebugContext(ctx, "called", "params", params)
	playbackKey := r.getPlaybackKey(params.ChannelID)
	memberKey := r.getMemberKey(params.ChannelID, params.PublisherID)

	var next domain.PlaybackState
	txf := func(tx *redis.Tx) error {
		role, err := tx.HGet(ctx, memberKey, "role").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if domain.Role(role) != domain.RoleAdmin {
			return channel.ErrNotAdmin
		}

		var current channel.Playback
		if err := tx.HGetAll(ctx, playbackKey).Scan(&current); err != nil {
			return err
		}

		prev := current.ToDomain(params.ChannelID)
		next = params.Update.Merge(prev)
		next.Revision = prev.Revision + 1
		next.PublishedBy = params.PublisherID
		next.PublishedAt = params.PublishedAt.UTC()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := r.HSetStruct(ctx, pipe, playbackKey, channel.NewPlayback(next)); err != nil {
				return err
			}
			pipe.Expire(ctx, playbackKey, r.expireDuration)

			return nil
		})

		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rc.Watch(ctx, txf, playbackKey, memberKey)
		if err == nil {
			r.notifyPlayback(ctx, next)
			return next, nil
		}

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		r.logger.DebugContext(ctx, "returned", "error", err)
		return domain.PlaybackState{}, err
	}

	return domain.PlaybackState{}, channel.ErrTxConflict
}

// notifyPlayback fans the committed state out to live subscribers. Losing a
// notification is tolerated: subscribers read the stored state on
// (re)subscribe and ignore revisions they have already seen.
func (r repo) notifyPlayback(ctx context.Context, state domain.PlaybackState) {
	payload, err := msgpack.Marshal(state)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to encode playback event", "error", err)
		return
	}

	if err := r.rc.Publish(ctx, r.getPlaybackTopic(state.ChannelID), payload).Err(); err != nil {
		r.logger.WarnContext(ctx, "failed to publish playback event", "error", err)
	}
}

func (r repo) SubscribePlayback(ctx context.Context, channelID string) (channel.Stream[domain.PlaybackState], error) {
	r.logger.DebugContext(ctx, "called", "channel_id", channelID)
	s, err := subscribe[domain.PlaybackState](ctx, r.rc, r.logger, r.getPlaybackTopic(channelID))
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	return s, nil
}
