package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
)

// CreateChannel stores the channel record together with its creator as the
// only admin.
func (r repo) CreateChannel(ctx context.Context, params *channel.CreateChannelParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	channelKey := r.getChannelKey(params.ChannelID)
	r.HSetStruct(ctx, pipe, channelKey, channel.Channel{
		Name:        params.Name,
		CreatorID:   params.CreatorID,
		MemberCount: 1,
		AdminCount:  1,
		Capacity:    params.Capacity,
		CreatedAt:   params.CreatedAt.UnixMilli(),
		ExpiresAt:   params.ExpiresAt.UnixMilli(),
	})
	pipe.Expire(ctx, channelKey, r.expireDuration)

	memberKey := r.getMemberKey(params.ChannelID, params.CreatorID)
	r.HSetStruct(ctx, pipe, memberKey, channel.Member{
		Role:        string(domain.RoleAdmin),
		DisplayName: params.CreatorDisplayName,
		JoinedAt:    params.CreatedAt.UnixMilli(),
	})
	pipe.Expire(ctx, memberKey, r.expireDuration)

	memberListKey := r.getMemberListKey(params.ChannelID)
	pipe.ZAdd(ctx, memberListKey, redis.Z{
		Score:  float64(params.CreatedAt.UnixMilli()),
		Member: params.CreatorID,
	})
	pipe.Expire(ctx, memberListKey, r.expireDuration)

	pipe.SAdd(ctx, r.getChannelIDsKey(), params.ChannelID)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to create channel: %w", err)
	}

	return nil
}

func (r repo) GetChannel(ctx context.Context, channelID string) (domain.Channel, error) {
	r.logger.DebugContext(ctx, "called", "channel_id", channelID)
	res := r.rc.HGetAll(ctx, r.getChannelKey(channelID))
	if err := res.Err(); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return domain.Channel{}, err
	}

	if len(res.Val()) == 0 {
		r.logger.DebugContext(ctx, "returned", "error", channel.ErrChannelNotFound)
		return domain.Channel{}, channel.ErrChannelNotFound
	}

	var c channel.Channel
	if err := res.Scan(&c); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return domain.Channel{}, err
	}

	return c.ToDomain(channelID), nil
}

func (r repo) GetChannelIDs(ctx context.Context) ([]string, error) {
	r.logger.DebugContext(ctx, "called")
	ids, err := r.rc.SMembers(ctx, r.getChannelIDsKey()).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	return ids, nil
}

// ForgetChannel drops the bookkeeping of a channel whose record is gone:
// the id from the channel set and whatever is left of its message stream.
func (r repo) ForgetChannel(ctx context.Context, channelID string) error {
	r.logger.DebugContext(ctx, "called", "channel_id", channelID)
	exists, err := r.rc.Exists(ctx, r.getChannelKey(channelID)).Result()
	if err != nil {
		return err
	}

	if exists > 0 {
		return errors.New("channel still exists")
	}

	pipe := r.rc.TxPipeline()
	pipe.SRem(ctx, r.getChannelIDsKey(), channelID)
	pipe.Del(ctx,
		r.getMessagesKey(channelID),
		r.getMessageBodiesKey(channelID),
		r.getMessageSeqKey(channelID),
		r.getMessageClockKey(channelID),
		r.getPlaybackKey(channelID),
		r.getMemberListKey(channelID),
	)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}
