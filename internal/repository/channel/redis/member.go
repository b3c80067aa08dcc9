package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
)

func (r repo) AddMember(ctx context.Context, params *channel.AddMemberParams) (channel.AddMemberResult, error) {
	r.logger.DebugContext(ctx, "called", "params", params)
	res, err := r.addMemberScript.Run(ctx, r.rc,
		[]string{
			r.getChannelKey(params.ChannelID),
			r.getMemberKey(params.ChannelID, params.Identity),
			r.getMemberListKey(params.ChannelID),
		},
		params.Identity,
		params.DisplayName,
		params.JoinedAt.UnixMilli(),
		r.expireSeconds(),
	).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return channel.AddMemberResult{}, err
	}

	code, _, err := r.scriptCode(res)
	if err != nil {
		return channel.AddMemberResult{}, err
	}

	switch code {
	case -1:
		return channel.AddMemberResult{}, channel.ErrChannelNotFound
	case -2:
		return channel.AddMemberResult{}, channel.ErrMemberAlreadyExists
	case -3:
		return channel.AddMemberResult{}, channel.ErrChannelFull
	}

	return channel.AddMemberResult{MemberCount: int(code)}, nil
}

func (r repo) RemoveMember(ctx context.Context, params *channel.RemoveMemberParams) (channel.RemoveMemberResult, error) {
	r.logger.DebugContext(ctx, "called", "params", params)
	res, err := r.removeMemberScript.Run(ctx, r.rc,
		[]string{
			r.getChannelKey(params.ChannelID),
			r.getMemberKey(params.ChannelID, params.Identity),
			r.getMemberListKey(params.ChannelID),
		},
		params.Identity,
		r.getMemberKeyPrefix(params.ChannelID),
	).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return channel.RemoveMemberResult{}, err
	}

	code, rest, err := r.scriptCode(res)
	if err != nil {
		return channel.RemoveMemberResult{}, err
	}

	if code == -1 {
		return channel.RemoveMemberResult{}, channel.ErrMemberNotFound
	}

	if len(rest) != 2 {
		return channel.RemoveMemberResult{}, fmt.Errorf("unexpected remove member reply: %v", res)
	}

	count, _ := rest[0].(int64)
	promoted, _ := rest[1].(string)

	return channel.RemoveMemberResult{
		MemberCount: int(count),
		PromotedID:  promoted,
	}, nil
}

func (r repo) PromoteMember(ctx context.Context, params *channel.UpdateRoleParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	res, err := r.promoteScript.Run(ctx, r.rc,
		[]string{
			r.getChannelKey(params.ChannelID),
			r.getMemberKey(params.ChannelID, params.Identity),
		},
	).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	code, _, err := r.scriptCode(res)
	if err != nil {
		return err
	}

	switch code {
	case -1:
		return channel.ErrMemberNotFound
	case -2:
		return channel.ErrAlreadyAdmin
	}

	return nil
}

func (r repo) DemoteMember(ctx context.Context, params *channel.UpdateRoleParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	res, err := r.demoteScript.Run(ctx, r.rc,
		[]string{
			r.getChannelKey(params.ChannelID),
			r.getMemberKey(params.ChannelID, params.Identity),
		},
	).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	code, _, err := r.scriptCode(res)
	if err != nil {
		return err
	}

	switch code {
	case -1:
		return channel.ErrMemberNotFound
	case -2:
		return channel.ErrNotAdmin
	case -3:
		return channel.ErrLastAdmin
	}

	return nil
}

func (r repo) GetMember(ctx context.Context, channelID, identity string) (domain.Membership, error) {
	r.logger.DebugContext(ctx, "called", "channel_id", channelID, "identity", identity)
	res := r.rc.HGetAll(ctx, r.getMemberKey(channelID, identity))
	if err := res.Err(); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return domain.Membership{}, err
	}

	if len(res.Val()) == 0 {
		r.logger.DebugContext(ctx, "returned", "error", channel.ErrMemberNotFound)
		return domain.Membership{}, channel.ErrMemberNotFound
	}

	var member channel.Member
	if err := res.Scan(&member); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return domain.Membership{}, err
	}

	return member.ToDomain(channelID, identity), nil
}

// GetMemberRole reads the role straight from the store. Unknown channel or
// identity yields domain.RoleNone.
func (r repo) GetMemberRole(ctx context.Context, channelID, identity string) (domain.Role, error) {
	r.logger.DebugContext(ctx, "called", "channel_id", channelID, "identity", identity)
	role, err := r.rc.HGet(ctx, r.getMemberKey(channelID, identity), "role").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RoleNone, nil
		}

		r.logger.DebugContext(ctx, "returned", "error", err)
		return domain.RoleNone, err
	}

	return domain.Role(role), nil
}

// GetMembers returns memberships ordered by join time.
func (r repo) GetMembers(ctx context.Context, channelID string) ([]domain.Membership, error) {
	r.logger.DebugContext(ctx, "called", "channel_id", channelID)
	ids, err := r.rc.ZRange(ctx, r.getMemberListKey(channelID), 0, -1).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	pipe := r.rc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(ids))
	for _, id := range ids {
		cmds = append(cmds, pipe.HGetAll(ctx, r.getMemberKey(channelID, id)))
	}

	if len(cmds) > 0 {
		if err := r.executePipe(ctx, pipe); err != nil {
			r.logger.DebugContext(ctx, "returned", "error", err)
			return nil, err
		}
	}

	members := make([]domain.Membership, 0, len(ids))
	for i, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			continue
		}

		var member channel.Member
		if err := cmd.Scan(&member); err != nil {
			return nil, err
		}

		members = append(members, member.ToDomain(channelID, ids[i]))
	}

	return members, nil
}
