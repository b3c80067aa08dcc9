package controller

import (
	"context"
	"fmt"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/service/channel"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

type EmptyInput struct{}

func (c controller) handleAlive(ctx context.Context, conn *wsrouter.Conn, _ EmptyInput) error {
	return c.ack(ctx, conn, nil)
}

func (c controller) handlePublishPlayback(ctx context.Context, conn *wsrouter.Conn, input domain.PublishParams) error {
	state, err := c.channelService.PublishPlayback(ctx, &channel.PublishPlaybackParams{
		VideoRef:        input.VideoRef,
		Playing:         input.Playing,
		PositionSeconds: input.PositionSeconds,
		SenderID:        c.getIdentityFromCtx(ctx),
		ChannelID:       c.getChannelIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to publish playback: %w", err)
	}

	// subscribers, the sender included, get the new state through their
	// playback subscription
	return c.ack(ctx, conn, state)
}

func (c controller) handleSendMessage(ctx context.Context, conn *wsrouter.Conn, input protocol.SendMessageInput) error {
	msg, err := c.channelService.AppendMessage(ctx, &channel.AppendMessageParams{
		ClientMessageID: input.ClientMessageID,
		Text:            input.Text,
		Attachment:      input.Attachment,
		SenderID:        c.getIdentityFromCtx(ctx),
		ChannelID:       c.getChannelIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	return c.ack(ctx, conn, msg)
}

func (c controller) handlePromoteMember(ctx context.Context, conn *wsrouter.Conn, input protocol.MemberInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return validationErr(validationErrors)
	}

	resp, err := c.channelService.PromoteMember(ctx, &channel.UpdateRoleParams{
		MemberID:  input.MemberID,
		SenderID:  c.getIdentityFromCtx(ctx),
		ChannelID: c.getChannelIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to promote member: %w", err)
	}

	c.roleUpdated(ctx, resp)
	return c.ack(ctx, conn, resp.UpdatedMember)
}

func (c controller) handleDemoteMember(ctx context.Context, conn *wsrouter.Conn, input protocol.MemberInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return validationErr(validationErrors)
	}

	resp, err := c.channelService.DemoteMember(ctx, &channel.UpdateRoleParams{
		MemberID:  input.MemberID,
		SenderID:  c.getIdentityFromCtx(ctx),
		ChannelID: c.getChannelIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to demote member: %w", err)
	}

	c.roleUpdated(ctx, resp)
	return c.ack(ctx, conn, resp.UpdatedMember)
}

func (c controller) roleUpdated(ctx context.Context, resp channel.UpdateRoleResponse) {
	c.notifyRole(ctx, resp.MemberConn, resp.UpdatedMember.Role)
	c.broadcastMembersUpdated(ctx, resp.Conns, resp.Members, "")
}

func (c controller) handleRemoveMember(ctx context.Context, conn *wsrouter.Conn, input protocol.MemberInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return validationErr(validationErrors)
	}

	resp, err := c.channelService.RemoveMember(ctx, &channel.RemoveMemberParams{
		RemovedMemberID: input.MemberID,
		SenderID:        c.getIdentityFromCtx(ctx),
		ChannelID:       c.getChannelIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	if resp.Conn != nil {
		if err := resp.Conn.CloseWithCode(protocol.CloseKicked, "kicked"); err != nil {
			c.logger.DebugContext(ctx, "failed to close removed member conn", "error", err)
		}
	}
	c.notifyPromoted(ctx, resp.PromotedConn)
	c.broadcastMembersUpdated(ctx, resp.Conns, resp.Members, resp.PromotedID)

	return c.ack(ctx, conn, nil)
}
