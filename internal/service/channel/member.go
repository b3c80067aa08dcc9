package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

type CreateChannelParams struct {
	Name        string
	DisplayName string
}

type CreateChannelResponse struct {
	Channel  domain.Channel
	Identity string
	Token    string
}

// CreateChannel creates a channel whose creator is its only admin.
func (s service) CreateChannel(ctx context.Context, params *CreateChannelParams) (CreateChannelResponse, error) {
	if err := validateCreateChannel(params); err != nil {
		return CreateChannelResponse{}, err
	}

	channelID := uuid.NewString()
	identity := uuid.NewString()
	now := s.now().UTC()
	expiresAt := now.Add(s.channelTTL)

	if err := s.channelRepo.CreateChannel(ctx, &channel.CreateChannelParams{
		ChannelID:          channelID,
		Name:               params.Name,
		CreatorID:          identity,
		CreatorDisplayName: params.DisplayName,
		Capacity:           s.membersLimit,
		CreatedAt:          now,
		ExpiresAt:          expiresAt,
	}); err != nil {
		s.logger.InfoContext(ctx, "failed to create channel", "error", err)
		return CreateChannelResponse{}, mapRepoErr(err)
	}

	token, err := s.generateJWT(channelID, identity, expiresAt)
	if err != nil {
		return CreateChannelResponse{}, fmt.Errorf("failed to generate jwt: %w", err)
	}

	c, err := s.channelRepo.GetChannel(ctx, channelID)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get channel", "error", err)
		return CreateChannelResponse{}, mapRepoErr(err)
	}

	return CreateChannelResponse{
		Channel:  c,
		Identity: identity,
		Token:    token,
	}, nil
}

type JoinChannelParams struct {
	ChannelID   string
	DisplayName string
}

type JoinChannelResponse struct {
	Channel      domain.Channel
	JoinedMember domain.Membership
	Token        string
	Conns        []*wsrouter.Conn
	Members      []domain.Membership
}

// JoinChannel adds a new member. The capacity check and the member counter
// update happen atomically in the store.
func (s service) JoinChannel(ctx context.Context, params *JoinChannelParams) (JoinChannelResponse, error) {
	if err := validateJoinChannel(params); err != nil {
		return JoinChannelResponse{}, err
	}

	c, err := s.getWritableChannel(ctx, params.ChannelID)
	if err != nil {
		return JoinChannelResponse{}, err
	}

	identity := uuid.NewString()
	joinedAt := s.now().UTC()
	res, err := s.channelRepo.AddMember(ctx, &channel.AddMemberParams{
		ChannelID:   params.ChannelID,
		Identity:    identity,
		DisplayName: params.DisplayName,
		JoinedAt:    joinedAt,
	})
	if err != nil {
		s.logger.InfoContext(ctx, "failed to add member", "error", err)
		return JoinChannelResponse{}, mapRepoErr(err)
	}
	c.MemberCount = res.MemberCount

	token, err := s.generateJWT(params.ChannelID, identity, c.ExpiresAt)
	if err != nil {
		return JoinChannelResponse{}, fmt.Errorf("failed to generate jwt: %w", err)
	}

	members, err := s.channelRepo.GetMembers(ctx, params.ChannelID)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get members", "error", err)
		return JoinChannelResponse{}, mapRepoErr(err)
	}

	return JoinChannelResponse{
		Channel: c,
		JoinedMember: domain.Membership{
			ChannelID:   params.ChannelID,
			Identity:    identity,
			DisplayName: params.DisplayName,
			Role:        domain.RoleMember,
			JoinedAt:    joinedAt,
		},
		Token:   token,
		Conns:   s.getConnsByChannelID(params.ChannelID),
		Members: members,
	}, nil
}

type LeaveChannelParams struct {
	ChannelID string
	Identity  string
}

type LeaveChannelResponse struct {
	MemberCount int
	// Conn is the leaver's connection to this process, if any.
	Conn         *wsrouter.Conn
	PromotedID   string
	PromotedConn *wsrouter.Conn
	Conns        []*wsrouter.Conn
	Members      []domain.Membership
}

// LeaveChannel removes the caller. When the caller was the last admin the
// earliest joined remaining member is promoted.
func (s service) LeaveChannel(ctx context.Context, params *LeaveChannelParams) (LeaveChannelResponse, error) {
	res, err := s.channelRepo.RemoveMember(ctx, &channel.RemoveMemberParams{
		ChannelID: params.ChannelID,
		Identity:  params.Identity,
	})
	if err != nil {
		s.logger.InfoContext(ctx, "failed to remove member", "error", err)
		if errors.Is(err, channel.ErrMemberNotFound) {
			return LeaveChannelResponse{}, domain.ErrNotAMember
		}

		return LeaveChannelResponse{}, mapRepoErr(err)
	}

	members, err := s.channelRepo.GetMembers(ctx, params.ChannelID)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get members", "error", err)
		return LeaveChannelResponse{}, mapRepoErr(err)
	}

	return LeaveChannelResponse{
		MemberCount:  res.MemberCount,
		Conn:         s.getMemberConn(params.ChannelID, params.Identity),
		PromotedID:   res.PromotedID,
		PromotedConn: s.getPromotedConn(params.ChannelID, res.PromotedID),
		Conns:        s.getConnsByChannelID(params.ChannelID),
		Members:      members,
	}, nil
}

func (s service) GetChannel(ctx context.Context, channelID string) (domain.Channel, error) {
	c, err := s.channelRepo.GetChannel(ctx, channelID)
	if err != nil {
		return domain.Channel{}, mapRepoErr(err)
	}

	return c, nil
}

func (s service) IsMember(ctx context.Context, channelID, identity string) (bool, error) {
	role, err := s.getRole(ctx, channelID, identity)
	if err != nil {
		return false, err
	}

	return role != domain.RoleNone, nil
}

// RoleOf returns domain.RoleNone for identities that are not in the channel
// and for unknown channels.
func (s service) RoleOf(ctx context.Context, channelID, identity string) (domain.Role, error) {
	return s.getRole(ctx, channelID, identity)
}

func (s service) GetMembers(ctx context.Context, channelID, identity string) ([]domain.Membership, error) {
	if _, err := s.checkIfMember(ctx, channelID, identity); err != nil {
		return nil, err
	}

	members, err := s.channelRepo.GetMembers(ctx, channelID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	return members, nil
}

type RemoveMemberParams struct {
	RemovedMemberID string
	SenderID        string
	ChannelID       string
}

type RemoveMemberResponse struct {
	Conn         *wsrouter.Conn
	PromotedID   string
	PromotedConn *wsrouter.Conn
	Conns        []*wsrouter.Conn
	Members      []domain.Membership
}

func (s service) RemoveMember(ctx context.Context, params *RemoveMemberParams) (RemoveMemberResponse, error) {
	if err := s.checkIfMemberAdmin(ctx, params.ChannelID, params.SenderID); err != nil {
		return RemoveMemberResponse{}, err
	}

	res, err := s.channelRepo.RemoveMember(ctx, &channel.RemoveMemberParams{
		ChannelID: params.ChannelID,
		Identity:  params.RemovedMemberID,
	})
	if err != nil {
		s.logger.InfoContext(ctx, "failed to remove member", "error", err)
		return RemoveMemberResponse{}, mapRepoErr(err)
	}

	members, err := s.channelRepo.GetMembers(ctx, params.ChannelID)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get members", "error", err)
		return RemoveMemberResponse{}, mapRepoErr(err)
	}

	return RemoveMemberResponse{
		Conn:         s.getMemberConn(params.ChannelID, params.RemovedMemberID),
		PromotedID:   res.PromotedID,
		PromotedConn: s.getPromotedConn(params.ChannelID, res.PromotedID),
		Conns:        s.getConnsByChannelID(params.ChannelID),
		Members:      members,
	}, nil
}

type UpdateRoleParams struct {
	MemberID  string
	SenderID  string
	ChannelID string
}

type UpdateRoleResponse struct {
	UpdatedMember domain.Membership
	// MemberConn is nil when the member is not connected to this process.
	MemberConn *wsrouter.Conn
	Conns      []*wsrouter.Conn
	Members    []domain.Membership
}

func (s service) PromoteMember(ctx context.Context, params *UpdateRoleParams) (UpdateRoleResponse, error) {
	return s.updateRole(ctx, params, s.channelRepo.PromoteMember)
}

// DemoteMember takes the admin role away. The channel always keeps at least
// one admin, so demoting the last one fails with domain.ErrLastAdmin.
func (s service) DemoteMember(ctx context.Context, params *UpdateRoleParams) (UpdateRoleResponse, error) {
	return s.updateRole(ctx, params, s.channelRepo.DemoteMember)
}

func (s service) updateRole(
	ctx context.Context,
	params *UpdateRoleParams,
	update func(context.Context, *channel.UpdateRoleParams) error,
) (UpdateRoleResponse, error) {
	if err := s.checkIfMemberAdmin(ctx, params.ChannelID, params.SenderID); err != nil {
		return UpdateRoleResponse{}, err
	}

	if _, err := s.getWritableChannel(ctx, params.ChannelID); err != nil {
		return UpdateRoleResponse{}, err
	}

	if err := update(ctx, &channel.UpdateRoleParams{
		ChannelID: params.ChannelID,
		Identity:  params.MemberID,
	}); err != nil {
		s.logger.InfoContext(ctx, "failed to update member role", "error", err)
		return UpdateRoleResponse{}, mapRepoErr(err)
	}

	member, err := s.channelRepo.GetMember(ctx, params.ChannelID, params.MemberID)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get member", "error", err)
		return UpdateRoleResponse{}, mapRepoErr(err)
	}

	members, err := s.channelRepo.GetMembers(ctx, params.ChannelID)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get members", "error", err)
		return UpdateRoleResponse{}, mapRepoErr(err)
	}

	return UpdateRoleResponse{
		UpdatedMember: member,
		MemberConn:    s.getMemberConn(params.ChannelID, params.MemberID),
		Conns:         s.getConnsByChannelID(params.ChannelID),
		Members:       members,
	}, nil
}

type ConnectMemberParams struct {
	Conn      *wsrouter.Conn
	ChannelID string
	Identity  string
}

// ConnectMember registers the websocket of a member. A previous connection of
// the same member is closed.
func (s service) ConnectMember(ctx context.Context, params *ConnectMemberParams) error {
	if _, err := s.checkIfMember(ctx, params.ChannelID, params.Identity); err != nil {
		return err
	}

	if prev := s.connRepo.Add(params.Conn, params.ChannelID, params.Identity); prev != nil {
		s.logger.InfoContext(ctx, "closing replaced connection")
		prev.Close()
	}

	return nil
}

func (s service) DisconnectMember(ctx context.Context, conn *wsrouter.Conn) {
	if err := s.connRepo.RemoveByConn(conn); err != nil {
		s.logger.DebugContext(ctx, "failed to remove conn", "error", err)
	}
}
