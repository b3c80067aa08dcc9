package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

// mapRepoErr translates storage errors into the domain taxonomy. Anything the
// store does not classify is treated as a transient io failure.
func mapRepoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, channel.ErrChannelNotFound):
		return domain.ErrChannelNotFound
	case errors.Is(err, channel.ErrMemberNotFound):
		return domain.ErrMemberNotFound
	case errors.Is(err, channel.ErrMemberAlreadyExists):
		return domain.ErrAlreadyMember
	case errors.Is(err, channel.ErrChannelFull):
		return domain.ErrChannelFull
	case errors.Is(err, channel.ErrNotAdmin):
		return domain.ErrPermissionDenied
	case errors.Is(err, channel.ErrAlreadyAdmin):
		return domain.ErrAlreadyAdmin
	case errors.Is(err, channel.ErrLastAdmin):
		return domain.ErrLastAdmin
	}

	return fmt.Errorf("%w: %w", domain.ErrTransient, err)
}

func (s service) getRole(ctx context.Context, channelID, identity string) (domain.Role, error) {
	role, err := s.channelRepo.GetMemberRole(ctx, channelID, identity)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get member role", "error", err)
		return domain.RoleNone, mapRepoErr(err)
	}

	return role, nil
}

func (s service) checkIfMember(ctx context.Context, channelID, identity string) (domain.Role, error) {
	role, err := s.getRole(ctx, channelID, identity)
	if err != nil {
		return domain.RoleNone, err
	}

	if role == domain.RoleNone {
		return domain.RoleNone, domain.ErrNotAMember
	}

	return role, nil
}

func (s service) checkIfMemberAdmin(ctx context.Context, channelID, identity string) error {
	role, err := s.checkIfMember(ctx, channelID, identity)
	if err != nil {
		return err
	}

	if !role.IsAdmin() {
		return domain.ErrPermissionDenied
	}

	return nil
}

// getWritableChannel loads the channel and rejects it once it has expired.
func (s service) getWritableChannel(ctx context.Context, channelID string) (domain.Channel, error) {
	c, err := s.channelRepo.GetChannel(ctx, channelID)
	if err != nil {
		return domain.Channel{}, mapRepoErr(err)
	}

	if c.IsExpired(s.now()) {
		return domain.Channel{}, domain.ErrChannelExpired
	}

	return c, nil
}

func (s service) getConnsByChannelID(channelID string) []*wsrouter.Conn {
	return s.connRepo.GetConns(channelID)
}

func (s service) getMemberConn(channelID, identity string) *wsrouter.Conn {
	conn, err := s.connRepo.GetConn(channelID, identity)
	if err != nil {
		return nil
	}

	return conn
}

func (s service) getPromotedConn(channelID, promotedID string) *wsrouter.Conn {
	if promotedID == "" {
		return nil
	}

	return s.getMemberConn(channelID, promotedID)
}
