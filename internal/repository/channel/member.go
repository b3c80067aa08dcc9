package channel

import (
	"time"

	"github.com/sharetube/watchparty/internal/domain"
)

type Member struct {
	Role        string `redis:"role"`
	DisplayName string `redis:"display_name"`
	JoinedAt    int64  `redis:"joined_at"`
}

func (m Member) ToDomain(channelID, identity string) domain.Membership {
	return domain.Membership{
		ChannelID:   channelID,
		Identity:    identity,
		DisplayName: m.DisplayName,
		Role:        domain.Role(m.Role),
		JoinedAt:    time.UnixMilli(m.JoinedAt).UTC(),
	}
}

type Channel struct {
	Name        string `redis:"name"`
	CreatorID   string `redis:"creator_id"`
	MemberCount int    `redis:"member_count"`
	AdminCount  int    `redis:"admin_count"`
	Capacity    int    `redis:"capacity"`
	CreatedAt   int64  `redis:"created_at"`
	ExpiresAt   int64  `redis:"expires_at"`
}

func (c Channel) ToDomain(channelID string) domain.Channel {
	return domain.Channel{
		ID:          channelID,
		Name:        c.Name,
		CreatorID:   c.CreatorID,
		MemberCount: c.MemberCount,
		AdminCount:  c.AdminCount,
		Capacity:    c.Capacity,
		CreatedAt:   time.UnixMilli(c.CreatedAt).UTC(),
		ExpiresAt:   time.UnixMilli(c.ExpiresAt).UTC(),
	}
}
