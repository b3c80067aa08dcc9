package channel

import (
	"time"

	"github.com/sharetube/watchparty/internal/domain"
)

type CreateChannelParams struct {
	ChannelID          string
	Name               string
	CreatorID          string
	CreatorDisplayName string
	Capacity           int
	CreatedAt          time.Time
	ExpiresAt          time.Time
}

type AddMemberParams struct {
	ChannelID   string
	Identity    string
	DisplayName string
	JoinedAt    time.Time
}

type AddMemberResult struct {
	MemberCount int
}

type RemoveMemberParams struct {
	ChannelID string
	Identity  string
}

type RemoveMemberResult struct {
	MemberCount int
	// PromotedID is set when the removed member was the last admin and the
	// earliest joined remaining member inherited the role.
	PromotedID string
}

type UpdateRoleParams struct {
	ChannelID string
	Identity  string
}

type PublishPlaybackParams struct {
	ChannelID   string
	PublisherID string
	Update      domain.PublishParams
	PublishedAt time.Time
}

type AppendMessageParams struct {
	Message  domain.Message
	DedupTTL time.Duration
}

type RemoveMessagesParams struct {
	ChannelID string
	Seqs      []string
}
