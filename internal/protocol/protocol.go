// Package protocol holds the websocket frame types shared by the server
// endpoint and the client session.
package protocol

import (
	"encoding/json"

	"github.com/sharetube/watchparty/internal/domain"
)

// client -> server
const (
	TypeAlive           = "ALIVE"
	TypePublishPlayback = "PUBLISH_PLAYBACK"
	TypeSendMessage     = "SEND_MESSAGE"
	TypePromoteMember   = "PROMOTE_MEMBER"
	TypeDemoteMember    = "DEMOTE_MEMBER"
	TypeRemoveMember    = "REMOVE_MEMBER"
)

// server -> client
const (
	TypeConnected      = "CONNECTED"
	TypePlaybackState  = "PLAYBACK_STATE"
	TypeMessage        = "MESSAGE"
	TypeAck            = "ACK"
	TypeError          = "ERROR"
	TypeRoleUpdated    = "ROLE_UPDATED"
	TypeMembersUpdated = "MEMBERS_UPDATED"
)

// Close codes sent by the server.
const (
	CloseKicked           = 4001
	CloseLeft             = 4002
	CloseSubscriptionLost = 4003
)

// Input is a client frame. Payload is encoded as JSON.
type Input struct {
	Type      string `json:"type"`
	RequestId string `json:"request_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Output is a server frame.
type Output struct {
	Type      string `json:"type"`
	RequestId string `json:"request_id,omitempty"`
	Payload   any    `json:"payload"`
}

// Frame is an Output as seen by a reader, with the payload left undecoded.
type Frame struct {
	Type      string          `json:"type"`
	RequestId string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type SendMessageInput struct {
	ClientMessageID string             `json:"client_message_id"`
	Text            *string            `json:"text,omitempty"`
	Attachment      *domain.Attachment `json:"attachment,omitempty"`
}

type MemberInput struct {
	MemberID string `json:"member_id" validate:"required,uuid"`
}

type ConnectedOutput struct {
	Identity string              `json:"identity"`
	Role     domain.Role         `json:"role"`
	Channel  domain.Channel      `json:"channel"`
	Members  []domain.Membership `json:"members"`
}

type ErrorOutput struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RoleUpdatedOutput struct {
	Role domain.Role `json:"role"`
}

type MembersUpdatedOutput struct {
	Members []domain.Membership `json:"members"`
	// PromotedID is set when a removal promoted someone to admin.
	PromotedID string `json:"promoted_id,omitempty"`
}
