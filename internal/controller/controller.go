package controller

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/service/channel"
	"github.com/sharetube/watchparty/pkg/validator"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

const defaultMaxUploadSize = 25 << 20

type iChannelService interface {
	ParseToken(tokenString string) (channel.Claims, error)
	// membership
	CreateChannel(context.Context, *channel.CreateChannelParams) (channel.CreateChannelResponse, error)
	JoinChannel(context.Context, *channel.JoinChannelParams) (channel.JoinChannelResponse, error)
	LeaveChannel(context.Context, *channel.LeaveChannelParams) (channel.LeaveChannelResponse, error)
	GetChannel(ctx context.Context, channelID string) (domain.Channel, error)
	RoleOf(ctx context.Context, channelID, identity string) (domain.Role, error)
	GetMembers(ctx context.Context, channelID, identity string) ([]domain.Membership, error)
	RemoveMember(context.Context, *channel.RemoveMemberParams) (channel.RemoveMemberResponse, error)
	PromoteMember(context.Context, *channel.UpdateRoleParams) (channel.UpdateRoleResponse, error)
	DemoteMember(context.Context, *channel.UpdateRoleParams) (channel.UpdateRoleResponse, error)
	// playback
	ReadPlayback(ctx context.Context, channelID, identity string) (domain.PlaybackState, error)
	PublishPlayback(context.Context, *channel.PublishPlaybackParams) (domain.PlaybackState, error)
	SubscribePlayback(ctx context.Context, channelID, identity string) (*channel.Subscription[domain.PlaybackState], error)
	// messages
	AppendMessage(context.Context, *channel.AppendMessageParams) (domain.Message, error)
	SubscribeMessages(context.Context, *channel.SubscribeMessagesParams) (*channel.Subscription[domain.Message], error)
	// connections
	ConnectMember(context.Context, *channel.ConnectMemberParams) error
	DisconnectMember(ctx context.Context, conn *wsrouter.Conn)
}

type iBlobStore interface {
	Upload(ctx context.Context, channelID string, r io.Reader, size int64) (domain.Attachment, error)
}

type Config struct {
	// MaxUploadSize caps attachment uploads in bytes.
	MaxUploadSize int64
}

type controller struct {
	channelService iChannelService
	// blobStore is nil when attachments are disabled.
	blobStore     iBlobStore
	upgrader      websocket.Upgrader
	validate      *validator.Validator
	logger        *slog.Logger
	wsmux         *wsrouter.WSRouter
	maxUploadSize int64
}

func NewController(channelService iChannelService, blobStore iBlobStore, logger *slog.Logger, cfg *Config) *controller {
	c := &controller{
		channelService: channelService,
		blobStore:      blobStore,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate:      validator.NewValidator(),
		logger:        logger,
		maxUploadSize: cfg.MaxUploadSize,
	}
	if c.maxUploadSize <= 0 {
		c.maxUploadSize = defaultMaxUploadSize
	}
	c.wsmux = c.getWSRouter()

	return c
}
