package channel

import (
	"context"
	"log/slog"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

type iChannelRepo interface {
	// channel
	CreateChannel(context.Context, *channel.CreateChannelParams) error
	GetChannel(ctx context.Context, channelID string) (domain.Channel, error)
	// member
	AddMember(context.Context, *channel.AddMemberParams) (channel.AddMemberResult, error)
	RemoveMember(context.Context, *channel.RemoveMemberParams) (channel.RemoveMemberResult, error)
	PromoteMember(context.Context, *channel.UpdateRoleParams) error
	DemoteMember(context.Context, *channel.UpdateRoleParams) error
	GetMember(ctx context.Context, channelID, identity string) (domain.Membership, error)
	GetMemberRole(ctx context.Context, channelID, identity string) (domain.Role, error)
	GetMembers(ctx context.Context, channelID string) ([]domain.Membership, error)
	// playback
	GetPlayback(ctx context.Context, channelID string) (domain.PlaybackState, error)
	PublishPlayback(context.Context, *channel.PublishPlaybackParams) (domain.PlaybackState, error)
	SubscribePlayback(ctx context.Context, channelID string) (channel.Stream[domain.PlaybackState], error)
	// messages
	AppendMessage(context.Context, *channel.AppendMessageParams) (domain.Message, error)
	GetRecentMessages(ctx context.Context, channelID string, since time.Time, limit int) ([]domain.Message, error)
	SubscribeMessages(ctx context.Context, channelID string) (channel.Stream[domain.Message], error)
}

type iConnRepo interface {
	Add(conn *wsrouter.Conn, channelID, identity string) *wsrouter.Conn
	RemoveByConn(conn *wsrouter.Conn) error
	GetConn(channelID, identity string) (*wsrouter.Conn, error)
	GetConns(channelID string) []*wsrouter.Conn
}

type Config struct {
	Secret       string
	MembersLimit int
	ChannelTTL   time.Duration
	Retention    time.Duration
	HistoryLimit int
}

type service struct {
	channelRepo  iChannelRepo
	connRepo     iConnRepo
	logger       *slog.Logger
	secret       []byte
	membersLimit int
	channelTTL   time.Duration
	retention    time.Duration
	historyLimit int
	now          func() time.Time
}

func NewService(channelRepo iChannelRepo, connRepo iConnRepo, logger *slog.Logger, cfg *Config) *service {
	if logger == nil {
		logger = slog.Default()
	}

	return &service{
		channelRepo:  channelRepo,
		connRepo:     connRepo,
		logger:       logger,
		secret:       []byte(cfg.Secret),
		membersLimit: cfg.MembersLimit,
		channelTTL:   cfg.ChannelTTL,
		retention:    cfg.Retention,
		historyLimit: cfg.HistoryLimit,
		now:          time.Now,
	}
}
