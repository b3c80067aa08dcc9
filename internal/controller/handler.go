package controller

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/service/channel"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

// connect upgrades an authenticated member to a websocket. The connection
// receives the current playback state and the recent message window, then
// live updates of both, and accepts the client messages routed by wsmux.
func (c controller) connect(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channel-id")

	claims, err := c.channelService.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to parse token", "error", err)
		c.writeUnauthorized(w, r, "invalid token")
		return
	}
	if claims.ChannelID != channelID {
		c.writeError(w, r, domain.ErrPermissionDenied)
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.writeError(w, r, domain.ErrValidation)
			return
		}
		since = time.UnixMilli(ms)
	}

	ctx := withMember(r.Context(), channelID, claims.Identity)
	r = r.WithContext(ctx)

	role, err := c.channelService.RoleOf(ctx, channelID, claims.Identity)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if role == domain.RoleNone {
		c.writeError(w, r, domain.ErrNotAMember)
		return
	}

	ch, err := c.channelService.GetChannel(ctx, channelID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	members, err := c.channelService.GetMembers(ctx, channelID, claims.Identity)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	wsConn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to upgrade to websocket", "error", err)
		return
	}
	conn := wsrouter.NewConn(wsConn)
	defer conn.Close()

	if err := c.channelService.ConnectMember(ctx, &channel.ConnectMemberParams{
		Conn:      conn,
		ChannelID: channelID,
		Identity:  claims.Identity,
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to connect member", "error", err)
		conn.CloseWithCode(protocol.CloseKicked, domain.Code(err))
		return
	}
	defer c.channelService.DisconnectMember(ctx, conn)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.writeToConn(ctx, conn, &protocol.Output{
		Type: protocol.TypeConnected,
		Payload: protocol.ConnectedOutput{
			Identity: claims.Identity,
			Role:     role,
			Channel:  ch,
			Members:  members,
		},
	}); err != nil {
		return
	}

	playbackSub, err := c.channelService.SubscribePlayback(ctx, channelID, claims.Identity)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to subscribe to playback", "error", err)
		conn.CloseWithCode(protocol.CloseSubscriptionLost, domain.Code(err))
		return
	}
	defer playbackSub.Close()

	messagesSub, err := c.channelService.SubscribeMessages(ctx, &channel.SubscribeMessagesParams{
		ChannelID: channelID,
		Identity:  claims.Identity,
		Since:     since,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to subscribe to messages", "error", err)
		conn.CloseWithCode(protocol.CloseSubscriptionLost, domain.Code(err))
		return
	}
	defer messagesSub.Close()

	go forward(ctx, c.logger, conn, protocol.TypePlaybackState, playbackSub)
	go forward(ctx, c.logger, conn, protocol.TypeMessage, messagesSub)

	c.logger.InfoContext(ctx, "member connected", "role", role.String())
	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "connection closed", "error", err)
	}
}

type subscription[T any] interface {
	C() <-chan T
	Err() error
}

// forward writes every event of sub to conn. A lost subscription closes the
// connection so that the client reconnects and gets a fresh window.
func forward[T any](ctx context.Context, logger *slog.Logger, conn *wsrouter.Conn, outputType string, sub subscription[T]) {
	for v := range sub.C() {
		if err := conn.WriteJSON(&protocol.Output{Type: outputType, Payload: v}); err != nil {
			logger.DebugContext(ctx, "failed to forward event", "type", outputType, "error", err)
			return
		}
	}

	if err := sub.Err(); err != nil {
		logger.WarnContext(ctx, "subscription lost", "type", outputType, "error", err)
		conn.CloseWithCode(protocol.CloseSubscriptionLost, "subscription lost")
	}
}
