package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw())
	mux.OnError(c.handleWSError)

	wsrouter.Handle(mux, protocol.TypeAlive, c.handleAlive)

	// playback
	wsrouter.Handle(mux, protocol.TypePublishPlayback, c.handlePublishPlayback)

	// messages
	wsrouter.Handle(mux, protocol.TypeSendMessage, c.handleSendMessage)

	// member
	wsrouter.Handle(mux, protocol.TypePromoteMember, c.handlePromoteMember)
	wsrouter.Handle(mux, protocol.TypeDemoteMember, c.handleDemoteMember)
	wsrouter.Handle(mux, protocol.TypeRemoveMember, c.handleRemoveMember)

	return mux
}

// handleWSError answers a failed message with an ERROR frame carrying the
// message's request id.
func (c controller) handleWSError(ctx context.Context, conn *wsrouter.Conn, err error) {
	var decodeErr *wsrouter.DecodeError
	if errors.Is(err, wsrouter.ErrUnknownType) || errors.As(err, &decodeErr) {
		err = fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	if domain.Code(err) == domain.CodeInternal {
		c.logger.WarnContext(ctx, "websocket message failed", "error", err)
	} else {
		c.logger.InfoContext(ctx, "websocket message rejected", "error", err)
	}

	if werr := c.writeToConn(ctx, conn, &protocol.Output{
		Type:      protocol.TypeError,
		RequestId: wsrouter.GetRequestIdFromCtx(ctx),
		Payload:   errorOutput(err),
	}); werr != nil {
		c.logger.DebugContext(ctx, "failed to write error", "error", werr)
	}
}
