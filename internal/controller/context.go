package controller

import (
	"context"
	"log/slog"

	"github.com/sharetube/watchparty/pkg/ctxlogger"
)

type contextKey int

const (
	channelIDCtxKey contextKey = iota
	identityCtxKey
)

// withMember binds the authenticated (channel, identity) pair to ctx and to
// its log attributes.
func withMember(ctx context.Context, channelID, identity string) context.Context {
	ctx = context.WithValue(ctx, channelIDCtxKey, channelID)
	ctx = context.WithValue(ctx, identityCtxKey, identity)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("channel_id", channelID))
	return ctxlogger.AppendCtx(ctx, slog.String("identity", identity))
}

func (c controller) getChannelIDFromCtx(ctx context.Context) string {
	channelID, ok := ctx.Value(channelIDCtxKey).(string)
	if !ok {
		return ""
	}

	return channelID
}

func (c controller) getIdentityFromCtx(ctx context.Context) string {
	identity, ok := ctx.Value(identityCtxKey).(string)
	if !ok {
		return ""
	}

	return identity
}
