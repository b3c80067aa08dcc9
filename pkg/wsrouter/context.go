package wsrouter

import "context"

type ctxKey string

const (
	messageTypeKey ctxKey = "message_type"
	requestIdKey   ctxKey = "request_id"
)

func GetMessageTypeFromCtx(ctx context.Context) string {
	messageType, _ := ctx.Value(messageTypeKey).(string)
	return messageType
}

// GetRequestIdFromCtx returns the client supplied id of the message being
// handled, empty when the client did not set one.
func GetRequestIdFromCtx(ctx context.Context) string {
	requestId, _ := ctx.Value(requestIdKey).(string)
	return requestId
}
