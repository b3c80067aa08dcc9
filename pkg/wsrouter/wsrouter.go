package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownType = errors.New("unknown message type")

type message struct {
	Type      string          `json:"type"`
	RequestId string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type HandlerFunc[T any] func(ctx context.Context, conn *Conn, input T) error

type Middleware func(next HandlerFunc[any]) HandlerFunc[any]

// ErrorHandler receives every error returned by a handler or produced while
// decoding a message. The read loop keeps going afterwards.
type ErrorHandler func(ctx context.Context, conn *Conn, err error)

type route struct {
	decode  func(json.RawMessage) (any, error)
	handler HandlerFunc[any]
}

type WSRouter struct {
	routes      map[string]route
	middlewares []Middleware
	onError     ErrorHandler
}

func New() *WSRouter {
	return &WSRouter{
		routes:  make(map[string]route),
		onError: func(context.Context, *Conn, error) {},
	}
}

func (r *WSRouter) Use(mws ...Middleware) {
	r.middlewares = append(r.middlewares, mws...)
}

func (r *WSRouter) OnError(h ErrorHandler) {
	r.onError = h
}

// Handle registers handler for messageType. The payload is decoded into T
// before the middleware chain runs.
func Handle[T any](r *WSRouter, messageType string, handler HandlerFunc[T]) {
	r.routes[messageType] = route{
		decode: func(payload json.RawMessage) (any, error) {
			var input T
			if len(payload) == 0 || string(payload) == "null" {
				return input, nil
			}

			if err := json.Unmarshal(payload, &input); err != nil {
				return nil, err
			}

			return input, nil
		},
		handler: func(ctx context.Context, conn *Conn, input any) error {
			return handler(ctx, conn, input.(T))
		},
	}
}

func (r *WSRouter) chain(h HandlerFunc[any]) HandlerFunc[any] {
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}

	return h
}

// ServeConn reads messages until the connection fails or ctx is done.
func (r *WSRouter) ServeConn(ctx context.Context, conn *Conn) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)
		msgCtx = context.WithValue(msgCtx, requestIdKey, msg.RequestId)

		rt, ok := r.routes[msg.Type]
		if !ok {
			r.onError(msgCtx, conn, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type))
			continue
		}

		input, err := rt.decode(msg.Payload)
		if err != nil {
			r.onError(msgCtx, conn, &DecodeError{Err: err})
			continue
		}

		if err := r.chain(rt.handler)(msgCtx, conn, input); err != nil {
			r.onError(msgCtx, conn, err)
		}
	}
}

type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "failed to decode payload: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
