package wsrouter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Text string `json:"text"`
}

type reply struct {
	Type      string `json:"type"`
	RequestId string `json:"request_id"`
	Text      string `json:"text"`
}

func newTestServer(t *testing.T, r *WSRouter) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		r.ServeConn(context.Background(), NewConn(conn))
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestServeConn(t *testing.T) {
	r := New()
	var (
		mu   sync.Mutex
		seen []string
	)
	r.Use(func(next HandlerFunc[any]) HandlerFunc[any] {
		return func(ctx context.Context, conn *Conn, input any) error {
			mu.Lock()
			seen = append(seen, GetMessageTypeFromCtx(ctx))
			mu.Unlock()
			return next(ctx, conn, input)
		}
	})
	r.OnError(func(ctx context.Context, conn *Conn, err error) {
		conn.WriteJSON(reply{Type: "ERROR", RequestId: GetRequestIdFromCtx(ctx), Text: err.Error()})
	})

	Handle(r, "ECHO", func(ctx context.Context, conn *Conn, input echoInput) error {
		return conn.WriteJSON(reply{Type: "ECHO", RequestId: GetRequestIdFromCtx(ctx), Text: input.Text})
	})
	Handle(r, "FAIL", func(ctx context.Context, conn *Conn, input echoInput) error {
		return errors.New("boom")
	})

	client := newTestServer(t, r)

	t.Run("routes by type", func(t *testing.T) {
		require.NoError(t, client.WriteJSON(map[string]any{
			"type":       "ECHO",
			"request_id": "1",
			"payload":    map[string]string{"text": "hi"},
		}))

		var got reply
		require.NoError(t, client.ReadJSON(&got))
		assert.Equal(t, reply{Type: "ECHO", RequestId: "1", Text: "hi"}, got)
	})

	t.Run("handler error", func(t *testing.T) {
		require.NoError(t, client.WriteJSON(map[string]any{"type": "FAIL", "request_id": "2"}))

		var got reply
		require.NoError(t, client.ReadJSON(&got))
		assert.Equal(t, "ERROR", got.Type)
		assert.Equal(t, "2", got.RequestId)
		assert.Equal(t, "boom", got.Text)
	})

	t.Run("unknown type", func(t *testing.T) {
		require.NoError(t, client.WriteJSON(map[string]any{"type": "NOPE", "request_id": "3"}))

		var got reply
		require.NoError(t, client.ReadJSON(&got))
		assert.Equal(t, "ERROR", got.Type)
		assert.Contains(t, got.Text, ErrUnknownType.Error())
	})

	t.Run("bad payload", func(t *testing.T) {
		require.NoError(t, client.WriteJSON(map[string]any{"type": "ECHO", "request_id": "4", "payload": 5}))

		var got reply
		require.NoError(t, client.ReadJSON(&got))
		assert.Equal(t, "ERROR", got.Type)
		assert.Contains(t, got.Text, "failed to decode payload")
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ECHO", "FAIL"}, seen)
}
