package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
)

const writeWait = 10 * time.Second

// conn is one websocket connection. Its playback channel is closed when the
// connection ends.
type conn struct {
	ws      *websocket.Conn
	session *Session

	wmu sync.Mutex

	mu            sync.Mutex
	pending       map[string]chan protocol.Frame
	err           error
	closedLocally bool

	playback  chan domain.PlaybackState
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, session *Session) *conn {
	return &conn{
		ws:       ws,
		session:  session,
		pending:  make(map[string]chan protocol.Frame),
		playback: make(chan domain.PlaybackState, playbackBuffer),
		done:     make(chan struct{}),
	}
}

func (c *conn) roundTrip(ctx context.Context, typ string, payload any) (protocol.Frame, error) {
	requestId := uuid.NewString()
	reply := make(chan protocol.Frame, 1)

	select {
	case <-c.done:
		return protocol.Frame{}, c.doneErr()
	default:
	}

	c.mu.Lock()
	c.pending[requestId] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, requestId)
		c.mu.Unlock()
	}()

	if err := c.write(protocol.Input{Type: typ, RequestId: requestId, Payload: payload}); err != nil {
		return protocol.Frame{}, fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}

	select {
	case frame := <-reply:
		return frame, nil
	case <-c.done:
		return protocol.Frame{}, c.doneErr()
	case <-ctx.Done():
		return protocol.Frame{}, fmt.Errorf("%w: %w", domain.ErrTransient, ctx.Err())
	}
}

func (c *conn) doneErr() error {
	if err := c.error(); err != nil {
		return err
	}

	return errNotConnected
}

func (c *conn) write(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return c.ws.WriteJSON(v)
}

func (c *conn) readLoop() {
	defer close(c.playback)

	for {
		var frame protocol.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			c.fail(err)
			return
		}

		if err := c.dispatch(frame); err != nil {
			c.session.logger.Warn("dropping undecodable frame", "type", frame.Type, "error", err)
		}
	}
}

func (c *conn) dispatch(frame protocol.Frame) error {
	switch frame.Type {
	case protocol.TypeAck, protocol.TypeError:
		c.mu.Lock()
		reply, ok := c.pending[frame.RequestId]
		c.mu.Unlock()
		if ok {
			select {
			case reply <- frame:
			default:
			}
		} else if frame.Type == protocol.TypeError {
			c.session.logger.Info("server error", "payload", string(frame.Payload))
		}

	case protocol.TypePlaybackState:
		var state domain.PlaybackState
		if err := json.Unmarshal(frame.Payload, &state); err != nil {
			return err
		}
		select {
		case c.playback <- state:
		case <-c.done:
		}

	case protocol.TypeMessage:
		var msg domain.Message
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			return err
		}
		c.session.deliverMessage(c, msg)

	case protocol.TypeConnected:
		var out protocol.ConnectedOutput
		if err := json.Unmarshal(frame.Payload, &out); err != nil {
			return err
		}
		c.session.deliverRole(out.Role)
		c.session.deliverMembers(out.Members)

	case protocol.TypeRoleUpdated:
		var out protocol.RoleUpdatedOutput
		if err := json.Unmarshal(frame.Payload, &out); err != nil {
			return err
		}
		c.session.deliverRole(out.Role)

	case protocol.TypeMembersUpdated:
		var out protocol.MembersUpdatedOutput
		if err := json.Unmarshal(frame.Payload, &out); err != nil {
			return err
		}
		c.session.deliverMembers(out.Members)
	}

	return nil
}

// fail records why the connection ended. Being kicked is an authorization
// failure; anything else is transient. A connection closed locally has no
// error.
func (c *conn) fail(err error) {
	var mapped error
	switch {
	case websocket.IsCloseError(err, protocol.CloseKicked):
		mapped = fmt.Errorf("%w: removed from channel", domain.ErrNotAMember)
	case websocket.IsCloseError(err, protocol.CloseLeft):
		mapped = fmt.Errorf("%w: left channel", domain.ErrNotAMember)
	default:
		mapped = fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}

	c.mu.Lock()
	if !c.closedLocally && c.err == nil {
		c.err = mapped
	}
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *conn) error() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *conn) close() {
	c.mu.Lock()
	c.closedLocally = true
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
		c.wmu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		c.ws.Close()
	})
}
