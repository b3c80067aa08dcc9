// Package client is the member side of the websocket protocol. A Session
// implements playback.Publisher and playback.Subscriber and exposes the chat
// stream and role notifications.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/playback"
	"github.com/sharetube/watchparty/internal/protocol"
)

const (
	defaultRequestTimeout = 10 * time.Second
	playbackBuffer        = 64
	messageBuffer         = 256
)

var errNotConnected = fmt.Errorf("%w: not connected", domain.ErrTransient)

var (
	_ playback.Publisher  = (*Session)(nil)
	_ playback.Subscriber = (*Session)(nil)
)

type Config struct {
	// ServerURL is the http(s) base URL of the server.
	ServerURL string
	ChannelID string
	Token     string
	// RequestTimeout bounds the wait for an ACK. Defaults to 10s.
	RequestTimeout time.Duration
	Dialer         *websocket.Dialer
}

type Session struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *conn
	lastMsg domain.Message

	messages chan domain.Message
	roles    chan domain.Role
	members  chan []domain.Membership
	closed   chan struct{}
	once     sync.Once
}

func NewSession(cfg *Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	c := *cfg
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}

	return &Session{
		cfg:      c,
		logger:   logger,
		messages: make(chan domain.Message, messageBuffer),
		roles:    make(chan domain.Role, 8),
		members:  make(chan []domain.Membership, 8),
		closed:   make(chan struct{}),
	}
}

// Messages yields chat messages in (timestamp, seq) order without
// duplicates across reconnects.
func (s *Session) Messages() <-chan domain.Message {
	return s.messages
}

// Roles yields this member's role on connect and on every change.
func (s *Session) Roles() <-chan domain.Role {
	return s.roles
}

// Members yields the member list whenever it changes.
func (s *Session) Members() <-chan []domain.Membership {
	return s.members
}

// Subscribe opens a new connection, replacing the current one. The returned
// subscription starts with the current playback state.
func (s *Session) Subscribe(ctx context.Context) (playback.Subscription, error) {
	select {
	case <-s.closed:
		return nil, errors.New("session closed")
	default:
	}

	wsURL, err := s.wsURL()
	if err != nil {
		return nil, err
	}

	ws, resp, err := s.cfg.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			if code := statusError(resp.StatusCode); code != nil {
				return nil, fmt.Errorf("%w: handshake status %d", code, resp.StatusCode)
			}
		}

		return nil, fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}

	c := newConn(ws, s)

	s.mu.Lock()
	prev := s.conn
	s.conn = c
	s.mu.Unlock()

	if prev != nil {
		prev.close()
	}

	go c.readLoop()

	return &subscription{c: c}, nil
}

// Publish sends a playback update and waits for the resulting state.
func (s *Session) Publish(ctx context.Context, update domain.PublishParams) (domain.PlaybackState, error) {
	var state domain.PlaybackState
	if err := s.request(ctx, protocol.TypePublishPlayback, update, &state); err != nil {
		return domain.PlaybackState{}, err
	}

	return state, nil
}

// SendMessage appends a chat message. Retrying with the same clientMessageID
// never produces a duplicate.
func (s *Session) SendMessage(ctx context.Context, clientMessageID, text string, attachment *domain.Attachment) (domain.Message, error) {
	input := protocol.SendMessageInput{
		ClientMessageID: clientMessageID,
		Attachment:      attachment,
	}
	if text != "" {
		input.Text = &text
	}

	var msg domain.Message
	if err := s.request(ctx, protocol.TypeSendMessage, input, &msg); err != nil {
		return domain.Message{}, err
	}

	return msg, nil
}

func (s *Session) Promote(ctx context.Context, memberID string) error {
	return s.request(ctx, protocol.TypePromoteMember, protocol.MemberInput{MemberID: memberID}, nil)
}

func (s *Session) Demote(ctx context.Context, memberID string) error {
	return s.request(ctx, protocol.TypeDemoteMember, protocol.MemberInput{MemberID: memberID}, nil)
}

func (s *Session) Remove(ctx context.Context, memberID string) error {
	return s.request(ctx, protocol.TypeRemoveMember, protocol.MemberInput{MemberID: memberID}, nil)
}

// Close drops the current connection. Channels returned by Messages, Roles
// and Members are not closed.
func (s *Session) Close() error {
	s.once.Do(func() { close(s.closed) })

	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.mu.Unlock()

	if c != nil {
		c.close()
	}

	return nil
}

func (s *Session) request(ctx context.Context, typ string, payload any, out any) error {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return errNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	frame, err := c.roundTrip(ctx, typ, payload)
	if err != nil {
		return err
	}

	if frame.Type == protocol.TypeError {
		return decodeError(frame.Payload)
	}

	if out == nil || len(frame.Payload) == 0 {
		return nil
	}

	if err := json.Unmarshal(frame.Payload, out); err != nil {
		return fmt.Errorf("failed to decode ack: %w", err)
	}

	return nil
}

func (s *Session) wsURL() (string, error) {
	u, err := url.Parse(s.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/ws/channels/" + url.PathEscape(s.cfg.ChannelID)

	q := url.Values{}
	q.Set("token", s.cfg.Token)

	s.mu.Lock()
	if !s.lastMsg.Timestamp.IsZero() {
		q.Set("since", strconv.FormatInt(s.lastMsg.Timestamp.UnixMilli(), 10))
	}
	s.mu.Unlock()

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deliverMessage drops messages at or before the last delivered one, which
// happens when a reconnect replays the history window.
func (s *Session) deliverMessage(c *conn, msg domain.Message) {
	s.mu.Lock()
	if !s.lastMsg.Before(msg) {
		s.mu.Unlock()
		return
	}
	s.lastMsg = msg
	s.mu.Unlock()

	select {
	case s.messages <- msg:
	case <-c.done:
	}
}

func (s *Session) deliverRole(role domain.Role) {
	select {
	case s.roles <- role:
	default:
		s.logger.Warn("dropping role update, nobody is reading roles", "role", role.String())
	}
}

func (s *Session) deliverMembers(members []domain.Membership) {
	select {
	case s.members <- members:
	default:
	}
}

func decodeError(payload json.RawMessage) error {
	var out protocol.ErrorOutput
	if err := json.Unmarshal(payload, &out); err != nil {
		return fmt.Errorf("failed to decode error: %w", err)
	}

	if sentinel := domain.FromCode(out.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, out.Message)
	}

	return errors.New(out.Message)
}

func statusError(status int) error {
	switch status {
	case 401, 403:
		return domain.ErrPermissionDenied
	case 404:
		return domain.ErrChannelNotFound
	}

	return nil
}

type subscription struct {
	c *conn
}

func (s *subscription) C() <-chan domain.PlaybackState { return s.c.playback }

func (s *subscription) Err() error { return s.c.error() }

func (s *subscription) Close() error {
	s.c.close()
	return nil
}
