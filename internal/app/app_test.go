package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sharetube/watchparty/internal/client"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

func validConfig() *AppConfig {
	return &AppConfig{
		Secret:         "secret",
		Host:           "127.0.0.1",
		Port:           0,
		LogLevel:       "debug",
		MembersLimit:   20,
		ChannelTTL:     24 * time.Hour,
		Retention:      24 * time.Hour,
		SweepInterval:  time.Hour,
		SweepBatchSize: 500,
		HistoryLimit:   100,
		MaxUploadSize:  25 << 20,
		RedisHost:      "localhost",
		RedisPort:      6379,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{name: "no secret", mutate: func(c *AppConfig) { c.Secret = "" }, wantErr: "secret"},
		{name: "members limit", mutate: func(c *AppConfig) { c.MembersLimit = 0 }, wantErr: "members limit"},
		{name: "history limit", mutate: func(c *AppConfig) { c.HistoryLimit = 0 }, wantErr: "history limit"},
		{name: "retention", mutate: func(c *AppConfig) { c.Retention = 0 }, wantErr: "retention"},
		{name: "sweep interval", mutate: func(c *AppConfig) { c.SweepInterval = -time.Second }, wantErr: "sweep interval"},
		{name: "bucket", mutate: func(c *AppConfig) { c.S3Endpoint = "localhost:9000" }, wantErr: "bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	_, err = NewLogger(&buf, "loud")
	assert.Error(t, err)
}

func newTestApp(t *testing.T) (*App, *AppConfig) {
	t.Helper()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := validConfig()
	cfg.RedisHost = mr.Host()
	cfg.RedisPort = port

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	return a, cfg
}

func TestNewFailsWithoutRedis(t *testing.T) {
	cfg := validConfig()
	cfg.RedisPort = 1

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	a, _ := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("app did not stop")
	}
}

type player struct {
	mu       sync.Mutex
	videoRef string
	position float64
	playing  bool
}

func (p *player) Load(videoRef string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.videoRef, p.position, p.playing = videoRef, 0, false
	return nil
}

func (p *player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	return nil
}

func (p *player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	return nil
}

func (p *player) Seek(position float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = position
	return nil
}

func (p *player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *player) VideoRef() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoRef
}

type peer struct {
	session *client.Session
	player  *player
	sync    *playback.Synchronizer
}

func startPeer(ctx context.Context, t *testing.T, serverURL string, creds client.Credentials) *peer {
	t.Helper()

	session := client.NewSession(&client.Config{
		ServerURL: serverURL,
		ChannelID: creds.ChannelID,
		Token:     creds.Token,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { session.Close() })

	p := &peer{session: session, player: &player{}}
	p.sync = playback.NewSynchronizer(p.player, session, session, slog.New(slog.NewTextHandler(io.Discard, nil)), &playback.Config{
		SeekDebounce: 20 * time.Millisecond,
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.sync.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case role := <-session.Roles():
				p.sync.SetRole(role)
			case <-ctx.Done():
				return
			}
		}
	}()
	t.Cleanup(wg.Wait)

	return p
}

func TestWatchParty(t *testing.T) {
	a, _ := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	// cancelled before the peers' cleanups wait for their goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adminCreds, err := client.CreateChannel(ctx, srv.URL, "movie night", "alice")
	require.NoError(t, err)
	memberCreds, err := client.JoinChannel(ctx, srv.URL, adminCreds.ChannelID, "bob")
	require.NoError(t, err)

	leader := startPeer(ctx, t, srv.URL, adminCreds)
	follower := startPeer(ctx, t, srv.URL, memberCreds)

	require.Eventually(t, func() bool { return leader.sync.Role() == domain.RoleAdmin }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return follower.sync.State() == playback.StateIdle }, waitFor, 5*time.Millisecond)

	// the leader picks a video
	leader.player.Load("v1")
	leader.player.Play()
	leader.sync.OnVideoChanged("v1")

	require.Eventually(t, func() bool {
		return follower.player.VideoRef() == "v1" && follower.player.IsPlaying()
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, playback.StateFollowing, follower.sync.State())
	assert.Equal(t, playback.StateLeading, leader.sync.State())

	// scrubbing is coalesced into one seek
	for _, pos := range []float64{10, 30, 60} {
		leader.sync.OnSeek(pos)
	}
	require.Eventually(t, func() bool { return follower.player.Position() == 60 }, waitFor, 5*time.Millisecond)

	leader.player.Pause()
	leader.sync.OnPause(61)
	require.Eventually(t, func() bool { return !follower.player.IsPlaying() }, waitFor, 5*time.Millisecond)

	// chat
	sent, err := follower.session.SendMessage(ctx, "hello-1", "hi all", nil)
	require.NoError(t, err)
	select {
	case msg := <-leader.session.Messages():
		assert.Equal(t, sent.ID, msg.ID)
		assert.Equal(t, "bob", msg.SenderDisplayName)
	case <-time.After(waitFor):
		t.Fatal("message not delivered")
	}

	// hand over leadership
	require.NoError(t, leader.session.Promote(ctx, memberCreds.Identity))
	require.NoError(t, follower.session.Demote(ctx, adminCreds.Identity))
	require.Eventually(t, func() bool {
		return follower.sync.Role() == domain.RoleAdmin && leader.sync.Role() == domain.RoleMember
	}, waitFor, 5*time.Millisecond)

	follower.player.Play()
	follower.sync.OnPlay(61)
	require.Eventually(t, func() bool { return leader.player.IsPlaying() }, waitFor, 5*time.Millisecond)
}
