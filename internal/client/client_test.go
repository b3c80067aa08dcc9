package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/controller"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/playback"
	channelRedis "github.com/sharetube/watchparty/internal/repository/channel/redis"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	"github.com/sharetube/watchparty/internal/service/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newServer(t *testing.T) string {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	svc := channel.NewService(
		channelRedis.NewRepo(rc, discard, 24*time.Hour),
		inmemory.NewRepo(discard),
		discard,
		&channel.Config{
			Secret:       "secret",
			MembersLimit: domain.DefaultCapacity,
			ChannelTTL:   domain.DefaultChannelTTL,
			Retention:    24 * time.Hour,
			HistoryLimit: 100,
		},
	)
	srv := httptest.NewServer(controller.NewController(svc, nil, discard, &controller.Config{}).GetMux())
	t.Cleanup(srv.Close)

	return srv.URL
}

func newSession(t *testing.T, serverURL string, creds Credentials) *Session {
	t.Helper()
	s := NewSession(&Config{ServerURL: serverURL, ChannelID: creds.ChannelID, Token: creds.Token}, discard)
	t.Cleanup(func() { s.Close() })
	return s
}

func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out")
	}

	var zero T
	return zero
}

func setup(t *testing.T) (string, Credentials, Credentials) {
	t.Helper()
	ctx := context.Background()
	serverURL := newServer(t)

	admin, err := CreateChannel(ctx, serverURL, "movie night", "alice")
	require.NoError(t, err)
	member, err := JoinChannel(ctx, serverURL, admin.ChannelID, "bob")
	require.NoError(t, err)

	return serverURL, admin, member
}

func TestJoinMissingChannel(t *testing.T) {
	serverURL := newServer(t)

	_, err := JoinChannel(context.Background(), serverURL, "missing", "bob")
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestPublishAndSubscribe(t *testing.T) {
	ctx := context.Background()
	serverURL, adminCreds, memberCreds := setup(t)

	admin := newSession(t, serverURL, adminCreds)
	member := newSession(t, serverURL, memberCreds)

	adminSub, err := admin.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, next(t, admin.Roles()))
	assert.Equal(t, int64(0), next(t, adminSub.C()).Revision)

	memberSub, err := member.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, next(t, member.Roles()))
	assert.Equal(t, int64(0), next(t, memberSub.C()).Revision)

	ref := "v1"
	state, err := admin.Publish(ctx, domain.PublishParams{VideoRef: &ref})
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.Revision)

	got := next(t, memberSub.C())
	assert.Equal(t, "v1", got.VideoRef)
	assert.Equal(t, int64(1), got.Revision)

	playing := false
	_, err = member.Publish(ctx, domain.PublishParams{Playing: &playing})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestPublishWithoutConnection(t *testing.T) {
	s := NewSession(&Config{ServerURL: "http://127.0.0.1:1"}, discard)

	ref := "v1"
	_, err := s.Publish(context.Background(), domain.PublishParams{VideoRef: &ref})
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestSubscribeWithBadToken(t *testing.T) {
	serverURL, adminCreds, _ := setup(t)
	adminCreds.Token = "garbage"

	_, err := newSession(t, serverURL, adminCreds).Subscribe(context.Background())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestMessagesAcrossReconnect(t *testing.T) {
	ctx := context.Background()
	serverURL, adminCreds, memberCreds := setup(t)

	admin := newSession(t, serverURL, adminCreds)
	member := newSession(t, serverURL, memberCreds)
	_, err := admin.Subscribe(ctx)
	require.NoError(t, err)
	_, err = member.Subscribe(ctx)
	require.NoError(t, err)

	first, err := admin.SendMessage(ctx, "c1", "hello", nil)
	require.NoError(t, err)
	// a retried send returns the stored message
	retried, err := admin.SendMessage(ctx, "c1", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, retried.ID)

	assert.Equal(t, first.ID, next(t, member.Messages()).ID)

	_, err = member.Subscribe(ctx)
	require.NoError(t, err)

	second, err := admin.SendMessage(ctx, "c2", "again", nil)
	require.NoError(t, err)

	// the replayed window does not redeliver the first message
	assert.Equal(t, second.ID, next(t, member.Messages()).ID)

	_, err = admin.SendMessage(ctx, "c3", "", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRoleChanges(t *testing.T) {
	ctx := context.Background()
	serverURL, adminCreds, memberCreds := setup(t)

	admin := newSession(t, serverURL, adminCreds)
	member := newSession(t, serverURL, memberCreds)
	_, err := admin.Subscribe(ctx)
	require.NoError(t, err)
	memberSub, err := member.Subscribe(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.RoleMember, next(t, member.Roles()))

	require.NoError(t, admin.Promote(ctx, memberCreds.Identity))
	assert.Equal(t, domain.RoleAdmin, next(t, member.Roles()))

	require.NoError(t, admin.Demote(ctx, memberCreds.Identity))
	assert.Equal(t, domain.RoleMember, next(t, member.Roles()))

	require.NoError(t, admin.Remove(ctx, memberCreds.Identity))

	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-memberSub.C():
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, waitFor, 5*time.Millisecond)
	assert.ErrorIs(t, memberSub.Err(), domain.ErrNotAMember)
	assert.ErrorIs(t, memberSub.Err(), domain.ErrPermissionDenied)
}

func TestDrivesSynchronizer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serverURL, adminCreds, memberCreds := setup(t)

	admin := newSession(t, serverURL, adminCreds)
	_, err := admin.Subscribe(ctx)
	require.NoError(t, err)

	member := newSession(t, serverURL, memberCreds)
	player := &recordingPlayer{}
	sync := playback.NewSynchronizer(player, member, member, discard, &playback.Config{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		sync.Run(ctx)
	}()

	require.Eventually(t, func() bool { return sync.State() == playback.StateIdle }, waitFor, 5*time.Millisecond)

	ref := "v1"
	_, err = admin.Publish(ctx, domain.PublishParams{VideoRef: &ref})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return player.VideoRef() == "v1" && player.IsPlaying() }, waitFor, 5*time.Millisecond)
	assert.Equal(t, playback.StateFollowing, sync.State())

	cancel()
	<-done
}
