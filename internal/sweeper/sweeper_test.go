package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
	channelRedis "github.com/sharetube/watchparty/internal/repository/channel/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRetention(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()
	repo := channelRedis.NewRepo(rc, slog.Default(), 48*time.Hour)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.CreateChannel(ctx, &channel.CreateChannelParams{
		ChannelID:          "c1",
		Name:               "c1",
		CreatorID:          "alice",
		CreatorDisplayName: "alice",
		Capacity:           domain.DefaultCapacity,
		CreatedAt:          now.Add(-30 * time.Hour),
		ExpiresAt:          now.Add(time.Hour),
	}))

	for _, age := range []time.Duration{25 * time.Hour, 23 * time.Hour, time.Minute} {
		_, err := repo.AppendMessage(ctx, &channel.AppendMessageParams{
			Message: domain.Message{
				ID:        age.String(),
				ChannelID: "c1",
				SenderID:  "alice",
				Text:      age.String(),
				Timestamp: now.Add(-age),
			},
		})
		require.NoError(t, err)
	}

	s := New(repo, slog.Default(), &Config{Retention: 24 * time.Hour})
	s.now = func() time.Time { return now }

	res := s.Sweep(ctx)
	assert.Equal(t, Result{Channels: 1, Removed: 1}, res)

	msgs, err := repo.GetRecentMessages(ctx, "c1", time.Time{}, 100)
	require.NoError(t, err)
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{(23 * time.Hour).String(), time.Minute.String()}, texts)

	// a second run has nothing left to do
	assert.Equal(t, Result{Channels: 1}, s.Sweep(ctx))
}

func TestSweepForgetsVanishedChannels(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()
	repo := channelRedis.NewRepo(rc, slog.Default(), time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.CreateChannel(ctx, &channel.CreateChannelParams{
		ChannelID: "gone",
		Name:      "gone",
		CreatorID: "alice",
		Capacity:  domain.DefaultCapacity,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	_, err := repo.AppendMessage(ctx, &channel.AppendMessageParams{
		Message: domain.Message{ID: "m", ChannelID: "gone", Text: "hi", Timestamp: time.Now()},
	})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	s := New(repo, slog.Default(), &Config{Retention: 24 * time.Hour})
	s.Sweep(ctx)

	ids, err := repo.GetChannelIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.False(t, mr.Exists("channel:gone:messages"))
}

type fakeRepo struct {
	seqs      map[string][]string
	failBatch int
	batches   [][]string
}

func (f *fakeRepo) GetChannelIDs(context.Context) ([]string, error) {
	return []string{"broken", "ok"}, nil
}

func (f *fakeRepo) GetChannel(_ context.Context, channelID string) (domain.Channel, error) {
	return domain.Channel{ID: channelID}, nil
}

func (f *fakeRepo) ForgetChannel(context.Context, string) error {
	return nil
}

func (f *fakeRepo) GetExpiredMessageSeqs(_ context.Context, channelID string, _ time.Time) ([]string, error) {
	return f.seqs[channelID], nil
}

func (f *fakeRepo) RemoveMessages(_ context.Context, params *channel.RemoveMessagesParams) error {
	if params.ChannelID == "broken" && len(f.batches) == f.failBatch {
		return errors.New("connection reset")
	}
	f.batches = append(f.batches, params.Seqs)

	return nil
}

func TestSweepBatches(t *testing.T) {
	seqs := make([]string, 1200)
	for i := range seqs {
		seqs[i] = fmt.Sprintf("%019d", i)
	}

	repo := &fakeRepo{
		seqs:      map[string][]string{"broken": seqs, "ok": seqs[:10]},
		failBatch: 1,
	}
	s := New(repo, slog.Default(), &Config{Retention: time.Hour})

	res := s.Sweep(context.Background())

	// the first batch of the broken channel stays committed, the rest of it
	// is skipped, other channels are still swept
	assert.Equal(t, Result{Channels: 2, Removed: DefaultBatchSize + 10, Failed: 1}, res)
	require.Len(t, repo.batches, 2)
	assert.Len(t, repo.batches[0], DefaultBatchSize)
	assert.Equal(t, seqs[:10], repo.batches[1])
}

func TestRunStopsOnCancel(t *testing.T) {
	repo := &fakeRepo{seqs: map[string][]string{}}
	s := New(repo, slog.Default(), &Config{Retention: time.Hour, Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
