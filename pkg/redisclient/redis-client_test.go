package redisclient

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rc, err := NewRedisClient(context.Background(), &Config{
		Host: mr.Host(),
		Port: mustPort(t, mr.Port()),
	})
	require.NoError(t, err)
	defer rc.Close()

	assert.NoError(t, rc.Set(context.Background(), "k", "v", 0).Err())
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port := mustPort(t, mr.Port())
	mr.Close()

	_, err := NewRedisClient(context.Background(), &Config{Host: "127.0.0.1", Port: port})
	assert.Error(t, err)
}

func mustPort(t *testing.T, s string) int {
	t.Helper()
	port, err := strconv.Atoi(s)
	require.NoError(t, err)

	return port
}
