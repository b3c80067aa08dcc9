package ctxlogger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	record := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	buf.Reset()

	return record
}

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ContextHandler{slog.NewJSONHandler(&buf, nil)})

	ctx := AppendCtx(context.Background(), slog.String("request_id", "r1"))
	child := AppendCtx(ctx, slog.String("channel_id", "c1"))

	logger.InfoContext(child, "child")
	record := decodeRecord(t, &buf)
	assert.Equal(t, "r1", record["request_id"])
	assert.Equal(t, "c1", record["channel_id"])

	logger.InfoContext(ctx, "parent")
	record = decodeRecord(t, &buf)
	assert.Equal(t, "r1", record["request_id"])
	assert.NotContains(t, record, "channel_id")
}

func TestContextHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ContextHandler{slog.NewJSONHandler(&buf, nil)}).With("component", "sweeper")

	logger.InfoContext(AppendCtx(context.Background(), slog.Int("batch", 2)), "swept")
	record := decodeRecord(t, &buf)
	assert.Equal(t, "sweeper", record["component"])
	assert.EqualValues(t, 2, record["batch"])
}
