package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T {
	return &v
}

func TestPublishParamsMerge(t *testing.T) {
	prev := PlaybackState{
		ChannelID:       "c",
		VideoRef:        "v0",
		Playing:         false,
		PositionSeconds: 42,
		Revision:        7,
		PublishedBy:     "alice",
	}

	tests := []struct {
		name   string
		params PublishParams
		want   PlaybackState
	}{
		{
			name:   "empty update keeps everything",
			params: PublishParams{},
			want:   prev,
		},
		{
			name:   "play only",
			params: PublishParams{Playing: ptr(true)},
			want:   PlaybackState{ChannelID: "c", VideoRef: "v0", Playing: true, PositionSeconds: 42, Revision: 7, PublishedBy: "alice"},
		},
		{
			name:   "seek only",
			params: PublishParams{PositionSeconds: ptr(12.5)},
			want:   PlaybackState{ChannelID: "c", VideoRef: "v0", PositionSeconds: 12.5, Revision: 7, PublishedBy: "alice"},
		},
		{
			name:   "new video resets position and starts playing",
			params: PublishParams{VideoRef: ptr("v1"), Playing: ptr(false), PositionSeconds: ptr(99.0)},
			want:   PlaybackState{ChannelID: "c", VideoRef: "v1", Playing: true, PositionSeconds: 0, Revision: 7, PublishedBy: "alice"},
		},
		{
			name:   "same video is a regular merge",
			params: PublishParams{VideoRef: ptr("v0"), PositionSeconds: ptr(1.0)},
			want:   PlaybackState{ChannelID: "c", VideoRef: "v0", PositionSeconds: 1, Revision: 7, PublishedBy: "alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.params.Merge(prev))
		})
	}
}
