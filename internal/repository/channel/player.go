package channel

import (
	"time"

	"github.com/sharetube/watchparty/internal/domain"
)

type Playback struct {
	VideoRef        string  `redis:"video_ref"`
	Playing         bool    `redis:"playing"`
	PositionSeconds float64 `redis:"position_seconds"`
	Revision        int64   `redis:"revision"`
	PublishedBy     string  `redis:"published_by"`
	PublishedAt     int64   `redis:"published_at"`
}

func NewPlayback(s domain.PlaybackState) Playback {
	var publishedAt int64
	if !s.PublishedAt.IsZero() {
		publishedAt = s.PublishedAt.UnixMilli()
	}

	return Playback{
		VideoRef:        s.VideoRef,
		Playing:         s.Playing,
		PositionSeconds: s.PositionSeconds,
		Revision:        s.Revision,
		PublishedBy:     s.PublishedBy,
		PublishedAt:     publishedAt,
	}
}

func (p Playback) ToDomain(channelID string) domain.PlaybackState {
	var publishedAt time.Time
	if p.PublishedAt != 0 {
		publishedAt = time.UnixMilli(p.PublishedAt).UTC()
	}

	return domain.PlaybackState{
		ChannelID:       channelID,
		VideoRef:        p.VideoRef,
		Playing:         p.Playing,
		PositionSeconds: p.PositionSeconds,
		Revision:        p.Revision,
		PublishedBy:     p.PublishedBy,
		PublishedAt:     publishedAt,
	}
}
