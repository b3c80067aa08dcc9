package domain

import "time"

// PlaybackState is the authoritative per-channel player record. Every accepted
// publish produces a new value with a strictly greater Revision.
type PlaybackState struct {
	ChannelID       string    `json:"channel_id" msgpack:"channel_id"`
	VideoRef        string    `json:"video_ref" msgpack:"video_ref"`
	Playing         bool      `json:"playing" msgpack:"playing"`
	PositionSeconds float64   `json:"position_seconds" msgpack:"position_seconds"`
	Revision        int64     `json:"revision" msgpack:"revision"`
	PublishedBy     string    `json:"published_by" msgpack:"published_by"`
	PublishedAt     time.Time `json:"published_at" msgpack:"published_at"`
}

// HasVideo reports whether a video is loaded.
func (s PlaybackState) HasVideo() bool {
	return s.VideoRef != ""
}

// PublishParams is a merge-update: nil fields inherit the previous value.
// Setting a VideoRef different from the current one resets the position to 0
// and starts playback.
type PublishParams struct {
	VideoRef        *string  `json:"video_ref,omitempty"`
	Playing         *bool    `json:"playing,omitempty"`
	PositionSeconds *float64 `json:"position_seconds,omitempty"`
}

// Merge applies p on top of prev and returns the next state without touching
// Revision or publisher metadata.
func (p PublishParams) Merge(prev PlaybackState) PlaybackState {
	next := prev
	if p.VideoRef != nil && *p.VideoRef != prev.VideoRef {
		next.VideoRef = *p.VideoRef
		next.PositionSeconds = 0
		next.Playing = true

		return next
	}

	if p.Playing != nil {
		next.Playing = *p.Playing
	}
	if p.PositionSeconds != nil {
		next.PositionSeconds = *p.PositionSeconds
	}

	return next
}
