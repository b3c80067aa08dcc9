package playback

import (
	"context"

	"github.com/sharetube/watchparty/internal/domain"
)

// Player is the local video player driven by the synchronizer.
type Player interface {
	Load(videoRef string) error
	Play() error
	Pause() error
	Seek(position float64) error
	Position() float64
	IsPlaying() bool
	VideoRef() string
}

// Publisher is the leader capability: it writes merge-updates to the
// channel's playback state.
type Publisher interface {
	Publish(ctx context.Context, update domain.PublishParams) (domain.PlaybackState, error)
}

// Subscriber is the follower capability.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription yields snapshots in non-decreasing revision order. C is closed
// when the subscription is lost or closed; Err reports the cause of a loss.
type Subscription interface {
	C() <-chan domain.PlaybackState
	Err() error
	Close() error
}

func apply(p Player, cmd Command) error {
	switch cmd.Kind {
	case CommandLoad:
		return p.Load(cmd.VideoRef)
	case CommandPlay:
		return p.Play()
	case CommandPause:
		return p.Pause()
	case CommandSeek:
		return p.Seek(cmd.Position)
	}

	return nil
}
