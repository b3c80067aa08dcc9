package channel

import (
	"context"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
)

func (s service) ReadPlayback(ctx context.Context, channelID, identity string) (domain.PlaybackState, error) {
	if _, err := s.checkIfMember(ctx, channelID, identity); err != nil {
		return domain.PlaybackState{}, err
	}

	state, err := s.channelRepo.GetPlayback(ctx, channelID)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get playback", "error", err)
		return domain.PlaybackState{}, mapRepoErr(err)
	}

	return state, nil
}

type PublishPlaybackParams struct {
	VideoRef        *string
	Playing         *bool
	PositionSeconds *float64
	SenderID        string
	ChannelID       string
}

// PublishPlayback merges the update into the channel's playback state. The
// sender's role is checked by the store at write time, so a member demoted
// concurrently gets domain.ErrPermissionDenied and the revision is unchanged.
func (s service) PublishPlayback(ctx context.Context, params *PublishPlaybackParams) (domain.PlaybackState, error) {
	if err := validatePublishPlayback(params); err != nil {
		return domain.PlaybackState{}, err
	}

	if _, err := s.checkIfMember(ctx, params.ChannelID, params.SenderID); err != nil {
		return domain.PlaybackState{}, err
	}

	if _, err := s.getWritableChannel(ctx, params.ChannelID); err != nil {
		return domain.PlaybackState{}, err
	}

	state, err := s.channelRepo.PublishPlayback(ctx, &channel.PublishPlaybackParams{
		ChannelID:   params.ChannelID,
		PublisherID: params.SenderID,
		Update: domain.PublishParams{
			VideoRef:        params.VideoRef,
			Playing:         params.Playing,
			PositionSeconds: params.PositionSeconds,
		},
		PublishedAt: s.now(),
	})
	if err != nil {
		s.logger.InfoContext(ctx, "failed to publish playback", "error", err)
		return domain.PlaybackState{}, mapRepoErr(err)
	}

	s.logger.DebugContext(ctx, "playback published", "revision", state.Revision)
	return state, nil
}

// SubscribePlayback emits the current state first and then every later
// revision. Revisions never repeat or go backwards within one subscription.
func (s service) SubscribePlayback(ctx context.Context, channelID, identity string) (*Subscription[domain.PlaybackState], error) {
	if _, err := s.checkIfMember(ctx, channelID, identity); err != nil {
		return nil, err
	}

	// subscribe before reading so nothing published in between is missed
	stream, err := s.channelRepo.SubscribePlayback(ctx, channelID)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to subscribe to playback", "error", err)
		return nil, mapRepoErr(err)
	}

	state, err := s.channelRepo.GetPlayback(ctx, channelID)
	if err != nil {
		stream.Close()
		s.logger.InfoContext(ctx, "failed to get playback", "error", err)
		return nil, mapRepoErr(err)
	}

	last := state.Revision
	return newSubscription([]domain.PlaybackState{state}, stream, func(next domain.PlaybackState) bool {
		if next.Revision <= last {
			return false
		}
		last = next.Revision

		return true
	}), nil
}
