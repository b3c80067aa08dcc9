package channel

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
)

type AppendMessageParams struct {
	ClientMessageID string
	Text            *string
	Attachment      *domain.Attachment
	SenderID        string
	ChannelID       string
}

// AppendMessage stores a chat message. A retried send carrying the same
// ClientMessageID returns the message stored by the first attempt.
func (s service) AppendMessage(ctx context.Context, params *AppendMessageParams) (domain.Message, error) {
	if err := validateAppendMessage(params); err != nil {
		return domain.Message{}, err
	}

	sender, err := s.channelRepo.GetMember(ctx, params.ChannelID, params.SenderID)
	if err != nil {
		if errors.Is(err, channel.ErrMemberNotFound) {
			return domain.Message{}, domain.ErrNotAMember
		}

		return domain.Message{}, mapRepoErr(err)
	}

	if _, err := s.getWritableChannel(ctx, params.ChannelID); err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:                uuid.NewString(),
		ClientMessageID:   params.ClientMessageID,
		ChannelID:         params.ChannelID,
		SenderID:          params.SenderID,
		SenderDisplayName: sender.DisplayName,
		Attachment:        params.Attachment,
		// the store truncates it to milliseconds and never lets it fall
		// behind the channel's latest message
		Timestamp:         s.now().UTC(),
	}
	if params.Text != nil {
		msg.Text = *params.Text
	}

	stored, err := s.channelRepo.AppendMessage(ctx, &channel.AppendMessageParams{
		Message:  msg,
		DedupTTL: s.retention,
	})
	if err != nil {
		if errors.Is(err, channel.ErrDuplicateMessage) && stored.ID != "" {
			s.logger.DebugContext(ctx, "duplicate client message id", "client_message_id", params.ClientMessageID)
			return stored, nil
		}

		s.logger.InfoContext(ctx, "failed to append message", "error", err)
		return domain.Message{}, mapRepoErr(err)
	}

	return stored, nil
}

type SubscribeMessagesParams struct {
	ChannelID string
	Identity  string
	// Since bounds the initial window from below. Zero means the whole
	// retention window.
	Since time.Time
}

// SubscribeMessages emits at most the history limit of the newest messages in
// ascending (timestamp, seq) order and then live messages. Resubscribing
// delivers the current window again.
func (s service) SubscribeMessages(ctx context.Context, params *SubscribeMessagesParams) (*Subscription[domain.Message], error) {
	if _, err := s.checkIfMember(ctx, params.ChannelID, params.Identity); err != nil {
		return nil, err
	}

	stream, err := s.channelRepo.SubscribeMessages(ctx, params.ChannelID)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to subscribe to messages", "error", err)
		return nil, mapRepoErr(err)
	}

	since := params.Since
	if floor := s.now().Add(-s.retention); since.Before(floor) {
		since = floor
	}

	history, err := s.channelRepo.GetRecentMessages(ctx, params.ChannelID, since, s.historyLimit)
	if err != nil {
		stream.Close()
		s.logger.InfoContext(ctx, "failed to get recent messages", "error", err)
		return nil, mapRepoErr(err)
	}

	var last domain.Message
	if len(history) > 0 {
		last = history[len(history)-1]
	}

	return newSubscription(history, stream, func(next domain.Message) bool {
		if !last.Before(next) {
			return false
		}
		last = next

		return true
	}), nil
}
