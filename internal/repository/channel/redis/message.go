package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
	"github.com/vmihailenco/msgpack/v5"
)

func (r repo) getMessagesKey(channelID string) string {
	return "channel:" + channelID + ":messages"
}

func (r repo) getMessageBodiesKey(channelID string) string {
	return "channel:" + channelID + ":message-bodies"
}

func (r repo) getMessageSeqKey(channelID string) string {
	return "channel:" + channelID + ":message-seq"
}

func (r repo) getClientMessageKey(channelID, clientMessageID string) string {
	return "channel:" + channelID + ":client-message:" + clientMessageID
}

func (r repo) getMessagesTopic(channelID string) string {
	return "channel:" + channelID + ":messages:events"
}

func (r repo) getMessageClockKey(channelID string) string {
	return "channel:" + channelID + ":message-clock"
}

// AppendMessage stores params.Message under the next insertion sequence and
// publishes it. The timestamp is truncated to milliseconds and raised to the
// channel's latest one if needed, so (timestamp, seq) grows with every commit
// and live subscribers see messages in that order. The sequence, the clock,
// the stored entry and the notification commit in one transaction. When the
// client message id was already used in this channel the stored original is
// returned together with channel.ErrDuplicateMessage.
func (r repo) AppendMessage(ctx context.Context, params *channel.AppendMessageParams) (domain.Message, error) {
	r.logger.DebugContext(ctx, "called", "params", params)
	channelID := params.Message.ChannelID
	seqCounterKey := r.getMessageSeqKey(channelID)
	clockKey := r.getMessageClockKey(channelID)
	messagesKey := r.getMessagesKey(channelID)
	bodiesKey := r.getMessageBodiesKey(channelID)

	watched := []string{seqCounterKey, clockKey}
	var dedupKey string
	if params.Message.ClientMessageID != "" {
		dedupKey = r.getClientMessageKey(channelID, params.Message.ClientMessageID)
		watched = append(watched, dedupKey)
	}

	var (
		msg          domain.Message
		duplicateSeq string
	)
	txf := func(tx *redis.Tx) error {
		if dedupKey != "" {
			seqKey, err := tx.Get(ctx, dedupKey).Result()
			if err == nil {
				duplicateSeq = seqKey
				return channel.ErrDuplicateMessage
			}
			if !errors.Is(err, redis.Nil) {
				return err
			}
		}

		lastSeq, err := tx.Get(ctx, seqCounterKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		lastMilli, err := tx.Get(ctx, clockKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		msg = params.Message
		msg.Seq = lastSeq + 1
		msg.Timestamp = time.UnixMilli(max(msg.Timestamp.UnixMilli(), lastMilli)).UTC()
		seqKey := domain.SeqKey(msg.Seq)

		payload, err := msgpack.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, seqCounterKey, msg.Seq, r.expireDuration)
			pipe.Set(ctx, clockKey, msg.Timestamp.UnixMilli(), r.expireDuration)
			if dedupKey != "" {
				pipe.Set(ctx, dedupKey, seqKey, params.DedupTTL)
			}
			pipe.ZAdd(ctx, messagesKey, redis.Z{
				Score:  float64(msg.Timestamp.UnixMilli()),
				Member: seqKey,
			})
			pipe.HSet(ctx, bodiesKey, seqKey, payload)
			pipe.Expire(ctx, messagesKey, r.expireDuration)
			pipe.Expire(ctx, bodiesKey, r.expireDuration)
			pipe.Publish(ctx, r.getMessagesTopic(channelID), payload)

			return nil
		})

		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rc.Watch(ctx, txf, watched...)
		switch {
		case err == nil:
			return msg, nil
		case errors.Is(err, channel.ErrDuplicateMessage):
			return r.getDuplicate(ctx, channelID, duplicateSeq)
		case errors.Is(err, redis.TxFailedErr):
			continue
		}

		r.logger.DebugContext(ctx, "returned", "error", err)
		return domain.Message{}, fmt.Errorf("failed to append message: %w", err)
	}

	return domain.Message{}, channel.ErrTxConflict
}

func (r repo) getDuplicate(ctx context.Context, channelID, seqKey string) (domain.Message, error) {
	payload, err := r.rc.HGet(ctx, r.getMessageBodiesKey(channelID), seqKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// the original was swept already
			return domain.Message{}, channel.ErrDuplicateMessage
		}

		return domain.Message{}, err
	}

	var msg domain.Message
	if err := msgpack.Unmarshal([]byte(payload), &msg); err != nil {
		return domain.Message{}, fmt.Errorf("failed to decode message: %w", err)
	}

	return msg, channel.ErrDuplicateMessage
}

// GetRecentMessages returns up to limit of the newest messages with a
// timestamp at or after since, in ascending (timestamp, seq) order. A zero
// since means no lower bound.
func (r repo) GetRecentMessages(ctx context.Context, channelID string, since time.Time, limit int) ([]domain.Message, error) {
	r.logger.DebugContext(ctx, "called", "channel_id", channelID, "since", since, "limit", limit)
	minScore := "-inf"
	if !since.IsZero() {
		minScore = strconv.FormatInt(since.UnixMilli(), 10)
	}

	seqs, err := r.rc.ZRevRangeByScore(ctx, r.getMessagesKey(channelID), &redis.ZRangeBy{
		Min:   minScore,
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	if len(seqs) == 0 {
		return []domain.Message{}, nil
	}

	slices.Reverse(seqs)
	bodies, err := r.rc.HMGet(ctx, r.getMessageBodiesKey(channelID), seqs...).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	messages := make([]domain.Message, 0, len(bodies))
	for i, body := range bodies {
		payload, ok := body.(string)
		if !ok {
			// swept between the two reads
			r.logger.DebugContext(ctx, "message body missing", "seq", seqs[i])
			continue
		}

		var msg domain.Message
		if err := msgpack.Unmarshal([]byte(payload), &msg); err != nil {
			r.logger.WarnContext(ctx, "failed to decode message", "seq", seqs[i], "error", err)
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// GetExpiredMessageSeqs lists the sequence keys of messages strictly older
// than before, oldest first.
func (r repo) GetExpiredMessageSeqs(ctx context.Context, channelID string, before time.Time) ([]string, error) {
	r.logger.DebugContext(ctx, "called", "channel_id", channelID, "before", before)
	seqs, err := r.rc.ZRangeByScore(ctx, r.getMessagesKey(channelID), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	return seqs, nil
}

// RemoveMessages deletes one batch of messages in a single transaction.
func (r repo) RemoveMessages(ctx context.Context, params *channel.RemoveMessagesParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	if len(params.Seqs) == 0 {
		return nil
	}

	members := make([]interface{}, len(params.Seqs))
	for i, seq := range params.Seqs {
		members[i] = seq
	}

	pipe := r.rc.TxPipeline()
	pipe.ZRem(ctx, r.getMessagesKey(params.ChannelID), members...)
	pipe.HDel(ctx, r.getMessageBodiesKey(params.ChannelID), params.Seqs...)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to remove messages: %w", err)
	}

	return nil
}

func (r repo) SubscribeMessages(ctx context.Context, channelID string) (channel.Stream[domain.Message], error) {
	r.logger.DebugContext(ctx, "called", "channel_id", channelID)
	s, err := subscribe[domain.Message](ctx, r.rc, r.logger, r.getMessagesTopic(channelID))
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	return s, nil
}
