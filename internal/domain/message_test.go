package domain

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageOrder(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "c", Timestamp: ts, Seq: 11},
		{ID: "d", Timestamp: ts.Add(time.Second), Seq: 3},
		{ID: "a", Timestamp: ts.Add(-time.Second), Seq: 12},
		{ID: "b", Timestamp: ts, Seq: 10},
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.False(t, msgs[1].Before(msgs[1]))
}

func TestSeqKeySortsLikeSeq(t *testing.T) {
	assert.Less(t, SeqKey(9), SeqKey(10))
	assert.Len(t, SeqKey(1), 19)
}

func TestAttachmentKindValid(t *testing.T) {
	for _, k := range []AttachmentKind{AttachmentImage, AttachmentVideo, AttachmentAudio, AttachmentFile} {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, AttachmentKind("pdf").Valid())
}

func TestChannelIsExpired(t *testing.T) {
	now := time.Now()
	c := Channel{ExpiresAt: now}
	assert.True(t, c.IsExpired(now))
	assert.False(t, c.IsExpired(now.Add(-time.Second)))
	assert.False(t, Channel{}.IsExpired(now))
}
