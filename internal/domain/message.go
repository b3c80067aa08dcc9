package domain

import (
	"fmt"
	"time"
)

type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentAudio AttachmentKind = "audio"
	AttachmentFile  AttachmentKind = "file"
)

func (k AttachmentKind) Valid() bool {
	switch k {
	case AttachmentImage, AttachmentVideo, AttachmentAudio, AttachmentFile:
		return true
	}

	return false
}

// Attachment is a reference produced by the blob store. The message stream
// never sees the payload itself.
type Attachment struct {
	Ref  string         `json:"ref" msgpack:"ref"`
	Kind AttachmentKind `json:"kind" msgpack:"kind"`
}

// Message is a chat entry. It carries text, an attachment, or both.
type Message struct {
	ID                string      `json:"id" msgpack:"id"`
	ClientMessageID   string      `json:"client_message_id,omitempty" msgpack:"client_message_id"`
	ChannelID         string      `json:"channel_id" msgpack:"channel_id"`
	SenderID          string      `json:"sender_id" msgpack:"sender_id"`
	SenderDisplayName string      `json:"sender_display_name" msgpack:"sender_display_name"`
	Text              string      `json:"text,omitempty" msgpack:"text"`
	Attachment        *Attachment `json:"attachment,omitempty" msgpack:"attachment"`
	Timestamp         time.Time   `json:"timestamp" msgpack:"timestamp"`
	Seq               int64       `json:"seq" msgpack:"seq"`
}

// Before orders messages by (Timestamp, Seq).
func (m Message) Before(other Message) bool {
	if !m.Timestamp.Equal(other.Timestamp) {
		return m.Timestamp.Before(other.Timestamp)
	}

	return m.Seq < other.Seq
}

// SeqKey is the zero padded sequence used as the sorted-set member so that
// lexicographic tie-breaks follow insertion order.
func SeqKey(seq int64) string {
	return fmt.Sprintf("%019d", seq)
}
