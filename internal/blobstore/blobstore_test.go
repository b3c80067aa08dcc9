package blobstore

import (
	"testing"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		contentType string
		want        domain.AttachmentKind
	}{
		{"image/png", domain.AttachmentImage},
		{"IMAGE/JPEG", domain.AttachmentImage},
		{"video/mp4", domain.AttachmentVideo},
		{"audio/mpeg", domain.AttachmentAudio},
		{"text/plain; charset=utf-8", domain.AttachmentFile},
		{"application/pdf", domain.AttachmentFile},
		{"", domain.AttachmentFile},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.contentType))
		})
	}
}

func TestKindOfDetected(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	assert.Equal(t, domain.AttachmentImage, KindOf(mimetype.Detect(png).String()))

	text := []byte("just some words")
	assert.Equal(t, domain.AttachmentFile, KindOf(mimetype.Detect(text).String()))
}
