package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sharetube/watchparty/internal/domain"
)

// sniffLen is how much of an upload is buffered for type detection.
const sniffLen = 3072

type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// PublicURL prefixes object keys in returned references. Empty means the
	// bare key is the reference.
	PublicURL string
}

type Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// New connects to the object store and creates the bucket when missing.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Upload stores r under the channel's prefix and returns the attachment
// reference. The kind is detected from the content, not from a file name.
func (s *Store) Upload(ctx context.Context, channelID string, r io.Reader, size int64) (domain.Attachment, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return domain.Attachment{}, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	mime := mimetype.Detect(head)
	key := fmt.Sprintf("channels/%s/%s%s", channelID, uuid.NewString(), mime.Extension())

	if _, err := s.client.PutObject(ctx, s.bucket, key, io.MultiReader(bytes.NewReader(head), r), size, minio.PutObjectOptions{
		ContentType: mime.String(),
	}); err != nil {
		return domain.Attachment{}, fmt.Errorf("%w: failed to put object: %w", domain.ErrTransient, err)
	}

	ref := key
	if s.publicURL != "" {
		ref = s.publicURL + "/" + key
	}

	return domain.Attachment{
		Ref:  ref,
		Kind: KindOf(mime.String()),
	}, nil
}

// KindOf classifies a MIME type. Parameters such as charset are ignored.
func KindOf(contentType string) domain.AttachmentKind {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return domain.AttachmentImage
	case strings.HasPrefix(contentType, "video/"):
		return domain.AttachmentVideo
	case strings.HasPrefix(contentType, "audio/"):
		return domain.AttachmentAudio
	}

	return domain.AttachmentFile
}
