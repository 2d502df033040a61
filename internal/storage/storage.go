package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// Metadata key under which the content hash of an uploaded file is stored.
const MetaContentHash = "content-hash"

// FileStorage is the media store supporting files are uploaded to.
type FileStorage interface {
	// PutObject uploads body under objectKey with the given user metadata.
	PutObject(ctx context.Context, objectKey, contentType string, body io.Reader, size int64, metadata map[string]string) error

	// ObjectMetadata returns ErrObjectNotFound if nothing is stored under objectKey.
	ObjectMetadata(ctx context.Context, objectKey string) (*ObjectMetadata, error)

	// PublicURL is the stable URL a published post links to.
	PublicURL(objectKey string) string

	// GeneratePresignedDownloadURL creates a temporary URL that allows GET requests
	// for downloading/viewing an object directly from the storage provider.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)

	// DeleteObject removes an object from the storage provider.
	DeleteObject(ctx context.Context, objectKey string) error
}

type ObjectMetadata struct {
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
	Metadata     map[string]string
}

var ErrObjectNotFound = errors.New("object not found in storage")
