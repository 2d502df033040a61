// Package blogclient is the transport to the remote blog: media upload, post CRUD
// and weblog update pings.
package blogclient

import (
	"context"
	"errors"

	"alcyxob/blog-publisher/internal/domain"
)

var (
	ErrPostNotFound      = errors.New("post not found on server")
	ErrUnsupportedScheme = errors.New("ping url scheme is not http or https")
)

// Uploader is the part of the transport the upload coordinator needs.
type Uploader interface {
	// NeedsUpload reports whether the file must be (re)sent to this destination.
	NeedsUpload(ctx context.Context, uc *domain.FileUploadContext) bool
	// UploadBeforePublish returns the remote URI, or "" if the transport declined
	// to upload the file.
	UploadBeforePublish(ctx context.Context, uc *domain.FileUploadContext) (string, error)
	// UploadAfterPublish runs once the post id is durable, e.g. to attach media to the post.
	UploadAfterPublish(ctx context.Context, uc *domain.FileUploadContext) error
}

// Client is the full remote blog transport.
type Client interface {
	Uploader

	CreatePost(ctx context.Context, blogID string, post *domain.BlogPost, publish bool) (*PostResult, error)
	EditPost(ctx context.Context, blogID string, post *domain.BlogPost, publish bool) (*PostResult, error)
	// GetPost returns ErrPostNotFound when the server has no such post.
	// The returned post carries its ContentsVersionSignature.
	GetPost(ctx context.Context, blogID, postID string, isPage bool) (*domain.BlogPost, error)
	Capabilities(ctx context.Context, blogID string) (Capabilities, error)
}

// Pinger notifies a weblog update service.
type Pinger interface {
	Ping(ctx context.Context, pingURL, blogName, blogURL string) error
}

type PostResult struct {
	PostID    string `json:"id"`
	Permalink string `json:"permalink"`
	Slug      string `json:"slug"`
}

// Capabilities is what the blog advertises about itself.
type Capabilities struct {
	SupportsSync   bool  `json:"supportsSync"`
	SupportsPages  bool  `json:"supportsPages"`
	MaxUploadBytes int64 `json:"maxUploadBytes"`
}
