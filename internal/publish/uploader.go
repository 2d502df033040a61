package publish

import (
	"context"

	"alcyxob/blog-publisher/internal/blogclient"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/refs"
)

// LocalSupportingFileUploader owns the post contents for the duration of a publish.
// It snapshots the contents when opened and puts them back on Close, which callers
// defer right after opening.
type LocalSupportingFileUploader struct {
	ec       *domain.EditingContext
	original string
	fixer    *ReferenceFixer
	closed   bool
}

func OpenLocalSupportingFileUploader(ec *domain.EditingContext, opts FixerOptions) (*LocalSupportingFileUploader, error) {
	original := ec.Post.Contents
	fixer, err := NewReferenceFixer(original, ec, opts)
	if err != nil {
		return nil, err
	}
	return &LocalSupportingFileUploader{ec: ec, original: original, fixer: fixer}, nil
}

// UploadFilesBeforePublish uploads the referenced files and swaps the post contents
// for the rewritten HTML that will be submitted.
func (u *LocalSupportingFileUploader) UploadFilesBeforePublish(ctx context.Context, up blogclient.Uploader) error {
	rewritten, err := refs.Rewrite(u.original, u.fixer.Fixer(ctx, up))
	if err != nil {
		return err
	}
	u.ec.Post.Contents = rewritten
	return nil
}

func (u *LocalSupportingFileUploader) UploadFilesAfterPublish(ctx context.Context, postID string, up blogclient.Uploader) error {
	return u.fixer.UploadFilesAfterPublish(ctx, postID, up)
}

// Original is the snapshot taken when the uploader was opened.
func (u *LocalSupportingFileUploader) Original() string {
	return u.original
}

// Close restores the original contents. Calling it more than once is fine.
func (u *LocalSupportingFileUploader) Close() error {
	if u.closed {
		return nil
	}
	u.ec.Post.Contents = u.original
	u.closed = true
	return nil
}
