// Package publish runs the publish transaction: upload supporting files, rewrite
// references, submit the post and restore the local content.
package publish

import (
	"context"
	"log/slog"
	"net/url"

	"alcyxob/blog-publisher/internal/blogclient"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/metrics"
	"alcyxob/blog-publisher/internal/refs"
	"alcyxob/blog-publisher/internal/upload"
)

// FixerOptions configures a ReferenceFixer.
type FixerOptions struct {
	BlogID   string
	Lightbox bool
	Logger   *slog.Logger
	Metrics  *metrics.Collectors
}

// ReferenceFixer translates local file references in post HTML into the remote
// URIs of the uploaded files.
type ReferenceFixer struct {
	blogID      string
	lightbox    bool
	references  *refs.ReferenceList
	coordinator *upload.Coordinator
}

// NewReferenceFixer computes the reference list from the editing context and the
// upload candidates from content.
func NewReferenceFixer(content string, ec *domain.EditingContext, opts FixerOptions) (*ReferenceFixer, error) {
	list := refs.NewReferenceList(ec.SupportingFiles)
	candidates, err := refs.Scan(content, list)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferenceFixer{
		blogID:      opts.BlogID,
		lightbox:    opts.Lightbox,
		references:  list,
		coordinator: upload.NewCoordinator(opts.BlogID, candidates, logger, opts.Metrics),
	}, nil
}

// Fixer returns the per-reference transform. It is safe to call once per
// occurrence: repeated references map to the same URI and upload only once.
func (f *ReferenceFixer) Fixer(ctx context.Context, up blogclient.Uploader) refs.FixFunc {
	return func(tag, attr, reference string) (string, error) {
		if !refs.IsURL(reference) {
			return reference, nil
		}
		file, _ := f.references.Lookup(reference)
		if file == nil && !refs.IsFileReference(reference) {
			// external link or asset, nothing to upload
			return reference, nil
		}
		req := upload.Request{
			Reference: reference,
			Role:      refs.ClassifyRole(tag, file),
			Lightbox:  f.lightbox,
		}
		if err := f.coordinator.RequestUpload(ctx, up, req); err != nil {
			return "", err
		}
		if file == nil {
			return reference, nil
		}
		uri := file.UploadURIFor(f.blogID)
		if uri == "" {
			return reference, nil
		}
		if u, err := url.Parse(uri); err == nil && u.IsAbs() {
			return u.String(), nil
		}
		return reference, nil
	}
}

// UploadFilesAfterPublish lets the transport finish work that needs the post id.
func (f *ReferenceFixer) UploadFilesAfterPublish(ctx context.Context, postID string, up blogclient.Uploader) error {
	return f.coordinator.FinalizeAfterPublish(ctx, up, postID)
}

// Uploaded lists the files uploaded by this fixer.
func (f *ReferenceFixer) Uploaded() []*domain.SupportingFile {
	return f.coordinator.Uploaded()
}
