// Package upload uploads the supporting files of one publish operation, each at most once.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"alcyxob/blog-publisher/internal/blogclient"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/metrics"
	"alcyxob/blog-publisher/internal/refs"
)

// ErrDuplicateUpload marks a request for a file already uploaded in this pass.
// It is logged and counted, never returned to callers.
var ErrDuplicateUpload = errors.New("file already uploaded in this publish operation")

// Request is one upload request coming from a discovered reference.
type Request struct {
	Reference string
	Role      domain.FileUploadRole
	// Lightbox is set when the blog wraps linked images in a lightbox viewer;
	// without it a linked image must point straight at the image file.
	Lightbox bool
}

type uploadRole struct {
	role        domain.FileUploadRole
	forceDirect bool
}

// Coordinator owns the uploaded set for a single publish. Create one per publish.
type Coordinator struct {
	blogID   string
	files    []*domain.SupportingFile
	uploaded *UploadedSet
	roles    map[string]uploadRole
	logger   *slog.Logger
	metrics  *metrics.Collectors
}

// NewCoordinator tracks files, which are the upload candidates found by the reference scan.
// logger is used as is; callers attach the blog and post attributes.
func NewCoordinator(blogID string, files []*domain.SupportingFile, logger *slog.Logger, m *metrics.Collectors) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		blogID:   blogID,
		files:    files,
		uploaded: NewUploadedSet(),
		roles:    make(map[string]uploadRole),
		logger:   logger,
		metrics:  m,
	}
}

// Lookup finds the tracked file for a reference, comparing canonical forms.
func (c *Coordinator) Lookup(reference string) *domain.SupportingFile {
	want, ok := refs.Canonicalize(reference)
	if !ok {
		return nil
	}
	for _, f := range c.files {
		if have, ok := refs.Canonicalize(f.FileURI); ok && have == want {
			return f
		}
	}
	return nil
}

// RequestUpload uploads the file behind the reference unless it is unknown, already
// current on the destination, or already uploaded in this operation. Unknown and
// duplicate references are logged and otherwise ignored. A transport error is
// returned and the claim is dropped so a retry of the publish uploads the file again.
func (c *Coordinator) RequestUpload(ctx context.Context, up blogclient.Uploader, req Request) error {
	file := c.Lookup(req.Reference)
	if file == nil {
		c.metrics.DanglingReference()
		c.logger.Warn("reference matches no tracked supporting file",
			"reference", req.Reference, "known", c.describeFiles())
		return nil
	}
	log := c.logger.With("fileID", file.FileID)

	forceDirect := req.Role == domain.RoleLinkedImage && !req.Lightbox
	uc := domain.NewFileUploadContext(c.blogID, "", file, req.Role, forceDirect)
	if !up.NeedsUpload(ctx, uc) {
		log.Debug("file is current on destination", "uploadURI", uc.Info.UploadURI)
		c.metrics.Upload("before_publish", "skipped")
		return nil
	}

	if !c.uploaded.Claim(file) {
		c.metrics.DuplicateUpload()
		log.Error("duplicate upload request", "error", ErrDuplicateUpload, "reference", req.Reference)
		return nil
	}

	c.roles[file.FileID] = uploadRole{role: req.Role, forceDirect: forceDirect}

	uri, err := up.UploadBeforePublish(ctx, uc)
	if err != nil {
		c.uploaded.Release(file.FileID)
		delete(c.roles, file.FileID)
		c.metrics.Upload("before_publish", "failed")
		return fmt.Errorf("upload %s: %w", file.FileName, err)
	}
	if uri == "" {
		log.Info("transport declined upload, reference left unchanged")
		c.metrics.Upload("before_publish", "declined")
		return nil
	}

	uc.Info.UploadURI = uri
	c.metrics.Upload("before_publish", "ok")
	log.Debug("file uploaded", "uploadURI", uri)
	return nil
}

// FinalizeAfterPublish runs the transport's after-publish hook for every file
// uploaded in this operation, now that postID is known. All files are attempted;
// the failures are joined.
func (c *Coordinator) FinalizeAfterPublish(ctx context.Context, up blogclient.Uploader, postID string) error {
	var errs []error
	for _, file := range c.uploaded.Files() {
		r := c.roles[file.FileID]
		uc := domain.NewFileUploadContext(c.blogID, postID, file, r.role, r.forceDirect)
		if err := up.UploadAfterPublish(ctx, uc); err != nil {
			c.metrics.Upload("after_publish", "failed")
			c.logger.Warn("after-publish upload failed", "fileID", file.FileID, "postID", postID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", file.FileName, err))
			continue
		}
		c.metrics.Upload("after_publish", "ok")
	}
	return errors.Join(errs...)
}

// Uploaded returns the files uploaded so far, in upload order.
func (c *Coordinator) Uploaded() []*domain.SupportingFile {
	return c.uploaded.Files()
}

func (c *Coordinator) describeFiles() string {
	parts := make([]string, 0, len(c.files))
	for _, f := range c.files {
		parts = append(parts, f.FileID+"="+f.FileURI)
	}
	return strings.Join(parts, ", ")
}
