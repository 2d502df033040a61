package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/blog-publisher/internal/blogclient"
	"alcyxob/blog-publisher/internal/config"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/repository"
	"alcyxob/blog-publisher/internal/signature"
	"alcyxob/blog-publisher/internal/storage"
)

var (
	ErrPostNotFound     = errors.New("post not found")
	ErrValidationFailed = errors.New("post validation failed")
	ErrFileTooLarge     = errors.New("supporting file too large")
	ErrFileNotFound     = errors.New("supporting file not found")
	ErrFileNotUploaded  = errors.New("supporting file has not been uploaded")
)

// CreateDraftInput is what a new draft starts from.
type CreateDraftInput struct {
	Title      string
	Contents   string
	Format     domain.ContentFormat
	IsPage     bool
	Categories []string
	PingURLs   []string // trackbacks to notify on publish
}

type PostService interface {
	CreateDraft(ctx context.Context, in CreateDraftInput) (*domain.EditingContext, error)
	GetPost(ctx context.Context, id primitive.ObjectID) (*domain.EditingContext, error)
	ListPosts(ctx context.Context, kind domain.PostKind) ([]domain.EditingContext, error)
	AttachFile(ctx context.Context, postID primitive.ObjectID, fileName, contentType string, body io.Reader, embedded bool) (*domain.SupportingFile, error)
	// FilePreviewURL returns a short-lived download URL for the uploaded copy of
	// a supporting file.
	FilePreviewURL(ctx context.Context, postID primitive.ObjectID, fileID string) (string, error)
}

// postService implements the PostService interface.
type postService struct {
	postRepo repository.PostRepository
	blogID   string
	files    config.FilesConfig
	media    storage.FileStorage
	logger   *slog.Logger
}

func NewPostService(postRepo repository.PostRepository, blogID string, files config.FilesConfig, media storage.FileStorage, logger *slog.Logger) PostService {
	if logger == nil {
		logger = slog.Default()
	}
	return &postService{
		postRepo: postRepo,
		blogID:   blogID,
		files:    files,
		media:    media,
		logger:   logger.With("component", "post_service"),
	}
}

func (s *postService) CreateDraft(ctx context.Context, in CreateDraftInput) (*domain.EditingContext, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidationFailed)
	}
	format := in.Format
	switch format {
	case "":
		format = domain.FormatHTML
	case domain.FormatHTML, domain.FormatMarkdown:
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrValidationFailed, in.Format)
	}

	ec := &domain.EditingContext{
		BlogID: s.blogID,
		Kind:   domain.KindDraft,
		Saved:  true,
		Format: format,
		Post: &domain.BlogPost{
			IsPage:          in.IsPage,
			Title:           in.Title,
			Contents:        in.Contents,
			Categories:      in.Categories,
			PingURLsPending: in.PingURLs,
		},
		SupportingFiles: []*domain.SupportingFile{},
	}
	if _, err := s.postRepo.Create(ctx, ec); err != nil {
		return nil, err
	}
	s.logger.Info("draft created", "id", ec.ID.Hex(), "format", format)
	return ec, nil
}

func (s *postService) GetPost(ctx context.Context, id primitive.ObjectID) (*domain.EditingContext, error) {
	ec, err := s.postRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return ec, nil
}

func (s *postService) ListPosts(ctx context.Context, kind domain.PostKind) ([]domain.EditingContext, error) {
	if kind == "" {
		kind = domain.KindDraft
	}
	return s.postRepo.ListByKind(ctx, s.blogID, kind)
}

// AttachFile copies body into the local file store and tracks it on the post.
// The returned file's FileURI is what the post HTML uses to reference it.
func (s *postService) AttachFile(ctx context.Context, postID primitive.ObjectID, fileName, contentType string, body io.Reader, embedded bool) (*domain.SupportingFile, error) {
	name := filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrValidationFailed)
	}
	ec, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	fileID := uuid.NewString()
	dir := filepath.Join(s.files.Dir, postID.Hex(), fileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file directory: %w", err)
	}
	localPath, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}

	size, hash, err := s.writeFile(localPath, body)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}
	file := &domain.SupportingFile{
		FileID:      fileID,
		FileName:    name,
		FileURI:     fileURI(localPath),
		Embedded:    embedded,
		ContentType: contentType,
		ContentHash: hash,
		Size:        size,
	}
	ec.SupportingFiles = append(ec.SupportingFiles, file)
	if err := s.postRepo.Update(ctx, ec); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	s.logger.Info("supporting file attached", "id", postID.Hex(), "fileID", fileID, "size", size)
	return file, nil
}

func (s *postService) FilePreviewURL(ctx context.Context, postID primitive.ObjectID, fileID string) (string, error) {
	ec, err := s.GetPost(ctx, postID)
	if err != nil {
		return "", err
	}
	var file *domain.SupportingFile
	for _, f := range ec.SupportingFiles {
		if f.FileID == fileID {
			file = f
			break
		}
	}
	if file == nil {
		return "", ErrFileNotFound
	}
	info, ok := file.Uploads[s.blogID]
	if !ok || info == nil || info.UploadURI == "" || info.Settings[blogclient.SettingObjectKey] == "" || s.media == nil {
		return "", ErrFileNotUploaded
	}
	return s.media.GeneratePresignedDownloadURL(ctx, info.Settings[blogclient.SettingObjectKey], storage.DefaultPresignedURLExpiry)
}

func (s *postService) writeFile(localPath string, body io.Reader) (int64, string, error) {
	f, err := os.Create(localPath)
	if err != nil {
		return 0, "", fmt.Errorf("create supporting file: %w", err)
	}
	defer f.Close()

	if s.files.MaxBytes > 0 {
		body = io.LimitReader(body, s.files.MaxBytes+1)
	}
	hash, err := signature.HashReader(io.TeeReader(body, f))
	if err != nil {
		return 0, "", fmt.Errorf("write supporting file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return 0, "", err
	}
	if s.files.MaxBytes > 0 && info.Size() > s.files.MaxBytes {
		return 0, "", fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.files.MaxBytes)
	}
	return info.Size(), hash, nil
}

// fileURI builds a file:// URI from an absolute OS path.
func fileURI(localPath string) string {
	p := filepath.ToSlash(localPath)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p // C:/dir -> /C:/dir
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}
