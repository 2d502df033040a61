package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/blog-publisher/internal/blogclient"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/reconcile"
	"alcyxob/blog-publisher/internal/repository"
)

var ErrRemotePostNotFound = errors.New("remote post not found")

type SyncService interface {
	// Sync reconciles a stored copy with the server and returns the context to edit.
	Sync(ctx context.Context, postID primitive.ObjectID) (*domain.EditingContext, error)
	// OpenRemote opens a post straight from the server, reusing a local copy if one exists.
	OpenRemote(ctx context.Context, remotePostID string, isPage bool) (*domain.EditingContext, error)
}

type syncService struct {
	postRepo     repository.PostRepository
	client       blogclient.Client
	synchronizer *reconcile.Synchronizer
	blogID       string
	logger       *slog.Logger
}

func NewSyncService(postRepo repository.PostRepository, client blogclient.Client, synchronizer *reconcile.Synchronizer, blogID string, logger *slog.Logger) SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &syncService{
		postRepo:     postRepo,
		client:       client,
		synchronizer: synchronizer,
		blogID:       blogID,
		logger:       logger.With("component", "sync_service"),
	}
}

func (s *syncService) Sync(ctx context.Context, postID primitive.ObjectID) (*domain.EditingContext, error) {
	local, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	effective, decision := s.synchronizer.Reconcile(ctx, local)
	if decision.Merged() {
		s.save(ctx, effective)
	}
	return effective, nil
}

func (s *syncService) OpenRemote(ctx context.Context, remotePostID string, isPage bool) (*domain.EditingContext, error) {
	if remotePostID == "" {
		return nil, fmt.Errorf("%w: remote post id is required", ErrValidationFailed)
	}
	server, err := s.client.GetPost(ctx, s.blogID, remotePostID, isPage)
	if err != nil {
		if errors.Is(err, blogclient.ErrPostNotFound) {
			return nil, ErrRemotePostNotFound
		}
		return nil, fmt.Errorf("fetch remote post: %w", err)
	}

	remote := &domain.EditingContext{
		BlogID:          s.blogID,
		Kind:            domain.KindRemote,
		Format:          domain.FormatHTML,
		Post:            server,
		SupportingFiles: []*domain.SupportingFile{},
	}
	effective, decision := s.synchronizer.Reconcile(ctx, remote)
	switch {
	case decision.Merged():
		s.save(ctx, effective)
	case decision == reconcile.DecisionNoLocalCopy:
		effective.Kind = domain.KindRecentPost
		effective.Saved = true
		if _, err := s.postRepo.Create(ctx, effective); err != nil {
			return nil, fmt.Errorf("store remote post: %w", err)
		}
	}
	return effective, nil
}

// save stores a merged context. Failing to store it is not fatal: the merged
// context is still returned and the next sync produces it again.
func (s *syncService) save(ctx context.Context, ec *domain.EditingContext) {
	if err := s.postRepo.Update(ctx, ec); err != nil {
		s.logger.Warn("could not store synchronized post", "id", ec.ID.Hex(), "postID", ec.RemotePostID(), "error", err)
	}
}
