package service

import (
	"context"
	"errors"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/blog-publisher/internal/asyncop"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/publish"
	"alcyxob/blog-publisher/internal/render"
	"alcyxob/blog-publisher/internal/repository"
)

type PublishService interface {
	// Publish submits a stored post. With publish false the server keeps it as a
	// draft. Only a failed upload or submission is an error.
	Publish(ctx context.Context, postID primitive.ObjectID, publish bool) (*domain.PublishingResult, error)
	// StartPublish runs Publish as an async operation whose progress events follow
	// the publish states from "idle" to "done".
	StartPublish(ctx context.Context, postID primitive.ObjectID, publish bool) *asyncop.Operation[*domain.PublishingResult]
}

type publishService struct {
	postRepo     repository.PostRepository
	orchestrator *publish.Orchestrator
	logger       *slog.Logger
}

func NewPublishService(postRepo repository.PostRepository, orchestrator *publish.Orchestrator, logger *slog.Logger) PublishService {
	if logger == nil {
		logger = slog.Default()
	}
	return &publishService{
		postRepo:     postRepo,
		orchestrator: orchestrator,
		logger:       logger.With("component", "publish_service"),
	}
}

func (s *publishService) StartPublish(ctx context.Context, postID primitive.ObjectID, publishNow bool) *asyncop.Operation[*domain.PublishingResult] {
	return asyncop.Start(ctx, func(ctx context.Context, report asyncop.ReportFunc) (*domain.PublishingResult, error) {
		return s.publish(ctx, postID, publishNow, func(st publish.State) { report(st.Progress()) })
	})
}

func (s *publishService) Publish(ctx context.Context, postID primitive.ObjectID, publishNow bool) (*domain.PublishingResult, error) {
	return s.publish(ctx, postID, publishNow, nil)
}

func (s *publishService) publish(ctx context.Context, postID primitive.ObjectID, publishNow bool, report func(publish.State)) (*domain.PublishingResult, error) {
	ec, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	if ec.Post == nil {
		return nil, ErrValidationFailed
	}
	log := s.logger.With("id", postID.Hex(), "publish", publishNow)

	// Markdown drafts publish a rendered copy; supporting files stay shared so
	// upload bookkeeping lands on ec either way.
	working, err := render.ForPublish(ec)
	if err != nil {
		return nil, err
	}

	res, pubErr := s.orchestrator.PublishWithProgress(ctx, working, publishNow, report)
	// Whatever the server now holds has to be recorded, even for a cancelled caller.
	ctx = context.WithoutCancel(ctx)
	if pubErr != nil {
		// Files uploaded before the failure keep their URIs so a retry skips them.
		if err := s.postRepo.Update(ctx, ec); err != nil {
			log.Warn("could not save upload state after failed publish", "error", err)
		}
		return nil, pubErr
	}

	if working != ec {
		applyServerFields(ec.Post, working.Post)
	}
	if err := s.saveAfterPublish(ctx, ec, publishNow); err != nil {
		// The post is live; losing the bookkeeping only costs a re-upload next time.
		log.Error("could not save post after publish", "postID", res.PostID, "error", err)
		if res.AfterPublishErr == nil {
			res.AfterPublishErr = err
		} else {
			res.AfterPublishErr = errors.Join(res.AfterPublishErr, err)
		}
	}
	return res, nil
}

// saveAfterPublish stores the post with its server identity. A real publish turns
// the stored copy into the recent-post copy, replacing any older one.
func (s *publishService) saveAfterPublish(ctx context.Context, ec *domain.EditingContext, publishNow bool) error {
	ec.Saved = true
	if publishNow && ec.Kind != domain.KindRecentPost {
		older, err := s.postRepo.FindByRemotePost(ctx, ec.BlogID, ec.RemotePostID(), domain.KindRecentPost)
		switch {
		case err == nil && older.ID != ec.ID:
			if err := s.postRepo.Delete(ctx, older.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return err
		}
		ec.Kind = domain.KindRecentPost
	}
	return s.postRepo.Update(ctx, ec)
}

func applyServerFields(dst, src *domain.BlogPost) {
	dst.ID = src.ID
	dst.Permalink = src.Permalink
	dst.Slug = src.Slug
	dst.ContentsVersionSignature = src.ContentsVersionSignature
	dst.DatePublished = src.DatePublished
	dst.PingURLsSent = src.PingURLsSent
	dst.PingURLsPending = src.PingURLsPending
}
