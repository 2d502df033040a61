package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/blog-publisher/internal/domain"
)

var (
	ErrNotFound     = RepositoryError("not found")
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDuplicate    = RepositoryError("duplicate")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// PostRepository stores editing contexts: drafts, recent-post copies and their
// supporting files.
type PostRepository interface {
	Create(ctx context.Context, ec *domain.EditingContext) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.EditingContext, error)
	Update(ctx context.Context, ec *domain.EditingContext) error
	// FindByRemotePost returns the local copy of kind for a published post, or ErrNotFound.
	FindByRemotePost(ctx context.Context, blogID, postID string, kind domain.PostKind) (*domain.EditingContext, error)
	ListByKind(ctx context.Context, blogID string, kind domain.PostKind) ([]domain.EditingContext, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}
