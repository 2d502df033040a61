// Package memory is a process-local PostRepository, used for tests and for running
// without MongoDB (database.uri: memory).
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/repository"
)

type PostRepository struct {
	mu    sync.RWMutex
	posts map[primitive.ObjectID]*domain.EditingContext
}

var _ repository.PostRepository = (*PostRepository)(nil)

func NewPostRepository() *PostRepository {
	return &PostRepository{posts: make(map[primitive.ObjectID]*domain.EditingContext)}
}

// Stored copies are cloned in and out so callers never share state with the store.

func (r *PostRepository) Create(ctx context.Context, ec *domain.EditingContext) (primitive.ObjectID, error) {
	if ec.BlogID == "" || ec.Post == nil {
		return primitive.NilObjectID, errors.New("post requires blogId and post body")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUniqueLocked(ec, primitive.NilObjectID); err != nil {
		return primitive.NilObjectID, err
	}
	ec.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	ec.CreatedAt = now
	ec.UpdatedAt = now
	r.posts[ec.ID] = ec.Clone()
	return ec.ID, nil
}

func (r *PostRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.EditingContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ec, ok := r.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ec.Clone(), nil
}

func (r *PostRepository) Update(ctx context.Context, ec *domain.EditingContext) error {
	if ec.ID.IsZero() {
		return errors.New("post update requires an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[ec.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := r.checkUniqueLocked(ec, ec.ID); err != nil {
		return err
	}
	ec.UpdatedAt = time.Now().UTC()
	r.posts[ec.ID] = ec.Clone()
	return nil
}

func (r *PostRepository) FindByRemotePost(ctx context.Context, blogID, postID string, kind domain.PostKind) (*domain.EditingContext, error) {
	if postID == "" {
		return nil, repository.ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *domain.EditingContext
	for _, ec := range r.posts {
		if ec.BlogID == blogID && ec.Kind == kind && ec.RemotePostID() == postID {
			if found == nil || ec.UpdatedAt.After(found.UpdatedAt) {
				found = ec
			}
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found.Clone(), nil
}

func (r *PostRepository) ListByKind(ctx context.Context, blogID string, kind domain.PostKind) ([]domain.EditingContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	posts := []domain.EditingContext{}
	for _, ec := range r.posts {
		if ec.BlogID == blogID && ec.Kind == kind {
			posts = append(posts, *ec.Clone())
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].UpdatedAt.After(posts[j].UpdatedAt) })
	return posts, nil
}

func (r *PostRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.posts, id)
	return nil
}

// checkUniqueLocked mirrors the unique (blogId, post.id, kind) index of the Mongo store.
func (r *PostRepository) checkUniqueLocked(ec *domain.EditingContext, self primitive.ObjectID) error {
	postID := ec.RemotePostID()
	if postID == "" {
		return nil
	}
	for id, other := range r.posts {
		if id != self && other.BlogID == ec.BlogID && other.Kind == ec.Kind && other.RemotePostID() == postID {
			return fmt.Errorf("%w: %s copy of post %s", repository.ErrDuplicate, ec.Kind, postID)
		}
	}
	return nil
}
