package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/repository"
)

const postCollectionName = "posts"

// mongoPostRepository implements repository.PostRepository
type mongoPostRepository struct {
	collection *mongo.Collection
}

// NewMongoPostRepository creates a post repository backed by MongoDB.
func NewMongoPostRepository(db *mongo.Database) repository.PostRepository {
	return &mongoPostRepository{
		collection: db.Collection(postCollectionName),
	}
}

// Create inserts a new editing context and assigns its id.
func (r *mongoPostRepository) Create(ctx context.Context, ec *domain.EditingContext) (primitive.ObjectID, error) {
	if ec.BlogID == "" || ec.Post == nil {
		return primitive.NilObjectID, errors.New("post requires blogId and post body")
	}
	ec.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	ec.CreatedAt = now
	ec.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, ec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, fmt.Errorf("%w: %s copy of post %s", repository.ErrDuplicate, ec.Kind, ec.RemotePostID())
		}
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted post ID")
	}
	return insertedID, nil
}

// GetByID retrieves an editing context by its local id.
func (r *mongoPostRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.EditingContext, error) {
	var ec domain.EditingContext
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &ec, nil
}

// Update replaces the stored document. Upload infos and trackback lists are part
// of the document, so this is how publish bookkeeping is persisted.
func (r *mongoPostRepository) Update(ctx context.Context, ec *domain.EditingContext) error {
	if ec.ID.IsZero() {
		return errors.New("post update requires an id")
	}
	ec.UpdatedAt = time.Now().UTC()
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": ec.ID}, ec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s copy of post %s", repository.ErrDuplicate, ec.Kind, ec.RemotePostID())
		}
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// FindByRemotePost finds the local copy of kind for a post already on the server.
func (r *mongoPostRepository) FindByRemotePost(ctx context.Context, blogID, postID string, kind domain.PostKind) (*domain.EditingContext, error) {
	if postID == "" {
		return nil, repository.ErrNotFound
	}
	filter := bson.M{"blogId": blogID, "post.id": postID, "kind": kind}
	opts := options.FindOne().SetSort(bson.D{{Key: "updatedAt", Value: -1}})

	var ec domain.EditingContext
	err := r.collection.FindOne(ctx, filter, opts).Decode(&ec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &ec, nil
}

// ListByKind lists the copies of one kind for a blog, newest first.
func (r *mongoPostRepository) ListByKind(ctx context.Context, blogID string, kind domain.PostKind) ([]domain.EditingContext, error) {
	filter := bson.M{"blogId": blogID, "kind": kind}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var posts []domain.EditingContext
	if err = cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []domain.EditingContext{}
	}
	return posts, nil
}

// Delete removes a stored copy. Supporting files on disk are left alone.
func (r *mongoPostRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsurePostIndexes creates the indexes the repository queries rely on. At most one
// draft and one recent-post copy may exist per remote post.
func EnsurePostIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "blogId", Value: 1}, {Key: "post.id", Value: 1}, {Key: "kind", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"post.id": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "blogId", Value: 1}, {Key: "kind", Value: 1}, {Key: "updatedAt", Value: -1}},
		},
	}
	_, err := db.Collection(postCollectionName).Indexes().CreateMany(ctx, indexes)
	return err
}
