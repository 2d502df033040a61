package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/blog-publisher/internal/asyncop"
	"alcyxob/blog-publisher/internal/blogclient"
	"alcyxob/blog-publisher/internal/blogclient/blogclienttest"
	"alcyxob/blog-publisher/internal/config"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/logging"
	"alcyxob/blog-publisher/internal/publish"
	"alcyxob/blog-publisher/internal/reconcile"
	"alcyxob/blog-publisher/internal/repository/memory"
	"alcyxob/blog-publisher/internal/storage"
)

type fixture struct {
	repo    *memory.PostRepository
	fake    *blogclienttest.Fake
	posts   PostService
	publish PublishService
	sync    SyncService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewPostRepository()
	fake := blogclienttest.New()
	logger := logging.Discard()
	orch := publish.NewOrchestrator(fake, nil, nil, publish.BlogSettings{ID: "main"}, logger, nil)
	syncer := reconcile.NewSynchronizer(fake, repo, reconcile.Options{SupportsSync: true, Logger: logger})
	return &fixture{
		repo:    repo,
		fake:    fake,
		posts:   NewPostService(repo, "main", config.FilesConfig{Dir: t.TempDir(), MaxBytes: 1024}, storage.NewMemoryStorage("https://cdn.example"), logger),
		publish: NewPublishService(repo, orch, logger),
		sync:    NewSyncService(repo, fake, syncer, "main", logger),
	}
}

func TestCreateDraftValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.posts.CreateDraft(ctx, CreateDraftInput{})
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = f.posts.CreateDraft(ctx, CreateDraftInput{Title: "x", Format: "rtf"})
	assert.ErrorIs(t, err, ErrValidationFailed)

	ec, err := f.posts.CreateDraft(ctx, CreateDraftInput{Title: "Hello", Contents: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, domain.FormatHTML, ec.Format)
	assert.Equal(t, domain.KindDraft, ec.Kind)
	assert.Equal(t, "main", ec.BlogID)

	_, err = f.posts.GetPost(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestAttachFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ec, err := f.posts.CreateDraft(ctx, CreateDraftInput{Title: "Hello"})
	require.NoError(t, err)

	file, err := f.posts.AttachFile(ctx, ec.ID, `C:\pics\cat.png`, "", strings.NewReader("png bytes"), true)
	require.NoError(t, err)
	assert.Equal(t, "cat.png", file.FileName)
	assert.Equal(t, "image/png", file.ContentType)
	assert.Equal(t, int64(9), file.Size)
	assert.NotEmpty(t, file.ContentHash)
	assert.True(t, strings.HasPrefix(file.FileURI, "file:///"))

	localPath, err := file.LocalPath()
	require.NoError(t, err)
	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))

	stored, err := f.posts.GetPost(ctx, ec.ID)
	require.NoError(t, err)
	require.Len(t, stored.SupportingFiles, 1)
	assert.Equal(t, file.FileID, stored.SupportingFiles[0].FileID)
}

func TestAttachFileTooLarge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ec, err := f.posts.CreateDraft(ctx, CreateDraftInput{Title: "Hello"})
	require.NoError(t, err)

	_, err = f.posts.AttachFile(ctx, ec.ID, "big.bin", "", bytes.NewReader(make([]byte, 2048)), false)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	stored, _ := f.posts.GetPost(ctx, ec.ID)
	assert.Empty(t, stored.SupportingFiles)
}

func draftWithImage(t *testing.T, f *fixture, format domain.ContentFormat, body func(uri string) string) (*domain.EditingContext, *domain.SupportingFile) {
	t.Helper()
	ctx := context.Background()
	ec, err := f.posts.CreateDraft(ctx, CreateDraftInput{Title: "Hello", Format: format})
	require.NoError(t, err)
	file, err := f.posts.AttachFile(ctx, ec.ID, "img.png", "image/png", strings.NewReader("img"), true)
	require.NoError(t, err)
	ec, err = f.posts.GetPost(ctx, ec.ID)
	require.NoError(t, err)
	ec.Post.Contents = body(file.FileURI)
	require.NoError(t, f.repo.Update(ctx, ec))
	return ec, file
}

func TestPublishStoresBookkeepingAndBecomesRecentPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ec, file := draftWithImage(t, f, domain.FormatHTML, func(uri string) string {
		return `<img src="` + uri + `"><img src="` + uri + `">`
	})

	res, err := f.publish.Publish(ctx, ec.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.fake.BeforeCalls[file.FileID])

	stored, err := f.posts.GetPost(ctx, ec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindRecentPost, stored.Kind)
	assert.Equal(t, res.PostID, stored.Post.ID)
	assert.Equal(t, res.ContentsVersionSignature, stored.Post.ContentsVersionSignature)
	assert.Equal(t, ec.Post.Contents, stored.Post.Contents)
	assert.Equal(t, "https://cdn.example/img.png", stored.SupportingFiles[0].UploadURIFor("main"))

	// Republishing skips the upload and edits the same remote post.
	_, err = f.publish.Publish(ctx, ec.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.fake.BeforeCalls[file.FileID])
	sub, _ := f.fake.LastSubmission()
	assert.True(t, sub.Edit)
}

func TestPublishMarkdownDraftKeepsSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ec, _ := draftWithImage(t, f, domain.FormatMarkdown, func(uri string) string {
		return "Look: ![cat](" + uri + ")"
	})

	res, err := f.publish.Publish(ctx, ec.ID, false)
	require.NoError(t, err)

	sub, _ := f.fake.LastSubmission()
	assert.Contains(t, sub.Post.Contents, `<img src="https://cdn.example/img.png"`)

	stored, _ := f.posts.GetPost(ctx, ec.ID)
	assert.Equal(t, domain.KindDraft, stored.Kind)
	assert.Equal(t, domain.FormatMarkdown, stored.Format)
	assert.Equal(t, ec.Post.Contents, stored.Post.Contents)
	assert.Equal(t, res.PostID, stored.Post.ID)
	assert.Equal(t, "https://cdn.example/img.png", stored.SupportingFiles[0].UploadURIFor("main"))
}

func TestPublishFailureKeepsUploadState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.CreateErr = errors.New("server down")
	ec, file := draftWithImage(t, f, domain.FormatHTML, func(uri string) string {
		return `<img src="` + uri + `">`
	})

	_, err := f.publish.Publish(ctx, ec.ID, true)
	require.ErrorIs(t, err, publish.ErrSubmitFailed)

	stored, _ := f.posts.GetPost(ctx, ec.ID)
	assert.Equal(t, domain.KindDraft, stored.Kind)
	assert.Equal(t, ec.Post.Contents, stored.Post.Contents)
	assert.Equal(t, "https://cdn.example/img.png", stored.SupportingFiles[0].UploadURIFor("main"))

	f.fake.CreateErr = nil
	_, err = f.publish.Publish(ctx, ec.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.fake.BeforeCalls[file.FileID])
}

func TestPublishUnknownPost(t *testing.T) {
	f := newFixture(t)
	_, err := f.publish.Publish(context.Background(), primitive.NewObjectID(), true)
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestStartPublish(t *testing.T) {
	f := newFixture(t)
	ec, err := f.posts.CreateDraft(context.Background(), CreateDraftInput{Title: "x", Contents: "<p>x</p>"})
	require.NoError(t, err)

	op := f.publish.StartPublish(context.Background(), ec.ID, true)
	var steps []string
	var final asyncop.Event[*domain.PublishingResult]
	for ev := range op.Events() {
		if ev.Kind == asyncop.EventProgress {
			steps = append(steps, ev.Progress.Step)
			continue
		}
		final = ev
	}
	require.Equal(t, asyncop.EventCompleted, final.Kind, "%v", final.Err)
	assert.Equal(t, "post-1", final.Result.PostID)
	require.NotEmpty(t, steps)
	assert.Equal(t, "idle", steps[0])
	assert.Equal(t, "done", steps[len(steps)-1])
	assert.Contains(t, steps, "submitted")

	stored, err := f.repo.GetByID(context.Background(), ec.ID)
	require.NoError(t, err)
	assert.Equal(t, "post-1", stored.RemotePostID())
}

func TestOpenRemoteStoresRecentPostCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.Posts["r1"] = &domain.BlogPost{ID: "r1", Title: "Remote", Contents: "<p>remote</p>"}

	ec, err := f.sync.OpenRemote(ctx, "r1", false)
	require.NoError(t, err)
	assert.Equal(t, domain.KindRecentPost, ec.Kind)
	assert.False(t, ec.ID.IsZero())

	found, err := f.repo.FindByRemotePost(ctx, "main", "r1", domain.KindRecentPost)
	require.NoError(t, err)
	assert.Equal(t, ec.ID, found.ID)

	// Opening again reuses the stored copy.
	again, err := f.sync.OpenRemote(ctx, "r1", false)
	require.NoError(t, err)
	assert.Equal(t, ec.ID, again.ID)
	list, _ := f.repo.ListByKind(ctx, "main", domain.KindRecentPost)
	assert.Len(t, list, 1)

	_, err = f.sync.OpenRemote(ctx, "missing", false)
	assert.ErrorIs(t, err, ErrRemotePostNotFound)
}

func TestSyncTakesChangedServerCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ec, _ := draftWithImage(t, f, domain.FormatHTML, func(uri string) string {
		return `<p>v1</p><img src="` + uri + `">`
	})
	res, err := f.publish.Publish(ctx, ec.ID, true)
	require.NoError(t, err)

	// Someone edits the post on the server.
	server := f.fake.Posts[res.PostID]
	server.Contents = `<p>v2</p><img src="https://cdn.example/img.png">`
	server.ContentsVersionSignature = ""

	synced, err := f.sync.Sync(ctx, ec.ID)
	require.NoError(t, err)
	assert.Equal(t, `<p>v2</p><img src="`+ec.SupportingFiles[0].FileURI+`">`, synced.Post.Contents)

	stored, _ := f.posts.GetPost(ctx, ec.ID)
	assert.Equal(t, synced.Post.Contents, stored.Post.Contents)

	_, err = f.sync.Sync(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestFilePreviewURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ec, err := f.posts.CreateDraft(ctx, CreateDraftInput{Title: "x"})
	require.NoError(t, err)
	file, err := f.posts.AttachFile(ctx, ec.ID, "img.png", "image/png", strings.NewReader("png"), true)
	require.NoError(t, err)

	_, err = f.posts.FilePreviewURL(ctx, ec.ID, file.FileID)
	assert.ErrorIs(t, err, ErrFileNotUploaded)
	_, err = f.posts.FilePreviewURL(ctx, ec.ID, "nope")
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = f.posts.FilePreviewURL(ctx, primitive.NewObjectID(), file.FileID)
	assert.ErrorIs(t, err, ErrPostNotFound)

	stored, err := f.repo.GetByID(ctx, ec.ID)
	require.NoError(t, err)
	info := stored.SupportingFiles[0].UploadInfo("main")
	info.UploadURI = "https://cdn.example/media/main/img.png"
	info.Settings[blogclient.SettingObjectKey] = "media/main/img.png"
	require.NoError(t, f.repo.Update(ctx, stored))

	url, err := f.posts.FilePreviewURL(ctx, ec.ID, file.FileID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/media/main/img.png?expires=15m0s", url)
}
