package blogclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/logging"
	"alcyxob/blog-publisher/internal/signature"
	"alcyxob/blog-publisher/internal/storage"
)

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *storage.MemoryStorage) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	media := storage.NewMemoryStorage("https://cdn.example")
	c, err := NewHTTPClient(HTTPClientOptions{
		BaseURL:              srv.URL + "/api/",
		TokenSecret:          "secret",
		UploadPrefix:         "/media/",
		MaxRetries:           2,
		RetryInitialInterval: time.Millisecond,
		HTTPClient:           srv.Client(),
		Media:                media,
		Logger:               logging.Discard(),
	})
	require.NoError(t, err)
	return c, media
}

func writeTempFile(t *testing.T, name, content string) *domain.SupportingFile {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return &domain.SupportingFile{
		FileID:      "42",
		FileName:    name,
		FileURI:     "file://" + filepath.ToSlash(p),
		Embedded:    true,
		ContentType: "image/png",
		Size:        int64(len(content)),
	}
}

func TestUploadBeforePublishStoresMediaAndRecordsSettings(t *testing.T) {
	c, media := newTestClient(t, http.NotFoundHandler())
	file := writeTempFile(t, "img.png", "png-bytes")
	uc := domain.NewFileUploadContext("main", "", file, domain.RoleInlineImage, false)

	assert.True(t, c.NeedsUpload(context.Background(), uc))

	uri, err := c.UploadBeforePublish(context.Background(), uc)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/media/main/42/img.png", uri)

	data, ok := media.Object("media/main/42/img.png")
	require.True(t, ok)
	assert.Equal(t, "png-bytes", string(data))

	hash, _ := signature.HashReader(strings.NewReader("png-bytes"))
	assert.Equal(t, hash, uc.Info.Settings[SettingContentHash])
	assert.Equal(t, "media/main/42/img.png", uc.Info.Settings[SettingObjectKey])

	// Once the URI is recorded the unchanged file needs no upload.
	uc.Info.UploadURI = uri
	assert.False(t, c.NeedsUpload(context.Background(), uc))

	// A changed local file does.
	file.ContentHash = "different"
	assert.True(t, c.NeedsUpload(context.Background(), uc))
}

func TestUploadBeforePublishDeletesSupersededObject(t *testing.T) {
	c, media := newTestClient(t, http.NotFoundHandler())
	file := writeTempFile(t, "img.png", "png-bytes")

	_, err := c.UploadBeforePublish(context.Background(), domain.NewFileUploadContext("main", "", file, domain.RoleInlineImage, false))
	require.NoError(t, err)
	_, ok := media.Object("media/main/42/img.png")
	require.True(t, ok)

	file.FileName = "renamed.png"
	uc := domain.NewFileUploadContext("main", "", file, domain.RoleInlineImage, false)
	uri, err := c.UploadBeforePublish(context.Background(), uc)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/media/main/42/renamed.png", uri)
	assert.Equal(t, "media/main/42/renamed.png", uc.Info.Settings[SettingObjectKey])

	_, ok = media.Object("media/main/42/img.png")
	assert.False(t, ok, "old object should be deleted")
	_, ok = media.Object("media/main/42/renamed.png")
	assert.True(t, ok)

	// Re-uploading under the same key keeps the object.
	_, err = c.UploadBeforePublish(context.Background(), uc)
	require.NoError(t, err)
	_, ok = media.Object("media/main/42/renamed.png")
	assert.True(t, ok)
}

func TestUploadBeforePublishDeclinesOversizedFiles(t *testing.T) {
	c, media := newTestClient(t, http.NotFoundHandler())
	c.maxUploadBytes = 4
	file := writeTempFile(t, "big.png", "0123456789")

	uri, err := c.UploadBeforePublish(context.Background(), domain.NewFileUploadContext("main", "", file, domain.RoleFile, false))
	require.NoError(t, err)
	assert.Empty(t, uri)
	assert.Zero(t, media.Puts())
}

func TestUploadBeforePublishMissingFile(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())
	file := &domain.SupportingFile{FileID: "1", FileName: "gone.png", FileURI: "file:///definitely/not/here.png"}
	_, err := c.UploadBeforePublish(context.Background(), domain.NewFileUploadContext("main", "", file, domain.RoleFile, false))
	assert.Error(t, err)
}

func TestCreateEditGetPost(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/blogs/main/posts", func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		assert.Equal(t, "true", r.URL.Query().Get("publish"))
		var p postPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "Hello", p.Title)
		json.NewEncoder(w).Encode(PostResult{PostID: "p1", Permalink: "https://blog.example/hello", Slug: "hello"})
	})
	mux.HandleFunc("PUT /api/blogs/main/posts/p1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("publish"))
		json.NewEncoder(w).Encode(PostResult{Permalink: "https://blog.example/hello"})
	})
	mux.HandleFunc("GET /api/blogs/main/posts/p1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(postPayload{ID: "p1", Title: "Hello", Contents: "<p>hi</p>", PingURLsSent: []string{"http://tb.example/1"}})
	})

	c, _ := newTestClient(t, mux)
	ctx := context.Background()
	post := &domain.BlogPost{Title: "Hello", Contents: "<p>hi</p>"}

	res, err := c.CreatePost(ctx, "main", post, true)
	require.NoError(t, err)
	assert.Equal(t, "p1", res.PostID)

	post.ID = res.PostID
	res, err = c.EditPost(ctx, "main", post, false)
	require.NoError(t, err)
	assert.Equal(t, "p1", res.PostID)

	got, err := c.GetPost(ctx, "main", "p1", false)
	require.NoError(t, err)
	assert.Equal(t, signature.Compute("Hello", "<p>hi</p>"), got.ContentsVersionSignature)
	assert.Equal(t, []string{"http://tb.example/1"}, got.PingURLsSent)

	_, err = c.GetPost(ctx, "main", "missing", false)
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestCreatePostSurfacesAPIErrors(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	_, err := c.CreatePost(context.Background(), "main", &domain.BlogPost{Title: "x"}, true)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "quota exceeded", apiErr.Message)
}

func TestUploadAfterPublishRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/blogs/main/posts/p1/media", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	file := &domain.SupportingFile{FileID: "42", FileName: "img.png"}
	uc := domain.NewFileUploadContext("main", "p1", file, domain.RoleInlineImage, false)
	uc.Info.UploadURI = "https://cdn.example/img.png"

	require.NoError(t, c.UploadAfterPublish(context.Background(), uc))
	assert.Equal(t, int32(2), calls.Load())
}

func TestUploadAfterPublishDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	file := &domain.SupportingFile{FileID: "42"}
	uc := domain.NewFileUploadContext("main", "p1", file, domain.RoleFile, false)
	uc.Info.UploadURI = "https://cdn.example/x"

	assert.Error(t, c.UploadAfterPublish(context.Background(), uc))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCapabilities(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/blogs/main/capabilities", r.URL.Path)
		json.NewEncoder(w).Encode(Capabilities{SupportsSync: true, MaxUploadBytes: 10})
	}))
	caps, err := c.Capabilities(context.Background(), "main")
	require.NoError(t, err)
	assert.True(t, caps.SupportsSync)
	assert.Equal(t, int64(10), caps.MaxUploadBytes)
}
