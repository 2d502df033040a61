package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/blog-publisher/internal/blogclient"
	"alcyxob/blog-publisher/internal/blogclient/blogclienttest"
	"alcyxob/blog-publisher/internal/config"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/logging"
	"alcyxob/blog-publisher/internal/metrics"
	"alcyxob/blog-publisher/internal/publish"
	"alcyxob/blog-publisher/internal/reconcile"
	"alcyxob/blog-publisher/internal/repository/memory"
	"alcyxob/blog-publisher/internal/service"
	"alcyxob/blog-publisher/internal/storage"
)

const testSecret = "test-secret"

type testServer struct {
	router *gin.Engine
	fake   *blogclienttest.Fake
	repo   *memory.PostRepository
	auth   service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := memory.NewPostRepository()
	fake := blogclienttest.New()

	orch := publish.NewOrchestrator(fake, nil, nil, publish.BlogSettings{ID: "main"}, logger, m)
	syncer := reconcile.NewSynchronizer(fake, repo, reconcile.Options{SupportsSync: true, Logger: logger, Metrics: m})
	posts := service.NewPostService(repo, "main", config.FilesConfig{Dir: t.TempDir()}, storage.NewMemoryStorage("https://cdn.example"), logger)

	router := gin.New()
	router.Use(RequestLogger(logger))
	SetupRoutes(router, testSecret, posts,
		service.NewPublishService(repo, orch, logger),
		service.NewSyncService(repo, fake, syncer, "main", logger),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &testServer{router: router, fake: fake, repo: repo, auth: service.NewAuthService(testSecret, time.Hour)}
}

func (s *testServer) do(t *testing.T, role domain.Role, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if role != "" {
		token, err := s.auth.IssueToken("tester", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createDraft(t *testing.T, contents string) PostResponse {
	t.Helper()
	body, _ := json.Marshal(CreatePostRequest{Title: "Hello", Contents: contents})
	w := s.do(t, domain.RoleEditor, http.MethodPost, "/api/v1/posts", body, "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp PostResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestPingAndMetricsArePublic(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, "", http.MethodGet, "/ping", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, "", http.MethodGet, "/metrics", nil, "").Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "", http.MethodGet, "/api/v1/posts", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &service.TokenClaims{
		Role: domain.RoleEditor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "tester",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestCreateGetAndValidate(t *testing.T) {
	s := newTestServer(t)
	created := s.createDraft(t, "<p>hi</p>")
	assert.Equal(t, domain.KindDraft, created.Kind)

	w := s.do(t, domain.RoleEditor, http.MethodGet, "/api/v1/posts/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, domain.RoleEditor, http.MethodGet, "/api/v1/posts/not-an-id", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, domain.RoleEditor, http.MethodGet, "/api/v1/posts/65f000000000000000000000", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, domain.RoleEditor, http.MethodPost, "/api/v1/posts", []byte(`{"contents":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttachFileAndPublish(t *testing.T) {
	s := newTestServer(t)
	created := s.createDraft(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "img.png")
	require.NoError(t, err)
	part.Write([]byte("image"))
	require.NoError(t, mw.Close())

	w := s.do(t, domain.RoleEditor, http.MethodPost, "/api/v1/posts/"+created.ID+"/files", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var file domain.SupportingFile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.True(t, file.Embedded)

	// Editors may not publish.
	w = s.do(t, domain.RoleEditor, http.MethodPost, "/api/v1/posts/"+created.ID+"/publish", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, domain.RolePublisher, http.MethodPost, "/api/v1/posts/"+created.ID+"/publish?draft=true", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res PublishResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "post-1", res.PostID)
	assert.False(t, res.Published)
	assert.Equal(t, "succeeded", res.Outcome)
}

func TestPublishSubmitFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t)
	s.fake.CreateErr = assert.AnError
	created := s.createDraft(t, "<p>x</p>")

	w := s.do(t, domain.RolePublisher, http.MethodPost, "/api/v1/posts/"+created.ID+"/publish", nil, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestOpenRemoteAndSync(t *testing.T) {
	s := newTestServer(t)
	s.fake.Posts["r1"] = &domain.BlogPost{ID: "r1", Title: "Remote", Contents: "<p>r</p>"}

	w := s.do(t, domain.RoleEditor, http.MethodPost, "/api/v1/remote-posts/r1/open", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var opened PostResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))
	assert.Equal(t, domain.KindRecentPost, opened.Kind)

	w = s.do(t, domain.RoleEditor, http.MethodPost, "/api/v1/posts/"+opened.ID+"/sync", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, domain.RoleEditor, http.MethodPost, "/api/v1/remote-posts/nope/open", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, domain.RoleEditor, http.MethodGet, "/api/v1/posts?kind=recent_post", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []PostResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestPreviewFileRedirectsToPresignedURL(t *testing.T) {
	s := newTestServer(t)
	created := s.createDraft(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "img.png")
	require.NoError(t, err)
	part.Write([]byte("image"))
	require.NoError(t, mw.Close())
	w := s.do(t, domain.RoleEditor, http.MethodPost, "/api/v1/posts/"+created.ID+"/files", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var file domain.SupportingFile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))

	previewPath := "/api/v1/posts/" + created.ID + "/files/" + file.FileID + "/preview"
	assert.Equal(t, http.StatusUnauthorized, s.do(t, "", http.MethodGet, previewPath, nil, "").Code)
	assert.Equal(t, http.StatusConflict, s.do(t, domain.RoleEditor, http.MethodGet, previewPath, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, domain.RoleEditor, http.MethodGet, "/api/v1/posts/"+created.ID+"/files/nope/preview", nil, "").Code)

	id, err := primitive.ObjectIDFromHex(created.ID)
	require.NoError(t, err)
	stored, err := s.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	info := stored.SupportingFiles[0].UploadInfo("main")
	info.UploadURI = "https://cdn.example/media/main/img.png"
	info.Settings[blogclient.SettingObjectKey] = "media/main/img.png"
	require.NoError(t, s.repo.Update(context.Background(), stored))

	w = s.do(t, domain.RoleEditor, http.MethodGet, previewPath, nil, "")
	require.Equal(t, http.StatusTemporaryRedirect, w.Code, w.Body.String())
	assert.Equal(t, "https://cdn.example/media/main/img.png?expires=15m0s", w.Header().Get("Location"))
}
