package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/logging"
	"alcyxob/blog-publisher/internal/publish"
	"alcyxob/blog-publisher/internal/service"
)

// PostHandler serves drafts, publishing and synchronization.
type PostHandler struct {
	postService    service.PostService
	publishService service.PublishService
	syncService    service.SyncService
}

func NewPostHandler(posts service.PostService, publisher service.PublishService, syncer service.SyncService) *PostHandler {
	return &PostHandler{postService: posts, publishService: publisher, syncService: syncer}
}

// CreatePostRequest defines the expected JSON for creating a draft.
type CreatePostRequest struct {
	Title      string   `json:"title" binding:"required"`
	Contents   string   `json:"contents"`
	Format     string   `json:"format" binding:"omitempty,oneof=html markdown"`
	IsPage     bool     `json:"isPage"`
	Categories []string `json:"categories"`
	PingURLs   []string `json:"pingUrls" binding:"omitempty,dive,url"`
}

// PostResponse is the DTO for a stored post.
type PostResponse struct {
	ID              string                   `json:"id"`
	BlogID          string                   `json:"blogId"`
	Kind            domain.PostKind          `json:"kind"`
	Format          domain.ContentFormat     `json:"format"`
	Post            *domain.BlogPost         `json:"post"`
	SupportingFiles []*domain.SupportingFile `json:"supportingFiles"`
	CreatedAt       time.Time                `json:"createdAt"`
	UpdatedAt       time.Time                `json:"updatedAt"`
}

func MapPostToResponse(ec *domain.EditingContext) PostResponse {
	if ec == nil {
		return PostResponse{}
	}
	files := ec.SupportingFiles
	if files == nil {
		files = []*domain.SupportingFile{}
	}
	return PostResponse{
		ID:              ec.ID.Hex(),
		BlogID:          ec.BlogID,
		Kind:            ec.Kind,
		Format:          ec.Format,
		Post:            ec.Post,
		SupportingFiles: files,
		CreatedAt:       ec.CreatedAt,
		UpdatedAt:       ec.UpdatedAt,
	}
}

// PublishResponse reports a publish. Outcome is "succeeded" or "degraded"; a
// degraded publish is live but something after submission failed.
type PublishResponse struct {
	PostID                   string `json:"postId"`
	Permalink                string `json:"permalink,omitempty"`
	Slug                     string `json:"slug,omitempty"`
	ContentsVersionSignature string `json:"contentsVersionSignature,omitempty"`
	Published                bool   `json:"published"`
	Outcome                  string `json:"outcome"`
	AfterPublishError        string `json:"afterPublishError,omitempty"`
}

func MapResultToResponse(res *domain.PublishingResult) PublishResponse {
	resp := PublishResponse{
		PostID:                   res.PostID,
		Permalink:                res.Permalink,
		Slug:                     res.Slug,
		ContentsVersionSignature: res.ContentsVersionSignature,
		Published:                res.Published,
		Outcome:                  publish.ClassifyOutcome(res, nil).String(),
	}
	if res.AfterPublishErr != nil {
		resp.AfterPublishError = res.AfterPublishErr.Error()
	}
	return resp
}

// CreatePost handles POST /posts.
func (h *PostHandler) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	ec, err := h.postService.CreateDraft(c.Request.Context(), service.CreateDraftInput{
		Title:      req.Title,
		Contents:   req.Contents,
		Format:     domain.ContentFormat(req.Format),
		IsPage:     req.IsPage,
		Categories: req.Categories,
		PingURLs:   req.PingURLs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MapPostToResponse(ec))
}

// GetPost handles GET /posts/:id.
func (h *PostHandler) GetPost(c *gin.Context) {
	id, ok := postIDParam(c)
	if !ok {
		return
	}
	ec, err := h.postService.GetPost(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapPostToResponse(ec))
}

// ListPosts handles GET /posts?kind=draft|recent_post.
func (h *PostHandler) ListPosts(c *gin.Context) {
	kind := domain.PostKind(c.DefaultQuery("kind", string(domain.KindDraft)))
	posts, err := h.postService.ListPosts(c.Request.Context(), kind)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]PostResponse, len(posts))
	for i := range posts {
		out[i] = MapPostToResponse(&posts[i])
	}
	c.JSON(http.StatusOK, out)
}

// AttachFile handles POST /posts/:id/files (multipart field "file").
func (h *PostHandler) AttachFile(c *gin.Context) {
	id, ok := postIDParam(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Multipart field 'file' is required")
		return
	}
	embedded := true
	if v := c.PostForm("embedded"); v != "" {
		if embedded, err = strconv.ParseBool(v); err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid 'embedded' value")
			return
		}
	}
	f, err := header.Open()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	defer f.Close()

	file, err := h.postService.AttachFile(c.Request.Context(), id, header.Filename, header.Header.Get("Content-Type"), f, embedded)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}

// PreviewFile handles GET /posts/:id/files/:fileId/preview by redirecting to a
// short-lived URL for the uploaded copy of the file.
func (h *PostHandler) PreviewFile(c *gin.Context) {
	id, ok := postIDParam(c)
	if !ok {
		return
	}
	url, err := h.postService.FilePreviewURL(c.Request.Context(), id, c.Param("fileId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// Publish handles POST /posts/:id/publish?draft=true|false.
func (h *PostHandler) Publish(c *gin.Context) {
	id, ok := postIDParam(c)
	if !ok {
		return
	}
	draft, err := strconv.ParseBool(c.DefaultQuery("draft", "false"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid 'draft' value")
		return
	}
	res, err := h.publishService.Publish(c.Request.Context(), id, !draft)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapResultToResponse(res))
}

// Sync handles POST /posts/:id/sync.
func (h *PostHandler) Sync(c *gin.Context) {
	id, ok := postIDParam(c)
	if !ok {
		return
	}
	ec, err := h.syncService.Sync(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapPostToResponse(ec))
}

// OpenRemote handles POST /remote-posts/:postId/open?page=true|false.
func (h *PostHandler) OpenRemote(c *gin.Context) {
	isPage, err := strconv.ParseBool(c.DefaultQuery("page", "false"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid 'page' value")
		return
	}
	ec, err := h.syncService.OpenRemote(c.Request.Context(), c.Param("postId"), isPage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapPostToResponse(ec))
}

func postIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid post ID format")
		return primitive.NilObjectID, false
	}
	return id, true
}

// respondError maps service errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPostNotFound), errors.Is(err, service.ErrRemotePostNotFound), errors.Is(err, service.ErrFileNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrValidationFailed):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrFileNotUploaded):
		abortWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		abortWithError(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, publish.ErrUploadFailed), errors.Is(err, publish.ErrSubmitFailed):
		abortWithError(c, http.StatusBadGateway, err.Error())
	default:
		logging.FromContext(c.Request.Context()).Error("request failed", "error", err)
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
