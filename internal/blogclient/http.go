package blogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/signature"
	"alcyxob/blog-publisher/internal/storage"
)

// Upload info settings written by this client.
const (
	SettingObjectKey   = "objectKey"
	SettingContentHash = "contentHash"
)

// APIError is a non-2xx answer from the blog API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("blog api: %d %s", e.StatusCode, e.Message)
}

type HTTPClientOptions struct {
	BaseURL              string
	TokenSecret          string
	UploadPrefix         string
	MaxUploadBytes       int64 // 0 means no limit
	MaxRetries           uint64
	RetryInitialInterval time.Duration
	HTTPClient           *http.Client
	Media                storage.FileStorage
	Logger               *slog.Logger
}

// HTTPClient talks JSON to the blog API and stores media in FileStorage.
type HTTPClient struct {
	baseURL        string
	httpClient     *http.Client
	tokens         *TokenSigner
	media          storage.FileStorage
	uploadPrefix   string
	maxUploadBytes int64
	newBackOff     func() backoff.BackOff
	logger         *slog.Logger
	open           func(name string) (io.ReadSeekCloser, error)
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(opts HTTPClientOptions) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("blog api url is required")
	}
	if opts.Media == nil {
		return nil, errors.New("media storage is required")
	}
	tokens, err := NewTokenSigner(opts.TokenSecret, 0)
	if err != nil {
		return nil, err
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	initial := opts.RetryInitialInterval
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	retries := opts.MaxRetries
	return &HTTPClient{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		httpClient:     opts.HTTPClient,
		tokens:         tokens,
		media:          opts.Media,
		uploadPrefix:   strings.Trim(opts.UploadPrefix, "/"),
		maxUploadBytes: opts.MaxUploadBytes,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxElapsedTime = 30 * time.Second
			return backoff.WithMaxRetries(b, retries)
		},
		logger: opts.Logger.With("component", "blogclient"),
		open: func(name string) (io.ReadSeekCloser, error) {
			return os.Open(name)
		},
	}, nil
}

func (c *HTTPClient) objectKey(uc *domain.FileUploadContext) string {
	name := path.Base(strings.ReplaceAll(uc.PreferredName, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = uc.File.FileID
	}
	return path.Join(c.uploadPrefix, uc.BlogID, uc.File.FileID, name)
}

func (c *HTTPClient) NeedsUpload(ctx context.Context, uc *domain.FileUploadContext) bool {
	if uc.Info.UploadURI == "" {
		return true
	}
	if uc.File.ContentHash != "" && uc.Info.Settings[SettingContentHash] != uc.File.ContentHash {
		return true
	}
	key := uc.Info.Settings[SettingObjectKey]
	if key == "" {
		return true
	}
	md, err := c.media.ObjectMetadata(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			c.logger.Debug("media head failed, re-uploading", "key", key, "error", err)
		}
		return true
	}
	return md.Metadata[storage.MetaContentHash] != uc.Info.Settings[SettingContentHash]
}

func (c *HTTPClient) UploadBeforePublish(ctx context.Context, uc *domain.FileUploadContext) (string, error) {
	log := c.logger.With("fileID", uc.File.FileID, "blogID", uc.BlogID)
	if c.maxUploadBytes > 0 && uc.File.Size > c.maxUploadBytes {
		log.Warn("file exceeds blog upload limit, leaving reference local", "size", uc.File.Size, "limit", c.maxUploadBytes)
		return "", nil
	}

	localPath, err := uc.File.LocalPath()
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", uc.File.FileURI, err)
	}
	f, err := c.open(localPath)
	if err != nil {
		return "", fmt.Errorf("open supporting file: %w", err)
	}
	defer f.Close()

	hash, err := signature.HashReader(f)
	if err != nil {
		return "", fmt.Errorf("hash supporting file: %w", err)
	}
	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", err
	}

	key := c.objectKey(uc)
	metadata := map[string]string{
		storage.MetaContentHash: hash,
		"file-id":               uc.File.FileID,
		"role":                  uc.Role.String(),
	}
	err = backoff.Retry(func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		return c.media.PutObject(ctx, key, uc.File.ContentType, f, size, metadata)
	}, backoff.WithContext(c.newBackOff(), ctx))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", uc.File.FileName, err)
	}

	if old := uc.Info.Settings[SettingObjectKey]; old != "" && old != key {
		// renamed file; the previous object is unreferenced now
		if err := c.media.DeleteObject(ctx, old); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			log.Warn("could not delete superseded media object", "key", old, "error", err)
		}
	}
	uc.Info.Settings[SettingObjectKey] = key
	uc.Info.Settings[SettingContentHash] = hash
	uc.File.ContentHash = hash
	log.Info("uploaded supporting file", "key", key, "size", size)
	return c.media.PublicURL(key), nil
}

type attachMediaRequest struct {
	FileID     string `json:"fileId"`
	URL        string `json:"url"`
	Role       string `json:"role"`
	DirectLink bool   `json:"directLink"`
}

func (c *HTTPClient) UploadAfterPublish(ctx context.Context, uc *domain.FileUploadContext) error {
	if uc.Info.UploadURI == "" {
		return nil
	}
	endpoint := c.postURL(uc.BlogID, uc.PostID) + "/media"
	body := attachMediaRequest{
		FileID:     uc.File.FileID,
		URL:        uc.Info.UploadURI,
		Role:       uc.Role.String(),
		DirectLink: uc.ForceDirectImageLink,
	}
	return backoff.Retry(func() error {
		err := c.doJSON(ctx, http.MethodPost, endpoint, uc.BlogID, body, nil)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(c.newBackOff(), ctx))
}

// postPayload is the wire form of a post.
type postPayload struct {
	ID            string    `json:"id,omitempty"`
	Title         string    `json:"title"`
	Contents      string    `json:"contents"`
	IsPage        bool      `json:"isPage"`
	Slug          string    `json:"slug,omitempty"`
	Permalink     string    `json:"permalink,omitempty"`
	Categories    []string  `json:"categories,omitempty"`
	PingURLs      []string  `json:"pingUrls,omitempty"`
	PingURLsSent  []string  `json:"pingUrlsSent,omitempty"`
	DatePublished time.Time `json:"datePublished,omitzero"`
}

func toPayload(p *domain.BlogPost) postPayload {
	return postPayload{
		ID:         p.ID,
		Title:      p.Title,
		Contents:   p.Contents,
		IsPage:     p.IsPage,
		Slug:       p.Slug,
		Categories: p.Categories,
		PingURLs:   p.PingURLsPending,
	}
}

func (c *HTTPClient) CreatePost(ctx context.Context, blogID string, post *domain.BlogPost, publish bool) (*PostResult, error) {
	endpoint := c.blogURL(blogID) + "/posts?publish=" + strconv.FormatBool(publish)
	var res PostResult
	if err := c.doJSON(ctx, http.MethodPost, endpoint, blogID, toPayload(post), &res); err != nil {
		return nil, err
	}
	if res.PostID == "" {
		return nil, errors.New("blog api: create post returned no id")
	}
	return &res, nil
}

func (c *HTTPClient) EditPost(ctx context.Context, blogID string, post *domain.BlogPost, publish bool) (*PostResult, error) {
	if post.IsNew() {
		return nil, errors.New("edit post: post has no remote id")
	}
	endpoint := c.postURL(blogID, post.ID) + "?publish=" + strconv.FormatBool(publish)
	var res PostResult
	if err := c.doJSON(ctx, http.MethodPut, endpoint, blogID, toPayload(post), &res); err != nil {
		return nil, err
	}
	if res.PostID == "" {
		res.PostID = post.ID
	}
	return &res, nil
}

func (c *HTTPClient) GetPost(ctx context.Context, blogID, postID string, isPage bool) (*domain.BlogPost, error) {
	endpoint := c.postURL(blogID, postID) + "?page=" + strconv.FormatBool(isPage)
	var p postPayload
	if err := c.doJSON(ctx, http.MethodGet, endpoint, blogID, nil, &p); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	if p.ID == "" {
		p.ID = postID
	}
	return &domain.BlogPost{
		ID:                       p.ID,
		IsPage:                   p.IsPage,
		Title:                    p.Title,
		Contents:                 p.Contents,
		Permalink:                p.Permalink,
		Slug:                     p.Slug,
		Categories:               p.Categories,
		DatePublished:            p.DatePublished,
		PingURLsSent:             p.PingURLsSent,
		ContentsVersionSignature: signature.Compute(p.Title, p.Contents),
	}, nil
}

func (c *HTTPClient) Capabilities(ctx context.Context, blogID string) (Capabilities, error) {
	var caps Capabilities
	err := c.doJSON(ctx, http.MethodGet, c.blogURL(blogID)+"/capabilities", blogID, nil, &caps)
	return caps, err
}

func (c *HTTPClient) blogURL(blogID string) string {
	return c.baseURL + "/blogs/" + url.PathEscape(blogID)
}

func (c *HTTPClient) postURL(blogID, postID string) string {
	return c.blogURL(blogID) + "/posts/" + url.PathEscape(postID)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, endpoint, blogID string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	token, err := c.tokens.Sign(blogID)
	if err != nil {
		return fmt.Errorf("sign blog api token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
