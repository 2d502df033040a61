// Package blogclienttest provides an in-memory blogclient.Client for tests.
package blogclienttest

import (
	"context"
	"fmt"
	"sync"

	"alcyxob/blog-publisher/internal/blogclient"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/signature"
)

// Submission records one CreatePost/EditPost call.
type Submission struct {
	Post    *domain.BlogPost
	Publish bool
	Edit    bool
}

// AfterCall records one UploadAfterPublish call.
type AfterCall struct {
	FileID string
	PostID string
	URI    string
	Role   domain.FileUploadRole
}

// Fake is a scriptable blog. The zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	// UploadURIs maps file id to the URI UploadBeforePublish returns.
	// Files without an entry get https://cdn.example/<FileName>.
	UploadURIs map[string]string
	// Declined file ids make UploadBeforePublish return "".
	Declined map[string]bool
	// UploadErrs fail UploadBeforePublish for the file id.
	UploadErrs map[string]error
	// AlwaysNeedsUpload disables the "already has an URI" shortcut.
	AlwaysNeedsUpload bool

	AfterErr   error
	CreateErr  error
	EditErr    error
	GetErr     error
	Caps       blogclient.Capabilities
	CapsErr    error
	BlockGetOn chan struct{} // GetPost waits on it (or ctx) when set
	// BlockSubmitOn makes CreatePost/EditPost wait on it (or ctx). Submitting,
	// when set, receives one value as each such call starts waiting.
	BlockSubmitOn chan struct{}
	Submitting    chan struct{}

	Posts map[string]*domain.BlogPost

	BeforeCalls map[string]int
	AfterCalls  []AfterCall
	Submissions []Submission
	GetCalls    int
	CapsCalls   int

	nextID int
}

var _ blogclient.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		UploadURIs:  map[string]string{},
		Declined:    map[string]bool{},
		UploadErrs:  map[string]error{},
		Posts:       map[string]*domain.BlogPost{},
		BeforeCalls: map[string]int{},
		Caps:        blogclient.Capabilities{SupportsSync: true},
	}
}

func (f *Fake) NeedsUpload(ctx context.Context, uc *domain.FileUploadContext) bool {
	if f.AlwaysNeedsUpload {
		return true
	}
	return uc.Info.UploadURI == ""
}

func (f *Fake) UploadBeforePublish(ctx context.Context, uc *domain.FileUploadContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uc.File.FileID
	f.BeforeCalls[id]++
	if err := f.UploadErrs[id]; err != nil {
		return "", err
	}
	if f.Declined[id] {
		return "", nil
	}
	if uri, ok := f.UploadURIs[id]; ok {
		return uri, nil
	}
	return "https://cdn.example/" + uc.File.FileName, nil
}

func (f *Fake) UploadAfterPublish(ctx context.Context, uc *domain.FileUploadContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AfterCalls = append(f.AfterCalls, AfterCall{FileID: uc.File.FileID, PostID: uc.PostID, URI: uc.Info.UploadURI, Role: uc.Role})
	return f.AfterErr
}

func (f *Fake) waitSubmit(ctx context.Context) error {
	f.mu.Lock()
	block, started := f.BlockSubmitOn, f.Submitting
	f.mu.Unlock()
	if block == nil {
		return nil
	}
	if started != nil {
		started <- struct{}{}
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) CreatePost(ctx context.Context, blogID string, post *domain.BlogPost, publish bool) (*blogclient.PostResult, error) {
	if err := f.waitSubmit(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submissions = append(f.Submissions, Submission{Post: post.Clone(), Publish: publish})
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextID++
	id := fmt.Sprintf("post-%d", f.nextID)
	stored := post.Clone()
	stored.ID = id
	stored.ContentsVersionSignature = ""
	stored.Permalink = "https://blog.example/" + id
	stored.Slug = id
	f.Posts[id] = stored
	return &blogclient.PostResult{PostID: id, Permalink: stored.Permalink, Slug: stored.Slug}, nil
}

func (f *Fake) EditPost(ctx context.Context, blogID string, post *domain.BlogPost, publish bool) (*blogclient.PostResult, error) {
	if err := f.waitSubmit(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submissions = append(f.Submissions, Submission{Post: post.Clone(), Publish: publish, Edit: true})
	if f.EditErr != nil {
		return nil, f.EditErr
	}
	stored := post.Clone()
	stored.ContentsVersionSignature = ""
	if stored.Permalink == "" {
		stored.Permalink = "https://blog.example/" + post.ID
	}
	f.Posts[post.ID] = stored
	return &blogclient.PostResult{PostID: post.ID, Permalink: stored.Permalink, Slug: stored.Slug}, nil
}

func (f *Fake) GetPost(ctx context.Context, blogID, postID string, isPage bool) (*domain.BlogPost, error) {
	f.mu.Lock()
	f.GetCalls++
	block := f.BlockGetOn
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	p, ok := f.Posts[postID]
	if !ok {
		return nil, blogclient.ErrPostNotFound
	}
	out := p.Clone()
	if out.ContentsVersionSignature == "" {
		out.ContentsVersionSignature = signature.Compute(out.Title, out.Contents)
	}
	return out, nil
}

func (f *Fake) Capabilities(ctx context.Context, blogID string) (blogclient.Capabilities, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CapsCalls++
	return f.Caps, f.CapsErr
}

// LastSubmission returns the most recent CreatePost/EditPost call.
func (f *Fake) LastSubmission() (Submission, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Submissions) == 0 {
		return Submission{}, false
	}
	return f.Submissions[len(f.Submissions)-1], true
}

// Pinger records pings.
type Pinger struct {
	mu    sync.Mutex
	Calls []string
	Err   error
	Done  chan struct{} // receives one value per ping when non-nil
}

func (p *Pinger) Ping(ctx context.Context, pingURL, blogName, blogURL string) error {
	p.mu.Lock()
	p.Calls = append(p.Calls, pingURL)
	err := p.Err
	done := p.Done
	p.mu.Unlock()
	if done != nil {
		done <- struct{}{}
	}
	return err
}

func (p *Pinger) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
