// Package reconcile decides, when a post is opened, whether the local copy or the
// server copy of a published post becomes the effective editing context.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"alcyxob/blog-publisher/internal/asyncop"
	"alcyxob/blog-publisher/internal/blogclient"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/metrics"
	"alcyxob/blog-publisher/internal/repository"
)

// Decision names the branch Synchronize took.
type Decision string

const (
	DecisionSavedDraft     Decision = "saved_draft"
	DecisionExistingDraft  Decision = "existing_draft"
	DecisionUnsupported    Decision = "sync_unsupported"
	DecisionNoServerCopy   Decision = "no_server_copy"
	DecisionKeptLocal      Decision = "kept_local"
	DecisionTookServer     Decision = "took_server"
	DecisionSavedElsewhere Decision = "saved_elsewhere"
	DecisionNoLocalCopy    Decision = "no_local_copy"
)

// PostFinder looks up local copies of a published post.
type PostFinder interface {
	FindByRemotePost(ctx context.Context, blogID, postID string, kind domain.PostKind) (*domain.EditingContext, error)
}

type Options struct {
	// SupportsSync is the configured default; a capability probe overrides it when a
	// detector is set.
	SupportsSync bool
	Detector     *blogclient.ServiceUpdateDetector
	FetchTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Collectors
}

// Synchronizer reconciles local copies with the server. Synchronize never fails:
// every problem talking to the server degrades to the local copy.
type Synchronizer struct {
	client       blogclient.Client
	finder       PostFinder
	supportsSync bool
	detector     *blogclient.ServiceUpdateDetector
	fetchTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Collectors
}

func NewSynchronizer(client blogclient.Client, finder PostFinder, opts Options) *Synchronizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Synchronizer{
		client:       client,
		finder:       finder,
		supportsSync: opts.SupportsSync,
		detector:     opts.Detector,
		fetchTimeout: timeout,
		logger:       logger.With("component", "reconcile"),
		metrics:      opts.Metrics,
	}
}

// Synchronize returns the editing context to open in place of local. The result is
// either local itself, another stored copy, or a new context merging the server post.
func (s *Synchronizer) Synchronize(ctx context.Context, local *domain.EditingContext) *domain.EditingContext {
	ec, _ := s.Reconcile(ctx, local)
	return ec
}

// Reconcile is Synchronize that also reports the branch taken. Callers persisting
// the result only need to store it for DecisionKeptLocal and DecisionTookServer.
func (s *Synchronizer) Reconcile(ctx context.Context, local *domain.EditingContext) (*domain.EditingContext, Decision) {
	ec, decision := s.synchronize(ctx, local)
	s.metrics.SyncDecision(string(decision))
	s.logger.Debug("synchronized", "blogID", local.BlogID, "postID", local.RemotePostID(), "kind", local.Kind, "decision", decision)
	return ec, decision
}

// Merged reports whether the decision produced a new context that should be stored.
func (d Decision) Merged() bool {
	return d == DecisionKeptLocal || d == DecisionTookServer
}

func (s *Synchronizer) synchronize(ctx context.Context, local *domain.EditingContext) (*domain.EditingContext, Decision) {
	switch {
	case local.Kind == domain.KindDraft && local.Saved:
		return local, DecisionSavedDraft
	case local.Kind == domain.KindRecentPost:
		return s.syncRecentPost(ctx, local)
	case local.Kind == domain.KindRemote:
		return s.syncFromServer(ctx, local)
	default:
		return local, DecisionSavedElsewhere
	}
}

func (s *Synchronizer) syncRecentPost(ctx context.Context, local *domain.EditingContext) (*domain.EditingContext, Decision) {
	if local.Post == nil {
		return local, DecisionNoServerCopy
	}
	if draft := s.find(ctx, local.BlogID, local.RemotePostID(), domain.KindDraft); draft != nil {
		return draft, DecisionExistingDraft
	}
	if !s.syncSupported(ctx, local.BlogID) {
		return local, DecisionUnsupported
	}
	server := s.fetch(ctx, local)
	if server == nil {
		return local, DecisionNoServerCopy
	}
	return s.merge(local, server)
}

// syncFromServer handles a post opened straight from the server. remote.Post is the
// server copy; an existing local copy wins over a fresh context.
func (s *Synchronizer) syncFromServer(ctx context.Context, remote *domain.EditingContext) (*domain.EditingContext, Decision) {
	postID := remote.RemotePostID()
	existing := s.find(ctx, remote.BlogID, postID, domain.KindDraft)
	if existing == nil {
		existing = s.find(ctx, remote.BlogID, postID, domain.KindRecentPost)
	}
	if existing == nil {
		return remote, DecisionNoLocalCopy
	}
	return s.merge(existing, remote.Post)
}

func (s *Synchronizer) find(ctx context.Context, blogID, postID string, kind domain.PostKind) *domain.EditingContext {
	if s.finder == nil || postID == "" {
		return nil
	}
	ec, err := s.finder.FindByRemotePost(ctx, blogID, postID, kind)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("local copy lookup failed", "blogID", blogID, "postID", postID, "kind", kind, "error", err)
		}
		return nil
	}
	return ec
}

func (s *Synchronizer) syncSupported(ctx context.Context, blogID string) bool {
	if s.detector != nil {
		if caps, ok := s.detector.Detect(ctx, blogID); ok {
			return caps.SupportsSync
		}
	}
	return s.supportsSync
}

// fetch gets the server copy on its own operation so the caller's context can
// cancel it. Cancellation and errors both mean "no server copy".
func (s *Synchronizer) fetch(ctx context.Context, local *domain.EditingContext) *domain.BlogPost {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	op := asyncop.Start(ctx, func(ctx context.Context, report asyncop.ReportFunc) (*domain.BlogPost, error) {
		report(asyncop.Progress{Step: "fetch_post", Total: 1})
		return s.client.GetPost(ctx, local.BlogID, local.RemotePostID(), local.Post.IsPage)
	})
	post, err := op.Wait()
	switch {
	case err == nil && post != nil:
		return post
	case op.State() == asyncop.EventCancelled:
		s.logger.Info("server fetch cancelled", "postID", local.RemotePostID())
	case err != nil:
		s.logger.Warn("server fetch failed, using local copy", "postID", local.RemotePostID(), "error", err)
	}
	return nil
}

// merge splices server into a copy of local, keeping the local supporting files.
func (s *Synchronizer) merge(local *domain.EditingContext, server *domain.BlogPost) (*domain.EditingContext, Decision) {
	merged := local.Clone()
	post := merged.Post
	if post == nil {
		post = &domain.BlogPost{}
		merged.Post = post
	}

	post.PingURLsSent, post.PingURLsPending = MergeTrackbacks(post, server)

	post.ID = server.ID
	post.IsPage = server.IsPage
	if server.Permalink != "" {
		post.Permalink = server.Permalink
	}
	if server.Slug != "" {
		post.Slug = server.Slug
	}
	if server.Categories != nil {
		post.Categories = slices.Clone(server.Categories)
	}
	if !server.DatePublished.IsZero() {
		post.DatePublished = server.DatePublished
	}

	// An unchanged server signature means the server still holds what was last
	// published from here, so local edits are newer.
	if post.ContentsVersionSignature != "" && post.ContentsVersionSignature == server.ContentsVersionSignature {
		return merged, DecisionKeptLocal
	}

	post.Title = server.Title
	merged.Format = domain.FormatHTML
	post.Contents = RemapUploadedImages(server.Contents, merged.BlogID, merged.SupportingFiles, s.logger)
	post.ContentsVersionSignature = server.ContentsVersionSignature
	return merged, DecisionTookServer
}

// MergeTrackbacks returns the union of sent trackbacks and the client's pending
// trackbacks that are not in it.
func MergeTrackbacks(client, server *domain.BlogPost) (sent, pending []string) {
	seen := make(map[string]bool)
	for _, list := range [][]string{client.PingURLsSent, server.PingURLsSent} {
		for _, u := range list {
			if !seen[u] {
				seen[u] = true
				sent = append(sent, u)
			}
		}
	}
	for _, u := range client.PingURLsPending {
		if !seen[u] {
			seen[u] = true
			pending = append(pending, u)
		}
	}
	return sent, pending
}
