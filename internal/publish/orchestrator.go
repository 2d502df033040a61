package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"alcyxob/blog-publisher/internal/asyncop"
	"alcyxob/blog-publisher/internal/blogclient"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/metrics"
)

var (
	ErrNoPost       = errors.New("editing context has no post")
	ErrUploadFailed = errors.New("supporting file upload failed")
	ErrSubmitFailed = errors.New("post submission failed")
)

// State is a step of the publish transaction.
type State int

const (
	StateIdle State = iota
	StateSnapshottedOriginal
	StateFilesUploadedAndRewritten
	StateSubmitted
	StateRestored
	StateAfterPublishUploaded
	StateAfterPublishUploadFailed
	StateDone
)

var stateNames = [...]string{
	"idle",
	"snapshotted_original",
	"files_uploaded_and_rewritten",
	"submitted",
	"restored",
	"after_publish_uploaded",
	"after_publish_upload_failed",
	"done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome separates a clean publish from one whose best-effort phases failed.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeDegraded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeDegraded:
		return "degraded"
	default:
		return "failed"
	}
}

// ClassifyOutcome maps a Publish return to its outcome kind.
func ClassifyOutcome(res *domain.PublishingResult, err error) Outcome {
	switch {
	case err != nil || res == nil:
		return OutcomeFailed
	case res.AfterPublishErr != nil:
		return OutcomeDegraded
	default:
		return OutcomeSucceeded
	}
}

// BlogSettings is the destination a publish targets.
type BlogSettings struct {
	ID              string
	Name            string
	HomepageURL     string
	Lightbox        bool
	PingURLs        []string
	PingTimeout     time.Duration
	PingConcurrency int
	// RequestTimeout bounds each network phase of a publish. Zero leaves the
	// phases to the transport's own timeouts.
	RequestTimeout time.Duration
}

// Orchestrator publishes editing contexts to one blog. Each call to Publish is an
// independent transaction with its own upload bookkeeping.
type Orchestrator struct {
	client   blogclient.Client
	pinger   blogclient.Pinger
	detector *blogclient.ServiceUpdateDetector
	blog     BlogSettings
	logger   *slog.Logger
	metrics  *metrics.Collectors

	pings sync.WaitGroup
}

func NewOrchestrator(client blogclient.Client, pinger blogclient.Pinger, detector *blogclient.ServiceUpdateDetector, blog BlogSettings, logger *slog.Logger, m *metrics.Collectors) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client:   client,
		pinger:   pinger,
		detector: detector,
		blog:     blog,
		logger:   logger.With("component", "publish", "blogID", blog.ID),
		metrics:  m,
	}
}

// Progress is the asyncop progress event for s.
func (s State) Progress() asyncop.Progress {
	return asyncop.Progress{Step: s.String(), Completed: int(s), Total: int(StateDone)}
}

// Start runs Publish on its own goroutine. Progress events carry the state name.
// Cancelling the operation does not interrupt a publish already under way.
func (o *Orchestrator) Start(ctx context.Context, ec *domain.EditingContext, publish bool) *asyncop.Operation[*domain.PublishingResult] {
	return asyncop.Start(ctx, func(ctx context.Context, report asyncop.ReportFunc) (*domain.PublishingResult, error) {
		return o.PublishWithProgress(ctx, ec, publish, func(s State) { report(s.Progress()) })
	})
}

// Publish runs the transaction synchronously. Only a failed upload or submission
// returns an error; the post contents on ec are the same afterwards either way.
func (o *Orchestrator) Publish(ctx context.Context, ec *domain.EditingContext, publish bool) (*domain.PublishingResult, error) {
	return o.PublishWithProgress(ctx, ec, publish, nil)
}

// PublishWithProgress is Publish with report called on every state transition.
// The transaction ignores cancellation of ctx: once files start uploading the
// post has to be submitted and its contents restored, otherwise the server keeps
// orphaned files and the caller has no result to persist. Each network phase is
// bounded by BlogSettings.RequestTimeout instead.
func (o *Orchestrator) PublishWithProgress(ctx context.Context, ec *domain.EditingContext, publish bool, report func(State)) (res *domain.PublishingResult, err error) {
	if ec == nil || ec.Post == nil {
		return nil, ErrNoPost
	}
	if report == nil {
		report = func(State) {}
	}
	ctx = context.WithoutCancel(ctx)
	mode := "draft"
	if publish {
		mode = "publish"
	}
	base := o.logger.With("mode", mode)
	log := base.With("postID", ec.RemotePostID())
	start := time.Now()
	defer func() {
		o.metrics.Publish(mode, ClassifyOutcome(res, err).String(), time.Since(start).Seconds())
	}()

	report(StateIdle)
	if o.detector != nil {
		detectCtx, cancel := o.phaseContext(ctx)
		o.detector.Detect(detectCtx, o.blog.ID)
		cancel()
	}

	uploader, err := OpenLocalSupportingFileUploader(ec, FixerOptions{
		BlogID:   o.blog.ID,
		Lightbox: o.blog.Lightbox,
		Logger:   log,
		Metrics:  o.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("scan post references: %w", err)
	}
	defer uploader.Close()
	report(StateSnapshottedOriginal)

	uploadCtx, cancelUpload := o.phaseContext(ctx)
	err = uploader.UploadFilesBeforePublish(uploadCtx, o.client)
	cancelUpload()
	if err != nil {
		log.Error("upload before publish failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	report(StateFilesUploadedAndRewritten)

	var posted *blogclient.PostResult
	submitCtx, cancelSubmit := o.phaseContext(ctx)
	if ec.Post.IsNew() {
		posted, err = o.client.CreatePost(submitCtx, o.blog.ID, ec.Post, publish)
	} else {
		posted, err = o.client.EditPost(submitCtx, o.blog.ID, ec.Post, publish)
	}
	cancelSubmit()
	if err != nil {
		log.Error("post submission failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	report(StateSubmitted)

	uploader.Close()
	report(StateRestored)

	ec.Post.ID = posted.PostID
	if posted.Permalink != "" {
		ec.Post.Permalink = posted.Permalink
	}
	if posted.Slug != "" {
		ec.Post.Slug = posted.Slug
	}
	if publish {
		// The server notifies the pending trackbacks it was handed with the post.
		ec.Post.PingURLsSent, ec.Post.PingURLsPending = markTrackbacksSent(ec.Post), nil
	}
	res = &domain.PublishingResult{
		PostID:    posted.PostID,
		Permalink: ec.Post.Permalink,
		Slug:      ec.Post.Slug,
		Published: publish,
	}
	log = base.With("postID", posted.PostID)

	// From here on the post exists on the server. Failing now would make the
	// caller retry and publish it twice, so everything is best effort.
	afterCtx, cancelAfter := o.phaseContext(ctx)
	afterErr := uploader.UploadFilesAfterPublish(afterCtx, posted.PostID, o.client)
	cancelAfter()
	if afterErr != nil {
		log.Warn("after-publish upload failed", "error", afterErr)
		res.AfterPublishErr = afterErr
		report(StateAfterPublishUploadFailed)
	} else {
		report(StateAfterPublishUploaded)
	}

	o.refreshFromServer(ctx, ec, res, log)

	if publish {
		o.sendPings(ctx, log)
	}
	report(StateDone)
	log.Info("publish finished", "permalink", res.Permalink, "outcome", ClassifyOutcome(res, nil))
	return res, nil
}

// refreshFromServer records the signature and permalink of the copy the server now holds.
func (o *Orchestrator) refreshFromServer(ctx context.Context, ec *domain.EditingContext, res *domain.PublishingResult, log *slog.Logger) {
	ctx, cancel := o.phaseContext(ctx)
	defer cancel()
	server, err := o.client.GetPost(ctx, o.blog.ID, res.PostID, ec.Post.IsPage)
	if err != nil {
		log.Warn("could not re-fetch published post", "error", err)
		return
	}
	res.ContentsVersionSignature = server.ContentsVersionSignature
	ec.Post.ContentsVersionSignature = server.ContentsVersionSignature
	if server.Permalink != "" {
		res.Permalink = server.Permalink
		ec.Post.Permalink = server.Permalink
	}
	if !server.DatePublished.IsZero() {
		ec.Post.DatePublished = server.DatePublished
	}
}

func (o *Orchestrator) phaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.blog.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.blog.RequestTimeout)
}

func markTrackbacksSent(p *domain.BlogPost) []string {
	sent := slices.Clone(p.PingURLsSent)
	for _, u := range p.PingURLsPending {
		if !slices.Contains(sent, u) {
			sent = append(sent, u)
		}
	}
	return sent
}

// WaitForPings blocks until pings started by earlier publishes are done.
func (o *Orchestrator) WaitForPings() {
	o.pings.Wait()
}
