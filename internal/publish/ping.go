package publish

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"alcyxob/blog-publisher/internal/blogclient"
)

const defaultPingTimeout = 10 * time.Second

// sendPings notifies the configured ping services in the background. Failures are
// logged and never reach the caller.
func (o *Orchestrator) sendPings(ctx context.Context, log *slog.Logger) {
	if o.pinger == nil || len(o.blog.PingURLs) == 0 {
		return
	}
	timeout := o.blog.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	limit := o.blog.PingConcurrency
	if limit <= 0 {
		limit = 4
	}
	urls := append([]string(nil), o.blog.PingURLs...)

	// The publish is done; pings must not die with the request context.
	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	o.pings.Add(1)
	go func() {
		defer o.pings.Done()
		defer cancel()

		var g errgroup.Group
		g.SetLimit(limit)
		for _, u := range urls {
			g.Go(func() error {
				err := o.pinger.Ping(pingCtx, u, o.blog.Name, o.blog.HomepageURL)
				switch {
				case errors.Is(err, blogclient.ErrUnsupportedScheme):
					log.Debug("skipping ping url", "url", u)
					o.metrics.Ping("skipped")
				case err != nil:
					log.Warn("ping failed", "url", u, "error", err)
					o.metrics.Ping("failed")
				default:
					o.metrics.Ping("ok")
				}
				return nil
			})
		}
		g.Wait()
	}()
}
