package blogclient

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// serviceUpdates is shared by every detector in the process so that at most one
// capability probe per blog is in flight at any time.
var serviceUpdates singleflight.Group

// ServiceUpdateDetector notices when a blog changes what it supports.
type ServiceUpdateDetector struct {
	client Client
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]Capabilities
}

func NewServiceUpdateDetector(client Client, logger *slog.Logger) *ServiceUpdateDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceUpdateDetector{
		client: client,
		logger: logger.With("component", "service_update"),
		last:   make(map[string]Capabilities),
	}
}

// Detect probes the blog. On failure it falls back to the last known capabilities;
// ok is false when nothing is known at all.
func (d *ServiceUpdateDetector) Detect(ctx context.Context, blogID string) (caps Capabilities, ok bool) {
	v, err, shared := serviceUpdates.Do(blogID, func() (any, error) {
		return d.client.Capabilities(ctx, blogID)
	})
	if err != nil {
		d.logger.Warn("capability probe failed", "blogID", blogID, "error", err)
		return d.Last(blogID)
	}
	caps = v.(Capabilities)

	d.mu.Lock()
	prev, known := d.last[blogID]
	d.last[blogID] = caps
	d.mu.Unlock()

	if known && prev != caps {
		d.logger.Info("blog capabilities changed", "blogID", blogID, "before", prev, "after", caps)
	}
	d.logger.Debug("capability probe", "blogID", blogID, "shared", shared)
	return caps, true
}

// Last returns the most recent successful probe result.
func (d *ServiceUpdateDetector) Last(blogID string) (Capabilities, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	caps, ok := d.last[blogID]
	return caps, ok
}
