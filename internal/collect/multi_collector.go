package collect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"SocialMonitor/internal/config"
	"SocialMonitor/internal/domain"
	"SocialMonitor/internal/ports"
)

// MultiCollector fans one collection pass over all configured sources,
// resolving each source's platform strategy through the registry. Posts are
// deduplicated by post_id across sources: the collector contract forbids
// returning the same post twice in one call.
type MultiCollector struct {
	registry *Registry
	sources  []config.SourceConfig
	limit    int
	logger   *slog.Logger
}

var _ ports.Collector = (*MultiCollector)(nil)

// NewMultiCollector builds a collector over the configured sources.
func NewMultiCollector(registry *Registry, cfg config.MonitoringConfig, logger *slog.Logger) *MultiCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiCollector{
		registry: registry,
		sources:  cfg.Sources,
		limit:    cfg.PostLimit,
		logger:   logger,
	}
}

// Collect gathers raw posts matching keywords from every configured source
// within the window. A single misconfigured source fails the whole call:
// collection is a critical stage and partial silence would mask it.
func (c *MultiCollector) Collect(ctx context.Context, keywords []string, window time.Duration) ([]domain.RawPost, error) {
	seen := make(map[string]struct{})
	var posts []domain.RawPost

	for _, source := range c.sources {
		impl, err := c.registry.Resolve(source.Platform)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", source.Name, err)
		}

		batch, err := impl.Collect(ctx, Request{
			Keywords: keywords,
			Channels: source.Channels,
			Window:   window,
			Limit:    c.limit,
			BaseURL:  source.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("collect from %s: %w", source.Name, err)
		}

		var kept int
		for _, post := range batch {
			if _, dup := seen[post.PostID]; dup {
				continue
			}
			seen[post.PostID] = struct{}{}
			posts = append(posts, post)
			kept++
		}
		c.logger.Debug("source collected", "source", source.Name, "posts", kept, "duplicates", len(batch)-kept)
	}

	return posts, nil
}
