package ports

import (
	"context"
	"time"

	"SocialMonitor/internal/domain"
)

// Collector pulls a deduplicated batch of raw posts matching the configured
// keywords from all configured sources, limited to the given time window.
// Implementations must not return two posts with the same PostID in one call.
type Collector interface {
	Collect(ctx context.Context, keywords []string, window time.Duration) ([]domain.RawPost, error)
}

// Enricher attaches sentiment, entity, and topic annotations to a batch of
// posts. The result slice has the same order and length as the input; a
// per-post failure is reported through EnrichResult.Err, not a batch error.
type Enricher interface {
	Enrich(ctx context.Context, posts []domain.RawPost) ([]domain.EnrichResult, error)
}

// PostRepository is the durable store for posts, alerts, and metrics.
type PostRepository interface {
	// UpsertRawPost stores a raw post; returns false without error when the
	// PostID is already present (re-collection is a no-op).
	UpsertRawPost(ctx context.Context, post domain.RawPost) (inserted bool, err error)

	// UpsertEnrichedPost stores enrichment for a post; fails with
	// domain.ErrConstraint when no matching raw post exists.
	UpsertEnrichedPost(ctx context.Context, post domain.EnrichedPost) error

	// FindOpenAlert returns the unacknowledged alert for the key, or nil.
	FindOpenAlert(ctx context.Context, postID, alertType string) (*domain.Alert, error)

	// InsertAlert stores a new OPEN alert; fails with domain.ErrDuplicate
	// when an OPEN alert for the same (post_id, alert_type) already exists.
	InsertAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error)

	// AcknowledgeAlert transitions an OPEN alert to ACKNOWLEDGED; fails with
	// domain.ErrNotFound when absent or already acknowledged.
	AcknowledgeAlert(ctx context.Context, alertID int64, by string) (domain.Alert, error)

	// RecordMetric appends a named observation.
	RecordMetric(ctx context.Context, name string, value float64, metadata map[string]any) error

	// OpenHighPriorityAlerts lists unacknowledged HIGH/CRITICAL alerts
	// triggered at or after since, most recent first.
	OpenHighPriorityAlerts(ctx context.Context, since time.Time) ([]domain.Alert, error)
}

// Notifier delivers a rendered digest over a single channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, digest string) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
