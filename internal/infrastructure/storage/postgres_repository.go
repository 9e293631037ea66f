// Package storage persists posts, alerts, and metrics in Postgres.
//
// The alert dedup invariant lives here, not in application code: a partial
// unique index on (post_id, alert_type) over unacknowledged rows makes the
// store reject a second OPEN alert for the same key, which InsertAlert
// surfaces as domain.ErrDuplicate.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"SocialMonitor/internal/domain"
	"SocialMonitor/internal/ports"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS raw_posts (
    id               BIGSERIAL PRIMARY KEY,
    post_id          VARCHAR(255) UNIQUE NOT NULL,
    platform         VARCHAR(50) NOT NULL,
    title            TEXT,
    body             TEXT,
    author           VARCHAR(255),
    created_at       TIMESTAMPTZ,
    url              TEXT,
    engagement_score INTEGER,
    comment_count    INTEGER,
    source_channel   VARCHAR(255),
    matched_keywords JSONB,
    collected_at     TIMESTAMPTZ,
    inserted_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_raw_posts_platform ON raw_posts (platform);
CREATE INDEX IF NOT EXISTS idx_raw_posts_created_at ON raw_posts (created_at);

CREATE TABLE IF NOT EXISTS processed_posts (
    id              BIGSERIAL PRIMARY KEY,
    post_id         VARCHAR(255) UNIQUE NOT NULL REFERENCES raw_posts (post_id) ON DELETE CASCADE,
    sentiment_label VARCHAR(20),
    sentiment_score DOUBLE PRECISION,
    topics          JSONB,
    entities        JSONB,
    processed_at    TIMESTAMPTZ,
    model_version   VARCHAR(50),
    inserted_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_processed_posts_sentiment ON processed_posts (sentiment_label);
CREATE INDEX IF NOT EXISTS idx_processed_posts_processed_at ON processed_posts (processed_at);

CREATE TABLE IF NOT EXISTS alerts (
    id              BIGSERIAL PRIMARY KEY,
    post_id         VARCHAR(255) NOT NULL,
    alert_type      VARCHAR(100) NOT NULL,
    severity        VARCHAR(20) NOT NULL,
    message         TEXT,
    reasons         JSONB,
    run_id          VARCHAR(64),
    triggered_at    TIMESTAMPTZ NOT NULL,
    acknowledged    BOOLEAN NOT NULL DEFAULT FALSE,
    acknowledged_at TIMESTAMPTZ,
    acknowledged_by VARCHAR(255),
    inserted_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open_key ON alerts (post_id, alert_type) WHERE NOT acknowledged;
CREATE INDEX IF NOT EXISTS idx_alerts_triggered_at ON alerts (triggered_at);
CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts (severity, acknowledged);

CREATE TABLE IF NOT EXISTS pipeline_metrics (
    id              BIGSERIAL PRIMARY KEY,
    metric_name     VARCHAR(100) NOT NULL,
    metric_value    DOUBLE PRECISION NOT NULL,
    metric_metadata JSONB,
    recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_pipeline_metrics_name ON pipeline_metrics (metric_name);
CREATE INDEX IF NOT EXISTS idx_pipeline_metrics_recorded_at ON pipeline_metrics (recorded_at);
`

// Postgres error classes consulted when mapping driver errors.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresRepository implements ports.PostRepository on top of database/sql.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.PostRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// InitSchema creates tables and indexes if they do not exist.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// UpsertRawPost inserts a raw post; a post_id collision is a no-op and
// reports inserted=false.
func (r *PostgresRepository) UpsertRawPost(ctx context.Context, post domain.RawPost) (bool, error) {
	keywords, err := json.Marshal(post.MatchedKeywords)
	if err != nil {
		return false, fmt.Errorf("marshal matched keywords: %w", err)
	}

	query, args, err := r.builder.
		Insert("raw_posts").
		Columns("post_id", "platform", "title", "body", "author", "created_at", "url",
			"engagement_score", "comment_count", "source_channel", "matched_keywords", "collected_at").
		Values(post.PostID, post.Platform, post.Title, post.Body, post.Author, post.CreatedAt, post.URL,
			post.EngagementScore, post.CommentCount, post.SourceChannel, keywords, post.CollectedAt).
		Suffix("ON CONFLICT (post_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build raw post insert: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, mapError("insert raw post", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("raw post rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpsertEnrichedPost stores enrichment for a post, replacing any previous
// enrichment for the same post_id. Fails with domain.ErrConstraint when the
// raw post is missing.
func (r *PostgresRepository) UpsertEnrichedPost(ctx context.Context, post domain.EnrichedPost) error {
	topics, err := json.Marshal(post.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	entities, err := json.Marshal(post.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}

	query, args, err := r.builder.
		Insert("processed_posts").
		Columns("post_id", "sentiment_label", "sentiment_score", "topics", "entities", "processed_at", "model_version").
		Values(post.PostID, string(post.SentimentLabel), post.SentimentScore, topics, entities, post.ProcessedAt, post.ModelVersion).
		Suffix(`ON CONFLICT (post_id) DO UPDATE
            SET sentiment_label = EXCLUDED.sentiment_label,
                sentiment_score = EXCLUDED.sentiment_score,
                topics = EXCLUDED.topics,
                entities = EXCLUDED.entities,
                processed_at = EXCLUDED.processed_at,
                model_version = EXCLUDED.model_version`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build enriched post upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapError("upsert enriched post", err)
	}
	return nil
}

const alertColumns = "id, post_id, alert_type, severity, message, reasons, run_id, triggered_at, acknowledged, acknowledged_at, acknowledged_by"

// FindOpenAlert returns the unacknowledged alert for the key, or nil.
func (r *PostgresRepository) FindOpenAlert(ctx context.Context, postID, alertType string) (*domain.Alert, error) {
	query, args, err := r.builder.
		Select(alertColumns).
		From("alerts").
		Where(sq.Eq{"post_id": postID, "alert_type": alertType, "acknowledged": false}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build open alert query: %w", err)
	}

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("find open alert", err)
	}
	return &alert, nil
}

// InsertAlert stores a new OPEN alert and returns it with its assigned ID.
// The partial unique index on the open (post_id, alert_type) key rejects
// duplicates race-safely; that rejection surfaces as domain.ErrDuplicate.
func (r *PostgresRepository) InsertAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	reasons, err := json.Marshal(alert.Reasons)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("marshal reasons: %w", err)
	}

	query, args, err := r.builder.
		Insert("alerts").
		Columns("post_id", "alert_type", "severity", "message", "reasons", "run_id", "triggered_at").
		Values(alert.PostID, alert.AlertType, string(alert.Severity), alert.Message, reasons, alert.RunID, alert.TriggeredAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Alert{}, fmt.Errorf("build alert insert: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&alert.ID); err != nil {
		return domain.Alert{}, mapError("insert alert", err)
	}
	return alert, nil
}

// AcknowledgeAlert transitions an OPEN alert to ACKNOWLEDGED. The guard on
// the acknowledged flag makes the transition one-way: a second acknowledge
// matches no row and fails with domain.ErrNotFound.
func (r *PostgresRepository) AcknowledgeAlert(ctx context.Context, alertID int64, by string) (domain.Alert, error) {
	query, args, err := r.builder.
		Update("alerts").
		Set("acknowledged", true).
		Set("acknowledged_at", time.Now().UTC()).
		Set("acknowledged_by", by).
		Where(sq.Eq{"id": alertID, "acknowledged": false}).
		Suffix("RETURNING " + alertColumns).
		ToSql()
	if err != nil {
		return domain.Alert{}, fmt.Errorf("build acknowledge update: %w", err)
	}

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Alert{}, fmt.Errorf("acknowledge alert %d: %w", alertID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Alert{}, mapError("acknowledge alert", err)
	}
	return alert, nil
}

// RecordMetric appends a named observation; metric rows are never updated.
func (r *PostgresRepository) RecordMetric(ctx context.Context, name string, value float64, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metric metadata: %w", err)
	}

	query, args, err := r.builder.
		Insert("pipeline_metrics").
		Columns("metric_name", "metric_value", "metric_metadata").
		Values(name, value, meta).
		ToSql()
	if err != nil {
		return fmt.Errorf("build metric insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapError("record metric", err)
	}
	return nil
}

// OpenHighPriorityAlerts lists unacknowledged HIGH/CRITICAL alerts triggered
// at or after since, most recent first.
func (r *PostgresRepository) OpenHighPriorityAlerts(ctx context.Context, since time.Time) ([]domain.Alert, error) {
	query, args, err := r.builder.
		Select(alertColumns).
		From("alerts").
		Where(sq.Eq{"acknowledged": false}).
		Where(sq.Eq{"severity": []string{string(domain.SeverityHigh), string(domain.SeverityCritical)}}).
		Where(sq.GtOrEq{"triggered_at": since}).
		OrderBy("triggered_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build high priority query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("query high priority alerts", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan alert row: %w", scanErr)
		}
		alerts = append(alerts, alert)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("alert rows iteration: %w", rowsErr)
	}

	return alerts, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (domain.Alert, error) {
	var (
		alert    domain.Alert
		severity string
		reasons  []byte
		ackAt    sql.NullTime
		ackBy    sql.NullString
		runID    sql.NullString
		message  sql.NullString
	)

	err := row.Scan(&alert.ID, &alert.PostID, &alert.AlertType, &severity, &message,
		&reasons, &runID, &alert.TriggeredAt, &alert.Acknowledged, &ackAt, &ackBy)
	if err != nil {
		return domain.Alert{}, err
	}

	alert.Severity = domain.Severity(severity)
	alert.Message = message.String
	alert.RunID = runID.String
	alert.AcknowledgedBy = ackBy.String
	if ackAt.Valid {
		t := ackAt.Time
		alert.AcknowledgedAt = &t
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &alert.Reasons); err != nil {
			return domain.Alert{}, fmt.Errorf("unmarshal reasons: %w", err)
		}
	}
	return alert, nil
}

// mapError translates driver errors into the shared taxonomy. Integrity
// violations are permanent; everything else from the driver is treated as
// transient (connection loss, timeouts) so the retry wrapper can act on it.
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w", op, domain.ErrDuplicate)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, domain.ErrConstraint)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.Transient(fmt.Errorf("%s: %w", op, err))
}
