package domain

import "time"

// SentimentLabel classifies the dominant tone detected in a post.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "POSITIVE"
	SentimentNegative SentimentLabel = "NEGATIVE"
	SentimentNeutral  SentimentLabel = "NEUTRAL"
)

// RawPost is a post as collected from a platform; immutable once stored.
// PostID is assigned by the source and unique within a platform.
type RawPost struct {
	PostID          string
	Platform        string
	Title           string
	Body            string
	Author          string
	CreatedAt       time.Time
	URL             string
	EngagementScore int
	CommentCount    int
	SourceChannel   string
	MatchedKeywords []string
	CollectedAt     time.Time
}

// Entity is a named entity extracted from a post.
type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"`
	Span [2]int `json:"span"`
}

// EnrichedPost carries machine-derived signals for a raw post.
// SentimentScore is the model's confidence in the label, not a polarity.
type EnrichedPost struct {
	PostID         string
	SentimentLabel SentimentLabel
	SentimentScore float64
	Topics         []string
	Entities       []Entity
	ProcessedAt    time.Time
	ModelVersion   string
}

// EnrichResult reports the per-post outcome of a batch enrichment call.
// The enricher returns one result per input post, in input order.
type EnrichResult struct {
	Enriched EnrichedPost
	Err      error
}
