// Package ml talks to the external enrichment service for sentiment,
// entity, and topic annotations.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"SocialMonitor/internal/domain"
	"SocialMonitor/internal/ports"
)

// Client posts batches to the inference endpoint. Batch-level failures
// (network, 5xx) are transient; per-post failures come back inside the
// result items and never fail the batch.
type Client struct {
	endpoint     string
	apiKey       string
	modelVersion string
	http         *http.Client
	now          func() time.Time
}

var _ ports.Enricher = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey, modelVersion string) *Client {
	return &Client{
		endpoint:     endpoint,
		apiKey:       apiKey,
		modelVersion: modelVersion,
		http:         &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

type analyzeItem struct {
	PostID string `json:"post_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

type analyzeRequest struct {
	Posts []analyzeItem `json:"posts"`
}

type analyzedEntity struct {
	Text  string `json:"text"`
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type analyzedItem struct {
	PostID         string           `json:"post_id"`
	SentimentLabel string           `json:"sentiment_label"`
	SentimentScore float64          `json:"sentiment_score"`
	Topics         []string         `json:"topics"`
	Entities       []analyzedEntity `json:"entities"`
	ModelVersion   string           `json:"model_version"`
	Error          string           `json:"error,omitempty"`
}

type analyzeResponse struct {
	Results []analyzedItem `json:"results"`
}

// Enrich sends the batch for analysis. The returned slice has one result per
// input post, in input order; a post the service could not analyze carries
// its error in EnrichResult.Err.
func (c *Client) Enrich(ctx context.Context, posts []domain.RawPost) ([]domain.EnrichResult, error) {
	payload := analyzeRequest{Posts: make([]analyzeItem, 0, len(posts))}
	for _, post := range posts {
		payload.Posts = append(payload.Posts, analyzeItem{
			PostID: post.PostID,
			Title:  post.Title,
			Body:   post.Body,
		})
	}

	var decoded analyzeResponse
	if err := c.post(ctx, "/analyze", payload, &decoded); err != nil {
		return nil, err
	}
	if len(decoded.Results) != len(posts) {
		return nil, fmt.Errorf("enrichment returned %d results for %d posts", len(decoded.Results), len(posts))
	}

	processedAt := c.now().UTC()
	results := make([]domain.EnrichResult, 0, len(posts))
	for i, item := range decoded.Results {
		if item.Error != "" {
			results = append(results, domain.EnrichResult{Err: errors.New(item.Error)})
			continue
		}

		entities := make([]domain.Entity, 0, len(item.Entities))
		for _, entity := range item.Entities {
			entities = append(entities, domain.Entity{
				Text: entity.Text,
				Type: entity.Type,
				Span: [2]int{entity.Start, entity.End},
			})
		}

		version := item.ModelVersion
		if version == "" {
			version = c.modelVersion
		}

		results = append(results, domain.EnrichResult{Enriched: domain.EnrichedPost{
			PostID:         posts[i].PostID,
			SentimentLabel: domain.SentimentLabel(item.SentimentLabel),
			SentimentScore: item.SentimentScore,
			Topics:         item.Topics,
			Entities:       entities,
			ProcessedAt:    processedAt,
			ModelVersion:   version,
		}})
	}

	return results, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Transient(fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return domain.Transient(fmt.Errorf("unexpected status %s", resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
