package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialMonitor/internal/domain"
)

func testPosts() []domain.RawPost {
	return []domain.RawPost{
		{PostID: "reddit_aaa", Title: "outage", Body: "everything broken"},
		{PostID: "reddit_bbb", Title: "question", Body: "how do I reset"},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := NewClient(server.URL, "test-key", "v1.0")
	c.http = server.Client()
	return c
}

func TestEnrichDecodesResults(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Posts, 2)
		assert.Equal(t, "reddit_aaa", req.Posts[0].PostID)

		fmt.Fprint(w, `{"results":[
			{"post_id":"reddit_aaa","sentiment_label":"NEGATIVE","sentiment_score":0.94,
			 "topics":["reliability"],
			 "entities":[{"text":"Acme","type":"ORG","start":0,"end":4}],
			 "model_version":"v1.1"},
			{"post_id":"reddit_bbb","sentiment_label":"NEUTRAL","sentiment_score":0.51}
		]}`)
	})

	results, err := c.Enrich(context.Background(), testPosts())
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	require.NoError(t, first.Err)
	assert.Equal(t, "reddit_aaa", first.Enriched.PostID)
	assert.Equal(t, domain.SentimentNegative, first.Enriched.SentimentLabel)
	assert.InDelta(t, 0.94, first.Enriched.SentimentScore, 1e-9)
	assert.Equal(t, []string{"reliability"}, first.Enriched.Topics)
	require.Len(t, first.Enriched.Entities, 1)
	assert.Equal(t, domain.Entity{Text: "Acme", Type: "ORG", Span: [2]int{0, 4}}, first.Enriched.Entities[0])
	assert.Equal(t, "v1.1", first.Enriched.ModelVersion)

	// A result without its own model version inherits the configured one.
	assert.Equal(t, "v1.0", results[1].Enriched.ModelVersion)
}

func TestEnrichPerPostError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[
			{"post_id":"reddit_aaa","sentiment_label":"NEGATIVE","sentiment_score":0.9},
			{"post_id":"reddit_bbb","error":"text too long"}
		]}`)
	})

	results, err := c.Enrich(context.Background(), testPosts())
	require.NoError(t, err, "per-post failures must not fail the batch")
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Err.Error(), "text too long")
}

func TestEnrichCountMismatch(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[{"post_id":"reddit_aaa","sentiment_label":"NEGATIVE","sentiment_score":0.9}]}`)
	})

	_, err := c.Enrich(context.Background(), testPosts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 results for 2 posts")
}

func TestEnrichServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Enrich(context.Background(), testPosts())
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestEnrichAuthFailureIsPermanent(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Enrich(context.Background(), testPosts())
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err), "bad credentials will not heal by retrying")
}

func TestEnrichNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	c := NewClient(server.URL, "", "v1.0")
	c.http = &http.Client{Timeout: time.Second}
	server.Close()

	_, err := c.Enrich(context.Background(), testPosts())
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}
