// Package reddit collects posts from the public Reddit JSON listings.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"SocialMonitor/internal/collect"
	"SocialMonitor/internal/domain"
)

const (
	platformName     = "reddit"
	defaultBaseURL   = "https://www.reddit.com"
	defaultLimit     = 50
	defaultUserAgent = "social-monitor/1.0"
)

// Collector implements the reddit platform strategy against the /r/<sub>/new
// listing endpoint.
type Collector struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
	now       func() time.Time
}

var _ collect.Source = (*Collector)(nil)

// NewCollector creates a reusable reddit client. A nil http.Client gets a
// bounded-timeout default.
func NewCollector(client *http.Client, userAgent string, logger *slog.Logger) *Collector {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{client: client, userAgent: userAgent, logger: logger, now: time.Now}
}

// Name identifies the platform this source handles.
func (c *Collector) Name() string {
	return platformName
}

// listing mirrors the slice of the Reddit listing payload we consume.
type listing struct {
	Data struct {
		Children []struct {
			Data listingPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type listingPost struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Selftext     string  `json:"selftext"`
	SelftextHTML string  `json:"selftext_html"`
	Author       string  `json:"author"`
	CreatedUTC   float64 `json:"created_utc"`
	Permalink    string  `json:"permalink"`
	Score        int     `json:"score"`
	NumComments  int     `json:"num_comments"`
	Subreddit    string  `json:"subreddit"`
}

// Collect pulls the newest posts from every requested subreddit, keeps those
// inside the window that match at least one keyword, and never returns the
// same post_id twice.
func (c *Collector) Collect(ctx context.Context, req collect.Request) ([]domain.RawPost, error) {
	base := req.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	cutoff := c.now().Add(-req.Window)
	seen := make(map[string]struct{})
	var posts []domain.RawPost

	for _, channel := range req.Channels {
		page, err := c.fetchListing(ctx, base, channel, limit)
		if err != nil {
			return nil, err
		}

		for _, child := range page.Data.Children {
			entry := child.Data
			createdAt := time.Unix(int64(entry.CreatedUTC), 0).UTC()
			if req.Window > 0 && createdAt.Before(cutoff) {
				continue
			}

			body := flattenBody(entry)
			matched := matchKeywords(req.Keywords, entry.Title, body)
			if len(matched) == 0 {
				continue
			}

			postID := platformName + "_" + entry.ID
			if _, dup := seen[postID]; dup {
				continue
			}
			seen[postID] = struct{}{}

			posts = append(posts, domain.RawPost{
				PostID:          postID,
				Platform:        platformName,
				Title:           entry.Title,
				Body:            body,
				Author:          entry.Author,
				CreatedAt:       createdAt,
				URL:             base + entry.Permalink,
				EngagementScore: entry.Score,
				CommentCount:    entry.NumComments,
				SourceChannel:   entry.Subreddit,
				MatchedKeywords: matched,
				CollectedAt:     c.now().UTC(),
			})
		}

		c.logger.Debug("subreddit scanned", "subreddit", channel, "kept", len(posts))
	}

	return posts, nil
}

func (c *Collector) fetchListing(ctx context.Context, base, channel string, limit int) (*listing, error) {
	endpoint := fmt.Sprintf("%s/r/%s/new.json?limit=%s", base, url.PathEscape(channel), url.QueryEscape(fmt.Sprint(limit)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("fetch r/%s: %w", channel, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.Transient(fmt.Errorf("fetch r/%s: status %s", channel, resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch r/%s: status %s", channel, resp.Status)
	}

	var page listing
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode r/%s listing: %w", channel, err)
	}
	return &page, nil
}

// flattenBody prefers the HTML rendering of a post body, reduced to plain
// text, over the raw markdown. Listings escape the HTML fragment, so both
// unescaping and tag stripping happen here.
func flattenBody(entry listingPost) string {
	if entry.SelftextHTML == "" {
		return entry.Selftext
	}

	fragment := htmlUnescape(entry.SelftextHTML)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return entry.Selftext
	}

	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return entry.Selftext
	}
	return text
}

var htmlUnescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&amp;", "&",
)

func htmlUnescape(s string) string {
	return htmlUnescaper.Replace(s)
}

// matchKeywords returns the configured keywords found in the title or body,
// case-insensitively, preserving keyword order.
func matchKeywords(keywords []string, title, body string) []string {
	haystack := strings.ToLower(title + "\n" + body)
	var matched []string
	for _, kw := range keywords {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		if strings.Contains(haystack, needle) {
			matched = append(matched, kw)
		}
	}
	return matched
}
