package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialMonitor/internal/config"
	"SocialMonitor/internal/domain"
)

func testAlertsConfig() config.AlertsConfig {
	return config.AlertsConfig{
		CriticalKeywords: []string{"breach", "outage"},
		WatchKeywords:    []string{"refund", "downtime"},
		Rules: []config.RuleConfig{
			{
				Name:                "high_negative_engagement",
				Kind:                config.RuleNegativeEngagement,
				SentimentThreshold:  0.7,
				EngagementThreshold: 500,
				Severity:            domain.SeverityHigh,
			},
			{
				Name: "critical_keyword",
				Kind: config.RuleCriticalKeyword,
			},
			{
				Name:                "viral_negative",
				Kind:                config.RuleViralNegative,
				EngagementThreshold: 1000,
				Severity:            domain.SeverityCritical,
			},
			{
				Name:            "high_entity_mentions",
				Kind:            config.RuleEntityMentions,
				EntityThreshold: 5,
				Severity:        domain.SeverityLow,
			},
		},
	}
}

func negativePost(score float64, engagement int, keywords ...string) (domain.EnrichedPost, domain.RawPost) {
	raw := domain.RawPost{
		PostID:          "reddit_abc",
		Platform:        "reddit",
		Title:           "major incident",
		EngagementScore: engagement,
		MatchedKeywords: keywords,
	}
	enriched := domain.EnrichedPost{
		PostID:         raw.PostID,
		SentimentLabel: domain.SentimentNegative,
		SentimentScore: score,
	}
	return enriched, raw
}

func TestEvaluateHighNegativeViralScenario(t *testing.T) {
	t.Parallel()

	engine := New(testAlertsConfig())
	enriched, raw := negativePost(0.94, 1250, "breach")

	candidates := engine.Evaluate(enriched, raw)
	require.Len(t, candidates, 3)

	assert.Equal(t, "high_negative_engagement", candidates[0].AlertType)
	assert.Equal(t, domain.SeverityHigh, candidates[0].Severity)

	assert.Equal(t, "critical_keyword", candidates[1].AlertType)
	assert.Equal(t, domain.SeverityCritical, candidates[1].Severity)

	assert.Equal(t, "viral_negative", candidates[2].AlertType)
	assert.Equal(t, domain.SeverityCritical, candidates[2].Severity)

	assert.Equal(t, domain.SeverityCritical, domain.MaxSeverity(candidates))
}

func TestEvaluateIsDeterministic(t *testing.T) {
	t.Parallel()

	engine := New(testAlertsConfig())
	enriched, raw := negativePost(0.94, 1250, "breach")

	first := engine.Evaluate(enriched, raw)
	second := engine.Evaluate(enriched, raw)
	assert.Equal(t, first, second)
}

func TestNegativeEngagementBoundary(t *testing.T) {
	t.Parallel()

	engine := New(testAlertsConfig())

	cases := []struct {
		name       string
		score      float64
		engagement int
		label      domain.SentimentLabel
		fires      bool
	}{
		{"at both thresholds", 0.7, 500, domain.SentimentNegative, true},
		{"score just below", 0.69, 500, domain.SentimentNegative, false},
		{"engagement below", 0.9, 499, domain.SentimentNegative, false},
		{"positive label", 0.95, 900, domain.SentimentPositive, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			enriched, raw := negativePost(tc.score, tc.engagement)
			enriched.SentimentLabel = tc.label

			var fired bool
			for _, c := range engine.Evaluate(enriched, raw) {
				if c.AlertType == "high_negative_engagement" {
					fired = true
				}
			}
			assert.Equal(t, tc.fires, fired)
		})
	}
}

func TestNegativeEngagementDoesNotAffectOtherRules(t *testing.T) {
	t.Parallel()

	engine := New(testAlertsConfig())

	// Dropping the sentiment score below S1 suppresses exactly the
	// high_negative_engagement candidate; the viral rule is score-independent.
	enriched, raw := negativePost(0.5, 1250)
	candidates := engine.Evaluate(enriched, raw)
	require.Len(t, candidates, 1)
	assert.Equal(t, "viral_negative", candidates[0].AlertType)
}

func TestCriticalKeywordTiers(t *testing.T) {
	t.Parallel()

	engine := New(testAlertsConfig())

	cases := []struct {
		name     string
		keywords []string
		label    domain.SentimentLabel
		fires    bool
		severity domain.Severity
	}{
		{"critical tier alone", []string{"breach"}, domain.SentimentNeutral, true, domain.SeverityCritical},
		{"watch tier alone", []string{"refund"}, domain.SentimentNeutral, true, domain.SeverityMedium},
		{"watch tier alone stays medium when negative", []string{"refund"}, domain.SentimentNegative, true, domain.SeverityMedium},
		{"both tiers neutral", []string{"breach", "refund"}, domain.SentimentNeutral, true, domain.SeverityCritical},
		{"both tiers negative capped at critical", []string{"breach", "refund"}, domain.SentimentNegative, true, domain.SeverityCritical},
		{"no tier overlap", []string{"unrelated"}, domain.SentimentNegative, false, ""},
		{"case insensitive match", []string{"BREACH"}, domain.SentimentNeutral, true, domain.SeverityCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			enriched, raw := negativePost(0.2, 10, tc.keywords...)
			enriched.SentimentLabel = tc.label

			var candidate *domain.AlertCandidate
			for _, c := range engine.Evaluate(enriched, raw) {
				if c.AlertType == "critical_keyword" {
					c := c
					candidate = &c
				}
			}

			if !tc.fires {
				assert.Nil(t, candidate)
				return
			}
			require.NotNil(t, candidate)
			assert.Equal(t, tc.severity, candidate.Severity)
		})
	}
}

func TestEntityMentions(t *testing.T) {
	t.Parallel()

	engine := New(testAlertsConfig())

	entities := func(texts ...string) []domain.Entity {
		out := make([]domain.Entity, 0, len(texts))
		for _, text := range texts {
			out = append(out, domain.Entity{Text: text, Type: "ORG"})
		}
		return out
	}

	enriched, raw := negativePost(0.1, 10)
	enriched.SentimentLabel = domain.SentimentNeutral
	enriched.Entities = entities("Acme", "Globex", "Initech", "Umbrella")

	assert.Empty(t, engine.Evaluate(enriched, raw), "below threshold must not fire")

	enriched.Entities = entities("Acme", "Globex", "Initech", "Umbrella", "Hooli")
	candidates := engine.Evaluate(enriched, raw)
	require.Len(t, candidates, 1)
	assert.Equal(t, "high_entity_mentions", candidates[0].AlertType)
	assert.Equal(t, domain.SeverityLow, candidates[0].Severity)
	require.Len(t, candidates[0].Reasons, 1)
	assert.Contains(t, candidates[0].Reasons[0], "Acme, Globex, Initech")
}

func TestUnknownRuleKindIsSkipped(t *testing.T) {
	t.Parallel()

	cfg := testAlertsConfig()
	cfg.Rules = append([]config.RuleConfig{{Name: "mystery", Kind: "mystery_kind"}}, cfg.Rules...)
	engine := New(cfg)

	enriched, raw := negativePost(0.94, 1250, "breach")
	candidates := engine.Evaluate(enriched, raw)
	require.Len(t, candidates, 3)
	assert.Equal(t, "high_negative_engagement", candidates[0].AlertType)
}
