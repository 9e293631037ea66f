// Package rules evaluates configured trigger conditions over enriched posts.
// Rules are data: an ordered list of declarative conditions dispatched to a
// generic matcher per kind, so tuning or adding rules is a config change.
package rules

import (
	"fmt"
	"strings"

	"SocialMonitor/internal/config"
	"SocialMonitor/internal/domain"
)

// match is the outcome of one condition against one post.
type match struct {
	severity domain.Severity
	reasons  []string
}

// matcherFunc decides whether a rule fires for a post. Matchers must be pure
// functions of their arguments: evaluation is re-run across pipeline runs and
// must stay deterministic for dedup to hold.
type matcherFunc func(e *Engine, rule config.RuleConfig, enriched domain.EnrichedPost, raw domain.RawPost) (match, bool)

var matchers = map[string]matcherFunc{
	config.RuleNegativeEngagement: matchNegativeEngagement,
	config.RuleCriticalKeyword:    matchCriticalKeyword,
	config.RuleViralNegative:      matchViralNegative,
	config.RuleEntityMentions:     matchEntityMentions,
}

// Engine holds the rule configuration. It carries no other state; Evaluate is
// safe to call concurrently across posts.
type Engine struct {
	rules    []config.RuleConfig
	critical map[string]struct{}
	watch    map[string]struct{}
}

// New builds an engine from alert configuration. Keyword tiers are matched
// case-insensitively.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		critical: keywordSet(cfg.CriticalKeywords),
		watch:    keywordSet(cfg.WatchKeywords),
	}
}

func keywordSet(keywords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		set[strings.ToLower(strings.TrimSpace(kw))] = struct{}{}
	}
	return set
}

// Evaluate runs every configured rule against one post and returns a
// candidate per fired rule, in configured rule order. Candidates are not
// merged; each carries its own alert type (the rule name).
func (e *Engine) Evaluate(enriched domain.EnrichedPost, raw domain.RawPost) []domain.AlertCandidate {
	var candidates []domain.AlertCandidate
	for _, rule := range e.rules {
		matcher, ok := matchers[rule.Kind]
		if !ok {
			continue
		}
		m, fired := matcher(e, rule, enriched, raw)
		if !fired {
			continue
		}
		candidates = append(candidates, domain.AlertCandidate{
			PostID:    raw.PostID,
			AlertType: rule.Name,
			Severity:  m.severity,
			Reasons:   m.reasons,
		})
	}
	return candidates
}

// matchNegativeEngagement fires on confidently negative posts that already
// draw significant engagement.
func matchNegativeEngagement(_ *Engine, rule config.RuleConfig, enriched domain.EnrichedPost, raw domain.RawPost) (match, bool) {
	if enriched.SentimentLabel != domain.SentimentNegative {
		return match{}, false
	}
	if enriched.SentimentScore < rule.SentimentThreshold {
		return match{}, false
	}
	if raw.EngagementScore < rule.EngagementThreshold {
		return match{}, false
	}
	return match{
		severity: severityOrDefault(rule, domain.SeverityHigh),
		reasons: []string{
			fmt.Sprintf("negative sentiment %.2f (threshold %.2f) with engagement %d (threshold %d)",
				enriched.SentimentScore, rule.SentimentThreshold, raw.EngagementScore, rule.EngagementThreshold),
		},
	}, true
}

// matchCriticalKeyword fires on overlap between the post's matched keywords
// and the configured tiers. Severity scales with the tier: critical tier is
// CRITICAL, watch tier is MEDIUM; overlap with both tiers plus negative
// sentiment escalates one level, capped at CRITICAL.
func matchCriticalKeyword(e *Engine, _ config.RuleConfig, enriched domain.EnrichedPost, raw domain.RawPost) (match, bool) {
	critHits := tierOverlap(raw.MatchedKeywords, e.critical)
	watchHits := tierOverlap(raw.MatchedKeywords, e.watch)
	if len(critHits) == 0 && len(watchHits) == 0 {
		return match{}, false
	}

	severity := domain.SeverityMedium
	if len(critHits) > 0 {
		severity = domain.SeverityCritical
	}

	reasons := make([]string, 0, 2)
	if len(critHits) > 0 {
		reasons = append(reasons, fmt.Sprintf("critical keywords matched: %s", strings.Join(critHits, ", ")))
	}
	if len(watchHits) > 0 {
		reasons = append(reasons, fmt.Sprintf("watch keywords matched: %s", strings.Join(watchHits, ", ")))
	}

	if len(critHits) > 0 && len(watchHits) > 0 && enriched.SentimentLabel == domain.SentimentNegative {
		severity = severity.Escalate()
		reasons = append(reasons, "escalated: both keyword tiers matched on a negative post")
	}

	return match{severity: severity, reasons: reasons}, true
}

// matchViralNegative fires on negative posts past a high engagement bar,
// independent of sentiment confidence.
func matchViralNegative(_ *Engine, rule config.RuleConfig, enriched domain.EnrichedPost, raw domain.RawPost) (match, bool) {
	if enriched.SentimentLabel != domain.SentimentNegative {
		return match{}, false
	}
	if raw.EngagementScore < rule.EngagementThreshold {
		return match{}, false
	}
	return match{
		severity: severityOrDefault(rule, domain.SeverityCritical),
		reasons: []string{
			fmt.Sprintf("negative post went viral: engagement %d exceeds %d",
				raw.EngagementScore, rule.EngagementThreshold),
		},
	}, true
}

const topEntitiesInReason = 3

// matchEntityMentions fires when a post names many entities; the reason lists
// the first few entity texts for operator context.
func matchEntityMentions(_ *Engine, rule config.RuleConfig, enriched domain.EnrichedPost, _ domain.RawPost) (match, bool) {
	if len(enriched.Entities) < rule.EntityThreshold {
		return match{}, false
	}

	seen := make(map[string]struct{})
	top := make([]string, 0, topEntitiesInReason)
	for _, entity := range enriched.Entities {
		if _, dup := seen[entity.Text]; dup {
			continue
		}
		seen[entity.Text] = struct{}{}
		top = append(top, entity.Text)
		if len(top) == topEntitiesInReason {
			break
		}
	}

	return match{
		severity: severityOrDefault(rule, domain.SeverityLow),
		reasons: []string{
			fmt.Sprintf("%d entities mentioned (threshold %d), top: %s",
				len(enriched.Entities), rule.EntityThreshold, strings.Join(top, ", ")),
		},
	}, true
}

func severityOrDefault(rule config.RuleConfig, fallback domain.Severity) domain.Severity {
	if rule.Severity != "" {
		return rule.Severity
	}
	return fallback
}

func tierOverlap(matched []string, tier map[string]struct{}) []string {
	var hits []string
	for _, kw := range matched {
		if _, ok := tier[strings.ToLower(strings.TrimSpace(kw))]; ok {
			hits = append(hits, kw)
		}
	}
	return hits
}
