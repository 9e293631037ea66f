package domain

import "time"

// Severity orders alerts from least to most urgent.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the position of s in the LOW < MEDIUM < HIGH < CRITICAL order.
// Unknown severities rank below LOW.
func (s Severity) Rank() int {
	if rank, ok := severityRank[s]; ok {
		return rank
	}
	return -1
}

// Escalate returns the next severity up, capped at CRITICAL.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh, SeverityCritical:
		return SeverityCritical
	default:
		return s
	}
}

// AlertCandidate is an alert proposed by the rule engine before dedup
// and persistence. AlertType identifies the rule that fired.
type AlertCandidate struct {
	PostID    string
	AlertType string
	Severity  Severity
	Reasons   []string
}

// MaxSeverity returns the highest severity among candidates, used to order
// posts inside a notification digest. Returns LOW for an empty slice.
func MaxSeverity(candidates []AlertCandidate) Severity {
	max := SeverityLow
	for _, c := range candidates {
		if c.Severity.Rank() > max.Rank() {
			max = c.Severity
		}
	}
	return max
}

// Alert is a persisted, acknowledgeable alert row. It references a post by
// PostID without a hard foreign key; the post may later be purged.
// Lifecycle: created OPEN, transitions once to ACKNOWLEDGED, never back.
type Alert struct {
	ID             int64
	PostID         string
	AlertType      string
	Severity       Severity
	Message        string
	Reasons        []string
	RunID          string
	TriggeredAt    time.Time
	Acknowledged   bool
	AcknowledgedAt *time.Time
	AcknowledgedBy string
}
