package usecase

import (
	"fmt"
	"sort"
	"strings"

	"SocialMonitor/internal/domain"
)

// renderDigest formats the alerts a run created into one human-readable
// message, highest severity first. The sort is stable so alerts of equal
// severity keep their trigger order.
func renderDigest(runID string, alerts []domain.Alert) string {
	ordered := make([]domain.Alert, len(alerts))
	copy(ordered, alerts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Severity.Rank() > ordered[j].Severity.Rank()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Social monitoring digest: %d new alert(s) (run %s)\n\n", len(ordered), runID)

	for _, alert := range ordered {
		fmt.Fprintf(&b, "[%s] %s (post %s)\n", alert.Severity, alert.AlertType, alert.PostID)
		if alert.Message != "" {
			fmt.Fprintf(&b, "%s\n", alert.Message)
		}
		for _, reason := range alert.Reasons {
			fmt.Fprintf(&b, "  - %s\n", reason)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// renderOperationalNotice formats a critical-stage failure for operators.
func renderOperationalNotice(runID, stage string, cause error) string {
	return fmt.Sprintf("Pipeline run %s FAILED at stage %q: %v", runID, stage, cause)
}
