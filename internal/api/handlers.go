package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"SocialMonitor/internal/domain"
)

const defaultOpenAlertWindow = 24 * time.Hour

type alertResponse struct {
	ID             int64      `json:"id"`
	PostID         string     `json:"post_id"`
	AlertType      string     `json:"alert_type"`
	Severity       string     `json:"severity"`
	Message        string     `json:"message,omitempty"`
	Reasons        []string   `json:"reasons"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
}

func toAlertResponse(alert domain.Alert) alertResponse {
	return alertResponse{
		ID:             alert.ID,
		PostID:         alert.PostID,
		AlertType:      alert.AlertType,
		Severity:       string(alert.Severity),
		Message:        alert.Message,
		Reasons:        alert.Reasons,
		TriggeredAt:    alert.TriggeredAt,
		Acknowledged:   alert.Acknowledged,
		AcknowledgedAt: alert.AcknowledgedAt,
		AcknowledgedBy: alert.AcknowledgedBy,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by" binding:"required"`
}

// handleAcknowledge transitions an OPEN alert to ACKNOWLEDGED. The
// transition is one-way; acknowledging a missing or already-acknowledged
// alert yields 404.
func (s *Server) handleAcknowledge(c *gin.Context) {
	alertID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}

	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "acknowledged_by is required"})
		return
	}

	alert, err := s.store.AcknowledgeAlert(c.Request.Context(), alertID, req.AcknowledgedBy)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "open alert not found"})
		return
	}
	if err != nil {
		s.logger.Error("acknowledge alert failed", "alert_id", alertID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, toAlertResponse(alert))
}

// handleOpenAlerts lists unacknowledged HIGH/CRITICAL alerts since the given
// RFC 3339 timestamp, defaulting to the last 24 hours.
func (s *Server) handleOpenAlerts(c *gin.Context) {
	since := time.Now().Add(-defaultOpenAlertWindow)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC 3339"})
			return
		}
		since = parsed
	}

	alerts, err := s.store.OpenHighPriorityAlerts(c.Request.Context(), since)
	if err != nil {
		s.logger.Error("list open alerts failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, toAlertResponse(alert))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out, "count": len(out)})
}
