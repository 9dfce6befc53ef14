// Package httpapi holds the gin handlers. Keep them thin: parse and validate
// input, call internal services, return JSON.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"outreach-dialer/internal/auth"
	"outreach-dialer/internal/credits"
	"outreach-dialer/internal/dialer"
	"outreach-dialer/internal/outreach"
	"outreach-dialer/internal/queue"
	"outreach-dialer/internal/reporting"
	"outreach-dialer/internal/telephony"
	"outreach-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Dialer runs and tears down dial cycles.
type Dialer interface {
	RunCycle(ctx context.Context, req dialer.Request) (dialer.Outcome, error)
	LeaveCampaign(ctx context.Context, campaignID int64, agentID string) error
}

// EventProcessor consumes provider callbacks.
type EventProcessor interface {
	HandleCallStatus(ctx context.Context, cb telephony.StatusCallback) error
	HandleConferenceEvent(ctx context.Context, ev telephony.ConferenceEvent) error
}

type Handlers struct {
	Auth *auth.Manager
	// IssueTokens enables the development token endpoint. Never set in production.
	IssueTokens bool

	Dialer    Dialer
	Events    EventProcessor
	Queue     *queue.Manager
	Repo      outreach.Repository
	Reporting *reporting.Service
	Credits   *credits.Service

	// QueueLowWater is the loaded-household count below which the UI should fetch more.
	QueueLowWater int
	// RecentAttemptWindow bounds the recent attempt lookup; zero means 24h.
	RecentAttemptWindow time.Duration

	Health func(ctx context.Context) error
	Now    func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func identity(c *gin.Context) (auth.Identity, bool) {
	id, err := auth.FromContext(c.Request.Context())
	if err != nil || id.WorkspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return auth.Identity{}, false
	}
	return id, true
}

// campaign loads the path campaign and hides campaigns of other workspaces.
func (h Handlers) campaign(c *gin.Context, id auth.Identity) (outreach.Campaign, bool) {
	campaignID, ok := paramID(c, "id")
	if !ok {
		return outreach.Campaign{}, false
	}
	camp, err := h.Repo.GetCampaign(c.Request.Context(), campaignID)
	if err == nil && camp.WorkspaceID != id.WorkspaceID {
		err = outreach.ErrNotFound
	}
	if err != nil {
		writeError(c, err)
		return outreach.Campaign{}, false
	}
	return camp, true
}

// writeError maps service errors to status codes. Expected outcomes never get here.
func writeError(c *gin.Context, err error) {
	var ce *dialer.CycleError
	switch {
	case errors.As(err, &ce):
		logger.FromGin(c).Error("dial cycle failed", "attempt_id", ce.AttemptID, "call_sid", ce.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"error":      "dial failed",
			"attempt_id": ce.AttemptID,
			"call_sid":   ce.CallSid,
		})
	case errors.Is(err, outreach.ErrNotFound), errors.Is(err, dialer.ErrWorkspaceMismatch), errors.Is(err, reporting.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, dialer.ErrInvalidArgument), errors.Is(err, queue.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest), errors.Is(err, credits.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case outreach.IsTransient(err):
		logger.FromGin(c).Warn("transient store error", "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "try again"})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
