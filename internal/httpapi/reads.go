package httpapi

import (
	"net/http"
	"time"

	"outreach-dialer/internal/reporting"

	"github.com/gin-gonic/gin"
)

// CampaignSummary returns attempt counts and rates for one campaign.
func (h Handlers) CampaignSummary(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	campaignID, ok := paramID(c, "id")
	if !ok {
		return
	}
	sum, err := h.Reporting.CampaignSummary(c.Request.Context(), reporting.CampaignSummaryRequest{
		WorkspaceID: id.WorkspaceID,
		CampaignID:  campaignID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// RecentAttempt returns the newest attempt for a contact inside the recent window,
// so the agent UI can resume a call it lost track of.
func (h Handlers) RecentAttempt(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	camp, ok := h.campaign(c, id)
	if !ok {
		return
	}
	contactID, ok := paramID(c, "contact_id")
	if !ok {
		return
	}
	window := h.RecentAttemptWindow
	if window <= 0 {
		window = 24 * time.Hour
	}

	a, err := h.Repo.LatestAttempt(c.Request.Context(), camp.ID, contactID, h.now().Add(-window))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// CreditBalance returns the caller's workspace balance.
func (h Handlers) CreditBalance(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	b, err := h.Credits.GetBalance(c.Request.Context(), id.WorkspaceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": b, "exhausted": b.Exhausted()})
}
