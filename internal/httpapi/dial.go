package httpapi

import (
	"net/http"

	"outreach-dialer/internal/dialer"
	"outreach-dialer/internal/rbac"

	"github.com/gin-gonic/gin"
)

type dialRequest struct {
	CampaignID  int64  `json:"campaign_id"`
	AgentID     string `json:"agent_id"`
	WorkspaceID string `json:"workspace_id"`
}

// Dial runs one dial cycle. Credits exhausted and an empty queue are 200
// responses with a typed outcome so the UI can show "dialing paused".
func (h Handlers) Dial(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req dialRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CampaignID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "campaign_id required"})
		return
	}
	if req.WorkspaceID != "" && req.WorkspaceID != id.WorkspaceID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	agentID, err := rbac.ActingAgent(id, req.AgentID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	out, err := h.Dialer.RunCycle(c.Request.Context(), dialer.Request{
		CampaignID:  req.CampaignID,
		AgentID:     agentID,
		WorkspaceID: id.WorkspaceID,
		Origin:      dialer.OriginAgent,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outcome":           out,
		"credits_exhausted": out.Kind == dialer.OutcomeCreditsExhausted,
	})
}

type leaveRequest struct {
	AgentID string `json:"agent_id"`
}

// LeaveCampaign ends the agent's predictive session.
func (h Handlers) LeaveCampaign(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	camp, ok := h.campaign(c, id)
	if !ok {
		return
	}
	var req leaveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	agentID, err := rbac.ActingAgent(id, req.AgentID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.Dialer.LeaveCampaign(c.Request.Context(), camp.ID, agentID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}
