package telephony

import (
	"net/http"
	"strings"

	"outreach-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AnswerHandler serves the TwiML a leg runs once answered.
// No business logic here; the dialer chose the URL when it placed the call.
type AnswerHandler struct {
	URLs URLs
}

// Conference joins the leg to the conference named after the agent.
// The agent's own leg ends the conference when it leaves; contact legs do not.
func (h AnswerHandler) Conference(c *gin.Context) {
	agentID := strings.TrimSpace(c.Param("agent_id"))
	if agentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id required"})
		return
	}
	agent := c.Query("role") == "agent"

	h.write(c, Instructions{Conference: &ConferenceBridge{
		Name:                   agentID,
		StartConferenceOnEnter: true,
		EndConferenceOnExit:    agent,
		Beep:                   false,
		StatusCallback:         h.URLs.ConferenceCallback(),
	}})
}

// Bridge dials the agent's browser client directly.
func (h AnswerHandler) Bridge(c *gin.Context) {
	agentID := strings.TrimSpace(c.Param("agent_id"))
	if agentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id required"})
		return
	}
	h.write(c, Instructions{Client: agentID})
}

func (h AnswerHandler) write(c *gin.Context, in Instructions) {
	twiml, err := in.Render()
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}
