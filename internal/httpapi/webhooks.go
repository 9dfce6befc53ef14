package httpapi

import (
	"net/http"

	"outreach-dialer/internal/telephony"
	"outreach-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallStatus consumes call status callbacks. A non-2xx answer makes the
// provider retry, so only processing failures return 500.
func (h Handlers) CallStatus(c *gin.Context) {
	cb, err := telephony.ParseStatusCallback(c.Request, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	ctx := logger.WithAttrs(c.Request.Context(), "call_sid", cb.CallSid, "call_status", cb.CallStatus)
	if err := h.Events.HandleCallStatus(ctx, cb); err != nil {
		logger.From(ctx).Error("status callback failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h Handlers) ConferenceEvent(c *gin.Context) {
	ev, err := telephony.ParseConferenceEvent(c.Request, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	ctx := logger.WithAttrs(c.Request.Context(),
		"call_sid", ev.CallSid, "conference_sid", ev.ConferenceSid, "event", ev.StatusCallbackEvent)
	if err := h.Events.HandleConferenceEvent(ctx, ev); err != nil {
		logger.From(ctx).Error("conference callback failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
