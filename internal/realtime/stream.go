package realtime

import (
	"io"
	"net/http"
	"time"

	"outreach-dialer/internal/auth"
	"outreach-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StreamHandler pushes the caller's presence events as server-sent events.
type StreamHandler struct {
	Notifier *RedisNotifier
	// KeepAlive is the interval between comment pings; zero means 25s.
	KeepAlive time.Duration
}

func (h StreamHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	agentID, err := auth.UserID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	if h.Notifier == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime not configured"})
		return
	}

	sub := h.Notifier.Subscribe(ctx, agentID)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		logger.FromGin(c).Warn("realtime subscribe failed", "agent_id", agentID, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "subscribe failed"})
		return
	}

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	msgs := sub.Channel()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case m, ok := <-msgs:
			if !ok {
				return false
			}
			c.SSEvent("status", m.Payload)
			return true
		case <-ticker.C:
			c.SSEvent("ping", "")
			return true
		}
	})
}
