package httpapi

import (
	"net/http"

	"outreach-dialer/internal/auth"
	"outreach-dialer/internal/rbac"

	"github.com/gin-gonic/gin"
)

func (h Handlers) Healthz(c *gin.Context) {
	if h.Health != nil {
		if err := h.Health(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Me echoes the caller's identity.
func (h Handlers) Me(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "workspace_id": id.WorkspaceID, "role": id.Role})
}

type devTokenRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// DevToken issues a token pair for any identity. Credential checks belong to
// the account service; this exists for local development only.
func (h Handlers) DevToken(c *gin.Context) {
	if !h.IssueTokens || h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleAgent
	}
	pair, err := h.Auth.IssuePair(h.now(), auth.Identity{UserID: req.UserID, WorkspaceID: req.WorkspaceID, Role: req.Role})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pair)
}
