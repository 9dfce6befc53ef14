package rbac

import (
	"errors"
	"net/http"

	"outreach-dialer/internal/auth"

	"github.com/gin-gonic/gin"
)

var ErrForbidden = errors.New("rbac: forbidden")

// RequireWorkspace rejects requests whose identity has no workspace.
func RequireWorkspace() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := auth.WorkspaceID(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows the request when the caller has one of allowed.
// Use after RequireWorkspace.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// ActingAgent resolves which agent a request acts for. Agents always act for
// themselves; supervisors may name another agent. An empty requested id means the caller.
func ActingAgent(id auth.Identity, requested string) (string, error) {
	if requested == "" || requested == id.UserID {
		return id.UserID, nil
	}
	if IsSupervisor(id.Role) {
		return requested, nil
	}
	return "", ErrForbidden
}
