package auth

import (
	"net/http"
	"strings"
	"time"

	"outreach-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	// queryTokenParam is accepted only where the client cannot set headers (EventSource).
	queryTokenParam = "access_token"
)

// RequireAccessToken verifies a bearer access token and injects the identity
// into the request context. RBAC lives in internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return requireToken(m, false)
}

// RequireStreamToken is RequireAccessToken that also reads ?access_token=.
func RequireStreamToken(m *Manager) gin.HandlerFunc {
	return requireToken(m, true)
}

func requireToken(m *Manager, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c.GetHeader(authorizationHeader))
		if tok == "" && allowQuery {
			tok = strings.TrimSpace(c.Query(queryTokenParam))
		}
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			logger.FromGin(c).Debug("access token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		id := claims.Identity()
		ctx := WithIdentity(c.Request.Context(), id)
		ctx = logger.WithAttrs(ctx, "user_id", id.UserID, "workspace_id", id.WorkspaceID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) string {
	raw := strings.TrimSpace(header)
	if !strings.HasPrefix(raw, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
}
