package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims carry the agent identity. UserID doubles as the agent id the dialer
// uses for queue claims and conference names, so it must be stable.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	Role        string    `json:"role"`
	TokenType   TokenType `json:"token_type"`
}

func (c Claims) Identity() Identity {
	return Identity{UserID: c.UserID, WorkspaceID: c.WorkspaceID, Role: c.Role}
}
