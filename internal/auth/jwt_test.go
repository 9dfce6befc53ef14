package auth

import (
	"testing"
	"time"

	"outreach-dialer/internal/config"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "outreach-dialer",
		JWTAudience:     "agents",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()

	pair, err := m.IssuePair(now, Identity{UserID: "u1", WorkspaceID: "ws1", Role: "agent"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got := claims.Identity(); got != (Identity{UserID: "u1", WorkspaceID: "ws1", Role: "agent"}) {
		t.Fatalf("unexpected identity %+v", got)
	}

	refresh, err := m.Verify(pair.RefreshToken, TokenTypeRefresh, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if refresh.Role != "" {
		t.Fatalf("refresh token must not carry a role")
	}
}

func TestVerifyRejects(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, Identity{UserID: "u1", WorkspaceID: "ws1", Role: "agent"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.Verify(pair.RefreshToken, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
	if _, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	other, _ := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "someone-else", AccessTokenTTL: time.Minute})
	if _, err := other.Verify(pair.AccessToken, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected issuer mismatch")
	}
}

func TestIssuePairRequiresIdentity(t *testing.T) {
	m := newManager(t)
	if _, err := m.IssuePair(time.Now(), Identity{UserID: "u1"}); err == nil {
		t.Fatalf("expected error for missing workspace and role")
	}
}
