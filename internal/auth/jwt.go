package auth

import (
	"errors"
	"time"

	"outreach-dialer/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Manager issues and verifies HS256 agent session tokens.
type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return &Manager{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}, nil
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IssuePair signs an access and a refresh token for id. Refresh tokens carry no role.
func (m *Manager) IssuePair(now time.Time, id Identity) (TokenPair, error) {
	if id.UserID == "" || id.WorkspaceID == "" || id.Role == "" {
		return TokenPair{}, errors.New("auth: user, workspace and role are required")
	}
	access, err := m.issue(now, TokenTypeAccess, id, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	id.Role = ""
	refresh, err := m.issue(now, TokenTypeRefresh, id, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify parses tokenString and checks signature, expiry, issuer, audience and type.
func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	switch {
	case claims.TokenType != expected:
		return Claims{}, errors.New("token_type mismatch")
	case claims.UserID == "":
		return Claims{}, errors.New("user_id missing")
	case claims.WorkspaceID == "":
		return Claims{}, errors.New("workspace_id missing")
	case expected == TokenTypeAccess && claims.Role == "":
		return Claims{}, errors.New("role missing in access token")
	}
	return claims, nil
}

func (m *Manager) issue(now time.Time, tokenType TokenType, id Identity, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   id.UserID,
			Audience:  audienceOrNil(m.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID:      id.UserID,
		WorkspaceID: id.WorkspaceID,
		Role:        id.Role,
		TokenType:   tokenType,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
