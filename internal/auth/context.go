package auth

import (
	"context"
	"errors"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID      string
	WorkspaceID string
	Role        string
}

type ctxKey struct{}

var ErrNoIdentity = errors.New("auth: no identity in context")

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by the access-token middleware.
func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

func UserID(ctx context.Context) (string, error) {
	id, err := FromContext(ctx)
	if err != nil {
		return "", err
	}
	return id.UserID, nil
}

func WorkspaceID(ctx context.Context) (string, error) {
	id, err := FromContext(ctx)
	if err != nil || id.WorkspaceID == "" {
		return "", errors.New("workspace_id not in context")
	}
	return id.WorkspaceID, nil
}

func Role(ctx context.Context) (string, error) {
	id, err := FromContext(ctx)
	if err != nil || id.Role == "" {
		return "", errors.New("role not in context")
	}
	return id.Role, nil
}
