package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service is the dial admission gate.
//
// The check is advisory: two concurrent cycles may both pass and overdraw a
// little. Balances are never locked here.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetBalance(ctx context.Context, workspaceID string) (Balance, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return Balance{}, ErrInvalidArgument
	}
	if s.repo == nil {
		return Balance{}, errors.New("credits: repository not configured")
	}
	return s.repo.GetBalance(ctx, workspaceID)
}

// Admit reports whether the workspace may place another call.
// An unknown workspace has no credit.
func (s *Service) Admit(ctx context.Context, workspaceID string) (bool, error) {
	b, err := s.GetBalance(ctx, workspaceID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("credits admit: %w", err)
	}
	return !b.Exhausted(), nil
}
