package reporting

import (
	"context"
	"errors"
	"fmt"

	"outreach-dialer/internal/outreach"
)

var (
	ErrInvalidRequest = errors.New("reporting: invalid request")
	ErrNotFound       = errors.New("reporting: campaign not found")
)

// Repository is the read side reporting needs. outreach.Repository satisfies it.
//
// Counts come from outreach_attempt.state, which is written once per transition.
type Repository interface {
	GetCampaign(ctx context.Context, id int64) (outreach.Campaign, error)
	CountAttemptsByState(ctx context.Context, campaignID int64) (outreach.StateCounts, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CampaignSummary(ctx context.Context, req CampaignSummaryRequest) (CampaignSummary, error) {
	if req.WorkspaceID == "" || req.CampaignID <= 0 {
		return CampaignSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CampaignSummary{}, errors.New("reporting: repository not configured")
	}

	campaign, err := s.repo.GetCampaign(ctx, req.CampaignID)
	if outreach.IsNotFound(err) {
		return CampaignSummary{}, ErrNotFound
	}
	if err != nil {
		return CampaignSummary{}, fmt.Errorf("campaign summary: %w", err)
	}
	// Another workspace's campaign is reported as missing, not forbidden.
	if campaign.WorkspaceID != req.WorkspaceID {
		return CampaignSummary{}, ErrNotFound
	}

	counts, err := s.repo.CountAttemptsByState(ctx, req.CampaignID)
	if err != nil {
		return CampaignSummary{}, fmt.Errorf("campaign summary: %w", err)
	}

	out := CampaignSummary{
		WorkspaceID: req.WorkspaceID,
		CampaignID:  campaign.ID,
		Title:       campaign.Title,
		DialType:    campaign.DialType,
		Pending:     counts[outreach.StatePending],
		Dialing:     counts[outreach.StateDialing],
		Connected:   counts[outreach.StateConnected],
		Completed:   counts[outreach.StateCompleted],
		Voicemail:   counts[outreach.StateVoicemail],
		Failed:      counts[outreach.StateFailed],
		Busy:        counts[outreach.StateBusy],
		NoAnswer:    counts[outreach.StateNoAnswer],
		Canceled:    counts[outreach.StateCanceled],
	}
	for state, n := range counts {
		out.TotalAttempts += n
		if !state.Terminal() {
			out.OpenAttempts += n
		}
	}

	reached := out.Connected + out.Completed
	if settled := out.TotalAttempts - out.Pending - out.Dialing; settled > 0 {
		out.ConnectionRate = float64(reached) / float64(settled)
		out.VoicemailRate = float64(out.Voicemail) / float64(settled)
	}
	return out, nil
}
