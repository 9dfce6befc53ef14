package scheduler

import (
	"encoding/json"
	"fmt"

	"outreach-dialer/internal/dialer"

	"github.com/hibiken/asynq"
)

const TaskDialCycle = "dialer:cycle"

type DialCyclePayload struct {
	CampaignID  int64  `json:"campaignId"`
	AgentID     string `json:"agentId"`
	WorkspaceID string `json:"workspaceId"`
	Origin      string `json:"origin,omitempty"`
}

func (p DialCyclePayload) Request() dialer.Request {
	origin := dialer.Origin(p.Origin)
	if origin == "" {
		origin = dialer.OriginFeedForward
	}
	return dialer.Request{
		CampaignID:  p.CampaignID,
		AgentID:     p.AgentID,
		WorkspaceID: p.WorkspaceID,
		Origin:      origin,
	}
}

func NewDialCycleTask(req dialer.Request) (*asynq.Task, error) {
	if req.CampaignID <= 0 || req.AgentID == "" {
		return nil, fmt.Errorf("dial cycle task: campaign and agent are required")
	}
	data, err := json.Marshal(DialCyclePayload{
		CampaignID:  req.CampaignID,
		AgentID:     req.AgentID,
		WorkspaceID: req.WorkspaceID,
		Origin:      string(req.Origin),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDialCycle, data), nil
}

func ParseDialCyclePayload(task *asynq.Task) (DialCyclePayload, error) {
	var payload DialCyclePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DialCyclePayload{}, err
	}
	return payload, nil
}
