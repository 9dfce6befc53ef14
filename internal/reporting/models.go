package reporting

import "outreach-dialer/internal/outreach"

// CampaignSummaryRequest asks for attempt metrics of one campaign.
// Workspace isolation: WorkspaceID is required.
type CampaignSummaryRequest struct {
	WorkspaceID string `json:"workspace_id"`
	CampaignID  int64  `json:"campaign_id"`
}

type CampaignSummary struct {
	WorkspaceID string            `json:"workspace_id"`
	CampaignID  int64             `json:"campaign_id"`
	Title       string            `json:"title"`
	DialType    outreach.DialType `json:"dial_type"`

	TotalAttempts int64 `json:"total_attempts"`
	// Open attempts have not reached a terminal disposition yet.
	OpenAttempts int64 `json:"open_attempts"`

	Pending   int64 `json:"pending"`
	Dialing   int64 `json:"dialing"`
	Connected int64 `json:"connected"`
	Completed int64 `json:"completed"`
	Voicemail int64 `json:"voicemail"`
	Failed    int64 `json:"failed"`
	Busy      int64 `json:"busy"`
	NoAnswer  int64 `json:"no_answer"`
	Canceled  int64 `json:"canceled"`

	// ConnectionRate is reached humans (connected + completed) over resolved-or-connected attempts.
	ConnectionRate float64 `json:"connection_rate"`
	VoicemailRate  float64 `json:"voicemail_rate"`
}
