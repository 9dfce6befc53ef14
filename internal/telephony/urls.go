package telephony

import (
	"net/url"
	"strings"
)

// Route paths served by the api process. Callback URLs handed to the provider
// are built from these and the public base URL.
const (
	PathStatusCallback     = "/webhooks/twilio/status"
	PathConferenceCallback = "/webhooks/twilio/conference"
	PathConferenceAnswer   = "/twiml/conference/:agent_id"
	PathBridgeAnswer       = "/twiml/bridge/:agent_id"
)

// URLs builds absolute callback URLs under Base.
type URLs struct {
	Base string
}

func (u URLs) StatusCallback() string     { return u.join(PathStatusCallback) }
func (u URLs) ConferenceCallback() string { return u.join(PathConferenceCallback) }

// ConferenceAnswer is the answer URL for a contact leg joining the agent's conference.
func (u URLs) ConferenceAnswer(agentID string) string {
	return u.join(strings.Replace(PathConferenceAnswer, ":agent_id", url.PathEscape(agentID), 1))
}

// AgentConferenceAnswer is the answer URL for the agent's own parked leg.
func (u URLs) AgentConferenceAnswer(agentID string) string {
	return u.ConferenceAnswer(agentID) + "?role=agent"
}

// BridgeAnswer dials the agent's browser client directly (direct-dial mode).
func (u URLs) BridgeAnswer(agentID string) string {
	return u.join(strings.Replace(PathBridgeAnswer, ":agent_id", url.PathEscape(agentID), 1))
}

func (u URLs) join(path string) string {
	return strings.TrimRight(u.Base, "/") + path
}
