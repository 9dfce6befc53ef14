package telephony

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// StatusCallback is the subset of Twilio call status callback fields we use.
// Twilio posts application/x-www-form-urlencoded.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
type StatusCallback struct {
	CallSid       string
	ParentCallSid string
	AccountSid    string
	CallStatus    string
	AnsweredBy    string
	Direction     string
	From          string
	To            string
	Called        string
	Timestamp     time.Time
}

// ConferenceEvent is a conference statusCallback delivery.
type ConferenceEvent struct {
	CallSid               string
	ConferenceSid         string
	FriendlyName          string
	StatusCallbackEvent   string
	ReasonParticipantLeft string
	Called                string
	Timestamp             time.Time
}

const (
	EventParticipantJoin  = "participant-join"
	EventParticipantLeave = "participant-leave"

	LeaveReasonUpdatedViaAPI = "participant_updated_via_api"
	LeaveReasonHungUp        = "participant_hung_up"
)

var ErrMissingCallSid = errors.New("telephony: CallSid is required")

// ParseStatusCallback reads a call status callback. now is used when the
// provider omits or mangles Timestamp.
func ParseStatusCallback(r *http.Request, now time.Time) (StatusCallback, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallback{}, err
	}
	f := StatusCallback{
		CallSid:       field(r, "CallSid"),
		ParentCallSid: field(r, "ParentCallSid"),
		AccountSid:    field(r, "AccountSid"),
		CallStatus:    strings.ToLower(field(r, "CallStatus")),
		AnsweredBy:    strings.ToLower(field(r, "AnsweredBy")),
		Direction:     field(r, "Direction"),
		From:          field(r, "From"),
		To:            field(r, "To"),
		Called:        field(r, "Called"),
		Timestamp:     parseTimestamp(field(r, "Timestamp"), now),
	}
	if f.CallSid == "" {
		return StatusCallback{}, ErrMissingCallSid
	}
	return f, nil
}

// ParseConferenceEvent reads a conference participant event.
func ParseConferenceEvent(r *http.Request, now time.Time) (ConferenceEvent, error) {
	if err := r.ParseForm(); err != nil {
		return ConferenceEvent{}, err
	}
	f := ConferenceEvent{
		CallSid:               field(r, "CallSid"),
		ConferenceSid:         field(r, "ConferenceSid"),
		FriendlyName:          field(r, "FriendlyName"),
		StatusCallbackEvent:   strings.ToLower(field(r, "StatusCallbackEvent")),
		ReasonParticipantLeft: strings.ToLower(field(r, "ReasonParticipantLeft")),
		Called:                field(r, "Called"),
		Timestamp:             parseTimestamp(field(r, "Timestamp"), now),
	}
	if f.CallSid == "" {
		return ConferenceEvent{}, ErrMissingCallSid
	}
	return f, nil
}

// IsMachine reports an answering machine result: "machine_start",
// "machine_end_beep" and friends, but not "machine_other"-style unknowns.
func IsMachine(answeredBy string) bool {
	a := strings.ToLower(answeredBy)
	return strings.Contains(a, "machine") && !strings.Contains(a, "other")
}

// EndsParticipation reports whether a leave reason tears the bridge down.
func EndsParticipation(reason string) bool {
	return reason == LeaveReasonUpdatedViaAPI || reason == LeaveReasonHungUp
}

func field(r *http.Request, key string) string {
	return strings.TrimSpace(r.PostFormValue(key))
}

func parseTimestamp(v string, now time.Time) time.Time {
	if v == "" {
		return now.UTC()
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return now.UTC()
}
