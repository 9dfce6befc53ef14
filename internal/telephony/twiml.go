package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Instructions is the directive set a leg executes next: play audio,
// bridge to a conference, client or number, then optionally hang up.
// Rendered in that order.
type Instructions struct {
	Play string

	Conference *ConferenceBridge
	Client     string
	Number     string
	// CallerID is the caller id presented on a Dial.
	CallerID string

	Hangup bool
}

// ConferenceBridge joins the leg to a conference named Name.
type ConferenceBridge struct {
	Name                   string
	StartConferenceOnEnter bool
	EndConferenceOnExit    bool
	Beep                   bool
	// StatusCallback receives participant-join/leave events.
	StatusCallback string
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName    xml.Name         `xml:"Dial"`
	CallerID   string           `xml:"callerId,attr,omitempty"`
	Number     string           `xml:"Number,omitempty"`
	Client     string           `xml:"Client,omitempty"`
	Conference *twimlConference `xml:"Conference,omitempty"`
}

type twimlConference struct {
	Name                   string `xml:",chardata"`
	StartConferenceOnEnter bool   `xml:"startConferenceOnEnter,attr"`
	EndConferenceOnExit    bool   `xml:"endConferenceOnExit,attr"`
	Beep                   bool   `xml:"beep,attr"`
	StatusCallback         string `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent    string `xml:"statusCallbackEvent,attr,omitempty"`
}

// Render maps instructions to TwiML.
func (in Instructions) Render() (string, error) {
	var r twimlResponse

	if in.Play != "" {
		r.Verbs = append(r.Verbs, twimlPlay{URL: in.Play})
	}

	targets := 0
	for _, set := range []bool{in.Conference != nil, in.Client != "", in.Number != ""} {
		if set {
			targets++
		}
	}
	if targets > 1 {
		return "", errors.New("telephony: dial accepts one target")
	}
	if targets == 1 {
		d := twimlDial{CallerID: in.CallerID, Number: in.Number, Client: in.Client}
		if c := in.Conference; c != nil {
			if strings.TrimSpace(c.Name) == "" {
				return "", errors.New("telephony: conference name required")
			}
			tc := &twimlConference{
				Name:                   c.Name,
				StartConferenceOnEnter: c.StartConferenceOnEnter,
				EndConferenceOnExit:    c.EndConferenceOnExit,
				Beep:                   c.Beep,
				StatusCallback:         c.StatusCallback,
			}
			if c.StatusCallback != "" {
				tc.StatusCallbackEvent = "join leave"
			}
			d.Conference = tc
		}
		r.Verbs = append(r.Verbs, d)
	}

	if in.Hangup {
		r.Verbs = append(r.Verbs, twimlHangup{})
	}
	if len(r.Verbs) == 0 {
		return "", errors.New("telephony: empty instructions")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// VoicemailDrop plays url (when set) and hangs up.
func VoicemailDrop(url string) Instructions {
	return Instructions{Play: strings.TrimSpace(url), Hangup: true}
}
