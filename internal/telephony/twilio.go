package telephony

import (
	"context"
	"errors"
	"strings"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"
)

// twilioAPI is the subset of the generated v2010 client the gateway uses.
type twilioAPI interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
	UpdateCall(sid string, params *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error)
	ListConference(params *twilioApi.ListConferenceParams) ([]twilioApi.ApiV2010Conference, error)
	UpdateConference(sid string, params *twilioApi.UpdateConferenceParams) (*twilioApi.ApiV2010Conference, error)
}

// TwilioGateway implements Gateway on the Twilio REST API.
// Call creation is throttled to the account's calls-per-second allowance.
type TwilioGateway struct {
	api     twilioAPI
	limiter *rate.Limiter
}

type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	CallsPerSecond float64
}

func NewTwilioGateway(cfg TwilioConfig) *TwilioGateway {
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioGateway(rc.Api, cfg.CallsPerSecond)
}

func newTwilioGateway(api twilioAPI, cps float64) *TwilioGateway {
	if cps <= 0 {
		cps = 1
	}
	burst := int(cps)
	if burst < 1 {
		burst = 1
	}
	return &TwilioGateway{api: api, limiter: rate.NewLimiter(rate.Limit(cps), burst)}
}

func (g *TwilioGateway) CreateCall(ctx context.Context, req CallRequest) (CallHandle, error) {
	if err := req.validate(); err != nil {
		return CallHandle{}, &GatewayError{Op: "create call", Err: err}
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return CallHandle{}, &GatewayError{Op: "create call", Err: err}
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetUrl(req.AnswerURL)
	if req.StatusCallbackURL != "" {
		params.SetStatusCallback(req.StatusCallbackURL)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}
	if req.MachineDetection {
		params.SetMachineDetection("Enable")
	}

	resp, err := g.api.CreateCall(params)
	if err != nil {
		return CallHandle{}, twilioError("create call", "", err)
	}
	h := CallHandle{Status: "queued"}
	if resp != nil {
		h.Sid = deref(resp.Sid)
	}
	if h.Sid == "" {
		return CallHandle{}, &GatewayError{Op: "create call", Err: errors.New("provider returned no call sid")}
	}
	return h, nil
}

func (g *TwilioGateway) UpdateCallTwiml(ctx context.Context, callSid string, in Instructions) error {
	twiml, err := in.Render()
	if err != nil {
		return &GatewayError{Op: "update call", CallSid: callSid, Err: err}
	}
	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(twiml)
	if _, err := g.api.UpdateCall(callSid, params); err != nil {
		return twilioError("update call", callSid, err)
	}
	return nil
}

func (g *TwilioGateway) CancelCall(ctx context.Context, callSid string) error {
	params := &twilioApi.UpdateCallParams{}
	params.SetStatus("canceled")
	if _, err := g.api.UpdateCall(callSid, params); err != nil {
		return twilioError("cancel call", callSid, err)
	}
	return nil
}

func (g *TwilioGateway) ListConferences(ctx context.Context, tag string, status ConferenceStatus) ([]Conference, error) {
	params := &twilioApi.ListConferenceParams{}
	params.SetFriendlyName(tag)
	if status != "" {
		params.SetStatus(string(status))
	}
	params.SetLimit(20)

	resp, err := g.api.ListConference(params)
	if err != nil {
		return nil, twilioError("list conferences", "", err)
	}
	// The provider already filtered by status; the response echoes it.
	out := make([]Conference, 0, len(resp))
	for _, c := range resp {
		out = append(out, Conference{
			Sid:          deref(c.Sid),
			FriendlyName: deref(c.FriendlyName),
			Status:       status,
		})
	}
	return out, nil
}

func (g *TwilioGateway) UpdateConferenceStatus(ctx context.Context, conferenceSid string, status ConferenceStatus) error {
	params := &twilioApi.UpdateConferenceParams{}
	params.SetStatus(string(status))
	if _, err := g.api.UpdateConference(conferenceSid, params); err != nil {
		return twilioError("update conference", "", err)
	}
	return nil
}

func twilioError(op, callSid string, err error) error {
	ge := &GatewayError{Op: op, CallSid: callSid, Err: err}
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		ge.StatusCode = restErr.Status
	}
	return ge
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

var _ Gateway = (*TwilioGateway)(nil)
