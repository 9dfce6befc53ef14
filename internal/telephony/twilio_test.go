package telephony

import (
	"context"
	"errors"
	"testing"

	twclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeTwilioAPI struct {
	created    []*twilioApi.CreateCallParams
	updated    map[string]*twilioApi.UpdateCallParams
	listed     []*twilioApi.ListConferenceParams
	confStatus map[string]string
	createErr  error
}

func newFakeTwilioAPI() *fakeTwilioAPI {
	return &fakeTwilioAPI{updated: map[string]*twilioApi.UpdateCallParams{}, confStatus: map[string]string{}}
}

func (f *fakeTwilioAPI) CreateCall(p *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, p)
	sid := "CA100"
	return &twilioApi.ApiV2010Call{Sid: &sid}, nil
}

func (f *fakeTwilioAPI) UpdateCall(sid string, p *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error) {
	f.updated[sid] = p
	return &twilioApi.ApiV2010Call{Sid: &sid}, nil
}

func (f *fakeTwilioAPI) ListConference(p *twilioApi.ListConferenceParams) ([]twilioApi.ApiV2010Conference, error) {
	f.listed = append(f.listed, p)
	sid, name := "CF1", "u1"
	return []twilioApi.ApiV2010Conference{{Sid: &sid, FriendlyName: &name}}, nil
}

func (f *fakeTwilioAPI) UpdateConference(sid string, p *twilioApi.UpdateConferenceParams) (*twilioApi.ApiV2010Conference, error) {
	f.confStatus[sid] = *p.Status
	return &twilioApi.ApiV2010Conference{Sid: &sid}, nil
}

func TestTwilioGateway_CreateCallWithMachineDetection(t *testing.T) {
	api := newFakeTwilioAPI()
	g := newTwilioGateway(api, 10)

	h, err := g.CreateCall(context.Background(), CallRequest{
		To:                "+12015550123",
		From:              "+12015550100",
		AnswerURL:         "https://dialer.example.com/twiml/conference/u1",
		StatusCallbackURL: "https://dialer.example.com/webhooks/twilio/status",
		MachineDetection:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if h.Sid != "CA100" {
		t.Fatalf("unexpected handle %+v", h)
	}
	p := api.created[0]
	if *p.To != "+12015550123" || *p.Url != "https://dialer.example.com/twiml/conference/u1" {
		t.Fatalf("unexpected params to=%s url=%s", *p.To, *p.Url)
	}
	if p.MachineDetection == nil || *p.MachineDetection != "Enable" {
		t.Fatalf("expected machine detection enabled")
	}
	if *p.StatusCallback != "https://dialer.example.com/webhooks/twilio/status" {
		t.Fatalf("unexpected status callback %s", *p.StatusCallback)
	}
}

func TestTwilioGateway_CreateCallRejected(t *testing.T) {
	api := newFakeTwilioAPI()
	api.createErr = &twclient.TwilioRestError{Status: 400, Code: 21211, Message: "invalid 'To' phone number"}
	g := newTwilioGateway(api, 10)

	_, err := g.CreateCall(context.Background(), CallRequest{To: "nope", From: "+12015550100", AnswerURL: "https://x/a"})
	var ge *GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if !ge.Permanent() {
		t.Fatalf("400 should be permanent")
	}
}

func TestTwilioGateway_CreateCallValidates(t *testing.T) {
	g := newTwilioGateway(newFakeTwilioAPI(), 10)
	_, err := g.CreateCall(context.Background(), CallRequest{From: "+12015550100"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestTwilioGateway_UpdateAndConferences(t *testing.T) {
	api := newFakeTwilioAPI()
	g := newTwilioGateway(api, 10)
	ctx := context.Background()

	if err := g.UpdateCallTwiml(ctx, "CA1", VoicemailDrop("")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if api.updated["CA1"].Twiml == nil {
		t.Fatalf("expected twiml set")
	}
	if err := g.CancelCall(ctx, "CA2"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if *api.updated["CA2"].Status != "canceled" {
		t.Fatalf("expected canceled status")
	}

	confs, err := g.ListConferences(ctx, "u1", ConferenceInProgress)
	if err != nil || len(confs) != 1 || confs[0].Status != ConferenceInProgress {
		t.Fatalf("list: %+v err=%v", confs, err)
	}
	if *api.listed[0].FriendlyName != "u1" {
		t.Fatalf("expected friendly name filter")
	}
	if err := g.UpdateConferenceStatus(ctx, "CF1", ConferenceCompleted); err != nil {
		t.Fatalf("update conference: %v", err)
	}
	if api.confStatus["CF1"] != "completed" {
		t.Fatalf("expected completed")
	}
}
