package telephony

import (
	"context"
	"fmt"
	"sync"
)

// MemoryGateway records gateway calls in memory. Used by tests and local runs
// without provider credentials.
type MemoryGateway struct {
	mu sync.Mutex

	Created     []CallRequest
	Updates     map[string][]Instructions
	Canceled    []string
	conferences map[string]Conference
	seq         int

	// FailCreate makes the next CreateCall calls fail with this error.
	FailCreate error
	// FailStatus is the provider status reported with FailCreate; zero means 400.
	FailStatus int
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		Updates:     map[string][]Instructions{},
		conferences: map[string]Conference{},
	}
}

func (g *MemoryGateway) CreateCall(ctx context.Context, req CallRequest) (CallHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := req.validate(); err != nil {
		return CallHandle{}, &GatewayError{Op: "create call", Err: err}
	}
	if g.FailCreate != nil {
		code := g.FailStatus
		if code == 0 {
			code = 400
		}
		return CallHandle{}, &GatewayError{Op: "create call", StatusCode: code, Err: g.FailCreate}
	}
	g.seq++
	g.Created = append(g.Created, req)
	return CallHandle{Sid: fmt.Sprintf("CA%06d", g.seq), Status: "queued"}, nil
}

func (g *MemoryGateway) UpdateCallTwiml(ctx context.Context, callSid string, in Instructions) error {
	if _, err := in.Render(); err != nil {
		return &GatewayError{Op: "update call", CallSid: callSid, Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Updates[callSid] = append(g.Updates[callSid], in)
	return nil
}

func (g *MemoryGateway) CancelCall(ctx context.Context, callSid string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Canceled = append(g.Canceled, callSid)
	return nil
}

// StartConference registers a live conference named tag, as if the agent's leg had joined it.
func (g *MemoryGateway) StartConference(sid, tag string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conferences[sid] = Conference{Sid: sid, FriendlyName: tag, Status: ConferenceInProgress}
}

func (g *MemoryGateway) ListConferences(ctx context.Context, tag string, status ConferenceStatus) ([]Conference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Conference
	for _, c := range g.conferences {
		if c.FriendlyName == tag && (status == "" || c.Status == status) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *MemoryGateway) UpdateConferenceStatus(ctx context.Context, conferenceSid string, status ConferenceStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.conferences[conferenceSid]
	if !ok {
		return &GatewayError{Op: "update conference", StatusCode: 404, Err: fmt.Errorf("conference %s not found", conferenceSid)}
	}
	c.Status = status
	g.conferences[conferenceSid] = c
	return nil
}

// Conference returns the recorded conference by sid.
func (g *MemoryGateway) Conference(sid string) (Conference, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.conferences[sid]
	return c, ok
}

// CreatedCalls returns a snapshot of placed calls.
func (g *MemoryGateway) CreatedCalls() []CallRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]CallRequest, len(g.Created))
	copy(out, g.Created)
	return out
}

// UpdatesFor returns a snapshot of instructions sent to a leg.
func (g *MemoryGateway) UpdatesFor(sid string) []Instructions {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Instructions, len(g.Updates[sid]))
	copy(out, g.Updates[sid])
	return out
}

func (g *MemoryGateway) CanceledCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.Canceled))
	copy(out, g.Canceled)
	return out
}

var _ Gateway = (*MemoryGateway)(nil)
