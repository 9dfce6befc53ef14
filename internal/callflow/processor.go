// Package callflow advances outreach attempts from provider call and conference
// callbacks. Every handler is safe to re-run with the same delivery.
package callflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"outreach-dialer/internal/calls"
	"outreach-dialer/internal/dialer"
	"outreach-dialer/internal/outreach"
	"outreach-dialer/internal/queue"
	"outreach-dialer/internal/realtime"
	"outreach-dialer/internal/telephony"
	"outreach-dialer/pkg/logger"
	"outreach-dialer/pkg/phone"
)

// Redialer queues a feed-forward dial cycle. Implementations must drop a second
// request carrying the same key.
type Redialer interface {
	Redial(ctx context.Context, req dialer.Request, key string) error
}

// Conferences is the slice of the dial coordinator the processor drives.
type Conferences interface {
	ReleaseSlot(ctx context.Context, campaignID int64, agentID string) error
	CompleteConferences(ctx context.Context, agentID string) error
}

// Recorder appends the attempt.dispositioned outbox event.
type Recorder interface {
	AttemptDispositioned(ctx context.Context, a outreach.Attempt, callSid string) error
}

type Deps struct {
	Repo        outreach.Repository
	Queue       *queue.Manager
	Gateway     telephony.Gateway
	Notifier    realtime.Notifier
	Outbox      Recorder
	Conferences Conferences
	Redialer    Redialer
	PhoneRegion string
}

type Processor struct {
	repo        outreach.Repository
	queue       *queue.Manager
	gateway     telephony.Gateway
	notifier    realtime.Notifier
	outbox      Recorder
	conferences Conferences
	redialer    Redialer
	region      string
}

func NewProcessor(d Deps) *Processor {
	q := d.Queue
	if q == nil {
		q = queue.NewManager(d.Repo)
	}
	return &Processor{
		repo:        d.Repo,
		queue:       q,
		gateway:     d.Gateway,
		notifier:    d.Notifier,
		outbox:      d.Outbox,
		conferences: d.Conferences,
		redialer:    d.Redialer,
		region:      d.PhoneRegion,
	}
}

// leg is a contact leg with its attempt and campaign loaded.
type leg struct {
	call     calls.Call
	attempt  outreach.Attempt
	campaign outreach.Campaign
}

func (l leg) agentID() string {
	if l.attempt.UserID != "" {
		return l.attempt.UserID
	}
	return l.call.ConferenceTag
}

// HandleCallStatus applies a call status callback.
func (p *Processor) HandleCallStatus(ctx context.Context, cb telephony.StatusCallback) error {
	ctx = logger.WithAttrs(ctx, "call_sid", cb.CallSid, "call_status", cb.CallStatus)
	status := calls.CallStatus(cb.CallStatus)
	ts := cb.Timestamp

	update := calls.Call{
		Sid:           cb.CallSid,
		ParentCallSid: cb.ParentCallSid,
		Direction:     cb.Direction,
		To:            cb.To,
		From:          cb.From,
		Status:        status,
		AnsweredBy:    cb.AnsweredBy,
	}
	if status.Terminal() {
		update.EndTime = &ts
	}
	prev, err := p.repo.GetCall(ctx, cb.CallSid)
	if err != nil && !outreach.IsNotFound(err) {
		return fmt.Errorf("get call: %w", err)
	}
	call, err := p.repo.UpsertCall(ctx, update)
	if err != nil {
		return fmt.Errorf("upsert call: %w", err)
	}
	if !call.HasAttempt() {
		logger.From(ctx).Debug("status for leg without attempt")
		return nil
	}

	l, err := p.load(ctx, call)
	if err != nil {
		return err
	}
	ctx = logger.WithAttrs(ctx, "attempt_id", l.attempt.ID, "campaign_id", l.campaign.ID, "agent_id", l.agentID())

	switch {
	case telephony.IsMachine(cb.AnsweredBy) && status != calls.CallStatusCompleted && !prev.Status.Terminal():
		return p.voicemail(ctx, l, ts)
	case status == calls.CallStatusFailed, status == calls.CallStatusBusy, status == calls.CallStatusNoAnswer:
		return p.unreached(ctx, l, outreach.AttemptState(status), ts)
	case status == calls.CallStatusCanceled:
		return p.canceled(ctx, l, ts)
	case status == calls.CallStatusCompleted:
		return p.completed(ctx, l, ts, false)
	case status == calls.CallStatusInProgress && !l.campaign.Predictive():
		return p.connected(ctx, l, ts)
	default:
		return nil
	}
}

// HandleConferenceEvent applies a conference participant event. The conference
// friendly name is the agent id.
func (p *Processor) HandleConferenceEvent(ctx context.Context, ev telephony.ConferenceEvent) error {
	ctx = logger.WithAttrs(ctx, "call_sid", ev.CallSid, "conference_sid", ev.ConferenceSid, "event", ev.StatusCallbackEvent)

	switch ev.StatusCallbackEvent {
	case telephony.EventParticipantJoin:
		return p.participantJoin(ctx, ev)
	case telephony.EventParticipantLeave:
		if !telephony.EndsParticipation(ev.ReasonParticipantLeft) {
			return nil
		}
		return p.participantLeave(ctx, ev)
	default:
		return nil
	}
}

func (p *Processor) participantJoin(ctx context.Context, ev telephony.ConferenceEvent) error {
	log := logger.From(ctx)
	if phone.IsClientAddress(ev.Called) {
		log.Debug("client leg joined conference")
		return nil
	}

	call, err := p.repo.GetCall(ctx, ev.CallSid)
	if err != nil && !outreach.IsNotFound(err) {
		return fmt.Errorf("get call: %w", err)
	}
	if !call.HasAttempt() {
		return p.deviceJoin(ctx, ev, call)
	}

	if err := p.repo.SetCallConference(ctx, ev.CallSid, ev.ConferenceSid); err != nil {
		return fmt.Errorf("set call conference: %w", err)
	}
	call.ConferenceID = ev.ConferenceSid
	l, err := p.load(ctx, call)
	if err != nil {
		return err
	}
	ctx = logger.WithAttrs(ctx, "attempt_id", l.attempt.ID, "campaign_id", l.campaign.ID, "agent_id", l.agentID())
	return p.connected(ctx, l, ev.Timestamp)
}

// deviceJoin handles a leg the dialer did not place. It is bridged as the
// agent's device only when the called number passes the device gate.
func (p *Processor) deviceJoin(ctx context.Context, ev telephony.ConferenceEvent, call calls.Call) error {
	agentID := ev.FriendlyName
	ok, err := p.isAgentDevice(ctx, agentID, ev.Called, call.CampaignID)
	if err != nil {
		return err
	}
	if !ok {
		logger.From(ctx).Warn("unrecognised leg joined conference, not treated as agent device",
			"agent_id", agentID, "called", ev.Called)
	}
	_, err = p.repo.UpsertCall(ctx, calls.Call{
		Sid:           ev.CallSid,
		ConferenceID:  ev.ConferenceSid,
		ConferenceTag: agentID,
		To:            ev.Called,
		Status:        calls.CallStatusInProgress,
	})
	if err != nil {
		return fmt.Errorf("upsert device leg: %w", err)
	}
	if ok {
		logger.From(ctx).Info("agent device joined conference", "agent_id", agentID)
	}
	return nil
}

// isAgentDevice reports whether called is a client address, the campaign's
// caller id or one of the agent's verified audio devices.
func (p *Processor) isAgentDevice(ctx context.Context, agentID, called string, campaignID int64) (bool, error) {
	if called == "" {
		return false, nil
	}
	if phone.IsClientAddress(called) {
		return true, nil
	}
	if campaignID > 0 {
		c, err := p.repo.GetCampaign(ctx, campaignID)
		if err != nil && !outreach.IsNotFound(err) {
			return false, fmt.Errorf("get campaign: %w", err)
		}
		if err == nil && phone.Same(called, c.CallerID, p.region) {
			return true, nil
		}
	}
	if agentID == "" {
		return false, nil
	}
	devices, err := p.repo.ListVerifiedDevices(ctx, agentID)
	if err != nil {
		return false, fmt.Errorf("list verified devices: %w", err)
	}
	for _, d := range devices {
		if phone.Same(called, d, p.region) {
			return true, nil
		}
	}
	return false, nil
}

func (p *Processor) participantLeave(ctx context.Context, ev telephony.ConferenceEvent) error {
	call, err := p.repo.GetCall(ctx, ev.CallSid)
	if outreach.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get call: %w", err)
	}
	if !call.HasAttempt() {
		logger.From(ctx).Debug("agent leg left conference")
		return nil
	}
	l, err := p.load(ctx, call)
	if err != nil {
		return err
	}
	ctx = logger.WithAttrs(ctx, "attempt_id", l.attempt.ID, "campaign_id", l.campaign.ID, "agent_id", l.agentID())
	return p.completed(ctx, l, ev.Timestamp, true)
}

func (p *Processor) voicemail(ctx context.Context, l leg, ts time.Time) error {
	if l.attempt.State.Terminal() && l.attempt.State != outreach.StateVoicemail {
		return nil
	}
	if !l.attempt.State.Terminal() {
		drop := telephony.VoicemailDrop(l.campaign.VoicemailURL)
		if err := p.gateway.UpdateCallTwiml(ctx, l.call.Sid, drop); err != nil {
			return fmt.Errorf("voicemail drop: %w", err)
		}
	}
	a, applied, err := p.repo.UpdateAttempt(ctx, l.attempt.ID, outreach.AttemptUpdate{
		State:      outreach.StateVoicemail,
		AnsweredAt: &ts,
	})
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	l.attempt = a
	return p.settle(ctx, l, applied, outreach.StateVoicemail, effects{
		dequeue:     true,
		feedForward: true,
		status:      realtime.StatusVoicemail,
	})
}

func (p *Processor) unreached(ctx context.Context, l leg, state outreach.AttemptState, ts time.Time) error {
	a, applied, err := p.repo.UpdateAttempt(ctx, l.attempt.ID, outreach.AttemptUpdate{State: state, EndedAt: &ts})
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	l.attempt = a
	return p.settle(ctx, l, applied, state, effects{
		dequeue:     true,
		feedForward: true,
		status:      statusFor(state),
	})
}

// canceled is our own hang-up during leave campaign. The contact stays in the queue.
func (p *Processor) canceled(ctx context.Context, l leg, ts time.Time) error {
	a, applied, err := p.repo.UpdateAttempt(ctx, l.attempt.ID, outreach.AttemptUpdate{State: outreach.StateCanceled, EndedAt: &ts})
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	l.attempt = a
	return p.settle(ctx, l, applied, outreach.StateCanceled, effects{status: realtime.StatusIdle})
}

// completed resolves a connected (or direct-dial) attempt. sweep completes the
// agent's conference so a second leave event cannot tear it down twice.
// A predictive leg that ends without ever being answered never reached the
// agent, so it feeds the next dial like any other unreached outcome.
func (p *Processor) completed(ctx context.Context, l leg, ts time.Time, sweep bool) error {
	a, applied, err := p.repo.UpdateAttempt(ctx, l.attempt.ID, outreach.AttemptUpdate{State: outreach.StateCompleted, EndedAt: &ts})
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	l.attempt = a
	return p.settle(ctx, l, applied, outreach.StateCompleted, effects{
		dequeue:     true,
		feedForward: !sweep && a.AnsweredAt == nil,
		sweep:       sweep && l.campaign.Predictive(),
		status:      realtime.StatusCompleted,
	})
}

func (p *Processor) connected(ctx context.Context, l leg, ts time.Time) error {
	a, applied, err := p.repo.UpdateAttempt(ctx, l.attempt.ID, outreach.AttemptUpdate{State: outreach.StateConnected, AnsweredAt: &ts})
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if !applied {
		logger.From(ctx).Debug("connect ignored", "state", a.State)
		return nil
	}
	logger.From(ctx).Info("attempt connected")
	p.publish(ctx, l.agentID(), realtime.Event{ContactID: a.ContactID, Status: realtime.StatusConnected})
	return nil
}

type effects struct {
	dequeue     bool
	feedForward bool
	sweep       bool
	status      realtime.Status
}

// settle runs what follows a terminal transition. One-shot effects (event,
// outbox row, slot release) run only when this delivery applied the transition.
// Idempotent effects also run on a replay that finds the attempt already in
// target, so a delivery that failed halfway is finished by the provider's retry.
func (p *Processor) settle(ctx context.Context, l leg, applied bool, target outreach.AttemptState, fx effects) error {
	log := logger.From(ctx)
	a := l.attempt
	if !applied && a.State != target {
		log.Debug("transition ignored", "state", a.State, "target", target)
		return nil
	}
	agentID := l.agentID()
	predictive := l.campaign.Predictive()

	if applied {
		log.Info("attempt dispositioned", "state", a.State)
		if fx.status != "" {
			p.publish(ctx, agentID, realtime.Event{ContactID: a.ContactID, Status: fx.status})
		}
		if p.outbox != nil {
			if err := p.outbox.AttemptDispositioned(ctx, a, l.call.Sid); err != nil {
				log.Error("outbox append failed", "err", err)
			}
		}
		if predictive && p.conferences != nil {
			if err := p.conferences.ReleaseSlot(ctx, a.CampaignID, agentID); err != nil {
				log.Warn("release dial slot failed", "err", err)
			}
		}
	}

	var errs []error
	if fx.dequeue {
		_, err := p.queue.Dequeue(ctx, queue.DequeueRequest{
			CampaignID:       a.CampaignID,
			ContactID:        a.ContactID,
			GroupOnHousehold: l.campaign.GroupHouseholdQueue,
			By:               agentID,
			Reason:           string(a.State),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if fx.sweep && p.conferences != nil {
		if err := p.conferences.CompleteConferences(ctx, agentID); err != nil {
			errs = append(errs, fmt.Errorf("complete conferences: %w", err))
		}
	}
	if fx.feedForward && predictive && p.redialer != nil {
		err := p.redialer.Redial(ctx, dialer.Request{
			CampaignID:  a.CampaignID,
			AgentID:     agentID,
			WorkspaceID: a.WorkspaceID,
			Origin:      dialer.OriginFeedForward,
		}, "cycle:"+strconv.FormatInt(a.ID, 10))
		if err != nil {
			errs = append(errs, fmt.Errorf("feed forward: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) load(ctx context.Context, call calls.Call) (leg, error) {
	a, err := p.repo.GetAttempt(ctx, call.AttemptID)
	if err != nil {
		return leg{}, fmt.Errorf("get attempt: %w", err)
	}
	campaignID := call.CampaignID
	if campaignID == 0 {
		campaignID = a.CampaignID
	}
	c, err := p.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return leg{}, fmt.Errorf("get campaign: %w", err)
	}
	return leg{call: call, attempt: a, campaign: c}, nil
}

func (p *Processor) publish(ctx context.Context, agentID string, e realtime.Event) {
	if p.notifier == nil || agentID == "" {
		return
	}
	if err := p.notifier.Publish(ctx, agentID, e); err != nil {
		logger.From(ctx).Warn("realtime publish failed", "status", e.Status, "err", err)
	}
}

func statusFor(s outreach.AttemptState) realtime.Status {
	switch s {
	case outreach.StateFailed:
		return realtime.StatusFailed
	case outreach.StateBusy:
		return realtime.StatusBusy
	case outreach.StateNoAnswer:
		return realtime.StatusNoAnswer
	case outreach.StateVoicemail:
		return realtime.StatusVoicemail
	case outreach.StateCompleted:
		return realtime.StatusCompleted
	case outreach.StateConnected:
		return realtime.StatusConnected
	default:
		return realtime.StatusIdle
	}
}
