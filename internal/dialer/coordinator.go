package dialer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach-dialer/internal/calls"
	"outreach-dialer/internal/outreach"
	"outreach-dialer/internal/queue"
	"outreach-dialer/internal/realtime"
	"outreach-dialer/internal/telephony"
	"outreach-dialer/pkg/logger"
	"outreach-dialer/pkg/phone"

	"golang.org/x/sync/errgroup"
)

// Admitter is the credit gate. It is advisory: two cycles may both pass it.
type Admitter interface {
	Admit(ctx context.Context, workspaceID string) (bool, error)
}

type Deps struct {
	Repo     outreach.Repository
	Queue    *queue.Manager
	Credits  Admitter
	Gateway  telephony.Gateway
	Notifier realtime.Notifier
	Guard    Guard
	URLs     telephony.URLs
	// PhoneRegion is used to normalise national contact numbers.
	PhoneRegion string
}

// Coordinator runs dial cycles. It keeps no per-agent state in process;
// the queue claim and the Guard are the only coordination points.
type Coordinator struct {
	repo     outreach.Repository
	queue    *queue.Manager
	credits  Admitter
	gateway  telephony.Gateway
	notifier realtime.Notifier
	guard    Guard
	urls     telephony.URLs
	region   string
	clock    func() time.Time
	settler  CallSettler
}

// CallSettler applies a call status the way a provider callback would.
type CallSettler interface {
	HandleCallStatus(ctx context.Context, cb telephony.StatusCallback) error
}

// SetSettler registers who settles a leg that ended before it was persisted.
// Call it once during wiring, before cycles run.
func (c *Coordinator) SetSettler(s CallSettler) { c.settler = s }

func NewCoordinator(d Deps) *Coordinator {
	q := d.Queue
	if q == nil {
		q = queue.NewManager(d.Repo)
	}
	return &Coordinator{
		repo:     d.Repo,
		queue:    q,
		credits:  d.Credits,
		gateway:  d.Gateway,
		notifier: d.Notifier,
		guard:    d.Guard,
		urls:     d.URLs,
		region:   d.PhoneRegion,
		clock:    time.Now,
	}
}

// RunCycle claims the next contact for the agent and places one call.
// Admission and empty-queue results come back as an Outcome with a nil error.
func (c *Coordinator) RunCycle(ctx context.Context, req Request) (Outcome, error) {
	if err := req.validate(); err != nil {
		return Outcome{}, err
	}
	ctx = logger.WithAttrs(ctx, "campaign_id", req.CampaignID, "agent_id", req.AgentID)
	log := logger.From(ctx)

	campaign, err := c.repo.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get campaign: %w", err)
	}
	if req.WorkspaceID == "" {
		req.WorkspaceID = campaign.WorkspaceID
	}
	if campaign.WorkspaceID != req.WorkspaceID {
		return Outcome{}, ErrWorkspaceMismatch
	}

	ok, err := c.credits.Admit(ctx, req.WorkspaceID)
	if err != nil {
		return Outcome{}, fmt.Errorf("credits: %w", err)
	}
	if !ok {
		log.Info("dial cycle refused, credits exhausted", "workspace_id", req.WorkspaceID)
		return Outcome{Kind: OutcomeCreditsExhausted}, nil
	}

	predictive := campaign.Predictive()
	if predictive {
		out, admitted, err := c.admitPredictive(ctx, req)
		if err != nil || !admitted {
			return out, err
		}
	}
	// release gives back the predictive slot when this cycle does not end in a live call.
	release := func() {
		if !predictive {
			return
		}
		if err := c.guard.Release(context.WithoutCancel(ctx), req.CampaignID, req.AgentID); err != nil {
			log.Warn("release dial slot failed", "err", err)
		}
	}

	entry, claimed, err := c.queue.ClaimNext(ctx, req.CampaignID, req.AgentID, campaign.GroupHouseholdQueue)
	if err != nil {
		release()
		return Outcome{}, err
	}
	if !claimed {
		release()
		if predictive {
			if err := c.completeConferences(ctx, req.AgentID); err != nil {
				log.Warn("complete idle conference failed", "err", err)
			}
		}
		c.publish(ctx, req.AgentID, realtime.Event{Status: realtime.StatusIdle})
		log.Info("dial cycle found no contacts")
		return Outcome{Kind: OutcomeNoContactsAvailable}, nil
	}

	attempt, err := c.repo.CreateAttempt(ctx, outreach.Attempt{
		ContactID:   entry.ContactID,
		CampaignID:  req.CampaignID,
		WorkspaceID: req.WorkspaceID,
		UserID:      req.AgentID,
		State:       outreach.StatePending,
	})
	if err != nil {
		release()
		c.requeue(ctx, req, entry)
		return Outcome{}, fmt.Errorf("create attempt: %w", err)
	}
	log = log.With("attempt_id", attempt.ID, "contact_id", entry.ContactID)

	to := phone.NormalizeE164(entry.Contact.Phone, c.region)
	callReq := telephony.CallRequest{
		To:                to,
		From:              campaign.CallerID,
		AnswerURL:         c.urls.BridgeAnswer(req.AgentID),
		StatusCallbackURL: c.urls.StatusCallback(),
	}
	if predictive {
		callReq.AnswerURL = c.urls.ConferenceAnswer(req.AgentID)
		callReq.MachineDetection = true
	}

	handle, err := c.gateway.CreateCall(ctx, callReq)
	if err != nil {
		c.failAttempt(ctx, attempt.ID)
		release()
		var ge *telephony.GatewayError
		if errors.As(err, &ge) && ge.Permanent() {
			c.dequeueRejected(ctx, req, entry.ContactID)
		} else {
			c.requeue(ctx, req, entry)
		}
		c.publish(ctx, req.AgentID, realtime.Event{ContactID: entry.ContactID, Status: realtime.StatusFailed})
		log.Error("create call failed", "err", err)
		return Outcome{}, &CycleError{AttemptID: attempt.ID, Err: err}
	}
	log = log.With("call_sid", handle.Sid)

	now := c.clock().UTC()
	stored, err := c.repo.UpsertCall(ctx, calls.Call{
		Sid:           handle.Sid,
		AttemptID:     attempt.ID,
		CampaignID:    req.CampaignID,
		ContactID:     entry.ContactID,
		WorkspaceID:   req.WorkspaceID,
		ConferenceTag: req.AgentID,
		Direction:     "outbound-api",
		To:            to,
		From:          campaign.CallerID,
		Status:        calls.CallStatus(handle.Status),
		StartTime:     &now,
	})
	if err != nil {
		// The call is live; its status callbacks still find the attempt once the store recovers.
		log.Error("persist call failed", "err", err)
		return Outcome{}, &CycleError{AttemptID: attempt.ID, CallSid: handle.Sid, Err: err}
	}

	_, applied, err := c.repo.UpdateAttempt(ctx, attempt.ID, outreach.AttemptUpdate{State: outreach.StateDialing})
	if err != nil {
		log.Error("mark attempt dialing failed", "err", err)
		return Outcome{}, &CycleError{AttemptID: attempt.ID, CallSid: handle.Sid, Err: err}
	}
	if applied {
		c.publish(ctx, req.AgentID, realtime.Event{ContactID: entry.ContactID, Status: realtime.StatusDialing})
	}

	// A terminal callback that beat the upsert found no attempt on the leg; settle it here.
	if stored.Status.Terminal() {
		if err := c.settleEarly(ctx, stored); err != nil {
			log.Error("settle early terminal status failed", "status", stored.Status, "err", err)
			return Outcome{}, &CycleError{AttemptID: attempt.ID, CallSid: handle.Sid, Err: err}
		}
	}
	log.Info("contact dialed", "predictive", predictive)
	return Outcome{Kind: OutcomeDialed, AttemptID: attempt.ID, CallSid: handle.Sid, ContactID: entry.ContactID}, nil
}

// admitPredictive checks the stop flag, the live conference and the in-flight cap.
// admitted is true only when a slot was taken.
func (c *Coordinator) admitPredictive(ctx context.Context, req Request) (Outcome, bool, error) {
	log := logger.From(ctx)

	if req.Origin == OriginAgent {
		if err := c.guard.ClearStopped(ctx, req.CampaignID, req.AgentID); err != nil {
			return Outcome{}, false, fmt.Errorf("clear stop flag: %w", err)
		}
	} else {
		stopped, err := c.guard.Stopped(ctx, req.CampaignID, req.AgentID)
		if err != nil {
			return Outcome{}, false, fmt.Errorf("stop flag: %w", err)
		}
		if stopped {
			log.Info("dial cycle skipped, agent left campaign")
			return Outcome{Kind: OutcomeAgentUnavailable}, false, nil
		}
	}

	live, err := c.gateway.ListConferences(ctx, req.AgentID, telephony.ConferenceInProgress)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("list conferences: %w", err)
	}
	if len(live) == 0 {
		log.Info("dial cycle skipped, no live conference")
		return Outcome{Kind: OutcomeAgentUnavailable}, false, nil
	}

	ok, err := c.guard.Acquire(ctx, req.CampaignID, req.AgentID)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("acquire dial slot: %w", err)
	}
	if !ok {
		log.Debug("dial cycle skipped, dial already in flight")
		return Outcome{Kind: OutcomeInFlight}, false, nil
	}
	return Outcome{}, true, nil
}

// ReleaseSlot gives back a predictive dial slot once a contact leg reached a final state.
func (c *Coordinator) ReleaseSlot(ctx context.Context, campaignID int64, agentID string) error {
	if c.guard == nil {
		return nil
	}
	return c.guard.Release(ctx, campaignID, agentID)
}

// LeaveCampaign stops predictive feed-forward for the agent, then tears down its
// conference, hangs up in-flight contact legs and requeues claimed entries.
// The teardown steps are independent; a leg missed here settles on its own callback.
func (c *Coordinator) LeaveCampaign(ctx context.Context, campaignID int64, agentID string) error {
	if campaignID <= 0 || agentID == "" {
		return ErrInvalidArgument
	}
	ctx = logger.WithAttrs(ctx, "campaign_id", campaignID, "agent_id", agentID)

	if err := c.guard.MarkStopped(ctx, campaignID, agentID); err != nil {
		return fmt.Errorf("mark stopped: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.completeConferences(gctx, agentID)
	})
	g.Go(func() error {
		return c.hangUpLegs(gctx, campaignID, agentID)
	})
	g.Go(func() error {
		n, err := c.queue.RequeueAgent(gctx, campaignID, agentID)
		if err != nil {
			return err
		}
		logger.From(gctx).Info("claimed entries requeued", "count", n)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("leave campaign: %w", err)
	}

	c.publish(ctx, agentID, realtime.Event{Status: realtime.StatusIdle})
	return nil
}

// CompleteConferences marks every in-progress conference for the agent completed.
// Safe to repeat; a conference already gone is not an error.
func (c *Coordinator) CompleteConferences(ctx context.Context, agentID string) error {
	return c.completeConferences(ctx, agentID)
}

func (c *Coordinator) completeConferences(ctx context.Context, agentID string) error {
	confs, err := c.gateway.ListConferences(ctx, agentID, telephony.ConferenceInProgress)
	if err != nil {
		return fmt.Errorf("list conferences: %w", err)
	}
	var errs []error
	for _, conf := range confs {
		err := c.gateway.UpdateConferenceStatus(ctx, conf.Sid, telephony.ConferenceCompleted)
		var ge *telephony.GatewayError
		if errors.As(err, &ge) && ge.StatusCode == 404 {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		logger.From(ctx).Info("conference completed", "conference_sid", conf.Sid)
	}
	return errors.Join(errs...)
}

func (c *Coordinator) hangUpLegs(ctx context.Context, campaignID int64, agentID string) error {
	legs, err := c.repo.ListActiveCalls(ctx, campaignID, agentID)
	if err != nil {
		return fmt.Errorf("list active calls: %w", err)
	}
	var errs []error
	for _, leg := range legs {
		if !leg.HasAttempt() {
			continue
		}
		if leg.Status == calls.CallStatusInProgress {
			err = c.gateway.UpdateCallTwiml(ctx, leg.Sid, telephony.Instructions{Hangup: true})
		} else {
			err = c.gateway.CancelCall(ctx, leg.Sid)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) failAttempt(ctx context.Context, attemptID int64) {
	now := c.clock().UTC()
	_, _, err := c.repo.UpdateAttempt(context.WithoutCancel(ctx), attemptID, outreach.AttemptUpdate{
		State:   outreach.StateFailed,
		EndedAt: &now,
	})
	if err != nil {
		logger.From(ctx).Error("mark attempt failed", "attempt_id", attemptID, "err", err)
	}
}

func (c *Coordinator) settleEarly(ctx context.Context, call calls.Call) error {
	if c.settler == nil {
		logger.From(ctx).Warn("leg ended before it was persisted and no settler is set")
		return nil
	}
	ts := c.clock().UTC()
	if call.EndTime != nil {
		ts = *call.EndTime
	}
	return c.settler.HandleCallStatus(context.WithoutCancel(ctx), telephony.StatusCallback{
		CallSid:    call.Sid,
		CallStatus: string(call.Status),
		AnsweredBy: call.AnsweredBy,
		Direction:  call.Direction,
		To:         call.To,
		From:       call.From,
		Timestamp:  ts,
	})
}

// requeue returns the entry this cycle claimed so a failed cycle does not strand it.
// Entries the agent holds for live calls are not touched.
func (c *Coordinator) requeue(ctx context.Context, req Request, entry outreach.QueueEntry) {
	if _, err := c.queue.ReleaseClaim(context.WithoutCancel(ctx), entry, req.AgentID); err != nil {
		logger.From(ctx).Warn("requeue after failed cycle", "contact_id", entry.ContactID, "err", err)
	}
}

// dequeueRejected drops a contact the provider refused to dial so it is not claimed again.
func (c *Coordinator) dequeueRejected(ctx context.Context, req Request, contactID int64) {
	_, err := c.queue.Dequeue(context.WithoutCancel(ctx), queue.DequeueRequest{
		CampaignID: req.CampaignID,
		ContactID:  contactID,
		By:         req.AgentID,
		Reason:     string(outreach.StateFailed),
	})
	if err != nil {
		logger.From(ctx).Warn("dequeue rejected contact", "contact_id", contactID, "err", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, agentID string, e realtime.Event) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Publish(ctx, agentID, e); err != nil {
		logger.From(ctx).Warn("realtime publish failed", "status", e.Status, "err", err)
	}
}
