package telephony

import (
	"context"
	"errors"
	"fmt"
)

// Gateway is the provider-agnostic call control surface used by the dialer.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Implementations return *GatewayError for provider failures.
type Gateway interface {
	CreateCall(ctx context.Context, req CallRequest) (CallHandle, error)
	// UpdateCallTwiml replaces what the live leg executes next.
	UpdateCallTwiml(ctx context.Context, callSid string, in Instructions) error
	// CancelCall stops a leg that has not been answered yet.
	CancelCall(ctx context.Context, callSid string) error
	// ListConferences returns conferences whose friendly name equals tag.
	ListConferences(ctx context.Context, tag string, status ConferenceStatus) ([]Conference, error)
	UpdateConferenceStatus(ctx context.Context, conferenceSid string, status ConferenceStatus) error
}

// CallRequest places one outbound leg.
type CallRequest struct {
	To   string
	From string

	// AnswerURL returns the instructions run once the leg is answered.
	AnswerURL string
	// StatusCallbackURL receives call progress events.
	StatusCallbackURL string

	MachineDetection bool
}

type CallHandle struct {
	Sid    string
	Status string
}

type ConferenceStatus string

const (
	ConferenceInit       ConferenceStatus = "init"
	ConferenceInProgress ConferenceStatus = "in-progress"
	ConferenceCompleted  ConferenceStatus = "completed"
)

type Conference struct {
	Sid          string
	FriendlyName string
	Status       ConferenceStatus
}

var ErrInvalidRequest = errors.New("telephony: invalid request")

// GatewayError wraps a provider failure with the leg it concerned.
type GatewayError struct {
	Op      string
	CallSid string
	// StatusCode is the provider HTTP status when known.
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.CallSid != "" {
		return fmt.Sprintf("telephony: %s %s: %v", e.Op, e.CallSid, e.Err)
	}
	return fmt.Sprintf("telephony: %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Permanent reports whether retrying the same request cannot succeed
// (the provider rejected it, e.g. an invalid number).
func (e *GatewayError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 429
}

func (r CallRequest) validate() error {
	switch {
	case r.To == "":
		return fmt.Errorf("%w: to is required", ErrInvalidRequest)
	case r.From == "":
		return fmt.Errorf("%w: from is required", ErrInvalidRequest)
	case r.AnswerURL == "":
		return fmt.Errorf("%w: answer url is required", ErrInvalidRequest)
	}
	return nil
}
