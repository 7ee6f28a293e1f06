package recurrence

import (
	"errors"
	"time"
)

// State tracks one scheduling attempt through the pipeline.
//
//	Requested → Calculated → Validated → Accepted
//	                                   ↘ AwaitingConfirmation → Confirmed
//	                                                          ↘ Cancelled
//
// Accepted, Confirmed and Cancelled are terminal. There are no retries:
// a cancelled attempt requires a fresh Request.
type State uint8

const (
	StateRequested State = iota
	StateCalculated
	StateValidated
	StateAccepted
	StateAwaitingConfirmation
	StateConfirmed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateCalculated:
		return "calculated"
	case StateValidated:
		return "validated"
	case StateAccepted:
		return "accepted"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateConfirmed:
		return "confirmed"
	case StateCancelled:
		return "cancelled"
	default:
		return "invalid"
	}
}

var (
	ErrNotAwaiting = errors.New("attempt is not awaiting confirmation")
	ErrNotSettled  = errors.New("attempt has no accepted instant")
)

// Attempt is the per-request state machine. It carries no shared state;
// the caller owns it for the duration of the confirmation round-trip
// (which the core never blocks on).
type Attempt struct {
	Req        Request
	Candidate  time.Time
	Outcome    Outcome
	Resolution Resolution

	state State
}

// Begin runs the pipeline for req and returns the attempt positioned at
// either Accepted or AwaitingConfirmation.
func Begin(req Request) *Attempt {
	a := &Attempt{Req: req, state: StateRequested}

	a.Candidate = Next(req.Spec, req.At, req.Now)
	a.state = StateCalculated

	a.Outcome = Validate(a.Candidate, req.Now, req.lead())
	a.state = StateValidated

	a.Resolution = Resolve(req.Now, a.Candidate, a.Outcome, req.lead())
	if a.Resolution.Kind == ResolutionAdjust && a.Resolution.RequiresConfirmation {
		a.state = StateAwaitingConfirmation
	} else {
		a.state = StateAccepted
	}
	return a
}

func (a *Attempt) State() State { return a.state }

// NeedsConfirmation reports whether the caller must obtain an explicit
// user decision before the attempt can settle.
func (a *Attempt) NeedsConfirmation() bool { return a.state == StateAwaitingConfirmation }

// Confirm transitions AwaitingConfirmation → Confirmed and returns the
// adjusted instant to schedule.
func (a *Attempt) Confirm() (time.Time, error) {
	if a.state != StateAwaitingConfirmation {
		return time.Time{}, ErrNotAwaiting
	}
	a.state = StateConfirmed
	return a.Resolution.At, nil
}

// Cancel transitions AwaitingConfirmation → Cancelled.
func (a *Attempt) Cancel() error {
	if a.state != StateAwaitingConfirmation {
		return ErrNotAwaiting
	}
	a.state = StateCancelled
	return nil
}

// Settled returns the accepted instant once the attempt reached a
// scheduling terminal state (Accepted or Confirmed).
func (a *Attempt) Settled() (time.Time, error) {
	switch a.state {
	case StateAccepted, StateConfirmed:
		return a.Resolution.At, nil
	default:
		return time.Time{}, ErrNotSettled
	}
}
