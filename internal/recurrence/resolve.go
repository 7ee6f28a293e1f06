package recurrence

import "time"

// AdjustTolerance is the largest candidate shift that counts as trivial
// rounding. Adjustments beyond it must be confirmed by the user rather
// than applied silently.
const AdjustTolerance = 1 * time.Second

// ResolutionKind says whether the candidate was accepted as-is or
// replaced by an adjusted instant.
type ResolutionKind uint8

const (
	ResolutionAccept ResolutionKind = iota
	ResolutionAdjust
)

// Resolution is the resolver's verdict for one scheduling attempt.
type Resolution struct {
	Kind ResolutionKind

	// At is the instant to schedule: the candidate itself on Accept,
	// the proposed replacement on Adjust.
	At time.Time

	// OriginalAt is the literal candidate the calculator produced,
	// kept for display next to the adjusted instant.
	OriginalAt time.Time

	// RequiresConfirmation is set when At differs from the user's
	// literal input by more than AdjustTolerance. The caller must then
	// present an explicit accept/cancel choice, never reschedule
	// silently.
	RequiresConfirmation bool
}

// Resolve maps a validation outcome to a resolution.
//
// A valid candidate is always accepted unchanged. A too-soon candidate
// is bumped to now+lead, rounded up to a whole minute.
func Resolve(now, candidate time.Time, out Outcome, lead time.Duration) Resolution {
	if out == OutcomeValid {
		return Resolution{Kind: ResolutionAccept, At: candidate, OriginalAt: candidate}
	}
	if lead <= 0 {
		lead = DefaultMinimumLead
	}
	adj := ceilMinute(now.Add(lead))
	delta := adj.Sub(candidate)
	if delta < 0 {
		delta = -delta
	}
	return Resolution{
		Kind:                 ResolutionAdjust,
		At:                   adj,
		OriginalAt:           candidate,
		RequiresConfirmation: delta > AdjustTolerance,
	}
}

// Request bundles the inputs of one scheduling attempt.
// Now is injected by the caller; the core never reads the clock.
type Request struct {
	Spec        Spec
	At          TimeOfDay
	Now         time.Time
	MinimumLead time.Duration // <=0 means DefaultMinimumLead
}

func (r Request) lead() time.Duration {
	if r.MinimumLead > 0 {
		return r.MinimumLead
	}
	return DefaultMinimumLead
}

// Result is the computed next occurrence plus adjustment bookkeeping
// for display.
type Result struct {
	NextAt     time.Time
	Adjusted   bool
	OriginalAt time.Time
}

// Schedule runs the calculate-validate-resolve pipeline and collapses
// the resolution into a Result. Callers that must surface the
// confirmation round-trip should use Begin instead.
func Schedule(req Request) Result {
	cand := Next(req.Spec, req.At, req.Now)
	out := Validate(cand, req.Now, req.lead())
	res := Resolve(req.Now, cand, out, req.lead())
	return Result{
		NextAt:     res.At,
		Adjusted:   res.Kind == ResolutionAdjust,
		OriginalAt: res.OriginalAt,
	}
}
