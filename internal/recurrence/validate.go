package recurrence

import "time"

// DefaultMinimumLead is the minimum gap between now and a schedulable
// occurrence. Anything closer is effectively "in the past" once
// processing delay and minute rounding are accounted for.
const DefaultMinimumLead = 1 * time.Minute

// Outcome is the result of validating a candidate instant.
type Outcome uint8

const (
	// OutcomeValid: candidate respects the minimum lead.
	OutcomeValid Outcome = iota
	// OutcomeTooSoon: candidate-now < lead. Not an error; the resolver
	// decides remediation.
	OutcomeTooSoon
)

func (o Outcome) String() string {
	if o == OutcomeTooSoon {
		return "too_soon"
	}
	return "valid"
}

// Validate checks candidate against the minimum-lead invariant.
// A non-positive lead falls back to DefaultMinimumLead.
//
// Validate only reports; it never fixes. Remediation belongs to
// Resolve (or the caller).
func Validate(candidate, now time.Time, lead time.Duration) Outcome {
	if lead <= 0 {
		lead = DefaultMinimumLead
	}
	if candidate.Sub(now) < lead {
		return OutcomeTooSoon
	}
	return OutcomeValid
}
