package domain

import (
	"fmt"
	"strings"
)

// Outcome is the riding recommendation.
// Params: favorable/unfavorable constants.
// Returns: verdict outcome shared by engine, state machine, and companion payloads.
type Outcome string

const (
	// OutcomeFavorable means conditions are fine for riding.
	OutcomeFavorable Outcome = "favorable"
	// OutcomeUnfavorable means at least one evaluated constraint failed.
	OutcomeUnfavorable Outcome = "unfavorable"
)

// Validate checks outcome against known values.
// Params: none.
// Returns: error for unknown outcome.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeFavorable, OutcomeUnfavorable:
		return nil
	default:
		return fmt.Errorf("unsupported outcome %q", o)
	}
}

// Verdict is one decision with ordered justifications.
// Params: outcome and reasons in rule-evaluation order.
// Returns: immutable recommendation value.
type Verdict struct {
	Outcome Outcome  `json:"outcome"`
	Reasons []string `json:"reasons"`
}

// Favorable builds favorable verdict with one reason.
func Favorable(reason string) Verdict {
	return Verdict{Outcome: OutcomeFavorable, Reasons: []string{reason}}
}

// Unfavorable builds unfavorable verdict with one reason.
func Unfavorable(reason string) Verdict {
	return Verdict{Outcome: OutcomeUnfavorable, Reasons: []string{reason}}
}

// Merge combines two verdicts in evaluation order.
// Params: next verdict evaluated after receiver.
// Returns: concatenated reasons; outcome stays unfavorable once receiver is unfavorable.
func (v Verdict) Merge(next Verdict) Verdict {
	reasons := make([]string, 0, len(v.Reasons)+len(next.Reasons))
	reasons = append(reasons, v.Reasons...)
	reasons = append(reasons, next.Reasons...)

	outcome := v.Outcome
	if v.Outcome == OutcomeFavorable {
		outcome = next.Outcome
	}
	return Verdict{Outcome: outcome, Reasons: reasons}
}

// Reason joins reasons into one sentence sequence.
// Params: none.
// Returns: reasons separated by single spaces.
func (v Verdict) Reason() string {
	return strings.Join(v.Reasons, " ")
}

// Equal compares outcome and ordered reasons.
// Params: other verdict.
// Returns: true when both verdicts are structurally equal.
func (v Verdict) Equal(other Verdict) bool {
	if v.Outcome != other.Outcome || len(v.Reasons) != len(other.Reasons) {
		return false
	}
	for i := range v.Reasons {
		if v.Reasons[i] != other.Reasons[i] {
			return false
		}
	}
	return true
}
