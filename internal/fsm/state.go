package fsm

import (
	"bikeweather/internal/domain"
	"bikeweather/internal/failure"
)

// Kind names AppState variant.
type Kind string

const (
	KindInitial            Kind = "initial"
	KindReady              Kind = "ready"
	KindAwaitingPermission Kind = "awaiting_permission"
	KindPermissionGranted  Kind = "permission_granted"
	KindPermissionDenied   Kind = "permission_denied"
	KindLocationKnown      Kind = "location_known"
	KindVerdictReady       Kind = "verdict_ready"
	KindFailed             Kind = "failed"
)

// Failure keeps diagnostic detail of a failed pipeline step.
type Failure struct {
	Kind    failure.Kind `json:"kind"`
	Message string       `json:"message"`
}

// State is one AppState value; replaced wholesale on every transition.
// Params: variant kind, generation tag, and payload fields meaningful for that kind.
// Returns: immutable state snapshot.
type State struct {
	Kind       Kind   `json:"kind"`
	Generation uint64 `json:"generation"`

	// Location is set for KindLocationKnown.
	Location domain.Coordinates `json:"location"`
	// Verdict is set for KindVerdictReady; nil means engine had no input.
	Verdict *domain.Verdict `json:"verdict,omitempty"`
	// PermissionRequested is set for KindAwaitingPermission once request is outstanding.
	PermissionRequested bool `json:"permission_requested,omitempty"`
	// Failure is set for KindFailed.
	Failure *Failure `json:"failure,omitempty"`
}

// Initial returns state before app becomes ready.
func Initial() State {
	return State{Kind: KindInitial}
}

// Equal compares variant and payload, ignoring generation.
// Params: other state.
// Returns: true when entering other from receiver is a no-op.
func (s State) Equal(other State) bool {
	if s.Kind != other.Kind || s.PermissionRequested != other.PermissionRequested {
		return false
	}
	if s.Location != other.Location {
		return false
	}
	switch {
	case s.Verdict == nil && other.Verdict == nil:
	case s.Verdict == nil || other.Verdict == nil:
		return false
	case !s.Verdict.Equal(*other.Verdict):
		return false
	}
	switch {
	case s.Failure == nil && other.Failure == nil:
		return true
	case s.Failure == nil || other.Failure == nil:
		return false
	default:
		return *s.Failure == *other.Failure
	}
}

func ready() State {
	return State{Kind: KindReady}
}

func awaitingPermission(requested bool) State {
	return State{Kind: KindAwaitingPermission, PermissionRequested: requested}
}

func permissionGranted() State {
	return State{Kind: KindPermissionGranted}
}

func permissionDenied() State {
	return State{Kind: KindPermissionDenied}
}

func locationKnown(location domain.Coordinates) State {
	return State{Kind: KindLocationKnown, Location: location}
}

func verdictReady(verdict *domain.Verdict) State {
	return State{Kind: KindVerdictReady, Verdict: verdict}
}

func failed(fallback failure.Kind, err error) State {
	kind, ok := failure.KindOf(err)
	if !ok {
		kind = fallback
	}
	message := string(kind)
	if err != nil {
		message = err.Error()
	}
	return State{Kind: KindFailed, Failure: &Failure{Kind: kind, Message: message}}
}
