package fsm

import (
	"bikeweather/internal/domain"
	"bikeweather/internal/engine"
	"bikeweather/internal/failure"
)

// Machine is the pure AppState transition function bound to one policy.
type Machine struct {
	policy engine.Policy
}

// New creates state machine.
// Params: immutable decision policy used when forecast arrives.
// Returns: machine value safe for concurrent use.
func New(policy engine.Policy) Machine {
	return Machine{policy: policy}
}

// Transition applies one event to current state.
// Params: current state and event.
// Returns: next state and effects to execute; current state and no effects
// when event is stale, irrelevant, or re-enters an equal state.
func (m Machine) Transition(current State, event Event) (State, []Effect) {
	if IsStale(current, event) {
		return current, nil
	}

	next, effects, changed := m.next(current, event)
	if !changed || next.Equal(current) {
		return current, nil
	}

	next.Generation = current.Generation + 1
	tagged := make([]Effect, 0, len(effects))
	for _, effect := range effects {
		tagged = append(tagged, effect.withGeneration(next.Generation))
	}
	return next, tagged
}

// IsStale reports whether event answers an effect issued under an older state.
// Params: current state and event.
// Returns: true when event must be discarded.
func IsStale(current State, event Event) bool {
	tag, ok := event.(tagged)
	if !ok {
		return false
	}
	generation := tag.generation()
	if _, callback := event.(PermissionChanged); callback && generation == 0 {
		return false
	}
	return generation != current.Generation
}

func (m Machine) next(current State, event Event) (State, []Effect, bool) {
	switch e := event.(type) {
	case BecomeReady:
		return ready(), []Effect{QueryPermission{}}, true
	case UserAction:
		return onUserAction(current)
	case PermissionStatusReported:
		if current.Kind != KindReady {
			return current, nil, false
		}
		if e.Err != nil {
			return failed(failure.PermissionDenied, e.Err), nil, true
		}
		return onPermissionStatus(current, e.Status, true)
	case PermissionChanged:
		if e.Err != nil {
			return failed(failure.PermissionDenied, e.Err), nil, true
		}
		return onPermissionStatus(current, e.Status, e.Generation != 0)
	case LocationResolved:
		if e.Err != nil {
			return failed(failure.LocationFailure, e.Err), nil, true
		}
		if current.Kind != KindPermissionGranted {
			return current, nil, false
		}
		return locationKnown(e.Location), []Effect{FetchForecast{Location: e.Location}}, true
	case ForecastFetched:
		if current.Kind != KindLocationKnown {
			return current, nil, false
		}
		if e.Err != nil {
			return failed(failure.ForecastFailure, e.Err), nil, true
		}
		return m.onForecast(e.Forecast)
	default:
		return current, nil, false
	}
}

func onUserAction(current State) (State, []Effect, bool) {
	switch current.View().Action {
	case ActionRequestPermission:
		return awaitingPermission(true), []Effect{RequestPermission{}}, true
	case ActionRetry:
		return ready(), []Effect{QueryPermission{}}, true
	default:
		return current, nil, false
	}
}

// onPermissionStatus maps authorization status to next state.
// Untagged undetermined callbacks carry no decision and are ignored.
func onPermissionStatus(current State, status domain.PermissionStatus, answered bool) (State, []Effect, bool) {
	switch status {
	case domain.PermissionGranted:
		if current.Kind == KindPermissionGranted || current.Kind == KindLocationKnown {
			return current, nil, false
		}
		return permissionGranted(), []Effect{RequestLocation{}}, true
	case domain.PermissionDenied, domain.PermissionRestricted:
		return permissionDenied(), nil, true
	case domain.PermissionUndetermined:
		if !answered {
			return current, nil, false
		}
		return awaitingPermission(false), nil, true
	default:
		return current, nil, false
	}
}

func (m Machine) onForecast(forecast domain.Forecast) (State, []Effect, bool) {
	var decided *domain.Verdict
	if verdict, ok := engine.Evaluate(forecast.Currently, m.policy); ok {
		decided = &verdict
	}

	var effects []Effect
	if entries := engine.EvaluateTimeline(forecast, m.policy); len(entries) > 0 {
		effects = append(effects, PublishTimeline{Entries: entries})
	}
	return verdictReady(decided), effects, true
}
