package fsm

import (
	"bikeweather/internal/domain"
)

// Event is closed set of inputs consumed by Transition.
type Event interface {
	event()
}

// tagged is implemented by events answering an effect issued under one generation.
type tagged interface {
	generation() uint64
}

// BecomeReady signals app (re)entering foreground.
type BecomeReady struct{}

// UserAction signals user tapping the current prompt.
type UserAction struct{}

// PermissionStatusReported answers QueryPermission.
type PermissionStatusReported struct {
	Generation uint64
	Status     domain.PermissionStatus
	Err        error
}

// PermissionChanged answers RequestPermission or reports an OS-originated
// authorization change. Generation 0 marks an OS-originated callback.
type PermissionChanged struct {
	Generation uint64
	Status     domain.PermissionStatus
	Err        error
}

// LocationResolved answers RequestLocation.
type LocationResolved struct {
	Generation uint64
	Location   domain.Coordinates
	Err        error
}

// ForecastFetched answers FetchForecast.
type ForecastFetched struct {
	Generation uint64
	Forecast   domain.Forecast
	Err        error
}

func (BecomeReady) event()              {}
func (UserAction) event()               {}
func (PermissionStatusReported) event() {}
func (PermissionChanged) event()        {}
func (LocationResolved) event()         {}
func (ForecastFetched) event()          {}

func (e PermissionStatusReported) generation() uint64 { return e.Generation }
func (e PermissionChanged) generation() uint64        { return e.Generation }
func (e LocationResolved) generation() uint64         { return e.Generation }
func (e ForecastFetched) generation() uint64          { return e.Generation }

// EventName returns stable event label for logs.
func EventName(event Event) string {
	switch event.(type) {
	case BecomeReady:
		return "become_ready"
	case UserAction:
		return "user_action"
	case PermissionStatusReported:
		return "permission_status_reported"
	case PermissionChanged:
		return "permission_changed"
	case LocationResolved:
		return "location_resolved"
	case ForecastFetched:
		return "forecast_fetched"
	default:
		return "unknown"
	}
}

// EventGeneration returns generation carried by an effect answer.
// Params: event.
// Returns: generation and false for untagged events.
func EventGeneration(event Event) (uint64, bool) {
	tag, ok := event.(tagged)
	if !ok {
		return 0, false
	}
	return tag.generation(), true
}
