package fsm

import (
	"bikeweather/internal/domain"
)

// Effect is closed set of side effects requested by Transition.
// Every effect carries the generation of the state that issued it; the
// driver copies it into the answering event.
type Effect interface {
	effect()
	withGeneration(generation uint64) Effect
}

// QueryPermission asks authorizer for current status.
type QueryPermission struct {
	Generation uint64
}

// RequestPermission asks user for location authorization.
type RequestPermission struct {
	Generation uint64
}

// RequestLocation asks location provider for device position.
type RequestLocation struct {
	Generation uint64
}

// FetchForecast asks forecast provider for given coordinates.
type FetchForecast struct {
	Generation uint64
	Location   domain.Coordinates
}

// PublishTimeline hands evaluated forecast timeline to companion.
type PublishTimeline struct {
	Generation uint64
	Entries    []domain.TimelineEntry
}

func (QueryPermission) effect()   {}
func (RequestPermission) effect() {}
func (RequestLocation) effect()   {}
func (FetchForecast) effect()     {}
func (PublishTimeline) effect()   {}

func (e QueryPermission) withGeneration(generation uint64) Effect {
	e.Generation = generation
	return e
}

func (e RequestPermission) withGeneration(generation uint64) Effect {
	e.Generation = generation
	return e
}

func (e RequestLocation) withGeneration(generation uint64) Effect {
	e.Generation = generation
	return e
}

func (e FetchForecast) withGeneration(generation uint64) Effect {
	e.Generation = generation
	return e
}

func (e PublishTimeline) withGeneration(generation uint64) Effect {
	e.Generation = generation
	return e
}

// EffectName returns stable effect label for logs.
func EffectName(effect Effect) string {
	switch effect.(type) {
	case QueryPermission:
		return "query_permission"
	case RequestPermission:
		return "request_permission"
	case RequestLocation:
		return "request_location"
	case FetchForecast:
		return "fetch_forecast"
	case PublishTimeline:
		return "publish_timeline"
	default:
		return "unknown"
	}
}
