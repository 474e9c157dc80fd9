package location

import (
	"context"
	"errors"
	"sync"

	"bikeweather/internal/domain"
	"bikeweather/internal/failure"
)

// ErrUnknownLocation indicates provider has no coordinates to report.
var ErrUnknownLocation = errors.New("location unknown")

// Authorizer answers location permission queries and requests.
// Params: status and request operations; both may block.
// Returns: platform permission status.
type Authorizer interface {
	Status(ctx context.Context) (domain.PermissionStatus, error)
	Request(ctx context.Context) (domain.PermissionStatus, error)
}

// StaticAuthorizer reports configured status and switches to configured answer on request.
type StaticAuthorizer struct {
	mu     sync.Mutex
	status domain.PermissionStatus
	answer domain.PermissionStatus
}

// NewStaticAuthorizer creates authorizer.
// Params: initial status and status granted/denied when user is asked.
// Returns: authorizer safe for concurrent use.
func NewStaticAuthorizer(status, answer domain.PermissionStatus) *StaticAuthorizer {
	if status == "" {
		status = domain.PermissionUndetermined
	}
	if answer == "" {
		answer = domain.PermissionGranted
	}
	return &StaticAuthorizer{status: status, answer: answer}
}

// Status returns current permission status.
func (a *StaticAuthorizer) Status(ctx context.Context) (domain.PermissionStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status, nil
}

// Request asks user for permission.
// Params: request context.
// Returns: resulting status; a status already decided is returned unchanged.
func (a *StaticAuthorizer) Request(ctx context.Context) (domain.PermissionStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == domain.PermissionUndetermined {
		a.status = a.answer
	}
	return a.status, nil
}

// Set overrides current status, as a platform settings change would.
func (a *StaticAuthorizer) Set(status domain.PermissionStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
}

// Provider resolves device position.
type Provider interface {
	CurrentLocation(ctx context.Context) (domain.Coordinates, error)
}

// Static reports configured coordinates.
type Static struct {
	coordinates *domain.Coordinates
}

// NewStatic creates fixed-location provider.
// Params: configured coordinates or nil when location is not configured.
// Returns: provider value.
func NewStatic(coordinates *domain.Coordinates) Static {
	return Static{coordinates: coordinates}
}

// CurrentLocation returns configured coordinates.
// Params: request context.
// Returns: coordinates or location failure when unconfigured/invalid.
func (s Static) CurrentLocation(ctx context.Context) (domain.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinates{}, failure.Wrap(failure.LocationFailure, err)
	}
	if s.coordinates == nil {
		return domain.Coordinates{}, failure.Wrap(failure.LocationFailure, ErrUnknownLocation)
	}
	if err := s.coordinates.Validate(); err != nil {
		return domain.Coordinates{}, failure.Wrap(failure.LocationFailure, err)
	}
	return *s.coordinates, nil
}
