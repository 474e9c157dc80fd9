package failure

import "errors"

// Kind classifies collaborator failures surfaced to the state machine.
type Kind string

const (
	// PermissionDenied means location authorization could not be obtained.
	PermissionDenied Kind = "permission_denied"
	// LocationFailure means provider could not resolve a location.
	LocationFailure Kind = "location_failure"
	// ForecastFailure means forecast request or decode failed.
	ForecastFailure Kind = "forecast_failure"
)

// Error carries failure kind together with root cause.
// Params: failure kind and wrapped error.
// Returns: typed failure preserved for diagnostics.
type Error struct {
	Kind Kind
	Err  error
}

// Error returns wrapped error message.
// Params: none.
// Returns: string representation.
func (e Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// Unwrap exposes wrapped cause for errors.Is/errors.As.
func (e Error) Unwrap() error {
	return e.Err
}

// Wrap marks error with failure kind.
// Params: failure kind and source error.
// Returns: wrapped error or nil. Already classified errors keep their kind.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var classified Error
	if errors.As(err, &classified) {
		return err
	}
	return Error{Kind: kind, Err: err}
}

// KindOf extracts failure kind.
// Params: candidate error.
// Returns: kind and true when error carries a failure marker.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}
	var classified Error
	if !errors.As(err, &classified) {
		return "", false
	}
	return classified.Kind, true
}
