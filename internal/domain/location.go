package domain

import (
	"fmt"
	"strings"
)

// Coordinates is one resolved device position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks coordinate ranges.
// Params: none.
// Returns: error when latitude or longitude is out of range.
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", c.Longitude)
	}
	return nil
}

// String renders coordinates in "lat,lon" form used by forecast URLs.
func (c Coordinates) String() string {
	return fmt.Sprintf("%v,%v", c.Latitude, c.Longitude)
}

// PermissionStatus is location authorization state reported by platform.
// Params: granted/denied/restricted/undetermined constants.
// Returns: status consumed by state machine.
type PermissionStatus string

const (
	// PermissionGranted allows location lookups.
	PermissionGranted PermissionStatus = "granted"
	// PermissionDenied means user declined location access.
	PermissionDenied PermissionStatus = "denied"
	// PermissionRestricted means access is blocked by policy.
	PermissionRestricted PermissionStatus = "restricted"
	// PermissionUndetermined means user was not asked yet.
	PermissionUndetermined PermissionStatus = "undetermined"
)

// ParsePermissionStatus normalizes permission status value.
// Params: raw status string.
// Returns: known status or error.
func ParsePermissionStatus(raw string) (PermissionStatus, error) {
	status := PermissionStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case PermissionGranted, PermissionDenied, PermissionRestricted, PermissionUndetermined:
		return status, nil
	default:
		return "", fmt.Errorf("unsupported permission status %q", raw)
	}
}
