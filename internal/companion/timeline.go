package companion

import (
	"sync"
	"time"

	"bikeweather/internal/domain"
)

// Timeline keeps latest accepted timeline payload on the companion side.
// Params: payload guarded by RW mutex.
// Returns: complication-style timeline queries.
type Timeline struct {
	mu      sync.RWMutex
	payload domain.TimelinePayload
	loaded  bool
}

// NewTimeline creates empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Apply stores payload when it is newer than the last accepted one.
// Params: decoded payload.
// Returns: true when payload replaced current data.
func (t *Timeline) Apply(payload domain.TimelinePayload) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded && !payload.Time.After(t.payload.Time) {
		return false
	}
	entries := make([]domain.TimelineEntry, len(payload.Data))
	copy(entries, payload.Data)
	payload.Data = entries
	t.payload = payload
	t.loaded = true
	return true
}

// Payload returns last accepted payload.
func (t *Timeline) Payload() (domain.TimelinePayload, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.payload, t.loaded
}

// Current returns first entry of the payload.
// It is the currently point unless that point had no measurements and was
// skipped during evaluation, in which case it is the earliest hourly point.
func (t *Timeline) Current() (domain.TimelineEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.payload.Data) == 0 {
		return domain.TimelineEntry{}, false
	}
	return t.payload.Data[0], true
}

// Start returns time of first entry.
func (t *Timeline) Start() (time.Time, bool) {
	entry, ok := t.Current()
	return entry.Time, ok
}

// End returns time of last entry.
func (t *Timeline) End() (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.payload.Data) == 0 {
		return time.Time{}, false
	}
	return t.payload.Data[len(t.payload.Data)-1].Time, true
}

// Before returns up to limit entries strictly before at.
// Params: reference time and max entries (<=0 means unlimited).
// Returns: entries in ascending time order closest to reference time.
func (t *Timeline) Before(at time.Time, limit int) []domain.TimelineEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.TimelineEntry, 0)
	for _, entry := range t.payload.Data {
		if entry.Time.Before(at) {
			out = append(out, entry)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// After returns up to limit entries strictly after at.
// Params: reference time and max entries (<=0 means unlimited).
// Returns: entries in ascending time order.
func (t *Timeline) After(at time.Time, limit int) []domain.TimelineEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.TimelineEntry, 0)
	for _, entry := range t.payload.Data {
		if limit > 0 && len(out) >= limit {
			break
		}
		if entry.Time.After(at) {
			out = append(out, entry)
		}
	}
	return out
}
