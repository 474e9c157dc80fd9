package companion

import (
	"context"

	"bikeweather/internal/domain"
)

// Publisher hands timeline payloads to companion consumers.
type Publisher interface {
	Publish(ctx context.Context, payload domain.TimelinePayload) error
	Close() error
}

// MemoryPublisher applies payloads directly to in-process timeline (single mode).
type MemoryPublisher struct {
	timeline *Timeline
}

// NewMemoryPublisher creates in-process publisher.
// Params: target timeline.
// Returns: publisher without external dependencies.
func NewMemoryPublisher(timeline *Timeline) *MemoryPublisher {
	return &MemoryPublisher{timeline: timeline}
}

// Publish validates payload and applies it to timeline.
func (p *MemoryPublisher) Publish(ctx context.Context, payload domain.TimelinePayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	p.timeline.Apply(payload)
	return nil
}

// Close releases nothing.
func (p *MemoryPublisher) Close() error {
	return nil
}
