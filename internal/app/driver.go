package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bikeweather/internal/clock"
	"bikeweather/internal/domain"
	"bikeweather/internal/failure"
	"bikeweather/internal/fsm"
	"bikeweather/internal/location"
	"bikeweather/internal/state"
)

// ErrStopped indicates driver loop is no longer accepting events.
var ErrStopped = errors.New("driver stopped")

const defaultEventBuffer = 32

// ForecastProvider fetches forecast for resolved coordinates.
type ForecastProvider interface {
	Fetch(ctx context.Context, location domain.Coordinates) (domain.Forecast, error)
}

// TimelinePublisher hands evaluated timeline to companion transport.
type TimelinePublisher interface {
	Publish(ctx context.Context, payload domain.TimelinePayload) error
}

// Collaborators groups side-effect executors used by driver.
type Collaborators struct {
	Authorizer location.Authorizer
	Locator    location.Provider
	Forecasts  ForecastProvider
	Publisher  TimelinePublisher
}

// Driver serializes events through the state machine and executes effects.
// Params: machine, state container, collaborators, logger, clock, and per-effect timeout.
// Returns: single-writer event loop for one app instance.
type Driver struct {
	machine       fsm.Machine
	container     *state.Container
	collaborators Collaborators
	logger        *slog.Logger
	clock         clock.Clock
	timeout       time.Duration

	events  chan fsm.Event
	stopped chan struct{}
	stop    sync.Once
	effects sync.WaitGroup
}

// NewDriver creates event driver.
// Params: machine, state container, collaborators, logger, clock, and effect timeout.
// Returns: driver ready to Run.
func NewDriver(machine fsm.Machine, container *state.Container, collaborators Collaborators, logger *slog.Logger, clk clock.Clock, timeout time.Duration) *Driver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Driver{
		machine:       machine,
		container:     container,
		collaborators: collaborators,
		logger:        logger,
		clock:         clk,
		timeout:       timeout,
		events:        make(chan fsm.Event, defaultEventBuffer),
		stopped:       make(chan struct{}),
	}
}

// Dispatch enqueues one event for the loop.
// Params: caller context and event.
// Returns: context error or ErrStopped when loop has exited.
func (d *Driver) Dispatch(ctx context.Context, event fsm.Event) error {
	select {
	case <-d.stopped:
		return ErrStopped
	default:
	}
	select {
	case d.events <- event:
		return nil
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until context is canceled.
// Params: loop context; in-flight effects are canceled with it.
// Returns: nil after graceful stop.
func (d *Driver) Run(ctx context.Context) error {
	defer func() {
		d.stop.Do(func() { close(d.stopped) })
		d.effects.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-d.events:
			d.handle(ctx, event)
		}
	}
}

// handle applies one event and starts resulting effects.
func (d *Driver) handle(ctx context.Context, event fsm.Event) {
	current, revision := d.container.Snapshot()
	name := fsm.EventName(event)
	if fsm.IsStale(current, event) {
		generation, _ := fsm.EventGeneration(event)
		d.logger.Debug("stale event discarded", "event", name, "generation", generation, "current_generation", current.Generation)
		return
	}

	next, effects := d.machine.Transition(current, event)
	if next.Generation == current.Generation {
		d.logger.Debug("event ignored", "event", name, "state", string(current.Kind))
		return
	}
	if _, err := d.container.Replace(revision, next); err != nil {
		d.logger.Error("state replace failed", "event", name, "error", err.Error())
		return
	}

	if next.Kind == fsm.KindFailed && next.Failure != nil {
		d.logger.Warn("state transition", "event", name, "from", string(current.Kind), "to", string(next.Kind), "generation", next.Generation, "failure", string(next.Failure.Kind), "error", next.Failure.Message)
	} else {
		d.logger.Info("state transition", "event", name, "from", string(current.Kind), "to", string(next.Kind), "generation", next.Generation)
	}

	for _, effect := range effects {
		d.execute(ctx, effect)
	}
}

// execute runs one effect asynchronously and posts its answer back to loop.
func (d *Driver) execute(ctx context.Context, effect fsm.Effect) {
	d.effects.Add(1)
	go func() {
		defer d.effects.Done()
		effectCtx, cancel := d.effectContext(ctx, effect)
		defer cancel()

		d.logger.Debug("effect started", "effect", fsm.EffectName(effect))
		answer := d.perform(effectCtx, effect)
		if answer == nil {
			return
		}
		select {
		case d.events <- answer:
		case <-ctx.Done():
		}
	}()
}

// effectContext bounds effect by request timeout.
// Permission requests wait on the user and end only with loop context.
func (d *Driver) effectContext(ctx context.Context, effect fsm.Effect) (context.Context, context.CancelFunc) {
	if _, userPaced := effect.(fsm.RequestPermission); userPaced {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

// perform calls collaborator for effect.
// Params: bounded effect context and effect.
// Returns: answering event or nil when effect has no answer.
func (d *Driver) perform(ctx context.Context, effect fsm.Effect) fsm.Event {
	switch e := effect.(type) {
	case fsm.QueryPermission:
		status, err := d.collaborators.Authorizer.Status(ctx)
		return fsm.PermissionStatusReported{Generation: e.Generation, Status: status, Err: classify(failure.PermissionDenied, "query permission", err)}
	case fsm.RequestPermission:
		status, err := d.collaborators.Authorizer.Request(ctx)
		return fsm.PermissionChanged{Generation: e.Generation, Status: status, Err: classify(failure.PermissionDenied, "request permission", err)}
	case fsm.RequestLocation:
		coordinates, err := d.collaborators.Locator.CurrentLocation(ctx)
		return fsm.LocationResolved{Generation: e.Generation, Location: coordinates, Err: classify(failure.LocationFailure, "request location", err)}
	case fsm.FetchForecast:
		forecast, err := d.collaborators.Forecasts.Fetch(ctx, e.Location)
		return fsm.ForecastFetched{Generation: e.Generation, Forecast: forecast, Err: classify(failure.ForecastFailure, "fetch forecast", err)}
	case fsm.PublishTimeline:
		d.publish(ctx, e)
		return nil
	default:
		d.logger.Error("unsupported effect", "effect", fsm.EffectName(effect))
		return nil
	}
}

// publish sends timeline payload; failures never reach state machine.
func (d *Driver) publish(ctx context.Context, effect fsm.PublishTimeline) {
	if d.collaborators.Publisher == nil {
		return
	}
	payload := domain.TimelinePayload{
		ID:   uuid.NewString(),
		Time: d.clock.Now(),
		Data: effect.Entries,
	}
	if err := d.collaborators.Publisher.Publish(ctx, payload); err != nil {
		d.logger.Warn("timeline publish failed", "payload_id", payload.ID, "entries", len(payload.Data), "error", err.Error())
		return
	}
	d.logger.Info("timeline published", "payload_id", payload.ID, "entries", len(payload.Data))
}

func classify(kind failure.Kind, operation string, err error) error {
	if err == nil {
		return nil
	}
	return failure.Wrap(kind, fmt.Errorf("%s: %w", operation, err))
}
