package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bikeweather/internal/clock"
	"bikeweather/internal/companion"
	"bikeweather/internal/domain"
	"bikeweather/internal/engine"
	"bikeweather/internal/failure"
	"bikeweather/internal/fsm"
	"bikeweather/internal/location"
	"bikeweather/internal/logging"
	"bikeweather/internal/state"
)

type forecastFunc func(ctx context.Context, location domain.Coordinates) (domain.Forecast, error)

func (f forecastFunc) Fetch(ctx context.Context, location domain.Coordinates) (domain.Forecast, error) {
	return f(ctx, location)
}

type failingPublisher struct {
	calls atomic.Int32
}

func (p *failingPublisher) Publish(context.Context, domain.TimelinePayload) error {
	p.calls.Add(1)
	return errors.New("companion unreachable")
}

var testNow = time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

func pleasantForecast() domain.Forecast {
	return domain.Forecast{
		Currently: domain.Observation{
			Time:              testNow,
			Temperature:       domain.Float(18),
			PrecipIntensity:   domain.Float(0),
			PrecipProbability: domain.Float(0),
			WindSpeed:         domain.Float(6),
		},
		Hourly: &domain.DataBlock{Points: []domain.Observation{
			{Time: testNow.Add(time.Hour), Temperature: domain.Float(19), WindSpeed: domain.Float(30)},
			{Time: testNow.Add(2 * time.Hour), Temperature: domain.Float(20)},
		}},
	}
}

type driverHarness struct {
	driver    *Driver
	container *state.Container
	cancel    context.CancelFunc
	clock     *clock.Manual
	done      chan error
	once      sync.Once
}

func startDriver(t *testing.T, collaborators Collaborators, timeout time.Duration) *driverHarness {
	t.Helper()
	container := state.NewContainer(fsm.Initial())
	manual := clock.NewManual(testNow)
	driver := NewDriver(fsm.New(engine.DefaultPolicy()), container, collaborators, logging.Discard(), manual, timeout)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx) }()
	harness := &driverHarness{driver: driver, container: container, clock: manual, cancel: cancel, done: done}
	t.Cleanup(harness.stop)
	return harness
}

func (h *driverHarness) stop() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
	})
}

func (h *driverHarness) dispatch(t *testing.T, event fsm.Event) {
	t.Helper()
	if err := h.driver.Dispatch(context.Background(), event); err != nil {
		t.Fatalf("dispatch %s: %v", fsm.EventName(event), err)
	}
}

func (h *driverHarness) waitForKind(t *testing.T, kind fsm.Kind) fsm.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		current, _ := h.container.Snapshot()
		if current.Kind == kind {
			return current
		}
		time.Sleep(5 * time.Millisecond)
	}
	current, _ := h.container.Snapshot()
	t.Fatalf("state did not reach %s, last=%s", kind, current.Kind)
	return fsm.State{}
}

func staticLocator() location.Static {
	return location.NewStatic(&domain.Coordinates{Latitude: 52.52, Longitude: 13.405})
}

func TestDriverHappyPathPublishesTimeline(t *testing.T) {
	t.Parallel()

	timeline := companion.NewTimeline()
	var requested domain.Coordinates
	harness := startDriver(t, Collaborators{
		Authorizer: location.NewStaticAuthorizer(domain.PermissionGranted, domain.PermissionGranted),
		Locator:    staticLocator(),
		Forecasts: forecastFunc(func(_ context.Context, location domain.Coordinates) (domain.Forecast, error) {
			requested = location
			return pleasantForecast(), nil
		}),
		Publisher: companion.NewMemoryPublisher(timeline),
	}, time.Second)

	harness.dispatch(t, fsm.BecomeReady{})
	final := harness.waitForKind(t, fsm.KindVerdictReady)
	if final.Verdict == nil || final.Verdict.Outcome != domain.OutcomeFavorable {
		t.Fatalf("unexpected verdict: %+v", final.Verdict)
	}
	if requested.Latitude != 52.52 || requested.Longitude != 13.405 {
		t.Fatalf("unexpected forecast coordinates: %+v", requested)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := timeline.Payload(); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	payload, ok := timeline.Payload()
	if !ok {
		t.Fatalf("timeline was not published")
	}
	if !payload.Time.Equal(testNow) || payload.ID == "" {
		t.Fatalf("unexpected payload header: id=%q time=%s", payload.ID, payload.Time)
	}
	if len(payload.Data) != 3 {
		t.Fatalf("expected 3 timeline entries, got %d", len(payload.Data))
	}
	if payload.Data[1].Outcome != domain.OutcomeUnfavorable {
		t.Fatalf("expected windy hour to be unfavorable, got %s", payload.Data[1].Outcome)
	}
}

func waitForPayloadTime(t *testing.T, timeline *companion.Timeline, at time.Time) domain.TimelinePayload {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if payload, ok := timeline.Payload(); ok && payload.Time.Equal(at) {
			return payload
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeline payload stamped %s was not published", at)
	return domain.TimelinePayload{}
}

func TestDriverRefreshPublishesNewerTimeline(t *testing.T) {
	t.Parallel()

	timeline := companion.NewTimeline()
	harness := startDriver(t, Collaborators{
		Authorizer: location.NewStaticAuthorizer(domain.PermissionGranted, domain.PermissionGranted),
		Locator:    staticLocator(),
		Forecasts: forecastFunc(func(context.Context, domain.Coordinates) (domain.Forecast, error) {
			return pleasantForecast(), nil
		}),
		Publisher: companion.NewMemoryPublisher(timeline),
	}, time.Second)

	harness.dispatch(t, fsm.BecomeReady{})
	first := waitForPayloadTime(t, timeline, testNow)

	later := harness.clock.Advance(15 * time.Minute)
	harness.dispatch(t, fsm.UserAction{})
	second := waitForPayloadTime(t, timeline, later)
	if second.ID == first.ID {
		t.Fatalf("expected fresh payload id on refresh")
	}
}

func TestDriverPermissionPromptFlow(t *testing.T) {
	t.Parallel()

	harness := startDriver(t, Collaborators{
		Authorizer: location.NewStaticAuthorizer(domain.PermissionUndetermined, domain.PermissionGranted),
		Locator:    staticLocator(),
		Forecasts: forecastFunc(func(context.Context, domain.Coordinates) (domain.Forecast, error) {
			return pleasantForecast(), nil
		}),
	}, time.Second)

	harness.dispatch(t, fsm.BecomeReady{})
	awaiting := harness.waitForKind(t, fsm.KindAwaitingPermission)
	if awaiting.View().Action != fsm.ActionRequestPermission {
		t.Fatalf("expected request permission action, got %q", awaiting.View().Action)
	}

	harness.dispatch(t, fsm.UserAction{})
	harness.waitForKind(t, fsm.KindVerdictReady)
}

func TestDriverPermissionDenied(t *testing.T) {
	t.Parallel()

	harness := startDriver(t, Collaborators{
		Authorizer: location.NewStaticAuthorizer(domain.PermissionUndetermined, domain.PermissionDenied),
		Locator:    staticLocator(),
	}, time.Second)

	harness.dispatch(t, fsm.BecomeReady{})
	harness.waitForKind(t, fsm.KindAwaitingPermission)
	harness.dispatch(t, fsm.UserAction{})
	denied := harness.waitForKind(t, fsm.KindPermissionDenied)
	if denied.View().Action != fsm.ActionRetry {
		t.Fatalf("expected retry action, got %q", denied.View().Action)
	}
}

func TestDriverForecastFailureIsClassified(t *testing.T) {
	t.Parallel()

	publisher := &failingPublisher{}
	harness := startDriver(t, Collaborators{
		Authorizer: location.NewStaticAuthorizer(domain.PermissionGranted, domain.PermissionGranted),
		Locator:    staticLocator(),
		Forecasts: forecastFunc(func(context.Context, domain.Coordinates) (domain.Forecast, error) {
			return domain.Forecast{}, errors.New("status 503")
		}),
		Publisher: publisher,
	}, time.Second)

	harness.dispatch(t, fsm.BecomeReady{})
	failed := harness.waitForKind(t, fsm.KindFailed)
	if failed.Failure == nil || failed.Failure.Kind != failure.ForecastFailure {
		t.Fatalf("expected forecast failure, got %+v", failed.Failure)
	}
	if !strings.Contains(failed.Failure.Message, "fetch forecast") {
		t.Fatalf("expected operation in failure message, got %q", failed.Failure.Message)
	}
	if publisher.calls.Load() != 0 {
		t.Fatalf("failed forecast must not publish timeline")
	}
}

func TestDriverEffectTimeout(t *testing.T) {
	t.Parallel()

	harness := startDriver(t, Collaborators{
		Authorizer: location.NewStaticAuthorizer(domain.PermissionGranted, domain.PermissionGranted),
		Locator:    staticLocator(),
		Forecasts: forecastFunc(func(ctx context.Context, _ domain.Coordinates) (domain.Forecast, error) {
			<-ctx.Done()
			return domain.Forecast{}, ctx.Err()
		}),
	}, 20*time.Millisecond)

	harness.dispatch(t, fsm.BecomeReady{})
	failed := harness.waitForKind(t, fsm.KindFailed)
	if failed.Failure == nil || failed.Failure.Kind != failure.ForecastFailure {
		t.Fatalf("expected forecast failure, got %+v", failed.Failure)
	}
}

type slowAuthorizer struct {
	delay time.Duration
}

func (slowAuthorizer) Status(context.Context) (domain.PermissionStatus, error) {
	return domain.PermissionUndetermined, nil
}

func (a slowAuthorizer) Request(ctx context.Context) (domain.PermissionStatus, error) {
	select {
	case <-time.After(a.delay):
		return domain.PermissionGranted, nil
	case <-ctx.Done():
		return domain.PermissionUndetermined, ctx.Err()
	}
}

func TestDriverPermissionRequestOutlivesEffectTimeout(t *testing.T) {
	t.Parallel()

	harness := startDriver(t, Collaborators{
		Authorizer: slowAuthorizer{delay: 100 * time.Millisecond},
		Locator:    staticLocator(),
		Forecasts: forecastFunc(func(context.Context, domain.Coordinates) (domain.Forecast, error) {
			return pleasantForecast(), nil
		}),
	}, 20*time.Millisecond)

	harness.dispatch(t, fsm.BecomeReady{})
	harness.waitForKind(t, fsm.KindAwaitingPermission)
	harness.dispatch(t, fsm.UserAction{})
	final := harness.waitForKind(t, fsm.KindVerdictReady)
	if final.Failure != nil {
		t.Fatalf("unexpected failure after slow permission answer: %+v", final.Failure)
	}
}

func TestDriverRetryAfterLocationFailure(t *testing.T) {
	t.Parallel()

	harness := startDriver(t, Collaborators{
		Authorizer: location.NewStaticAuthorizer(domain.PermissionGranted, domain.PermissionGranted),
		Locator:    location.NewStatic(nil),
	}, time.Second)

	harness.dispatch(t, fsm.BecomeReady{})
	failed := harness.waitForKind(t, fsm.KindFailed)
	if failed.Failure == nil || failed.Failure.Kind != failure.LocationFailure {
		t.Fatalf("expected location failure, got %+v", failed.Failure)
	}
	generation := failed.Generation

	harness.dispatch(t, fsm.UserAction{})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		current, _ := harness.container.Snapshot()
		if current.Kind == fsm.KindFailed && current.Generation > generation {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("retry did not rerun pipeline")
}

func TestDriverStaleAnswerIsDiscarded(t *testing.T) {
	t.Parallel()

	harness := startDriver(t, Collaborators{
		Authorizer: location.NewStaticAuthorizer(domain.PermissionUndetermined, domain.PermissionGranted),
		Locator:    staticLocator(),
	}, time.Second)

	harness.dispatch(t, fsm.BecomeReady{})
	awaiting := harness.waitForKind(t, fsm.KindAwaitingPermission)
	_, revision := harness.container.Snapshot()

	harness.dispatch(t, fsm.LocationResolved{Generation: awaiting.Generation + 7, Location: domain.Coordinates{Latitude: 1, Longitude: 1}})
	harness.dispatch(t, fsm.ForecastFetched{Generation: awaiting.Generation - 1, Err: errors.New("late failure")})
	time.Sleep(20 * time.Millisecond)

	current, after := harness.container.Snapshot()
	if current.Kind != fsm.KindAwaitingPermission || after != revision {
		t.Fatalf("stale answer changed state: kind=%s revision=%d->%d", current.Kind, revision, after)
	}
}

func TestDriverDispatchAfterStop(t *testing.T) {
	t.Parallel()

	harness := startDriver(t, Collaborators{}, time.Second)
	harness.stop()

	err := harness.driver.Dispatch(context.Background(), fsm.BecomeReady{})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
