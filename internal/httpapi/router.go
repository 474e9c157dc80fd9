package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bikeweather/internal/domain"
	"bikeweather/internal/fsm"
	"bikeweather/internal/state"
)

// StateSource exposes current app state and change stream.
type StateSource interface {
	Snapshot() (fsm.State, uint64)
	Subscribe(buffer int) (<-chan state.Update, func())
}

// Dispatcher accepts events for the state machine loop.
type Dispatcher interface {
	Dispatch(ctx context.Context, event fsm.Event) error
}

// TimelineSource answers companion timeline queries.
type TimelineSource interface {
	Payload() (domain.TimelinePayload, bool)
	Current() (domain.TimelineEntry, bool)
	Before(at time.Time, limit int) []domain.TimelineEntry
	After(at time.Time, limit int) []domain.TimelineEntry
}

// PermissionSetter records platform authorization changes.
type PermissionSetter interface {
	Set(status domain.PermissionStatus)
}

// Options configures optional router behavior.
type Options struct {
	HealthPath  string
	ReadyPath   string
	Ready       func() bool
	Permissions PermissionSetter
	Logger      *slog.Logger
	Now         func() time.Time
}

// API serves app state, user intents, and companion timeline over HTTP.
type API struct {
	states      StateSource
	dispatcher  Dispatcher
	timeline    TimelineSource
	permissions PermissionSetter
	ready       func() bool
	logger      *slog.Logger
	now         func() time.Time
}

// NewRouter builds HTTP routes.
// Params: state source, event dispatcher, timeline source, and options.
// Returns: chi router with health, state, action, and timeline routes.
func NewRouter(states StateSource, dispatcher Dispatcher, timeline TimelineSource, opts Options) http.Handler {
	api := &API{
		states:      states,
		dispatcher:  dispatcher,
		timeline:    timeline,
		permissions: opts.Permissions,
		ready:       opts.Ready,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if api.ready == nil {
		api.ready = func() bool { return true }
	}
	if api.logger == nil {
		api.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if api.now == nil {
		api.now = time.Now
	}
	healthPath := opts.HealthPath
	if healthPath == "" {
		healthPath = "/healthz"
	}
	readyPath := opts.ReadyPath
	if readyPath == "" {
		readyPath = "/readyz"
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(api.logger))

	router.Get(healthPath, api.handleHealth)
	router.Get(readyPath, api.handleReady)
	router.Route("/v1", func(r chi.Router) {
		r.Get("/state", api.handleState)
		r.Get("/state/stream", api.handleStateStream)
		r.Post("/ready", api.handleBecomeReady)
		r.Post("/action", api.handleAction)
		r.Post("/permission", api.handlePermission)
		r.Get("/timeline", api.handleTimeline)
	})
	return router
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
