package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bikeweather/internal/clock"
	"bikeweather/internal/companion"
	"bikeweather/internal/config"
	"bikeweather/internal/domain"
	"bikeweather/internal/forecast"
	"bikeweather/internal/fsm"
	"bikeweather/internal/httpapi"
	"bikeweather/internal/location"
	"bikeweather/internal/logging"
	"bikeweather/internal/state"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable bikeweather service.
type Service struct {
	cfg        config.Config
	logger     *slog.Logger
	closeLog   func()
	container  *state.Container
	driver     *Driver
	authorizer *location.StaticAuthorizer
	forecasts  *forecast.Client
	timeline   *companion.Timeline
	publisher  companion.Publisher
	receiver   interface{ Close() error }
	httpSrv    *http.Server
	readyFlag  atomic.Bool
	clock      clock.Clock
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	forecasts, err := forecast.New(cfg.Forecast, nil)
	if err != nil {
		closeLog()
		return nil, err
	}

	service := &Service{
		cfg:        cfg,
		logger:     logger,
		closeLog:   closeLog,
		container:  state.NewContainer(fsm.Initial()),
		authorizer: location.NewStaticAuthorizer(domain.PermissionStatus(cfg.Location.Permission), domain.PermissionStatus(cfg.Location.RequestAnswer)),
		forecasts:  forecasts,
		timeline:   companion.NewTimeline(),
		clock:      clk,
	}

	if err := service.buildCompanion(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	service.driver = NewDriver(
		fsm.New(cfg.Policy.Policy()),
		service.container,
		Collaborators{
			Authorizer: service.authorizer,
			Locator:    location.NewStatic(cfg.Location.Coordinates()),
			Forecasts:  forecasts,
			Publisher:  service.publisher,
		},
		logger,
		clk,
		cfg.Service.RequestTimeout(),
	)
	service.buildHTTPServer()

	return service, nil
}

// Handler exposes HTTP routes for in-process callers.
func (s *Service) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", s.cfg.HTTP.Listen)
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("http listen: %w", err)
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		return s.driver.Run(groupCtx)
	})
	group.Go(func() error {
		s.logger.Info("http server starting", "listen", listener.Addr().String())
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		s.readyFlag.Store(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := s.driver.Dispatch(groupCtx, fsm.BecomeReady{}); err != nil {
		s.logger.Error("initial dispatch failed", "error", err.Error())
	}
	s.readyFlag.Store(true)
	s.logger.Info("service started", "mode", config.NormalizeServiceMode(s.cfg.Service.Mode), "name", s.cfg.Service.Name)

	runErr := group.Wait()
	if err := s.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.receiver != nil {
		if err := s.receiver.Close(); err != nil {
			s.logger.Error("companion receiver close failed", "error", err.Error())
			markErr(fmt.Errorf("companion receiver close: %w", err))
		}
		s.receiver = nil
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Error("companion publisher close failed", "error", err.Error())
			markErr(fmt.Errorf("companion publisher close: %w", err))
		}
		s.publisher = nil
	}
	s.logger.Info("service stopped", "forecast_breaker", s.forecasts.State())
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.receiver != nil {
		_ = s.receiver.Close()
		s.receiver = nil
	}
	if s.publisher != nil {
		_ = s.publisher.Close()
		s.publisher = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires router with health, state, and timeline endpoints.
func (s *Service) buildHTTPServer() {
	router := httpapi.NewRouter(s.container, s.driver, s.timeline, httpapi.Options{
		HealthPath:  s.cfg.HTTP.HealthPath,
		ReadyPath:   s.cfg.HTTP.ReadyPath,
		Ready:       s.readyFlag.Load,
		Permissions: s.authorizer,
		Logger:      s.logger,
		Now:         s.clock.Now,
	})
	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTP.Listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildCompanion selects timeline transport by service mode.
// Params: none.
// Returns: initialization error.
func (s *Service) buildCompanion() error {
	if isSingleMode(s.cfg) {
		s.publisher = companion.NewMemoryPublisher(s.timeline)
		return nil
	}
	publisher, err := companion.NewNATSPublisher(s.cfg.Companion)
	if err != nil {
		return err
	}
	s.publisher = publisher
	if !s.cfg.Companion.Receive {
		return nil
	}
	receiver, err := companion.NewNATSReceiver(s.cfg.Companion, s.timeline, s.logger)
	if err != nil {
		return err
	}
	s.receiver = receiver
	return nil
}

func isSingleMode(cfg config.Config) bool {
	return config.NormalizeServiceMode(cfg.Service.Mode) == config.ServiceModeSingle
}
