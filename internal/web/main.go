// Package web serves the authorization engine over HTTP.
package web

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/config"
	fiberlogger "github.com/accessgate/accessgate/internal/logger/adapter/fiber"
	"github.com/accessgate/accessgate/internal/web/handler"
	"github.com/accessgate/accessgate/internal/web/handler/audit"
	"github.com/accessgate/accessgate/internal/web/handler/cache"
	"github.com/accessgate/accessgate/internal/web/handler/evaluate"
	"github.com/accessgate/accessgate/internal/web/handler/grants"
	"github.com/accessgate/accessgate/internal/web/middleware/requestid"
)

const (
	// HealthzPath answers 200 while the service takes traffic and 503
	// while it drains.
	HealthzPath = "/healthz"
	// MetricsPath exposes the prometheus registry.
	MetricsPath = "/metrics"
)

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
}

// Start starts the web service on the given address and blocks until the
// server stops.
func (s *Service) Start(addr string) error {
	err := s.App.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("fiber listen error: %w", err)
	}

	return nil
}

// WaitShutdown blocks until SIGINT or SIGTERM and then shuts down.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	s.Shutdown()
}

// Shutdown drains and stops the http server. Unless fast shutdown is set,
// /healthz answers 503 for Webserver.ShutDownTime seconds first so load
// balancers take this instance out of rotation.
func (s *Service) Shutdown() {
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	log.Info().Msg("stopping http server ...")

	if err := s.App.Shutdown(); err != nil {
		log.Error().Err(err).Msg("")
	}

	log.Info().Msg("http server was stopped ... good bye...")
}

// Alive reports whether /healthz answers 200.
func (s *Service) Alive() bool {
	return s.alive.Load()
}

// New creates the web service and registers every API handler. A nil
// gatherer disables /metrics.
func New(cfg *config.Config, engine *auth.Engine, gatherer prometheus.Gatherer) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}

	appName := cfg.Title
	if appName == "" {
		appName = "accessgate"
	}

	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        appName,
			CaseSensitive:  true,
			Immutable:      true,
			BodyLimit:      cfg.Webserver.BodyLimit,
		},
	)

	service := &Service{
		cfg:          cfg,
		App:          app,
		fastShutDown: cfg.DevMode,
	}
	service.alive.Store(true)

	if !cfg.Webserver.DisableRecover {
		app.Use(recoverer.New())
	}

	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{Config: cfg.Log, HealthzURI: HealthzPath}))

	app.Get(HealthzPath, func(c fiber.Ctx) error {
		if !service.alive.Load() {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}

		return c.SendString("ok")
	})

	if gatherer != nil {
		app.Get(MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	handlers := []handler.Service{
		evaluate.New(),
		grants.New(),
		audit.New(),
		cache.New(),
	}

	for _, h := range handlers {
		if err := h.Init(app, cfg, engine); err != nil {
			return nil, fmt.Errorf("failed to init handler %T: %w", h, err)
		}
	}

	return service, nil
}
