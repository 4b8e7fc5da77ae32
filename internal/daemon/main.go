// Package daemon wires configuration, logging, the engine, background
// sweeps, alert delivery and the web service into one process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/accessgate/accessgate/internal/alert"
	"github.com/accessgate/accessgate/internal/audit"
	"github.com/accessgate/accessgate/internal/config"
	"github.com/accessgate/accessgate/internal/logger"
	"github.com/accessgate/accessgate/internal/metrics"
	"github.com/accessgate/accessgate/internal/sweeper"
	"github.com/accessgate/accessgate/internal/web"
)

// stopTimeout bounds waiting for running sweeps and alert delivery.
const stopTimeout = 10 * time.Second

// Daemon represents the main application daemon.
type Daemon struct {
	*Core

	cfg        *config.Config
	registry   *prometheus.Registry
	dispatcher *alert.Dispatcher
	broker     *alert.AMQPNotifier
	sweeper    *sweeper.Sweeper
	webService *web.Service
	closers    []io.Closer

	cancel       context.CancelFunc
	dispatchDone chan struct{}
}

// New creates a Daemon from cfg. It initialises the global logger,
// connects the alert broker when configured and builds the engine.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(cfg.Log, registry); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	m := metrics.New(registry)

	d := &Daemon{cfg: cfg, registry: registry}

	broker, err := alert.NewAMQPNotifier(cfg.Alerts.AMQPURI, cfg.Alerts.Exchange)
	if err != nil {
		return nil, err
	}

	d.broker = broker
	d.dispatcher = alert.NewDispatcher(cfg.Alerts.QueueSize, m, alert.LogNotifier{}, broker)

	monitorOpts := []audit.Option{audit.WithAlertSink(d.dispatcher)}

	if w, ok := logger.NewAuditWriter(cfg.Log); ok {
		monitorOpts = append(monitorOpts, audit.WithMirror(zerolog.New(w).With().Timestamp().Logger()))

		if c, ok := w.(io.Closer); ok && w != os.Stdout {
			d.closers = append(d.closers, c)
		}
	}

	core, err := NewCore(cfg, m, monitorOpts...)
	if err != nil {
		d.close()

		return nil, err
	}

	d.Core = core

	d.sweeper, err = newSweeper(cfg.Sweep, m, core)
	if err != nil {
		d.close()

		return nil, err
	}

	d.webService, err = web.New(cfg, core.Engine, registry)
	if err != nil {
		d.close()

		return nil, err
	}

	return d, nil
}

func newSweeper(cfg config.Sweep, m *metrics.Metrics, core *Core) (*sweeper.Sweeper, error) {
	s := sweeper.New(m)

	jobs := []struct {
		name string
		spec string
		fn   sweeper.Func
	}{
		{sweeper.JobCache, cfg.Cache, core.Cache.Sweep},
		{sweeper.JobGrants, cfg.Grants, func() int { return core.Grants.SweepExpired() + core.Grants.Purge() }},
		{sweeper.JobAudit, cfg.Audit, core.Monitor.Prune},
	}

	for _, j := range jobs {
		if err := s.Add(j.name, j.spec, j.fn); err != nil {
			return nil, fmt.Errorf("failed to schedule %s sweep: %w", j.name, err)
		}
	}

	return s, nil
}

// Start runs background work, warms the decision cache and serves HTTP
// until SIGINT or SIGTERM.
func (d *Daemon) Start() error {
	d.startBackground()
	defer d.stopBackground()

	d.Engine.WarmUp(WarmUpActors(d.cfg.WarmUp), d.cfg.WarmUp.Actions)

	addr := fmt.Sprintf(":%d", d.cfg.Webserver.Port)
	log.Info().Str("addr", addr).Str("environment", d.cfg.Environment).Msg("starting accessgate")

	served := make(chan error, 1)

	go func() {
		served <- d.webService.Start(addr)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case err := <-served:
		return err
	case sig := <-sigs:
		log.Info().Msgf("shutdown request (signal: %v)", sig)
		d.webService.Shutdown()

		return <-served
	}
}

func (d *Daemon) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.dispatchDone = make(chan struct{})

	go func() {
		defer close(d.dispatchDone)
		d.dispatcher.Run(ctx)
	}()

	d.sweeper.Start()
}

func (d *Daemon) stopBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := d.sweeper.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("sweeps did not stop in time")
	}

	d.cancel()

	select {
	case <-d.dispatchDone:
	case <-ctx.Done():
		log.Warn().Msg("alert delivery did not stop in time")
	}

	d.close()
}

func (d *Daemon) close() {
	if d.broker != nil {
		if err := d.broker.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close alert broker connection")
		}
	}

	for _, c := range d.closers {
		_ = c.Close()
	}
}
