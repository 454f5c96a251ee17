// Package daemon runs the power sampling daemon: one sampler per power domain
// and the HTTP exporter, guarded by the PID lock file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/power-warden/powa/internal/exporter"
	"github.com/power-warden/powa/internal/lock"
	"github.com/power-warden/powa/internal/power"
	"github.com/power-warden/powa/internal/sampler"
	"github.com/power-warden/powa/internal/sensor"
	"github.com/power-warden/powa/internal/store"
	"github.com/power-warden/powa/internal/task"
	"github.com/power-warden/powa/pkg/config"
	"github.com/power-warden/powa/pkg/logger"
	"github.com/power-warden/powa/pkg/metrics"
	"github.com/power-warden/powa/pkg/monitor"
	"github.com/power-warden/powa/pkg/signal"
)

var (
	// ErrInvalidState is returned by Start on a supervisor that was already
	// started.
	ErrInvalidState = errors.New("supervisor cannot start from its current state")
	// ErrNotRunning is returned by Stop before Start reached the running
	// state or after the supervisor stopped.
	ErrNotRunning = errors.New("supervisor is not running")
	// ErrShutdownTimeout is returned by Stop when tasks outlived the grace
	// period.
	ErrShutdownTimeout = errors.New("tasks did not stop within the grace period")
)

// State is the lifecycle position of a Supervisor.
type State int32

const (
	Constructed State = iota
	Starting
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Supervisor owns the lock file, the stores and every task of one daemon
// instance.
type Supervisor struct {
	cfg      *config.Config
	log      *zap.Logger
	open     sensor.Opener
	registry metrics.Registers
	signals  signal.Source
	now      func() time.Time

	lock     *lock.File
	stores   store.Set
	samplers []*sampler.Sampler
	server   *exporter.Server

	sigCh       <-chan os.Signal
	stopSignals func()

	state     atomic.Int32
	cancel    context.CancelFunc
	stopped   chan struct{}
	forced    chan struct{}
	forceOnce sync.Once
	serveErr  error
}

// Option customises a Supervisor.
type Option func(*Supervisor)

func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithOpener replaces the sensor drivers, for every domain.
func WithOpener(open sensor.Opener) Option {
	return func(s *Supervisor) { s.open = open }
}

// WithRegistry registers the daemon metrics into r instead of a private
// registry.
func WithRegistry(r metrics.Registers) Option {
	return func(s *Supervisor) { s.registry = r }
}

// WithSignals replaces the process signal subscription.
func WithSignals(src signal.Source) Option {
	return func(s *Supervisor) { s.signals = src }
}

// WithClock replaces time.Now as the source of reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// New builds the supervisor and all of its tasks and subscribes to the
// termination signals. Nothing touches the filesystem or the network until
// Start. The subscription is released once the supervisor reaches Stopped.
func New(cfg *config.Config, opts ...Option) *Supervisor {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	s := &Supervisor{
		cfg:     cfg,
		log:     zap.NewNop(),
		open:    sensor.Open,
		signals: signal.Notify,
		stopped: make(chan struct{}),
		forced:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = metrics.NewPromRegistry(nil)
	}
	s.sigCh, s.stopSignals = s.signals()

	daemonLog := s.log.Named("daemon")
	s.lock = lock.New(cfg.Daemon.LockFile, func(path string, pid int, cause error) {
		daemonLog.Warn("replacing stale lock file",
			zap.String("path", path), zap.Int("pid", pid), zap.Error(cause))
	})

	factory := metrics.NewMetricFactory(s.registry)
	samplerMetrics := monitor.NewSamplerMetrics(factory)

	s.stores = store.NewSet(power.Domains())
	for _, d := range power.Domains() {
		samplerOpts := []sampler.Option{sampler.WithMetrics(samplerMetrics)}
		if s.now != nil {
			samplerOpts = append(samplerOpts, sampler.WithClock(s.now))
		}
		s.samplers = append(s.samplers, sampler.New(d, samplerConfig(cfg.Domain(d)), s.stores[d], s.open,
			s.log.Named("sampler"), samplerOpts...))
	}

	s.server = exporter.New(exporter.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, s.stores, s.log.Named("exporter"),
		exporter.WithMetrics(monitor.NewExporterMetrics(factory), s.registry.Gatherer()))

	s.log = daemonLog
	return s
}

func samplerConfig(dc config.DomainConfig) sampler.Config {
	bus := config.DefaultI2CBus
	if dc.Sensor.Bus != nil {
		bus = *dc.Sensor.Bus
	}
	return sampler.Config{
		Interval:    dc.Interval(),
		ReadTimeout: dc.ReadTimeout,
		Sensor: sensor.Spec{
			Driver:   dc.Sensor.Driver,
			Bus:      bus,
			Address:  uint16(dc.Sensor.Address),
			Settings: sensor.Settings{Averaging: dc.Sensor.Averaging},
			Simulated: sensor.Values{
				Voltage: dc.Sensor.Simulated.Voltage,
				Current: dc.Sensor.Simulated.Current,
				Power:   dc.Sensor.Simulated.Power,
			},
		},
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Addr returns the bound HTTP address once Start has bound the listener.
func (s *Supervisor) Addr() net.Addr {
	if s.State() < Running {
		return nil
	}
	return s.server.Addr()
}

// LockPath returns the lock file location.
func (s *Supervisor) LockPath() string { return s.lock.Path() }

// Start acquires the lock file, binds the HTTP listener and runs every task
// until Stop, a termination signal or the cancellation of ctx. It returns
// once all tasks ended or the grace period forced it to.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Constructed), int32(Starting)) {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.State())
	}

	if err := s.lock.Acquire(); err != nil {
		s.finish()
		return err
	}
	if err := s.server.Bind(); err != nil {
		s.releaseLock()
		s.finish()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.cancel = cancel

	s.state.Store(int32(Running))
	s.log.Info("daemon started",
		zap.Int("pid", os.Getpid()),
		zap.String("lock_file", s.lock.Path()),
		zap.String("listen_addr", s.server.Addr().String()))

	go s.watch(ctx, runCtx, s.sigCh)

	grace := s.gracePeriod()
	var g errgroup.Group
	for _, sm := range s.samplers {
		g.Go(func() error {
			return task.Execute(runCtx, sm, logger.WithGoroutine(s.log), grace)
		})
	}
	g.Go(func() error {
		err := task.Execute(runCtx, s.server, logger.WithGoroutine(s.log), grace)
		if err != nil && runCtx.Err() == nil {
			s.serveErr = err
			s.log.Error("exporter failed, stopping daemon", zap.Error(err))
			go s.stopAndLog()
		}
		return err
	})

	tasksDone := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(tasksDone)
	}()

	select {
	case <-tasksDone:
	case <-s.forced:
		s.log.Warn("grace period elapsed, abandoning remaining tasks", zap.Duration("grace_period", grace))
	}

	// every task ended without a stop request
	if s.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		s.releaseLock()
	}
	s.finish()
	s.log.Info("daemon stopped")

	select {
	case <-tasksDone:
		return s.serveErr
	default:
		return nil
	}
}

// watch turns a termination signal or the cancellation of the Start context
// into a Stop.
func (s *Supervisor) watch(ctx, runCtx context.Context, sigCh <-chan os.Signal) {
	select {
	case sig := <-sigCh:
		s.log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		s.log.Info("start context cancelled", zap.Error(ctx.Err()))
	case <-runCtx.Done():
		return
	}
	s.stopAndLog()
}

func (s *Supervisor) stopAndLog() {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		s.log.Error("stop failed", zap.Error(err))
	}
}

// Stop removes the lock file, cancels every task and waits for them up to the
// grace period. A Stop issued while another one is in progress waits for the
// same shutdown and reports the same outcome.
func (s *Supervisor) Stop() error {
	if !s.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		if s.State() == Stopping {
			return s.awaitStopped()
		}
		return fmt.Errorf("%w: %s", ErrNotRunning, s.State())
	}
	s.log.Info("stopping daemon")

	s.releaseLock()
	s.cancel()
	return s.awaitStopped()
}

// awaitStopped blocks until Stopped, forcing Start to return once the grace
// period elapses.
func (s *Supervisor) awaitStopped() error {
	grace := s.gracePeriod()
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-s.stopped:
	case <-timer.C:
		select {
		case <-s.stopped:
		default:
			s.forceOnce.Do(func() { close(s.forced) })
			<-s.stopped
		}
	}

	select {
	case <-s.forced:
		return fmt.Errorf("%w: %s", ErrShutdownTimeout, grace)
	default:
		return nil
	}
}

func (s *Supervisor) gracePeriod() time.Duration {
	if s.cfg.Daemon.GracePeriod <= 0 {
		return config.DefaultGracePeriod
	}
	return s.cfg.Daemon.GracePeriod
}

// Done is closed once the supervisor reached Stopped.
func (s *Supervisor) Done() <-chan struct{} { return s.stopped }

func (s *Supervisor) releaseLock() {
	err := s.lock.Release()
	switch {
	case err == nil:
	case errors.Is(err, lock.ErrNotHeld):
		s.log.Warn("lock file missing on stop", zap.String("path", s.lock.Path()))
	default:
		s.log.Error("release lock file failed", zap.String("path", s.lock.Path()), zap.Error(err))
	}
}

func (s *Supervisor) finish() {
	s.stopSignals()
	s.state.Store(int32(Stopped))
	close(s.stopped)
}
