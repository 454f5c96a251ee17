// Package sampler polls one power domain's sensor and publishes each reading
// into the domain's latest-value store.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/power-warden/powa/internal/power"
	"github.com/power-warden/powa/internal/sensor"
	"github.com/power-warden/powa/internal/store"
	"github.com/power-warden/powa/pkg/monitor"
)

// DefaultInterval applies when a Config carries no positive interval.
const DefaultInterval = 30 * time.Second

// Config is the resolved sampling configuration of one domain.
type Config struct {
	Interval    time.Duration
	ReadTimeout time.Duration
	Sensor      sensor.Spec
}

// Sampler is the sampling task of one power domain.
type Sampler struct {
	domain  power.Domain
	cfg     Config
	store   *store.Latest
	open    sensor.Opener
	log     *zap.Logger
	metrics *monitor.SamplerMetrics
	now     func() time.Time

	port     sensor.Port
	inflight atomic.Bool
}

// Option customises a Sampler.
type Option func(*Sampler)

// WithClock replaces time.Now as the source of reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// WithMetrics records reads into m.
func WithMetrics(m *monitor.SamplerMetrics) Option {
	return func(s *Sampler) { s.metrics = m }
}

// New binds a sampler for domain to its store. The sensor is not opened until
// Run.
func New(domain power.Domain, cfg Config, st *store.Latest, open sensor.Opener, log *zap.Logger, opts ...Option) *Sampler {
	if open == nil {
		open = sensor.Open
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	s := &Sampler{
		domain: domain,
		cfg:    cfg,
		store:  st,
		open:   open,
		log:    log.With(zap.String("domain", domain.String())),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sampler) Name() string { return "sampler/" + s.domain.String() }

// Run opens and configures the sensor, then samples until ctx is cancelled.
// Cancellation is only observed between polls. Open or configuration failures
// end the task; read failures are logged and retried at the next interval.
func (s *Sampler) Run(ctx context.Context) error {
	port, err := s.open(s.cfg.Sensor)
	if err != nil {
		return fmt.Errorf("open sensor for %s: %w", s.domain, err)
	}
	s.port = port

	if err := port.Configure(s.cfg.Sensor.Settings); err != nil {
		_ = port.Close()
		s.port = nil
		return fmt.Errorf("configure sensor for %s: %w", s.domain, err)
	}

	s.log.Info("sampling started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("read_timeout", s.cfg.ReadTimeout),
		zap.String("driver", s.cfg.Sensor.Driver))

	for {
		s.poll()

		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// OnCancel releases the sensor handle.
func (s *Sampler) OnCancel(context.Context) error {
	if s.port == nil {
		return nil
	}
	if s.inflight.Load() {
		s.log.Warn("closing sensor while a timed-out read is outstanding")
	}
	err := s.port.Close()
	s.port = nil
	if err != nil {
		return fmt.Errorf("close sensor for %s: %w", s.domain, err)
	}
	return nil
}

// poll performs one read-and-publish cycle.
func (s *Sampler) poll() {
	start := time.Now()
	r, err := s.read()
	if s.metrics != nil {
		s.metrics.ReadDuration.WithLabelValues(s.domain.String()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.log.Error("sensor read failed", zap.String("op", opOf(err)), zap.Error(err))
		if s.metrics != nil {
			s.metrics.ReadErrors.WithLabelValues(s.domain.String(), opOf(err)).Inc()
		}
		return
	}

	overwritten := s.store.Publish(r)
	s.log.Debug("reading published",
		zap.Float64("voltage", r.Voltage),
		zap.Float64("current", r.Current),
		zap.Float64("power", r.Power),
		zap.Bool("overwrote_unread", overwritten))

	if s.metrics != nil {
		d := s.domain.String()
		s.metrics.Reads.WithLabelValues(d).Inc()
		s.metrics.Reading.WithLabelValues(d, "voltage").Set(r.Voltage)
		s.metrics.Reading.WithLabelValues(d, "current").Set(r.Current)
		s.metrics.Reading.WithLabelValues(d, "power").Set(r.Power)
		if overwritten {
			s.metrics.Overwrites.WithLabelValues(d).Inc()
		}
	}
}

// opError tags a read failure with the sensor operation that failed.
type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return e.op + ": " + e.err.Error() }
func (e *opError) Unwrap() error { return e.err }

func opOf(err error) string {
	var oe *opError
	if errors.As(err, &oe) {
		return oe.op
	}
	return "read"
}

type result struct {
	reading power.Reading
	err     error
}

// read runs one voltage/current/power read bounded by the read timeout. The
// bound does not depend on the task context, so a cancellation never aborts a
// read midway. A read that overran its timeout keeps the port busy and later
// polls are skipped until it returns.
func (s *Sampler) read() (power.Reading, error) {
	if !s.inflight.CompareAndSwap(false, true) {
		return power.Reading{}, &opError{op: "timeout", err: fmt.Errorf("%w: previous read still outstanding", sensor.ErrReadTimeout)}
	}

	port := s.port
	ch := make(chan result, 1)
	go func() {
		res := s.readPort(port)
		s.inflight.Store(false)
		ch <- res
	}()

	if s.cfg.ReadTimeout <= 0 {
		res := <-ch
		return res.reading, res.err
	}

	timer := time.NewTimer(s.cfg.ReadTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.reading, res.err
	case <-timer.C:
		return power.Reading{}, &opError{op: "timeout", err: fmt.Errorf("%w after %s", sensor.ErrReadTimeout, s.cfg.ReadTimeout)}
	}
}

func (s *Sampler) readPort(port sensor.Port) result {
	voltage, err := port.ReadVoltage()
	if err != nil {
		return result{err: &opError{op: "voltage", err: err}}
	}
	current, err := port.ReadCurrent()
	if err != nil {
		return result{err: &opError{op: "current", err: err}}
	}
	pw, err := port.ReadPower()
	if err != nil {
		return result{err: &opError{op: "power", err: err}}
	}
	return result{reading: power.Reading{
		Time:    s.now(),
		Voltage: voltage,
		Current: current,
		Power:   pw,
	}}
}
