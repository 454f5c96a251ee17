package sampler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/power-warden/powa/internal/power"
	"github.com/power-warden/powa/internal/sampler"
	"github.com/power-warden/powa/internal/sensor"
	"github.com/power-warden/powa/internal/store"
	"github.com/power-warden/powa/pkg/metrics"
	"github.com/power-warden/powa/pkg/monitor"
)

// fakePort is a scripted sensor.Port.
type fakePort struct {
	mu           sync.Mutex
	values       sensor.Values
	failures     int // remaining reads that fail on voltage
	block        chan struct{}
	configureErr error
	reads        int
	closed       bool
}

func (f *fakePort) ReadVoltage() (float64, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failures > 0 {
		f.failures--
		return 0, sensor.ErrRead
	}
	return f.values.Voltage, nil
}

func (f *fakePort) ReadCurrent() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values.Current, nil
}

func (f *fakePort) ReadPower() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values.Power, nil
}

func (f *fakePort) Configure(sensor.Settings) error { return f.configureErr }

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePort) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePort) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func opener(p sensor.Port) sensor.Opener {
	return func(sensor.Spec) (sensor.Port, error) { return p, nil }
}

func usbValues() sensor.Values {
	return sensor.Values{Voltage: 5.0, Current: 1.2, Power: 6.0}
}

func runAsync(t *testing.T, s *sampler.Sampler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestSamplerPublishesReading(t *testing.T) {
	st := store.NewLatest()
	port := &fakePort{values: usbValues()}
	s := sampler.New(power.USB, sampler.Config{Interval: 50 * time.Millisecond}, st, opener(port), zap.NewNop())

	cancel, done := runAsync(t, s)

	require.Eventually(t, st.Pending, time.Second, 5*time.Millisecond)
	r, ok := st.TakeIfPresent()
	require.True(t, ok)
	assert.Equal(t, 5.0, r.Voltage)
	assert.Equal(t, 1.2, r.Current)
	assert.Equal(t, 6.0, r.Power)
	assert.False(t, r.Time.IsZero())

	// after slightly more than one interval exactly one unread reading is held
	time.Sleep(70 * time.Millisecond)
	_, ok = st.TakeIfPresent()
	assert.True(t, ok)
	_, ok = st.TakeIfPresent()
	assert.False(t, ok)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSamplerContinuesAfterReadFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg := prometheus.NewRegistry()
	m := monitor.NewSamplerMetrics(metrics.NewMetricFactory(metrics.NewPromRegistry(reg)))

	st := store.NewLatest()
	port := &fakePort{values: usbValues(), failures: 2}
	s := sampler.New(power.VBAT, sampler.Config{Interval: 10 * time.Millisecond}, st, opener(port), zap.New(core),
		sampler.WithMetrics(m))

	_, _ = runAsync(t, s)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Reading.WithLabelValues("VBAT", "power")) == 6.0
	}, time.Second, 5*time.Millisecond)
	assert.True(t, st.Pending())
	assert.GreaterOrEqual(t, port.readCount(), 3)

	failures := logs.FilterMessage("sensor read failed").All()
	require.Len(t, failures, 2)
	assert.Equal(t, "VBAT", failures[0].ContextMap()["domain"])
	assert.Equal(t, "voltage", failures[0].ContextMap()["op"])
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReadErrors.WithLabelValues("VBAT", "voltage")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.Reads.WithLabelValues("VBAT")), 1.0)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Reading.WithLabelValues("VBAT", "voltage")))
}

func TestSamplerUnsupportedConfigurationFailsFast(t *testing.T) {
	st := store.NewLatest()
	port := &fakePort{values: usbValues(), configureErr: sensor.ErrUnsupported}
	s := sampler.New(power.USB, sampler.Config{Interval: time.Millisecond}, st, opener(port), zap.NewNop())

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, sensor.ErrUnsupported)
	assert.True(t, port.isClosed())
	assert.Zero(t, port.readCount())
	assert.False(t, st.Pending())
}

func TestSamplerOpenFailure(t *testing.T) {
	boom := errors.New("no such device")
	s := sampler.New(power.USB, sampler.Config{}, store.NewLatest(),
		func(sensor.Spec) (sensor.Port, error) { return nil, boom }, nil)

	assert.ErrorIs(t, s.Run(context.Background()), boom)
	assert.NoError(t, s.OnCancel(context.Background()))
}

func TestSamplerOnCancelClosesPort(t *testing.T) {
	port := &fakePort{values: usbValues()}
	s := sampler.New(power.USB, sampler.Config{Interval: time.Hour}, store.NewLatest(), opener(port), nil)

	cancel, done := runAsync(t, s)
	require.Eventually(t, func() bool { return port.readCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sampler ignored cancellation during sleep")
	}

	require.NoError(t, s.OnCancel(context.Background()))
	assert.True(t, port.isClosed())
}

func TestSamplerReadTimeout(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	block := make(chan struct{})
	port := &fakePort{values: usbValues(), block: block}
	st := store.NewLatest()
	s := sampler.New(power.USB, sampler.Config{Interval: 10 * time.Millisecond, ReadTimeout: 20 * time.Millisecond},
		st, opener(port), zap.New(core))

	_, _ = runAsync(t, s)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("sensor read failed").FilterField(zap.String("op", "timeout")).Len() >= 2
	}, time.Second, 5*time.Millisecond)
	assert.False(t, st.Pending())
	assert.Zero(t, port.readCount(), "stuck read must not be re-entered")

	close(block)
	require.Eventually(t, st.Pending, time.Second, 5*time.Millisecond)
}

func TestSamplerUsesClock(t *testing.T) {
	fixed := time.Now().Add(-time.Minute)
	st := store.NewLatest()
	s := sampler.New(power.USB, sampler.Config{Interval: time.Hour}, st, opener(&fakePort{values: usbValues()}), nil,
		sampler.WithClock(func() time.Time { return fixed }))

	_, _ = runAsync(t, s)
	require.Eventually(t, st.Pending, time.Second, time.Millisecond)

	r, _ := st.TakeIfPresent()
	assert.Equal(t, fixed, r.Time)
	assert.Equal(t, "sampler/USB", s.Name())
}
