package exporter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/power-warden/powa/internal/exporter"
	"github.com/power-warden/powa/internal/power"
	"github.com/power-warden/powa/internal/store"
	"github.com/power-warden/powa/pkg/metrics"
	"github.com/power-warden/powa/pkg/monitor"
)

func newServer(t *testing.T) (*exporter.Server, store.Set, *monitor.ExporterMetrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := monitor.NewExporterMetrics(metrics.NewMetricFactory(metrics.NewPromRegistry(reg)))
	stores := store.NewSet(power.Domains())
	srv := exporter.New(exporter.Config{Addr: "127.0.0.1:0"}, stores, zap.NewNop(), exporter.WithMetrics(m, reg))
	return srv, stores, m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestElectricalUnknownDomain(t *testing.T) {
	srv, stores, m := newServer(t)
	stores[power.USB].Publish(power.Reading{Time: time.Now(), Voltage: 1})

	rec := get(t, srv.Handler(), "/XYZ/electrical")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "XYZ")
	assert.True(t, stores[power.USB].Pending(), "unknown domain must not drain other stores")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("unknown", "404")))
}

func TestElectricalRejectsStoreOutsideDomainSet(t *testing.T) {
	stores := store.Set{power.Domain("usb"): store.NewLatest()}
	stores[power.Domain("usb")].Publish(power.Reading{Time: time.Now(), Voltage: 5.0})
	srv := exporter.New(exporter.Config{Addr: "127.0.0.1:0"}, stores, zap.NewNop())

	rec := get(t, srv.Handler(), "/usb/electrical")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, stores[power.Domain("usb")].Pending())
}

func TestElectricalNoContentBeforePublish(t *testing.T) {
	srv, _, _ := newServer(t)

	rec := get(t, srv.Handler(), "/VBAT/electrical")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestElectricalServesReadingOnce(t *testing.T) {
	srv, stores, m := newServer(t)
	stores[power.USB].Publish(power.Reading{Time: time.Now(), Voltage: 5.0, Current: 1.2, Power: 6.0})

	rec := get(t, srv.Handler(), "/USB/electrical")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 4)
	assert.Contains(t, body, "time")
	assert.Equal(t, 5.0, body["voltage"])
	assert.Equal(t, 1.2, body["current"])
	assert.Equal(t, 6.0, body["power"])

	rec = get(t, srv.Handler(), "/USB/electrical")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("USB", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("USB", "204")))
}

func TestElectricalDomainIsCaseSensitive(t *testing.T) {
	srv, stores, _ := newServer(t)
	stores[power.USB].Publish(power.Reading{Time: time.Now()})

	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/usb/electrical").Code)
}

func TestElectricalConcurrentSameDomainDeliversOnce(t *testing.T) {
	srv, stores, _ := newServer(t)
	stores[power.VBAT].Publish(power.Reading{Time: time.Now(), Voltage: 3.7})

	const clients = 16
	codes := make(chan int, clients)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- get(t, srv.Handler(), "/VBAT/electrical").Code
		}()
	}
	wg.Wait()
	close(codes)

	ok := 0
	for code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusNoContent, code)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _, _ := newServer(t)
	get(t, srv.Handler(), "/XYZ/electrical")

	rec := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = get(t, srv.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "powa_http_requests_total")
}

func TestElectricalRejectsOtherMethods(t *testing.T) {
	srv, _, _ := newServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/USB/electrical", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := exporter.New(exporter.Config{Addr: ln.Addr().String()}, store.NewSet(power.Domains()), nil)
	err = srv.Bind()
	assert.ErrorIs(t, err, exporter.ErrBindFailure)
	assert.Nil(t, srv.Addr())
}

func TestRunServesUntilCancelled(t *testing.T) {
	srv, stores, _ := newServer(t)
	require.NoError(t, srv.Bind())
	addr := srv.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	stores[power.USB].Publish(power.Reading{Time: time.Now(), Voltage: 5.0, Current: 1.2, Power: 6.0})
	resp, err := http.Get(fmt.Sprintf("http://%s/USB/electrical", addr))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"voltage":5`)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	require.NoError(t, srv.OnCancel(context.Background()))

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "listener must be closed after shutdown")
}
