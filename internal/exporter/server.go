// Package exporter serves the latest reading of each power domain over HTTP.
package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/power-warden/powa/internal/power"
	"github.com/power-warden/powa/internal/store"
	"github.com/power-warden/powa/pkg/monitor"
)

// ErrBindFailure is returned when the listener cannot be opened.
var ErrBindFailure = errors.New("http listener bind failed")

const defaultShutdownTimeout = 5 * time.Second

// Config holds the listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP exposition task.
type Server struct {
	cfg      Config
	stores   store.Set
	log      *zap.Logger
	metrics  *monitor.ExporterMetrics
	gatherer prometheus.Gatherer
	router   *mux.Router
	server   *http.Server
	listener net.Listener
}

// Option customises a Server.
type Option func(*Server)

// WithMetrics counts requests into m and serves g on /metrics.
func WithMetrics(m *monitor.ExporterMetrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// New builds the server over stores. Nothing is bound until Bind or Run.
func New(cfg Config, stores store.Set, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	s := &Server{
		cfg:    cfg,
		stores: stores,
		log:    log,
		router: mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerEndpoints()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.logMiddleware(s.router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log),
	}
	return s
}

func (s *Server) Name() string { return "exporter" }

// Handler returns the routed handler, including the logging middleware.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) registerEndpoints() {
	s.router.HandleFunc("/{domain}/electrical", s.handleElectrical).Methods(http.MethodGet)

	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
			ErrorLog: zap.NewStdLog(s.log),
		}))
	}
}

// electricalResponse is the JSON body of a successful electrical request.
type electricalResponse struct {
	Time    float64 `json:"time"`
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	Power   float64 `json:"power"`
}

func (s *Server) handleElectrical(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["domain"]
	domain := power.Domain(name)

	st, ok := s.stores[domain]
	if !domain.Valid() || !ok {
		s.log.Debug("unknown power domain requested", zap.String("domain", name))
		s.count("unknown", http.StatusNotFound)
		http.Error(w, fmt.Sprintf("Power domain '%s' not found.", name), http.StatusNotFound)
		return
	}

	reading, ok := st.TakeIfPresent()
	if !ok {
		s.count(name, http.StatusNoContent)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	body, err := json.Marshal(electricalResponse{
		Time:    reading.Seconds(),
		Voltage: reading.Voltage,
		Current: reading.Current,
		Power:   reading.Power,
	})
	if err != nil {
		// The reading is consumed at this point; it is lost to clients.
		s.log.Error("encode reading failed", zap.String("domain", name), zap.Error(err))
		s.count(name, http.StatusInternalServerError)
		http.Error(w, "failed to encode reading", http.StatusInternalServerError)
		return
	}

	s.count(name, http.StatusOK)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) count(domain string, code int) {
	if s.metrics == nil {
		return
	}
	s.metrics.Requests.WithLabelValues(domain, strconv.Itoa(code)).Inc()
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// logMiddleware logs every request at debug level; clients poll often.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.log.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Bind opens the listener. It is safe to call once before Run so that a bind
// failure surfaces before any other task starts.
func (s *Server) Bind() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBindFailure, s.cfg.Addr, err)
	}
	s.listener = ln
	s.log.Info("HTTP listener bound", zap.String("listen_addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Bind.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves requests until ctx is cancelled. A serve failure is returned.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Bind(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// OnCancel stops accepting connections and waits for in-flight requests up to
// the shutdown timeout, then force-closes what is left.
func (s *Server) OnCancel(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.log.Warn("shutdown timeout exceeded, closing remaining connections")
			return s.server.Close()
		}
		s.log.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}

	s.log.Info("HTTP server shutdown successfully")
	return nil
}
