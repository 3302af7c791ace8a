// Package health serves liveness, readiness and detailed status probes.
//
// Checks are either critical or advisory. Readiness only fails on a
// critical check; /health reports everything and turns 503 on any failure.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

const probeTimeout = 5 * time.Second

// Status is the /health response body.
type Status struct {
	Status    string           `json:"status"` // ok, degraded or unavailable
	Checks    map[string]Check `json:"checks"`
	Version   string           `json:"version,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// Check is one probe result.
type Check struct {
	Healthy   bool   `json:"healthy"`
	Critical  bool   `json:"critical"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// CheckFunc probes one dependency. It must honour ctx.
type CheckFunc func(ctx context.Context) (bool, string)

type registered struct {
	fn       CheckFunc
	critical bool
}

// Server hosts the probe endpoints.
type Server struct {
	port    int
	version string
	logger  logger.LoggerInterface
	server  *http.Server

	mu     sync.RWMutex
	checks map[string]registered
}

func NewServer(port int, version string, log logger.LoggerInterface) *Server {
	return &Server{
		port:    port,
		version: version,
		logger:  log,
		checks:  make(map[string]registered),
	}
}

// RegisterCheck adds a critical check. Re-registering a name replaces it.
func (s *Server) RegisterCheck(name string, fn CheckFunc) {
	s.register(name, fn, true)
}

// RegisterAdvisory adds a check that is reported but never fails readiness.
func (s *Server) RegisterAdvisory(name string, fn CheckFunc) {
	s.register(name, fn, false)
}

func (s *Server) register(name string, fn CheckFunc, critical bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = registered{fn: fn, critical: critical}
}

// Handler returns the probe routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /live", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "alive")
	})
	return mux
}

// Start serves the probes in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: probeTimeout,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, "health server stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// evaluate runs every check concurrently.
func (s *Server) evaluate(ctx context.Context) map[string]Check {
	s.mu.RLock()
	checks := make(map[string]registered, len(s.checks))
	for name, c := range s.checks {
		checks[name] = c
	}
	s.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]Check, len(checks))
		g       errgroup.Group
	)
	for name, c := range checks {
		g.Go(func() error {
			start := time.Now()
			ok, msg := c.fn(ctx)
			res := Check{
				Healthy:   ok,
				Critical:  c.critical,
				Message:   msg,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// summarize returns the overall status and whether the process can serve.
func summarize(checks map[string]Check) (string, bool) {
	status, ready := "ok", true
	for _, c := range checks {
		switch {
		case c.Healthy:
		case c.Critical:
			return "unavailable", false
		default:
			status = "degraded"
		}
	}
	return status, ready
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	checks := s.evaluate(ctx)
	status, _ := summarize(checks)

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(Status{
		Status:    status,
		Checks:    checks,
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Warn(ctx, "encode health status", "error", err)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	if _, ready := summarize(s.evaluate(ctx)); !ready {
		writeText(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeText(w, http.StatusOK, "ready")
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
