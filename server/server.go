// Package server distributes rucio.cfg files over HTTP. Each repository is
// refreshed in the background and served as raw bytes under /<name>, with
// health, readiness and status endpoints for the deployment around it.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Thysk/rucio/source"
	"github.com/go-http-utils/etag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Refreshing more often than this hammers the backends for no benefit.
const minRefreshInterval = 5 * time.Second

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rucio_cfg_refresh_total",
		Help: "Refresh attempts per repository.",
	}, []string{"repository"})
	refreshFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rucio_cfg_refresh_failures_total",
		Help: "Failed refresh attempts per repository.",
	}, []string{"repository"})
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rucio_cfg_requests_total",
		Help: "HTTP requests per route.",
	}, []string{"route"})
)

// RepositoryStatus describes the refresh state of one repository as exposed
// on the /status endpoint.
type RepositoryStatus struct {
	Name         string    `json:"name"`
	RefreshCount int       `json:"refresh_count"`
	FailureCount int       `json:"failure_count"`
	IsHealthy    bool      `json:"is_healthy"`
	LastError    string    `json:"last_error,omitempty"`
	LastRefresh  time.Time `json:"last_refresh"`
}

type repoState struct {
	refreshCount int
	failureCount int
	lastErr      error
	lastRefresh  time.Time
}

type Server struct {
	Repositories    []source.Repository
	RefreshInterval time.Duration
	AuthKey         string
	EnableMetrics   bool
	cancel          context.CancelFunc

	mu         sync.RWMutex
	states     map[string]*repoState
	ready      bool
	httpServer *http.Server
}

// NewServer refreshes every repository once, then keeps each one fresh with
// its own background goroutine until ctx is canceled or Stop is called. A
// repository whose initial refresh fails leaves the server unhealthy but not
// unready; it serves an empty body until a refresh succeeds.
func NewServer(ctx context.Context, repositories []source.Repository, refreshInterval time.Duration) *Server {
	if refreshInterval < minRefreshInterval {
		logrus.Warn("refresh interval too low, setting it to 5 seconds")
		refreshInterval = minRefreshInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	server := &Server{
		Repositories:    repositories,
		RefreshInterval: refreshInterval,
		cancel:          cancel,
		states:          make(map[string]*repoState),
	}
	for _, repo := range server.Repositories {
		server.states[repo.GetName()] = &repoState{}
	}
	for _, repo := range server.Repositories {
		server.refreshOnce(repo)
	}
	server.mu.Lock()
	server.ready = true
	server.mu.Unlock()
	for _, repo := range server.Repositories {
		go server.refreshLoop(ctx, repo)
	}
	return server
}

func (s *Server) refreshOnce(repository source.Repository) {
	name := repository.GetName()
	refreshTotal.WithLabelValues(name).Inc()
	err := repository.Refresh()
	if err != nil {
		refreshFailures.WithLabelValues(name).Inc()
		logrus.WithError(err).WithField("repository", name).Error("error refreshing repository")
	}

	s.mu.Lock()
	state := s.states[name]
	state.refreshCount++
	state.lastErr = err
	state.lastRefresh = time.Now()
	if err != nil {
		state.failureCount++
	}
	s.mu.Unlock()
}

func (s *Server) refreshLoop(ctx context.Context, repository source.Repository) {
	ticker := time.NewTicker(s.RefreshInterval)
	for {
		select {
		case <-ticker.C:
			s.refreshOnce(repository)
		case <-ctx.Done():
			ticker.Stop()
			return
		}
	}
}

// IsHealthy reports whether the last refresh of every repository succeeded.
func (s *Server) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, state := range s.states {
		if state.lastErr != nil {
			return false
		}
	}
	return true
}

// IsReady reports whether the initial refresh pass has completed.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// GetRepositoryStatus returns the refresh state of every repository.
func (s *Server) GetRepositoryStatus() map[string]RepositoryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	statuses := make(map[string]RepositoryStatus, len(s.states))
	for name, state := range s.states {
		status := RepositoryStatus{
			Name:         name,
			RefreshCount: state.refreshCount,
			FailureCount: state.failureCount,
			IsHealthy:    state.lastErr == nil,
			LastRefresh:  state.lastRefresh,
		}
		if state.lastErr != nil {
			status.LastError = state.lastErr.Error()
		}
		statuses[name] = status
	}
	return statuses
}

// Stop cancels the background refresh goroutines.
func (s *Server) Stop() {
	s.cancel()
}

// Start serves the handlers on addr and blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	logrus.WithField("addr", addr).Info("starting server")

	handlers := s.CreateHandlers()
	handler := etag.Handler(handlers, false)
	if s.AuthKey != "" {
		handler = Auth(handler, s.AuthKey)
	}

	httpServer := &http.Server{Addr: addr, Handler: handler}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the refresh goroutines and drains the HTTP server.
func (s *Server) Shutdown() error {
	s.cancel()
	s.mu.RLock()
	httpServer := s.httpServer
	s.mu.RUnlock()
	if httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

// CreateHandlers builds the route set: one raw rucio.cfg route per
// repository plus the health, readiness, status and optional metrics
// endpoints. Everything is GET/HEAD only.
func (s *Server) CreateHandlers() http.Handler {
	mux := http.NewServeMux()
	for _, repo := range s.Repositories {
		repo := repo // per-iteration copy: the module builds as go 1.21, where the range variable is shared
		route := "/" + repo.GetName()
		mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
			requestsTotal.WithLabelValues(route).Inc()
			if r.Method != "GET" && r.Method != "HEAD" {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			response := repo.GetRawData()
			_, err := w.Write(response)
			if err != nil {
				logrus.WithError(err).Error("error writing response")
			}
		})
	}
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	if s.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("/health").Inc()
	if r.Method != "GET" && r.Method != "HEAD" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !s.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("/ready").Inc()
	if r.Method != "GET" && r.Method != "HEAD" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !s.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("/status").Inc()
	if r.Method != "GET" && r.Method != "HEAD" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"healthy":      s.IsHealthy(),
		"ready":        s.IsReady(),
		"repositories": s.GetRepositoryStatus(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("error writing response")
	}
}

// Auth guards every route except the probe endpoints with an X-API-KEY
// header check. The probes stay open so orchestrators without the key can
// still see liveness.
func Auth(next http.Handler, authKey string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/ready", "/status":
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-KEY")
		if key == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if key != authKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
