package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/lacquerai/cortex/internal/engine"
	pkgEvents "github.com/lacquerai/cortex/pkg/events"
)

// Config holds the server configuration
type Config struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Concurrency     int           `mapstructure:"concurrency"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	EnableMetrics   bool          `mapstructure:"metrics"`
	EnableCORS      bool          `mapstructure:"cors"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns a default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            8080,
		Concurrency:     4,
		Timeout:         10 * time.Minute,
		MaxUploadBytes:  64 << 20,
		EnableMetrics:   true,
		EnableCORS:      true,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Minute,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunStatus tracks one diagnostic run started through the API.
type RunStatus struct {
	RunID     string            `json:"run_id"`
	Dataset   string            `json:"dataset,omitempty"`
	Target    string            `json:"target"`
	Status    string            `json:"status"`
	StartTime time.Time         `json:"start_time"`
	EndTime   *time.Time        `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Report    *engine.Report    `json:"report,omitempty"`
	Error     string            `json:"error,omitempty"`
	Progress  []pkgEvents.Event `json:"progress,omitempty"`

	// WebSocket connections for streaming. clientsMu also serializes
	// writes to them.
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	cancel context.CancelFunc
}

// RunManager bounds and tracks concurrent runs.
type RunManager struct {
	runs           map[string]*RunStatus
	maxConcurrency int
	currentCount   int
	mu             sync.RWMutex

	// Metrics
	totalRuns     prometheus.Counter
	activeRuns    prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	runStatus     *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	healthScores  prometheus.Histogram
}

// NewRunManager creates a run manager registered with the default
// Prometheus registerer.
func NewRunManager(maxConcurrency int) *RunManager {
	return NewRunManagerWithRegistry(maxConcurrency, prometheus.DefaultRegisterer)
}

// NewRunManagerWithRegistry creates a run manager with a custom registry. A
// nil registerer leaves the metrics unregistered.
func NewRunManagerWithRegistry(maxConcurrency int, registerer prometheus.Registerer) *RunManager {
	m := &RunManager{
		runs:           make(map[string]*RunStatus),
		maxConcurrency: maxConcurrency,

		totalRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cortex_runs_total",
			Help: "Total number of diagnostic runs started",
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cortex_runs_active",
			Help: "Number of diagnostic runs in progress",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cortex_run_duration_seconds",
			Help:    "Diagnostic run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"status"}),
		runStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_run_status_total",
			Help: "Total runs by final status",
		}, []string{"status"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_stage_failures_total",
			Help: "Pipeline stage failures by stage",
		}, []string{"stage"}),
		healthScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cortex_health_score",
			Help:    "Distribution of dataset health scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.totalRuns, m.activeRuns, m.runDuration, m.runStatus, m.stageFailures, m.healthScores)
	}

	return m
}

// StartRun reserves a slot and starts tracking a run. It returns false when
// the manager is at capacity.
func (m *RunManager) StartRun(runID, dataset, target string, cancel context.CancelFunc) (*RunStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentCount >= m.maxConcurrency {
		return nil, false
	}

	status := &RunStatus{
		RunID:     runID,
		Dataset:   dataset,
		Target:    target,
		Status:    StatusRunning,
		StartTime: time.Now(),
		Progress:  make([]pkgEvents.Event, 0),
		clients:   make(map[*websocket.Conn]bool),
		cancel:    cancel,
	}
	m.runs[runID] = status
	m.currentCount++

	m.totalRuns.Inc()
	m.activeRuns.Inc()

	return status, true
}

// FinishRun records the outcome of a run and closes its streams.
func (m *RunManager) FinishRun(runID string, rep *engine.Report, err error) {
	m.mu.Lock()
	status, exists := m.runs[runID]
	if !exists || status.Status != StatusRunning {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	status.EndTime = &now
	status.Duration = now.Sub(status.StartTime)
	status.Report = rep
	if err != nil {
		status.Status = StatusFailed
		status.Error = err.Error()
	} else {
		status.Status = StatusCompleted
	}
	m.currentCount--
	m.mu.Unlock()

	m.activeRuns.Dec()
	m.runDuration.WithLabelValues(status.Status).Observe(status.Duration.Seconds())
	m.runStatus.WithLabelValues(status.Status).Inc()
	if rep != nil {
		m.healthScores.Observe(float64(rep.HealthScore))
		for _, f := range rep.Failures() {
			m.stageFailures.WithLabelValues(string(f.Stage)).Inc()
		}
	}

	status.clientsMu.Lock()
	for client := range status.clients {
		client.Close()
	}
	status.clientsMu.Unlock()
}

// GetRun retrieves a run status.
func (m *RunManager) GetRun(runID string) (*RunStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, exists := m.runs[runID]
	return status, exists
}

// Snapshot returns a copy of the run's public fields, safe to encode while
// the run progresses.
func (m *RunManager) Snapshot(runID string) (RunStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, exists := m.runs[runID]
	if !exists {
		return RunStatus{}, false
	}
	return RunStatus{
		RunID:     status.RunID,
		Dataset:   status.Dataset,
		Target:    status.Target,
		Status:    status.Status,
		StartTime: status.StartTime,
		EndTime:   status.EndTime,
		Duration:  status.Duration,
		Report:    status.Report,
		Error:     status.Error,
		Progress:  append([]pkgEvents.Event(nil), status.Progress...),
	}, true
}

// AddProgressEvent records a progress event and broadcasts it to the run's
// WebSocket clients.
func (m *RunManager) AddProgressEvent(runID string, event pkgEvents.Event) {
	m.mu.Lock()
	status, exists := m.runs[runID]
	if exists {
		status.Progress = append(status.Progress, event)
	}
	m.mu.Unlock()

	if !exists {
		return
	}

	eventJSON, _ := json.Marshal(event)
	status.clientsMu.Lock()
	defer status.clientsMu.Unlock()
	for client := range status.clients {
		if err := client.WriteMessage(websocket.TextMessage, eventJSON); err != nil {
			log.Debug().Err(err).Str("run_id", runID).Msg("Dropping WebSocket client")
			client.Close()
			delete(status.clients, client)
		}
	}
}

// GetActiveRuns returns the number of runs in progress.
func (m *RunManager) GetActiveRuns() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentCount
}

// Listener returns a progress listener feeding runID's event log.
func (m *RunManager) Listener(runID string) pkgEvents.Listener {
	return &runListener{manager: m, runID: runID, done: make(chan struct{})}
}

type runListener struct {
	manager *RunManager
	runID   string
	done    chan struct{}
}

func (l *runListener) StartListening(progressChan <-chan pkgEvents.Event) {
	defer close(l.done)
	for event := range progressChan {
		l.manager.AddProgressEvent(l.runID, event)
	}
}

func (l *runListener) StopListening() {
	<-l.done
}

// Server represents the CORTEX HTTP server
type Server struct {
	config       *Config
	orchestrator *engine.Orchestrator
	manager      *RunManager
	registry     *prometheus.Registry
	server       *http.Server
	upgrader     websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry registers metrics with r and serves them from it instead of
// the process-wide default registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// New creates a new CORTEX server
func New(config *Config, orchestrator *engine.Orchestrator, opts ...Option) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("server requires an orchestrator")
	}
	if config.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", config.Concurrency)
	}

	s := &Server{
		config:       config,
		orchestrator: orchestrator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return config.EnableCORS // Allow all origins if CORS enabled
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry != nil {
		s.manager = NewRunManagerWithRegistry(config.Concurrency, s.registry)
	} else {
		s.manager = NewRunManager(config.Concurrency)
	}
	return s, nil
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	if s.config.EnableCORS {
		router.Use(s.corsMiddleware)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)

	api.HandleFunc("/diagnose", s.diagnose).Methods(http.MethodPost)
	api.HandleFunc("/heal", s.heal).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.startRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{runId}", s.getRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runId}/stream", s.streamRun).Methods(http.MethodGet)

	if s.config.EnableCORS {
		api.Methods(http.MethodOptions).HandlerFunc(s.handleOptions)
	}

	if s.config.EnableMetrics {
		if s.registry != nil {
			router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		} else {
			router.Handle("/metrics", promhttp.Handler())
		}
	}

	router.HandleFunc("/health", s.healthCheck)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := s.GetAddr()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	log.Info().
		Str("addr", addr).
		Int("concurrency", s.config.Concurrency).
		Bool("metrics", s.config.EnableMetrics).
		Msg("Starting CORTEX server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Info().Msg("Shutting down server...")
	return s.server.Shutdown(ctx)
}

// StartWithGracefulShutdown starts the server and blocks until SIGINT or
// SIGTERM has been handled.
func (s *Server) StartWithGracefulShutdown() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}

	log.Info().Msg("Server shutdown complete")
	return nil
}

// GetAddr returns the server address
func (s *Server) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Manager exposes the run manager.
func (s *Server) Manager() *RunManager {
	return s.manager
}
