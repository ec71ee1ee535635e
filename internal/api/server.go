package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/netaudit/internal/clock"
	"grimm.is/netaudit/internal/device"
	"grimm.is/netaudit/internal/events"
	"grimm.is/netaudit/internal/health"
	"grimm.is/netaudit/internal/jammer"
	"grimm.is/netaudit/internal/logging"
	"grimm.is/netaudit/internal/metrics"
	"grimm.is/netaudit/internal/ratelimit"
	"grimm.is/netaudit/internal/traffic"
)

// ServerConfig holds HTTP server timeouts and limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration // must exceed the command timeout
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
		MaxBodyBytes:      1 << 20, // 1MB
		ShutdownTimeout:   5 * time.Second,
	}
}

// Jammer is the jamming controller as seen by the API.
type Jammer interface {
	ToggleJammer(ctx context.Context, address string, devices []device.Target)
	Status() jammer.Status
}

// Monitor is the traffic monitor as seen by the API.
type Monitor interface {
	ToggleMonitoring(ctx context.Context)
	ClearPackets()
	State() traffic.Snapshot
}

// Server handles API requests.
type Server struct {
	jammer    Jammer
	monitor   Monitor
	inventory device.Inventory
	logs      *logging.RingBuffer
	hub       *events.Hub
	logger    *logging.Logger
	metrics   *metrics.Registry
	config    *ServerConfig
	wsManager *WSManager
	toggles   *ratelimit.Limiter // nil when toggles are unlimited
	health    *health.Checker

	mux *http.ServeMux
}

// ServerOptions holds dependencies for the API server
type ServerOptions struct {
	Jammer    Jammer
	Monitor   Monitor
	Inventory device.Inventory
	Logs      *logging.RingBuffer // Optional: /api/logs returns nothing without it
	Hub       *events.Hub         // Optional: /api/ws is unavailable without it
	Health    *health.Checker     // Optional: /api/health reports liveness only without it
	Logger    *logging.Logger
	Config    *ServerConfig

	// ToggleLimit caps toggle requests per client per minute. Zero disables it.
	ToggleLimit int
}

// NewServer creates a new API server with the provided options
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Jammer == nil || opts.Monitor == nil || opts.Inventory == nil {
		return nil, errors.New("api: jammer, monitor and inventory are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultServerConfig()
	}

	s := &Server{
		jammer:    opts.Jammer,
		monitor:   opts.Monitor,
		inventory: opts.Inventory,
		logs:      opts.Logs,
		hub:       opts.Hub,
		health:    opts.Health,
		logger:    logger,
		metrics:   metrics.Get(),
		config:    cfg,
	}

	if opts.ToggleLimit > 0 {
		s.toggles = ratelimit.NewLimiter(opts.ToggleLimit, time.Minute)
	}
	if opts.Hub != nil {
		s.wsManager = NewWSManager(opts.Hub, logger, s.currentState)
	}

	s.initRoutes()
	return s, nil
}

// initRoutes initializes the HTTP router
func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	s.mux = mux

	// Jamming
	mux.HandleFunc("GET /api/jam", s.handleJamStatus)
	mux.HandleFunc("POST /api/jam/{ip}", s.limitToggles(s.handleToggleJam))

	// Traffic
	mux.HandleFunc("GET /api/traffic", s.handleTraffic)
	mux.HandleFunc("POST /api/traffic/toggle", s.limitToggles(s.handleToggleTraffic))
	mux.HandleFunc("POST /api/traffic/clear", s.handleClearTraffic)

	// Inventory and status log
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("GET /api/logs", s.handleLogs)

	// Health
	mux.HandleFunc("GET /healthz", health.LivenessHandler())
	if s.health != nil {
		mux.HandleFunc("GET /api/health", s.health.Handler())
	} else {
		mux.HandleFunc("GET /api/health", health.LivenessHandler())
	}

	// Websockets
	mux.HandleFunc("GET /api/ws", s.handleWS)

	mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.maxBodyMiddleware(s.config.MaxBodyBytes)(s.mux))
}

// Serve accepts connections on listener until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
		MaxHeaderBytes:    s.config.MaxHeaderBytes,
	}

	if s.toggles != nil {
		go s.toggles.RunCleanup(ctx, time.Minute, 10*time.Minute)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", listener.Addr().String())
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if s.wsManager != nil {
		s.wsManager.Close()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

// Start listens on addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Close releases the WebSocket manager. Serve calls it on shutdown.
func (s *Server) Close() {
	if s.wsManager != nil {
		s.wsManager.Close()
	}
}

// loggingMiddleware logs all API requests and counts them by route.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.APIRequests.WithLabelValues(route, strconv.Itoa(wrapped.statusCode)).Inc()

		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		duration := clock.Since(start).Round(time.Millisecond)
		args := []any{"method", r.Method, "path", r.URL.Path, "status", wrapped.statusCode, "duration", duration}
		switch {
		case wrapped.statusCode >= 500:
			s.logger.Error("API request", args...)
		case wrapped.statusCode >= 400:
			s.logger.Warn("API request", args...)
		default:
			s.logger.Debug("API request", args...)
		}
	})
}

// limitToggles rejects toggle requests from clients over their per-minute budget.
func (s *Server) limitToggles(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.toggles != nil && !s.toggles.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			WriteError(w, http.StatusTooManyRequests, "too many toggle requests")
			return
		}
		next(w, r)
	}
}

// clientKey identifies the caller by remote host.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// maxBodyMiddleware limits the size of request bodies to prevent memory exhaustion.
func (s *Server) maxBodyMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip body limit for GET/HEAD/OPTIONS
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > maxBytes {
				http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Implement http.Flusher for streaming responses
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Implement http.Hijacker for websocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("hijack not supported")
}
