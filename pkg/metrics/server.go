// HTTP server for metrics and live driver status
//
// Endpoints:
//   - /metrics  Prometheus text format
//   - /health   liveness
//   - /ready    200 once the driver is Ready
//   - /status   driver status as JSON
//   - /ws       driver status pushed over a websocket
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"blmc-robot-go/pkg/driver"
	"blmc-robot-go/pkg/log"

	"github.com/gorilla/websocket"
)

// Status is the driver status served on /status and /ws.
type Status struct {
	Time     time.Time `json:"time"`
	State    string    `json:"state"`
	Actions  uint64    `json:"actions"`
	Position []float64 `json:"position"`
	Velocity []float64 `json:"velocity"`
	Torque   []float64 `json:"torque"`
	Error    string    `json:"error"`
}

// StatusFunc returns the current status. It is called from HTTP handlers
// and must be safe for concurrent use.
type StatusFunc func() Status

// DriverStatus reads the status of d.
func DriverStatus(d *driver.Driver) StatusFunc {
	return func() Status {
		obs := d.LatestObservation()
		return Status{
			Time:     time.Now(),
			State:    d.State().String(),
			Actions:  d.ActionCount(),
			Position: obs.Position,
			Velocity: obs.Velocity,
			Torque:   obs.Torque,
			Error:    d.GetError(),
		}
	}
}

// ServerConfig holds server configuration
type ServerConfig struct {
	// Address to listen on (e.g., ":9100" or "127.0.0.1:9100")
	Address string

	// Optional basic auth credentials for /metrics, /status and /ws
	Username string
	Password string

	// CheckOrigin accepts websocket origins. nil only accepts requests
	// from the same host.
	CheckOrigin func(r *http.Request) bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// PushInterval is the period of status messages on /ws
	PushInterval time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":9100",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		PushInterval: 100 * time.Millisecond,
	}
}

// Server serves metrics and status over HTTP
type Server struct {
	dm     *DriverMetrics
	status StatusFunc
	cfg    ServerConfig
	server *http.Server
	mux    *http.ServeMux
	logger *log.Logger

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	listener net.Listener
	running  bool
	done     chan struct{}
	stop     sync.Once
	clients  sync.WaitGroup
}

// NewServer creates a server. status may be nil, then /status and /ws
// return 503.
func NewServer(dm *DriverMetrics, status StatusFunc, cfg ServerConfig) *Server {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = DefaultServerConfig().PushInterval
	}
	s := &Server{
		dm:     dm,
		status: status,
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: log.GetLogger("metrics"),
		done:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: cfg.CheckOrigin,
		},
	}

	s.mux.HandleFunc("/metrics", s.handleMetrics)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens and serves until Shutdown. It blocks.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("metrics server listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.running = true
	s.mu.Unlock()
	s.logger.Info("serving metrics on %s", ln.Addr())

	err = s.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return nil
}

// Addr returns the listen address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address
}

// IsRunning returns whether the server is serving
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Shutdown stops the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop.Do(func() { close(s.done) })
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	err := s.server.Shutdown(ctx)
	s.clients.Wait()
	return err
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	output := s.dm.Gather()
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(output)))
		return
	}
	_, _ = w.Write([]byte(output))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("OK\n"))
}

// handleReady reports whether the driver accepts actions
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	state := s.dm.CurrentState()
	if state == driver.StateReady {
		_, _ = w.Write([]byte("Ready\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = fmt.Fprintf(w, "Not Ready (%s)\n", state)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	if s.status == nil {
		http.Error(w, "status not available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.status())
}

// handleWebSocket pushes the status every PushInterval until the client
// goes away or the server shuts down
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	if s.status == nil {
		http.Error(w, "status not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	s.clients.Add(1)
	defer s.clients.Done()
	defer conn.Close()

	// The read loop only detects the client closing the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.WithError(err).Debug("websocket read error")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()
	for {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.PushInterval + time.Second))
		if err := conn.WriteJSON(s.status()); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-s.done:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			conn.Close()
			<-closed
			return
		}
	}
}

// checkAuth verifies basic auth if configured
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.Username == "" && s.cfg.Password == "" {
		return true
	}
	username, password, ok := r.BasicAuth()
	if ok &&
		subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) == 1 &&
		subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password)) == 1 {
		return true
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="BLMC Driver"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return false
}
