// Package server exposes a remote.Store over HTTP.
//
// Routes:
//
//	GET    /tasks        {success, tasks}
//	POST   /tasks        {success, task}
//	PUT    /tasks/{id}   {success, task} | 404
//	DELETE /tasks/{id}   {success, task} | 404
//	POST   /tasks/sync   {success, updated, removed?}
//	GET    /health       {status, clients, tasks}
//	GET    /ws           dashboard WebSocket
//
// Errors are reported as {success: false, error} with 400 for malformed or
// invalid input, 404 for unknown ids and 500 for store failures.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/tasksync/tasksync/internal/dashboard"
	"github.com/tasksync/tasksync/internal/remote"
)

// Config holds server configuration
type Config struct {
	// Addr to listen on (default: ":3000")
	Addr string

	// Store backing the API. Required.
	Store remote.Store

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// Server serves the task API and the dashboard.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	store   remote.Store
	hub     *dashboard.Hub
	events  *dashboard.Handler
	handler http.Handler

	mu      sync.Mutex
	started bool

	logger *log.Logger
}

// New creates a server. The store is owned by the caller.
func New(config *Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	addr := config.Addr
	if addr == "" {
		addr = ":3000"
	}

	hub := dashboard.NewHub(&dashboard.Config{Logger: logger})
	s := &Server{
		addr:   addr,
		store:  config.Store,
		hub:    hub,
		events: dashboard.NewHandler(hub, logger),
		logger: logger,
	}
	s.handler = Chain(s.routes(),
		WithRequestID,
		WithRecover(logger),
		WithAccessLog(logger),
		WithCORS,
	)
	return s
}

// Handler returns the HTTP handler with middleware applied. The dashboard
// broadcasts only after Start.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	// /tasks/sync is registered before /tasks/{id}.
	r.HandleFunc("/tasks/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/tasks", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/tasks", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", s.handleUpdate).Methods(http.MethodPut)
	r.HandleFunc("/tasks/{id}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/ws", s.hub)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// StartDashboard runs the dashboard broadcast loop and seeds its
// statistics from the store. Start calls it; tests serving Handler
// directly call it themselves.
func (s *Server) StartDashboard(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.hub.Start()
	if tasks, err := s.store.List(ctx); err != nil {
		s.logger.Printf("Warning: failed to load dashboard stats: %v", err)
	} else {
		s.events.UpdateStats(tasks)
	}
}

// Start begins listening and serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}

	s.StartDashboard(context.Background())

	go func() {
		s.logger.Printf("Task API listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server and the dashboard.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Println("Stopping task API")

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		s.hub.Stop()
	}

	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Println("Task API stopped")
	return nil
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
