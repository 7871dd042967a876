// Package server exposes the ingestion platform over HTTP: webhook
// intake, task management, execution history, and a WebSocket stream
// re-broadcasting lifecycle events to connected clients.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skeinhq/skein/errors"
	"github.com/skeinhq/skein/ingest"
)

// Server is the HTTP/WebSocket surface over a lifecycle manager.
type Server struct {
	manager *ingest.Manager
	logger  *zap.SugaredLogger

	mux  *http.ServeMux
	http *http.Server

	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server bound to addr. Start must be called to listen.
func New(addr string, manager *ingest.Manager, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		manager:    manager,
		logger:     logger,
		mux:        http.NewServeMux(),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.routes()
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/webhooks/{endpoint...}", s.handleWebhook)

	s.mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /api/tasks", s.handleScheduleTask)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("PATCH /api/tasks/{id}", s.handleUpdateTask)
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/trigger", s.handleTriggerTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/enable", s.handleEnableTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/disable", s.handleDisableTask)
	s.mux.HandleFunc("GET /api/tasks/{id}/executions", s.handleListExecutions)

	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Start begins serving and wires the event broadcaster. Returns once
// the listener goroutine is launched; serving errors are logged.
func (s *Server) Start() {
	s.wg.Add(1)
	go s.hubLoop()

	s.manager.Bus().SubscribeAll(s.broadcastEvent)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Infow("HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("HTTP server failed", "error", err)
		}
	}()
}

// Shutdown drains in-flight requests, disconnects WebSocket clients,
// and stops the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	for client := range s.clients {
		client.close()
	}
	s.clients = make(map[*Client]bool)
	s.mu.Unlock()

	s.logger.Infow("HTTP server stopped")
	return err
}

// hubLoop serializes client registration and removal.
func (s *Server) hubLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			count := len(s.clients)
			s.mu.Unlock()
			s.logger.Infow("WebSocket client connected",
				"client_id", client.id,
				"clients", count,
			)
		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.close()
			}
			count := len(s.clients)
			s.mu.Unlock()
			s.logger.Infow("WebSocket client disconnected",
				"client_id", client.id,
				"clients", count,
			)
		}
	}
}

// broadcastEvent fans one lifecycle event out to every connected
// client. A client with a full send buffer is skipped, not blocked on.
func (s *Server) broadcastEvent(evt ingest.Event) {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		select {
		case client.send <- evt:
			sent++
		default:
			// Channel full - skip
		}
	}

	if len(clients) > 0 {
		s.logger.Debugw("Broadcasted lifecycle event",
			"event", evt.Type,
			"task_id", evt.TaskID,
			"clients", sent,
		)
	}
}
