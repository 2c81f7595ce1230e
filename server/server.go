// Package server exposes the fetch orchestration HTTP API and the job
// update WebSocket stream.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fitbaus/fitbaus/am"
	"github.com/fitbaus/fitbaus/fetch/async"
	"github.com/fitbaus/fitbaus/logger"
	"github.com/fitbaus/fitbaus/profile"
)

// Server is the HTTP control surface over the async fetch controller. It
// also runs a small WebSocket hub that fans job registry updates out to
// connected UI clients.
type Server struct {
	cfg        *am.Config
	controller *async.Controller
	profiles   *profile.Store
	archive    *async.Store // nil disables the fetch-history endpoint
	logger     *zap.SugaredLogger

	configWatcher *am.ConfigWatcher // Config watcher for auto-reload on config changes

	mux        *http.ServeMux
	httpServer *http.Server

	// WebSocket hub state
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *async.Job

	mu     sync.RWMutex
	ctx    context.Context    // Cancellation context for graceful shutdown
	cancel context.CancelFunc // Cancels all goroutines
	wg     sync.WaitGroup     // Tracks active goroutines for clean shutdown

	state          atomic.Int32 // Server state (Running/Draining/Stopped)
	broadcastDrops atomic.Int64 // Tracks dropped broadcasts for monitoring
}

// New creates a server wired to the given controller and profile store.
// archive may be nil when no database is configured.
func New(cfg *am.Config, controller *async.Controller, profiles *profile.Store, archive *async.Store, log *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:        cfg,
		controller: controller,
		profiles:   profiles,
		archive:    archive,
		logger:     log.Named("server"),
		mux:        http.NewServeMux(),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *async.Job, MaxClientMessageQueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.state.Store(int32(ServerStateRunning))
	s.setupRoutes()
	return s
}

// SetConfigWatcher attaches a config file watcher whose lifecycle the
// server manages during shutdown.
func (s *Server) SetConfigWatcher(w *am.ConfigWatcher) {
	s.configWatcher = w
}

// Run starts the server hub event loop.
func (s *Server) Run() {
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugw("Server hub stopping due to context cancellation")
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		case job := <-s.broadcast:
			s.handleBroadcast(job)
		}
	}
}

// handleClientRegister handles a new client connection
func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()

	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}

	s.clients[client] = true
	totalClients := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"client_id", client.id,
		"total_clients", totalClients,
	)
}

// handleClientUnregister handles a client disconnection
func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		totalClients := len(s.clients)
		s.mu.Unlock()

		client.close()

		s.logger.Infow("Client disconnected",
			"client_id", client.id,
			"total_clients", totalClients,
		)
	} else {
		s.mu.Unlock()
	}
}

// handleBroadcast sends a job update to all connected clients. Sends are
// non-blocking; a client that cannot keep up loses frames rather than
// stalling the hub.
func (s *Server) handleBroadcast(job *async.Job) {
	msg := &JobEventMessage{
		Type:      "job_update",
		Job:       job,
		Timestamp: time.Now().Unix(),
	}

	s.mu.RLock()
	targets := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		targets = append(targets, client)
	}
	s.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- msg:
		default:
			s.broadcastDrops.Add(1)
		}
	}
}

// startJobEventBroadcaster subscribes to both job registries and forwards
// every update into the hub broadcast channel.
func (s *Server) startJobEventBroadcaster() {
	fetchCh := s.controller.FetchJobs().Subscribe()
	authCh := s.controller.AuthJobs().Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.controller.FetchJobs().Unsubscribe(fetchCh)
		defer s.controller.AuthJobs().Unsubscribe(authCh)

		for {
			select {
			case job, ok := <-fetchCh:
				if !ok {
					return
				}
				s.queueBroadcast(job)
			case job, ok := <-authCh:
				if !ok {
					return
				}
				s.queueBroadcast(job)
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (s *Server) queueBroadcast(job *async.Job) {
	select {
	case s.broadcast <- job:
	case <-s.ctx.Done():
	default:
		s.broadcastDrops.Add(1)
		s.logger.Debugw("Broadcast queue full, dropping job update",
			logger.FieldJobID, job.ID)
	}
}
