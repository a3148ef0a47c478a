// Package server exposes the admin control surface over HTTP: scheduler
// lifecycle actions, queue inspection, the tracking endpoint, and a websocket
// stream of work-item updates.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitrina/pulso/config"
	"github.com/vitrina/pulso/metric"
	"github.com/vitrina/pulso/scheduler"
)

// ShutdownTimeout bounds how long graceful shutdown waits for in-flight requests
const ShutdownTimeout = 10 * time.Second

// Server is the Vitrina admin server
type Server struct {
	cfg      *config.Config
	store    *metric.Store
	sched    *scheduler.Scheduler
	pipeline *scheduler.Pipeline
	trigger  *scheduler.DailyTrigger
	logger   *zap.SugaredLogger

	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// New creates the admin server. The trigger may be nil when the daily trigger
// is disabled (e.g. one-shot scoring runs).
func New(cfg *config.Config, store *metric.Store, sched *scheduler.Scheduler, pipeline *scheduler.Pipeline, trigger *scheduler.DailyTrigger, logger *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		store:    store,
		sched:    sched,
		pipeline: pipeline,
		trigger:  trigger,
		logger:   logger.Named("server"),
		ctx:      ctx,
		cancel:   cancel,
		clients:  make(map[*Client]struct{}),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	return s
}

// Start begins the work-item stream fanout and serves HTTP.
// Blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.startJobStream()

	s.logger.Infow("Admin server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP listener and the stream fanout gracefully
func (s *Server) Shutdown() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	for client := range s.clients {
		client.close()
	}
	s.clients = make(map[*Client]struct{})
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Infow("Admin server stopped")
	return err
}

// startJobStream subscribes to scheduler updates and fans them out to
// websocket clients
func (s *Server) startJobStream() {
	updates := s.sched.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sched.Unsubscribe(updates)

		for {
			select {
			case <-s.ctx.Done():
				return
			case item := <-updates:
				s.broadcast(jobUpdateMessage{
					Type:      "job_update",
					WorkItem:  item,
					Timestamp: time.Now().Unix(),
				})
			}
		}
	}()
}

// broadcast sends a message to all connected websocket clients.
// Non-blocking: a client with a full send buffer is skipped.
func (s *Server) broadcast(msg interface{}) int {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		select {
		case client.send <- msg:
			sent++
		default:
			// Channel full - skip
		}
	}
	return sent
}

func (s *Server) addClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

// jobUpdateMessage is the websocket frame for work-item transitions
type jobUpdateMessage struct {
	Type      string             `json:"type"`
	WorkItem  scheduler.WorkItem `json:"work_item"`
	Timestamp int64              `json:"timestamp"`
}
