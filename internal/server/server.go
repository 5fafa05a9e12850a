package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"plaza-server/internal/journal"
)

const tracerName = "plaza-server/internal/server"

type Server struct {
	config           Config
	connections      *ConnectionManager
	players          *PlayerStore
	chatLog          *ChatLog
	broadcaster      *Broadcaster
	rateLimiter      *RateLimiter
	connectionHealth *ConnectionHealth
	journal          journal.Recorder
	tracer           trace.Tracer
	now              func() time.Time
}

// NewServer wires the stores and returns the server together with the HTTP
// server that exposes it. recorder may be nil.
func NewServer(cfg Config, recorder journal.Recorder) (*Server, *http.Server) {
	s := newServer(cfg, recorder)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.RegisterRoutes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, server
}

func newServer(cfg Config, recorder journal.Recorder) *Server {
	if recorder == nil {
		recorder = journal.Discard
	}
	connections := NewConnectionManager()
	return &Server{
		config:           cfg,
		connections:      connections,
		players:          NewPlayerStore(),
		chatLog:          NewChatLog(),
		broadcaster:      NewBroadcaster(connections),
		rateLimiter:      NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateWindow),
		connectionHealth: NewConnectionHealth(),
		journal:          recorder,
		tracer:           otel.Tracer(tracerName),
		now:              time.Now,
	}
}

// Shutdown closes every open connection so each handler runs its leave
// sequence, then waits for the registry to drain. It returns as soon as ctx
// ends.
func (s *Server) Shutdown(ctx context.Context) error {
	closed, err := s.connections.CloseAll(ctx, websocket.StatusGoingAway, "Server shutting down")
	log.Printf("Shutdown: closing %d connections", closed)
	if err != nil {
		return fmt.Errorf("shutdown with %d connections still open: %w", s.connections.Count(), err)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for s.connections.Count() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("shutdown with %d connections still open: %w", s.connections.Count(), ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
