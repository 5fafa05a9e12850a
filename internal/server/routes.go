package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// healthReporter is implemented by recorders that can report their own
// status, such as *journal.Journal.
type healthReporter interface {
	Health(ctx context.Context) map[string]string
}

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	if s.config.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	} else {
		mux.HandleFunc("/", s.HelloWorldHandler)
	}

	mux.HandleFunc("/health", s.healthHandler)

	mux.HandleFunc("/ws", s.websocketHandler)
	mux.HandleFunc("/websocket", s.websocketHandler)

	// Wrap the mux with CORS middleware
	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowedOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when it matches none of ALLOWED_ORIGINS. Patterns match the origin's
// host the same way the websocket upgrade matches OriginPatterns.
func (s *Server) allowedOrigin(origin string) string {
	for _, pattern := range s.config.AllowedOrigins {
		if pattern == "*" {
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	for _, pattern := range s.config.AllowedOrigins {
		if ok, err := path.Match(strings.ToLower(pattern), host); err == nil && ok {
			return origin
		}
	}
	return ""
}

func (s *Server) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"message": "Hello World"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	idleID, idle := s.connectionHealth.LongestIdle()

	resp := map[string]any{
		"status":            "ok",
		"connections":       s.connections.Count(),
		"ready_connections": s.connections.ReadyCount(),
		"players":           s.players.Count(),
		"chat_entries":      s.chatLog.Len(),
		"dropped_frames":    s.connections.DroppedFrames(),
		"longest_idle_secs": strconv.FormatFloat(idle.Seconds(), 'f', 1, 64),
	}
	if idleID != "" {
		resp["longest_idle_id"] = idleID
	}
	if reporter, ok := s.journal.(healthReporter); ok {
		resp["journal"] = reporter.Health(r.Context())
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.config.AllowedOrigins,
	})
	if err != nil {
		log.Printf("Failed to accept websocket: %v", err)
		return
	}
	socket.SetReadLimit(s.config.MaxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	connectionID := uuid.New().String()
	client := NewClient(connectionID, socket, s.config.SendQueueSize, s.config.WriteTimeout)

	if err := s.connections.Register(client); err != nil {
		log.Printf("Refusing connection: %v", err)
		socket.Close(websocket.StatusInternalError, "Connection id collision")
		return
	}
	log.Printf("New connection: %s", connectionID)

	go func() {
		if err := client.writePump(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Connection %s write error: %v", connectionID, err)
		}
		// Unblock the reader so the handler runs its close sequence.
		cancel()
	}()

	client.transition(StateConnecting, StateAwaitingJoin)

	defer func() {
		s.closeConnection(ctx, client)
		client.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				log.Printf("Connection %s closed by peer", connectionID)
			} else {
				log.Printf("Connection %s read error: %v", connectionID, err)
			}
			return
		}

		if msgType != websocket.MessageText {
			log.Printf("Non-text input from %s", connectionID)
			continue
		}

		s.handleFrame(ctx, client, data)
	}
}
