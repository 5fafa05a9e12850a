package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"plaza-server/internal/journal"
)

const SystemSender = "System"

// handleFrame decodes one inbound frame and routes it by connection state.
// Bad frames are logged and dropped; the connection stays open.
func (s *Server) handleFrame(ctx context.Context, client *Client, data []byte) {
	s.connectionHealth.UpdateActivity(client.ID())

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Invalid JSON from %s: %v", client.ID(), err)
		return
	}

	switch client.State() {
	case StateAwaitingJoin:
		if msg.Type == MsgJoin {
			s.handleJoin(ctx, client, msg)
		}

	case StateActive:
		switch msg.Type {
		case MsgPosition:
			s.handlePosition(client, msg)
		case MsgChat:
			s.handleChat(ctx, client, msg)
		}
	}
}

func (s *Server) handleJoin(ctx context.Context, client *Client, msg ClientMessage) {
	_, span := s.tracer.Start(ctx, "plaza.join", trace.WithAttributes(
		attribute.String("plaza.connection_id", client.ID()),
	))
	defer span.End()

	var joined Player
	_, ok := s.players.Join(client.ID(), msg.Name, func(player Player, snapshot map[string]Player) {
		joined = player

		// History excludes this player's own join announcement.
		if err := s.broadcaster.SendTo(client, InitMessage{
			Type:        MsgInit,
			ID:          client.ID(),
			Players:     snapshot,
			ChatHistory: s.chatLog.Snapshot(),
		}); err != nil {
			log.Printf("Failed to send init: %v", err)
		}

		s.broadcast(PlayerJoinedMessage{
			Type:     MsgPlayerJoined,
			ID:       client.ID(),
			Name:     player.Name,
			Position: player.Position,
		})
		s.appendChat(s.systemEntry(fmt.Sprintf("%s has joined the game", player.Name)))
	})
	if !ok {
		return
	}

	// A failed transition means the transport closed mid-join; the record
	// is removed by closeConnection on the same goroutine.
	client.transition(StateAwaitingJoin, StateActive)

	span.SetAttributes(attribute.String("plaza.player_name", joined.Name))
	log.Printf("Player %q joined as %s", joined.Name, client.ID())

	s.journal.Record(journal.Event{
		Kind:         journal.KindJoin,
		ConnectionID: client.ID(),
		PlayerName:   joined.Name,
		OccurredAt:   s.now(),
	})
}

func (s *Server) handlePosition(client *Client, msg ClientMessage) {
	if msg.Position == nil {
		log.Printf("Position frame without position from %s", client.ID())
		return
	}

	s.players.UpdatePosition(client.ID(), *msg.Position, func(snapshot map[string]Player) {
		s.broadcast(PositionsMessage{
			Type:    MsgPositions,
			Players: snapshot,
		})
	})
}

func (s *Server) handleChat(ctx context.Context, client *Client, msg ClientMessage) {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return
	}
	if utf8.RuneCountInString(content) > s.config.MaxChatLength {
		content = strings.TrimSpace(string([]rune(content)[:s.config.MaxChatLength]))
	}

	if !s.rateLimiter.Allow(client.ID()) {
		log.Printf("Chat from %s dropped: rate limited", client.ID())
		return
	}

	player, ok := s.players.Get(client.ID())
	if !ok {
		return
	}

	_, span := s.tracer.Start(ctx, "plaza.chat", trace.WithAttributes(
		attribute.String("plaza.connection_id", client.ID()),
		attribute.Int("plaza.chat_length", len(content)),
	))
	defer span.End()

	entry := ChatEntry{
		Sender:    player.Name,
		Content:   content,
		Timestamp: s.now().UnixMilli(),
		PlayerID:  client.ID(),
	}
	s.journal.Record(journal.Event{
		Kind:         journal.KindChat,
		ConnectionID: client.ID(),
		PlayerName:   player.Name,
		Content:      content,
		OccurredAt:   s.now(),
	})
	s.appendChat(entry)
}

// closeConnection runs the Closed transition. A connection that never
// joined leaves no trace beyond its registry entry. Safe to call twice.
func (s *Server) closeConnection(ctx context.Context, client *Client) {
	client.markClosed()
	defer func() {
		s.connections.Unregister(client.ID())
		s.rateLimiter.RemoveConnection(client.ID())
		s.connectionHealth.RemoveConnection(client.ID())
	}()

	_, span := s.tracer.Start(ctx, "plaza.leave", trace.WithAttributes(
		attribute.String("plaza.connection_id", client.ID()),
	))
	defer span.End()

	player, removed := s.players.Leave(client.ID(), func(player Player) {
		s.appendChat(s.systemEntry(fmt.Sprintf("%s has left the game", player.Name)))
		s.broadcast(PlayerLeftMessage{
			Type: MsgPlayerLeft,
			ID:   client.ID(),
		})
	})
	if !removed {
		log.Printf("Connection closed: %s", client.ID())
		return
	}

	span.SetAttributes(attribute.String("plaza.player_name", player.Name))
	s.journal.Record(journal.Event{
		Kind:         journal.KindLeave,
		ConnectionID: client.ID(),
		PlayerName:   player.Name,
		OccurredAt:   s.now(),
	})
	log.Printf("Player %q left (%s). Current player count: %d", player.Name, client.ID(), s.players.Count())
}

func (s *Server) systemEntry(content string) ChatEntry {
	return ChatEntry{
		Sender:    SystemSender,
		Content:   content,
		Timestamp: s.now().UnixMilli(),
	}
}

func (s *Server) appendChat(entry ChatEntry) {
	s.chatLog.Append(entry, func(entry ChatEntry) {
		s.broadcast(ChatBroadcast{
			Type:    MsgChatMessage,
			Message: entry,
		})
	})
}

func (s *Server) broadcast(event any) {
	if _, err := s.broadcaster.Broadcast(event); err != nil {
		log.Printf("Broadcast failed: %v", err)
	}
}
