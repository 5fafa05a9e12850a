package server

import (
	"encoding/json"
	"fmt"
	"log"
)

// Broadcaster serializes an outbound event once and offers the same bytes
// to every ready connection.
type Broadcaster struct {
	connections *ConnectionManager
}

func NewBroadcaster(connections *ConnectionManager) *Broadcaster {
	return &Broadcaster{connections: connections}
}

// Broadcast returns how many connections accepted the frame. Connections
// whose queue is full miss this frame; nobody else is affected.
func (b *Broadcaster) Broadcast(event any) (int, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("marshal broadcast: %w", err)
	}

	delivered := 0
	b.connections.ForEachReady(func(client *Client) {
		if client.Enqueue(data) {
			delivered++
			return
		}
		log.Printf("Dropped frame for %s: outbound queue full", client.ID())
	})
	return delivered, nil
}

// SendTo queues event for a single connection.
func (b *Broadcaster) SendTo(client *Client, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if !client.Enqueue(data) {
		return fmt.Errorf("send to %s: connection not ready or queue full", client.ID())
	}
	return nil
}
