package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

var ErrDuplicateID = errors.New("DUPLICATE_ID: connection id already registered")

// ConnState is the lifecycle state of a single connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAwaitingJoin
	StateActive
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingJoin:
		return "awaiting_join"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("ConnState(%d)", int32(s))
}

// frameWriter is the outbound half of a websocket. *websocket.Conn satisfies it.
type frameWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	CloseNow() error
}

// Client is the handle the registry owns for one connection. Outbound frames
// go through a bounded queue drained by writePump, so a stalled peer only
// ever blocks its own goroutine.
type Client struct {
	id           string
	conn         frameWriter
	send         chan []byte
	writeTimeout time.Duration

	state     atomic.Int32
	dropped   atomic.Int64
	closeOnce sync.Once
}

func NewClient(id string, conn frameWriter, queueSize int, writeTimeout time.Duration) *Client {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Client{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// transition moves the client from one state to another. It fails if the
// client is not currently in from.
func (c *Client) transition(from, to ConnState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// markClosed forces the Closed state and reports the state it left.
func (c *Client) markClosed() ConnState {
	return ConnState(c.state.Swap(int32(StateClosed)))
}

// Ready reports whether the connection accepts outbound frames.
func (c *Client) Ready() bool {
	switch c.State() {
	case StateAwaitingJoin, StateActive:
		return true
	}
	return false
}

// Enqueue offers a frame to the outbound queue without blocking. A full
// queue drops the frame for this connection only.
func (c *Client) Enqueue(frame []byte) bool {
	if !c.Ready() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Dropped returns how many frames were discarded because the queue was full.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// writePump drains the outbound queue until ctx ends or a write fails.
func (c *Client) writePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-c.send:
			if err := c.write(ctx, frame); err != nil {
				return err
			}
		}
	}
}

func (c *Client) write(ctx context.Context, frame []byte) error {
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

// Close marks the client closed and closes the transport once.
func (c *Client) Close(code websocket.StatusCode, reason string) {
	c.markClosed()
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close(code, reason)
		}
	})
}

// CloseNow marks the client closed and drops the transport without waiting
// for the peer's close reply. It may run while Close is still waiting.
func (c *Client) CloseNow() {
	c.markClosed()
	if c.conn != nil {
		_ = c.conn.CloseNow()
	}
}

// ConnectionManager is the session registry: connection id to live handle.
type ConnectionManager struct {
	connections map[string]*Client
	mu          sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Client),
	}
}

func (cm *ConnectionManager) Register(client *Client) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[client.ID()]; exists {
		return fmt.Errorf("register %s: %w", client.ID(), ErrDuplicateID)
	}
	cm.connections[client.ID()] = client
	return nil
}

// Unregister removes a connection. Removing an unknown id is a no-op.
func (cm *ConnectionManager) Unregister(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, id)
}

// GetConnection returns the handle for id, or nil.
func (cm *ConnectionManager) GetConnection(id string) *Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connections[id]
}

// ForEachReady calls fn for every connection that is open for writes.
// Connections still connecting or already closed are skipped.
func (cm *ConnectionManager) ForEachReady(fn func(*Client)) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, client := range cm.connections {
		if !client.Ready() {
			continue
		}
		fn(client)
	}
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

func (cm *ConnectionManager) ReadyCount() int {
	count := 0
	cm.ForEachReady(func(*Client) { count++ })
	return count
}

// DroppedFrames sums the outbound frames dropped across live connections.
func (cm *ConnectionManager) DroppedFrames() int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var total int64
	for _, client := range cm.connections {
		total += client.Dropped()
	}
	return total
}

// CloseAll closes every registered transport concurrently, so a peer that
// never answers the close handshake only holds up its own close. If ctx
// ends first, every transport is dropped with CloseNow in the background
// and ctx's error is returned. Each connection's handler then runs its own
// cleanup.
func (cm *ConnectionManager) CloseAll(ctx context.Context, code websocket.StatusCode, reason string) (int, error) {
	cm.mu.RLock()
	clients := make([]*Client, 0, len(cm.connections))
	for _, client := range cm.connections {
		clients = append(clients, client)
	}
	cm.mu.RUnlock()

	var wg sync.WaitGroup
	for _, client := range clients {
		wg.Add(1)
		go func(client *Client) {
			defer wg.Done()
			client.Close(code, reason)
		}(client)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return len(clients), nil
	case <-ctx.Done():
		for _, client := range clients {
			go client.CloseNow()
		}
		return len(clients), ctx.Err()
	}
}
