package server

import "sync"

// MaxHistory is the number of chat entries the log retains.
const MaxHistory = 50

// ChatLog is a bounded FIFO of chat entries. The oldest entry is evicted as
// soon as the cap is exceeded.
type ChatLog struct {
	entries []ChatEntry
	limit   int
	mu      sync.Mutex
}

func NewChatLog() *ChatLog {
	return newChatLogWithLimit(MaxHistory)
}

func newChatLogWithLimit(limit int) *ChatLog {
	return &ChatLog{
		entries: make([]ChatEntry, 0, limit),
		limit:   limit,
	}
}

// Append adds entry to the tail. publish, when set, runs under the log's
// lock so chat broadcasts keep insertion order.
func (cl *ChatLog) Append(entry ChatEntry, publish func(ChatEntry)) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.entries = append(cl.entries, entry)
	if overflow := len(cl.entries) - cl.limit; overflow > 0 {
		// Evict from the head in place.
		n := copy(cl.entries, cl.entries[overflow:])
		clear(cl.entries[n:])
		cl.entries = cl.entries[:n]
	}

	if publish != nil {
		publish(entry)
	}
}

// Snapshot returns the retained entries oldest first.
func (cl *ChatLog) Snapshot() []ChatEntry {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	history := make([]ChatEntry, len(cl.entries))
	copy(history, cl.entries)
	return history
}

func (cl *ChatLog) Len() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.entries)
}
