package server

import (
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	DefaultPlayerName = "Player"
	MaxNameLength     = 20
)

// SpawnPosition is where every player starts.
var SpawnPosition = Position{X: 0, Y: 0.5, Z: 0}

// PlayerStore is the source of truth for who is where. Callers pass a
// publish function to each mutation; it runs before the lock is released so
// the events it emits are ordered exactly like the mutations.
type PlayerStore struct {
	players map[string]*Player // connectionID -> record
	mu      sync.Mutex
}

func NewPlayerStore() *PlayerStore {
	return &PlayerStore{
		players: make(map[string]*Player),
	}
}

// NormalizeName trims the requested name, caps its length and substitutes
// the default for blanks.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultPlayerName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameLength]))
	}
	return name
}

// Join creates a record for id and returns a snapshot of every player,
// including the new one. It returns false without touching the store if id
// already joined.
func (ps *PlayerStore) Join(id, name string, publish func(Player, map[string]Player)) (map[string]Player, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.players[id]; exists {
		return nil, false
	}

	player := &Player{
		Name:     NormalizeName(name),
		Position: SpawnPosition,
	}
	ps.players[id] = player

	snapshot := ps.snapshotLocked()
	if publish != nil {
		publish(*player, snapshot)
	}
	return snapshot, true
}

// UpdatePosition overwrites the position for id. Unknown ids are ignored.
func (ps *PlayerStore) UpdatePosition(id string, position Position, publish func(map[string]Player)) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	player, exists := ps.players[id]
	if !exists {
		return false
	}
	player.Position = position

	if publish != nil {
		publish(ps.snapshotLocked())
	}
	return true
}

// Leave deletes and returns the record for id.
func (ps *PlayerStore) Leave(id string, publish func(Player)) (Player, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	player, exists := ps.players[id]
	if !exists {
		return Player{}, false
	}
	delete(ps.players, id)

	if publish != nil {
		publish(*player)
	}
	return *player, true
}

func (ps *PlayerStore) Get(id string) (Player, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	player, exists := ps.players[id]
	if !exists {
		return Player{}, false
	}
	return *player, true
}

// SnapshotAll returns a point-in-time copy of every record.
func (ps *PlayerStore) SnapshotAll() map[string]Player {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.snapshotLocked()
}

func (ps *PlayerStore) Count() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.players)
}

func (ps *PlayerStore) snapshotLocked() map[string]Player {
	snapshot := make(map[string]Player, len(ps.players))
	for id, player := range ps.players {
		snapshot[id] = *player
	}
	return snapshot
}
