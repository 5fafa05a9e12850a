package server

// ============================================================================
// WORLD STATE
// ============================================================================
// tygo:generate
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// tygo:generate
type Player struct {
	Name     string   `json:"name"`
	Position Position `json:"position"`
}

// tygo:generate
type ChatEntry struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`           // epoch milliseconds, display only
	PlayerID  string `json:"playerId,omitempty"` // empty for system messages
}

// ============================================================================
// INIT (init, joining connection only)
// ============================================================================
// tygo:generate
type InitMessage struct {
	Type        string            `json:"type"`
	ID          string            `json:"id"`
	Players     map[string]Player `json:"players"`
	ChatHistory []ChatEntry       `json:"chatHistory"`
}

// ============================================================================
// PLAYER JOINED (player_joined broadcast)
// ============================================================================
// tygo:generate
type PlayerJoinedMessage struct {
	Type     string   `json:"type"`
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Position Position `json:"position"`
}

// ============================================================================
// PLAYER LEFT (player_left broadcast)
// ============================================================================
// tygo:generate
type PlayerLeftMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ============================================================================
// POSITIONS (positions broadcast)
// ============================================================================
// tygo:generate
type PositionsMessage struct {
	Type    string            `json:"type"`
	Players map[string]Player `json:"players"`
}

// ============================================================================
// CHAT (chat_message broadcast)
// ============================================================================
// tygo:generate
type ChatBroadcast struct {
	Type    string    `json:"type"`
	Message ChatEntry `json:"message"`
}
