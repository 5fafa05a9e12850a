package server

const (
	// Inbound
	MsgJoin     = "join"
	MsgPosition = "position"
	MsgChat     = "chat"

	// Outbound
	MsgInit         = "init"
	MsgPlayerJoined = "player_joined"
	MsgPlayerLeft   = "player_left"
	MsgPositions    = "positions"
	MsgChatMessage  = "chat_message"
)

// ClientMessage is the union of every inbound frame shape. Fields that do
// not belong to Type are ignored.
type ClientMessage struct {
	Type     string    `json:"type"`
	Name     string    `json:"name,omitempty"`
	Position *Position `json:"position,omitempty"`
	Content  string    `json:"content,omitempty"`
}
