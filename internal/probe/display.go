// Package probe is a terminal client for poking at a running plaza server.
package probe

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"plaza-server/internal/server"
)

// Frame is the union of every outbound server message.
type Frame struct {
	Type        string                   `json:"type"`
	ID          string                   `json:"id,omitempty"`
	Name        string                   `json:"name,omitempty"`
	Position    *server.Position         `json:"position,omitempty"`
	Players     map[string]server.Player `json:"players,omitempty"`
	ChatHistory []server.ChatEntry       `json:"chatHistory,omitempty"`
	Message     *server.ChatEntry        `json:"message,omitempty"`
}

type Display struct {
	out         io.Writer
	serverColor *color.Color
	joinColor   *color.Color
	leaveColor  *color.Color
	chatColor   *color.Color
	systemColor *color.Color
	moveColor   *color.Color
	errorColor  *color.Color
	showMoves   bool
}

// NewDisplay creates a display writing to out. Position broadcasts are only
// printed when showMoves is set.
func NewDisplay(out io.Writer, showMoves bool) *Display {
	return &Display{
		out:         out,
		serverColor: color.New(color.FgCyan, color.Bold),
		joinColor:   color.New(color.FgGreen, color.Bold),
		leaveColor:  color.New(color.FgRed),
		chatColor:   color.New(color.FgWhite),
		systemColor: color.New(color.FgYellow),
		moveColor:   color.New(color.FgBlue),
		errorColor:  color.New(color.FgRed, color.Bold),
		showMoves:   showMoves,
	}
}

// Render formats a raw frame. The second return is false for frames that
// should not be printed.
func (d *Display) Render(data []byte) (string, bool) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return d.errorColor.Sprintf("[ERROR] undecodable frame: %v", err), true
	}

	switch f.Type {
	case server.MsgInit:
		var b strings.Builder
		b.WriteString(d.serverColor.Sprintf("[INIT] you are %s, %d players online", f.ID, len(f.Players)))
		for _, entry := range f.ChatHistory {
			b.WriteString("\n")
			b.WriteString(d.renderChat(entry))
		}
		return b.String(), true

	case server.MsgPlayerJoined:
		return d.joinColor.Sprintf("[JOINED] %s (%s)", f.Name, f.ID), true

	case server.MsgPlayerLeft:
		return d.leaveColor.Sprintf("[LEFT] %s", f.ID), true

	case server.MsgPositions:
		if !d.showMoves {
			return "", false
		}
		return d.moveColor.Sprintf("[POSITIONS] %s", formatPlayers(f.Players)), true

	case server.MsgChatMessage:
		if f.Message == nil {
			return "", false
		}
		return d.renderChat(*f.Message), true
	}

	return d.serverColor.Sprintf("[%s] %s", strings.ToUpper(f.Type), string(data)), true
}

func (d *Display) renderChat(entry server.ChatEntry) string {
	stamp := time.UnixMilli(entry.Timestamp).Format("15:04:05")
	if entry.PlayerID == "" {
		return d.systemColor.Sprintf("[%s] * %s", stamp, entry.Content)
	}
	return d.chatColor.Sprintf("[%s] <%s> %s", stamp, entry.Sender, entry.Content)
}

// Print renders and writes a frame.
func (d *Display) Print(data []byte) {
	if line, ok := d.Render(data); ok {
		fmt.Fprintln(d.out, line)
	}
}

func (d *Display) Status(format string, args ...any) {
	d.serverColor.Fprintf(d.out, "[PROBE] "+format+"\n", args...)
}

func formatPlayers(players map[string]server.Player) string {
	ids := make([]string, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		p := players[id]
		parts = append(parts, fmt.Sprintf("%s@(%.1f, %.1f, %.1f)", p.Name, p.Position.X, p.Position.Y, p.Position.Z))
	}
	return strings.Join(parts, " ")
}
