package probe

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/coder/websocket"

	"plaza-server/internal/server"
)

// DefaultReadLimit bounds a single inbound frame. A full init carries 50 chat
// entries of up to MAX_CHAT_LENGTH runes plus every player record, which is
// far past the websocket library's 32 KiB default.
const DefaultReadLimit = 4 << 20

type Config struct {
	URL       string
	Name      string
	Wander    time.Duration // interval between random-walk moves, 0 disables
	ShowMoves bool
	ReadLimit int64 // max inbound frame size in bytes, 0 means DefaultReadLimit
}

// Run joins the server at cfg.URL, prints every frame it receives and sends
// each line read from in as a chat message. It returns when ctx ends or the
// server closes the connection.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	display := NewDisplay(out, cfg.ShowMoves)

	conn, _, err := websocket.Dial(ctx, cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "probe exiting")

	readLimit := cfg.ReadLimit
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	conn.SetReadLimit(readLimit)
	display.Status("connected to %s", cfg.URL)

	if err := send(ctx, conn, server.ClientMessage{Type: server.MsgJoin, Name: cfg.Name}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 3)
	go func() { errc <- readLoop(ctx, conn, display) }()
	go func() { errc <- chatLoop(ctx, conn, in) }()
	if cfg.Wander > 0 {
		go func() { errc <- wander(ctx, conn, cfg.Wander) }()
	}

	err = <-errc
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return err
}

func send(ctx context.Context, conn *websocket.Conn, msg server.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn, display *Display) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				display.Status("server closed the connection: %v", err)
				return nil
			}
			return err
		}
		display.Print(data)
	}
}

func chatLoop(ctx context.Context, conn *websocket.Conn, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := send(ctx, conn, server.ClientMessage{Type: server.MsgChat, Content: line}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	// Input exhausted; keep listening until told to stop.
	<-ctx.Done()
	return ctx.Err()
}

// wander random-walks around the spawn point.
func wander(ctx context.Context, conn *websocket.Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pos := server.SpawnPosition
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pos = step(pos, rand.Float64, 0.5)
			if err := send(ctx, conn, server.ClientMessage{Type: server.MsgPosition, Position: &pos}); err != nil {
				return err
			}
		}
	}
}

// step moves pos by up to size along x and z, using rnd in [0, 1).
func step(pos server.Position, rnd func() float64, size float64) server.Position {
	pos.X += (rnd()*2 - 1) * size
	pos.Z += (rnd()*2 - 1) * size
	return pos
}
