package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plaza-server/internal/server"
)

func init() {
	color.NoColor = true
}

func TestRender(t *testing.T) {
	stamp := time.UnixMilli(1_700_000_000_000).Format("15:04:05")

	tests := []struct {
		name  string
		frame string
		want  string
		shown bool
	}{
		{
			name:  "init with history",
			frame: `{"type":"init","id":"abc","players":{"abc":{"name":"Ann","position":{"x":0,"y":0.5,"z":0}}},"chatHistory":[{"sender":"System","content":"Bob has joined the game","timestamp":1700000000000}]}`,
			want:  "[INIT] you are abc, 1 players online\n[" + stamp + "] * Bob has joined the game",
			shown: true,
		},
		{
			name:  "joined",
			frame: `{"type":"player_joined","id":"abc","name":"Ann","position":{"x":0,"y":0.5,"z":0}}`,
			want:  "[JOINED] Ann (abc)",
			shown: true,
		},
		{
			name:  "left",
			frame: `{"type":"player_left","id":"abc"}`,
			want:  "[LEFT] abc",
			shown: true,
		},
		{
			name:  "player chat",
			frame: `{"type":"chat_message","message":{"sender":"Ann","content":"hi","timestamp":1700000000000,"playerId":"abc"}}`,
			want:  "[" + stamp + "] <Ann> hi",
			shown: true,
		},
		{
			name:  "positions hidden",
			frame: `{"type":"positions","players":{}}`,
			shown: false,
		},
		{
			name:  "chat without message",
			frame: `{"type":"chat_message"}`,
			shown: false,
		},
		{
			name:  "unknown type",
			frame: `{"type":"weather"}`,
			want:  `[WEATHER] {"type":"weather"}`,
			shown: true,
		},
	}

	d := NewDisplay(&bytes.Buffer{}, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, shown := d.Render([]byte(tt.frame))
			assert.Equal(t, tt.shown, shown)
			if tt.shown {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRender_PositionsWhenShowingMoves(t *testing.T) {
	d := NewDisplay(&bytes.Buffer{}, true)

	got, shown := d.Render([]byte(`{"type":"positions","players":{"b":{"name":"Bob","position":{"x":1,"y":0.5,"z":-2}},"a":{"name":"Ann","position":{"x":0,"y":0.5,"z":0}}}}`))

	require.True(t, shown)
	assert.Equal(t, "[POSITIONS] Ann@(0.0, 0.5, 0.0) Bob@(1.0, 0.5, -2.0)", got)
}

func TestRender_UndecodableFrame(t *testing.T) {
	d := NewDisplay(&bytes.Buffer{}, false)

	got, shown := d.Render([]byte("nope"))

	assert.True(t, shown)
	assert.True(t, strings.HasPrefix(got, "[ERROR] undecodable frame"))
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer
	d := NewDisplay(&out, false)

	d.Print([]byte(`{"type":"player_left","id":"abc"}`))
	d.Print([]byte(`{"type":"positions","players":{}}`))
	d.Status("connected to %s", "ws://x")

	assert.Equal(t, "[LEFT] abc\n[PROBE] connected to ws://x\n", out.String())
}

func TestStep(t *testing.T) {
	values := []float64{1, 0}
	i := 0
	rnd := func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}

	got := step(server.SpawnPosition, rnd, 0.5)

	assert.Equal(t, server.Position{X: 0.5, Y: 0.5, Z: -0.5}, got)
}

// syncBuffer is written by the probe's read loop while the test polls it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startServer runs a plaza server and returns its websocket URL.
func startServer(t *testing.T) string {
	t.Helper()
	cfg := server.Config{
		AllowedOrigins: []string{"*"},
		SendQueueSize:  128,
		WriteTimeout:   time.Second,
		MaxFrameBytes:  32768,
		MaxChatLength:  500,
	}
	s, httpServer := server.NewServer(cfg, nil)
	ts := httptest.NewServer(httpServer.Handler)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestRun_JoinsAndChats(t *testing.T) {
	url := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{
			URL:    url,
			Name:   "Probe",
			Wander: 10 * time.Millisecond,
		}, strings.NewReader("hello there\n\n"), out)
	}()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "<Probe> hello there")
	}, 5*time.Second, 20*time.Millisecond)

	output := out.String()
	assert.Contains(t, output, "[PROBE] connected to")
	assert.Contains(t, output, "[INIT] you are")
	assert.Contains(t, output, "* Probe has joined the game")
	assert.NotContains(t, output, "[POSITIONS]")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_DialFailure(t *testing.T) {
	err := Run(context.Background(), Config{URL: "ws://127.0.0.1:1/ws", Name: "x"}, strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
}

// A full chat history of maximum-length multi-byte messages makes an init
// frame well over 32 KiB.
func TestRun_ReadsLargeInit(t *testing.T) {
	url := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filler, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer filler.Close(websocket.StatusNormalClosure, "")
	filler.SetReadLimit(DefaultReadLimit)

	fill := func(msg server.ClientMessage) {
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		require.NoError(t, filler.Write(ctx, websocket.MessageText, data))
	}
	fill(server.ClientMessage{Type: server.MsgJoin, Name: "Filler"})
	long := strings.Repeat("é", 500)
	for i := 0; i < 50; i++ {
		fill(server.ClientMessage{Type: server.MsgChat, Content: long})
	}

	// Wait until the filler has seen all 50 of its chats come back.
	echoed := 0
	for echoed < 50 {
		_, data, err := filler.Read(ctx)
		require.NoError(t, err)
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == server.MsgChatMessage && f.Message != nil && f.Message.PlayerID != "" {
			echoed++
		}
	}

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{URL: url, Name: "Probe"}, strings.NewReader(""), out)
	}()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[INIT] you are")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "<Filler> "+long)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
