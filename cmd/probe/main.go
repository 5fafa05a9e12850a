// Plaza probe - joins a running server from the terminal.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"plaza-server/internal/probe"
)

var (
	serverURL = flag.String("url", "ws://localhost:8000/ws", "Server websocket URL")
	name      = flag.String("name", "Probe", "Player name to join with")
	wander    = flag.Duration("wander", 0, "Send a random position update at this interval (0 disables)")
	showMoves = flag.Bool("moves", false, "Print positions broadcasts")
	noColor   = flag.Bool("no-color", false, "Disable colored output")
	readLimit = flag.Int64("read-limit", probe.DefaultReadLimit, "Largest server frame to accept, in bytes")
)

func main() {
	flag.Parse()
	if *noColor {
		color.NoColor = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := probe.Run(ctx, probe.Config{
		URL:       *serverURL,
		Name:      *name,
		Wander:    *wander,
		ShowMoves: *showMoves,
		ReadLimit: *readLimit,
	}, os.Stdin, color.Output)
	if err != nil {
		log.Fatalf("probe: %v", err)
	}
}
