package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := NewApp(os.Stdout)
	app.startup(ctx)
	defer app.shutdown()

	fmt.Println("sanskara chat. /help for commands")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handle(app, strings.TrimSpace(line)); quit {
				return
			}
		}
	}
}

func handle(app *App, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		report(app.Send(line))
		return false
	}

	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "/help":
		fmt.Print(helpText)
	case "/record":
		report(app.ToggleRecording())
	case "/stop":
		report(app.StopRecording())
	case "/camera":
		report(app.ToggleCamera())
	case "/screen":
		report(app.ToggleScreenShare())
	case "/history":
		report(app.LoadHistory())
	case "/upload":
		path, caption, _ := strings.Cut(strings.TrimSpace(rest), " ")
		if path == "" {
			fmt.Println("usage: /upload <path> [caption]")
			break
		}
		report(app.Upload(path, strings.TrimSpace(caption)))
	case "/interrupt":
		report(app.Interrupt())
	case "/reconnect":
		report(app.Reconnect())
	case "/quit", "/exit":
		return true
	default:
		fmt.Printf("unknown command %s. /help for commands\n", cmd)
	}
	return false
}

func report(err error) {
	if err != nil {
		fmt.Printf("! %v\n", err)
	}
}

const helpText = `commands:
  <text>            send a message
  /record           start voice input
  /stop             finish voice input
  /camera           toggle camera sharing
  /screen           toggle screen sharing
  /history          load older messages
  /upload <path> [caption]
  /interrupt        stop the agent's current turn
  /reconnect        retry after a failed connection
  /quit             exit
`
