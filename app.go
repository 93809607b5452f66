package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"sanskara/internal/bootstrap"
	"sanskara/internal/config"
	"sanskara/internal/domain"
	"sanskara/internal/session"
)

// App is the terminal application root. It implements ports.EventSink and
// renders session events as lines on its writer.
type App struct {
	ctx context.Context
	out io.Writer

	orchestrator *session.Orchestrator
	cfg          config.Config
	bootErr      error

	mu       sync.Mutex
	rendered int
}

func NewApp(out io.Writer) *App {
	if out == nil {
		out = os.Stdout
	}
	return &App{out: out}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		fmt.Fprintf(a.out, "! startup failed: %v\n", err)
		return
	}
	a.cfg = services.Config
	a.orchestrator = services.Orchestrator

	if err := a.orchestrator.Start(ctx); err != nil {
		fmt.Fprintf(a.out, "! could not reach %s: %v\n", a.cfg.WSURL, err)
	}
}

func (a *App) shutdown() {
	if a.orchestrator != nil {
		a.orchestrator.Close()
	}
}

// Send posts one text message to the agent.
func (a *App) Send(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orchestrator.SendText(text)
}

// ToggleRecording starts microphone capture, or stops it when running.
func (a *App) ToggleRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	state := a.orchestrator.ConnectionState()
	if state != domain.StateConnected && state != domain.StateInitializing {
		return fmt.Errorf("cannot record while %s", state)
	}
	if err := a.orchestrator.StartRecording(a.ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "* recording (use /stop to finish)")
	return nil
}

func (a *App) StopRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orchestrator.StopRecording()
}

func (a *App) ToggleCamera() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orchestrator.ToggleCamera(a.ctx)
}

func (a *App) ToggleScreenShare() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orchestrator.ToggleScreenShare(a.ctx)
}

// LoadHistory pulls the next page of older messages into the transcript.
func (a *App) LoadHistory() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if !a.orchestrator.HasOlder() {
		fmt.Fprintln(a.out, "* no older messages")
		return nil
	}
	a.resetRender()
	return a.orchestrator.LoadOlder(a.ctx)
}

// Upload stores a local file as a session artifact.
func (a *App) Upload(path, caption string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	meta, err := a.orchestrator.UploadArtifact(a.ctx, filepath.Base(path), f, caption)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "* uploaded %s (version %s)\n", meta.Filename, meta.Version)
	return nil
}

func (a *App) Interrupt() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orchestrator.Interrupt()
}

// Reconnect manually restarts the channel, e.g. after it has failed.
func (a *App) Reconnect() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orchestrator.Reconnect(a.ctx)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.orchestrator == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) resetRender() {
	a.mu.Lock()
	a.rendered = 0
	a.mu.Unlock()
}

// --- ports.EventSink ---

func (a *App) ConnectionStateChanged(state domain.ConnectionState) {
	fmt.Fprintf(a.out, "* %s\n", stateMessage(state))
}

func (a *App) AgentReady() {
	fmt.Fprintln(a.out, "* agent ready")
}

// TranscriptUpdated renders entries not shown yet. A streaming entry is
// re-rendered once finished, so partial text never hides the final line.
func (a *App) TranscriptUpdated(entries []domain.TranscriptEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rendered > len(entries) {
		a.rendered = len(entries)
	}
	for _, e := range entries[a.rendered:] {
		if e.Streaming {
			break
		}
		fmt.Fprintf(a.out, "%s %s\n", senderLabel(e.Sender), e.Text)
		a.rendered++
	}
}

func (a *App) SessionError(rec domain.ClassifiedError) {
	suffix := ""
	if rec.Retryable {
		suffix = " (will retry)"
	}
	fmt.Fprintf(a.out, "! %s%s\n", rec.UserMessage, suffix)
}

func stateMessage(state domain.ConnectionState) string {
	switch state {
	case domain.StateConnecting:
		return "connecting..."
	case domain.StateInitializing:
		return "connected, waiting for the agent"
	case domain.StateConnected:
		return "connected"
	case domain.StateReconnecting:
		return "connection lost, reconnecting..."
	case domain.StateFailed:
		return "connection failed; use /reconnect to try again"
	case domain.StateDisconnected:
		return "disconnected"
	default:
		return string(state)
	}
}

func senderLabel(sender domain.Sender) string {
	switch sender {
	case domain.SenderUser:
		return "you>"
	case domain.SenderAssistant:
		return "agent>"
	case domain.SenderSystem:
		return "sys>"
	default:
		return ">"
	}
}
