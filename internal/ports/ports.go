package ports

import (
	"context"
	"io"

	"sanskara/internal/domain"
)

// Socket is the minimal surface the transport client needs from an
// underlying websocket connection.
type Socket interface {
	ReadMessage() (messageType int, payload []byte, err error)
	WriteMessage(messageType int, payload []byte) error
	Close() error
}

// Dialer opens sockets. The production implementation wraps gorilla's
// websocket dialer; tests inject scripted fakes.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// ConnectionHandlers is the observer set a consumer binds to a chat
// connection. Each connection instance owns its own handler set; there is no
// shared registry. Nil handlers are skipped.
type ConnectionHandlers struct {
	StateChanged func(state domain.ConnectionState)
	SessionID    func(id string)
	AgentReady   func()
	TurnComplete func()
	Interrupted  func()
	ErrorPayload func(message string)
	Message      func(msg domain.Inbound)
}

// ChatConnection is the persistent duplex channel to the backend agent.
type ChatConnection interface {
	// Bind registers the handler set. It must be called before Connect.
	Bind(h ConnectionHandlers)
	Connect(ctx context.Context) error
	// Reconnect resets the retry budget and connects again. It is the manual
	// escape hatch out of the failed state.
	Reconnect(ctx context.Context) error
	// Send fails immediately when the socket is not open; nothing is queued.
	Send(msg domain.Outbound) error
	Close()
	State() domain.ConnectionState
	SessionID() string
}

// AudioCallbacks receive base64-encoded audio from a recorder. OnChunk fires
// as data becomes available; OnComplete fires once on stop with the full
// concatenated recording.
type AudioCallbacks struct {
	OnChunk    func(b64 string)
	OnComplete func(b64 string)
}

// AudioRecorder acquires microphone audio and streams it to callbacks.
type AudioRecorder interface {
	CheckPermission(ctx context.Context) bool
	Start(ctx context.Context, cb AudioCallbacks) error
	// Stop is idempotent; stopping an idle recorder is a no-op.
	Stop() error
	Recording() bool
}

// VideoCapturer grabs frames from a camera or the screen at a fixed cadence.
// Only one mode may be active at a time.
type VideoCapturer interface {
	CheckPermission(ctx context.Context, mode domain.VideoMode) bool
	Start(ctx context.Context, mode domain.VideoMode, onFrame func(domain.VideoFrame)) error
	Stop() error
	ActiveMode() (domain.VideoMode, bool)
}

// HistoryStore serves paginated history pages, normally through a cache.
type HistoryStore interface {
	Get(ctx context.Context, sessionID string, q domain.HistoryQuery) (domain.HistoryPage, error)
	Invalidate(sessionID string)
}

// ArtifactStore uploads and retrieves session artifacts.
type ArtifactStore interface {
	Upload(ctx context.Context, userID, sessionID, filename string, data io.Reader, caption string) (domain.ArtifactMeta, error)
	List(ctx context.Context, userID, sessionID string) ([]domain.ArtifactMeta, error)
	Content(ctx context.Context, userID, sessionID, version string) (domain.ArtifactContent, error)
}

// EventSink emits orchestrator state and events to the presentation layer.
type EventSink interface {
	ConnectionStateChanged(state domain.ConnectionState)
	AgentReady()
	TranscriptUpdated(entries []domain.TranscriptEntry)
	SessionError(err domain.ClassifiedError)
}
