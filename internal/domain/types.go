package domain

import "time"

// ConnectionState models the realtime channel lifecycle. Exactly one state is
// active at a time and transitions are driven only by the transport client.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateInitializing ConnectionState = "initializing"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
	StateDisconnected ConnectionState = "disconnected"
)

// Sender identifies who produced a transcript entry.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// EntryKind distinguishes plain messages from artifact uploads and system events.
type EntryKind string

const (
	EntryMessage        EntryKind = "message"
	EntryArtifactUpload EntryKind = "artifact_upload"
	EntrySystemEvent    EntryKind = "system_event"
)

// TranscriptEntry is one user-visible line of the chat transcript, live or
// historical. Entries are append-only within a session; older history pages
// are prepended as a block.
type TranscriptEntry struct {
	ID          string    `json:"id"`
	Sender      Sender    `json:"sender"`
	Text        string    `json:"text"`
	IsMarkdown  bool      `json:"is_markdown,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        EntryKind `json:"kind"`
	ArtifactURL string    `json:"artifact_url,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	Streaming   bool      `json:"streaming,omitempty"`
}

// VideoMode selects the video capture source. Camera and screen share are
// mutually exclusive.
type VideoMode string

const (
	VideoModeCamera VideoMode = "camera"
	VideoModeScreen VideoMode = "screen"
)

// VideoFrame is one captured, compressed frame ready for transmission.
type VideoFrame struct {
	Data     string    `json:"data"`
	Mode     VideoMode `json:"mode"`
	MimeType string    `json:"mime_type"`
}

// ErrorCategory is the user-facing error taxonomy produced by the classifier.
type ErrorCategory string

const (
	ErrNetwork             ErrorCategory = "network_error"
	ErrPermissionDenied    ErrorCategory = "permission_denied"
	ErrDeviceNotFound      ErrorCategory = "device_not_found"
	ErrSessionExpired      ErrorCategory = "session_expired"
	ErrRateLimited         ErrorCategory = "rate_limited"
	ErrInvalidMessage      ErrorCategory = "invalid_message"
	ErrBrowserIncompatible ErrorCategory = "browser_incompatibility"
)

// ClassifiedError is a low-level failure translated for presentation.
// Retryable tells the consumer whether offering a manual retry makes sense.
type ClassifiedError struct {
	Category    ErrorCategory `json:"category"`
	UserMessage string        `json:"user_message"`
	Retryable   bool          `json:"retryable"`
	Context     string        `json:"context,omitempty"`
	Status      int           `json:"status,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ArtifactMeta describes one version of a session artifact.
type ArtifactMeta struct {
	Version     string `json:"version"`
	Filename    string `json:"filename"`
	MimeType    string `json:"mime_type"`
	SizeBytes   int64  `json:"size_bytes"`
	Caption     string `json:"caption,omitempty"`
	AutoSummary string `json:"auto_summary,omitempty"`
	UploadedAt  string `json:"uploaded_at,omitempty"`
}

// ArtifactContent is artifact metadata plus its base64-encoded payload.
type ArtifactContent struct {
	ArtifactMeta
	Base64Content string `json:"base64_content"`
}
