package domain

// Wire tags for outbound frames.
const (
	TypeText       = "text"
	TypeAudioChunk = "audio_chunk"
	TypeVideoFrame = "video_frame"
	TypeControl    = "control"
	TypePing       = "ping"
)

// Wire tags for inbound frames intercepted by the transport client. Every
// other tag passes through to subscribers as an application message.
const (
	TypeSessionID    = "session_id"
	TypeAgentReady   = "agent_ready"
	TypeLegacyReady  = "ready"
	TypeTurnComplete = "turn_complete"
	TypeInterrupted  = "interrupted"
	TypeError        = "error"
)

// Application message tags forwarded by the transport and interpreted by the
// session orchestrator.
const (
	TypeUserInput = "user_input"
)

// Outbound is a frame sent to the agent. Binary payloads (audio, video) are
// base64-encoded into Data with Mime describing the encoding.
type Outbound struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Mime string `json:"mime,omitempty"`
}

// Inbound is a parsed frame received from the agent.
type Inbound struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Mime string `json:"mime,omitempty"`
}
