// Package session composes the realtime channel, capture adapters, history
// cache, and artifact store into one chat session with an append-only
// transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sanskara/internal/classify"
	"sanskara/internal/domain"
	"sanskara/internal/ports"
)

const recordingPlaceholder = "..."

// Control payloads understood by the agent.
const (
	controlInterrupt = "interrupt"
	controlCameraOn  = "camera_on"
	controlCameraOff = "camera_off"
	controlScreenOn  = "screen_on"
	controlScreenOff = "screen_off"
)

// statusCoder is implemented by the REST clients' error types.
type statusCoder interface {
	StatusCode() int
}

// Deps are the collaborators an Orchestrator composes. All are required
// except Log.
type Deps struct {
	Conn       ports.ChatConnection
	Audio      ports.AudioRecorder
	Video      ports.VideoCapturer
	History    ports.HistoryStore
	Artifacts  ports.ArtifactStore
	Classifier *classify.Classifier
	Sink       ports.EventSink
	Log        *zap.Logger

	UserID   string
	PageSize int
}

// Orchestrator drives one chat session. The transcript is append-only for
// live entries; older history pages are prepended as a block.
type Orchestrator struct {
	conn       ports.ChatConnection
	audio      ports.AudioRecorder
	video      ports.VideoCapturer
	history    ports.HistoryStore
	artifacts  ports.ArtifactStore
	classifier *classify.Classifier
	sink       ports.EventSink
	log        *zap.Logger

	userID   string
	pageSize int

	mu            sync.Mutex
	entries       []domain.TranscriptEntry
	seen          map[string]struct{}
	streamingID   string
	placeholderID string
	historyOffset int
	historyTotal  int
	loadingOlder  bool
	everReady     bool
}

func New(d Deps) *Orchestrator {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.PageSize <= 0 {
		d.PageSize = 20
	}
	o := &Orchestrator{
		conn:       d.Conn,
		audio:      d.Audio,
		video:      d.Video,
		history:    d.History,
		artifacts:  d.Artifacts,
		classifier: d.Classifier,
		sink:       d.Sink,
		log:        d.Log,
		userID:     d.UserID,
		pageSize:   d.PageSize,
		seen:       make(map[string]struct{}),

		// Unknown until the first page reports total_count.
		historyTotal: -1,
	}
	o.conn.Bind(ports.ConnectionHandlers{
		StateChanged: o.onStateChanged,
		AgentReady:   o.onAgentReady,
		TurnComplete: o.onTurnComplete,
		Interrupted:  o.onInterrupted,
		ErrorPayload: o.onErrorPayload,
		Message:      o.onMessage,
	})
	return o
}

// Start opens the realtime channel.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.conn.Connect(ctx); err != nil {
		o.sink.SessionError(o.classifier.HandleConnection(err))
		return err
	}
	return nil
}

// Reconnect manually restarts the channel after it has failed.
func (o *Orchestrator) Reconnect(ctx context.Context) error {
	if err := o.conn.Reconnect(ctx); err != nil {
		o.sink.SessionError(o.classifier.HandleConnection(err))
		return err
	}
	return nil
}

// Close tears the session down: captures stop, the channel closes.
func (o *Orchestrator) Close() {
	_ = o.audio.Stop()
	_ = o.video.Stop()
	o.conn.Close()
}

// ConnectionState reports the realtime channel state.
func (o *Orchestrator) ConnectionState() domain.ConnectionState {
	return o.conn.State()
}

// Transcript returns a copy of the current transcript, oldest entry first.
func (o *Orchestrator) Transcript() []domain.TranscriptEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.TranscriptEntry(nil), o.entries...)
}

// SendText appends a user entry and sends the text to the agent.
func (o *Orchestrator) SendText(text string) error {
	if text == "" {
		return errors.New("empty message")
	}

	o.mu.Lock()
	o.appendLocked(domain.TranscriptEntry{
		ID:        uuid.NewString(),
		Sender:    domain.SenderUser,
		Text:      text,
		Timestamp: time.Now(),
		Kind:      domain.EntryMessage,
	})
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	o.sink.TranscriptUpdated(snapshot)

	if err := o.conn.Send(domain.Outbound{Type: domain.TypeText, Data: text}); err != nil {
		o.sink.SessionError(o.classifier.HandleConnection(err))
		return err
	}
	return nil
}

// StartRecording begins microphone capture. A placeholder user entry marks
// the in-flight recording until the backend echoes the transcription.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	if o.audio.Recording() {
		return nil
	}

	placeholderID := uuid.NewString()
	o.mu.Lock()
	o.placeholderID = placeholderID
	o.appendLocked(domain.TranscriptEntry{
		ID:        placeholderID,
		Sender:    domain.SenderUser,
		Text:      recordingPlaceholder,
		Timestamp: time.Now(),
		Kind:      domain.EntryMessage,
		Streaming: true,
	})
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	o.sink.TranscriptUpdated(snapshot)

	err := o.audio.Start(ctx, ports.AudioCallbacks{
		OnChunk: func(b64 string) {
			if err := o.conn.Send(domain.Outbound{Type: domain.TypeAudioChunk, Data: b64, Mime: "audio/pcm"}); err != nil {
				o.log.Warn("dropping audio chunk", zap.Error(err))
			}
		},
		OnComplete: func(b64 string) {
			o.log.Debug("recording flushed", zap.Int("b64_len", len(b64)))
		},
	})
	if err != nil {
		o.removePlaceholder()
		o.sink.SessionError(o.classifier.HandleMedia(err, "microphone"))
		return err
	}
	return nil
}

// StopRecording ends microphone capture. The placeholder is dropped when the
// backend never filled it with a transcription.
func (o *Orchestrator) StopRecording() error {
	err := o.audio.Stop()
	o.removePlaceholder()
	if err != nil {
		o.sink.SessionError(o.classifier.HandleMedia(err, "microphone"))
	}
	return err
}

// ToggleCamera starts camera capture, or stops it when already running.
// Starting the camera ends an active screen share first.
func (o *Orchestrator) ToggleCamera(ctx context.Context) error {
	return o.toggleVideo(ctx, domain.VideoModeCamera)
}

// ToggleScreenShare starts screen capture, or stops it when already running.
// Starting a screen share ends active camera capture first.
func (o *Orchestrator) ToggleScreenShare(ctx context.Context) error {
	return o.toggleVideo(ctx, domain.VideoModeScreen)
}

func (o *Orchestrator) toggleVideo(ctx context.Context, mode domain.VideoMode) error {
	active, running := o.video.ActiveMode()
	if running {
		if err := o.video.Stop(); err != nil {
			o.sink.SessionError(o.classifier.HandleMedia(err, mediaName(active)))
			return err
		}
		o.sendControl(offControl(active))
		if active == mode {
			return nil
		}
	}

	err := o.video.Start(ctx, mode, func(f domain.VideoFrame) {
		if err := o.conn.Send(domain.Outbound{Type: domain.TypeVideoFrame, Data: f.Data, Mime: f.MimeType}); err != nil {
			o.log.Warn("dropping video frame", zap.String("mode", string(f.Mode)), zap.Error(err))
		}
	})
	if err != nil {
		o.sink.SessionError(o.classifier.HandleMedia(err, mediaName(mode)))
		return err
	}
	o.sendControl(onControl(mode))
	return nil
}

// Interrupt asks the agent to stop the current turn and closes any streaming
// transcript entry.
func (o *Orchestrator) Interrupt() error {
	o.finalizeStreaming()
	if err := o.conn.Send(domain.Outbound{Type: domain.TypeControl, Data: controlInterrupt}); err != nil {
		o.sink.SessionError(o.classifier.HandleConnection(err))
		return err
	}
	return nil
}

// UploadArtifact stores a file against the session and records the upload in
// the transcript.
func (o *Orchestrator) UploadArtifact(ctx context.Context, filename string, data io.Reader, caption string) (domain.ArtifactMeta, error) {
	sessionID := o.conn.SessionID()
	if sessionID == "" {
		return domain.ArtifactMeta{}, errors.New("no active session")
	}

	meta, err := o.artifacts.Upload(ctx, o.userID, sessionID, filename, data, caption)
	if err != nil {
		o.classifyRequestErr(err)
		return domain.ArtifactMeta{}, err
	}

	text := caption
	if text == "" {
		text = filename
	}
	o.mu.Lock()
	o.appendLocked(domain.TranscriptEntry{
		ID:          uuid.NewString(),
		Sender:      domain.SenderUser,
		Text:        fmt.Sprintf("Uploaded %s", text),
		Timestamp:   time.Now(),
		Kind:        domain.EntryArtifactUpload,
		ArtifactURL: meta.Filename,
	})
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	o.sink.TranscriptUpdated(snapshot)
	return meta, nil
}

// ListArtifacts returns the session's stored artifact versions.
func (o *Orchestrator) ListArtifacts(ctx context.Context) ([]domain.ArtifactMeta, error) {
	sessionID := o.conn.SessionID()
	if sessionID == "" {
		return nil, errors.New("no active session")
	}
	list, err := o.artifacts.List(ctx, o.userID, sessionID)
	if err != nil {
		o.classifyRequestErr(err)
	}
	return list, err
}

// LoadOlder prepends the next page of session history to the transcript.
// When every recorded event is already loaded it is a no-op.
func (o *Orchestrator) LoadOlder(ctx context.Context) error {
	sessionID := o.conn.SessionID()
	if sessionID == "" {
		return errors.New("no active session")
	}

	o.mu.Lock()
	if o.loadingOlder {
		o.mu.Unlock()
		return nil
	}
	if o.historyTotal >= 0 && o.historyOffset >= o.historyTotal {
		o.mu.Unlock()
		return nil
	}
	o.loadingOlder = true
	offset := o.historyOffset
	o.mu.Unlock()

	page, err := o.history.Get(ctx, sessionID, domain.HistoryQuery{Offset: offset, Limit: o.pageSize})

	o.mu.Lock()
	o.loadingOlder = false
	if err != nil {
		o.mu.Unlock()
		o.classifyRequestErr(err)
		return err
	}

	o.historyOffset = offset + o.pageSize
	o.historyTotal = page.TotalCount

	// The endpoint returns newest-first; flip to oldest-first before
	// prepending so page-internal order reads naturally.
	var block []domain.TranscriptEntry
	for i := len(page.History) - 1; i >= 0; i-- {
		evt := page.History[i]
		if evt.EventID != "" {
			if _, dup := o.seen[evt.EventID]; dup {
				continue
			}
			o.seen[evt.EventID] = struct{}{}
		}
		block = append(block, historyEntry(evt))
	}
	o.entries = append(block, o.entries...)
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	o.sink.TranscriptUpdated(snapshot)
	return nil
}

// HasOlder reports whether the backend holds history pages not yet loaded.
func (o *Orchestrator) HasOlder() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.historyTotal < 0 || o.historyOffset < o.historyTotal
}

// --- connection handlers ---

func (o *Orchestrator) onStateChanged(state domain.ConnectionState) {
	o.sink.ConnectionStateChanged(state)
}

func (o *Orchestrator) onAgentReady() {
	o.mu.Lock()
	rejoined := o.everReady
	o.everReady = true
	o.mu.Unlock()

	// After a reconnect the backend may have recorded events we never saw;
	// cached pages are stale.
	if rejoined {
		if id := o.conn.SessionID(); id != "" {
			o.history.Invalidate(id)
		}
	}
	o.sink.AgentReady()
}

func (o *Orchestrator) onTurnComplete() {
	o.finalizeStreaming()
}

func (o *Orchestrator) onInterrupted() {
	o.finalizeStreaming()
}

func (o *Orchestrator) onErrorPayload(payload string) {
	o.sink.SessionError(o.classifier.HandleSocketPayload(payload))
}

func (o *Orchestrator) onMessage(msg domain.Inbound) {
	switch msg.Type {
	case domain.TypeText:
		o.appendAssistantChunk(msg.Data)
	case domain.TypeUserInput:
		o.fillPlaceholder(msg.Data)
	default:
		o.log.Debug("ignoring message", zap.String("type", msg.Type))
	}
}

// --- transcript internals ---

// appendAssistantChunk accumulates agent text into one streaming entry until
// the turn ends.
func (o *Orchestrator) appendAssistantChunk(text string) {
	o.mu.Lock()
	if o.streamingID != "" {
		if idx := o.indexLocked(o.streamingID); idx >= 0 {
			o.entries[idx].Text += text
			snapshot := o.snapshotLocked()
			o.mu.Unlock()
			o.sink.TranscriptUpdated(snapshot)
			return
		}
	}
	id := uuid.NewString()
	o.streamingID = id
	o.appendLocked(domain.TranscriptEntry{
		ID:         id,
		Sender:     domain.SenderAssistant,
		Text:       text,
		IsMarkdown: true,
		Timestamp:  time.Now(),
		Kind:       domain.EntryMessage,
		Streaming:  true,
	})
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	o.sink.TranscriptUpdated(snapshot)
}

func (o *Orchestrator) finalizeStreaming() {
	o.mu.Lock()
	if o.streamingID == "" {
		o.mu.Unlock()
		return
	}
	if idx := o.indexLocked(o.streamingID); idx >= 0 {
		o.entries[idx].Streaming = false
	}
	o.streamingID = ""
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	o.sink.TranscriptUpdated(snapshot)
}

// fillPlaceholder replaces the recording placeholder with the backend's
// transcription of the spoken input.
func (o *Orchestrator) fillPlaceholder(text string) {
	o.mu.Lock()
	if o.placeholderID != "" {
		if idx := o.indexLocked(o.placeholderID); idx >= 0 {
			o.entries[idx].Text = text
			o.entries[idx].Streaming = false
			o.placeholderID = ""
			snapshot := o.snapshotLocked()
			o.mu.Unlock()
			o.sink.TranscriptUpdated(snapshot)
			return
		}
		o.placeholderID = ""
	}
	o.appendLocked(domain.TranscriptEntry{
		ID:        uuid.NewString(),
		Sender:    domain.SenderUser,
		Text:      text,
		Timestamp: time.Now(),
		Kind:      domain.EntryMessage,
	})
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	o.sink.TranscriptUpdated(snapshot)
}

// removePlaceholder drops the recording placeholder when it was never filled.
func (o *Orchestrator) removePlaceholder() {
	o.mu.Lock()
	id := o.placeholderID
	o.placeholderID = ""
	if id == "" {
		o.mu.Unlock()
		return
	}
	idx := o.indexLocked(id)
	if idx < 0 || o.entries[idx].Text != recordingPlaceholder {
		if idx >= 0 {
			o.entries[idx].Streaming = false
		}
		snapshot := o.snapshotLocked()
		o.mu.Unlock()
		o.sink.TranscriptUpdated(snapshot)
		return
	}
	o.entries = append(o.entries[:idx], o.entries[idx+1:]...)
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	o.sink.TranscriptUpdated(snapshot)
}

func (o *Orchestrator) appendLocked(e domain.TranscriptEntry) {
	if e.EventID != "" {
		o.seen[e.EventID] = struct{}{}
	}
	o.entries = append(o.entries, e)
}

func (o *Orchestrator) indexLocked(id string) int {
	for i := range o.entries {
		if o.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (o *Orchestrator) snapshotLocked() []domain.TranscriptEntry {
	return append([]domain.TranscriptEntry(nil), o.entries...)
}

func (o *Orchestrator) sendControl(payload string) {
	if err := o.conn.Send(domain.Outbound{Type: domain.TypeControl, Data: payload}); err != nil {
		o.log.Warn("control message not sent", zap.String("payload", payload), zap.Error(err))
	}
}

// classifyRequestErr surfaces a REST failure with its HTTP status when the
// error carries one.
func (o *Orchestrator) classifyRequestErr(err error) {
	var sc statusCoder
	if errors.As(err, &sc) {
		o.sink.SessionError(o.classifier.HandleAPI(sc.StatusCode()))
		return
	}
	o.sink.SessionError(o.classifier.HandleConnection(err))
}

func historyEntry(evt domain.HistoryEvent) domain.TranscriptEntry {
	sender := domain.SenderAssistant
	if evt.Metadata.SenderType == "user" {
		sender = domain.SenderUser
	}
	kind := domain.EntryMessage
	if evt.Content.ArtifactURL != "" {
		kind = domain.EntryArtifactUpload
	}
	ts, err := time.Parse(time.RFC3339, evt.Timestamp)
	if err != nil {
		ts = time.Time{}
	}
	return domain.TranscriptEntry{
		ID:          uuid.NewString(),
		Sender:      sender,
		Text:        evt.Content.Text,
		IsMarkdown:  sender == domain.SenderAssistant,
		Timestamp:   ts,
		Kind:        kind,
		ArtifactURL: evt.Content.ArtifactURL,
		EventID:     evt.EventID,
	}
}

func mediaName(mode domain.VideoMode) string {
	if mode == domain.VideoModeScreen {
		return "screen"
	}
	return "camera"
}

func onControl(mode domain.VideoMode) string {
	if mode == domain.VideoModeScreen {
		return controlScreenOn
	}
	return controlCameraOn
}

func offControl(mode domain.VideoMode) string {
	if mode == domain.VideoModeScreen {
		return controlScreenOff
	}
	return controlCameraOff
}
