package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"sanskara/internal/classify"
	"sanskara/internal/domain"
	"sanskara/internal/ports"
)

type fakeConn struct {
	mu        sync.Mutex
	handlers  ports.ConnectionHandlers
	sent      []domain.Outbound
	sendErr   error
	state     domain.ConnectionState
	sessionID string
	closed    bool
}

func (f *fakeConn) Bind(h ports.ConnectionHandlers) { f.handlers = h }
func (f *fakeConn) Connect(context.Context) error   { return nil }
func (f *fakeConn) Reconnect(context.Context) error { return nil }
func (f *fakeConn) Close()                          { f.closed = true }
func (f *fakeConn) State() domain.ConnectionState   { return f.state }
func (f *fakeConn) SessionID() string               { return f.sessionID }

func (f *fakeConn) Send(msg domain.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeConn) sentFrames() []domain.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Outbound(nil), f.sent...)
}

type fakeAudio struct {
	mu        sync.Mutex
	recording bool
	startErr  error
	cb        ports.AudioCallbacks
}

func (f *fakeAudio) CheckPermission(context.Context) bool { return true }
func (f *fakeAudio) Recording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

func (f *fakeAudio) Start(_ context.Context, cb ports.AudioCallbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.recording = true
	f.cb = cb
	return nil
}

func (f *fakeAudio) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = false
	return nil
}

type fakeVideo struct {
	mu       sync.Mutex
	mode     domain.VideoMode
	active   bool
	startErr error
	onFrame  func(domain.VideoFrame)
}

func (f *fakeVideo) CheckPermission(context.Context, domain.VideoMode) bool { return true }

func (f *fakeVideo) ActiveMode() (domain.VideoMode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode, f.active
}

func (f *fakeVideo) Start(_ context.Context, mode domain.VideoMode, onFrame func(domain.VideoFrame)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.mode, f.active, f.onFrame = mode, true, onFrame
	return nil
}

func (f *fakeVideo) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	f.mode = ""
	return nil
}

type fakeHistory struct {
	mu          sync.Mutex
	pages       map[int]domain.HistoryPage
	err         error
	calls       int
	invalidated []string
}

func (f *fakeHistory) Get(_ context.Context, _ string, q domain.HistoryQuery) (domain.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.HistoryPage{}, f.err
	}
	return f.pages[q.Offset], nil
}

func (f *fakeHistory) Invalidate(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, sessionID)
}

type fakeArtifacts struct {
	uploads []string
	err     error
}

func (f *fakeArtifacts) Upload(_ context.Context, _, _, filename string, _ io.Reader, _ string) (domain.ArtifactMeta, error) {
	if f.err != nil {
		return domain.ArtifactMeta{}, f.err
	}
	f.uploads = append(f.uploads, filename)
	return domain.ArtifactMeta{Version: "v1", Filename: filename}, nil
}

func (f *fakeArtifacts) List(context.Context, string, string) ([]domain.ArtifactMeta, error) {
	return nil, f.err
}

func (f *fakeArtifacts) Content(context.Context, string, string, string) (domain.ArtifactContent, error) {
	return domain.ArtifactContent{}, f.err
}

type fakeSink struct {
	mu      sync.Mutex
	states  []domain.ConnectionState
	ready   int
	updates int
	errs    []domain.ClassifiedError
}

func (f *fakeSink) ConnectionStateChanged(s domain.ConnectionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
}

func (f *fakeSink) AgentReady() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready++
}

func (f *fakeSink) TranscriptUpdated([]domain.TranscriptEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
}

func (f *fakeSink) SessionError(err domain.ClassifiedError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *fakeSink) lastError(t *testing.T) domain.ClassifiedError {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) == 0 {
		t.Fatalf("expected a session error")
	}
	return f.errs[len(f.errs)-1]
}

type harness struct {
	orch      *Orchestrator
	conn      *fakeConn
	audio     *fakeAudio
	video     *fakeVideo
	history   *fakeHistory
	artifacts *fakeArtifacts
	sink      *fakeSink
}

func newHarness() *harness {
	h := &harness{
		conn:      &fakeConn{sessionID: "sess-1"},
		audio:     &fakeAudio{},
		video:     &fakeVideo{},
		history:   &fakeHistory{pages: map[int]domain.HistoryPage{}},
		artifacts: &fakeArtifacts{},
		sink:      &fakeSink{},
	}
	h.orch = New(Deps{
		Conn:       h.conn,
		Audio:      h.audio,
		Video:      h.video,
		History:    h.history,
		Artifacts:  h.artifacts,
		Classifier: classify.New(),
		Sink:       h.sink,
		UserID:     "user-1",
		PageSize:   2,
	})
	return h
}

func historyItem(id, senderType, text string) domain.HistoryEvent {
	var evt domain.HistoryEvent
	evt.EventID = id
	evt.Timestamp = "2026-08-01T10:00:00Z"
	evt.Metadata.SenderType = senderType
	evt.Content.Text = text
	return evt
}

func TestSendTextAppendsEntryAndSendsFrame(t *testing.T) {
	t.Parallel()
	h := newHarness()

	if err := h.orch.SendText("hello planner"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	entries := h.orch.Transcript()
	if len(entries) != 1 || entries[0].Sender != domain.SenderUser || entries[0].Text != "hello planner" {
		t.Fatalf("unexpected transcript: %+v", entries)
	}
	if entries[0].ID == "" {
		t.Fatalf("entry must get an id")
	}

	frames := h.conn.sentFrames()
	if len(frames) != 1 || frames[0].Type != domain.TypeText || frames[0].Data != "hello planner" {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestSendTextFailureIsClassified(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.conn.sendErr = errors.New("websocket not connected")

	if err := h.orch.SendText("hi"); err == nil {
		t.Fatalf("expected send error")
	}
	if rec := h.sink.lastError(t); rec.Category != domain.ErrNetwork || !rec.Retryable {
		t.Fatalf("unexpected classification: %+v", rec)
	}
}

func TestAssistantChunksAccumulateUntilTurnComplete(t *testing.T) {
	t.Parallel()
	h := newHarness()

	h.conn.handlers.Message(domain.Inbound{Type: domain.TypeText, Data: "The venue "})
	h.conn.handlers.Message(domain.Inbound{Type: domain.TypeText, Data: "is booked."})

	entries := h.orch.Transcript()
	if len(entries) != 1 {
		t.Fatalf("chunks must accumulate into one entry, got %d", len(entries))
	}
	if entries[0].Text != "The venue is booked." || !entries[0].Streaming || !entries[0].IsMarkdown {
		t.Fatalf("unexpected streaming entry: %+v", entries[0])
	}

	h.conn.handlers.TurnComplete()
	if entries = h.orch.Transcript(); entries[0].Streaming {
		t.Fatalf("turn completion must close the streaming entry")
	}

	// The next chunk opens a fresh entry.
	h.conn.handlers.Message(domain.Inbound{Type: domain.TypeText, Data: "Anything else?"})
	if entries = h.orch.Transcript(); len(entries) != 2 {
		t.Fatalf("expected a new entry after turn completion, got %d", len(entries))
	}
}

func TestInterruptedClosesStreamingEntry(t *testing.T) {
	t.Parallel()
	h := newHarness()

	h.conn.handlers.Message(domain.Inbound{Type: domain.TypeText, Data: "Let me think"})
	h.conn.handlers.Interrupted()

	entries := h.orch.Transcript()
	if len(entries) != 1 || entries[0].Streaming {
		t.Fatalf("interruption must close the streaming entry: %+v", entries)
	}
}

func TestRecordingPlaceholderIsFilledByUserInput(t *testing.T) {
	t.Parallel()
	h := newHarness()

	if err := h.orch.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}
	entries := h.orch.Transcript()
	if len(entries) != 1 || entries[0].Text != "..." {
		t.Fatalf("expected placeholder entry, got %+v", entries)
	}

	// Chunks stream to the agent while recording.
	h.audio.cb.OnChunk("cGNt")
	frames := h.conn.sentFrames()
	if len(frames) != 1 || frames[0].Type != domain.TypeAudioChunk || frames[0].Data != "cGNt" {
		t.Fatalf("unexpected frames: %+v", frames)
	}

	h.conn.handlers.Message(domain.Inbound{Type: domain.TypeUserInput, Data: "book the caterer"})
	if err := h.orch.StopRecording(); err != nil {
		t.Fatalf("stop recording failed: %v", err)
	}

	entries = h.orch.Transcript()
	if len(entries) != 1 || entries[0].Text != "book the caterer" || entries[0].Streaming {
		t.Fatalf("placeholder must be filled in place: %+v", entries)
	}
}

func TestStopRecordingDropsUnfilledPlaceholder(t *testing.T) {
	t.Parallel()
	h := newHarness()

	_ = h.orch.StartRecording(context.Background())
	if err := h.orch.StopRecording(); err != nil {
		t.Fatalf("stop recording failed: %v", err)
	}
	if entries := h.orch.Transcript(); len(entries) != 0 {
		t.Fatalf("unfilled placeholder must be dropped, got %+v", entries)
	}
}

func TestStartRecordingFailureRemovesPlaceholder(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.audio.startErr = errors.New("pulse: Permission denied")

	if err := h.orch.StartRecording(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if entries := h.orch.Transcript(); len(entries) != 0 {
		t.Fatalf("placeholder must not survive a failed start, got %+v", entries)
	}
	if rec := h.sink.lastError(t); rec.Category != domain.ErrPermissionDenied || rec.Retryable {
		t.Fatalf("unexpected classification: %+v", rec)
	}
}

func TestToggleCameraStartsStopsAndSendsControls(t *testing.T) {
	t.Parallel()
	h := newHarness()

	if err := h.orch.ToggleCamera(context.Background()); err != nil {
		t.Fatalf("toggle on failed: %v", err)
	}
	if mode, active := h.video.ActiveMode(); !active || mode != domain.VideoModeCamera {
		t.Fatalf("expected active camera, got %q %v", mode, active)
	}

	// Frames flow to the agent while active.
	h.video.onFrame(domain.VideoFrame{Data: "anBn", Mode: domain.VideoModeCamera, MimeType: "image/jpeg"})

	if err := h.orch.ToggleCamera(context.Background()); err != nil {
		t.Fatalf("toggle off failed: %v", err)
	}
	if _, active := h.video.ActiveMode(); active {
		t.Fatalf("camera must be stopped")
	}

	var types, controls []string
	for _, f := range h.conn.sentFrames() {
		types = append(types, f.Type)
		if f.Type == domain.TypeControl {
			controls = append(controls, f.Data)
		}
	}
	wantTypes := []string{domain.TypeControl, domain.TypeVideoFrame, domain.TypeControl}
	if len(types) != len(wantTypes) {
		t.Fatalf("unexpected frame sequence: %v", types)
	}
	for i := range wantTypes {
		if types[i] != wantTypes[i] {
			t.Fatalf("frame %d: expected %s, got %s", i, wantTypes[i], types[i])
		}
	}
	if controls[0] != "camera_on" || controls[1] != "camera_off" {
		t.Fatalf("unexpected controls: %v", controls)
	}
}

func TestScreenShareDisplacesCamera(t *testing.T) {
	t.Parallel()
	h := newHarness()

	_ = h.orch.ToggleCamera(context.Background())
	if err := h.orch.ToggleScreenShare(context.Background()); err != nil {
		t.Fatalf("toggle screen failed: %v", err)
	}
	if mode, active := h.video.ActiveMode(); !active || mode != domain.VideoModeScreen {
		t.Fatalf("expected active screen share, got %q %v", mode, active)
	}

	var controls []string
	for _, f := range h.conn.sentFrames() {
		if f.Type == domain.TypeControl {
			controls = append(controls, f.Data)
		}
	}
	want := []string{"camera_on", "camera_off", "screen_on"}
	if len(controls) != len(want) {
		t.Fatalf("unexpected controls: %v", controls)
	}
	for i := range want {
		if controls[i] != want[i] {
			t.Fatalf("control %d: expected %s, got %s", i, want[i], controls[i])
		}
	}
}

func TestInterruptSendsControlAndClosesEntry(t *testing.T) {
	t.Parallel()
	h := newHarness()

	h.conn.handlers.Message(domain.Inbound{Type: domain.TypeText, Data: "Working on it"})
	if err := h.orch.Interrupt(); err != nil {
		t.Fatalf("interrupt failed: %v", err)
	}

	frames := h.conn.sentFrames()
	if len(frames) != 1 || frames[0].Type != domain.TypeControl || frames[0].Data != "interrupt" {
		t.Fatalf("unexpected frames: %+v", frames)
	}
	if entries := h.orch.Transcript(); entries[0].Streaming {
		t.Fatalf("interrupt must close the streaming entry")
	}
}

func TestLoadOlderPrependsReversedPageAndDedupes(t *testing.T) {
	t.Parallel()
	h := newHarness()

	// Live entry already on screen.
	_ = h.orch.SendText("what's next?")

	// Newest-first page; evt-2 is newer than evt-1.
	h.history.pages[0] = domain.HistoryPage{
		History:    []domain.HistoryEvent{historyItem("evt-2", "agent", "second"), historyItem("evt-1", "user", "first")},
		TotalCount: 4,
	}
	if err := h.orch.LoadOlder(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	entries := h.orch.Transcript()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Text != "first" || entries[1].Text != "second" || entries[2].Text != "what's next?" {
		t.Fatalf("unexpected order: %q %q %q", entries[0].Text, entries[1].Text, entries[2].Text)
	}
	if entries[0].Sender != domain.SenderUser || entries[1].Sender != domain.SenderAssistant {
		t.Fatalf("unexpected senders: %+v", entries[:2])
	}
	if !h.orch.HasOlder() {
		t.Fatalf("2 of 4 events loaded, more must remain")
	}

	// The next page repeats evt-2; the duplicate is dropped.
	h.history.pages[2] = domain.HistoryPage{
		History:    []domain.HistoryEvent{historyItem("evt-2", "agent", "second"), historyItem("evt-0", "user", "zeroth")},
		TotalCount: 4,
	}
	if err := h.orch.LoadOlder(context.Background()); err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	entries = h.orch.Transcript()
	if len(entries) != 4 || entries[0].Text != "zeroth" {
		t.Fatalf("duplicate must be dropped and page prepended: %+v", entries)
	}
	if h.orch.HasOlder() {
		t.Fatalf("all 4 events loaded, nothing must remain")
	}

	// Exhausted: further loads never hit the store.
	calls := h.history.calls
	if err := h.orch.LoadOlder(context.Background()); err != nil {
		t.Fatalf("exhausted load failed: %v", err)
	}
	if h.history.calls != calls {
		t.Fatalf("exhausted load must be a no-op")
	}
}

func TestLoadOlderFailureIsClassifiedWithStatus(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.history.err = &statusErr{status: 401}

	if err := h.orch.LoadOlder(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	rec := h.sink.lastError(t)
	if rec.Category != domain.ErrSessionExpired || rec.Retryable || rec.Status != 401 {
		t.Fatalf("unexpected classification: %+v", rec)
	}
}

type statusErr struct{ status int }

func (e *statusErr) Error() string   { return "request failed" }
func (e *statusErr) StatusCode() int { return e.status }

func TestAgentReadyAfterRejoinInvalidatesHistory(t *testing.T) {
	t.Parallel()
	h := newHarness()

	h.conn.handlers.AgentReady()
	if len(h.history.invalidated) != 0 {
		t.Fatalf("first readiness must not invalidate")
	}

	h.conn.handlers.AgentReady()
	if len(h.history.invalidated) != 1 || h.history.invalidated[0] != "sess-1" {
		t.Fatalf("rejoin must invalidate cached history: %v", h.history.invalidated)
	}
	if h.sink.ready != 2 {
		t.Fatalf("expected 2 readiness events, got %d", h.sink.ready)
	}
}

func TestUploadArtifactRecordsTranscriptEntry(t *testing.T) {
	t.Parallel()
	h := newHarness()

	meta, err := h.orch.UploadArtifact(context.Background(), "venues.pdf", strings.NewReader("pdf"), "shortlist")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if meta.Version != "v1" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	entries := h.orch.Transcript()
	if len(entries) != 1 || entries[0].Kind != domain.EntryArtifactUpload {
		t.Fatalf("expected an artifact entry, got %+v", entries)
	}
	if !strings.Contains(entries[0].Text, "shortlist") {
		t.Fatalf("caption must appear in the entry: %q", entries[0].Text)
	}
}

func TestCloseStopsCapturesAndConnection(t *testing.T) {
	t.Parallel()
	h := newHarness()

	_ = h.orch.StartRecording(context.Background())
	_ = h.orch.ToggleCamera(context.Background())
	h.orch.Close()

	if h.audio.Recording() {
		t.Fatalf("audio must stop on close")
	}
	if _, active := h.video.ActiveMode(); active {
		t.Fatalf("video must stop on close")
	}
	if !h.conn.closed {
		t.Fatalf("connection must close")
	}
}
