package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"sanskara/internal/ports"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	Command     string
	InputFormat string
	InputDevice string
	SampleRate  int
	Channels    int
	ChunkSize   int
}

func (c *AudioConfig) applyDefaults() {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.ChunkSize < 256 {
		c.ChunkSize = 4096
	}
}

// AudioRecorder captures mono PCM from the microphone via an ffmpeg
// subprocess and delivers base64-encoded chunks to callbacks. One capture
// session at a time; Stop flushes the full recording in a final callback.
type AudioRecorder struct {
	cfg AudioConfig
	log *zap.Logger

	mu     sync.Mutex
	active *audioCapture
}

func NewAudioRecorder(cfg AudioConfig, log *zap.Logger) *AudioRecorder {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &AudioRecorder{cfg: cfg, log: log}
}

type audioCapture struct {
	process *os.Process
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	waitErr <-chan error

	readDone chan struct{}

	mu       sync.Mutex
	recorded bytes.Buffer
}

// Recording reports whether a capture session is active.
func (r *AudioRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// CheckPermission probes the microphone without committing to a capture
// session.
func (r *AudioRecorder) CheckPermission(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", r.cfg.InputFormat,
		"-i", r.cfg.InputDevice,
		"-t", "0.05",
		"-f", "null",
		"-",
	}
	return exec.CommandContext(probeCtx, r.cfg.Command, args...).Run() == nil
}

// Start begins capturing and streaming chunks. It fails with
// ErrCaptureActive while a session is running.
func (r *AudioRecorder) Start(ctx context.Context, cb ports.AudioCallbacks) error {
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return ErrCaptureActive
	}
	r.mu.Unlock()

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", r.cfg.InputFormat,
		"-i", r.cfg.InputDevice,
		"-ac", strconv.Itoa(r.cfg.Channels),
		"-ar", strconv.Itoa(r.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, r.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start audio capture: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Give the process a moment to fail on a bad device before declaring
	// the capture live.
	select {
	case werr := <-waitErr:
		return startFailure(werr, stderr.String())
	case <-time.After(250 * time.Millisecond):
	}

	capture := &audioCapture{
		process:  cmd.Process,
		stdout:   stdout,
		stderr:   &stderr,
		waitErr:  waitErr,
		readDone: make(chan struct{}),
	}

	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		_ = cmd.Process.Kill()
		return ErrCaptureActive
	}
	r.active = capture
	r.mu.Unlock()

	go r.pump(capture, cb)
	return nil
}

// pump reads PCM slices off the subprocess and hands them to the chunk
// callback base64-encoded, buffering everything for the final flush.
func (r *AudioRecorder) pump(capture *audioCapture, cb ports.AudioCallbacks) {
	defer close(capture.readDone)

	buf := make([]byte, r.cfg.ChunkSize)
	for {
		n, err := capture.stdout.Read(buf)
		if n > 0 {
			capture.mu.Lock()
			capture.recorded.Write(buf[:n])
			capture.mu.Unlock()
			if cb.OnChunk != nil {
				cb.OnChunk(base64.StdEncoding.EncodeToString(buf[:n]))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				r.log.Warn("audio capture read ended", zap.Error(err))
			}
			if cb.OnComplete != nil {
				capture.mu.Lock()
				full := capture.recorded.Bytes()
				capture.mu.Unlock()
				if len(full) > 0 {
					cb.OnComplete(base64.StdEncoding.EncodeToString(full))
				}
			}
			return
		}
	}
}

// Stop finalizes the capture: the subprocess is interrupted, buffered data
// is flushed through OnComplete, and the device is released. Stopping an
// idle recorder is a no-op.
func (r *AudioRecorder) Stop() error {
	r.mu.Lock()
	capture := r.active
	r.active = nil
	r.mu.Unlock()
	if capture == nil {
		return nil
	}

	if capture.process != nil {
		_ = capture.process.Signal(os.Interrupt)
	}

	var stopErr error
	select {
	case werr, ok := <-capture.waitErr:
		if ok {
			stopErr = normalizeStopErr(werr)
		}
	case <-time.After(1200 * time.Millisecond):
		if capture.process != nil {
			_ = capture.process.Kill()
		}
		if werr, ok := <-capture.waitErr; ok {
			stopErr = normalizeStopErr(werr)
		}
	}

	_ = capture.stdout.Close()
	<-capture.readDone

	if stopErr != nil && capture.stderr.Len() > 0 {
		stopErr = fmt.Errorf("%w: %s", stopErr, bytes.TrimSpace(capture.stderr.Bytes()))
	}
	return stopErr
}

// startFailure maps an early subprocess exit to a classifiable error.
func startFailure(waitErr error, stderr string) error {
	if sentinel := mapCaptureErr(stderr); sentinel != nil {
		return fmt.Errorf("audio capture: %w", sentinel)
	}
	if waitErr != nil {
		return fmt.Errorf("audio capture exited before start: %w: %s", waitErr, strings.TrimSpace(stderr))
	}
	return errors.New("audio capture exited before start")
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
