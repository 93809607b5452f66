package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"sanskara/internal/domain"
)

// VideoConfig describes the camera and screen frame sources.
type VideoConfig struct {
	Command        string
	CameraFormat   string
	CameraDevice   string
	ScreenFormat   string
	ScreenDevice   string
	CameraInterval time.Duration
	ScreenInterval time.Duration
	FrameTimeout   time.Duration
}

func (c *VideoConfig) applyDefaults() {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.CameraFormat == "" {
		c.CameraFormat = "v4l2"
	}
	if c.CameraDevice == "" {
		c.CameraDevice = "/dev/video0"
	}
	if c.ScreenFormat == "" {
		c.ScreenFormat = "x11grab"
	}
	if c.ScreenDevice == "" {
		c.ScreenDevice = ":0.0"
	}
	if c.CameraInterval <= 0 {
		c.CameraInterval = time.Second
	}
	if c.ScreenInterval <= 0 {
		c.ScreenInterval = 5 * time.Second
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = 4 * time.Second
	}
}

// VideoCapturer grabs single JPEG frames from the camera or the screen at a
// fixed cadence and hands them to a callback base64-encoded. The two modes
// are mutually exclusive; one capture at a time.
type VideoCapturer struct {
	cfg VideoConfig
	log *zap.Logger

	mu   sync.Mutex
	mode domain.VideoMode
	stop chan struct{}
	done chan struct{}
}

func NewVideoCapturer(cfg VideoConfig, log *zap.Logger) *VideoCapturer {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &VideoCapturer{cfg: cfg, log: log}
}

// ActiveMode reports the running capture mode, if any.
func (v *VideoCapturer) ActiveMode() (domain.VideoMode, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode, v.stop != nil
}

// CheckPermission probes frame availability for a mode. Screen capture has
// no up-front permission gate; it fails, if at all, on the first grab.
func (v *VideoCapturer) CheckPermission(ctx context.Context, mode domain.VideoMode) bool {
	if mode == domain.VideoModeScreen {
		return true
	}
	_, err := v.grabFrame(ctx, mode)
	return err == nil
}

// Start begins periodic frame capture in the given mode.
func (v *VideoCapturer) Start(ctx context.Context, mode domain.VideoMode, onFrame func(domain.VideoFrame)) error {
	if mode != domain.VideoModeCamera && mode != domain.VideoModeScreen {
		return fmt.Errorf("unknown video mode %q", mode)
	}

	v.mu.Lock()
	if v.stop != nil {
		v.mu.Unlock()
		return ErrCaptureActive
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	v.stop = stop
	v.done = done
	v.mode = mode
	v.mu.Unlock()

	// Reject unusable devices before declaring the capture live.
	if _, err := v.grabFrame(ctx, mode); err != nil {
		v.clear()
		close(done)
		return err
	}

	interval := v.cfg.CameraInterval
	if mode == domain.VideoModeScreen {
		interval = v.cfg.ScreenInterval
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				frame, err := v.grabFrame(ctx, mode)
				if err != nil {
					v.log.Warn("frame capture failed", zap.String("mode", string(mode)), zap.Error(err))
					continue
				}
				if onFrame != nil {
					onFrame(domain.VideoFrame{Data: frame, Mode: mode, MimeType: "image/jpeg"})
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop halts frame capture and releases the device. Idempotent.
func (v *VideoCapturer) Stop() error {
	v.mu.Lock()
	stop := v.stop
	done := v.done
	v.stop = nil
	v.done = nil
	v.mode = ""
	v.mu.Unlock()
	if stop == nil {
		return nil
	}

	close(stop)
	<-done
	return nil
}

func (v *VideoCapturer) clear() {
	v.mu.Lock()
	v.stop = nil
	v.done = nil
	v.mode = ""
	v.mu.Unlock()
}

// grabFrame runs one single-frame capture and returns the JPEG base64.
func (v *VideoCapturer) grabFrame(ctx context.Context, mode domain.VideoMode) (string, error) {
	format, device := v.cfg.CameraFormat, v.cfg.CameraDevice
	if mode == domain.VideoModeScreen {
		format, device = v.cfg.ScreenFormat, v.cfg.ScreenDevice
	}

	grabCtx, cancel := context.WithTimeout(ctx, v.cfg.FrameTimeout)
	defer cancel()

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", format,
		"-i", device,
		"-frames:v", "1",
		"-c:v", "mjpeg",
		"-f", "image2",
		"-",
	}

	cmd := exec.CommandContext(grabCtx, v.cfg.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if sentinel := mapCaptureErr(stderr.String()); sentinel != nil {
			return "", fmt.Errorf("%s capture: %w", mode, sentinel)
		}
		return "", fmt.Errorf("%s capture: %w: %s", mode, err, bytes.TrimSpace(stderr.Bytes()))
	}
	if stdout.Len() == 0 {
		return "", errors.New("frame capture produced no data")
	}
	return base64.StdEncoding.EncodeToString(stdout.Bytes()), nil
}
