package media

import (
	"errors"
	"strings"
)

// Sentinel errors with classifiable signatures. The error classifier maps
// these onto the user-facing taxonomy.
var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrDeviceNotFound   = errors.New("capture device not found")
	ErrNotSupported     = errors.New("capture not supported on this host")
	ErrCaptureActive    = errors.New("capture already active")
)

// mapCaptureErr inspects ffmpeg stderr output and returns the matching
// sentinel, or nil when the failure has no recognizable signature.
func mapCaptureErr(stderr string) error {
	text := strings.ToLower(stderr)
	switch {
	case strings.Contains(text, "permission denied"),
		strings.Contains(text, "not allowed"),
		strings.Contains(text, "access denied"):
		return ErrPermissionDenied
	case strings.Contains(text, "no such file"),
		strings.Contains(text, "no such device"),
		strings.Contains(text, "not found"),
		strings.Contains(text, "cannot find"):
		return ErrDeviceNotFound
	case strings.Contains(text, "unknown input format"),
		strings.Contains(text, "not supported"),
		strings.Contains(text, "unsupported"):
		return ErrNotSupported
	}
	return nil
}
