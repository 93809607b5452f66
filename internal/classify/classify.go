// Package classify translates low-level failures into the small user-facing
// error taxonomy shared by the transport, media, and API layers. The mapping
// itself is pure; a Classifier instance only adds listener notification.
package classify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"sanskara/internal/domain"
	"sanskara/internal/media"
)

const (
	ContextConnection = "connection"
	ContextWebSocket  = "websocket"
	ContextMedia      = "media"
	ContextAPI        = "api"
)

// Connection maps a transport-level failure.
func Connection(err error) domain.ClassifiedError {
	out := domain.ClassifiedError{
		Category:    domain.ErrNetwork,
		UserMessage: "Connection lost. Attempting to reconnect...",
		Retryable:   true,
		Context:     ContextConnection,
		Timestamp:   time.Now(),
	}
	if err == nil {
		return out
	}
	out.Detail = err.Error()

	text := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, media.ErrPermissionDenied) || strings.Contains(text, "permission") || strings.Contains(text, "security"):
		out.Category = domain.ErrPermissionDenied
		out.UserMessage = "Permission denied. Please allow microphone/camera access."
		out.Retryable = false
	case errors.Is(err, media.ErrDeviceNotFound) || strings.Contains(text, "device") || strings.Contains(text, "not found"):
		out.Category = domain.ErrDeviceNotFound
		out.UserMessage = "Required device not found. Please check your connections."
		out.Retryable = false
	}
	return out
}

// SocketPayload maps the text of an inbound error frame.
func SocketPayload(payload string) domain.ClassifiedError {
	out := domain.ClassifiedError{
		Category:    domain.ErrNetwork,
		UserMessage: payload,
		Retryable:   true,
		Context:     ContextWebSocket,
		Detail:      payload,
		Timestamp:   time.Now(),
	}
	if out.UserMessage == "" {
		out.UserMessage = "Unknown error on the chat channel"
	}

	text := strings.ToLower(payload)
	switch {
	case strings.Contains(text, "session") || strings.Contains(text, "wedding"):
		out.Category = domain.ErrSessionExpired
		out.Retryable = false
	case strings.Contains(text, "rate") || strings.Contains(text, "limit"):
		out.Category = domain.ErrRateLimited
		out.Retryable = true
	}
	return out
}

// Media maps a capture-adapter failure. mediaType names the device in the
// user message ("microphone", "camera", "screen").
func Media(err error, mediaType string) domain.ClassifiedError {
	out := domain.ClassifiedError{
		Category:    domain.ErrNetwork,
		UserMessage: fmt.Sprintf("Error with %s handling", mediaType),
		Retryable:   true,
		Context:     ContextMedia,
		Timestamp:   time.Now(),
	}
	if err == nil {
		return out
	}
	out.Detail = err.Error()

	switch {
	case errors.Is(err, media.ErrPermissionDenied):
		out.Category = domain.ErrPermissionDenied
		out.UserMessage = fmt.Sprintf("%s access denied. Please grant permissions and try again.", mediaType)
		out.Retryable = false
	case errors.Is(err, media.ErrDeviceNotFound):
		out.Category = domain.ErrDeviceNotFound
		out.UserMessage = fmt.Sprintf("No %s device found. Please connect a device and retry.", mediaType)
		out.Retryable = false
	case errors.Is(err, media.ErrNotSupported):
		out.Category = domain.ErrBrowserIncompatible
		out.UserMessage = fmt.Sprintf("This host does not support %s capture.", mediaType)
		out.Retryable = false
	}
	return out
}

// API maps an HTTP status from the history or artifact endpoints.
func API(status int) domain.ClassifiedError {
	out := domain.ClassifiedError{
		Category:    domain.ErrNetwork,
		UserMessage: "API request failed",
		Retryable:   true,
		Context:     ContextAPI,
		Status:      status,
		Timestamp:   time.Now(),
	}
	switch {
	case status == 401:
		out.Category = domain.ErrSessionExpired
		out.UserMessage = "Session expired. Please sign in again."
		out.Retryable = false
	case status == 429:
		out.Category = domain.ErrRateLimited
		out.UserMessage = "Too many requests. Please wait and try again."
		out.Retryable = true
	case status >= 500:
		out.UserMessage = "Server error. Please try again later."
		out.Retryable = true
	case status >= 400:
		out.Category = domain.ErrInvalidMessage
		out.UserMessage = "Invalid request. Please check your input."
		out.Retryable = false
	}
	return out
}

// Listener receives every classified error passed through a Classifier.
type Listener func(domain.ClassifiedError)

// Classifier notifies a constructor-injected listener set. Each consumer
// owns its own instance; there is no process-wide registry.
type Classifier struct {
	listeners []Listener
}

func New(listeners ...Listener) *Classifier {
	return &Classifier{listeners: listeners}
}

func (c *Classifier) HandleConnection(err error) domain.ClassifiedError {
	return c.notify(Connection(err))
}

func (c *Classifier) HandleSocketPayload(payload string) domain.ClassifiedError {
	return c.notify(SocketPayload(payload))
}

func (c *Classifier) HandleMedia(err error, mediaType string) domain.ClassifiedError {
	return c.notify(Media(err, mediaType))
}

func (c *Classifier) HandleAPI(status int) domain.ClassifiedError {
	return c.notify(API(status))
}

func (c *Classifier) notify(rec domain.ClassifiedError) domain.ClassifiedError {
	for _, l := range c.listeners {
		l(rec)
	}
	return rec
}
