// Package config loads runtime settings from SANSKARA_* environment
// variables with sane defaults for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Backend endpoints. The websocket URL defaults to the API URL with the
	// scheme switched; set it explicitly when the realtime channel lives on
	// a different host.
	APIURL string `env:"SANSKARA_API_URL" envDefault:"http://localhost:8000"`
	WSURL  string `env:"SANSKARA_WS_URL"`

	// Session identity.
	UserID    string `env:"SANSKARA_USER_ID" envDefault:"local-user"`
	SessionID string `env:"SANSKARA_SESSION_ID"`
	Mode      string `env:"SANSKARA_MODE" envDefault:"live"`

	// Realtime channel tuning.
	MaxReconnectAttempts int           `env:"SANSKARA_MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectBaseDelay   time.Duration `env:"SANSKARA_RECONNECT_BASE_DELAY" envDefault:"1s"`
	ReconnectMaxDelay    time.Duration `env:"SANSKARA_RECONNECT_MAX_DELAY" envDefault:"30s"`
	PingInterval         time.Duration `env:"SANSKARA_PING_INTERVAL" envDefault:"30s"`

	// REST client and history paging.
	HTTPTimeout      time.Duration `env:"SANSKARA_HTTP_TIMEOUT" envDefault:"15s"`
	HistoryPageSize  int           `env:"SANSKARA_HISTORY_PAGE_SIZE" envDefault:"20"`
	HistoryCacheSize int           `env:"SANSKARA_HISTORY_CACHE_SIZE" envDefault:"100"`

	// Capture devices.
	CaptureCommand string        `env:"SANSKARA_CAPTURE_COMMAND" envDefault:"ffmpeg"`
	AudioFormat    string        `env:"SANSKARA_AUDIO_FORMAT" envDefault:"pulse"`
	AudioDevice    string        `env:"SANSKARA_AUDIO_DEVICE" envDefault:"default"`
	AudioRate      int           `env:"SANSKARA_AUDIO_RATE" envDefault:"16000"`
	CameraDevice   string        `env:"SANSKARA_CAMERA_DEVICE" envDefault:"/dev/video0"`
	ScreenDevice   string        `env:"SANSKARA_SCREEN_DEVICE" envDefault:":0.0"`
	CameraInterval time.Duration `env:"SANSKARA_CAMERA_INTERVAL" envDefault:"1s"`
	ScreenInterval time.Duration `env:"SANSKARA_SCREEN_INTERVAL" envDefault:"5s"`

	LogLevel string `env:"SANSKARA_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and normalizes the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.WSURL == "" {
		c.WSURL = c.APIURL
	}
	c.WSURL = strings.TrimRight(c.WSURL, "/")
	if c.Mode == "" {
		c.Mode = "live"
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		c.ReconnectMaxDelay = c.ReconnectBaseDelay
	}
	if c.HistoryPageSize <= 0 {
		c.HistoryPageSize = 20
	}
	if c.HistoryCacheSize <= 0 {
		c.HistoryCacheSize = 100
	}
}

func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("SANSKARA_API_URL must not be empty")
	}
	if c.Mode != "live" && c.Mode != "test" {
		return fmt.Errorf("SANSKARA_MODE must be live or test, got %q", c.Mode)
	}
	if c.UserID == "" {
		return fmt.Errorf("SANSKARA_USER_ID must not be empty")
	}
	return nil
}
