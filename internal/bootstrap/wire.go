// Package bootstrap assembles the session stack from configuration.
package bootstrap

import (
	"go.uber.org/zap"

	"sanskara/internal/artifacts"
	"sanskara/internal/classify"
	"sanskara/internal/config"
	"sanskara/internal/domain"
	"sanskara/internal/history"
	"sanskara/internal/media"
	"sanskara/internal/ports"
	"sanskara/internal/session"
	"sanskara/internal/transport"
	"sanskara/pkg/logger"
)

// Services is the wired application graph.
type Services struct {
	Config       config.Config
	Log          *zap.Logger
	Connection   ports.ChatConnection
	Orchestrator *session.Orchestrator
}

// Build loads configuration and wires every component to the given sink.
func Build(sink ports.EventSink) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.LogLevel)
	log := logger.L()

	conn := transport.New(cfg.WSURL, transport.Options{
		UserID:       cfg.UserID,
		SessionID:    cfg.SessionID,
		Mode:         cfg.Mode,
		MaxAttempts:  cfg.MaxReconnectAttempts,
		BaseDelay:    cfg.ReconnectBaseDelay,
		MaxDelay:     cfg.ReconnectMaxDelay,
		PingInterval: cfg.PingInterval,
	}, nil, log.Named("transport"))

	audio := media.NewAudioRecorder(media.AudioConfig{
		Command:     cfg.CaptureCommand,
		InputFormat: cfg.AudioFormat,
		InputDevice: cfg.AudioDevice,
		SampleRate:  cfg.AudioRate,
	}, log.Named("audio"))

	video := media.NewVideoCapturer(media.VideoConfig{
		Command:        cfg.CaptureCommand,
		CameraDevice:   cfg.CameraDevice,
		ScreenDevice:   cfg.ScreenDevice,
		CameraInterval: cfg.CameraInterval,
		ScreenInterval: cfg.ScreenInterval,
	}, log.Named("video"))

	historyClient := history.NewClient(cfg.APIURL, cfg.HTTPTimeout, log.Named("history"))
	cache := history.NewCache(historyClient, cfg.HistoryCacheSize)
	artifactClient := artifacts.NewClient(cfg.APIURL, cfg.HTTPTimeout, log.Named("artifacts"))

	clsLog := log.Named("classify")
	classifier := classify.New(func(rec domain.ClassifiedError) {
		clsLog.Warn("classified error",
			zap.String("category", string(rec.Category)),
			zap.String("context", rec.Context),
			zap.Bool("retryable", rec.Retryable),
			zap.String("detail", rec.Detail))
	})

	orch := session.New(session.Deps{
		Conn:       conn,
		Audio:      audio,
		Video:      video,
		History:    cache,
		Artifacts:  artifactClient,
		Classifier: classifier,
		Sink:       sink,
		Log:        log.Named("session"),
		UserID:     cfg.UserID,
		PageSize:   cfg.HistoryPageSize,
	})

	return &Services{
		Config:       cfg,
		Log:          log,
		Connection:   conn,
		Orchestrator: orch,
	}, nil
}
