package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"meetscribe/internal/config"
	"meetscribe/internal/gpu"
	"meetscribe/internal/models"
	"meetscribe/internal/performance"
	"meetscribe/internal/processor"
	"meetscribe/internal/transcriber"
	"meetscribe/internal/vad"
)

// NewProvider builds the provider selected by transcription.provider
func NewProvider(cfg *config.Configuration, monitor *performance.PerformanceMonitor, logger *zap.Logger) (transcriber.Provider, error) {
	opts, err := TranscriptionOptions(cfg)
	if err != nil {
		return nil, err
	}
	converter := processor.NewAudioProcessor(logger, cfg.GetFFmpegPath())

	switch cfg.GetProvider() {
	case "remote":
		p, err := transcriber.NewRemoteProvider(RemoteConfig(cfg), opts, converter, monitor, logger)
		if err != nil {
			return nil, err
		}
		return p, nil

	case "local":
		manager := models.NewManager(logger, cfg.GetLocalModelsDir(), cfg.GetLocalModelName(),
			models.WithAutoDownload(cfg.GetLocalAutoDownload()))

		var detector *gpu.Detector
		if cfg.GetLocalUseGPU() {
			detector = gpu.NewDetector(logger)
		}
		loader := transcriber.NewWhisperCLILoader(cfg.GetLocalBinaryPath(), cfg.GetLocalThreads(), detector, logger)

		p, err := transcriber.NewLocalProvider(manager, loader, transcriber.LocalConfig{
			ScratchDir: cfg.GetLocalScratchDir(),
			OnProgress: downloadProgressLogger(logger, cfg.GetLocalModelName()),
		}, opts, converter, monitor, logger)
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.GetProvider())
	}
}

// TranscriptionOptions maps the transcription and vad settings onto provider options
func TranscriptionOptions(cfg *config.Configuration) (transcriber.Options, error) {
	method, err := transcriber.ParseSplitMethod(cfg.GetSplitMethod())
	if err != nil {
		return transcriber.Options{}, err
	}

	vadCfg := vad.Config{
		SilenceThresholdRMS:  cfg.GetVADSilenceThreshold(),
		MinSilenceDurationMs: cfg.GetVADMinSilenceMs(),
		ChunkOverlapMs:       cfg.GetVADOverlapMs(),
		UseAdaptiveThreshold: cfg.GetVADAdaptive(),
	}
	if err := vadCfg.Validate(); err != nil {
		return transcriber.Options{}, fmt.Errorf("invalid vad settings: %w", err)
	}

	return transcriber.Options{
		SplitMethod:   method,
		MaxChunkBytes: cfg.GetMaxChunkBytes(),
		VAD:           vadCfg,
		Language:      cfg.GetLanguage(),
		Vocabulary:    cfg.GetVocabulary(),
	}, nil
}

// RemoteConfig maps the remote.* settings onto the remote provider configuration
func RemoteConfig(cfg *config.Configuration) transcriber.RemoteConfig {
	return transcriber.RemoteConfig{
		Endpoint:          cfg.GetRemoteEndpoint(),
		APIKey:            cfg.GetRemoteAPIKey(),
		Model:             cfg.GetRemoteModel(),
		Timeout:           time.Duration(cfg.GetRemoteTimeoutSec()) * time.Second,
		MaxRetries:        cfg.GetRemoteMaxRetries(),
		BaseBackoff:       time.Duration(cfg.GetRemoteBaseBackoffMs()) * time.Millisecond,
		MaxBackoff:        time.Duration(cfg.GetRemoteMaxBackoffMs()) * time.Millisecond,
		RequestsPerSecond: cfg.GetRemoteRequestsPerSecond(),
	}
}

func downloadProgressLogger(logger *zap.Logger, model string) models.ProgressFunc {
	return func(progress float64) {
		logger.Info("model download progress",
			zap.String("model", model),
			zap.Float64("percent", progress))
	}
}
