package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"meetscribe/internal/config"
	"meetscribe/internal/performance"
	"meetscribe/internal/recording"
	"meetscribe/internal/transcriber"
)

// Application wires configuration, a transcription provider and JSON output together
type Application struct {
	config   *config.Configuration
	logger   *zap.Logger
	registry *prometheus.Registry
	monitor  *performance.PerformanceMonitor
	provider transcriber.Provider
	output   *transcriber.JSONOutput
	now      func() time.Time
}

// NewApplication validates cfg and builds the provider it selects. Results are written
// to out as JSON lines.
func NewApplication(cfg *config.Configuration, logger *zap.Logger, out io.Writer) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry := prometheus.NewRegistry()
	monitor := performance.NewPerformanceMonitorWithBenchmark(logger, registry, cfg.GetMetricsBenchmark())
	provider, err := NewProvider(cfg, monitor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.GetProvider(), err)
	}

	return newApplication(cfg, provider, registry, monitor, logger, out), nil
}

// NewApplicationWithProvider creates an Application around an existing provider
func NewApplicationWithProvider(cfg *config.Configuration, provider transcriber.Provider, logger *zap.Logger, out io.Writer) *Application {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	monitor := performance.NewPerformanceMonitorWithBenchmark(logger, registry, cfg.GetMetricsBenchmark())
	return newApplication(cfg, provider, registry, monitor, logger, out)
}

func newApplication(cfg *config.Configuration, provider transcriber.Provider, registry *prometheus.Registry, monitor *performance.PerformanceMonitor, logger *zap.Logger, out io.Writer) *Application {
	return &Application{
		config:   cfg,
		logger:   logger,
		registry: registry,
		monitor:  monitor,
		provider: provider,
		output:   transcriber.NewJSONOutput(out, logger),
		now:      time.Now,
	}
}

// Provider returns the configured transcription provider
func (app *Application) Provider() transcriber.Provider {
	return app.provider
}

// Monitor returns the performance monitor shared by the provider
func (app *Application) Monitor() *performance.PerformanceMonitor {
	return app.monitor
}

// TranscribeFile transcribes one audio file and writes the result line
func (app *Application) TranscribeFile(ctx context.Context, path string) error {
	start := app.now()
	app.logger.Info("transcribing file",
		zap.String("component", "app"),
		zap.String("provider", app.provider.Name()),
		zap.String("path", path))

	text, err := app.provider.TranscribeFile(ctx, path)
	if err != nil {
		app.logger.Error("transcription failed",
			zap.String("component", "app"),
			zap.String("path", path),
			zap.Bool("recoverable", transcriber.IsRecoverable(err)),
			zap.Error(err))
		return err
	}

	return app.output.OutputResult(transcriber.Result{
		Provider:   app.provider.Name(),
		Source:     path,
		Text:       text,
		DurationMs: app.now().Sub(start).Milliseconds(),
	})
}

// TranscribeSession transcribes a recorded session directory. The batch line is
// written whenever a result exists, including when every chunk failed.
func (app *Application) TranscribeSession(ctx context.Context, dir string) (*transcriber.BatchResult, error) {
	app.logger.Info("transcribing session",
		zap.String("component", "app"),
		zap.String("provider", app.provider.Name()),
		zap.String("dir", dir))

	result, err := recording.TranscribeDir(ctx, dir, app.provider, app.logger)
	if result != nil {
		if outErr := app.output.OutputBatch(app.provider.Name(), dir, result); outErr != nil && err == nil {
			err = outErr
		}
	}
	return result, err
}

// Registry returns the Prometheus registry holding the pipeline metrics
func (app *Application) Registry() *prometheus.Registry {
	return app.registry
}

// Shutdown logs the accumulated performance figures, writes the metrics file when
// metrics.file is set and flushes the logger
func (app *Application) Shutdown() error {
	app.monitor.LogCurrentMetrics()
	app.monitor.LogGathered(app.registry)

	var err error
	if path := app.config.GetMetricsFile(); path != "" {
		if err = prometheus.WriteToTextfile(path, app.registry); err != nil {
			err = fmt.Errorf("failed to write metrics file: %w", err)
			app.logger.Error("metrics export failed", zap.String("component", "app"), zap.Error(err))
		} else {
			app.logger.Info("metrics written", zap.String("component", "app"), zap.String("path", path))
		}
	}

	app.logger.Info("meetscribe stopped", zap.String("component", "app"))
	// Sync on stderr returns EINVAL on some platforms
	_ = app.logger.Sync()
	return err
}
