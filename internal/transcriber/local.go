package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meetscribe/internal/models"
	"meetscribe/internal/performance"
)

const localProviderName = "local"

// RecognizeOptions carries per-call hints for a Recognizer
type RecognizeOptions struct {
	Language   string
	Vocabulary string
}

// Recognizer runs speech recognition on a WAV file
type Recognizer interface {
	Recognize(ctx context.Context, wavPath string, opts RecognizeOptions) (string, error)
}

// RecognizerLoader builds a Recognizer for the model stored at modelPath
type RecognizerLoader func(ctx context.Context, modelPath string) (Recognizer, error)

// ModelResolver returns the path of a usable model, downloading it if allowed
type ModelResolver interface {
	EnsureModel(ctx context.Context, onProgress models.ProgressFunc) (string, error)
}

// LocalConfig configures the on-device provider
type LocalConfig struct {
	ScratchDir string
	OnProgress models.ProgressFunc
}

// LocalProvider transcribes on this machine with a whisper model
type LocalProvider struct {
	models     ModelResolver
	loader     RecognizerLoader
	scratchDir string
	onProgress models.ProgressFunc
	monitor    *performance.PerformanceMonitor
	logger     *zap.Logger
	pipeline   *pipeline

	mu         sync.Mutex
	recognizer Recognizer
}

// NewLocalProvider creates a LocalProvider. The recognizer is loaded on first use
// and kept for the lifetime of the provider.
func NewLocalProvider(resolver ModelResolver, loader RecognizerLoader, cfg LocalConfig, opts Options, converter Converter, monitor *performance.PerformanceMonitor, logger *zap.Logger) (*LocalProvider, error) {
	if resolver == nil {
		return nil, fmt.Errorf("model resolver cannot be nil")
	}
	if loader == nil {
		return nil, fmt.Errorf("recognizer loader cannot be nil")
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if monitor == nil {
		monitor = performance.NewPerformanceMonitor(logger, nil)
	}

	p := &LocalProvider{
		models:     resolver,
		loader:     loader,
		scratchDir: cfg.ScratchDir,
		onProgress: cfg.OnProgress,
		monitor:    monitor,
		logger:     logger,
	}
	p.pipeline = newPipeline(localProviderName, p.transcribeChunk, opts, converter, monitor, logger)
	return p, nil
}

// Name returns the provider identifier
func (p *LocalProvider) Name() string {
	return localProviderName
}

// TranscribeFile reads path and transcribes its contents
func (p *LocalProvider) TranscribeFile(ctx context.Context, path string) (string, error) {
	// A missing input must not trigger a model download
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", newFileNotFound(path, err)
	}
	if _, err := p.loadRecognizer(ctx); err != nil {
		return "", err
	}
	data, err := readAudioFile(path)
	if err != nil {
		return "", err
	}
	return p.pipeline.Run(ctx, data, filepath.Base(path))
}

// TranscribeBuffer transcribes data, splitting it when it is above the size ceiling
func (p *LocalProvider) TranscribeBuffer(ctx context.Context, data []byte, filename string) (string, error) {
	if _, err := p.loadRecognizer(ctx); err != nil {
		return "", err
	}
	return p.pipeline.Run(ctx, data, filename)
}

// loadRecognizer resolves the model and loads the recognizer once. Failures are not
// cached so a later call can retry after the model becomes available.
func (p *LocalProvider) loadRecognizer(ctx context.Context) (Recognizer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.recognizer != nil {
		return p.recognizer, nil
	}

	modelPath, err := p.models.EnsureModel(ctx, p.onProgress)
	if err != nil {
		if errors.Is(err, models.ErrModelNotAvailable) {
			return nil, newModelNotAvailable(err)
		}
		return nil, newFailed("failed to prepare local model", err)
	}

	recognizer, err := p.loader(ctx, modelPath)
	if err != nil {
		return nil, newFailed("failed to load local recognizer", err)
	}

	p.logger.Info("local recognizer loaded", zap.String("model_path", modelPath))
	p.recognizer = recognizer
	return recognizer, nil
}

func (p *LocalProvider) transcribeChunk(ctx context.Context, data []byte, filename string) (string, error) {
	recognizer, err := p.loadRecognizer(ctx)
	if err != nil {
		return "", err
	}

	scratch, err := p.writeScratch(data)
	if err != nil {
		return "", newFailed("failed to write scratch file", err)
	}
	defer p.removeScratch(scratch)

	useGPU := false
	if g, ok := recognizer.(interface{ UsesGPU() bool }); ok {
		useGPU = g.UsesGPU()
	}

	timer := p.monitor.StartTranscription(localProviderName, int64(len(data)), useGPU)
	text, err := recognizer.Recognize(ctx, scratch, RecognizeOptions{
		Language:   p.pipeline.opts.Language,
		Vocabulary: p.pipeline.opts.Vocabulary,
	})
	p.monitor.EndTranscription(timer, err)

	if err != nil {
		return "", newFailed(fmt.Sprintf("local recognition of %s failed", filename), err)
	}
	return text, nil
}

func (p *LocalProvider) writeScratch(data []byte) (string, error) {
	path := filepath.Join(p.scratchDir, fmt.Sprintf("meetscribe-%s.wav", uuid.NewString()))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (p *LocalProvider) removeScratch(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("failed to remove scratch file", zap.String("path", path), zap.Error(err))
	}
}
