package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is where whisper.cpp ggml models are published
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// ErrModelNotAvailable is returned by EnsureModel when the model is missing and downloads are disabled
var ErrModelNotAvailable = errors.New("model not available")

// ErrUnknownModel is returned when a download is requested for a name outside AvailableModels
var ErrUnknownModel = errors.New("unknown model")

// Manager resolves whisper models on local disk and downloads missing ones
type Manager struct {
	logger       *zap.Logger
	modelsDir    string
	modelName    string
	baseURL      string
	client       *http.Client
	autoDownload bool

	mu sync.Mutex
}

// Option configures a Manager
type Option func(*Manager)

// WithBaseURL overrides the download location
func WithBaseURL(url string) Option {
	return func(m *Manager) { m.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the client used for downloads
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.client = client }
}

// WithAutoDownload controls whether EnsureModel may fetch a missing model
func WithAutoDownload(enabled bool) Option {
	return func(m *Manager) { m.autoDownload = enabled }
}

// NewManager creates a Manager serving modelName out of modelsDir
func NewManager(logger *zap.Logger, modelsDir, modelName string, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:    logger,
		modelsDir: modelsDir,
		modelName: modelName,
		baseURL:   DefaultBaseURL,
		client: &http.Client{
			Timeout: 10 * time.Minute,
		},
		autoDownload: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ModelName returns the model EnsureModel resolves
func (m *Manager) ModelName() string {
	return m.modelName
}

// AvailableModels returns the published whisper.cpp model names
func (m *Manager) AvailableModels() []string {
	return []string{
		"tiny.en",
		"tiny",
		"base.en",
		"base",
		"small.en",
		"small",
		"medium.en",
		"medium",
		"large-v1",
		"large-v2",
		"large-v3",
	}
}

// IsValidModelName checks if a model name is in the list of known models
func (m *Manager) IsValidModelName(name string) bool {
	for _, available := range m.AvailableModels() {
		if strings.EqualFold(available, name) {
			return true
		}
	}
	return false
}

// ModelSize returns approximate size information for common models
func (m *Manager) ModelSize(name string) string {
	sizes := map[string]string{
		"tiny.en":   "39 MB",
		"tiny":      "39 MB",
		"base.en":   "142 MB",
		"base":      "142 MB",
		"small.en":  "244 MB",
		"small":     "244 MB",
		"medium.en": "769 MB",
		"medium":    "769 MB",
		"large-v1":  "1.5 GB",
		"large-v2":  "1.5 GB",
		"large-v3":  "1.5 GB",
	}

	if size, exists := sizes[name]; exists {
		return size
	}
	return "Unknown"
}

// GetModelPath returns the full path for a given model name
func (m *Manager) GetModelPath(name string) string {
	return filepath.Join(m.modelsDir, fmt.Sprintf("ggml-%s.bin", name))
}

// IsModelDownloaded reports whether a non-empty model file is present
func (m *Manager) IsModelDownloaded(name string) bool {
	info, err := os.Stat(m.GetModelPath(name))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// EnsureModel returns the path of the configured model, downloading it first when
// allowed. It fails with ErrModelNotAvailable without touching the network when the
// model is absent and auto-download is off.
func (m *Manager) EnsureModel(ctx context.Context, onProgress ProgressFunc) (string, error) {
	path := m.GetModelPath(m.modelName)
	if m.IsModelDownloaded(m.modelName) {
		m.logger.Debug("model already exists",
			zap.String("model", m.modelName),
			zap.String("path", path))
		return path, nil
	}

	if !m.autoDownload {
		return "", fmt.Errorf("%w: %s not found in %s and auto-download is disabled",
			ErrModelNotAvailable, m.modelName, m.modelsDir)
	}

	m.logger.Info("model not found locally, attempting download",
		zap.String("model", m.modelName),
		zap.String("path", path))

	if err := m.DownloadModel(ctx, m.modelName, onProgress); err != nil {
		return "", err
	}
	return path, nil
}

// DownloadModel fetches name into the models directory. The file is written under a
// .tmp name and renamed once complete. Concurrent calls are serialized and a model
// that appeared while waiting is not downloaded again.
func (m *Manager) DownloadModel(ctx context.Context, name string, onProgress ProgressFunc) error {
	if !m.IsValidModelName(name) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsModelDownloaded(name) {
		return nil
	}

	if err := os.MkdirAll(m.modelsDir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	url := fmt.Sprintf("%s/ggml-%s.bin", m.baseURL, name)
	dest := m.GetModelPath(name)

	m.logger.Info("downloading model",
		zap.String("model", name),
		zap.String("approx_size", m.ModelSize(name)),
		zap.String("url", url),
		zap.String("destination", dest))

	written, err := downloadFile(ctx, m.client, url, dest, onProgress)
	if err != nil {
		return fmt.Errorf("failed to download model %s: %w", name, err)
	}

	m.logger.Info("model download completed successfully",
		zap.String("model", name),
		zap.String("path", dest),
		zap.Int64("bytes", written))

	return nil
}
