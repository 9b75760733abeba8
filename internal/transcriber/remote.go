package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"meetscribe/internal/audio"
	"meetscribe/internal/performance"
)

const remoteProviderName = "remote"

// RemoteConfig configures the OpenAI-compatible transcription endpoint
type RemoteConfig struct {
	Endpoint          string
	APIKey            string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// DefaultRemoteConfig returns settings for the OpenAI transcription API
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Endpoint:          "https://api.openai.com/v1/audio/transcriptions",
		Model:             "whisper-1",
		Timeout:           5 * time.Minute,
		MaxRetries:        3,
		BaseBackoff:       time.Second,
		MaxBackoff:        30 * time.Second,
		RequestsPerSecond: 1,
	}
}

// statusError is a non-2xx response from the transcription endpoint
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// RemoteProvider sends audio to a hosted speech-to-text API
type RemoteProvider struct {
	cfg      RemoteConfig
	client   *http.Client
	limiter  *rate.Limiter
	monitor  *performance.PerformanceMonitor
	logger   *zap.Logger
	pipeline *pipeline
}

// NewRemoteProvider creates a RemoteProvider. The limiter is shared by every request
// the provider makes, chunks and retries included.
func NewRemoteProvider(cfg RemoteConfig, opts Options, converter Converter, monitor *performance.PerformanceMonitor, logger *zap.Logger) (*RemoteProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote endpoint cannot be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("remote model cannot be empty")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative, got %d", cfg.MaxRetries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if monitor == nil {
		monitor = performance.NewPerformanceMonitor(logger, nil)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	p := &RemoteProvider{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		monitor: monitor,
		logger:  logger,
	}
	p.pipeline = newPipeline(remoteProviderName, p.transcribeChunk, opts, converter, monitor, logger)
	return p, nil
}

// Name returns the provider identifier
func (p *RemoteProvider) Name() string {
	return remoteProviderName
}

// TranscribeFile reads path and transcribes its contents
func (p *RemoteProvider) TranscribeFile(ctx context.Context, path string) (string, error) {
	data, err := readAudioFile(path)
	if err != nil {
		return "", err
	}
	return p.pipeline.Run(ctx, data, filepath.Base(path))
}

// TranscribeBuffer transcribes data, splitting it when it is above the size ceiling
func (p *RemoteProvider) TranscribeBuffer(ctx context.Context, data []byte, filename string) (string, error) {
	return p.pipeline.Run(ctx, data, filename)
}

func (p *RemoteProvider) transcribeChunk(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) > audio.RemoteHardLimitBytes {
		return "", newFileTooLarge(len(data), audio.RemoteHardLimitBytes)
	}

	timer := p.monitor.StartTranscription(remoteProviderName, int64(len(data)), false)
	text, err := p.transcribeWithRetry(ctx, data, filename)
	p.monitor.EndTranscription(timer, err)
	return text, err
}

// transcribeWithRetry retries transient failures with exponential backoff
func (p *RemoteProvider) transcribeWithRetry(ctx context.Context, data []byte, filename string) (string, error) {
	attempts := p.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", newFailed("rate limiter wait aborted", err)
		}

		text, err := p.doRequest(ctx, data, filename)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return "", classifyRemoteError(err)
		}

		p.logger.Warn("remote transcription attempt failed",
			zap.String("filename", filename),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if attempt == attempts {
			break
		}

		backoff := p.backoff(attempt)
		p.monitor.RecordRetry(remoteProviderName)
		p.logger.Info("waiting before retry",
			zap.Duration("backoff", backoff),
			zap.Int("next_attempt", attempt+1))

		select {
		case <-ctx.Done():
			return "", newFailed("remote transcription cancelled",
				fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr))
		case <-time.After(backoff):
		}
	}

	return "", newFailed(fmt.Sprintf("remote transcription failed after %d attempts", attempts), lastErr)
}

// backoff returns BaseBackoff * 2^(attempt-1), capped at MaxBackoff
func (p *RemoteProvider) backoff(attempt int) time.Duration {
	d := p.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		if d > p.cfg.MaxBackoff/2 {
			return p.cfg.MaxBackoff
		}
		d *= 2
	}
	return min(d, p.cfg.MaxBackoff)
}

func (p *RemoteProvider) doRequest(ctx context.Context, data []byte, filename string) (string, error) {
	body, contentType, err := p.multipartBody(data, filename)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "meetscribe (Go HTTP Client)")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return parseTranscriptionResponse(resp.Header.Get("Content-Type"), respBody)
}

func (p *RemoteProvider) multipartBody(data []byte, filename string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if filename == "" {
		filename = "audio.wav"
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", p.cfg.Model},
		{"response_format", "json"},
		{"language", p.pipeline.opts.Language},
		{"prompt", p.pipeline.opts.Vocabulary},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func parseTranscriptionResponse(contentType string, body []byte) (string, error) {
	if !strings.Contains(contentType, "json") {
		return strings.TrimSpace(string(body)), nil
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}

// isRetryable reports whether a failed request is worth repeating
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		switch {
		case isTooLarge(se):
			return false
		case se.StatusCode == http.StatusTooManyRequests, se.StatusCode == http.StatusRequestTimeout:
			return true
		default:
			return se.StatusCode >= 500
		}
	}

	// Transport errors: connection refused, reset, timeouts
	return true
}

func isTooLarge(se *statusError) bool {
	if se.StatusCode == http.StatusRequestEntityTooLarge {
		return true
	}
	body := strings.ToLower(se.Body)
	return se.StatusCode == http.StatusBadRequest &&
		(strings.Contains(body, "too large") || strings.Contains(body, "maximum content size"))
}

// classifyRemoteError maps a non-retryable failure onto the error taxonomy
func classifyRemoteError(err error) error {
	var se *statusError
	if errors.As(err, &se) && isTooLarge(se) {
		return &Error{
			Code:        CodeFileTooLarge,
			Message:     "remote service rejected audio as too large",
			Recoverable: true,
			Cause:       err,
		}
	}
	return newFailed("remote transcription failed", err)
}
