package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "MEETSCRIBE"

// Configuration provides type-safe access to application settings
type Configuration struct {
	viper *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transcription.provider", "remote")
	v.SetDefault("transcription.split_method", "vad")
	v.SetDefault("transcription.max_chunk_bytes", 20*1024*1024)
	v.SetDefault("transcription.language", "")
	v.SetDefault("transcription.vocabulary", "")

	v.SetDefault("remote.endpoint", "https://api.openai.com/v1/audio/transcriptions")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.model", "whisper-1")
	v.SetDefault("remote.timeout_sec", 300)
	v.SetDefault("remote.max_retries", 3)
	v.SetDefault("remote.base_backoff_ms", 1000)
	v.SetDefault("remote.max_backoff_ms", 30000)
	v.SetDefault("remote.requests_per_second", 1.0)

	v.SetDefault("local.model_name", "base")
	v.SetDefault("local.models_dir", "./models")
	v.SetDefault("local.auto_download", false)
	v.SetDefault("local.binary_path", "whisper-cli")
	v.SetDefault("local.threads", 4)
	v.SetDefault("local.use_gpu", true)
	v.SetDefault("local.scratch_dir", "")

	v.SetDefault("ffmpeg.path", "ffmpeg")

	v.SetDefault("vad.silence_threshold", 0.01)
	v.SetDefault("vad.min_silence_ms", 500)
	v.SetDefault("vad.overlap_ms", 1000)
	v.SetDefault("vad.adaptive", true)

	v.SetDefault("recording.dir", "./recordings")

	v.SetDefault("metrics.file", "")
	v.SetDefault("metrics.benchmark", false)

	v.SetDefault("log.level", "info")
}

// NewConfiguration creates a new Configuration instance with default settings
func NewConfiguration() *Configuration {
	v := viper.New()
	setDefaults(v)
	return &Configuration{viper: v}
}

// NewConfigurationFromFile creates a Configuration instance from a config file.
// Environment variables still override values from the file.
func NewConfigurationFromFile(configFile string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return &Configuration{viper: v}, nil
}

// NewConfigurationFromEnv creates a Configuration instance that reads from environment variables
func NewConfigurationFromEnv() (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	return &Configuration{viper: v}, nil
}

// bindEnv maps MEETSCRIBE_REMOTE_API_KEY style variables onto dotted keys
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The conventional variable is honoured when the prefixed one is unset
	v.BindEnv("remote.api_key", envPrefix+"_REMOTE_API_KEY", "OPENAI_API_KEY")
}

// Validate checks that the configured values can be used
func (c *Configuration) Validate() error {
	switch c.GetProvider() {
	case "local", "remote":
	default:
		return fmt.Errorf("transcription.provider must be local or remote, got %q", c.GetProvider())
	}
	switch c.GetSplitMethod() {
	case "vad", "size":
	default:
		return fmt.Errorf("transcription.split_method must be vad or size, got %q", c.GetSplitMethod())
	}
	if c.GetMaxChunkBytes() <= 44 {
		return fmt.Errorf("transcription.max_chunk_bytes must exceed the WAV header size, got %d", c.GetMaxChunkBytes())
	}
	if c.GetRemoteMaxRetries() < 0 {
		return fmt.Errorf("remote.max_retries cannot be negative, got %d", c.GetRemoteMaxRetries())
	}
	if c.GetRemoteTimeoutSec() <= 0 {
		return fmt.Errorf("remote.timeout_sec must be positive, got %d", c.GetRemoteTimeoutSec())
	}
	if c.GetLocalThreads() < 0 {
		return fmt.Errorf("local.threads cannot be negative, got %d", c.GetLocalThreads())
	}
	if c.GetVADSilenceThreshold() < 0 || c.GetVADMinSilenceMs() < 0 || c.GetVADOverlapMs() < 0 {
		return fmt.Errorf("vad settings cannot be negative")
	}
	return nil
}

// GetProvider returns which transcription provider to use (local or remote)
func (c *Configuration) GetProvider() string {
	return strings.ToLower(c.viper.GetString("transcription.provider"))
}

// SetProvider overrides the transcription provider
func (c *Configuration) SetProvider(provider string) {
	c.viper.Set("transcription.provider", provider)
}

// GetSplitMethod returns how oversized audio is split (vad or size)
func (c *Configuration) GetSplitMethod() string {
	return strings.ToLower(c.viper.GetString("transcription.split_method"))
}

// SetSplitMethod overrides the split method
func (c *Configuration) SetSplitMethod(method string) {
	c.viper.Set("transcription.split_method", method)
}

// GetMaxChunkBytes returns the size ceiling above which audio is split
func (c *Configuration) GetMaxChunkBytes() int {
	return c.viper.GetInt("transcription.max_chunk_bytes")
}

func (c *Configuration) GetLanguage() string {
	return c.viper.GetString("transcription.language")
}

// GetVocabulary returns the hint passed to the recognizer for domain terms
func (c *Configuration) GetVocabulary() string {
	return c.viper.GetString("transcription.vocabulary")
}

func (c *Configuration) GetRemoteEndpoint() string {
	return c.viper.GetString("remote.endpoint")
}

func (c *Configuration) GetRemoteAPIKey() string {
	return c.viper.GetString("remote.api_key")
}

func (c *Configuration) GetRemoteModel() string {
	return c.viper.GetString("remote.model")
}

func (c *Configuration) GetRemoteTimeoutSec() int {
	return c.viper.GetInt("remote.timeout_sec")
}

func (c *Configuration) GetRemoteMaxRetries() int {
	return c.viper.GetInt("remote.max_retries")
}

func (c *Configuration) GetRemoteBaseBackoffMs() int {
	return c.viper.GetInt("remote.base_backoff_ms")
}

func (c *Configuration) GetRemoteMaxBackoffMs() int {
	return c.viper.GetInt("remote.max_backoff_ms")
}

// GetRemoteRequestsPerSecond returns the shared request rate; zero disables throttling
func (c *Configuration) GetRemoteRequestsPerSecond() float64 {
	return c.viper.GetFloat64("remote.requests_per_second")
}

func (c *Configuration) GetLocalModelName() string {
	return c.viper.GetString("local.model_name")
}

func (c *Configuration) GetLocalModelsDir() string {
	return c.viper.GetString("local.models_dir")
}

// GetLocalAutoDownload reports whether a missing model may be downloaded on first use
func (c *Configuration) GetLocalAutoDownload() bool {
	return c.viper.GetBool("local.auto_download")
}

// SetLocalAutoDownload overrides the auto-download setting
func (c *Configuration) SetLocalAutoDownload(enabled bool) {
	c.viper.Set("local.auto_download", enabled)
}

func (c *Configuration) GetLocalBinaryPath() string {
	return c.viper.GetString("local.binary_path")
}

func (c *Configuration) GetLocalThreads() int {
	return c.viper.GetInt("local.threads")
}

// GetLocalUseGPU reports whether GPU detection is attempted for the local recognizer
func (c *Configuration) GetLocalUseGPU() bool {
	return c.viper.GetBool("local.use_gpu")
}

// GetLocalScratchDir returns where chunk scratch files are written; empty means the OS temp dir
func (c *Configuration) GetLocalScratchDir() string {
	return c.viper.GetString("local.scratch_dir")
}

func (c *Configuration) GetFFmpegPath() string {
	return c.viper.GetString("ffmpeg.path")
}

func (c *Configuration) GetVADSilenceThreshold() float64 {
	return c.viper.GetFloat64("vad.silence_threshold")
}

func (c *Configuration) GetVADMinSilenceMs() float64 {
	return c.viper.GetFloat64("vad.min_silence_ms")
}

func (c *Configuration) GetVADOverlapMs() float64 {
	return c.viper.GetFloat64("vad.overlap_ms")
}

func (c *Configuration) GetVADAdaptive() bool {
	return c.viper.GetBool("vad.adaptive")
}

// GetRecordingDir returns the directory holding one subdirectory per recorded session
func (c *Configuration) GetRecordingDir() string {
	return c.viper.GetString("recording.dir")
}

// GetMetricsFile returns where Prometheus metrics are written on shutdown; empty disables it
func (c *Configuration) GetMetricsFile() string {
	return c.viper.GetString("metrics.file")
}

// SetMetricsFile overrides the metrics output file
func (c *Configuration) SetMetricsFile(path string) {
	c.viper.Set("metrics.file", path)
}

func (c *Configuration) GetMetricsBenchmark() bool {
	return c.viper.GetBool("metrics.benchmark")
}

func (c *Configuration) SetMetricsBenchmark(enabled bool) {
	c.viper.Set("metrics.benchmark", enabled)
}

// GetLogLevel returns the configured log level (debug, info, warn, error)
func (c *Configuration) GetLogLevel() string {
	return c.viper.GetString("log.level")
}

// SetLogLevel overrides the log level
func (c *Configuration) SetLogLevel(level string) {
	c.viper.Set("log.level", level)
}
