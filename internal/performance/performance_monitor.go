package performance

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Metrics holds the Prometheus collectors for the transcription pipeline
type Metrics struct {
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionFailures *prometheus.CounterVec
	TranscriptionDuration *prometheus.HistogramVec
	TranscriptionRetries  *prometheus.CounterVec
	AudioBytes            *prometheus.CounterVec

	Splits         *prometheus.CounterVec
	ChunksPerSplit prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg gets a
// private registry, so several monitors can coexist in one process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_transcription_requests_total",
			Help: "Total number of single-chunk transcription calls",
		}, []string{"provider"}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_transcription_failures_total",
			Help: "Total number of failed single-chunk transcription calls",
		}, []string{"provider"}),
		TranscriptionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meetscribe_transcription_duration_seconds",
			Help:    "Time spent in a single-chunk transcription call",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"provider"}),
		TranscriptionRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_transcription_retries_total",
			Help: "Total number of retried transcription attempts",
		}, []string{"provider"}),
		AudioBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_audio_bytes_total",
			Help: "Total audio bytes sent to a recognizer",
		}, []string{"provider"}),
		Splits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_splits_total",
			Help: "Total number of oversized buffers split before transcription",
		}, []string{"method"}),
		ChunksPerSplit: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_chunks_per_split",
			Help:    "Number of chunks produced per split",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),
	}
}

// Stats is an in-process summary of transcription activity
type Stats struct {
	TotalTranscriptions  int64
	FailedTranscriptions int64
	Retries              int64
	Splits               int64
	TotalAudioBytes      int64
	TotalProcessingTime  time.Duration
	GPUTranscriptions    int64
	CPUTranscriptions    int64
	AvgTranscriptionTime time.Duration
	MinTranscriptionTime time.Duration
	MaxTranscriptionTime time.Duration
	LastProvider         string
	LastProcessingTime   time.Duration
	LastTimestamp        time.Time
}

// TranscriptionTimer tracks timing for one transcription call
type TranscriptionTimer struct {
	Provider       string
	StartTime      time.Time
	AudioBytes     int64
	UseGPU         bool
	ProcessingTime time.Duration
}

// PerformanceMonitor records transcription timings both as Prometheus metrics and as Stats
type PerformanceMonitor struct {
	logger    *zap.Logger
	metrics   *Metrics
	stats     Stats
	mu        sync.RWMutex
	benchmark bool
}

// NewPerformanceMonitor creates a new performance monitor registering its collectors with reg
func NewPerformanceMonitor(logger *zap.Logger, reg prometheus.Registerer) *PerformanceMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PerformanceMonitor{
		logger:  logger,
		metrics: NewMetrics(reg),
		stats:   freshStats(),
	}
}

// NewPerformanceMonitorWithBenchmark creates a performance monitor with benchmark logging set up front
func NewPerformanceMonitorWithBenchmark(logger *zap.Logger, reg prometheus.Registerer, benchmark bool) *PerformanceMonitor {
	pm := NewPerformanceMonitor(logger, reg)
	pm.benchmark = benchmark
	return pm
}

func freshStats() Stats {
	return Stats{
		MinTranscriptionTime: time.Hour,
		LastTimestamp:        time.Now(),
	}
}

// Metrics exposes the Prometheus collectors
func (pm *PerformanceMonitor) Metrics() *Metrics {
	return pm.metrics
}

// StartTranscription begins timing a transcription call
func (pm *PerformanceMonitor) StartTranscription(provider string, audioBytes int64, useGPU bool) *TranscriptionTimer {
	pm.metrics.TranscriptionRequests.WithLabelValues(provider).Inc()
	return &TranscriptionTimer{
		Provider:   provider,
		StartTime:  time.Now(),
		AudioBytes: audioBytes,
		UseGPU:     useGPU,
	}
}

// EndTranscription completes timing; a non-nil err counts the call as failed
func (pm *PerformanceMonitor) EndTranscription(timer *TranscriptionTimer, err error) {
	timer.ProcessingTime = time.Since(timer.StartTime)

	pm.metrics.TranscriptionDuration.WithLabelValues(timer.Provider).Observe(timer.ProcessingTime.Seconds())
	pm.metrics.AudioBytes.WithLabelValues(timer.Provider).Add(float64(timer.AudioBytes))
	if err != nil {
		pm.metrics.TranscriptionFailures.WithLabelValues(timer.Provider).Inc()
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	s := &pm.stats
	s.TotalTranscriptions++
	if err != nil {
		s.FailedTranscriptions++
	}
	s.TotalAudioBytes += timer.AudioBytes
	s.TotalProcessingTime += timer.ProcessingTime
	s.LastProvider = timer.Provider
	s.LastProcessingTime = timer.ProcessingTime
	s.LastTimestamp = time.Now()

	if timer.UseGPU {
		s.GPUTranscriptions++
	} else {
		s.CPUTranscriptions++
	}

	if timer.ProcessingTime < s.MinTranscriptionTime {
		s.MinTranscriptionTime = timer.ProcessingTime
	}
	if timer.ProcessingTime > s.MaxTranscriptionTime {
		s.MaxTranscriptionTime = timer.ProcessingTime
	}
	s.AvgTranscriptionTime = time.Duration(int64(s.TotalProcessingTime) / s.TotalTranscriptions)

	if pm.benchmark {
		pm.logger.Info("transcription performance",
			zap.String("provider", timer.Provider),
			zap.Bool("use_gpu", timer.UseGPU),
			zap.Int64("audio_bytes", timer.AudioBytes),
			zap.Duration("processing_time", timer.ProcessingTime),
			zap.Bool("failed", err != nil))
	}
}

// RecordRetry counts one retried attempt for provider
func (pm *PerformanceMonitor) RecordRetry(provider string) {
	pm.metrics.TranscriptionRetries.WithLabelValues(provider).Inc()

	pm.mu.Lock()
	pm.stats.Retries++
	pm.mu.Unlock()
}

// RecordSplit counts one split of an oversized buffer into chunks
func (pm *PerformanceMonitor) RecordSplit(method string, chunks int) {
	pm.metrics.Splits.WithLabelValues(method).Inc()
	pm.metrics.ChunksPerSplit.Observe(float64(chunks))

	pm.mu.Lock()
	pm.stats.Splits++
	pm.mu.Unlock()
}

// GetStats returns a copy of the current stats
func (pm *PerformanceMonitor) GetStats() Stats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.stats
}

// GetPerformanceSummary returns a formatted summary of the collected stats
func (pm *PerformanceMonitor) GetPerformanceSummary() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	s := pm.stats
	if s.TotalTranscriptions == 0 {
		return "No transcription metrics available"
	}

	gpuPercent := float64(s.GPUTranscriptions) / float64(s.TotalTranscriptions) * 100
	avgBytesPerSec := float64(s.TotalAudioBytes) / s.TotalProcessingTime.Seconds()

	return fmt.Sprintf(
		"Performance Summary:\n"+
			"  Total Transcriptions: %d (%d failed, %d retries)\n"+
			"  Splits: %d\n"+
			"  GPU Usage: %.1f%% (%d GPU, %d CPU)\n"+
			"  Avg Processing Time: %v\n"+
			"  Min/Max Processing Time: %v / %v\n"+
			"  Total Audio Processed: %.2f MB\n"+
			"  Average Throughput: %.2f KB/s\n",
		s.TotalTranscriptions,
		s.FailedTranscriptions,
		s.Retries,
		s.Splits,
		gpuPercent,
		s.GPUTranscriptions,
		s.CPUTranscriptions,
		s.AvgTranscriptionTime,
		s.MinTranscriptionTime,
		s.MaxTranscriptionTime,
		float64(s.TotalAudioBytes)/1024/1024,
		avgBytesPerSec/1024,
	)
}

// ResetStats clears the in-process stats; Prometheus counters are monotonic and untouched
func (pm *PerformanceMonitor) ResetStats() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats = freshStats()
	pm.logger.Info("performance stats reset")
}

// BenchmarkMode enables or disables detailed benchmark logging
func (pm *PerformanceMonitor) BenchmarkMode(enabled bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.benchmark = enabled
	pm.logger.Info("benchmark mode", zap.Bool("enabled", enabled))
}

// Benchmarking reports whether per-call benchmark logging is on
func (pm *PerformanceMonitor) Benchmarking() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.benchmark
}

// LogCurrentMetrics logs the current stats
func (pm *PerformanceMonitor) LogCurrentMetrics() {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	pm.logger.Info("current performance metrics",
		zap.Int64("total_transcriptions", pm.stats.TotalTranscriptions),
		zap.Int64("failed_transcriptions", pm.stats.FailedTranscriptions),
		zap.Int64("retries", pm.stats.Retries),
		zap.Int64("splits", pm.stats.Splits),
		zap.Duration("avg_processing_time", pm.stats.AvgTranscriptionTime),
		zap.Duration("last_processing_time", pm.stats.LastProcessingTime),
		zap.String("last_provider", pm.stats.LastProvider),
	)
}

// LogGathered logs every counter series held by the gatherer
func (pm *PerformanceMonitor) LogGathered(g prometheus.Gatherer) {
	if g == nil {
		return
	}
	families, err := g.Gather()
	if err != nil {
		pm.logger.Warn("failed to gather metrics", zap.Error(err))
		return
	}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			fields := []zap.Field{
				zap.String("metric", family.GetName()),
				zap.Float64("value", m.GetCounter().GetValue()),
			}
			for _, label := range m.GetLabel() {
				fields = append(fields, zap.String(label.GetName(), label.GetValue()))
			}
			pm.logger.Debug("gathered metric", fields...)
		}
	}
}
