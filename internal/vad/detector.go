package vad

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

const (
	// FrameDurationSec is the analysis window length
	FrameDurationSec = 0.02

	// DefaultSilenceThreshold is the static RMS threshold below which a frame is silent
	DefaultSilenceThreshold = 0.01

	// NoiseFloorPercentile selects the frame RMS used as the noise floor estimate
	NoiseFloorPercentile = 10.0

	// NoiseFloorMultiplier scales the noise floor into the adaptive threshold
	NoiseFloorMultiplier = 3.0

	// MinAdaptiveFraction clamps the adaptive threshold to this share of DefaultSilenceThreshold
	MinAdaptiveFraction = 0.5

	// LoudPercentile selects the frame RMS compared against the noise floor threshold
	LoudPercentile = 90.0
)

// ErrUnsupportedBitDepth is returned for PCM that is neither 8 nor 16 bit
var ErrUnsupportedBitDepth = errors.New("unsupported bit depth")

// Config controls silence detection and the overlap kept around split points
type Config struct {
	SilenceThresholdRMS  float64 `json:"silence_threshold_rms" yaml:"silence_threshold_rms"`
	MinSilenceDurationMs float64 `json:"min_silence_duration_ms" yaml:"min_silence_duration_ms"`
	ChunkOverlapMs       float64 `json:"chunk_overlap_ms" yaml:"chunk_overlap_ms"`
	UseAdaptiveThreshold bool    `json:"use_adaptive_threshold" yaml:"use_adaptive_threshold"`
}

// DefaultConfig returns the detector defaults used when the caller supplies none
func DefaultConfig() Config {
	return Config{
		SilenceThresholdRMS:  DefaultSilenceThreshold,
		MinSilenceDurationMs: 500,
		ChunkOverlapMs:       1000,
		UseAdaptiveThreshold: true,
	}
}

// Validate checks the configuration values
func (c Config) Validate() error {
	if c.SilenceThresholdRMS < 0 {
		return fmt.Errorf("silence threshold cannot be negative, got %f", c.SilenceThresholdRMS)
	}
	if c.MinSilenceDurationMs < 0 {
		return fmt.Errorf("min silence duration cannot be negative, got %f", c.MinSilenceDurationMs)
	}
	if c.ChunkOverlapMs < 0 {
		return fmt.Errorf("chunk overlap cannot be negative, got %f", c.ChunkOverlapMs)
	}
	return nil
}

// Format is the PCM layout of the bytes handed to the detector
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// SilenceSegment is a quiet region of at least the configured minimum duration
type SilenceSegment struct {
	StartMs float64 `json:"start_ms"`
	EndMs   float64 `json:"end_ms"`
	AvgRMS  float64 `json:"avg_rms"`
}

// DurationMs returns the length of the segment
func (s SilenceSegment) DurationMs() float64 {
	return s.EndMs - s.StartMs
}

// MidpointMs returns the centre of the segment
func (s SilenceSegment) MidpointMs() float64 {
	return (s.StartMs + s.EndMs) / 2
}

// Analysis is the result of one detector pass
type Analysis struct {
	FrameRMS  []float64
	FrameMs   float64
	Threshold float64
	Segments  []SilenceSegment
}

// Detector finds silence regions in PCM audio using per-frame RMS energy
type Detector struct {
	logger *zap.Logger
}

// NewDetector creates a new Detector instance
func NewDetector(logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{logger: logger}
}

// Analyze converts pcm to samples, measures loudness per frame and returns the silence segments
func (d *Detector) Analyze(pcm []byte, format Format, cfg Config) (*Analysis, error) {
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", format.SampleRate)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid VAD config: %w", err)
	}

	samples, err := Samples(pcm, format.BitsPerSample, format.Channels)
	if err != nil {
		return nil, err
	}

	rms := FrameRMS(samples, format.SampleRate)
	frameMs := FrameMs(format.SampleRate)

	threshold := cfg.SilenceThresholdRMS
	if cfg.UseAdaptiveThreshold && len(rms) > 0 {
		threshold = AdaptiveThreshold(rms, cfg.SilenceThresholdRMS)
	}

	segments := DetectSilence(rms, frameMs, threshold, cfg.MinSilenceDurationMs)

	d.logger.Debug("voice activity analysis",
		zap.Int("frames", len(rms)),
		zap.Float64("frame_ms", frameMs),
		zap.Float64("threshold", threshold),
		zap.Bool("adaptive", cfg.UseAdaptiveThreshold),
		zap.Int("silence_segments", len(segments)))

	return &Analysis{
		FrameRMS:  rms,
		FrameMs:   frameMs,
		Threshold: threshold,
		Segments:  segments,
	}, nil
}

// Samples converts PCM bytes into normalized amplitudes. Interleaved channels
// are averaged so that sample index i sits at time i/sampleRate.
func Samples(pcm []byte, bitsPerSample, channels int) ([]float64, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	var bytesPerSample int
	switch bitsPerSample {
	case 8:
		bytesPerSample = 1
	case 16:
		bytesPerSample = 2
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitsPerSample)
	}

	frameBytes := bytesPerSample * channels
	n := len(pcm) / frameBytes
	samples := make([]float64, n)

	for i := 0; i < n; i++ {
		base := i * frameBytes
		var sum float64
		for ch := 0; ch < channels; ch++ {
			off := base + ch*bytesPerSample
			if bytesPerSample == 1 {
				sum += (float64(pcm[off]) - 128) / 128
			} else {
				sum += float64(int16(uint16(pcm[off])|uint16(pcm[off+1])<<8)) / 32768
			}
		}
		samples[i] = sum / float64(channels)
	}

	return samples, nil
}

// FrameSamples returns the number of samples in one 20ms analysis frame
func FrameSamples(sampleRate int) int {
	return int(float64(sampleRate) * FrameDurationSec)
}

// FrameMs returns the exact duration of one analysis frame after truncation
func FrameMs(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(FrameSamples(sampleRate)) * 1000 / float64(sampleRate)
}

// FrameRMS computes sqrt(mean(x^2)) for each whole frame; a trailing partial frame is ignored
func FrameRMS(samples []float64, sampleRate int) []float64 {
	size := FrameSamples(sampleRate)
	if size <= 0 {
		return nil
	}

	count := len(samples) / size
	rms := make([]float64, count)
	for i := 0; i < count; i++ {
		frame := samples[i*size : (i+1)*size]
		rms[i] = math.Sqrt(floats.Dot(frame, frame) / float64(size))
	}
	return rms
}

// Percentile returns the p-th percentile using index floor(p/100*(n-1)) over a sorted copy
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Floor(p / 100 * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// NoiseFloorThreshold derives the adaptive silence threshold from the quietest frames.
// It never drops below half the static default, so near-digital-silence recordings
// do not classify every frame as speech.
func NoiseFloorThreshold(frameRMS []float64) float64 {
	threshold := Percentile(frameRMS, NoiseFloorPercentile) * NoiseFloorMultiplier
	floor := DefaultSilenceThreshold * MinAdaptiveFraction
	if threshold < floor {
		return floor
	}
	return threshold
}

// AdaptiveThreshold returns NoiseFloorThreshold unless the audio has no dynamic
// range, meaning the noise floor threshold reaches the 90th percentile frame. Steady
// loudness then falls back to the static threshold so it is never read as silence.
func AdaptiveThreshold(frameRMS []float64, static float64) float64 {
	threshold := NoiseFloorThreshold(frameRMS)
	if threshold >= Percentile(frameRMS, LoudPercentile) {
		return static
	}
	return threshold
}

// DetectSilence scans frames in order and returns the silent runs lasting at least minSilenceMs
func DetectSilence(frameRMS []float64, frameMs, threshold, minSilenceMs float64) []SilenceSegment {
	segments := make([]SilenceSegment, 0)
	start := -1

	emit := func(end int) {
		span := frameRMS[start:end]
		seg := SilenceSegment{
			StartMs: float64(start) * frameMs,
			EndMs:   float64(end) * frameMs,
			AvgRMS:  floats.Sum(span) / float64(len(span)),
		}
		if seg.EndMs > seg.StartMs && seg.DurationMs() >= minSilenceMs {
			segments = append(segments, seg)
		}
	}

	for i, level := range frameRMS {
		if level < threshold {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			emit(i)
			start = -1
		}
	}

	// Trailing silence at end of audio
	if start >= 0 {
		emit(len(frameRMS))
	}

	return segments
}
